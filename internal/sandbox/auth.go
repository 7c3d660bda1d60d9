package sandbox

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/five82/zheye/internal/api"
)

const (
	userIDKey = "userID"
	issuer    = "zheye-sandbox"
)

func (s *Server) issueToken(u api.User) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"_id":   u.ID,
		"email": u.Email,
		"iss":   issuer,
		"iat":   now.Unix(),
		"exp":   now.Add(s.opts.TokenTTL).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

func (s *Server) parseToken(raw string) (string, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(issuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		return "", err
	}
	id, _ := claims["_id"].(string)
	if id == "" {
		return "", fmt.Errorf("token carries no user")
	}
	return id, nil
}

func (s *Server) requireAuth(c *fiber.Ctx) error {
	header := c.Get(fiber.HeaderAuthorization)
	raw, found := strings.CutPrefix(header, "Bearer ")
	if !found || strings.TrimSpace(raw) == "" {
		return fail(c, fiber.StatusUnauthorized, "login required")
	}
	id, err := s.parseToken(strings.TrimSpace(raw))
	if err != nil {
		return fail(c, fiber.StatusUnauthorized, "token expired or invalid")
	}
	if _, known := s.user(id); !known {
		return fail(c, fiber.StatusUnauthorized, "token expired or invalid")
	}
	c.Locals(userIDKey, id)
	return c.Next()
}

// requirePartnerCode checks icode in the query, a form field or a JSON body.
func (s *Server) requirePartnerCode(c *fiber.Ctx) error {
	if s.opts.PartnerCode == "" {
		return c.Next()
	}
	code := c.Query(api.PartnerCodeField)
	if code == "" && strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		code = c.FormValue(api.PartnerCodeField)
	}
	if code == "" && len(c.Body()) > 0 {
		var body struct {
			Code string `json:"icode"`
		}
		if json.Unmarshal(c.Body(), &body) == nil {
			code = body.Code
		}
	}
	if code != s.opts.PartnerCode {
		return fail(c, fiber.StatusForbidden, "invalid icode")
	}
	return c.Next()
}
