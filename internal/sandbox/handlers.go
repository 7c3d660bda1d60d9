package sandbox

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/crypto/bcrypt"

	"github.com/five82/zheye/internal/api"
)

const (
	defaultPageSize = 6
	maxPageSize     = 50
	excerptRunes    = 50
)

var textOnly = bluemonday.StrictPolicy()

func ok(c *fiber.Ctx, data any) error {
	return c.JSON(fiber.Map{"code": 0, "msg": "ok", "data": data})
}

func fail(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": message})
}

func excerpt(content string) string {
	text := strings.Join(strings.Fields(textOnly.Sanitize(content)), " ")
	if utf8.RuneCountInString(text) <= excerptRunes {
		return text
	}
	return string([]rune(text)[:excerptRunes]) + "..."
}

func (s *Server) logRequests(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	attrs := []any{
		slog.String("method", c.Method()),
		slog.String("path", c.Path()),
		slog.Int("status", c.Response().StatusCode()),
		slog.Duration("elapsed", time.Since(start)),
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	s.logger.Debug("sandbox request", attrs...)
	return err
}

func (s *Server) inject(c *fiber.Ctx) error {
	if s.opts.Latency > 0 {
		time.Sleep(s.opts.Latency)
	}
	if s.shouldFail() {
		return fail(c, s.opts.FailCode, "failure injected")
	}
	return c.Next()
}

func (s *Server) listColumns(c *fiber.Ctx) error {
	page := max(c.QueryInt("currentPage", 1), 1)
	size := c.QueryInt("pageSize", defaultPageSize)
	if size <= 0 || size > maxPageSize {
		size = defaultPageSize
	}
	list, total := s.columnPage(page, size)
	return ok(c, fiber.Map{
		"list":        list,
		"count":       total,
		"currentPage": strconv.Itoa(page),
		"pageSize":    strconv.Itoa(size),
	})
}

func (s *Server) getColumn(c *fiber.Ctx) error {
	s.mu.RLock()
	column, found := s.columns[c.Params("id")]
	s.mu.RUnlock()
	if !found {
		return fail(c, fiber.StatusNotFound, "column not found")
	}
	return ok(c, column)
}

func (s *Server) listPosts(c *fiber.Ctx) error {
	id := c.Params("id")
	s.mu.RLock()
	_, found := s.columns[id]
	s.mu.RUnlock()
	if !found {
		return fail(c, fiber.StatusNotFound, "column not found")
	}
	list := s.postsOf(id)
	return ok(c, fiber.Map{
		"list":        list,
		"count":       len(list),
		"currentPage": "1",
		"pageSize":    strconv.Itoa(len(list)),
	})
}

func (s *Server) getPost(c *fiber.Ctx) error {
	p, err := s.post(c.Params("id"))
	if err != nil {
		return fail(c, fiber.StatusNotFound, "post not found")
	}
	return ok(c, p)
}

func (s *Server) createPost(c *fiber.Ctx) error {
	uid := c.Locals(userIDKey).(string)
	var req api.PostPayload
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Content) == "" {
		return fail(c, fiber.StatusBadRequest, "title and content are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	author := s.users[uid].user
	column := req.Column
	if column == "" {
		column = author.Column
	}
	if column != author.Column {
		return fail(c, fiber.StatusForbidden, "column does not belong to you")
	}
	p := api.Post{
		ID:        newID(),
		Title:     strings.TrimSpace(req.Title),
		Content:   req.Content,
		Excerpt:   excerpt(req.Content),
		Column:    column,
		Author:    &api.AuthorRef{ID: uid},
		CreatedAt: s.timestamp(),
	}
	if req.Image != "" {
		if _, found := s.images[req.Image]; !found {
			return fail(c, fiber.StatusBadRequest, "image not found")
		}
		p.Image = &api.ImageRef{ID: req.Image}
	}
	s.posts[p.ID] = p
	return ok(c, s.expand(p))
}

// ownedPost returns the post when uid wrote it. Callers hold s.mu.
func (s *Server) ownedPost(id, uid string) (api.Post, error) {
	p, found := s.posts[id]
	if !found {
		return api.Post{}, errNotFound
	}
	if p.Author == nil || p.Author.ID != uid {
		return api.Post{}, errForbidden
	}
	return p, nil
}

func ownershipError(c *fiber.Ctx, err error) error {
	if errors.Is(err, errForbidden) {
		return fail(c, fiber.StatusForbidden, "you are not the author of this post")
	}
	return fail(c, fiber.StatusNotFound, "post not found")
}

func (s *Server) updatePost(c *fiber.Ctx) error {
	uid := c.Locals(userIDKey).(string)
	var req api.PostPayload
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid request body")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.ownedPost(c.Params("id"), uid)
	if err != nil {
		return ownershipError(c, err)
	}
	if t := strings.TrimSpace(req.Title); t != "" {
		p.Title = t
	}
	if req.Content != "" {
		p.Content = req.Content
		p.Excerpt = excerpt(req.Content)
	}
	if req.Image != "" {
		if _, found := s.images[req.Image]; !found {
			return fail(c, fiber.StatusBadRequest, "image not found")
		}
		p.Image = &api.ImageRef{ID: req.Image}
	}
	s.posts[p.ID] = p
	return ok(c, s.expand(p))
}

func (s *Server) deletePost(c *fiber.Ctx) error {
	uid := c.Locals(userIDKey).(string)

	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.ownedPost(c.Params("id"), uid)
	if err != nil {
		return ownershipError(c, err)
	}
	delete(s.posts, p.ID)
	return ok(c, s.expand(p))
}

func (s *Server) login(c *fiber.Ctx) error {
	var req api.Credentials
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid request body")
	}

	s.mu.RLock()
	rec := s.users[s.usersByMail[strings.ToLower(strings.TrimSpace(req.Email))]]
	s.mu.RUnlock()
	if rec == nil || bcrypt.CompareHashAndPassword(rec.hash, []byte(req.Password)) != nil {
		return fail(c, fiber.StatusUnauthorized, "invalid email or password")
	}

	token, err := s.issueToken(rec.user)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, err.Error())
	}
	return ok(c, api.LoginResponse{Token: token})
}

func (s *Server) currentUser(c *fiber.Ctx) error {
	u, found := s.user(c.Locals(userIDKey).(string))
	if !found {
		return fail(c, fiber.StatusUnauthorized, "user no longer exists")
	}
	return ok(c, u)
}

func (s *Server) upload(c *fiber.Ctx) error {
	header, err := c.FormFile("file")
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "file is required")
	}
	f, err := header.Open()
	if err != nil {
		return fail(c, fiber.StatusBadRequest, err.Error())
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return fail(c, fiber.StatusBadRequest, err.Error())
	}
	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		return fail(c, fiber.StatusBadRequest, "only images can be uploaded")
	}

	id := newID()
	url := c.BaseURL() + "/images/" + id
	img := api.Image{ID: id, URL: url, FitURL: url, CreatedAt: s.timestamp()}
	s.mu.Lock()
	s.images[id] = &imageRecord{image: img, contentType: contentType, data: data}
	s.mu.Unlock()
	return ok(c, img)
}

func (s *Server) serveImage(c *fiber.Ctx) error {
	s.mu.RLock()
	rec, found := s.images[c.Params("id")]
	s.mu.RUnlock()
	if !found {
		return fiber.ErrNotFound
	}
	c.Set(fiber.HeaderContentType, rec.contentType)
	return c.Send(rec.data)
}
