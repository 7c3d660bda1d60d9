package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Envelope mirrors the {code, msg, data} wrapper every endpoint responds with.
type Envelope[T any] struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data T      `json:"data"`
}

// ListPage is the data payload of paginated collection endpoints.
type ListPage[T any] struct {
	List        []T     `json:"list"`
	Count       int     `json:"count"`
	CurrentPage FlexInt `json:"currentPage"`
	PageSize    FlexInt `json:"pageSize,omitempty"`
}

// FlexInt decodes a JSON number or a numeric string.
type FlexInt int

// UnmarshalJSON implements json.Unmarshaler.
func (n *FlexInt) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*n = 0
		return nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*n = 0
			return nil
		}
		v, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("flexint %q: %w", s, err)
		}
		*n = FlexInt(v)
		return nil
	}
	var v int
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return err
	}
	*n = FlexInt(v)
	return nil
}

// Image describes an uploaded picture.
type Image struct {
	ID        string `json:"_id,omitempty"`
	URL       string `json:"url,omitempty"`
	FitURL    string `json:"fitUrl,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// Column is a named collection of posts owned by one author.
type Column struct {
	ID          string `json:"_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Avatar      *Image `json:"avatar,omitempty"`
}

// Key returns the column identifier.
func (c Column) Key() string { return c.ID }

// User is the profile returned by /user/current.
type User struct {
	ID          string `json:"_id,omitempty"`
	NickName    string `json:"nickName,omitempty"`
	Email       string `json:"email,omitempty"`
	Avatar      *Image `json:"avatar,omitempty"`
	Description string `json:"description,omitempty"`
	Column      string `json:"column,omitempty"`
}

// Post is a single article inside a column.
type Post struct {
	ID        string     `json:"_id,omitempty"`
	Title     string     `json:"title"`
	Excerpt   string     `json:"excerpt,omitempty"`
	Content   string     `json:"content,omitempty"`
	Image     *ImageRef  `json:"image,omitempty"`
	Column    string     `json:"column"`
	Author    *AuthorRef `json:"author,omitempty"`
	CreatedAt string     `json:"createdAt,omitempty"`
}

// Key returns the post identifier.
func (p Post) Key() string { return p.ID }

// ParsedCreatedAt returns the parsed CreatedAt timestamp.
func (p Post) ParsedCreatedAt() time.Time {
	return parseTime(p.CreatedAt)
}

// ImageRef holds either an embedded Image or just its identifier.
type ImageRef struct {
	ID    string
	Image *Image
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *ImageRef) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var id string
		if err := json.Unmarshal(trimmed, &id); err != nil {
			return err
		}
		*r = ImageRef{ID: id}
		return nil
	}
	var img Image
	if err := json.Unmarshal(trimmed, &img); err != nil {
		return fmt.Errorf("decode image: %w", err)
	}
	*r = ImageRef{ID: img.ID, Image: &img}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (r ImageRef) MarshalJSON() ([]byte, error) {
	if r.Image != nil {
		return json.Marshal(r.Image)
	}
	return json.Marshal(r.ID)
}

// URL returns the image location when it was embedded.
func (r *ImageRef) URL() string {
	if r == nil || r.Image == nil {
		return ""
	}
	if r.Image.FitURL != "" {
		return r.Image.FitURL
	}
	return r.Image.URL
}

// AuthorRef holds either an embedded User or just its identifier.
type AuthorRef struct {
	ID   string
	User *User
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *AuthorRef) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var id string
		if err := json.Unmarshal(trimmed, &id); err != nil {
			return err
		}
		*r = AuthorRef{ID: id}
		return nil
	}
	var u User
	if err := json.Unmarshal(trimmed, &u); err != nil {
		return fmt.Errorf("decode author: %w", err)
	}
	*r = AuthorRef{ID: u.ID, User: &u}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (r AuthorRef) MarshalJSON() ([]byte, error) {
	if r.User != nil {
		return json.Marshal(r.User)
	}
	return json.Marshal(r.ID)
}

// Name returns the author's nickname, falling back to the identifier.
func (r *AuthorRef) Name() string {
	if r == nil {
		return ""
	}
	if r.User != nil && r.User.NickName != "" {
		return r.User.NickName
	}
	return r.ID
}

// Credentials is the body of /user/login.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is the data payload of /user/login.
type LoginResponse struct {
	Token string `json:"token"`
}

// PostPayload is the body of post create and partial update calls.
type PostPayload struct {
	Title   string `json:"title,omitempty"`
	Content string `json:"content,omitempty"`
	Image   string `json:"image,omitempty"`
	Column  string `json:"column,omitempty"`
	Author  string `json:"author,omitempty"`
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	if t, err := time.ParseInLocation("2006-01-02 15:04:05", value, time.Local); err == nil {
		return t
	}
	return time.Time{}
}
