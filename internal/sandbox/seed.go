package sandbox

import (
	"fmt"
	"os"
	"strings"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/five82/zheye/internal/api"
)

// Seed is the initial dataset. Every user owns exactly one column.
type Seed struct {
	Users []SeedUser `yaml:"users"`
}

// SeedUser is a user, the column it owns and that column's posts.
type SeedUser struct {
	Email       string     `yaml:"email"`
	Password    string     `yaml:"password"`
	NickName    string     `yaml:"nickName"`
	Description string     `yaml:"description"`
	Column      SeedColumn `yaml:"column"`
}

// SeedColumn describes a column.
type SeedColumn struct {
	Title       string     `yaml:"title"`
	Description string     `yaml:"description"`
	Posts       []SeedPost `yaml:"posts"`
}

// SeedPost describes a post.
type SeedPost struct {
	Title   string `yaml:"title"`
	Content string `yaml:"content"`
}

// GeneratedPassword is the password of every generated user.
const GeneratedPassword = "password123"

// LoadSeed reads a YAML seed file.
func LoadSeed(path string) (Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, fmt.Errorf("read seed: %w", err)
	}
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return Seed{}, fmt.Errorf("parse seed: %w", err)
	}
	return seed, nil
}

// Generate builds a random dataset. The same seed value yields the same data.
func Generate(seed int64, users, postsPerColumn int) Seed {
	faker := gofakeit.New(seed)
	out := Seed{Users: make([]SeedUser, 0, users)}
	for i := 0; i < users; i++ {
		u := SeedUser{
			Email:       fmt.Sprintf("user%d@example.com", i+1),
			Password:    GeneratedPassword,
			NickName:    faker.Username(),
			Description: faker.Sentence(8),
			Column: SeedColumn{
				Title:       strings.TrimSuffix(faker.Sentence(3), "."),
				Description: faker.Sentence(10),
			},
		}
		for j := 0; j < postsPerColumn; j++ {
			var body strings.Builder
			for k := 0; k < 3; k++ {
				fmt.Fprintf(&body, "<p>%s</p>", faker.Paragraph(1, 4, 12, " "))
			}
			u.Column.Posts = append(u.Column.Posts, SeedPost{
				Title:   strings.TrimSuffix(faker.Sentence(5), "."),
				Content: body.String(),
			})
		}
		out.Users = append(out.Users, u)
	}
	return out
}

// Apply loads seed into the server.
func (s *Server) Apply(seed Seed) error {
	for i, u := range seed.Users {
		user, err := s.AddUser(u.Email, u.Password, u.NickName, u.Description, u.Column.Title, u.Column.Description)
		if err != nil {
			return fmt.Errorf("seed user %d: %w", i, err)
		}
		for _, p := range u.Column.Posts {
			s.addPost(user, p.Title, p.Content)
		}
	}
	return nil
}

// AddUser registers a user together with its column.
func (s *Server) AddUser(email, password, nickName, description, columnTitle, columnDescription string) (api.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return api.User{}, fmt.Errorf("email and password are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return api.User{}, fmt.Errorf("hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.usersByMail[email]; exists {
		return api.User{}, fmt.Errorf("user %s already exists", email)
	}
	if columnTitle == "" {
		columnTitle = nickName + "'s column"
	}
	column := api.Column{ID: newID(), Title: columnTitle, Description: columnDescription}
	user := api.User{
		ID:          newID(),
		NickName:    nickName,
		Email:       email,
		Description: description,
		Column:      column.ID,
	}
	s.columns[column.ID] = column
	s.columnOrder = append(s.columnOrder, column.ID)
	s.users[user.ID] = &userRecord{user: user, hash: hash}
	s.usersByMail[email] = user.ID
	return user, nil
}

func (s *Server) addPost(author api.User, title, content string) api.Post {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := api.Post{
		ID:        newID(),
		Title:     title,
		Content:   content,
		Excerpt:   excerpt(content),
		Column:    author.Column,
		Author:    &api.AuthorRef{ID: author.ID},
		CreatedAt: s.timestamp(),
	}
	s.posts[p.ID] = p
	return p
}
