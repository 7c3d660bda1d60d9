// Package sandbox is an in-memory fake of the publishing API. It serves the
// same routes and envelopes as the real service so the client can be
// developed and tested without network access or a partner code.
package sandbox

import (
	"errors"
	"log/slog"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/five82/zheye/internal/api"
)

// Options configure a Server.
type Options struct {
	// PartnerCode, when set, must accompany every request as icode.
	PartnerCode string
	// Secret signs issued tokens. A random secret is used when empty.
	Secret string
	// TokenTTL is the lifetime of issued tokens.
	TokenTTL time.Duration
	// Latency is added to every request.
	Latency time.Duration
	// FailRate is the probability in [0,1] that a request fails with FailCode.
	FailRate float64
	FailCode int
	Logger   *slog.Logger
}

type userRecord struct {
	user api.User
	hash []byte
}

type imageRecord struct {
	image       api.Image
	contentType string
	data        []byte
}

// Server holds the fake dataset.
type Server struct {
	opts   Options
	secret []byte
	logger *slog.Logger
	now    func() time.Time

	registry *prometheus.Registry
	prom     *fiberprometheus.FiberPrometheus

	mu          sync.RWMutex
	users       map[string]*userRecord
	usersByMail map[string]string
	columns     map[string]api.Column
	columnOrder []string
	posts       map[string]api.Post
	images      map[string]*imageRecord
}

var (
	errNotFound  = errors.New("not found")
	errForbidden = errors.New("forbidden")
)

// New returns an empty Server.
func New(opts Options) *Server {
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 72 * time.Hour
	}
	if opts.FailCode == 0 {
		opts.FailCode = fiber.StatusInternalServerError
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	secret := opts.Secret
	if secret == "" {
		secret = uuid.NewString()
	}
	registry := prometheus.NewRegistry()
	return &Server{
		opts:        opts,
		secret:      []byte(secret),
		logger:      logger,
		now:         time.Now,
		registry:    registry,
		prom:        fiberprometheus.NewWithRegistry(registry, "zheye-sandbox", "zheye", "sandbox", nil),
		users:       make(map[string]*userRecord),
		usersByMail: make(map[string]string),
		columns:     make(map[string]api.Column),
		posts:       make(map[string]api.Post),
		images:      make(map[string]*imageRecord),
	}
}

// App builds the fiber application serving the API under /api and request
// metrics under /metrics.
func (s *Server) App() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "zheye-sandbox",
		DisableStartupMessage: true,
		BodyLimit:             4 << 20,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				code = fe.Code
			}
			return fail(c, code, err.Error())
		},
	})

	app.Use(s.prom.Middleware)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	app.Get("/images/:id", s.serveImage)

	r := app.Group("/api", s.logRequests, s.inject, s.requirePartnerCode)
	r.Get("/columns", s.listColumns)
	r.Get("/columns/:id", s.getColumn)
	r.Get("/columns/:id/posts", s.listPosts)
	r.Get("/posts/:id", s.getPost)
	r.Post("/posts", s.requireAuth, s.createPost)
	r.Patch("/posts/:id", s.requireAuth, s.updatePost)
	r.Delete("/posts/:id", s.requireAuth, s.deletePost)
	r.Post("/user/login", s.login)
	r.Get("/user/current", s.requireAuth, s.currentUser)
	r.Post("/upload", s.requireAuth, s.upload)
	return app
}

func newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
}

func (s *Server) timestamp() string {
	return s.now().UTC().Format("2006-01-02 15:04:05")
}

// columnPage returns one page of columns in creation order.
func (s *Server) columnPage(page, size int) ([]api.Column, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := len(s.columnOrder)
	start := (page - 1) * size
	if start >= total || start < 0 {
		return []api.Column{}, total
	}
	end := min(start+size, total)
	out := make([]api.Column, 0, end-start)
	for _, id := range s.columnOrder[start:end] {
		out = append(out, s.columns[id])
	}
	return out, total
}

// postsOf returns summaries of a column's posts, newest first.
func (s *Server) postsOf(columnID string) []api.Post {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []api.Post
	for _, p := range s.posts {
		if p.Column != columnID {
			continue
		}
		summary := s.expand(p)
		summary.Content = ""
		out = append(out, summary)
	}
	slices.SortFunc(out, func(a, b api.Post) int {
		return strings.Compare(b.CreatedAt+b.ID, a.CreatedAt+a.ID)
	})
	if out == nil {
		out = []api.Post{}
	}
	return out
}

// expand embeds the author and image objects. Callers hold s.mu.
func (s *Server) expand(p api.Post) api.Post {
	if p.Author != nil {
		if rec, ok := s.users[p.Author.ID]; ok {
			u := rec.user
			p.Author = &api.AuthorRef{ID: u.ID, User: &u}
		}
	}
	if p.Image != nil {
		if rec, ok := s.images[p.Image.ID]; ok {
			img := rec.image
			p.Image = &api.ImageRef{ID: img.ID, Image: &img}
		}
	}
	return p
}

func (s *Server) post(id string) (api.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.posts[id]
	if !ok {
		return api.Post{}, errNotFound
	}
	return s.expand(p), nil
}

func (s *Server) user(id string) (api.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.users[id]
	if !ok {
		return api.User{}, false
	}
	return rec.user, true
}

func (s *Server) shouldFail() bool {
	return s.opts.FailRate > 0 && rand.Float64() < s.opts.FailRate
}
