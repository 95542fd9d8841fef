// Package server is the web front end: the public booking pages, the admin
// console behind ?admin=1 and a small JSON endpoint.
package server

import (
	"bytes"
	"crypto/sha256"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/csrf"
	"github.com/yuin/goldmark"
	goldmarkHTML "github.com/yuin/goldmark/renderer/html"

	"basket-booking/internal/booking"
	"basket-booking/internal/config"
	"basket-booking/internal/logging"
)

//go:embed templates/*.html content/*.md
var assets embed.FS

const title = "Tecnificaciones CBC"

// Raw HTML in the markdown is escaped.
var mdRenderer = goldmark.New(
	goldmark.WithRendererOptions(
		goldmarkHTML.WithHardWraps(),
	),
)

type Server struct {
	cfg     config.Config
	svc     *booking.Service
	router  *chi.Mux
	pages   map[string]*template.Template
	welcome template.HTML
	now     func() time.Time
}

// New returns the configured http.Server for svc.
func New(cfg config.Config, svc *booking.Service) (*http.Server, error) {
	s, err := NewServer(cfg, svc)
	if err != nil {
		return nil, err
	}
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       60 * time.Second,
		ErrorLog:          slog.NewLogLogger(slog.Default().Handler(), slog.LevelError),
	}, nil
}

func NewServer(cfg config.Config, svc *booking.Service) (*Server, error) {
	s := &Server{cfg: cfg, svc: svc, router: chi.NewRouter(), now: time.Now}
	if err := s.loadTemplates(); err != nil {
		return nil, err
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(securityHeaders)

	key := sha256.Sum256([]byte("csrf:" + s.cfg.SigningSecret))
	s.router.Use(csrf.Protect(key[:],
		csrf.Secure(s.cfg.CSRFSecure),
		csrf.Path("/"),
		csrf.SameSite(csrf.SameSiteLaxMode),
		csrf.ErrorHandler(http.HandlerFunc(s.csrfFailed)),
	))
}

func (s *Server) setupRoutes() {
	s.router.Get("/", s.handleIndex)
	s.router.Post("/", s.handleAdminPost)

	s.router.Get("/session", s.handleSessionForm)
	s.router.Post("/session", s.handleRegister)
	s.router.Get("/confirmation.pdf", s.handleConfirmationPDF)

	s.router.Get("/api/availability", s.handleAvailability)
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
}

func (s *Server) csrfFailed(w http.ResponseWriter, r *http.Request) {
	logging.FromContext(r.Context()).Warn("csrf check failed", "reason", csrf.FailureReason(r))
	s.renderError(w, r, http.StatusForbidden, "La sesión del formulario ha caducado. Recarga la página e inténtalo de nuevo.")
}

func (s *Server) loadTemplates() error {
	funcs := template.FuncMap{
		"displayDate": displayDate,
		"longDate":    longDate,
		"categoryID":  categoryID,
	}
	s.pages = map[string]*template.Template{}
	for _, page := range []string{"index.html", "session.html", "result.html", "admin_login.html", "admin.html", "error.html"} {
		tpl, err := template.New("layout.html").Funcs(funcs).ParseFS(assets, "templates/layout.html", "templates/"+page)
		if err != nil {
			return fmt.Errorf("parse template %s: %w", page, err)
		}
		s.pages[page] = tpl
	}

	md, err := assets.ReadFile("content/welcome.md")
	if err != nil {
		return fmt.Errorf("read welcome text: %w", err)
	}
	var buf bytes.Buffer
	if err := mdRenderer.Convert(md, &buf); err != nil {
		return fmt.Errorf("render welcome text: %w", err)
	}
	s.welcome = template.HTML(buf.String())
	return nil
}

// base is the data every page layout needs.
type base struct {
	Title string
	Flash string
	Error string
	CSRF  template.HTML
}

func (s *Server) base(r *http.Request) base {
	return base{Title: title, CSRF: csrf.TemplateField(r)}
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, page string, data any) {
	tpl, ok := s.pages[page]
	if !ok {
		http.Error(w, "unknown page", http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		logging.FromContext(r.Context()).Error("render page", "page", page, "err", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
