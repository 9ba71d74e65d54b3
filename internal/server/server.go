package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/joeblew999/plat-overlay/internal/api"
	"github.com/joeblew999/plat-overlay/internal/api/panel"
	"github.com/joeblew999/plat-overlay/internal/humastar"
	"github.com/joeblew999/plat-overlay/internal/raster"
	"github.com/joeblew999/plat-overlay/internal/service"
	"github.com/joeblew999/plat-overlay/internal/store"
	"github.com/joeblew999/plat-overlay/internal/templates"
)

// Config holds the server configuration.
type Config struct {
	Host           string
	Port           string
	DataDir        string
	WebDir         string // Path to web/ directory for static files and template overrides
	Store          string // snapshot backend: file, duckdb, sqlite or memory
	MaxRasterBytes int64  // upper bound for one GeoTIFF upload; zero means no limit
	Logger         *log.Logger
}

// Server is the overlay HTTP server.
type Server struct {
	config   Config
	logger   *log.Logger
	mux      *http.ServeMux
	humaAPI  huma.API
	store    store.Store
	bus      *service.EventBus
	services *api.Services
	renderer *templates.Renderer
}

// New creates a server, opens the snapshot store and restores the last
// saved layers.
func New(cfg Config) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	st, err := store.Open(cfg.Store, cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cfg.Store, err)
	}

	renderer, err := loadRenderer(cfg.WebDir, logger)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("loading templates: %w", err)
	}

	mux := http.NewServeMux()

	// Create Huma API with humago (pure stdlib) adapter
	humaConfig := huma.DefaultConfig("plat-overlay API", api.Version)
	humaConfig.Info.Description = "Map overlay server: upload GeoJSON and GeoTIFF layers, toggle, rename and frame them."
	humaConfig.Servers = []*huma.Server{
		{URL: fmt.Sprintf("http://%s:%s", cfg.Host, cfg.Port), Description: "Local server"},
	}
	// Disable $schema property in responses (cleaner JSON)
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}
	humaConfig.Transformers = append(humaConfig.Transformers, humastar.LinkTransformer())

	humaAPI := humago.New(mux, humaConfig)

	bus := service.NewEventBus()
	view := service.NewViewport(bus)
	reg := service.NewRegistry(view,
		service.WithBus(bus),
		service.WithLogger(logger.WithPrefix("registry")),
		service.WithRasterDecoder(raster.Decoder{MaxBytes: cfg.MaxRasterBytes}),
	)
	bridge := service.NewBridge(reg, st, logger.WithPrefix("bridge"))
	if _, err := bridge.Load(context.Background()); err != nil {
		logger.Warn("restoring snapshot", "err", err)
	}
	bridge.Attach()

	s := &Server{
		config:  cfg,
		logger:  logger,
		mux:     mux,
		humaAPI: humaAPI,
		store:   st,
		bus:     bus,
		services: &api.Services{
			Registry: reg,
			View:     view,
			Bridge:   bridge,
			Ingester: service.NewIngester(reg, bridge, bus, logger.WithPrefix("ingest")),
		},
		renderer: renderer,
	}

	s.routes()
	return s, nil
}

// loadRenderer prefers fragments under web/templates/fragments and falls
// back to the embedded set.
func loadRenderer(webDir string, logger *log.Logger) (*templates.Renderer, error) {
	if webDir != "" {
		fragmentsDir := filepath.Join(webDir, "templates", "fragments")
		if info, err := os.Stat(fragmentsDir); err == nil && info.IsDir() {
			r, err := templates.New(os.DirFS(fragmentsDir))
			if err != nil {
				return nil, err
			}
			logger.Info("loaded fragment templates", "dir", fragmentsDir)
			return r, nil
		}
	}
	return templates.Default()
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// OpenAPI returns the generated OpenAPI document.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

// Close closes server resources.
func (s *Server) Close() error {
	return s.store.Close()
}

func (s *Server) routes() {
	// Register Huma REST API routes (OpenAPI-documented JSON endpoints)
	api.RegisterRoutes(s.humaAPI, s.services)
	api.NewInfoHandler(s.config.DataDir, s.backend(), s.services.Registry).RegisterRoutes(s.humaAPI)

	// Register layer panel SSE routes using Huma + Datastar SDK
	panel.NewHandler(panel.Deps{
		Registry: s.services.Registry,
		View:     s.services.View,
		Ingester: s.services.Ingester,
		Saver:    s.services.Bridge,
		Bus:      s.bus,
		Logger:   s.logger.WithPrefix("panel"),
	}, s.renderer).RegisterRoutes(s.humaAPI)

	humastar.AutoLinks(s.humaAPI)

	// Static files and pages
	if s.config.WebDir != "" {
		staticDir := filepath.Join(s.config.WebDir, "static")
		s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir))))
		s.mux.HandleFunc("/viewer", s.handleViewer)
	}

	s.mux.HandleFunc("/", s.handleRoot)
}

func (s *Server) backend() string {
	if s.config.Store == "" {
		return store.BackendFile
	}
	return s.config.Store
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	for _, link := range humastar.RootLinks() {
		w.Header().Add("Link", link)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"service": "plat-overlay",
		"status":  "running",
	})
}

func (s *Server) handleViewer(w http.ResponseWriter, r *http.Request) {
	templatePath := filepath.Join(s.config.WebDir, "templates", "viewer.html")
	http.ServeFile(w, r, templatePath)
}
