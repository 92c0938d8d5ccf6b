package serve

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/pdf-extractor/backend/internal/api"
	"github.com/pdf-extractor/backend/internal/config"
	"github.com/pdf-extractor/backend/internal/extract"
	"github.com/pdf-extractor/backend/internal/handoff"
	"github.com/pdf-extractor/backend/internal/pdfdoc"
	"github.com/pdf-extractor/backend/internal/preview"
	"github.com/pdf-extractor/backend/internal/query"
	"github.com/pdf-extractor/backend/internal/results"
	"github.com/pdf-extractor/backend/internal/session"
	"github.com/pdf-extractor/backend/internal/storage"
	"github.com/pdf-extractor/backend/internal/upload"
	"github.com/pdf-extractor/backend/internal/version"
	"github.com/pdf-extractor/backend/internal/web"
)

// excerptRunes bounds the text sample the mock extractor attaches.
const excerptRunes = 280

// orphanBlobAge is how long an unreferenced blob may stay in the store.
const orphanBlobAge = time.Minute

// Server is the assembled service.
type Server struct {
	Echo     *echo.Echo
	Sessions *session.Manager
	Previews *preview.Manager
	Handoffs handoff.Store
	Results  results.Store
	Embedded bool

	cfg     *config.AppConfig
	log     hclog.Logger
	closers []func() error
}

// NewServer builds every component described by cfg.
func NewServer(ctx context.Context, cfg *config.AppConfig, log hclog.Logger) (*Server, error) {
	s := &Server{cfg: cfg, log: log, Embedded: web.HasEmbeddedFiles()}

	blobs, err := storage.NewLocalStore(cfg.Storage.UploadsDirectory)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	s.Previews = preview.NewManager(preview.Config{
		Mode:              preview.Mode(cfg.Preview.Mode),
		FallbackViewerURL: cfg.Preview.FallbackViewerURL,
		Fetch: preview.FetcherConfig{
			RelayURL:   cfg.Preview.RelayURL,
			Timeout:    time.Duration(cfg.Preview.FetchTimeoutSeconds) * time.Second,
			MaxRetries: uint64(cfg.Preview.MaxRetries),
			MaxBytes:   int64(cfg.Preview.MaxRemoteSizeMB) * 1024 * 1024,
		},
	}, blobs, log.Named("preview"))
	s.closers = append(s.closers, func() error { s.Previews.ReleaseAll(); return nil })

	extractor := newExtractor(cfg, blobs, log.Named("extract"))

	if s.Handoffs, err = newHandoffStore(ctx, cfg); err != nil {
		s.Close()
		return nil, err
	}

	if cfg.Storage.ResultsDatabase != "" {
		duck, err := results.NewDuckStore(cfg.Storage.ResultsDatabase, results.DuckOptions{
			MemoryLimit: cfg.Advanced.DuckDBMemoryLimit,
			Threads:     cfg.Advanced.DuckDBThreads,
		}, log.Named("results"))
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to open results database: %w", err)
		}
		s.Results = duck
	} else {
		s.Results = results.NewMemoryStore()
	}
	s.closers = append(s.closers, s.Results.Close)

	deps := session.Deps{
		Blobs:     blobs,
		Previews:  s.Previews,
		Extractor: extractor,
		Handoffs:  s.Handoffs,
		Results:   s.Results,
		Limits: upload.Limits{
			MaxFiles:    cfg.Uploads.MaxFiles,
			MaxFileSize: cfg.MaxFileSize(),
			MediaType:   cfg.Uploads.MediaType,
		},
		Flow: query.Config{Timeout: time.Duration(cfg.Extraction.TimeoutSeconds) * time.Second},
	}
	if cfg.Uploads.InspectContent {
		deps.Inspector = pdfdoc.NewInspector()
	}
	s.Sessions = session.NewManager(deps, cfg.Sessions.MaxSessions, log.Named("session"))
	// Sessions go first so their handles and blobs are released while the
	// stores are still open.
	s.closers = append([]func() error{func() error { s.Sessions.Close(); return nil }}, s.closers...)

	s.Echo = s.newEcho()
	return s, nil
}

func newExtractor(cfg *config.AppConfig, blobs storage.Store, log hclog.Logger) extract.Extractor {
	if cfg.Extraction.Backend == "http" {
		return extract.NewHTTP(extract.HTTPConfig{
			Endpoint:   cfg.Extraction.Endpoint,
			Timeout:    time.Duration(cfg.Extraction.TimeoutSeconds) * time.Second,
			MaxRetries: uint64(cfg.Extraction.MaxRetries),
		}, log)
	}
	return extract.NewMock(extract.MockConfig{
		Delay:       time.Duration(cfg.Extraction.MockDelayMillis) * time.Millisecond,
		Concurrency: cfg.Extraction.Concurrency,
		SampleRunes: excerptRunes,
	}, blobs, log)
}

func newHandoffStore(ctx context.Context, cfg *config.AppConfig) (handoff.Store, error) {
	if cfg.Handoff.Backend != "redis" {
		return handoff.NewMemoryStore(cfg.HandoffTTL()), nil
	}
	store, err := handoff.NewRedisStore(ctx, handoff.RedisConfig{
		Addr:     cfg.Handoff.RedisAddr,
		Password: cfg.Handoff.RedisPassword,
		DB:       cfg.Handoff.RedisDB,
		PoolSize: 10,
		TTL:      cfg.HandoffTTL(),
	})
	if err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Server) newEcho() *echo.Echo {
	cfg := s.cfg
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = api.NewErrorHandler(s.log.Named("api"), cfg.Advanced.LogLevel == "debug")

	httpLog := s.log.Named("http")
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			if !cfg.Advanced.EnableRequestLogging {
				return true
			}
			path := c.Request().URL.Path
			return path == "/api/health" ||
				strings.HasPrefix(path, "/api/preview/")
		},
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				httpLog.Warn("request", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency, "error", v.Error)
				return nil
			}
			httpLog.Info("request", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency)
			return nil
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 1024 * 4,
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			httpLog.Error("panic recovered", "uri", c.Request().RequestURI, "error", err, "stack", string(stack))
			return err
		},
	}))

	e.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{
		Timeout: time.Duration(cfg.Server.ReadTimeout) * time.Second,
		Skipper: func(c echo.Context) bool {
			return skipsTimeout(c.Request().URL.Path)
		},
		ErrorMessage: "Request timeout",
	}))

	if cfg.Advanced.EnableCompression {
		e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
			Level: cfg.Advanced.CompressionLevel,
			Skipper: func(c echo.Context) bool {
				path := c.Request().URL.Path
				return strings.HasSuffix(path, "/events") ||
					strings.HasPrefix(path, "/api/preview/")
			},
		}))
	}

	e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))

	if cfg.Server.EnableCORS {
		e.Use(middleware.CORSWithConfig(corsConfig(cfg, s.Embedded)))
	}

	api.RegisterRoutes(e, api.NewHandlers(&api.Dependencies{
		Sessions: s.Sessions,
		Previews: s.Previews,
		Handoffs: s.Handoffs,
		Results:  s.Results,
		Version:  version.Version,
		Logger:   s.log.Named("api"),
	}))

	if s.Embedded {
		if err := web.RegisterStaticRoutes(e); err != nil {
			s.log.Warn("failed to register static routes", "error", err)
		}
	}
	return e
}

// skipsTimeout reports whether a route may outlive the request timeout.
// Opening a preview spans the whole remote fetch budget.
func skipsTimeout(path string) bool {
	return strings.HasSuffix(path, "/files") ||
		strings.HasSuffix(path, "/events") ||
		strings.HasSuffix(path, "/preview") ||
		strings.HasPrefix(path, "/api/preview/") ||
		strings.HasSuffix(path, "/export.xlsx")
}

func corsConfig(cfg *config.AppConfig, embedded bool) middleware.CORSConfig {
	methods := []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}
	headers := []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept}

	if !embedded {
		// Development mode - only allow the local frontend dev servers
		return middleware.CORSConfig{
			AllowOrigins: []string{
				"http://localhost:5173", "http://127.0.0.1:5173",
				"http://localhost:3000", "http://127.0.0.1:3000",
			},
			AllowMethods:  methods,
			AllowHeaders:  headers,
			ExposeHeaders: []string{echo.HeaderContentDisposition},
		}
	}

	var origins []string
	for _, o := range strings.Split(cfg.Server.AllowOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return middleware.CORSConfig{
		AllowOrigins:  origins,
		AllowMethods:  methods,
		AllowHeaders:  headers,
		ExposeHeaders: []string{echo.HeaderContentDisposition},
	}
}

// Sweep discards idle sessions, prunes old result sets and expired
// hand-offs.
func (s *Server) Sweep(ctx context.Context) {
	s.Sessions.CleanupOldSessions(s.cfg.SessionTimeout())
	s.Sessions.PurgeOrphanBlobs(orphanBlobAge)

	if hours := s.cfg.Sessions.ResultRetentionHours; hours > 0 {
		cutoff := time.Now().Add(-time.Duration(hours) * time.Hour)
		n, err := s.Results.Prune(ctx, cutoff)
		if err != nil {
			s.log.Warn("failed to prune result sets", "error", err)
		} else if n > 0 {
			s.log.Info("pruned result sets", "count", n)
		}
	}

	if sweeper, ok := s.Handoffs.(interface{ Sweep() int }); ok {
		if n := sweeper.Sweep(); n > 0 {
			s.log.Debug("expired hand-offs removed", "count", n)
		}
	}
}

// RunCleanup sweeps on the configured interval until ctx is done.
func (s *Server) RunCleanup(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.CleanupInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Close releases every session and closes the stores.
func (s *Server) Close() error {
	var result *multierror.Error
	for _, c := range s.closers {
		if err := c(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	s.closers = nil
	if closer, ok := s.Handoffs.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
