package httpapi

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"

	"github.com/jasonAVM/Map-Viewer/internal/geo"
	"github.com/jasonAVM/Map-Viewer/internal/mapconfig"
	"github.com/jasonAVM/Map-Viewer/internal/metrics"
	"github.com/jasonAVM/Map-Viewer/internal/pyramid"
)

// Handler serves the local preview: the viewer, its tiles and a small JSON
// API over the generated configuration and the pyramids on disk.
type Handler struct {
	log      zerolog.Logger
	webDir   string
	tilesDir string
	rpm      int
	metrics  *metrics.Metrics
}

type Options struct {
	WebDir   string
	TilesDir string
	// APIRequestsPerMinute limits /api per client IP. Zero disables it.
	APIRequestsPerMinute int
	Metrics              *metrics.Metrics
}

func NewHandler(log zerolog.Logger, opts Options) *Handler {
	web := opts.WebDir
	if web == "" {
		web = "web"
	}
	tiles := opts.TilesDir
	if tiles == "" {
		tiles = "tiles"
	}
	return &Handler{
		log:      log,
		webDir:   web,
		tilesDir: tiles,
		rpm:      opts.APIRequestsPerMinute,
		metrics:  opts.Metrics,
	}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))
	r.Use(h.accessLog)

	// Health
	r.Get("/healthz", h.handleHealthz)
	r.Get("/readyz", h.handleReadyZ)
	r.Method(http.MethodGet, "/metrics", h.metrics.Handler())

	// Viewer and tiles, laid out as on the bucket so ../tiles resolves.
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/web/", http.StatusFound)
	})
	r.Get("/web", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/web/", http.StatusMovedPermanently)
	})
	r.Handle("/web/*", http.StripPrefix("/web/", http.FileServer(http.Dir(h.webDir))))
	r.Handle("/tiles/*", http.StripPrefix("/tiles/", noDirListing(http.FileServer(http.Dir(h.tilesDir)))))

	// API
	r.Route("/api", func(r chi.Router) {
		if h.rpm > 0 {
			r.Use(h.rateLimit(h.rpm, time.Minute))
		}
		r.Route("/v1", func(r chi.Router) {
			r.Get("/config", h.handleGetConfig)
			r.Route("/layers", func(r chi.Router) {
				r.Get("/", h.handleListLayers)
				r.Get("/{name}", h.handleGetLayer)
			})
		})
	})

	return r
}

func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		dur := time.Since(start)
		h.metrics.ObserveHTTPRequest(r.Method, routePattern(r), ww.Status(), dur)
		h.log.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Int64("duration_ms", dur.Milliseconds()).
			Msg("http_request")
	})
}

// routePattern keeps the metrics path label bounded: tile paths collapse to
// their route.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

func (h *Handler) rateLimit(limit int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(
		limit,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "60")
			h.writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests", nil)
		}),
	)
}

// noDirListing turns directory requests into 404s.
func noDirListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p := r.URL.Path; p == "" || p[len(p)-1] == '/' {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, msg string, details map[string]any) {
	resp := map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": msg,
		},
	}
	if details != nil {
		resp["error"].(map[string]any)["details"] = details
	}
	h.writeJSON(w, status, resp)
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) handleReadyZ(w http.ResponseWriter, r *http.Request) {
	if _, err := h.loadConfig(); err != nil {
		code, msg := configProblem(err)
		h.writeError(w, http.StatusServiceUnavailable, code, msg, map[string]any{"error": err.Error()})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"ready": true})
}

func (h *Handler) loadConfig() (mapconfig.Config, error) {
	return mapconfig.Load(filepath.Join(h.webDir, mapconfig.JSONPath))
}

func configProblem(err error) (code, msg string) {
	if errors.Is(err, fs.ErrNotExist) {
		return "config_not_found", "viewer configuration has not been generated"
	}
	return "config_invalid", "viewer configuration is invalid"
}

func (h *Handler) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.loadConfig()
	if err != nil {
		code, msg := configProblem(err)
		status := http.StatusNotFound
		if code == "config_invalid" {
			h.log.Error().Err(err).Msg("load viewer config failed")
			status = http.StatusInternalServerError
		}
		h.writeError(w, status, code, msg, map[string]any{"error": err.Error()})
		return
	}
	h.writeJSON(w, http.StatusOK, cfg)
}

type coverageView struct {
	Zoom     int     `json:"zoom"`
	Present  int     `json:"present"`
	Expected int64   `json:"expected"`
	Ratio    float64 `json:"ratio"`
}

type layerView struct {
	Name       string         `json:"name"`
	Configured bool           `json:"configured"`
	Missing    bool           `json:"missing"`
	URL        string         `json:"url,omitempty"`
	Bounds     *geo.Bounds    `json:"bounds"`
	Zoom       *geo.ZoomRange `json:"zoom"`
	Tiles      int            `json:"tiles"`
	Bytes      int64          `json:"bytes"`
	Coverage   []coverageView `json:"coverage,omitempty"`
}

func toLayerView(rep pyramid.Report, cfg mapconfig.Config, withCoverage bool) layerView {
	v := layerView{
		Name:       rep.Layer,
		Configured: rep.Configured,
		Missing:    rep.Missing(),
		Bounds:     rep.Bounds,
		Zoom:       rep.Zoom,
		Tiles:      rep.Tiles,
		Bytes:      rep.Bytes,
	}
	if l, ok := cfg.Layer(rep.Layer); ok {
		v.URL = l.URL
	}
	if withCoverage {
		for _, c := range rep.Coverage {
			v.Coverage = append(v.Coverage, coverageView{
				Zoom:     c.Zoom,
				Present:  c.Present,
				Expected: c.Expected,
				Ratio:    c.Ratio(),
			})
		}
	}
	return v
}

// inspect lists layers even before the first generate: a missing config
// only means nothing is configured yet.
func (h *Handler) inspect(w http.ResponseWriter, r *http.Request) ([]pyramid.Report, mapconfig.Config, bool) {
	cfg, err := h.loadConfig()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		h.log.Error().Err(err).Msg("load viewer config failed")
		h.writeError(w, http.StatusInternalServerError, "config_invalid", "viewer configuration is invalid", map[string]any{"error": err.Error()})
		return nil, cfg, false
	}

	reports, err := pyramid.Inspect(r.Context(), cfg, h.tilesDir)
	if err != nil {
		h.log.Error().Err(err).Msg("inspect tiles failed")
		h.writeError(w, http.StatusInternalServerError, "inspect_failed", "failed to inspect tile pyramids", nil)
		return nil, cfg, false
	}
	return reports, cfg, true
}

func (h *Handler) handleListLayers(w http.ResponseWriter, r *http.Request) {
	reports, cfg, ok := h.inspect(w, r)
	if !ok {
		return
	}
	resp := make([]layerView, 0, len(reports))
	for _, rep := range reports {
		resp = append(resp, toLayerView(rep, cfg, false))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetLayer(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	reports, cfg, ok := h.inspect(w, r)
	if !ok {
		return
	}
	for _, rep := range reports {
		if rep.Layer == name {
			h.writeJSON(w, http.StatusOK, toLayerView(rep, cfg, true))
			return
		}
	}
	h.writeError(w, http.StatusNotFound, "not_found", "layer not found", map[string]any{"name": name})
}
