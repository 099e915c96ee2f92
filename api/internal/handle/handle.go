package handle

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"dents-inspector/api/internal/damage"
	"dents-inspector/api/internal/metrics"
	"dents-inspector/api/internal/plds"
	"dents-inspector/api/internal/taxonomy"
	"dents-inspector/api/internal/vision"
)

type Inspector interface {
	Inspect(ctx context.Context, archivePath string, backend vision.Client) ([]damage.Detection, error)
}

type Translator interface {
	Translate(ctx context.Context, in []damage.Detection) ([]damage.Enriched, error)
}

type Codec interface {
	Decode(ctx context.Context, s string) (plds.Decoded, error)
	CreateFrom(ctx context.Context, s string) (plds.Record, error)
}

type Lister interface {
	ListAll(ctx context.Context, cat taxonomy.Category) ([]taxonomy.Entry, error)
}

type Instructions interface {
	Build(ctx context.Context) (string, error)
}

type Pinger interface {
	PingContext(ctx context.Context) error
}

// Deps are the collaborators of the HTTP API. Metrics and Log may be nil.
type Deps struct {
	Engines      *vision.Engines
	Inspector    Inspector
	Translator   Translator
	Codec        Codec
	Taxonomy     Lister
	Instructions Instructions
	DB           Pinger
	Metrics      *metrics.Metrics
	Log          *zap.Logger

	// UploadDir holds uploaded archives while they are inspected; empty
	// means the system temp dir.
	UploadDir      string
	MaxUploadBytes int64
	Timeout        time.Duration
}

type Handle struct {
	Deps
}

const (
	defaultTimeout   = 180 * time.Second
	defaultMaxUpload = 256 << 20
)

func New(d Deps) *Handle {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Timeout <= 0 {
		d.Timeout = defaultTimeout
	}
	if d.MaxUploadBytes <= 0 {
		d.MaxUploadBytes = defaultMaxUpload
	}
	return &Handle{Deps: d}
}

// Routes returns the API mux wrapped with request id, logging and metrics.
func (h *Handle) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.Health)
	mux.HandleFunc("POST /v1/inspect", h.Inspect)
	mux.HandleFunc("GET /v1/taxonomy", h.ListTaxonomy)
	mux.HandleFunc("GET /v1/plds/{code}", h.DecodePLDS)
	mux.HandleFunc("POST /v1/plds", h.CreatePLDS)
	mux.HandleFunc("GET /v1/instructions", h.Instruction)
	if h.Metrics != nil {
		mux.Handle("GET /metrics", h.Metrics.Handler())
	}
	return h.middleware(mux)
}

func (h *Handle) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if h.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.DB.PingContext(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("db: not ok\n" + err.Error()))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// deadline reads X-Request-Timeout or ?timeoutSec= (seconds).
func (h *Handle) deadline(r *http.Request) time.Duration {
	if ts := r.Header.Get("X-Request-Timeout"); ts != "" {
		if v, _ := strconv.Atoi(ts); v > 0 {
			return time.Duration(v) * time.Second
		}
	} else if ts := r.URL.Query().Get("timeoutSec"); ts != "" {
		if v, _ := strconv.Atoi(ts); v > 0 {
			return time.Duration(v) * time.Second
		}
	}
	return h.Timeout
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func writeError(w http.ResponseWriter, code int, kind, msg string) {
	writeJSON(w, code, errorBody{Error: msg, Kind: kind})
}
