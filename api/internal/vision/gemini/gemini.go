package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"dents-inspector/api/internal/util"
	"dents-inspector/api/internal/vision"
)

const DefaultModel = "gemini-2.5-flash"

// Engine uploads every image to the Files API and references the uploads
// from a single GenerateContent call.
type Engine struct {
	APIKey      string
	model       string
	timeout     time.Duration
	retries     int
	concurrency int
	log         *zap.Logger
	dial        func(ctx context.Context, apiKey string) (api, error)
}

type Option func(*Engine)

// WithTimeout bounds the completion call.
func WithTimeout(d time.Duration) Option { return func(e *Engine) { e.timeout = d } }

// WithRetries sets the number of attempts for transient completion failures.
func WithRetries(n int) Option { return func(e *Engine) { e.retries = n } }

// WithUploadConcurrency caps parallel uploads; 1 uploads sequentially.
func WithUploadConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

func New(apiKey, model string, opts ...Option) *Engine {
	if strings.TrimSpace(model) == "" {
		model = DefaultModel
	}
	e := &Engine{
		APIKey:      strings.TrimSpace(apiKey),
		model:       strings.TrimSpace(model),
		retries:     3,
		concurrency: 4,
		log:         zap.NewNop(),
		dial:        dialSDK,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Engine) Name() string  { return "gemini" }
func (e *Engine) Model() string { return e.model }

// WithModel returns a copy of the engine bound to model m.
func (e *Engine) WithModel(m string) vision.Client {
	c := *e
	if m = strings.TrimSpace(m); m != "" {
		c.model = m
	}
	return &c
}

func (e *Engine) Submit(ctx context.Context, instructions string, items []vision.Item) (string, error) {
	if e.APIKey == "" {
		return "", fmt.Errorf("%w: GEMINI_API_KEY is empty", vision.ErrBackend)
	}
	cl, err := e.dial(ctx, e.APIKey)
	if err != nil {
		return "", fmt.Errorf("%w: gemini client: %w", vision.ErrBackend, err)
	}
	defer cl.Close()

	files, err := e.uploadAll(ctx, cl, items)
	// remote copies are only needed for the duration of the request
	defer e.deleteAll(cl, files)
	if err != nil {
		return "", err
	}

	parts := make([]genai.Part, 0, 2*len(items))
	for i, it := range items {
		label := it.Label
		if label == "" {
			label = vision.LabelFor(it.Name)
		}
		parts = append(parts, genai.Text(label), genai.FileData{MIMEType: files[i].MIMEType, URI: files[i].URI})
	}

	var out string
	err = vision.Complete(ctx, e.timeout, e.Name(), func(ctx context.Context) error {
		return vision.Retry(ctx, e.retries, retryable, func(ctx context.Context) error {
			start := time.Now()
			resp, err := cl.Generate(ctx, e.model, instructions, parts)
			e.log.Debug("gemini completion",
				zap.String("model", e.model),
				zap.Int("images", len(items)),
				zap.Duration("took", time.Since(start)),
				zap.Error(err))
			if err != nil {
				return err
			}
			txt := allText(resp)
			if strings.TrimSpace(txt) == "" {
				return errors.New("gemini: empty response")
			}
			out = txt
			return nil
		})
	})
	return out, err
}

// uploadAll uploads items concurrently; the result is indexed like items.
// On failure the successful uploads are still returned so they can be removed.
func (e *Engine) uploadAll(ctx context.Context, cl api, items []vision.Item) ([]*genai.File, error) {
	files := make([]*genai.File, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, it := range items {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return fmt.Errorf("%w: %s: %w", vision.ErrUploadFailed, it.Name, err)
			}
			mime := util.PickMIME(it.MIME, util.MIMEByName(it.Name), it.Data)
			f, err := cl.Upload(gctx, uploadName(it.Name), mime, it.Data)
			if err != nil {
				return fmt.Errorf("%w: %s: %w", vision.ErrUploadFailed, it.Name, err)
			}
			files[i] = f
			return nil
		})
	}
	err := g.Wait()
	if err != nil {
		e.log.Error("gemini upload failed", zap.Error(err))
	}
	return files, err
}

func (e *Engine) deleteAll(cl api, files []*genai.File) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, f := range files {
		if f == nil {
			continue
		}
		if err := cl.Delete(ctx, f.Name); err != nil {
			e.log.Warn("gemini file cleanup failed", zap.String("file", f.Name), zap.Error(err))
		}
	}
}

// uploadName keeps the original file name visible in the Files API console
// while staying unique across concurrent inspections.
func uploadName(name string) string {
	return uuid.NewString()[:8] + "-" + name
}

func allText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		var b strings.Builder
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
		if b.Len() > 0 {
			return b.String()
		}
	}
	return ""
}

func retryable(err error) bool {
	var ge *googleapi.Error
	if errors.As(err, &ge) {
		return ge.Code == http.StatusTooManyRequests || ge.Code >= 500
	}
	if s, ok := status.FromError(err); ok {
		switch s.Code() {
		case codes.Unavailable, codes.ResourceExhausted, codes.Internal:
			return true
		}
	}
	return false
}
