package gpt

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"dents-inspector/api/internal/util"
	"dents-inspector/api/internal/vision"
)

const (
	DefaultBaseURL = "https://api.openai.com"
	DefaultModel   = "gpt-4o"
)

// Engine embeds every image as a base64 data URL in one chat completion.
type Engine struct {
	APIKey      string
	model       string
	baseURL     string
	temperature float64
	timeout     time.Duration
	retries     int
	httpc       *http.Client
	log         *zap.Logger
}

type Option func(*Engine)

func WithBaseURL(u string) Option {
	return func(e *Engine) {
		if u = strings.TrimRight(strings.TrimSpace(u), "/"); u != "" {
			e.baseURL = u
		}
	}
}

// WithTimeout bounds the completion call.
func WithTimeout(d time.Duration) Option { return func(e *Engine) { e.timeout = d } }

// WithRetries sets the number of attempts for transient failures.
func WithRetries(n int) Option { return func(e *Engine) { e.retries = n } }

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithHTTPClient overrides the internal HTTP client (e.g., for custom timeouts or tracing).
func WithHTTPClient(c *http.Client) Option {
	return func(e *Engine) {
		if c != nil {
			e.httpc = c
		}
	}
}

func New(key, model string, opts ...Option) *Engine {
	if strings.TrimSpace(model) == "" {
		model = DefaultModel
	}
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
		// vision batches take long to the first byte
		ResponseHeaderTimeout: 120 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
	}
	e := &Engine{
		APIKey:      strings.TrimSpace(key),
		model:       strings.TrimSpace(model),
		baseURL:     DefaultBaseURL,
		temperature: 0.2,
		retries:     1,
		// Timeout=0: the per-call context carries the deadline
		httpc: &http.Client{Timeout: 0, Transport: tr},
		log:   zap.NewNop(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Engine) Name() string  { return "gpt" }
func (e *Engine) Model() string { return e.model }

// WithModel returns a copy of the engine bound to model m; a blank m keeps
// the current one. Used by per-chat engine selection.
func (e *Engine) WithModel(m string) vision.Client {
	c := *e
	if m = strings.TrimSpace(m); m != "" {
		c.model = m
	}
	return &c
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// buildRequest puts the instructions first as the system message and one
// user message per image, in the given order.
func (e *Engine) buildRequest(instructions string, items []vision.Item) chatRequest {
	msgs := make([]message, 0, len(items)+1)
	msgs = append(msgs, message{Role: "system", Content: instructions})
	for _, it := range items {
		mime := util.PickMIME(it.MIME, "", it.Data)
		dataURL := util.MakeDataURL(mime, base64.StdEncoding.EncodeToString(it.Data))
		label := it.Label
		if label == "" {
			label = vision.LabelFor(it.Name)
		}
		msgs = append(msgs, message{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: label},
				{Type: "image_url", ImageURL: &imageURL{URL: dataURL}},
			},
		})
	}
	temp := e.temperature
	if strings.Contains(e.model, "gpt-5") {
		temp = 1
	}
	return chatRequest{Model: e.model, Messages: msgs, Temperature: temp}
}

func (e *Engine) Submit(ctx context.Context, instructions string, items []vision.Item) (string, error) {
	if e.APIKey == "" {
		return "", fmt.Errorf("%w: OPENAI_API_KEY not set", vision.ErrBackend)
	}
	payload, err := json.Marshal(e.buildRequest(instructions, items))
	if err != nil {
		return "", fmt.Errorf("%w: encode request: %w", vision.ErrBackend, err)
	}

	var out string
	err = vision.Complete(ctx, e.timeout, e.Name(), func(ctx context.Context) error {
		return vision.Retry(ctx, e.retries, retryable, func(ctx context.Context) error {
			start := time.Now()
			txt, err := e.post(ctx, payload)
			e.log.Debug("openai completion",
				zap.String("model", e.model),
				zap.Int("images", len(items)),
				zap.Duration("took", time.Since(start)),
				zap.Error(err))
			if err != nil {
				return err
			}
			out = txt
			return nil
		})
	})
	return out, err
}

func (e *Engine) post(ctx context.Context, payload []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.APIKey)

	resp, err := e.httpc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", &vision.APIError{Backend: "openai", StatusCode: resp.StatusCode, Message: errorMessage(raw)}
	}

	var cr chatResponse
	if err := json.Unmarshal(raw, &cr); err != nil {
		return "", fmt.Errorf("openai: bad response envelope: %w; body=%s", err, truncateBytes(raw, 512))
	}
	if len(cr.Choices) == 0 {
		return "", fmt.Errorf("openai: no choices; body=%s", truncateBytes(raw, 512))
	}
	return cr.Choices[0].Message.Content, nil
}

func retryable(err error) bool {
	var ae *vision.APIError
	if errors.As(err, &ae) {
		return ae.Temporary()
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout() && !errors.Is(err, context.DeadlineExceeded)
}

// errorMessage prefers the provider's {"error":{"message":...}} text.
func errorMessage(raw []byte) string {
	var env struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &env); err == nil && strings.TrimSpace(env.Error.Message) != "" {
		return env.Error.Message
	}
	return strings.TrimSpace(truncateBytes(raw, 512))
}

func truncateBytes(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
