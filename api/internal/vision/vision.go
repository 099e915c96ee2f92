package vision

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUploadFailed = errors.New("upload failed")
	ErrBackend      = errors.New("backend error")
	ErrTimeout      = errors.New("backend timeout")
)

// Item is one image of a batch. Label is the text the model sees next to
// the image and Name is the file name detections refer back to.
type Item struct {
	Name  string
	Label string
	MIME  string
	Data  []byte
}

// Client sends one batch of images with instructions and returns the raw
// model reply text.
type Client interface {
	Name() string
	Model() string
	Submit(ctx context.Context, instructions string, items []Item) (string, error)
}

// ModelSwitcher is implemented by backends that can serve another model of
// the same provider.
type ModelSwitcher interface {
	WithModel(model string) Client
}

// LabelFor is the per-image text label sent ahead of every image.
func LabelFor(name string) string { return "Inspect this image: " + name }

// APIError is a non-successful reply from a model provider.
type APIError struct {
	Backend    string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %d: %s", e.Backend, e.StatusCode, e.Message)
}

// Temporary reports rate limiting and server-side failures.
func (e *APIError) Temporary() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// Engines holds the configured backends.
type Engines struct {
	Gemini  Client
	OpenAI  Client
	Default string
}

// Get returns the backend registered under name; empty name means Default.
func (e *Engines) Get(name string) (Client, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = strings.ToLower(e.Default)
	}
	var c Client
	switch name {
	case "gemini", "google":
		c = e.Gemini
	case "gpt", "openai":
		c = e.OpenAI
	default:
		return nil, fmt.Errorf("unknown llm_name %q; use 'gemini' or 'gpt'", name)
	}
	if c == nil {
		return nil, fmt.Errorf("llm %q is not configured", name)
	}
	return c, nil
}

// Names lists the configured backends.
func (e *Engines) Names() []string {
	var out []string
	if e.Gemini != nil {
		out = append(out, "gemini")
	}
	if e.OpenAI != nil {
		out = append(out, "gpt")
	}
	return out
}
