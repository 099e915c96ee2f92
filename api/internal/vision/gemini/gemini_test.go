package gemini

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"dents-inspector/api/internal/vision"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeAPI struct {
	mu        sync.Mutex
	uploadErr map[string]error
	delay     map[string]time.Duration
	genErrs   []error
	reply     string
	uploaded  []string
	deleted   []string
	genCalls  int
	gotSystem string
	gotModel  string
	gotParts  []genai.Part
	closed    bool
}

func (f *fakeAPI) Upload(ctx context.Context, displayName, mime string, data []byte) (*genai.File, error) {
	name := displayName[9:] // strip the "xxxxxxxx-" prefix
	if d := f.delay[name]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := f.uploadErr[name]; err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploaded = append(f.uploaded, name)
	return &genai.File{Name: "files/" + name, URI: "https://files/" + name, MIMEType: mime}, nil
}

func (f *fakeAPI) Generate(_ context.Context, model, system string, parts []genai.Part) (*genai.GenerateContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.genCalls++
	f.gotModel, f.gotSystem, f.gotParts = model, system, parts
	if len(f.genErrs) > 0 {
		err := f.genErrs[0]
		f.genErrs = f.genErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{
		{Content: &genai.Content{Parts: []genai.Part{genai.Text(f.reply)}}},
	}}, nil
}

func (f *fakeAPI) Delete(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, name)
	return nil
}

func (f *fakeAPI) Close() error {
	f.closed = true
	return nil
}

func newTestEngine(f *fakeAPI, opts ...Option) *Engine {
	e := New("key", "", opts...)
	e.dial = func(context.Context, string) (api, error) { return f, nil }
	return e
}

func items(names ...string) []vision.Item {
	out := make([]vision.Item, 0, len(names))
	for _, n := range names {
		out = append(out, vision.Item{Name: n, Label: vision.LabelFor(n), Data: []byte{0xFF, 0xD8, 0xFF}})
	}
	return out
}

func TestSubmit_OrderIsExtractionOrder(t *testing.T) {
	f := &fakeAPI{
		reply: `[]`,
		delay: map[string]time.Duration{"a.jpg": 30 * time.Millisecond, "b.jpg": 10 * time.Millisecond},
	}
	e := newTestEngine(f, WithUploadConcurrency(3))

	out, err := e.Submit(context.Background(), "SYS", items("a.jpg", "b.jpg", "c.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "[]", out)

	assert.Equal(t, DefaultModel, f.gotModel)
	assert.Equal(t, "SYS", f.gotSystem)
	require.Len(t, f.gotParts, 6)
	for i, n := range []string{"a.jpg", "b.jpg", "c.jpg"} {
		assert.Equal(t, genai.Text("Inspect this image: "+n), f.gotParts[2*i])
		fd, ok := f.gotParts[2*i+1].(genai.FileData)
		require.True(t, ok)
		assert.Equal(t, "https://files/"+n, fd.URI)
		assert.Equal(t, "image/jpeg", fd.MIMEType)
	}
	assert.ElementsMatch(t, []string{"files/a.jpg", "files/b.jpg", "files/c.jpg"}, f.deleted)
	assert.True(t, f.closed)
}

func TestSubmit_UploadFailureAbortsBatch(t *testing.T) {
	f := &fakeAPI{
		reply:     `[]`,
		uploadErr: map[string]error{"b.jpg": &googleapi.Error{Code: 403, Message: "denied"}},
	}
	e := newTestEngine(f, WithUploadConcurrency(1))

	_, err := e.Submit(context.Background(), "SYS", items("a.jpg", "b.jpg", "c.jpg"))
	require.ErrorIs(t, err, vision.ErrUploadFailed)
	assert.Contains(t, err.Error(), "b.jpg")
	assert.Zero(t, f.genCalls, "no partial submission")
	assert.Equal(t, []string{"files/a.jpg"}, f.deleted, "uploaded files are removed")
}

func TestSubmit_RetriesTransient(t *testing.T) {
	old := vision.BackoffStep
	vision.BackoffStep = time.Millisecond
	t.Cleanup(func() { vision.BackoffStep = old })

	f := &fakeAPI{
		reply:   `[{"photo":"a.jpg"}]`,
		genErrs: []error{status.Error(codes.Unavailable, "busy"), &googleapi.Error{Code: 429}},
	}
	out, err := newTestEngine(f).Submit(context.Background(), "SYS", items("a.jpg"))
	require.NoError(t, err)
	assert.Equal(t, `[{"photo":"a.jpg"}]`, out)
	assert.Equal(t, 3, f.genCalls)
}

func TestSubmit_PermanentErrorIsBackendError(t *testing.T) {
	f := &fakeAPI{genErrs: []error{status.Error(codes.PermissionDenied, "bad key")}}
	_, err := newTestEngine(f).Submit(context.Background(), "SYS", items("a.jpg"))
	require.ErrorIs(t, err, vision.ErrBackend)
	assert.Equal(t, 1, f.genCalls)
	assert.Equal(t, []string{"files/a.jpg"}, f.deleted)
}

func TestSubmit_EmptyReply(t *testing.T) {
	f := &fakeAPI{reply: "  "}
	_, err := newTestEngine(f, WithRetries(1)).Submit(context.Background(), "SYS", items("a.jpg"))
	assert.ErrorIs(t, err, vision.ErrBackend)
}

func TestSubmit_NoKey(t *testing.T) {
	_, err := New("", "").Submit(context.Background(), "SYS", nil)
	assert.ErrorIs(t, err, vision.ErrBackend)
}

func TestSubmit_DialFailure(t *testing.T) {
	e := New("key", "gemini-pro")
	e.dial = func(context.Context, string) (api, error) { return nil, fmt.Errorf("no network") }
	_, err := e.Submit(context.Background(), "SYS", nil)
	assert.ErrorIs(t, err, vision.ErrBackend)
	assert.Equal(t, "gemini-pro", e.Model())
}

func TestRetryable(t *testing.T) {
	assert.True(t, retryable(&googleapi.Error{Code: 503}))
	assert.True(t, retryable(fmt.Errorf("wrapped: %w", &googleapi.Error{Code: 429})))
	assert.False(t, retryable(&googleapi.Error{Code: 400}))
	assert.True(t, retryable(status.Error(codes.ResourceExhausted, "quota")))
	assert.False(t, retryable(status.Error(codes.InvalidArgument, "bad")))
	assert.False(t, retryable(errors.New("plain")))
}

func TestAllText(t *testing.T) {
	assert.Empty(t, allText(nil))
	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{
		{Content: nil},
		{Content: &genai.Content{Parts: []genai.Part{genai.Text("```json\n"), genai.Text("[]\n```")}}},
	}}
	assert.Equal(t, "```json\n[]\n```", allText(resp))
}

func TestWithModelCopies(t *testing.T) {
	e := New("key", "")
	assert.Equal(t, DefaultModel, e.Model())

	var sw vision.ModelSwitcher = e
	other := sw.WithModel("gemini-2.5-pro")
	assert.Equal(t, "gemini-2.5-pro", other.Model())
	assert.Equal(t, DefaultModel, e.Model())
	assert.Equal(t, DefaultModel, e.WithModel("  ").Model())
}
