package vision

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubClient struct{ name string }

func (s stubClient) Name() string  { return s.name }
func (s stubClient) Model() string { return s.name + "-model" }
func (s stubClient) Submit(context.Context, string, []Item) (string, error) {
	return "[]", nil
}

func TestEnginesGet(t *testing.T) {
	e := &Engines{Gemini: stubClient{"gemini"}, OpenAI: stubClient{"gpt"}, Default: "gemini"}

	c, err := e.Get("")
	require.NoError(t, err)
	assert.Equal(t, "gemini", c.Name())

	c, err = e.Get("OpenAI")
	require.NoError(t, err)
	assert.Equal(t, "gpt", c.Name())

	_, err = e.Get("claude")
	assert.Error(t, err)

	_, err = (&Engines{Default: "gpt"}).Get("")
	assert.Error(t, err, "unconfigured backend must not be returned as nil")

	assert.Equal(t, []string{"gemini", "gpt"}, e.Names())
}

func TestManager(t *testing.T) {
	m := NewManager(stubClient{"gemini"})
	assert.Equal(t, "gemini", m.Get(1).Name())

	m.Set(1, stubClient{"gpt"})
	assert.Equal(t, "gpt", m.Get(1).Name())
	assert.Equal(t, "gemini", m.Get(2).Name())

	m.Reset(1)
	assert.Equal(t, "gemini", m.Get(1).Name())
}

func TestAPIErrorTemporary(t *testing.T) {
	assert.True(t, (&APIError{StatusCode: 429}).Temporary())
	assert.True(t, (&APIError{StatusCode: 503}).Temporary())
	assert.False(t, (&APIError{StatusCode: 401}).Temporary())
	assert.False(t, (&APIError{StatusCode: 400}).Temporary())
}

func TestRetry(t *testing.T) {
	old := BackoffStep
	BackoffStep = time.Millisecond
	t.Cleanup(func() { BackoffStep = old })

	transient := &APIError{Backend: "x", StatusCode: 503}
	isTemp := func(err error) bool {
		var ae *APIError
		return errors.As(err, &ae) && ae.Temporary()
	}

	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		err := Retry(context.Background(), 3, isTemp, func(context.Context) error {
			calls++
			if calls < 3 {
				return transient
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("stops on permanent error", func(t *testing.T) {
		calls := 0
		err := Retry(context.Background(), 5, isTemp, func(context.Context) error {
			calls++
			return &APIError{StatusCode: 401}
		})
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("bounded", func(t *testing.T) {
		calls := 0
		err := Retry(context.Background(), 2, isTemp, func(context.Context) error {
			calls++
			return transient
		})
		assert.ErrorIs(t, err, transient)
		assert.Equal(t, 2, calls)
	})
}

func TestComplete(t *testing.T) {
	err := Complete(context.Background(), 10*time.Millisecond, "gpt", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, ErrTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	boom := errors.New("boom")
	err = Complete(context.Background(), 0, "gpt", func(context.Context) error { return boom })
	assert.ErrorIs(t, err, ErrBackend)
	assert.ErrorIs(t, err, boom)

	up := Complete(context.Background(), 0, "gemini", func(context.Context) error {
		return errors.Join(ErrUploadFailed, boom)
	})
	assert.ErrorIs(t, up, ErrUploadFailed)
	assert.NotErrorIs(t, up, ErrBackend)

	assert.NoError(t, Complete(context.Background(), 0, "gpt", func(context.Context) error { return nil }))
}
