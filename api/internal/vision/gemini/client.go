package gemini

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// api is the slice of the Gemini SDK the engine uses.
type api interface {
	Upload(ctx context.Context, displayName, mime string, data []byte) (*genai.File, error)
	Generate(ctx context.Context, model, system string, parts []genai.Part) (*genai.GenerateContentResponse, error)
	Delete(ctx context.Context, name string) error
	Close() error
}

type sdkClient struct{ c *genai.Client }

func dialSDK(ctx context.Context, apiKey string) (api, error) {
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	return &sdkClient{c: cl}, nil
}

func (s *sdkClient) Upload(ctx context.Context, displayName, mime string, data []byte) (*genai.File, error) {
	f, err := s.c.UploadFile(ctx, "", bytes.NewReader(data), &genai.UploadFileOptions{
		DisplayName: displayName,
		MIMEType:    mime,
	})
	if err != nil {
		return nil, err
	}
	// images are normally ACTIVE at once; poll briefly otherwise
	for i := 0; f.State == genai.FileStateProcessing && i < 20; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
		if f, err = s.c.GetFile(ctx, f.Name); err != nil {
			return nil, err
		}
	}
	if f.State == genai.FileStateFailed {
		return nil, fmt.Errorf("file %s processing failed", f.Name)
	}
	return f, nil
}

func (s *sdkClient) Generate(ctx context.Context, model, system string, parts []genai.Part) (*genai.GenerateContentResponse, error) {
	m := s.c.GenerativeModel(model)
	m.SetTemperature(0.2)
	m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	return m.GenerateContent(ctx, parts...)
}

func (s *sdkClient) Delete(ctx context.Context, name string) error {
	return s.c.DeleteFile(ctx, name)
}

func (s *sdkClient) Close() error { return s.c.Close() }
