package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"dents-inspector/api/internal/damage"
	"dents-inspector/api/internal/inspect"
)

func (r *Router) acceptArchive(ctx context.Context, chatID int64, doc *tgbotapi.Document) {
	log := r.logger().With(zap.Int64("chat_id", chatID), zap.String("file", doc.FileName))

	if inspect.DetectFormat(doc.FileName) == inspect.FormatUnknown {
		r.SendError(chatID, &inspect.Error{Kind: inspect.ErrUnsupportedFormat, Op: "detect", Path: doc.FileName})
		return
	}
	if r.MaxArchiveBytes > 0 && int64(doc.FileSize) > r.MaxArchiveBytes {
		r.SendError(chatID, errTooLarge)
		return
	}
	backend := r.EngManager.Get(chatID)
	if backend == nil {
		r.send(chatID, "❌ No engine configured. Use /engine gemini or /engine gpt.")
		return
	}

	r.send(chatID, "Archive received, inspecting with "+describe(backend)+"…")

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	path, err := r.download(ctx, doc)
	if err != nil {
		log.Warn("download archive", zap.Error(err))
		r.SendError(chatID, err)
		return
	}
	defer os.Remove(path)

	dets, err := r.Inspector.Inspect(ctx, path, backend)
	if err != nil {
		r.SendError(chatID, err)
		return
	}
	out, err := r.Translator.Translate(ctx, dets)
	if err != nil {
		log.Error("translate detections", zap.Error(err))
		r.SendError(chatID, err)
		return
	}
	r.SendResult(chatID, formatReport(out))
}

// download fetches the document into DownloadDir, keeping its file name as
// suffix so the archive format stays detectable.
func (r *Router) download(ctx context.Context, doc *tgbotapi.Document) (string, error) {
	link, err := r.Bot.GetFileDirectURL(doc.FileID)
	if err != nil {
		return "", fmt.Errorf("get file: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return "", err
	}
	httpc := r.HTTP
	if httpc == nil {
		httpc = http.DefaultClient
	}
	resp, err := httpc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("download status %d: %s", resp.StatusCode, string(b))
	}

	dst, err := os.CreateTemp(r.DownloadDir, "tg-*-"+filepath.Base(filepath.Clean("/"+doc.FileName)))
	if err != nil {
		return "", err
	}
	var src io.Reader = resp.Body
	if r.MaxArchiveBytes > 0 {
		src = io.LimitReader(resp.Body, r.MaxArchiveBytes+1)
	}
	n, err := io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err == nil && r.MaxArchiveBytes > 0 && n > r.MaxArchiveBytes {
		err = errTooLarge
	}
	if err != nil {
		_ = os.Remove(dst.Name())
		return "", err
	}
	return dst.Name(), nil
}

func formatReport(out []damage.Enriched) string {
	if len(out) == 0 {
		return "✅ No damages found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "🚗 Damages found: %d\n", len(out))
	for i, d := range out {
		fmt.Fprintf(&b, "\n%d. %s: %s, %s, %s", i+1, d.Photo, d.PLDS.Part, d.PLDS.Location, d.PLDS.DamageType)
		if d.PLDS.Severity != nil {
			fmt.Fprintf(&b, " (%s)", *d.PLDS.Severity)
		}
		p := d.Position
		fmt.Fprintf(&b, "\n   box: top %g, bottom %g, left %g, right %g", p.TopY, p.BottomY, p.LeftX, p.RightX)
	}
	return b.String()
}

func userMessage(err error) string {
	switch {
	case errors.Is(err, errTooLarge):
		return "The archive is too large."
	case errors.Is(err, inspect.ErrUnsupportedFormat):
		return "Unsupported archive. Use .zip, .tar, .tar.gz or .tgz."
	case errors.Is(err, inspect.ErrCorruptArchive):
		return "The archive could not be unpacked."
	case errors.Is(err, inspect.ErrNoImages):
		return "No photos found in the archive."
	case errors.Is(err, inspect.ErrWorkspace):
		return "Temporary server problem, try again later."
	case errors.Is(err, inspect.ErrUploadFailed):
		return "Could not upload the photos to the model, try again later."
	case errors.Is(err, inspect.ErrTimeout):
		return "The model did not answer in time, try again later."
	case errors.Is(err, inspect.ErrMalformedResponse):
		return "The model answered with something I could not read, try again."
	case errors.Is(err, inspect.ErrBackend):
		return "Model error: " + err.Error()
	default:
		return "Error: " + err.Error()
	}
}
