package inspect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"time"

	"go.uber.org/zap"

	"dents-inspector/api/internal/damage"
	"dents-inspector/api/internal/util"
	"dents-inspector/api/internal/vision"
)

// Instructions renders the system prompt sent with every batch.
type Instructions interface {
	Build(ctx context.Context) (string, error)
}

// Observer receives one call per finished inspection.
type Observer interface {
	ObserveInspection(engine, result string, images int, took time.Duration)
}

type Inspector struct {
	instr     Instructions
	log       *zap.Logger
	workspace string
	maxBytes  int64
	obs       Observer
}

type Option func(*Inspector)

// WithWorkspace extracts under dir instead of the system temp dir. Each call
// still gets its own subdirectory, which is removed afterwards; dir is not.
func WithWorkspace(dir string) Option { return func(in *Inspector) { in.workspace = dir } }

func WithLogger(l *zap.Logger) Option {
	return func(in *Inspector) {
		if l != nil {
			in.log = l
		}
	}
}

// WithMaxExtractBytes limits the total extracted size of one archive.
func WithMaxExtractBytes(n int64) Option { return func(in *Inspector) { in.maxBytes = n } }

func WithObserver(o Observer) Option { return func(in *Inspector) { in.obs = o } }

func New(instr Instructions, opts ...Option) *Inspector {
	in := &Inspector{instr: instr, log: zap.NewNop(), maxBytes: DefaultMaxExtractBytes}
	for _, o := range opts {
		o(in)
	}
	return in
}

// Inspect unpacks the archive, sends its images with the current
// instructions to backend in one request and returns the parsed detections.
// Every failure is an *Error.
func (in *Inspector) Inspect(ctx context.Context, archivePath string, backend vision.Client) ([]damage.Detection, error) {
	start := time.Now()
	var images int
	dets, err := in.inspect(ctx, archivePath, backend, &images)

	took := time.Since(start)
	engine := "none"
	if backend != nil {
		engine = backend.Name()
	}
	log := in.log.With(
		zap.String("archive", archivePath),
		zap.String("engine", engine),
		zap.Int("images", images),
		zap.Duration("took", took),
	)
	if err != nil {
		log.Warn("inspection failed", zap.String("result", Result(err)), zap.Error(err))
	} else {
		log.Info("inspection done", zap.Int("detections", len(dets)))
	}
	if in.obs != nil {
		in.obs.ObserveInspection(engine, Result(err), images, took)
	}
	return dets, err
}

func (in *Inspector) inspect(ctx context.Context, archivePath string, backend vision.Client, images *int) ([]damage.Detection, error) {
	if backend == nil {
		return nil, fail(ErrBackend, "submit", archivePath, errors.New("no backend configured"))
	}
	st, err := os.Stat(archivePath)
	if err != nil {
		return nil, fail(ErrFileNotFound, "stat", archivePath, err)
	}
	if st.IsDir() {
		return nil, fail(ErrFileNotFound, "stat", archivePath, errors.New("is a directory"))
	}
	format := DetectFormat(archivePath)
	if format == FormatUnknown {
		return nil, fail(ErrUnsupportedFormat, "detect", archivePath, nil)
	}

	dir, err := os.MkdirTemp(in.workspace, "dents-inspect-*")
	if err != nil {
		return nil, fail(ErrWorkspace, "workspace", archivePath, err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			in.log.Warn("workspace cleanup failed", zap.String("dir", dir), zap.Error(err))
		}
	}()

	if err := extract(archivePath, format, dir, in.maxBytes); err != nil {
		return nil, fail(ErrCorruptArchive, "extract "+format.String(), archivePath, err)
	}
	files, err := walk(dir)
	if err != nil {
		return nil, fail(ErrCorruptArchive, "walk", archivePath, err)
	}
	items, err := in.items(files)
	if err != nil {
		return nil, fail(ErrCorruptArchive, "read", archivePath, err)
	}
	*images = len(items)
	if len(items) == 0 {
		return nil, fail(ErrNoImages, "collect", archivePath, nil)
	}

	instructions, err := in.instr.Build(ctx)
	if err != nil {
		return nil, fail(ErrInstructions, "instructions", "", err)
	}

	reply, err := backend.Submit(ctx, instructions, items)
	if err != nil {
		return nil, fail(backendKind(err), "submit "+backend.Name(), archivePath, err)
	}
	dets, err := ParseReply(reply)
	if err != nil {
		return nil, fail(ErrMalformedResponse, "parse", archivePath, err)
	}
	return dets, nil
}

// items loads the image files in walk order. A file is named by its base
// name unless another file in the archive shares it.
func (in *Inspector) items(files []file) ([]vision.Item, error) {
	seen := make(map[string]int, len(files))
	for _, f := range files {
		seen[path.Base(f.Rel)]++
	}
	out := make([]vision.Item, 0, len(files))
	for _, f := range files {
		name := path.Base(f.Rel)
		if seen[name] > 1 {
			name = f.Rel
		}
		data, err := os.ReadFile(f.Path)
		if err != nil {
			return nil, err
		}
		mime := util.PickMIME("", util.MIMEByName(name), data)
		if !util.IsImageMIME(mime) {
			in.log.Debug("skipping non-image entry", zap.String("entry", f.Rel), zap.String("mime", mime))
			continue
		}
		out = append(out, vision.Item{
			Name:  name,
			Label: vision.LabelFor(name),
			MIME:  mime,
			Data:  data,
		})
	}
	return out, nil
}

// ParseReply extracts the detection list from a model reply, with or
// without a ```json fence around it.
func ParseReply(reply string) ([]damage.Detection, error) {
	body := util.StripCodeFences(reply)
	if body == "" {
		return nil, errors.New("empty reply")
	}
	var out []damage.Detection
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		return nil, fmt.Errorf("decode detections: %w", err)
	}
	if out == nil {
		out = []damage.Detection{}
	}
	return out, nil
}

// Result names the outcome of an inspection for logs and metrics.
func Result(err error) string {
	if err == nil {
		return "ok"
	}
	switch KindOf(err) {
	case ErrFileNotFound:
		return "file_not_found"
	case ErrUnsupportedFormat:
		return "unsupported_format"
	case ErrCorruptArchive:
		return "corrupt_archive"
	case ErrNoImages:
		return "no_images"
	case ErrInstructions:
		return "instructions"
	case ErrWorkspace:
		return "workspace"
	case ErrUploadFailed:
		return "upload_failed"
	case ErrTimeout:
		return "timeout"
	case ErrBackend:
		return "backend_error"
	case ErrMalformedResponse:
		return "malformed_response"
	default:
		return "error"
	}
}
