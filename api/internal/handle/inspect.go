package handle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"dents-inspector/api/internal/damage"
	"dents-inspector/api/internal/inspect"
)

// Inspect accepts a multipart upload with an "archive" file and an optional
// "llm_name" field and replies with the translated damage report.
func (h *Handle) Inspect(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) || r.ContentLength > h.MaxUploadBytes {
			writeError(w, http.StatusRequestEntityTooLarge, "too_large", "archive exceeds upload limit")
			return
		}
		writeError(w, http.StatusBadRequest, "bad_request", "bad multipart form: "+err.Error())
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	if h.Engines == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "no model backend configured")
		return
	}
	backend, err := h.Engines.Get(r.FormValue("llm_name"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	src, fh, err := r.FormFile("archive")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "missing archive file")
		return
	}
	defer src.Close()

	path, err := h.saveUpload(src, fh.Filename)
	if err != nil {
		h.Log.Error("save upload", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "cannot store upload")
		return
	}
	defer os.Remove(path)

	ctx, cancel := context.WithTimeout(r.Context(), h.deadline(r))
	defer cancel()

	dets, err := h.Inspector.Inspect(ctx, path, backend)
	if err != nil {
		code := statusFor(err)
		writeError(w, code, inspect.Result(err), "inspect error: "+err.Error())
		return
	}
	out, err := h.Translator.Translate(ctx, dets)
	if err != nil {
		h.Log.Error("translate detections", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "translate error: "+err.Error())
		return
	}
	h.Metrics.ObserveTranslation(len(out), len(dets)-len(out))

	writeJSON(w, http.StatusOK, damage.Report{
		Engine:  backend.Name(),
		Model:   backend.Model(),
		Damages: out,
	})
}

// saveUpload copies the upload to a temp file that keeps the client's file
// name as suffix, so the archive format can be told from it.
func (h *Handle) saveUpload(src io.Reader, name string) (string, error) {
	dst, err := os.CreateTemp(h.UploadDir, "upload-*-"+filepath.Base(filepath.Clean("/"+name)))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(dst.Name())
		return "", fmt.Errorf("copy upload: %w", err)
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(dst.Name())
		return "", err
	}
	return dst.Name(), nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, inspect.ErrUnsupportedFormat),
		errors.Is(err, inspect.ErrCorruptArchive),
		errors.Is(err, inspect.ErrNoImages):
		return http.StatusBadRequest
	case errors.Is(err, inspect.ErrFileNotFound):
		return http.StatusNotFound
	case errors.Is(err, inspect.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, inspect.ErrUploadFailed),
		errors.Is(err, inspect.ErrBackend),
		errors.Is(err, inspect.ErrMalformedResponse):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
