package handle

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"dents-inspector/api/internal/plds"
	"dents-inspector/api/internal/taxonomy"
)

// ListTaxonomy lists all four tables keyed parts, locations, damage_types and
// severities.
func (h *Handle) ListTaxonomy(w http.ResponseWriter, r *http.Request) {
	out := make(map[string][]taxonomy.Entry, len(taxonomy.Categories()))
	for _, cat := range taxonomy.Categories() {
		entries, err := h.Taxonomy.ListAll(r.Context(), cat)
		if err != nil {
			h.Log.Error("list taxonomy", zap.String("category", string(cat)), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal", err.Error())
			return
		}
		out[jsonKey(cat)] = entries
	}
	writeJSON(w, http.StatusOK, out)
}

func jsonKey(cat taxonomy.Category) string {
	switch cat {
	case taxonomy.Part:
		return "parts"
	case taxonomy.Location:
		return "locations"
	case taxonomy.DamageType:
		return "damage_types"
	default:
		return "severities"
	}
}

func (h *Handle) DecodePLDS(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	dec, err := h.Codec.Decode(r.Context(), code)
	if err != nil {
		h.writePLDSError(w, code, err)
		return
	}
	writeJSON(w, http.StatusOK, dec)
}

type createRequest struct {
	PLDS string `json:"plds"`
}

type createResponse struct {
	ID     int64        `json:"id"`
	PLDS   string       `json:"plds"`
	Labels plds.Decoded `json:"labels"`
}

// CreatePLDS registers a code after checking every id it references.
func (h *Handle) CreatePLDS(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "bad json: "+err.Error())
		return
	}
	rec, err := h.Codec.CreateFrom(r.Context(), req.PLDS)
	if err != nil {
		h.writePLDSError(w, req.PLDS, err)
		return
	}
	h.Metrics.ObservePLDSCreated()
	dec, err := h.Codec.Decode(r.Context(), rec.Code.String())
	if err != nil {
		h.writePLDSError(w, req.PLDS, err)
		return
	}
	writeJSON(w, http.StatusCreated, createResponse{ID: rec.ID, PLDS: rec.Code.String(), Labels: dec})
}

func (h *Handle) writePLDSError(w http.ResponseWriter, code string, err error) {
	var ref *plds.ReferenceNotFoundError
	switch {
	case errors.Is(err, plds.ErrInvalidFormat):
		writeError(w, http.StatusBadRequest, "invalid_format", err.Error())
	case errors.As(err, &ref):
		writeError(w, http.StatusUnprocessableEntity, "reference_not_found", err.Error())
	case errors.Is(err, plds.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	default:
		h.Log.Error("plds", zap.String("plds", code), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}

func (h *Handle) Instruction(w http.ResponseWriter, r *http.Request) {
	text, err := h.Instructions.Build(r.Context())
	if err != nil {
		h.Log.Error("build instructions", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(text))
}
