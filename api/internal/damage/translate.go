package damage

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"dents-inspector/api/internal/plds"
)

// Codec is the subset of plds.Codec the translator needs.
type Codec interface {
	Exists(ctx context.Context, s string) (bool, error)
	Decode(ctx context.Context, s string) (plds.Decoded, error)
}

type Translator struct {
	codec Codec
	log   *zap.Logger
}

func NewTranslator(codec Codec, log *zap.Logger) *Translator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Translator{codec: codec, log: log}
}

// Translate replaces each detection's code with its labels. Detections whose
// code is unknown are model noise and are dropped; order is preserved.
func (t *Translator) Translate(ctx context.Context, in []Detection) ([]Enriched, error) {
	out := make([]Enriched, 0, len(in))
	for _, d := range in {
		ok, err := t.codec.Exists(ctx, d.PLDS)
		if err != nil {
			return nil, err
		}
		if !ok {
			t.log.Debug("dropping unknown plds", zap.String("photo", d.Photo), zap.String("plds", d.PLDS))
			continue
		}
		dec, err := t.codec.Decode(ctx, d.PLDS)
		if errors.Is(err, plds.ErrNotFound) {
			// removed between Exists and Decode
			t.log.Debug("plds vanished during translation", zap.String("plds", d.PLDS))
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, Enriched{Photo: d.Photo, Position: d.Position, PLDS: dec})
	}
	return out, nil
}
