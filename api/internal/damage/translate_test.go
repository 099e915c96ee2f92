package damage_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dents-inspector/api/internal/damage"
	"dents-inspector/api/internal/plds"
	"dents-inspector/api/internal/store"
	"dents-inspector/api/internal/store/storetest"
)

func newTranslator(t *testing.T, known ...string) *damage.Translator {
	t.Helper()
	db := storetest.OpenSeeded(t)
	codec := plds.NewCodec(store.NewPLDSRepo(db), store.NewTaxonomyRepo(db), nil)
	for _, c := range known {
		_, err := codec.CreateFrom(context.Background(), c)
		require.NoError(t, err)
	}
	return damage.NewTranslator(codec, nil)
}

func TestTranslateDropsUnknownKeepsOrder(t *testing.T) {
	tr := newTranslator(t, "1->2->3->1", "3->1->1")

	in := []damage.Detection{
		{Photo: "a.jpg", Position: damage.Position{TopY: 1, BottomY: 2, LeftX: 3, RightX: 4}, PLDS: "3->1->1"},
		{Photo: "b.jpg", PLDS: "9->9->9->9"},
		{Photo: "c.jpg", PLDS: "not-a-code"},
		{Photo: "d.jpg", Position: damage.Position{TopY: 5}, PLDS: "1->2->3->1"},
	}
	out, err := tr.Translate(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, "a.jpg", out[0].Photo)
	assert.Equal(t, in[0].Position, out[0].Position)
	assert.Equal(t, "hood", out[0].PLDS.Part)
	assert.Nil(t, out[0].PLDS.Severity)

	assert.Equal(t, "d.jpg", out[1].Photo)
	require.NotNil(t, out[1].PLDS.Severity)
	assert.Equal(t, "small", *out[1].PLDS.Severity)
}

func TestTranslateOneKnownOneUnknown(t *testing.T) {
	tr := newTranslator(t, "1->2->3->1")
	out, err := tr.Translate(context.Background(), []damage.Detection{
		{Photo: "a.jpg", PLDS: "1->2->3->2"},
		{Photo: "b.jpg", PLDS: "1->2->3->1"},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "b.jpg", out[0].Photo)

	b, err := json.Marshal(out[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"photo":"b.jpg","position":{"topY":0,"bottomY":0,"leftX":0,"rightX":0},
		"plds":{"part":"front-bumper","location":"center-rear","damage_type":"crack","severity":"small"}}`, string(b))
}

func TestTranslateEmpty(t *testing.T) {
	out, err := newTranslator(t).Translate(context.Background(), nil)
	require.NoError(t, err)
	assert.NotNil(t, out)
	assert.Empty(t, out)
}

type racyCodec struct{ err error }

func (racyCodec) Exists(context.Context, string) (bool, error) { return true, nil }
func (r racyCodec) Decode(context.Context, string) (plds.Decoded, error) {
	return plds.Decoded{}, r.err
}

func TestTranslateRowVanished(t *testing.T) {
	tr := damage.NewTranslator(racyCodec{err: plds.ErrNotFound}, nil)
	out, err := tr.Translate(context.Background(), []damage.Detection{{PLDS: "1->2->3"}})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestTranslateStorageError(t *testing.T) {
	boom := errors.New("db down")
	tr := damage.NewTranslator(racyCodec{err: boom}, nil)
	_, err := tr.Translate(context.Background(), []damage.Detection{{PLDS: "1->2->3"}})
	assert.ErrorIs(t, err, boom)
}
