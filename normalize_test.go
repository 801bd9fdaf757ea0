package relmap

import (
	"bytes"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type event struct {
	ID         int
	Label      string
	HappenedAt time.Time
}

func TestNormalizeEntityRendersDatetime(t *testing.T) {
	e := &event{
		ID:         7,
		Label:      "deploy",
		HappenedAt: time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC),
	}
	m, err := Normalize(e)
	require.NoError(t, err)
	assert.Equal(t, Mapping{
		"id":          7,
		"label":       "deploy",
		"happened_at": "2024-03-01 12:30:00",
	}, m)
}

func TestNormalizeListPreservesOrderAndLength(t *testing.T) {
	in := []*event{
		{ID: 2, Label: "b"},
		{ID: 1, Label: "a"},
		{ID: 3, Label: "c"},
	}
	out, err := Normalize(in)
	require.NoError(t, err)
	list := out.([]any)
	require.Len(t, list, len(in))
	for i, e := range in {
		assert.Equal(t, e.ID, list[i].(Mapping)["id"])
	}

	empty, err := Normalize([]*event{})
	require.NoError(t, err)
	assert.Empty(t, empty.([]any))
}

func TestNormalizeFlatRowNoMerging(t *testing.T) {
	r := Row{
		Columns: []string{"name", "total"},
		Values:  []any{"a", int64(3)},
	}
	m, err := Normalize(r)
	require.NoError(t, err)
	assert.Equal(t, Mapping{"name": "a", "total": int64(3)}, m)
}

func TestNormalizeJoinedRowMergesLaterWins(t *testing.T) {
	r := Row{
		Joined: true,
		Entities: []any{
			&event{ID: 1, Label: "first"},
			&event{ID: 2, Label: "second"},
		},
	}
	m, err := Normalize(r)
	require.NoError(t, err)
	merged := m.(Mapping)
	assert.Equal(t, 2, merged["id"])
	assert.Equal(t, "second", merged["label"])
}

func TestNormalizeUnexecutedQueryIsMisuse(t *testing.T) {
	var buf bytes.Buffer
	n := NewNormalizer(zerolog.New(&buf), false)

	out, err := n.Normalize(&Query{})
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.Contains(t, buf.String(), `"reason":"unexecuted_query"`)

	strict := NewNormalizer(zerolog.New(&buf), true)
	_, err = strict.Normalize(&Query{})
	assert.ErrorIs(t, err, ErrUnexecutedQuery)
}

func TestNormalizeNil(t *testing.T) {
	out, err := Normalize(nil)
	require.NoError(t, err)
	assert.Nil(t, out)
}
