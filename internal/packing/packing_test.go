package packing

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/dockv/internal/format"
)

func TestPackRowRoundTrip(t *testing.T) {
	p := NewSchemaPacking(1, []format.ColumnID{10, 11, 12})
	values := map[format.ColumnID][]byte{
		10: format.AppendPrimitiveValue(nil, format.StringValue("x")),
		12: format.AppendPrimitiveValue(nil, format.Int64Value(7)),
	}
	blob := p.PackRow(values)

	v, ok, err := p.GetValue(10, blob)
	require.NoError(t, err)
	require.True(t, ok)
	got, err := format.DecodePrimitiveValue(v)
	require.NoError(t, err)
	require.Equal(t, "x", got.Str)

	// Absent from the write, present in the packing: stored NULL.
	v, ok, err = p.GetValue(11, blob)
	require.NoError(t, err)
	require.True(t, ok)
	require.Empty(t, v)

	v, ok, err = p.GetValue(12, blob)
	require.NoError(t, err)
	require.True(t, ok)
	got, err = format.DecodePrimitiveValue(v)
	require.NoError(t, err)
	require.EqualValues(t, 7, got.I64)

	// Not part of the packing at all.
	_, ok, err = p.GetValue(99, blob)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGetValueTruncatedBlob(t *testing.T) {
	p := NewSchemaPacking(1, []format.ColumnID{10, 11})
	_, _, err := p.GetValue(10, []byte{0x01})
	require.ErrorIs(t, err, format.ErrTruncated)
}

func TestStorageLookup(t *testing.T) {
	s := NewStorage()
	p1 := NewSchemaPacking(1, []format.ColumnID{10})
	p2 := NewSchemaPacking(2, []format.ColumnID{10, 11})
	s.Register(p1)
	s.Register(p2)

	got, err := s.Get(2)
	require.NoError(t, err)
	require.Same(t, p2, got)

	// Second lookup is served from the cache.
	got, err = s.Get(2)
	require.NoError(t, err)
	require.Same(t, p2, got)

	_, err = s.Get(9)
	require.Error(t, err)
}

func TestConsumePacking(t *testing.T) {
	s := NewStorage()
	p := NewSchemaPacking(3, []format.ColumnID{10})
	s.Register(p)

	payload := AppendPackedRow(nil, p, map[format.ColumnID][]byte{
		10: format.AppendPrimitiveValue(nil, format.Int32Value(5)),
	})
	require.Equal(t, format.ValuePackedRow, format.DecodeValueEntryType(payload))

	got, blob, err := s.ConsumePacking(payload[1:])
	require.NoError(t, err)
	require.Same(t, p, got)

	v, ok, err := got.GetValue(10, blob)
	require.NoError(t, err)
	require.True(t, ok)
	dec, err := format.DecodePrimitiveValue(v)
	require.NoError(t, err)
	require.EqualValues(t, 5, dec.I64)
}
