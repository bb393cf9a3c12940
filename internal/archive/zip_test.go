package archive

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZipRoundTrip(t *testing.T) {
	z := NewZip()
	require.NoError(t, z.Add("page_1.pdf", []byte("one")))
	require.NoError(t, z.Add("page_2.pdf", []byte("two")))
	require.NoError(t, z.Add("page_10.pdf", []byte("ten")))
	assert.Equal(t, []string{"page_1.pdf", "page_2.pdf", "page_10.pdf"}, z.Entries())

	data, err := z.Finalize()
	require.NoError(t, err)

	entries, err := Read(data)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "page_1.pdf", entries[0].Name)
	assert.Equal(t, []byte("one"), entries[0].Data)
	assert.Equal(t, "page_10.pdf", entries[2].Name)
	assert.Equal(t, []byte("ten"), entries[2].Data)
}

func TestZipIsDeterministic(t *testing.T) {
	build := func() []byte {
		z := NewZip()
		require.NoError(t, z.Add("page_1.pdf", []byte("one")))
		require.NoError(t, z.Add("page_2.pdf", []byte("two")))
		data, err := z.Finalize()
		require.NoError(t, err)
		return data
	}
	first := build()
	time.Sleep(1100 * time.Millisecond)
	assert.Equal(t, first, build())
}

func TestZipRejectsDuplicatesAndBadNames(t *testing.T) {
	z := NewZip()
	require.NoError(t, z.Add("a.pdf", nil))
	assert.ErrorIs(t, z.Add("a.pdf", nil), ErrDuplicate)
	assert.Error(t, z.Add("../evil.pdf", nil))
	assert.Error(t, z.Add("/abs.pdf", nil))
	assert.Error(t, z.Add("", nil))
}

func TestZipFinalizeOnce(t *testing.T) {
	z := NewZip()
	_, err := z.Finalize()
	require.NoError(t, err)
	_, err = z.Finalize()
	assert.ErrorIs(t, err, ErrFinalized)
	assert.ErrorIs(t, z.Add("late.pdf", nil), ErrFinalized)
}

func TestReadGarbage(t *testing.T) {
	_, err := Read([]byte("not a zip"))
	assert.Error(t, err)
}
