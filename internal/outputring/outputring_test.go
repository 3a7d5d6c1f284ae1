package outputring

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRing_RetainsEverythingUnderCapacity(t *testing.T) {
	r := New(100)
	r.Write([]byte("hello"))
	require.Equal(t, "hello", r.String())
	require.Equal(t, 5, r.TotalChars())
	require.False(t, r.Truncated())
}

func TestRing_RetainsLastNCharacters(t *testing.T) {
	r := New(5)
	r.Write([]byte("abcdefghij")) // 10 chars, capacity 5
	require.Equal(t, "fghij", r.String())
	require.Equal(t, 10, r.TotalChars())
	require.True(t, r.Truncated())
}

func TestRing_IncrementalWritesMatchLastNSemantics(t *testing.T) {
	full := "the quick brown fox jumps over the lazy dog"
	r := New(10)
	for _, b := range []byte(full) {
		r.Write([]byte{b})
	}
	want := full[len(full)-10:]
	require.Equal(t, want, r.String())
	require.Equal(t, len(full), r.TotalChars())
}

func TestRing_SplitMultiByteRuneAcrossWrites(t *testing.T) {
	s := "café résumé" // contains multi-byte UTF-8 sequences
	b := []byte(s)
	r := New(1000)
	// Feed one byte at a time, including mid-rune splits.
	for _, bb := range b {
		r.Write([]byte{bb})
	}
	require.Equal(t, s, r.String())
}

func TestRing_InvalidUTF8Replaced(t *testing.T) {
	r := New(1000)
	r.Write([]byte{'a', 0xff, 'b'})
	require.True(t, strings.Contains(r.String(), "�"))
	require.Equal(t, 3, r.TotalChars())
}

func TestRing_BoundedMemory(t *testing.T) {
	r := New(16)
	big := strings.Repeat("x", 1_000_000)
	r.Write([]byte(big))
	require.Equal(t, 16, len([]rune(r.String())))
	require.Equal(t, len(big), r.TotalChars())
}
