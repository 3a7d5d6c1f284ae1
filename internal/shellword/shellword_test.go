package shellword

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplit_Basic(t *testing.T) {
	words, err := Split("echo hello world")
	require.NoError(t, err)
	require.Equal(t, []string{"echo", "hello", "world"}, words)
}

func TestSplit_SingleQuotePreservesSpaces(t *testing.T) {
	words, err := Split(`bash template.sh '--name=a b c'`)
	require.NoError(t, err)
	require.Equal(t, []string{"bash", "template.sh", "--name=a b c"}, words)
}

func TestSplit_DoubleQuoteEscapes(t *testing.T) {
	words, err := Split(`echo "a \"quoted\" value"`)
	require.NoError(t, err)
	require.Equal(t, []string{"echo", `a "quoted" value`}, words)
}

func TestSplit_BackslashEscapesSpace(t *testing.T) {
	words, err := Split(`echo a\ b`)
	require.NoError(t, err)
	require.Equal(t, []string{"echo", "a b"}, words)
}

func TestSplit_UnterminatedQuoteErrors(t *testing.T) {
	_, err := Split(`echo 'unterminated`)
	require.Error(t, err)
}

func TestSplit_ExtraWhitespaceCollapses(t *testing.T) {
	words, err := Split("  echo   a   b  ")
	require.NoError(t, err)
	require.Equal(t, []string{"echo", "a", "b"}, words)
}
