package ffmpeg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteConcatList(t *testing.T) {
	listPath := filepath.Join(t.TempDir(), "list.txt")
	err := WriteConcatList(listPath, []string{
		"/scratch/intro.mp3",
		"/scratch/it's main.mp3",
		"/scratch/outro.mp3",
	})
	require.NoError(t, err)

	data, err := os.ReadFile(listPath)
	require.NoError(t, err)
	assert.Equal(t,
		"file '/scratch/intro.mp3'\n"+
			"file '/scratch/it'\\''s main.mp3'\n"+
			"file '/scratch/outro.mp3'\n",
		string(data))
}
