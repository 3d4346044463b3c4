package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCatalog(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "phrases.txt")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func TestLoadPhrases(t *testing.T) {
	path := writeCatalog(t, "  first phrase  \n\nsecond\r\nthird\nsecond\n   \nfourth\n")

	phrases, err := loadPhrases(path)

	require.NoError(t, err)
	assert.Equal(t, []string{"first phrase", "second", "third", "fourth"}, phrases)
}

func TestLoadPhrasesNormalizesNFC(t *testing.T) {
	// "café" written once composed and once decomposed must collapse to a
	// single entry.
	path := writeCatalog(t, "caf\u00e9\ncafe\u0301\n")

	phrases, err := loadPhrases(path)

	require.NoError(t, err)
	require.Len(t, phrases, 1)
	assert.Equal(t, "caf\u00e9", phrases[0])
}

func TestLoadPhrasesKeepsFirstSeenOrder(t *testing.T) {
	path := writeCatalog(t, "zebra\napple\nzebra\nmango\napple\n")

	phrases, err := loadPhrases(path)

	require.NoError(t, err)
	assert.Equal(t, []string{"zebra", "apple", "mango"}, phrases)
}

func TestLoadPhrasesCreatesMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "phrases.txt")

	phrases, err := loadPhrases(path)

	require.NoError(t, err)
	assert.Empty(t, phrases)

	// The empty source is materialized so later reloads have a target.
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestLoadPhrasesUncreatableSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "phrases.txt")

	_, err := loadPhrases(path)

	assert.Error(t, err)
}
