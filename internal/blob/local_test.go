package blob

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore_Put(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStore(dir, "/uploads/", 1024)
	require.NoError(t, err)

	url, err := s.Put(context.Background(), "holiday photo.PNG", strings.NewReader("pixels"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "/uploads/"))
	assert.True(t, strings.HasSuffix(url, ".png"))

	data, err := os.ReadFile(filepath.Join(dir, filepath.Base(url)))
	require.NoError(t, err)
	assert.Equal(t, "pixels", string(data))
}

func TestLocalStore_TooLarge(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStore(dir, "/uploads", 4)
	require.NoError(t, err)

	_, err = s.Put(context.Background(), "a.bin", strings.NewReader("12345"))
	assert.ErrorIs(t, err, ErrTooLarge)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "partial file must be removed")
}

func TestSafeExt(t *testing.T) {
	assert.Equal(t, ".ogg", safeExt("voice.ogg"))
	assert.Equal(t, "", safeExt("noext"))
	assert.Equal(t, "", safeExt("../../etc/passwd.s/h"))
	assert.Equal(t, "", safeExt("x.verylongextension"))
	assert.Equal(t, "", safeExt("x.p-g"))
}
