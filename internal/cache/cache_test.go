package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeyIsFortyCharHex(t *testing.T) {
	k := Key("example.com:80")
	require.Len(t, k, 40)
	require.Regexp(t, "^[0-9a-f]{40}$", k)
}

func TestOpenCreatesBaseDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache-ombud")
	s, err := Open(dir)
	require.NoError(t, err)
	require.NotNil(t, s)

	fi, err := os.Stat(dir)
	require.NoError(t, err)
	require.True(t, fi.IsDir())
}

func TestOpenIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	_, err := Open(dir)
	require.NoError(t, err)
	_, err = Open(dir)
	require.NoError(t, err)
}

func TestOpenRejectsNonDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(dir, []byte("x"), 0o644))

	_, err := Open(dir)
	require.Error(t, err)
}

func TestLookupWriteRoundTrip(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	key := Key("example.com:80")
	require.False(t, s.Lookup(key))

	payload := []byte("hello upstream")
	require.NoError(t, s.Write(key, payload, len(payload)))
	require.True(t, s.Lookup(key))

	size, err := s.Size(key)
	require.NoError(t, err)
	require.Equal(t, int64(len(payload)), size)

	f, err := s.OpenEntry(key)
	require.NoError(t, err)
	defer f.Close()
	got := make([]byte, len(payload))
	_, err = f.Read(got)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

// TestWriteDoesNotTruncate documents the preserved quirk: a shorter write
// over an existing longer entry leaves the old tail bytes in place, because
// Write opens with O_CREAT but not O_TRUNC.
func TestWriteDoesNotTruncate(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	key := Key("example.com:80")
	long := []byte("0123456789")
	require.NoError(t, s.Write(key, long, len(long)))

	short := []byte("abc")
	require.NoError(t, s.Write(key, short, len(short)))

	size, err := s.Size(key)
	require.NoError(t, err)
	require.Equal(t, int64(len(long)), size)
}

func TestFanoutDirectoryUsesFirstTwoHexChars(t *testing.T) {
	base := t.TempDir()
	s, err := Open(base)
	require.NoError(t, err)

	key := Key("example.com:80")
	payload := []byte("x")
	require.NoError(t, s.Write(key, payload, len(payload)))

	_, err = os.Stat(filepath.Join(base, key[:2], key[2:]))
	require.NoError(t, err)
}
