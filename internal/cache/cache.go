// Package cache implements ombud's content-addressed filesystem store:
// responses collected from upstream dials are written under a path derived
// from the SHA-1 hash of the service identifier that produced them, and
// served back out by fd for zero-copy relay via sendfile(2).
package cache

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Store is a single cache base directory. It owns no identifier strings; it
// only ever computes a path from one and forgets it.
type Store struct {
	baseDir string
}

// Open initializes (creating if necessary) the cache base directory.
// Matches the original cache_init: a single-level mkdir, tolerant of the
// directory already existing, but not of a non-directory occupying the
// path.
func Open(baseDir string) (*Store, error) {
	if err := os.Mkdir(baseDir, 0o777); err != nil && !os.IsExist(err) {
		return nil, fmt.Errorf("cache: init %s: %w", baseDir, err)
	}
	fi, err := os.Stat(baseDir)
	if err != nil {
		return nil, fmt.Errorf("cache: stat %s: %w", baseDir, err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("cache: %s exists and is not a directory", baseDir)
	}
	return &Store{baseDir: baseDir}, nil
}

// Key is the 40-character lowercase hex SHA-1 digest of a service
// identifier. It is the unit every other cache operation addresses by.
func Key(identifier string) string {
	sum := sha1.Sum([]byte(identifier))
	return hex.EncodeToString(sum[:])
}

// dir returns the cache's 256-way fanout subdirectory for key (its first
// two hex characters).
func (s *Store) dir(key string) string {
	return filepath.Join(s.baseDir, key[:2])
}

// path returns the full on-disk path for key.
func (s *Store) path(key string) string {
	return filepath.Join(s.dir(key), key[2:])
}

// Lookup reports whether key names an existing regular cache entry.
func (s *Store) Lookup(key string) bool {
	fi, err := os.Stat(s.path(key))
	if err != nil {
		return false
	}
	return fi.Mode().IsRegular()
}

// Size returns the size in bytes of an existing cache entry. Like the
// original cache_fsize, behavior is undefined if the entry does not exist;
// callers must Lookup first.
func (s *Store) Size(key string) (int64, error) {
	fi, err := os.Stat(s.path(key))
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

// OpenEntry opens an existing cache entry read-only, for sendfile relay.
func (s *Store) OpenEntry(key string) (*os.File, error) {
	return os.Open(s.path(key))
}

// Write persists buf[:n] under key, creating the 2-character fanout
// directory as needed. It opens with O_CREAT but deliberately without
// O_TRUNC and fsyncs before closing — both match the original cache_write
// byte for byte, including its quirk that writing a shorter response over
// an existing longer entry leaves the old entry's trailing bytes in place.
func (s *Store) Write(key string, buf []byte, n int) error {
	dir := s.dir(key)
	if err := os.MkdirAll(dir, 0o777); err != nil {
		return fmt.Errorf("cache: mkdir %s: %w", dir, err)
	}

	f, err := os.OpenFile(s.path(key), os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("cache: open %s: %w", key, err)
	}
	defer f.Close()

	if _, err := f.Write(buf[:n]); err != nil {
		return fmt.Errorf("cache: write %s: %w", key, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("cache: fsync %s: %w", key, err)
	}
	return nil
}

// Sendfile relays an existing cache entry directly to dstFd using the
// sendfile(2) syscall, avoiding a userspace copy. It returns the number of
// bytes sent.
func (s *Store) Sendfile(dstFd int, key string) (int64, error) {
	f, err := s.OpenEntry(key)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	size, err := s.Size(key)
	if err != nil {
		return 0, err
	}

	var sent int64
	var offset int64
	for sent < size {
		n, err := unix.Sendfile(dstFd, int(f.Fd()), &offset, int(size-sent))
		if err != nil {
			if err == unix.EAGAIN || err == unix.EINTR {
				continue
			}
			return sent, err
		}
		if n == 0 {
			break
		}
		sent += int64(n)
	}
	return sent, nil
}
