package database

import (
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"git.mills.io/prologic/bitcask"
	log "github.com/sirupsen/logrus"
)

// ErrNotFound is returned for keys the store does not hold.
var ErrNotFound = errors.New("key not found")

var gzipMagicBytes = []byte{0x1f, 0x8b}

// DB is a bitcask store whose values are gzip-compressed at rest.
type DB struct {
	mu sync.RWMutex
	db *bitcask.Bitcask
}

// Open opens or creates the store at path, creating parent directories.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "/" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	bc, err := bitcask.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open bitcask database at %s: %w", path, err)
	}
	log.Debugf("Opened database at %s", path)
	return &DB{db: bc}, nil
}

func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.db.Close()
}

func (d *DB) Has(key []byte) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.db.Has(key)
}

// Get returns the decompressed value stored under key, or ErrNotFound.
func (d *DB) Get(key []byte) ([]byte, error) {
	d.mu.RLock()
	value, err := d.db.Get(key)
	d.mu.RUnlock()

	if errors.Is(err, bitcask.ErrKeyNotFound) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("reading key %s: %w", string(key), err)
	}
	return decompressIfGzipped(value)
}

func (d *DB) Put(key []byte, value []byte) error {
	compressed, err := compressGzip(value, gzip.BestCompression)
	if err != nil {
		return fmt.Errorf("writing key %s: %w", string(key), err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.db.Put(key, compressed); err != nil {
		return fmt.Errorf("writing key %s: %w", string(key), err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error for every
// bitcask version, so callers that care should check Has first.
func (d *DB) Delete(key []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	err := d.db.Delete(key)
	if errors.Is(err, bitcask.ErrKeyNotFound) {
		return ErrNotFound
	} else if err != nil {
		return fmt.Errorf("deleting key %s: %w", string(key), err)
	}
	return nil
}

// Fold calls fn with every key and its decompressed value. Keys that cannot
// be read are logged and skipped.
func (d *DB) Fold(fn func(key []byte, value []byte) error) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.db.Fold(func(key []byte) error {
		raw, err := d.db.Get(key)
		if err != nil {
			log.WithError(err).Warnf("Skipping unreadable key %s", string(key))
			return nil
		}
		value, err := decompressIfGzipped(raw)
		if err != nil {
			log.WithError(err).Warnf("Skipping undecodable key %s", string(key))
			return nil
		}
		return fn(key, value)
	})
}

// decompressIfGzipped returns value unchanged unless it starts with the gzip
// magic bytes. Records that only look gzipped come back raw.
func decompressIfGzipped(value []byte) ([]byte, error) {
	if !bytes.HasPrefix(value, gzipMagicBytes) {
		return value, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(value))
	if err != nil {
		log.WithError(err).Debug("Value has a gzip prefix but no gzip header")
		return value, nil
	}
	defer zr.Close()

	out, err := io.ReadAll(zr)
	if err != nil {
		log.WithError(err).Debug("Truncated gzip value, using raw bytes")
		return value, nil
	}
	return out, nil
}

func compressGzip(value []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, fmt.Errorf("creating gzip writer: %w", err)
	}
	if _, err := zw.Write(value); err != nil {
		_ = zw.Close()
		return nil, fmt.Errorf("compressing value: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finishing gzip stream: %w", err)
	}
	return buf.Bytes(), nil
}
