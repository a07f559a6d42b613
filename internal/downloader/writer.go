package downloader

import (
	"errors"
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
)

const chunkSize = 32 * 1024

// WriteStream copies body into a new file at target chunk by chunk. progress,
// if set, receives the running byte count after every chunk, clamped to
// expectedSize. A negative expectedSize means the size is unknown, which is an
// error. A failed read leaves the partial file in place.
//
// The returned count is the clamped total.
func WriteStream(body io.Reader, target string, expectedSize int64, progress func(written int64)) (int64, error) {
	if expectedSize < 0 {
		return 0, ErrUnknownSize
	}

	f, err := os.Create(target)
	if err != nil {
		return 0, &TargetFileError{Path: target, Op: "create", Err: err}
	}

	raw, reported, copyErr := copyChunks(f, body, target, expectedSize, progress)
	closeErr := f.Close()
	if copyErr != nil {
		return reported, copyErr
	}
	if closeErr != nil {
		return reported, &TargetFileError{Path: target, Op: "close", Err: closeErr}
	}

	if raw != expectedSize {
		log.WithFields(log.Fields{
			"path":     target,
			"expected": expectedSize,
			"received": raw,
		}).Warn("Download size does not match Content-Length")
	}
	return reported, nil
}

func copyChunks(w io.Writer, body io.Reader, target string, expectedSize int64, progress func(int64)) (raw, reported int64, err error) {
	buf := make([]byte, chunkSize)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				return raw, reported, &TargetFileError{Path: target, Op: "write", Err: writeErr}
			}
			raw += int64(n)
			reported = min(raw, expectedSize)
			if progress != nil {
				progress(reported)
			}
		}
		if errors.Is(readErr, io.EOF) {
			return raw, reported, nil
		}
		if readErr != nil {
			return raw, reported, fmt.Errorf("%w: %s after %d bytes: %w", ErrDownloadPart, target, raw, readErr)
		}
	}
}
