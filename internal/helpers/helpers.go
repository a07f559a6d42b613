package helpers

import (
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"os"
	"regexp"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/zeebo/blake3"
)

var setIDPattern = regexp.MustCompile(`^[0-9]+$`)

// HashFile returns the hex-encoded BLAKE3 digest of the file at path.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// CheckHash verifies a file against an expected BLAKE3 hash (case-insensitive).
func CheckHash(path string, expected string) bool {
	expected = strings.TrimSpace(expected)
	if expected == "" {
		return false
	}
	got, err := HashFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			// Log error only if it's not a "file not found" error
			log.WithError(err).Warnf("Error hashing file %s", path)
		}
		return false
	}
	if !strings.EqualFold(got, expected) {
		log.WithField("hash", "BLAKE3").Debugf("Hash mismatch for %s", path)
		return false
	}
	return true
}

// ValidSetID reports whether id looks like a beatmapset id.
func ValidSetID(id string) bool {
	return setIDPattern.MatchString(id)
}

// ParseSetIDs splits arguments on whitespace and commas, dropping empties.
// Invalid ids are returned separately so the caller can report them.
func ParseSetIDs(args []string) (valid, invalid []string) {
	for _, arg := range args {
		for _, field := range strings.FieldsFunc(arg, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t' || r == '\n'
		}) {
			if ValidSetID(field) {
				valid = append(valid, field)
			} else {
				invalid = append(invalid, field)
			}
		}
	}
	return valid, invalid
}

// BytesToSize converts a byte count into a human-readable string (KB, MB, GB, etc.).
func BytesToSize(bytes uint64) string {
	sizes := []string{"B", "KB", "MB", "GB", "TB"}
	if bytes == 0 {
		return "0B"
	}
	i := int(math.Floor(math.Log(float64(bytes)) / math.Log(1024)))
	if i >= len(sizes) {
		i = len(sizes) - 1 // Handle very large sizes
	}
	return fmt.Sprintf("%.2f%s", float64(bytes)/math.Pow(1024, float64(i)), sizes[i])
}

// CheckAndMakeDir ensures a directory exists, creating it if necessary.
// Uses standard directory permissions (0700).
func CheckAndMakeDir(dir string) bool {
	err := os.MkdirAll(dir, 0700)
	if err != nil {
		log.WithError(err).Errorf("Error creating directory %s", dir)
		return false
	}
	return true
}
