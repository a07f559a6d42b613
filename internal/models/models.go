package models

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

type (
	Config struct {
		// Account
		Username string `toml:"Username"`

		// Paths
		SavePath     string `toml:"SavePath"`
		DatabasePath string `toml:"DatabasePath"`
		IndexPath    string `toml:"IndexPath"` // Bleve index of downloaded beatmapsets

		// Downloader Behavior
		Concurrency      int  `toml:"Concurrency"`
		NoVideo          bool `toml:"NoVideo"`
		ClientTimeoutSec int  `toml:"ClientTimeoutSec"`

		// Other
		LogApiRequests bool `toml:"LogApiRequests"`
	}

	// DownloadEntry is the history record kept for every beatmapset the
	// downloader has attempted.
	DownloadEntry struct {
		SetID        string    `json:"setId"`
		Status       string    `json:"status"`
		Filename     string    `json:"filename,omitempty"`
		Folder       string    `json:"folder,omitempty"`
		SizeBytes    int64     `json:"sizeBytes,omitempty"`
		ExpectedSize int64     `json:"expectedSize,omitempty"`
		Blake3       string    `json:"blake3,omitempty"`
		NoVideo      bool      `json:"noVideo"`
		ErrorDetails string    `json:"errorDetails,omitempty"`
		Attempts     int       `json:"attempts"`
		LastChecked  time.Time `json:"lastChecked"`
	}
)

// Database Status Constants
const (
	StatusDownloaded = "Downloaded"
	StatusNotFound   = "NotFound"
	StatusError      = "Error"
)

// ArchiveExtension is the extension used for downloaded beatmapset archives.
const ArchiveExtension = ".osz"

// ArchiveName returns the file name a beatmapset is stored under.
func ArchiveName(setID string) string {
	return setID + ArchiveExtension
}

// EntryKey returns the database key for a beatmapset history entry.
func EntryKey(setID string) string {
	return "s_" + setID
}

// SetIDFromKey reverses EntryKey. ok is false for keys that are not history entries.
func SetIDFromKey(key string) (string, bool) {
	if !strings.HasPrefix(key, "s_") {
		return "", false
	}
	return strings.TrimPrefix(key, "s_"), true
}

// Path joins the entry folder and file name.
func (e DownloadEntry) Path() string {
	return filepath.Join(e.Folder, e.Filename)
}

// String is used by `db view` when a compact line is needed.
func (e DownloadEntry) String() string {
	return fmt.Sprintf("%s [%s] %s", e.SetID, e.Status, e.Filename)
}
