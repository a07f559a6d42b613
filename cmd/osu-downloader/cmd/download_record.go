package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"
	log "github.com/sirupsen/logrus"

	"go-osu-download/index"
	"go-osu-download/internal/database"
	"go-osu-download/internal/downloader"
	"go-osu-download/internal/models"
)

// recorder writes each final outcome to the history database and indexes
// successful archives.
type recorder struct {
	db      *database.DB
	index   bleve.Index // nil disables indexing
	noVideo bool
	now     func() time.Time
}

func (r *recorder) record(setID string, o downloader.Outcome) {
	logger := log.WithField("set", setID)

	entry, err := r.db.GetEntry(setID)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			logger.WithError(err).Warn("Could not read history entry, starting a new one")
		}
		entry = models.DownloadEntry{SetID: setID}
	}
	entry.Attempts++
	entry.NoVideo = r.noVideo
	entry.LastChecked = r.timestamp()
	entry.ErrorDetails = ""

	switch o.Kind {
	case downloader.OutcomeSuccess:
		entry.Status = models.StatusDownloaded
		entry.Filename = filepath.Base(o.Path)
		entry.Folder = filepath.Dir(o.Path)
		entry.SizeBytes = o.BytesWritten
		if info, statErr := os.Stat(o.Path); statErr == nil {
			entry.SizeBytes = info.Size()
		}
		entry.ExpectedSize = o.ExpectedSize
		entry.Blake3 = o.Hash
	case downloader.OutcomeNotFound:
		entry.Status = models.StatusNotFound
		entry.ErrorDetails = o.Reason()
	default:
		entry.Status = models.StatusError
		entry.ErrorDetails = o.Reason()
		entry.Blake3 = ""
		// Only a file this attempt wrote may be referenced; 'clean' deletes it.
		entry.Filename, entry.Folder = "", ""
		entry.SizeBytes, entry.ExpectedSize = 0, 0
		if o.Path != "" {
			entry.Filename = filepath.Base(o.Path)
			entry.Folder = filepath.Dir(o.Path)
			entry.SizeBytes = o.BytesWritten
			entry.ExpectedSize = o.ExpectedSize
		}
	}

	if err := r.db.PutEntry(entry); err != nil {
		logger.WithError(err).Error("Could not record download history")
	}

	if o.Kind == downloader.OutcomeSuccess && r.index != nil {
		r.indexArchive(entry)
	}
}

func (r *recorder) indexArchive(entry models.DownloadEntry) {
	item, err := index.ItemFromArchive(entry.SetID, entry.Path())
	if err != nil {
		log.WithError(err).WithField("set", entry.SetID).Warn("Could not read archive, indexing file name only")
	}
	item.Blake3 = entry.Blake3
	item.NoVideo = entry.NoVideo
	item.DownloadedAt = entry.LastChecked
	if err := index.IndexItem(r.index, item); err != nil {
		log.WithError(err).WithField("set", entry.SetID).Warn("Could not index beatmapset")
	}
}

func (r *recorder) timestamp() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now().UTC()
}

// filterDownloaded drops ids whose history says they are downloaded and whose
// archive is still on disk with the recorded size.
func filterDownloaded(db *database.DB, ids []string) (pending, skipped []string) {
	for _, id := range ids {
		entry, err := db.GetEntry(id)
		if err == nil && entry.Status == models.StatusDownloaded {
			if info, statErr := os.Stat(entry.Path()); statErr == nil && info.Size() == entry.SizeBytes {
				skipped = append(skipped, id)
				continue
			}
		}
		pending = append(pending, id)
	}
	return pending, skipped
}

// printSummary reports the batch, keeping unavailable sets apart from failures.
func printSummary(w io.Writer, dest string, result downloader.BatchResult, skipped []string) {
	total := len(result.Succeeded) + len(result.Failed)
	fmt.Fprintf(w, "Downloaded %d/%d beatmapset(s) to %s\n", len(result.Succeeded), total, dest)
	if len(skipped) > 0 {
		fmt.Fprintf(w, "Already downloaded (%d): %s\n", len(skipped), strings.Join(skipped, ", "))
	}
	if missing := result.NotFound(); len(missing) > 0 {
		fmt.Fprintf(w, "Not available (%d): %s\n", len(missing), strings.Join(missing, ", "))
	}
	if failed := result.Errored(); len(failed) > 0 {
		fmt.Fprintf(w, "Failed to download (%d):\n", len(failed))
		for _, f := range failed {
			fmt.Fprintf(w, "  %s: %s\n", f.ID, f.Outcome.Reason())
		}
	}
}
