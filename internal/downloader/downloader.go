package downloader

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"go-osu-download/internal/api"
	"go-osu-download/internal/models"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/zeebo/blake3"
	"golang.org/x/sync/errgroup"
)

const defaultConcurrency = 4

// Session is what the downloader needs from an authenticated session.
// AuthHeaders and ReferrerFor are called from a single goroutine before every
// pass; Refresh only runs while no download is in flight.
type Session interface {
	AuthHeaders(referer string) http.Header
	ReferrerFor(setID string) string
	Refresh(ctx context.Context) error
}

// Options configure a Downloader. The zero value is usable.
type Options struct {
	// Concurrency bounds simultaneous downloads within a pass.
	Concurrency int
	// Progress is called from download goroutines as bytes are written.
	Progress func(setID string, written, total int64)
	// OnOutcome is called once per id with its final outcome, after the batch
	// settles and from the calling goroutine.
	OnOutcome func(setID string, o Outcome)
}

// Downloader fetches beatmapset archives in batches.
type Downloader struct {
	client *api.Client
	opts   Options
}

// NewDownloader creates a new Downloader instance.
func NewDownloader(client *api.Client, opts Options) *Downloader {
	if client == nil {
		client = api.NewClient(nil)
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	return &Downloader{client: client, opts: opts}
}

// Download fetches every id into dest as <id>.osz. Ids that fail with an auth or
// transient outcome cause one session refresh followed by one more pass over
// just those ids. NotFound and IO failures are never retried.
//
// The returned error is nil unless the destination is invalid or the refresh
// failed, in which case it is the refresh error unchanged; the BatchResult is
// still filled in for everything attempted.
func (d *Downloader) Download(ctx context.Context, ids []string, sess Session, dest string, noVideo bool) (BatchResult, error) {
	if err := checkDestination(dest); err != nil {
		return BatchResult{}, err
	}

	ids = dedupe(ids)
	logger := log.WithFields(log.Fields{
		"batch": uuid.NewString(),
		"items": len(ids),
	})
	logger.Infof("Downloading %d beatmapsets to %s", len(ids), dest)

	result := BatchResult{Outcomes: make(map[string]Outcome, len(ids))}
	d.runPass(ctx, logger.WithField("pass", 1), ids, sess, dest, noVideo, result.Outcomes)
	result.Passes = 1

	var batchErr error
	if pending := outstanding(ids, result.Outcomes); len(pending) > 0 {
		logger.Warnf("%d downloads failed, refreshing session before retrying", len(pending))
		result.Refreshed = true
		if err := sess.Refresh(ctx); err != nil {
			logger.WithError(err).Error("Session refresh failed, not retrying")
			batchErr = err
		} else {
			d.runPass(ctx, logger.WithField("pass", 2), pending, sess, dest, noVideo, result.Outcomes)
			result.Passes = 2
		}
	}

	for _, id := range ids {
		o := result.Outcomes[id]
		if o.Kind == OutcomeSuccess {
			result.Succeeded = append(result.Succeeded, id)
		} else {
			result.Failed = append(result.Failed, Failure{ID: id, Outcome: o})
		}
		if d.opts.OnOutcome != nil {
			d.opts.OnOutcome(id, o)
		}
	}

	logger.WithFields(log.Fields{
		"succeeded": len(result.Succeeded),
		"failed":    len(result.Failed),
		"passes":    result.Passes,
	}).Info("Batch finished")
	return result, batchErr
}

// runPass downloads ids concurrently and records each outcome. Headers are
// built for every id before the first request goes out and each goroutine only
// writes its own slot; the map is filled after Wait.
func (d *Downloader) runPass(ctx context.Context, logger *log.Entry, ids []string, sess Session, dest string, noVideo bool, into map[string]Outcome) {
	headers := make([]http.Header, len(ids))
	for i, id := range ids {
		headers[i] = sess.AuthHeaders(sess.ReferrerFor(id))
	}

	results := make([]Outcome, len(ids))
	g := new(errgroup.Group)
	g.SetLimit(d.opts.Concurrency)
	for i, id := range ids {
		g.Go(func() error {
			results[i] = d.fetch(ctx, Request{ID: id, NoVideo: noVideo}, headers[i], dest)
			entry := logger.WithFields(log.Fields{"set": id, "outcome": results[i].Kind})
			if results[i].Kind == OutcomeSuccess {
				entry.Infof("Saved %s", results[i].Path)
			} else {
				entry.WithError(results[i].Err).Debug("Download did not succeed")
			}
			return nil
		})
	}
	_ = g.Wait()

	for i, id := range ids {
		into[id] = results[i]
	}
}

// fetch performs one download attempt and classifies it.
func (d *Downloader) fetch(ctx context.Context, req Request, headers http.Header, dest string) Outcome {
	resp, err := d.client.Get(ctx, req.Path(), headers)
	if err != nil {
		return Outcome{Kind: OutcomeTransient, Err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return Outcome{Kind: OutcomeNotFound, StatusCode: resp.StatusCode}
	default:
		return Outcome{
			Kind:       OutcomeAuth,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %d for beatmapset %s", resp.StatusCode, req.ID),
		}
	}

	target := filepath.Join(dest, models.ArchiveName(req.ID))
	total := resp.ContentLength
	var progress func(int64)
	if d.opts.Progress != nil {
		progress = func(written int64) { d.opts.Progress(req.ID, written, total) }
	}

	hasher := blake3.New()
	written, err := WriteStream(io.TeeReader(resp.Body, hasher), target, total, progress)
	if err != nil {
		o := Outcome{
			Kind:         OutcomeIO,
			StatusCode:   resp.StatusCode,
			BytesWritten: written,
			ExpectedSize: total,
			Err:          err,
		}
		// Path names a file on disk only when WriteStream got as far as creating it.
		if fileCreated(err) {
			o.Path = target
		}
		return o
	}
	return Outcome{
		Kind:         OutcomeSuccess,
		StatusCode:   resp.StatusCode,
		BytesWritten: written,
		ExpectedSize: total,
		Path:         target,
		Hash:         hex.EncodeToString(hasher.Sum(nil)),
	}
}

func fileCreated(writeErr error) bool {
	if errors.Is(writeErr, ErrUnknownSize) {
		return false
	}
	var tfe *TargetFileError
	return !errors.As(writeErr, &tfe) || tfe.Op != "create"
}

func checkDestination(dest string) error {
	info, err := os.Stat(dest)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidDestination, dest, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrInvalidDestination, dest)
	}
	return nil
}

func outstanding(ids []string, outcomes map[string]Outcome) []string {
	var pending []string
	for _, id := range ids {
		if outcomes[id].Kind.needsRefresh() {
			pending = append(pending, id)
		}
	}
	return pending
}

// dedupe drops repeated ids, keeping the first occurrence.
func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
