package downloader

import (
	"errors"
	"fmt"
	"net/http"
)

// Custom Downloader Errors
var (
	ErrInvalidDestination = errors.New("download destination is not an existing directory")
	ErrUnknownSize        = errors.New("response did not report a content length")
	ErrDownloadPart       = errors.New("failed to read part of the download")
)

// TargetFileError reports a failure to create or write the archive on disk.
type TargetFileError struct {
	Path string
	Op   string // create, write or close
	Err  error
}

func (e *TargetFileError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *TargetFileError) Unwrap() error {
	return e.Err
}

// OutcomeKind classifies how one download attempt ended.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeNotFound
	OutcomeTransient
	OutcomeAuth
	OutcomeIO
)

// String returns the string representation of the outcome kind
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeTransient:
		return "transient_failure"
	case OutcomeAuth:
		return "auth_failure"
	case OutcomeIO:
		return "io_failure"
	default:
		return "unknown"
	}
}

// needsRefresh reports whether the kind may mean the session expired.
func (k OutcomeKind) needsRefresh() bool {
	return k == OutcomeAuth || k == OutcomeTransient
}

// Request describes one attempt to fetch a beatmapset.
type Request struct {
	ID      string
	NoVideo bool
}

// Path is the download endpoint for the request.
func (r Request) Path() string {
	flag := 0
	if r.NoVideo {
		flag = 1
	}
	return fmt.Sprintf("/beatmapsets/%s/download?noVideo=%d", r.ID, flag)
}

// Outcome is the result of a single completed attempt.
type Outcome struct {
	Kind         OutcomeKind
	BytesWritten int64
	ExpectedSize int64
	Path         string
	Hash         string // blake3 of the written bytes, hex
	StatusCode   int
	Err          error
}

// Reason renders the outcome for the end-of-batch report, keeping "not
// available" apart from "failed to download".
func (o Outcome) Reason() string {
	switch o.Kind {
	case OutcomeSuccess:
		return "downloaded"
	case OutcomeNotFound:
		return "not available (removed or never existed)"
	case OutcomeAuth:
		if o.StatusCode != 0 {
			return fmt.Sprintf("failed to download: rejected with %d %s", o.StatusCode, http.StatusText(o.StatusCode))
		}
		return "failed to download: rejected by server"
	case OutcomeTransient:
		return fmt.Sprintf("failed to download: %v", o.Err)
	case OutcomeIO:
		return fmt.Sprintf("failed to save: %v", o.Err)
	default:
		return "unknown"
	}
}

// Failure pairs an id with the outcome that ended it.
type Failure struct {
	ID      string
	Outcome Outcome
}

// BatchResult is produced once per Download call.
type BatchResult struct {
	Succeeded []string
	Failed    []Failure
	Outcomes  map[string]Outcome
	Refreshed bool
	Passes    int
}

// NotFound lists the ids the server reported as unavailable.
func (r BatchResult) NotFound() []string {
	var ids []string
	for _, f := range r.Failed {
		if f.Outcome.Kind == OutcomeNotFound {
			ids = append(ids, f.ID)
		}
	}
	return ids
}

// Errored lists failures other than NotFound.
func (r BatchResult) Errored() []Failure {
	var out []Failure
	for _, f := range r.Failed {
		if f.Outcome.Kind != OutcomeNotFound {
			out = append(out, f)
		}
	}
	return out
}
