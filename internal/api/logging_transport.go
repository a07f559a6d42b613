package api

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// redactedHeaders carry the session and must never reach api.log in clear text.
var redactedHeaders = []string{"Cookie", "Set-Cookie"}

// cookieValuePattern blanks the value part of every name=value pair in a cookie line.
var cookieValuePattern = regexp.MustCompile(`(=)[^;,\s]+`)

// LoggingTransport wraps an http.RoundTripper to log request and response details.
type LoggingTransport struct {
	Transport http.RoundTripper
	logFile   *os.File
	mu        sync.Mutex
	writer    *bufio.Writer
}

// NewLoggingTransport creates a new LoggingTransport.
// It opens the specified log file for appending.
func NewLoggingTransport(transport http.RoundTripper, logFilePath string) (*LoggingTransport, error) {
	f, err := os.OpenFile(logFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open API log file %s: %w", logFilePath, err)
	}

	if transport == nil {
		transport = http.DefaultTransport
	}

	return &LoggingTransport{
		Transport: transport,
		logFile:   f,
		writer:    bufio.NewWriter(f),
	}, nil
}

// RoundTrip executes a single HTTP transaction, logging redacted details.
// Form bodies (the login POST) and archive bodies are never dumped.
func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	startTime := time.Now()

	reqDump, err := httputil.DumpRequestOut(redactRequest(req), false)
	if err != nil {
		log.WithError(err).Error("Failed to dump API request for logging")
	} else {
		t.writeLog(fmt.Sprintf("--- Request (%s) ---\n%s", startTime.Format(time.RFC3339), string(reqDump)))
	}

	resp, err := t.Transport.RoundTrip(req)
	duration := time.Since(startTime)

	if err != nil {
		t.writeLog(fmt.Sprintf("--- Response Error (%s, Duration: %v) ---\n%s", time.Now().Format(time.RFC3339), duration, err.Error()))
		t.flush()
		return resp, err
	}

	contentType := resp.Header.Get("Content-Type")
	logBody := strings.HasPrefix(contentType, "application/json")

	var bodyBytes []byte
	if logBody {
		// Only JSON bodies are buffered; HTML pages embed the token and archives stream through.
		bodyBytes, err = io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			log.WithError(err).Error("Failed to read response body for logging")
			resp.Body = io.NopCloser(bytes.NewReader(nil))
			logBody = false
		} else {
			resp.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		}
	}

	respDump, dumpErr := httputil.DumpResponse(redactResponse(resp), false)
	switch {
	case dumpErr != nil:
		log.WithError(dumpErr).Error("Failed to dump response headers for logging")
		t.writeLog(fmt.Sprintf("--- Response (%s, Duration: %v) ---\nStatus: %s\n(Failed to dump headers)", time.Now().Format(time.RFC3339), duration, resp.Status))
	case logBody:
		t.writeLog(fmt.Sprintf("--- Response Headers (%s, Duration: %v) ---\n%s\n--- Response Body (%s, %d bytes) ---\n%s", time.Now().Format(time.RFC3339), duration, string(respDump), contentType, len(bodyBytes), truncate(bodyBytes, 4096)))
	default:
		t.writeLog(fmt.Sprintf("--- Response Headers (%s, Duration: %v, Type: %s) ---\n%s\n(Body not logged)", time.Now().Format(time.RFC3339), duration, contentType, string(respDump)))
	}

	t.flush()
	return resp, nil
}

func (t *LoggingTransport) flush() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.writer.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "Error flushing API log file: %v\n", err)
	}
}

// writeLog writes a string to the buffered writer.
func (t *LoggingTransport) writeLog(logString string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := t.writer.WriteString(logString + "\n\n")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error writing to API log file: %v\n", err)
	}
}

// Close closes the underlying log file.
func (t *LoggingTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	errFlush := t.writer.Flush()
	errClose := t.logFile.Close()
	if errFlush != nil {
		return fmt.Errorf("failed to flush API log buffer: %w", errFlush)
	}
	return errClose
}

// redactRequest returns a shallow copy of req with session headers masked and
// no body, so DumpRequestOut cannot consume or print the login form.
func redactRequest(req *http.Request) *http.Request {
	clone := req.Clone(req.Context())
	clone.Body = nil
	clone.GetBody = nil
	clone.ContentLength = 0
	clone.Header = redactHeader(req.Header)
	return clone
}

func redactResponse(resp *http.Response) *http.Response {
	clone := *resp
	clone.Header = redactHeader(resp.Header)
	clone.Body = io.NopCloser(bytes.NewReader(nil))
	return &clone
}

func redactHeader(h http.Header) http.Header {
	out := h.Clone()
	for _, name := range redactedHeaders {
		values := out.Values(name)
		if len(values) == 0 {
			continue
		}
		out.Del(name)
		for _, v := range values {
			out.Add(name, cookieValuePattern.ReplaceAllString(v, "${1}REDACTED"))
		}
	}
	return out
}

func truncate(b []byte, max int) string {
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max]) + "...(truncated)"
}
