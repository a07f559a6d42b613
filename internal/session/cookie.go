package session

import (
	"fmt"
	"regexp"
)

var (
	xsrfPattern    = regexp.MustCompile(`XSRF-TOKEN=(\w+);`)
	sessionPattern = regexp.MustCompile(`osu_session=([\w%]+);`)
)

// Extraction holds the values found in one batch of Set-Cookie lines. An empty
// field means that kind did not appear in the batch.
type Extraction struct {
	Token     string
	SessionID string
}

// Extract scans raw Set-Cookie values in order. Each kind is taken from the first
// line that matches it; a line that yields the token is not also checked for the
// session. Finding nothing is normal for responses that do not touch the session.
func Extract(setCookies []string) Extraction {
	var ex Extraction
	for _, line := range setCookies {
		if ex.Token != "" && ex.SessionID != "" {
			break
		}
		if ex.Token == "" {
			if m := xsrfPattern.FindStringSubmatch(line); m != nil {
				ex.Token = m[1]
				continue
			}
		}
		if ex.SessionID == "" {
			if m := sessionPattern.FindStringSubmatch(line); m != nil {
				ex.SessionID = m[1]
			}
		}
	}
	return ex
}

// Apply overwrites token and sessionID only for the kinds that were found.
func (ex Extraction) Apply(token, sessionID *string) {
	if ex.Token != "" {
		*token = ex.Token
	}
	if ex.SessionID != "" {
		*sessionID = ex.SessionID
	}
}

// Empty reports whether neither kind was found.
func (ex Extraction) Empty() bool {
	return ex.Token == "" && ex.SessionID == ""
}

// cookieHeader renders the outbound Cookie header value.
func cookieHeader(token, sessionID string) string {
	return fmt.Sprintf("XSRF-TOKEN=%s; osu_session=%s;", token, sessionID)
}
