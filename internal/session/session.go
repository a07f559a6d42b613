package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"go-osu-download/internal/api"

	log "github.com/sirupsen/logrus"
)

const (
	homePath  = "/home"
	loginPath = "/session"

	// recoverableSeparator splits the saved "token,session" pair.
	recoverableSeparator = ","
)

var (
	usernamePattern = regexp.MustCompile(`^[\w _\-\[\]]+$`)
	tokenValue      = regexp.MustCompile(`^\w+$`)
	sessionValue    = regexp.MustCompile(`^[\w%]+$`)
)

// State is the coarse authentication state of a Session.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticated
	StateCredentialsRejected
)

func (s State) String() string {
	switch s {
	case StateAuthenticated:
		return "authenticated"
	case StateCredentialsRejected:
		return "credentials_rejected"
	default:
		return "unauthenticated"
	}
}

// Session holds the account credentials and the token/session cookie pair the
// service hands out. It has a single owner: AuthHeaders may be called from many
// goroutines at once, but Refresh must only run while nothing else reads the
// session.
type Session struct {
	identity string
	secret   string

	token     string
	sessionID string
	rejected  bool

	secretPrompt func(identity string) (string, error)
	client       *api.Client
}

// New creates an empty session for identity. It performs no network I/O.
func New(identity, secret string, client *api.Client) (*Session, error) {
	if err := ValidateIdentity(identity); err != nil {
		return nil, err
	}
	if secret == "" {
		return nil, &ConstructionError{Field: "password", Reason: "must not be empty"}
	}
	return &Session{identity: identity, secret: secret, client: client}, nil
}

// FromRecoverable restores a session from the string produced by Recoverable.
// The restored session has no password; see SetSecret and SetSecretPrompt.
func FromRecoverable(identity, data string, client *api.Client) (*Session, error) {
	if err := ValidateIdentity(identity); err != nil {
		return nil, err
	}
	parts := strings.Split(strings.TrimSpace(data), recoverableSeparator)
	if len(parts) != 2 {
		return nil, fmt.Errorf("%w: expected token%ssession", ErrInvalidSavedState, recoverableSeparator)
	}
	token, sessionID := parts[0], parts[1]
	if !tokenValue.MatchString(token) || !sessionValue.MatchString(sessionID) {
		return nil, fmt.Errorf("%w: malformed token or session value", ErrInvalidSavedState)
	}
	return &Session{identity: identity, token: token, sessionID: sessionID, client: client}, nil
}

// ValidateIdentity checks a username the way the service accepts them.
func ValidateIdentity(identity string) error {
	if identity == "" {
		return &ConstructionError{Field: "username", Reason: "must not be empty"}
	}
	if !usernamePattern.MatchString(identity) {
		return &ConstructionError{Field: "username", Reason: fmt.Sprintf("%q contains unsupported characters", identity)}
	}
	return nil
}

// Identity returns the account name.
func (s *Session) Identity() string { return s.identity }

// SetSecret supplies the password for a restored session.
func (s *Session) SetSecret(secret string) { s.secret = secret }

// SetSecretPrompt registers a callback used to obtain the password the first
// time a restored session has to log in again.
func (s *Session) SetSecretPrompt(prompt func(identity string) (string, error)) {
	s.secretPrompt = prompt
}

// Recoverable serializes the token/session pair. The password is never included.
func (s *Session) Recoverable() string {
	return s.token + recoverableSeparator + s.sessionID
}

// State reports the session state. Holding both cookie values only makes the
// session presumptively authenticated; the service may still reject it.
func (s *Session) State() State {
	switch {
	case s.rejected:
		return StateCredentialsRejected
	case s.token != "" && s.sessionID != "":
		return StateAuthenticated
	default:
		return StateUnauthenticated
	}
}

// ReferrerFor returns the beatmapset detail page used as Referer for downloads.
func (s *Session) ReferrerFor(setID string) string {
	return s.client.Url("/beatmapsets/" + setID)
}

// AuthHeaders builds the headers for an authenticated request. It has no side
// effects and works with empty values; the service will simply refuse them.
func (s *Session) AuthHeaders(referer string) http.Header {
	h := http.Header{}
	h.Set("Cookie", cookieHeader(s.token, s.sessionID))
	h.Set("Content-Type", "application/x-www-form-urlencoded")
	if referer != "" {
		h.Set("Referer", referer)
	}
	return h
}

// Update applies the Set-Cookie lines of resp to the session.
func (s *Session) Update(resp *http.Response) {
	ex := Extract(resp.Header.Values("Set-Cookie"))
	if ex.Empty() {
		return
	}
	ex.Apply(&s.token, &s.sessionID)
	log.WithFields(log.Fields{
		"user":         s.identity,
		"tokenFound":   ex.Token != "",
		"sessionFound": ex.SessionID != "",
	}).Debug("Applied Set-Cookie values")
}

// Refresh runs the landing-page request followed by the login form. A failure
// in the first step skips the second, and a failed login leaves the previous
// token and session in place. ErrIncorrectCredentials is terminal.
func (s *Session) Refresh(ctx context.Context) error {
	if s.rejected {
		return ErrIncorrectCredentials
	}
	if err := s.ensureSecret(); err != nil {
		return err
	}

	logger := log.WithField("user", s.identity)
	logger.Info("Refreshing session...")

	// The landing page hands out logged-out cookies; they only stick once
	// the login form accepts them.
	prevToken, prevSession := s.token, s.sessionID
	if err := s.updateAccess(ctx); err != nil {
		return s.fail(err)
	}
	if err := s.login(ctx); err != nil {
		s.token, s.sessionID = prevToken, prevSession
		return s.fail(err)
	}

	logger.Info("Session refreshed")
	return nil
}

func (s *Session) fail(err error) error {
	if errors.Is(err, ErrIncorrectCredentials) {
		s.rejected = true
	}
	log.WithError(err).WithField("user", s.identity).Warn("Session refresh failed")
	return err
}

func (s *Session) ensureSecret() error {
	if s.secret != "" {
		return nil
	}
	if s.secretPrompt == nil {
		return ErrNoSecret
	}
	secret, err := s.secretPrompt(s.identity)
	if err != nil {
		return fmt.Errorf("reading password for %s: %w", s.identity, err)
	}
	if secret == "" {
		return ErrNoSecret
	}
	s.secret = secret
	return nil
}

// updateAccess requests the landing page to obtain a fresh token and session.
func (s *Session) updateAccess(ctx context.Context) error {
	h := http.Header{}
	h.Set("Cookie", cookieHeader(s.token, s.sessionID))

	resp, err := s.client.Get(ctx, homePath, h)
	if err != nil {
		return &UnknownSessionError{Step: "landing", Err: err}
	}
	defer drain(resp)

	switch resp.StatusCode {
	case http.StatusOK:
		s.Update(resp)
		return nil
	case http.StatusBadRequest:
		return ErrIncorrectCredentials
	default:
		return &UnknownSessionError{Step: "landing", StatusCode: resp.StatusCode}
	}
}

// login submits the login form with the current token.
func (s *Session) login(ctx context.Context) error {
	h := s.AuthHeaders(s.client.Url(homePath))
	form := url.Values{}
	form.Set("_token", s.token)
	form.Set("username", s.identity)
	form.Set("password", s.secret)

	resp, err := s.client.PostForm(ctx, loginPath, h, form)
	if err != nil {
		return &UnknownSessionError{Step: "login", Err: err}
	}
	defer drain(resp)

	switch resp.StatusCode {
	case http.StatusOK:
		s.Update(resp)
		return nil
	case http.StatusForbidden:
		return ErrIncorrectCredentials
	default:
		return &UnknownSessionError{Step: "login", StatusCode: resp.StatusCode}
	}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	resp.Body.Close()
}
