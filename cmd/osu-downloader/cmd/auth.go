package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"go-osu-download/internal/database"
	"go-osu-download/internal/session"
)

// Terminal I/O used by the prompts; tests substitute them.
var (
	promptIn  io.Reader = os.Stdin
	promptOut io.Writer = os.Stderr
	// readSecret reads a password without echo.
	readSecret = readTerminalSecret
)

// resolveUsername picks the account in order: flag, OSUDL_USERNAME, config,
// then an interactive prompt.
func resolveUsername(flagValue string) (string, error) {
	for _, candidate := range []string{flagValue, viper.GetString("username"), globalConfig.Username} {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		if err := session.ValidateIdentity(candidate); err != nil {
			return "", err
		}
		return candidate, nil
	}
	return promptUsername()
}

// promptUsername asks until a valid name is entered or input ends.
func promptUsername() (string, error) {
	fmt.Fprintln(promptOut, "No username configured, enter your osu! username:")
	sc := bufio.NewScanner(promptIn)
	for sc.Scan() {
		name := strings.TrimSpace(sc.Text())
		if session.ValidateIdentity(name) == nil {
			return name, nil
		}
		fmt.Fprintln(promptOut, "That username is not valid, try again:")
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	return "", errors.New("no username given")
}

// passwordFor returns OSUDL_PASSWORD when set, otherwise prompts.
func passwordFor(username string) (string, error) {
	if pw := viper.GetString("password"); pw != "" {
		return pw, nil
	}
	return readSecret(username)
}

func readTerminalSecret(username string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("cannot prompt for the password of %s without a terminal; set %s_PASSWORD", username, envPrefix)
	}
	fmt.Fprintf(promptOut, "Password for %s: ", username)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(promptOut)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(b), nil
}

// login creates a new session for username and runs the refresh cascade
// right away, storing the result on success.
func login(ctx context.Context, db *database.DB, username string) (*session.Session, error) {
	pw, err := passwordFor(username)
	if err != nil {
		return nil, err
	}
	sess, err := session.New(username, pw, globalClient)
	if err != nil {
		return nil, err
	}
	if err := sess.Refresh(ctx); err != nil {
		return nil, fmt.Errorf("login failed for %s: %w", username, err)
	}
	if err := db.SaveSession(username, sess.Recoverable()); err != nil {
		return nil, fmt.Errorf("saving session: %w", err)
	}
	log.WithField("user", username).Info("Logged in")
	return sess, nil
}

// restoreOrLogin reuses the saved session for username when there is one.
// A restored session only asks for the password if it has to log in again.
func restoreOrLogin(ctx context.Context, db *database.DB, username string) (*session.Session, error) {
	saved, err := db.LoadSession(username)
	switch {
	case err == nil:
		sess, restoreErr := session.FromRecoverable(username, saved, globalClient)
		if restoreErr == nil {
			if pw := viper.GetString("password"); pw != "" {
				sess.SetSecret(pw)
			} else {
				sess.SetSecretPrompt(readSecret)
			}
			log.WithField("user", username).Debug("Restored saved session")
			return sess, nil
		}
		log.WithError(restoreErr).Warn("Saved session is unreadable, logging in again (use 'clear' to reset)")
	case errors.Is(err, database.ErrNotFound):
		log.WithField("user", username).Debug("No saved session")
	default:
		return nil, fmt.Errorf("reading saved session: %w", err)
	}
	return login(ctx, db, username)
}

func openDatabase() (*database.DB, error) {
	db, err := database.Open(globalConfig.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	return db, nil
}
