package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go-osu-download/internal/models"

	log "github.com/sirupsen/logrus"
)

const sessionKeyPrefix = "session_"

func sessionKey(username string) []byte {
	return []byte(sessionKeyPrefix + strings.ToLower(username))
}

// SaveSession stores the recoverable token/session pair for username.
func (d *DB) SaveSession(username, recoverable string) error {
	if err := d.Put(sessionKey(username), []byte(recoverable)); err != nil {
		return err
	}
	log.WithField("user", username).Debug("Saved session")
	return nil
}

// LoadSession returns the saved pair for username, or ErrNotFound.
func (d *DB) LoadSession(username string) (string, error) {
	v, err := d.Get(sessionKey(username))
	if err != nil {
		return "", err
	}
	return string(v), nil
}

// DeleteSession removes the saved pair for username. A missing session is not an error.
func (d *DB) DeleteSession(username string) error {
	if err := d.Delete(sessionKey(username)); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

// DeleteAllSessions removes every saved session and returns how many were removed.
func (d *DB) DeleteAllSessions() (int, error) {
	var keys [][]byte
	err := d.Fold(func(key, _ []byte) error {
		if strings.HasPrefix(string(key), sessionKeyPrefix) {
			keys = append(keys, append([]byte(nil), key...))
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("listing sessions: %w", err)
	}
	for _, k := range keys {
		if err := d.Delete(k); err != nil && !errors.Is(err, ErrNotFound) {
			return 0, err
		}
	}
	return len(keys), nil
}

// PutEntry stores a history entry under its beatmapset key.
func (d *DB) PutEntry(entry models.DownloadEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("error marshalling entry for %s: %w", entry.SetID, err)
	}
	return d.Put([]byte(models.EntryKey(entry.SetID)), data)
}

// GetEntry returns the history entry for setID, or ErrNotFound.
func (d *DB) GetEntry(setID string) (models.DownloadEntry, error) {
	var entry models.DownloadEntry
	data, err := d.Get([]byte(models.EntryKey(setID)))
	if err != nil {
		return entry, err
	}
	if err := json.Unmarshal(data, &entry); err != nil {
		return entry, fmt.Errorf("error unmarshalling entry for %s: %w", setID, err)
	}
	return entry, nil
}

// DeleteEntry removes the history entry for setID.
func (d *DB) DeleteEntry(setID string) error {
	return d.Delete([]byte(models.EntryKey(setID)))
}

// Entries returns all history entries sorted by set id. Undecodable values
// are skipped with a warning.
func (d *DB) Entries() ([]models.DownloadEntry, error) {
	var entries []models.DownloadEntry
	err := d.Fold(func(key, value []byte) error {
		setID, ok := models.SetIDFromKey(string(key))
		if !ok {
			return nil
		}
		var entry models.DownloadEntry
		if err := json.Unmarshal(value, &entry); err != nil {
			log.WithError(err).Warnf("Skipping unreadable entry for %s", setID)
			return nil
		}
		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool {
		if len(entries[i].SetID) != len(entries[j].SetID) {
			return len(entries[i].SetID) < len(entries[j].SetID)
		}
		return entries[i].SetID < entries[j].SetID
	})
	return entries, nil
}
