package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

// ErrUserNotFound is returned when the service has no profile for a user.
var ErrUserNotFound = errors.New("user not found")

// bestScoresPageSize is the largest page the profile endpoint serves.
const bestScoresPageSize = 100

// Mode is a ruleset as named in profile URLs.
type Mode string

const (
	ModeOsu   Mode = "osu"
	ModeTaiko Mode = "taiko"
	ModeCatch Mode = "fruits"
	ModeMania Mode = "mania"
)

// ParseMode accepts a ruleset name or its numeric id (0-3).
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "0", "osu", "std", "standard":
		return ModeOsu, nil
	case "1", "taiko":
		return ModeTaiko, nil
	case "2", "fruits", "catch", "ctb":
		return ModeCatch, nil
	case "3", "mania":
		return ModeMania, nil
	default:
		return "", fmt.Errorf("unknown mode %q (want osu, taiko, catch, mania or 0-3)", s)
	}
}

// BestScore is one entry of a user's best performance list.
type BestScore struct {
	Rank            int
	SetID           string
	BeatmapChecksum string
}

type bestScoreResponse struct {
	Beatmap struct {
		BeatmapsetID int64  `json:"beatmapset_id"`
		Checksum     string `json:"checksum"`
	} `json:"beatmap"`
	Beatmapset struct {
		ID int64 `json:"id"`
	} `json:"beatmapset"`
}

// ResolveUserID maps a username to its numeric id by following the profile
// redirect. Numeric input is returned as is.
func (c *Client) ResolveUserID(ctx context.Context, user string) (string, error) {
	user = strings.TrimSpace(user)
	if _, err := strconv.ParseUint(user, 10, 64); err == nil {
		return user, nil
	}

	resp, err := c.Get(ctx, "/users/"+url.PathEscape(user), nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return "", fmt.Errorf("%w: %s", ErrUserNotFound, user)
	default:
		return "", fmt.Errorf("looking up user %s: unexpected status %s", user, resp.Status)
	}

	id := path.Base(resp.Request.URL.Path)
	if _, err := strconv.ParseUint(id, 10, 64); err != nil {
		return "", fmt.Errorf("looking up user %s: profile url %s carries no user id", user, resp.Request.URL)
	}
	log.WithFields(log.Fields{"user": user, "id": id}).Debug("Resolved user id")
	return id, nil
}

// BestScores fetches up to limit entries of a user's best performance list,
// highest first. Scores on the same beatmapset are all returned.
func (c *Client) BestScores(ctx context.Context, userID string, mode Mode, limit int) ([]BestScore, error) {
	if limit <= 0 {
		return nil, nil
	}
	var scores []BestScore
	for offset := 0; offset < limit; {
		pageSize := min(bestScoresPageSize, limit-offset)
		page, err := c.bestScoresPage(ctx, userID, mode, offset, pageSize)
		if err != nil {
			return scores, err
		}
		for i, s := range page {
			setID := s.Beatmap.BeatmapsetID
			if setID == 0 {
				setID = s.Beatmapset.ID
			}
			if setID == 0 {
				log.WithField("rank", offset+i+1).Warn("Best score has no beatmapset id, skipping")
				continue
			}
			scores = append(scores, BestScore{
				Rank:            offset + i + 1,
				SetID:           strconv.FormatInt(setID, 10),
				BeatmapChecksum: s.Beatmap.Checksum,
			})
		}
		if len(page) < pageSize {
			break
		}
		offset += len(page)
	}
	return scores, nil
}

func (c *Client) bestScoresPage(ctx context.Context, userID string, mode Mode, offset, limit int) ([]bestScoreResponse, error) {
	q := url.Values{}
	q.Set("mode", string(mode))
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	endpoint := "/users/" + url.PathEscape(userID) + "/scores/best?" + q.Encode()

	resp, err := c.Get(ctx, endpoint, http.Header{"Accept": {"application/json"}})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading best scores of %s at offset %d: %w", userID, offset, err)
	}
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	default:
		return nil, fmt.Errorf("best scores of %s at offset %d: unexpected status %s", userID, offset, resp.Status)
	}

	var page []bestScoreResponse
	if err := json.Unmarshal(body, &page); err != nil {
		log.WithError(err).Debugf("Response body sample: %s", string(body[:min(len(body), 200)]))
		return nil, fmt.Errorf("failed to decode best scores of %s at offset %d: %w", userID, offset, err)
	}
	return page, nil
}

// UniqueSetIDs returns the beatmapset ids of scores in rank order without repeats.
func UniqueSetIDs(scores []BestScore) []string {
	seen := make(map[string]bool, len(scores))
	ids := make([]string, 0, len(scores))
	for _, s := range scores {
		if !seen[s.SetID] {
			seen[s.SetID] = true
			ids = append(ids, s.SetID)
		}
	}
	return ids
}
