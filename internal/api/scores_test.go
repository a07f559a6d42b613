package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		in   string
		want Mode
	}{
		{"", ModeOsu},
		{"0", ModeOsu},
		{"osu", ModeOsu},
		{"1", ModeTaiko},
		{"Taiko", ModeTaiko},
		{"2", ModeCatch},
		{"catch", ModeCatch},
		{"fruits", ModeCatch},
		{"3", ModeMania},
		{" mania ", ModeMania},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got, "input %q", tt.in)
	}

	_, err := ParseMode("4")
	assert.Error(t, err)
}

type queryLog struct {
	mu      sync.Mutex
	queries []string
}

func (l *queryLog) add(q string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.queries = append(l.queries, q)
}

func (l *queryLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.queries...)
}

// bestScoresHandler serves total scores for user 2, one beatmapset per rank
// except ranks 2 and 3 which share a set.
func bestScoresHandler(total int, requests *queryLog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requests.add(r.URL.RawQuery)
		if r.URL.Path != "/users/2/scores/best" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		q := r.URL.Query()
		offset, _ := strconv.Atoi(q.Get("offset"))
		limit, _ := strconv.Atoi(q.Get("limit"))
		var items []string
		for rank := offset + 1; rank <= min(offset+limit, total); rank++ {
			set := 1000 + rank
			if rank == 3 {
				set = 1002
			}
			items = append(items, fmt.Sprintf(`{"beatmap":{"beatmapset_id":%d,"checksum":"md5-%d"},"beatmapset":{"id":%d}}`, set, rank, set))
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, "[%s]", strings.Join(items, ","))
	}
}

func TestBestScoresPagesUntilLimit(t *testing.T) {
	var requests queryLog
	c := newTestClient(t, bestScoresHandler(250, &requests))

	scores, err := c.BestScores(context.Background(), "2", ModeMania, 150)
	require.NoError(t, err)
	require.Len(t, scores, 150)
	assert.Equal(t, BestScore{Rank: 1, SetID: "1001", BeatmapChecksum: "md5-1"}, scores[0])
	assert.Equal(t, "1002", scores[2].SetID)
	assert.Equal(t, 150, scores[149].Rank)

	assert.Equal(t, []string{"limit=100&mode=mania&offset=0", "limit=50&mode=mania&offset=100"}, requests.all())

	ids := UniqueSetIDs(scores)
	assert.Len(t, ids, 149)
	assert.Equal(t, []string{"1001", "1002", "1004"}, ids[:3])
}

func TestBestScoresStopsOnShortPage(t *testing.T) {
	var requests queryLog
	c := newTestClient(t, bestScoresHandler(3, &requests))

	scores, err := c.BestScores(context.Background(), "2", ModeOsu, 100)
	require.NoError(t, err)
	assert.Len(t, scores, 3)
	assert.Len(t, requests.all(), 1)
}

func TestBestScoresFallsBackToBeatmapsetID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"beatmap":{"checksum":"x"},"beatmapset":{"id":77}},{"beatmap":{},"beatmapset":{}}]`)
	})

	scores, err := c.BestScores(context.Background(), "2", ModeOsu, 2)
	require.NoError(t, err)
	require.Len(t, scores, 1)
	assert.Equal(t, "77", scores[0].SetID)
}

func TestBestScoresErrors(t *testing.T) {
	var requests queryLog
	c := newTestClient(t, bestScoresHandler(10, &requests))
	_, err := c.BestScores(context.Background(), "3", ModeOsu, 10)
	assert.ErrorIs(t, err, ErrUserNotFound)

	c = newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html>`)
	})
	_, err = c.BestScores(context.Background(), "2", ModeOsu, 10)
	assert.ErrorContains(t, err, "failed to decode")

	c = newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	_, err = c.BestScores(context.Background(), "2", ModeOsu, 10)
	assert.ErrorContains(t, err, "429")

	scores, err := c.BestScores(context.Background(), "2", ModeOsu, 0)
	assert.NoError(t, err)
	assert.Empty(t, scores)
}

func TestResolveUserID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users/peppy":
			http.Redirect(w, r, "/users/2", http.StatusFound)
		case "/users/2":
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	id, err := c.ResolveUserID(context.Background(), "peppy")
	require.NoError(t, err)
	assert.Equal(t, "2", id)

	id, err = c.ResolveUserID(context.Background(), "124493")
	require.NoError(t, err)
	assert.Equal(t, "124493", id)

	_, err = c.ResolveUserID(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrUserNotFound)
}
