package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/anacrolix/torrent/metainfo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-osu-download/internal/helpers"
	"go-osu-download/internal/models"
)

func TestVerifyEntries(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "1.osz")
	require.NoError(t, os.WriteFile(good, []byte("archive"), 0644))
	goodHash, err := helpers.HashFile(good)
	require.NoError(t, err)
	tampered := filepath.Join(dir, "2.osz")
	require.NoError(t, os.WriteFile(tampered, []byte("ARCHIVE"), 0644))
	short := filepath.Join(dir, "3.osz")
	require.NoError(t, os.WriteFile(short, []byte("arc"), 0644))

	entries := []models.DownloadEntry{
		{SetID: "1", Status: models.StatusDownloaded, Folder: dir, Filename: "1.osz", SizeBytes: 7, Blake3: goodHash},
		{SetID: "2", Status: models.StatusDownloaded, Folder: dir, Filename: "2.osz", SizeBytes: 7, Blake3: goodHash},
		{SetID: "3", Status: models.StatusDownloaded, Folder: dir, Filename: "3.osz", SizeBytes: 7},
		{SetID: "4", Status: models.StatusDownloaded, Folder: dir, Filename: "4.osz", SizeBytes: 7},
		{SetID: "5", Status: models.StatusNotFound},
	}

	checked, problems := verifyEntries(entries, true)
	assert.Equal(t, 4, checked)
	require.Len(t, problems, 3)
	assert.Equal(t, "2", problems[0].Entry.SetID)
	assert.Equal(t, "hash mismatch", problems[0].Reason)
	assert.Equal(t, "3", problems[1].Entry.SetID)
	assert.True(t, strings.HasPrefix(problems[1].Reason, "size mismatch"))
	assert.Equal(t, "4", problems[2].Entry.SetID)
	assert.Equal(t, "missing", problems[2].Reason)

	_, problems = verifyEntries(entries, false)
	assert.Len(t, problems, 2)

	var out bytes.Buffer
	reportVerification(&out, 4, problems)
	assert.Contains(t, out.String(), "2 ok, 2 with problems")
	assert.Contains(t, out.String(), "download --force 3 4")
}

func TestMarkProblems(t *testing.T) {
	db := openTestDB(t)
	entry := models.DownloadEntry{SetID: "8", Status: models.StatusDownloaded, Filename: "8.osz"}
	require.NoError(t, db.PutEntry(entry))

	require.NoError(t, markProblems(db, []verificationProblem{{Entry: entry, Reason: "missing"}}))

	got, err := db.GetEntry("8")
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, got.Status)
	assert.Equal(t, "verification failed: missing", got.ErrorDetails)
}

func TestRemovePartialArchives(t *testing.T) {
	db := openTestDB(t)
	dir := t.TempDir()
	partial := filepath.Join(dir, "5.osz")
	require.NoError(t, os.WriteFile(partial, []byte("half"), 0644))
	complete := filepath.Join(dir, "6.osz")
	require.NoError(t, os.WriteFile(complete, []byte("whole"), 0644))

	require.NoError(t, db.PutEntry(models.DownloadEntry{SetID: "5", Status: models.StatusError, Folder: dir, Filename: "5.osz", SizeBytes: 4}))
	require.NoError(t, db.PutEntry(models.DownloadEntry{SetID: "6", Status: models.StatusDownloaded, Folder: dir, Filename: "6.osz", SizeBytes: 5}))
	// Recorded path that is already gone.
	require.NoError(t, db.PutEntry(models.DownloadEntry{SetID: "7", Status: models.StatusError, Folder: dir, Filename: "7.osz"}))

	var dry cleanCounts
	require.NoError(t, removePartialArchives(db, true, &dry))
	assert.Equal(t, 2, dry.partial)
	assert.FileExists(t, partial)

	var counts cleanCounts
	require.NoError(t, removePartialArchives(db, false, &counts))
	assert.Equal(t, 1, counts.partial)
	assert.Equal(t, 0, counts.failed)
	assert.NoFileExists(t, partial)
	assert.FileExists(t, complete)

	for _, id := range []string{"5", "7"} {
		e, err := db.GetEntry(id)
		require.NoError(t, err)
		assert.Equal(t, models.StatusError, e.Status)
		assert.Empty(t, e.Filename)
	}
}

func TestRemoveTorrentFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"1.torrent", "1-magnet.txt", "1.osz"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644))
	}

	var counts cleanCounts
	require.NoError(t, removeTorrentFiles(dir, true, false, false, &counts))
	assert.Equal(t, 1, counts.torrents)
	assert.Equal(t, 0, counts.magnets)
	assert.NoFileExists(t, filepath.Join(dir, "1.torrent"))
	assert.FileExists(t, filepath.Join(dir, "1-magnet.txt"))
	assert.FileExists(t, filepath.Join(dir, "1.osz"))

	assert.Error(t, removeTorrentFiles(filepath.Join(dir, "missing"), true, true, false, &counts))
}

func TestGenerateTorrentFile(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "1061.osz")
	writeOsz(t, archive)

	job := torrentJob{
		Entry:          models.DownloadEntry{SetID: "1061", Folder: dir, Filename: "1061.osz"},
		SourcePath:     archive,
		Trackers:       []string{"udp://tracker.example:1337/announce", "https://tracker.example/announce"},
		GenerateMagnet: true,
	}
	res, err := generateTorrentFile(job)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "1061.torrent"), res.TorrentPath)
	assert.True(t, strings.HasPrefix(res.MagnetURI, "magnet:?xt=urn:btih:"))
	assert.Contains(t, res.MagnetURI, "dn=1061.osz")

	mi, err := metainfo.LoadFromFile(res.TorrentPath)
	require.NoError(t, err)
	assert.Equal(t, job.Trackers[0], mi.Announce)
	info, err := mi.UnmarshalInfo()
	require.NoError(t, err)
	assert.Equal(t, "1061.osz", info.Name)

	magnet, err := os.ReadFile(filepath.Join(dir, "1061-magnet.txt"))
	require.NoError(t, err)
	assert.Equal(t, res.MagnetURI, string(magnet))

	// Existing torrents are kept unless overwriting.
	again, err := generateTorrentFile(job)
	require.NoError(t, err)
	assert.Empty(t, again.TorrentPath)

	job.Overwrite = true
	again, err = generateTorrentFile(job)
	require.NoError(t, err)
	assert.Equal(t, res.TorrentPath, again.TorrentPath)
}

func TestGenerateTorrentFileMissingSource(t *testing.T) {
	_, err := generateTorrentFile(torrentJob{SourcePath: filepath.Join(t.TempDir(), "nope.osz")})
	assert.Error(t, err)
}
