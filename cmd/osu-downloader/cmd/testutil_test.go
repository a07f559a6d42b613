package cmd

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"go-osu-download/internal/database"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "osu.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

const ghostDifficulty = "osu file format v14\n\n[General]\nAudioFilename: audio.mp3\n\n[Metadata]\n" +
	"Title:Ghost\nArtist:Camellia\nCreator:Realazy\nVersion:Extra\nSource:\nTags:electronic dubstep\n\n" +
	"[Difficulty]\nHPDrainRate:6\n"

// writeOsz writes a minimal beatmapset archive and returns its size.
func writeOsz(t *testing.T, path string) int64 {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("Camellia - Ghost (Realazy) [Extra].osu")
	require.NoError(t, err)
	_, err = w.Write([]byte(ghostDifficulty))
	require.NoError(t, err)
	w, err = zw.Create("audio.mp3")
	require.NoError(t, err)
	_, err = w.Write([]byte("ID3"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	return info.Size()
}
