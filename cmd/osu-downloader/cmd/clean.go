package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-osu-download/internal/database"
	"go-osu-download/internal/models"
)

func init() {
	rootCmd.AddCommand(cleanCmd)

	cleanCmd.Flags().BoolP("torrents", "t", false, "Also remove *.torrent files")
	cleanCmd.Flags().BoolP("magnets", "m", false, "Also remove *-magnet.txt files")
	cleanCmd.Flags().Bool("dry-run", false, "Only list what would be removed")
}

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove partial archives left by failed downloads",
	Long: `Removes .osz files whose history entry has status Error (interrupted or
unverifiable downloads). Optionally removes *.torrent and *-magnet.txt files
from the save path as well.`,
	Args: cobra.NoArgs,
	RunE: runClean,
}

type cleanCounts struct {
	partial, torrents, magnets, failed int
}

func runClean(cmd *cobra.Command, args []string) error {
	cleanTorrents, _ := cmd.Flags().GetBool("torrents")
	cleanMagnets, _ := cmd.Flags().GetBool("magnets")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	db, err := openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	var counts cleanCounts
	if err := removePartialArchives(db, dryRun, &counts); err != nil {
		return err
	}

	if cleanTorrents || cleanMagnets {
		if err := removeTorrentFiles(globalConfig.SavePath, cleanTorrents, cleanMagnets, dryRun, &counts); err != nil {
			return err
		}
	}

	verb := "Removed"
	if dryRun {
		verb = "Would remove"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %d partial archive(s), %d .torrent file(s), %d magnet file(s)\n",
		verb, counts.partial, counts.torrents, counts.magnets)
	if counts.failed > 0 {
		return fmt.Errorf("failed to remove %d file(s)", counts.failed)
	}
	return nil
}

// removePartialArchives deletes archives recorded with status Error and
// clears the file reference from their entries.
func removePartialArchives(db *database.DB, dryRun bool, counts *cleanCounts) error {
	entries, err := db.Entries()
	if err != nil {
		return fmt.Errorf("error scanning database: %w", err)
	}
	for _, e := range entries {
		if e.Status != models.StatusError || e.Filename == "" {
			continue
		}
		path := e.Path()
		if dryRun {
			log.Infof("Would remove partial archive: %s", path)
			counts.partial++
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.WithError(err).Errorf("Failed to remove partial archive %s", path)
			counts.failed++
			continue
		} else if err == nil {
			log.Infof("Removed partial archive: %s", path)
			counts.partial++
		}
		e.Filename, e.Folder, e.SizeBytes = "", "", 0
		if err := db.PutEntry(e); err != nil {
			return fmt.Errorf("updating entry %s: %w", e.SetID, err)
		}
	}
	return nil
}

func removeTorrentFiles(savePath string, torrents, magnets, dryRun bool, counts *cleanCounts) error {
	info, err := os.Stat(savePath)
	if err != nil {
		return fmt.Errorf("error accessing SavePath %q: %w", savePath, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("SavePath is not a directory: %s", savePath)
	}

	return filepath.WalkDir(savePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Warnf("Error accessing path %q during scan: %v", path, err)
			return nil
		}
		if d.IsDir() {
			return nil
		}
		name := strings.ToLower(d.Name())
		var counter *int
		switch {
		case torrents && strings.HasSuffix(name, ".torrent"):
			counter = &counts.torrents
		case magnets && strings.HasSuffix(name, "-magnet.txt"):
			counter = &counts.magnets
		default:
			return nil
		}
		if dryRun {
			log.Infof("Would remove: %s", path)
			*counter++
			return nil
		}
		if err := os.Remove(path); err != nil {
			log.Errorf("Failed to remove %q: %v", path, err)
			counts.failed++
			return nil
		}
		log.Debugf("Removed %s", path)
		*counter++
		return nil
	})
}
