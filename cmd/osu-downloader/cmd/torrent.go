package cmd

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/anacrolix/torrent/bencode"
	"github.com/anacrolix/torrent/metainfo"
	"github.com/blevesearch/bleve/v2"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"go-osu-download/index"
	"go-osu-download/internal/helpers"
	"go-osu-download/internal/models"
)

// torrentJob is one archive to build a .torrent for.
type torrentJob struct {
	Entry          models.DownloadEntry
	SourcePath     string
	Trackers       []string
	OutputDir      string
	Overwrite      bool
	GenerateMagnet bool
}

// torrentResult carries what was written so the index can be updated.
type torrentResult struct {
	TorrentPath string
	MagnetURI   string
}

var (
	torrentSetIDs       []string
	announceURLs        []string
	torrentOutputDir    string
	overwriteTorrents   bool
	generateMagnetLinks bool
	torrentConcurrency  int
)

var torrentCmd = &cobra.Command{
	Use:   "torrent",
	Short: "Generate .torrent files for downloaded beatmapsets",
	Long: `Generates a BitTorrent metainfo (.torrent) file for every archive recorded
as downloaded, or only for the sets given with --set. Optionally writes a
magnet link next to each torrent. Tracker announce URLs are required.`,
	Args: cobra.NoArgs,
	RunE: runTorrent,
}

func init() {
	rootCmd.AddCommand(torrentCmd)

	torrentCmd.Flags().StringSliceVar(&announceURLs, "announce", []string{}, "Tracker announce URL (repeatable)")
	torrentCmd.Flags().StringSliceVar(&torrentSetIDs, "set", []string{}, "Beatmapset id(s) to generate torrents for (default: all downloaded)")
	torrentCmd.Flags().StringVarP(&torrentOutputDir, "output-dir", "o", "", "Directory to save generated .torrent files (default: next to the archive)")
	torrentCmd.Flags().BoolVarP(&overwriteTorrents, "overwrite", "f", false, "Overwrite existing .torrent files")
	torrentCmd.Flags().BoolVar(&generateMagnetLinks, "magnet-links", false, "Write a *-magnet.txt file alongside each .torrent file")
	torrentCmd.Flags().IntVarP(&torrentConcurrency, "concurrency", "c", 4, "Number of concurrent torrent generation workers")
}

func runTorrent(cmd *cobra.Command, args []string) error {
	if len(announceURLs) == 0 {
		return errors.New("at least one --announce URL is required")
	}
	if torrentConcurrency <= 0 {
		log.Warnf("Invalid concurrency value %d, defaulting to 4", torrentConcurrency)
		torrentConcurrency = 4
	}

	db, err := openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	entries, err := db.Entries()
	if err != nil {
		return fmt.Errorf("error scanning database: %w", err)
	}

	wanted := map[string]bool{}
	for _, id := range torrentSetIDs {
		wanted[strings.TrimSpace(id)] = true
	}
	var jobs []torrentJob
	for _, e := range entries {
		if e.Status != models.StatusDownloaded || e.Filename == "" {
			continue
		}
		if len(wanted) > 0 && !wanted[e.SetID] {
			continue
		}
		jobs = append(jobs, torrentJob{
			Entry:          e,
			SourcePath:     e.Path(),
			Trackers:       announceURLs,
			OutputDir:      torrentOutputDir,
			Overwrite:      overwriteTorrents,
			GenerateMagnet: generateMagnetLinks,
		})
	}
	if len(jobs) == 0 {
		log.Info("No downloaded beatmapsets to generate torrents for.")
		return nil
	}

	var idx bleve.Index
	if ix, err := index.OpenOrCreateIndex(globalConfig.IndexPath); err == nil {
		idx = ix
		defer idx.Close()
	} else {
		log.WithError(err).Warn("Search index unavailable, torrent paths will not be indexed")
	}

	log.Infof("Generating torrents for %d beatmapset(s) using %d workers...", len(jobs), torrentConcurrency)
	var succeeded, failed atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(torrentConcurrency)
	for _, job := range jobs {
		g.Go(func() error {
			logger := log.WithFields(log.Fields{"set": job.Entry.SetID, "path": job.SourcePath})
			res, err := generateTorrentFile(job)
			if err != nil {
				logger.WithError(err).Error("Failed to generate torrent")
				failed.Add(1)
				return nil
			}
			succeeded.Add(1)
			if idx != nil && res.TorrentPath != "" {
				updateIndexedTorrent(idx, job.Entry, res)
			}
			return nil
		})
	}
	_ = g.Wait()

	fmt.Fprintf(cmd.OutOrStdout(), "Torrent generation complete. Success: %d, Failed: %d\n", succeeded.Load(), failed.Load())
	if n := failed.Load(); n > 0 {
		return fmt.Errorf("%d torrents failed to generate", n)
	}
	return nil
}

// generateTorrentFile writes <archive>.torrent (and optionally a magnet file)
// for a single .osz. An existing torrent is left alone unless Overwrite is set.
func generateTorrentFile(job torrentJob) (torrentResult, error) {
	stat, err := os.Stat(job.SourcePath)
	if err != nil {
		return torrentResult{}, fmt.Errorf("error stating source path %s: %w", job.SourcePath, err)
	}
	if stat.IsDir() {
		return torrentResult{}, fmt.Errorf("source path is a directory: %s", job.SourcePath)
	}

	torrentFileName := strings.TrimSuffix(stat.Name(), filepath.Ext(stat.Name())) + ".torrent"
	outDir := filepath.Dir(job.SourcePath)
	if job.OutputDir != "" {
		if !helpers.CheckAndMakeDir(job.OutputDir) {
			return torrentResult{}, fmt.Errorf("error creating output directory %s", job.OutputDir)
		}
		outDir = job.OutputDir
	}
	outPath := filepath.Join(outDir, torrentFileName)

	if _, err := os.Stat(outPath); err == nil {
		if !job.Overwrite {
			log.WithField("path", outPath).Info("Skipping existing torrent file (use --overwrite to replace)")
			return torrentResult{}, nil
		}
		log.WithField("path", outPath).Warn("Overwriting existing torrent file")
	}

	mi := metainfo.MetaInfo{AnnounceList: make([][]string, len(job.Trackers))}
	for i, tracker := range job.Trackers {
		mi.AnnounceList[i] = []string{tracker}
	}
	if len(job.Trackers) > 0 {
		mi.Announce = job.Trackers[0]
	}
	mi.CreatedBy = "go-osu-download"

	const pieceLength = 256 * 1024
	info := metainfo.Info{PieceLength: pieceLength}
	if err := info.BuildFromFilePath(job.SourcePath); err != nil {
		return torrentResult{}, fmt.Errorf("error building torrent info from path %s: %w", job.SourcePath, err)
	}
	mi.InfoBytes, err = bencode.Marshal(info)
	if err != nil {
		return torrentResult{}, fmt.Errorf("error marshaling torrent info: %w", err)
	}

	f, err := os.Create(outPath)
	if err != nil {
		return torrentResult{}, fmt.Errorf("error creating torrent file %s: %w", outPath, err)
	}
	if err := mi.Write(f); err != nil {
		f.Close()
		return torrentResult{}, fmt.Errorf("error writing torrent file %s: %w", outPath, err)
	}
	if err := f.Close(); err != nil {
		return torrentResult{}, fmt.Errorf("error writing torrent file %s: %w", outPath, err)
	}
	log.WithField("path", outPath).Info("Generated torrent file")

	res := torrentResult{TorrentPath: outPath}
	if job.GenerateMagnet {
		res.MagnetURI = magnetURI(mi, stat.Name(), job.Trackers)
		magnetOutPath := strings.TrimSuffix(outPath, ".torrent") + "-magnet.txt"
		if err := os.WriteFile(magnetOutPath, []byte(res.MagnetURI), 0644); err != nil {
			log.WithError(err).WithField("path", magnetOutPath).Error("Failed to write magnet link file")
		}
	}
	return res, nil
}

func magnetURI(mi metainfo.MetaInfo, displayName string, trackers []string) string {
	parts := []string{
		fmt.Sprintf("magnet:?xt=urn:btih:%s", mi.HashInfoBytes().HexString()),
		fmt.Sprintf("dn=%s", url.QueryEscape(displayName)),
	}
	for _, tracker := range trackers {
		parts = append(parts, fmt.Sprintf("tr=%s", url.QueryEscape(tracker)))
	}
	return strings.Join(parts, "&")
}

// updateIndexedTorrent records the torrent location on the beatmapset's
// index document, rebuilding it from the archive.
func updateIndexedTorrent(idx bleve.Index, entry models.DownloadEntry, res torrentResult) {
	logger := log.WithField("set", entry.SetID)
	item, err := index.ItemFromArchive(entry.SetID, entry.Path())
	if err != nil {
		logger.WithError(err).Debug("Indexing torrent without archive metadata")
	}
	item.Blake3 = entry.Blake3
	item.NoVideo = entry.NoVideo
	item.DownloadedAt = entry.LastChecked
	item.TorrentPath = res.TorrentPath
	item.MagnetLink = res.MagnetURI
	if err := index.IndexItem(idx, item); err != nil {
		logger.WithError(err).Warn("Could not update index with torrent path")
	}
}
