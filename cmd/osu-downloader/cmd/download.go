package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/blevesearch/bleve/v2"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"go-osu-download/index"
	"go-osu-download/internal/config"
	"go-osu-download/internal/database"
	"go-osu-download/internal/downloader"
	"go-osu-download/internal/helpers"
	"go-osu-download/internal/progress"
	"go-osu-download/internal/session"
)

var downloadUser string

var downloadCmd = &cobra.Command{
	Use:   "download <sid>...",
	Short: "Download beatmapsets by set id",
	Long: `Downloads each beatmapset archive as <sid>.osz into the save path.
Ids may be given as separate arguments or comma separated. A saved session is
reused when present; otherwise you are asked for your password and logged in.
If downloads fail because the session expired, it is refreshed once and the
failed ids are retried once.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDownload,
}

func init() {
	rootCmd.AddCommand(downloadCmd)

	downloadCmd.Flags().StringVarP(&downloadUser, "user", "u", "", "osu! username (default: config or OSUDL_USERNAME)")
	addBatchFlags(downloadCmd)

	viper.BindPFlag("download.concurrency", downloadCmd.Flags().Lookup("concurrency"))
	viper.BindPFlag("download.video", downloadCmd.Flags().Lookup("video"))
	viper.BindPFlag("download.force", downloadCmd.Flags().Lookup("force"))
	viper.BindPFlag("download.progress", downloadCmd.Flags().Lookup("progress"))
	viper.BindPFlag("download.no_index", downloadCmd.Flags().Lookup("no-index"))
}

func runDownload(cmd *cobra.Command, args []string) error {
	ids, invalid := helpers.ParseSetIDs(args)
	for _, bad := range invalid {
		log.Warnf("Ignoring invalid beatmapset id %q", bad)
	}
	if len(ids) == 0 {
		return errors.New("no valid beatmapset ids given")
	}

	username, err := resolveUsername(downloadUser)
	if err != nil {
		return err
	}
	return runBatch(cmd, username, ids)
}

// runBatch downloads ids for username with the settings of cmd and records
// every outcome. It is shared by every command that ends in a download.
func runBatch(cmd *cobra.Command, username string, ids []string) error {
	if username != globalConfig.Username || cmd.Flags().Changed("save-path") {
		globalConfig.Username = username
		if err := config.SaveConfig(cfgFile, globalConfig); err != nil {
			log.WithError(err).Warn("Could not save config")
		}
	}

	noVideo := globalConfig.NoVideo
	if cmd.Flags().Changed("video") {
		noVideo = !boolSetting(cmd, "video", "download.video")
	}
	concurrency := globalConfig.Concurrency
	if c := intSetting(cmd, "concurrency", "download.concurrency"); c > 0 {
		concurrency = c
	}

	if globalConfig.SavePath == "" {
		return errors.New("save path is not configured (--save-path or config file)")
	}
	if !helpers.CheckAndMakeDir(globalConfig.SavePath) {
		return fmt.Errorf("%w: %s", downloader.ErrInvalidDestination, globalConfig.SavePath)
	}

	db, err := openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	var skipped []string
	if !boolSetting(cmd, "force", "download.force") {
		ids, skipped = filterDownloaded(db, ids)
		for _, id := range skipped {
			log.WithField("set", id).Info("Already downloaded, skipping (use --force to download again)")
		}
		if len(ids) == 0 {
			printSummary(cmd.OutOrStdout(), globalConfig.SavePath, downloader.BatchResult{}, skipped)
			return nil
		}
	}

	var idx bleve.Index
	if !boolSetting(cmd, "no-index", "download.no_index") {
		idx, err = index.OpenOrCreateIndex(globalConfig.IndexPath)
		if err != nil {
			log.WithError(err).Warn("Search index unavailable, downloads will not be indexed")
			idx = nil
		} else {
			defer idx.Close()
		}
	}

	sess, err := restoreOrLogin(cmd.Context(), db, username)
	if err != nil {
		return err
	}

	rec := &recorder{db: db, index: idx, noVideo: noVideo}
	opts := downloader.Options{Concurrency: concurrency, OnOutcome: rec.record}
	var board *progress.Board
	if boolSetting(cmd, "progress", "download.progress") {
		board = progress.New(os.Stderr)
		opts.Progress = board.Update
		opts.OnOutcome = func(id string, o downloader.Outcome) {
			board.Finish(id, o.Reason())
			rec.record(id, o)
		}
		board.Start()
	}

	result, batchErr := downloader.NewDownloader(globalClient, opts).Download(cmd.Context(), ids, sess, globalConfig.SavePath, noVideo)
	if board != nil {
		board.Stop()
	}

	persistSession(db, sess, batchErr)
	printSummary(cmd.OutOrStdout(), globalConfig.SavePath, result, skipped)

	if batchErr != nil {
		return batchErr
	}
	if failed := result.Errored(); len(failed) > 0 {
		return fmt.Errorf("%d beatmapset(s) failed to download", len(failed))
	}
	return nil
}

// addBatchFlags registers the flags every downloading command understands.
func addBatchFlags(cmd *cobra.Command) {
	cmd.Flags().IntP("concurrency", "c", 0, "Number of concurrent downloads (default from config)")
	cmd.Flags().BoolP("video", "v", false, "Download the variant that includes video (default from config)")
	cmd.Flags().BoolP("force", "f", false, "Download again even if the history says the archive is present")
	cmd.Flags().Bool("progress", term.IsTerminal(int(os.Stderr.Fd())), "Show a live progress board")
	cmd.Flags().Bool("no-index", false, "Do not add downloaded beatmapsets to the search index")
}

// The download.* keys are bound to the download command's flags. Other
// commands share the keys for env and config values and override them with
// their own flags when set.
func boolSetting(cmd *cobra.Command, flag, key string) bool {
	if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
		v, _ := cmd.Flags().GetBool(flag)
		return v
	}
	return viper.GetBool(key)
}

func intSetting(cmd *cobra.Command, flag, key string) int {
	if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
		v, _ := cmd.Flags().GetInt(flag)
		return v
	}
	return viper.GetInt(key)
}

// persistSession stores the possibly refreshed session, or drops it when the
// service rejected the credentials.
func persistSession(db *database.DB, sess *session.Session, batchErr error) {
	logger := log.WithField("user", sess.Identity())
	if errors.Is(batchErr, session.ErrIncorrectCredentials) {
		if err := db.DeleteSession(sess.Identity()); err != nil {
			logger.WithError(err).Warn("Could not remove rejected session")
		}
		return
	}
	if sess.State() != session.StateAuthenticated {
		return
	}
	if err := db.SaveSession(sess.Identity(), sess.Recoverable()); err != nil {
		logger.WithError(err).Warn("Could not save session")
	}
}
