package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-osu-download/internal/database"
	"go-osu-download/internal/helpers"
	"go-osu-download/internal/models"
)

// dbCmd represents the base command for database operations
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Interact with the download history database",
}

var dbViewCmd = &cobra.Command{
	Use:   "view",
	Short: "List recorded beatmapsets",
	Args:  cobra.NoArgs,
	RunE:  runDbView,
}

var dbVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check downloaded archives against the history",
	Long: `Checks that every beatmapset recorded as downloaded still exists with the
recorded size and, unless --check-hash=false, the recorded BLAKE3 hash.
With --mark, problem entries are set to status Error so 'clean' and a
forced download can pick them up.`,
	Args: cobra.NoArgs,
	RunE: runDbVerify,
}

var dbForgetCmd = &cobra.Command{
	Use:   "forget <sid>...",
	Short: "Remove beatmapsets from the history",
	Long: `Deletes the history entries for the given set ids so the next download
fetches them again. Archives on disk are left alone.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDbForget,
}

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(dbViewCmd)
	dbCmd.AddCommand(dbVerifyCmd)
	dbCmd.AddCommand(dbForgetCmd)

	dbViewCmd.Flags().String("status", "", "Only show entries with this status (Downloaded, NotFound, Error)")
	dbVerifyCmd.Flags().Bool("check-hash", true, "Compare BLAKE3 hashes of existing files")
	dbVerifyCmd.Flags().Bool("mark", false, "Set status Error on entries that fail verification")
}

func runDbView(cmd *cobra.Command, args []string) error {
	status, _ := cmd.Flags().GetString("status")

	db, err := openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	entries, err := db.Entries()
	if err != nil {
		return fmt.Errorf("error scanning database: %w", err)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Set ID\tStatus\tFile\tSize\tAttempts\tLast Checked\tDetails")
	fmt.Fprintln(tw, "------\t------\t----\t----\t--------\t------------\t-------")
	count := 0
	for _, e := range entries {
		if status != "" && !strings.EqualFold(e.Status, status) {
			continue
		}
		size := ""
		if e.SizeBytes > 0 {
			size = helpers.BytesToSize(uint64(e.SizeBytes))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			e.SetID, e.Status, e.Filename, size, e.Attempts,
			e.LastChecked.Local().Format(time.DateTime), e.ErrorDetails)
		count++
	}
	if err := tw.Flush(); err != nil {
		log.WithError(err).Error("Error flushing table writer for db view")
	}
	log.Debugf("Displayed %d entries.", count)
	return nil
}

func runDbForget(cmd *cobra.Command, args []string) error {
	ids, invalid := helpers.ParseSetIDs(args)
	for _, bad := range invalid {
		log.Warnf("Ignoring invalid beatmapset id %q", bad)
	}

	db, err := openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	removed := 0
	for _, id := range ids {
		if _, err := db.GetEntry(id); errors.Is(err, database.ErrNotFound) {
			log.WithField("set", id).Info("No history entry")
			continue
		}
		if err := db.DeleteEntry(id); err != nil && !errors.Is(err, database.ErrNotFound) {
			return fmt.Errorf("removing entry %s: %w", id, err)
		}
		removed++
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d history entries\n", removed)
	return nil
}

type verificationProblem struct {
	Entry  models.DownloadEntry
	Reason string // "missing", "size mismatch", "hash mismatch"
}

func runDbVerify(cmd *cobra.Command, args []string) error {
	checkHash, _ := cmd.Flags().GetBool("check-hash")
	mark, _ := cmd.Flags().GetBool("mark")

	db, err := openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	entries, err := db.Entries()
	if err != nil {
		return fmt.Errorf("error scanning database: %w", err)
	}

	checked, problems := verifyEntries(entries, checkHash)
	reportVerification(cmd.OutOrStdout(), checked, problems)

	if mark {
		if err := markProblems(db, problems); err != nil {
			return err
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%d of %d downloaded beatmapset(s) failed verification", len(problems), checked)
	}
	return nil
}

// verifyEntries checks downloaded entries on disk and returns how many were
// checked along with the ones that failed.
func verifyEntries(entries []models.DownloadEntry, checkHash bool) (int, []verificationProblem) {
	var problems []verificationProblem
	checked := 0
	for _, e := range entries {
		if e.Status != models.StatusDownloaded {
			continue
		}
		checked++
		logger := log.WithFields(log.Fields{"set": e.SetID, "path": e.Path()})

		info, err := os.Stat(e.Path())
		if err != nil {
			logger.WithError(err).Debug("Archive missing")
			problems = append(problems, verificationProblem{Entry: e, Reason: "missing"})
			continue
		}
		if info.Size() != e.SizeBytes {
			problems = append(problems, verificationProblem{
				Entry:  e,
				Reason: fmt.Sprintf("size mismatch (%d on disk, %d recorded)", info.Size(), e.SizeBytes),
			})
			continue
		}
		if checkHash && e.Blake3 != "" && !helpers.CheckHash(e.Path(), e.Blake3) {
			problems = append(problems, verificationProblem{Entry: e, Reason: "hash mismatch"})
			continue
		}
		logger.Debug("Verified")
	}
	return checked, problems
}

func reportVerification(w io.Writer, checked int, problems []verificationProblem) {
	fmt.Fprintf(w, "Verified %d downloaded beatmapset(s): %d ok, %d with problems\n", checked, checked-len(problems), len(problems))
	if len(problems) == 0 {
		return
	}
	ids := make([]string, 0, len(problems))
	for _, p := range problems {
		fmt.Fprintf(w, "  %s: %s (%s)\n", p.Entry.SetID, p.Reason, p.Entry.Path())
		ids = append(ids, p.Entry.SetID)
	}
	fmt.Fprintf(w, "Download again with: osu-downloader download --force %s\n", strings.Join(ids, " "))
}

func markProblems(db *database.DB, problems []verificationProblem) error {
	for _, p := range problems {
		e := p.Entry
		e.Status = models.StatusError
		e.ErrorDetails = "verification failed: " + p.Reason
		e.LastChecked = time.Now().UTC()
		if err := db.PutEntry(e); err != nil {
			return fmt.Errorf("updating entry %s: %w", e.SetID, err)
		}
	}
	return nil
}
