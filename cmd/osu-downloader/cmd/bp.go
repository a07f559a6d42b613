package cmd

import (
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-osu-download/internal/api"
	"go-osu-download/internal/session"
)

var (
	bpUser  string
	bpMode  string
	bpLimit int
)

var bpCmd = &cobra.Command{
	Use:   "bp <user>",
	Short: "Download the beatmapsets of a player's best performances",
	Long: `Looks up the best performance list of a player (by name or numeric id) and
downloads every beatmapset on it, highest ranked first. Sets that appear more
than once are downloaded once. Login and retry behave as in 'download'.
Examples:
  osu-downloader bp peppy
  osu-downloader bp 124493 --mode mania --limit 50`,
	Args: cobra.ExactArgs(1),
	RunE: runBp,
}

func init() {
	rootCmd.AddCommand(bpCmd)

	bpCmd.Flags().StringVarP(&bpUser, "user", "u", "", "osu! username to log in with (default: config or OSUDL_USERNAME)")
	bpCmd.Flags().StringVarP(&bpMode, "mode", "m", "osu", "Ruleset: osu, taiko, catch, mania or 0-3")
	bpCmd.Flags().IntVarP(&bpLimit, "limit", "n", 100, "Number of best performances to look at")
	addBatchFlags(bpCmd)
}

func runBp(cmd *cobra.Command, args []string) error {
	mode, err := api.ParseMode(bpMode)
	if err != nil {
		return err
	}
	if bpLimit <= 0 {
		return errors.New("--limit must be positive")
	}
	target := strings.TrimSpace(args[0])
	if err := session.ValidateIdentity(target); err != nil {
		return fmt.Errorf("invalid player %q: %w", target, err)
	}

	username, err := resolveUsername(bpUser)
	if err != nil {
		return err
	}

	userID, err := globalClient.ResolveUserID(cmd.Context(), target)
	if err != nil {
		return fmt.Errorf("failed to look up %s: %w", target, err)
	}
	logger := log.WithFields(log.Fields{"player": target, "id": userID, "mode": mode})
	logger.Info("Fetching best performances...")

	scores, err := globalClient.BestScores(cmd.Context(), userID, mode, bpLimit)
	if err != nil {
		if len(scores) == 0 {
			return fmt.Errorf("failed to fetch best performances of %s: %w", target, err)
		}
		logger.WithError(err).Warnf("Best performance list cut short after %d entries", len(scores))
	}
	ids := api.UniqueSetIDs(scores)
	if len(ids) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "%s has no best performances in %s.\n", target, mode)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Found %d beatmapset(s) in %d best performance(s) of %s.\n", len(ids), len(scores), target)

	return runBatch(cmd, username, ids)
}
