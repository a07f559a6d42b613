package cmd

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-osu-download/index"
	"go-osu-download/internal/config"
)

var (
	clearKeepConfig bool
	clearIndex      bool
)

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete saved sessions and the config file",
	Long: `Removes every saved session from the database and deletes the config file.
Download history is kept. Use this when a saved session is corrupt.
With --index the search index is deleted too; it is rebuilt as beatmapsets
are downloaded again.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDatabase()
		if err != nil {
			return err
		}
		n, err := db.DeleteAllSessions()
		db.Close()
		if err != nil {
			return fmt.Errorf("clearing sessions: %w", err)
		}
		log.Infof("Removed %d saved session(s)", n)

		if !clearKeepConfig {
			if err := config.RemoveConfig(cfgFile); err != nil {
				return fmt.Errorf("removing config %s: %w", cfgFile, err)
			}
			log.Infof("Removed config file %s", cfgFile)
		}
		if clearIndex {
			if err := index.DeleteIndex(globalConfig.IndexPath); err != nil {
				return fmt.Errorf("removing search index: %w", err)
			}
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Cleared.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(clearCmd)
	clearCmd.Flags().BoolVar(&clearKeepConfig, "keep-config", false, "Only clear sessions, keep the config file")
	clearCmd.Flags().BoolVar(&clearIndex, "index", false, "Also delete the search index")
}
