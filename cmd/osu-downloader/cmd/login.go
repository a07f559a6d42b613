package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"go-osu-download/internal/config"
)

var loginUser string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and store the session without downloading anything",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		username, err := resolveUsername(loginUser)
		if err != nil {
			return err
		}

		db, err := openDatabase()
		if err != nil {
			return err
		}
		defer db.Close()

		if _, err := login(cmd.Context(), db, username); err != nil {
			return err
		}

		if globalConfig.Username != username {
			globalConfig.Username = username
			if err := config.SaveConfig(cfgFile, globalConfig); err != nil {
				return err
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", username)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)
	loginCmd.Flags().StringVarP(&loginUser, "user", "u", "", "osu! username (default: config or OSUDL_USERNAME)")
}
