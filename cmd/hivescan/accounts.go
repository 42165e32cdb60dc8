package main

import (
	"fmt"

	"hivescan/internal/config"

	"github.com/spf13/cobra"
)

func newAccountsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Inspect the account files",
	}
	var file string
	check := &cobra.Command{
		Use:   "check",
		Short: "Validate the accounts file against its schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := file
			if path == "" {
				path = opts.cfg.AccountsFile
			}
			accts, err := config.LoadAccounts(path)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d accounts, %d high level accounts\n", path, len(accts.Accounts), len(accts.HighLevelAccounts))
			return nil
		},
	}
	check.Flags().StringVar(&file, "file", "", "accounts file (default from config accounts_file)")
	cmd.AddCommand(check)
	return cmd
}
