package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/breeze-rmm/osupgrade/internal/audit"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Work with the command audit trail",
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify [file]",
	Short: "Check the hash chain of the audit trail",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfg.AuditFile
		if len(args) == 1 {
			path = args[0]
		}
		if path == "" {
			return errors.New("no audit file configured (set audit_file or pass a path)")
		}

		n, err := audit.Verify(path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d entries, chain intact\n", path, n)
		return nil
	},
}

func init() {
	auditCmd.AddCommand(auditVerifyCmd)
}
