package cmd

import (
	"fmt"

	"rollingdoor-backend/ledger"
	"rollingdoor-backend/sweeper"

	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove expired invite codes and stale access requests once, then exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		s := sweeper.New(ledger.New(db), cfg.Access.SweepInterval, cfg.Access.PendingTTL)
		res, err := s.SweepOnce(cmd.Context())
		fmt.Printf("expired invites removed: %d\nstale requests removed:  %d\n", res.ExpiredInvites, res.StaleRequests)
		return err
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}
