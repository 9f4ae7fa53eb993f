package cmd

import (
	"fmt"

	"github.com/blacktop/metapost/internal/metapost/bootstrap"
	"github.com/spf13/cobra"
)

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether the Graph API is reachable and a session is active",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfigFromEnv()
			if err != nil {
				return err
			}

			a := newApp(cfg, nil)
			defer a.close()

			out := cmd.OutOrStdout()
			session, err := a.connect(cmd.Context(), false)
			state, _ := a.boot.State()
			fmt.Fprintf(out, "sdk:     %s\n", state)
			if err != nil {
				if state == bootstrap.StateFailed {
					fmt.Fprintf(out, "error:   %v\n", err)
					return nil
				}
				return err
			}
			fmt.Fprintf(out, "session: %s\n", session.Status)
			return nil
		},
	}
}
