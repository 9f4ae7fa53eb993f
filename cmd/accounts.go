package cmd

import (
	"errors"
	"fmt"

	"github.com/blacktop/metapost/internal/metapost"
	"github.com/spf13/cobra"
)

func newAccountsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "accounts",
		Short: "Log in and show the page and linked Instagram account used for posting",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfigFromEnv()
			if err != nil {
				return err
			}

			a := newApp(cfg, nil)
			defer a.close()

			ctx := cmd.Context()
			session, err := a.connect(ctx, true)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			account, err := a.resolver.Resolve(ctx, session)
			switch {
			case err == nil:
				fmt.Fprintf(out, "page:      %s (%s)\n", account.Page.Name, account.Page.ID)
				fmt.Fprintf(out, "instagram: %s\n", account.AccountID)
				return nil
			case errors.Is(err, metapost.ErrNoLinkedAccount):
				page, perr := a.resolver.PrimaryResource(ctx, session)
				if perr != nil {
					return perr
				}
				fmt.Fprintf(out, "page:      %s (%s)\n", page.Name, page.ID)
				fmt.Fprintln(out, "instagram: no linked business account")
				return nil
			default:
				return err
			}
		},
	}
}
