/*
Copyright © 2025 blacktop

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/blacktop/metapost/internal/logutil"
	"github.com/blacktop/metapost/internal/metapost"
	"github.com/blacktop/metapost/internal/metapost/facebook"
	"github.com/blacktop/metapost/internal/metapost/instagram"
	"github.com/blacktop/metapost/internal/metapost/publish"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	messageFlag string
	imagePath   string
	targetsFlag []string
	dryRun      bool
	verbose     bool
)

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return newRootCommand().ExecuteContext(ctx)
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metapost [message]",
		Short: "Publish to a Facebook page and its linked Instagram account",
		Long: "metapost logs in with Facebook, finds the first page you manage and its linked " +
			"Instagram business account, and publishes the same text and image to both. " +
			"Provide your message as an argument or with --message and optional --image.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			logutil.SetVerbose(verbose)
		},
		RunE: runRoot,
		Example: `  metapost --message "hello world"
  metapost "Ship it!" --image ./shot.png --target all
  echo "Release shipped" | metapost --image ./banner.jpg --target instagram`,
	}

	cmd.Flags().StringVarP(&messageFlag, "message", "m", "", "Message text to post")
	cmd.Flags().StringVar(&imagePath, "image", "", "Path to an image to attach (required for instagram)")
	cmd.Flags().StringSliceVar(&targetsFlag, "target", []string{string(metapost.TargetFacebook)}, "Targets to post to (facebook, instagram, or all)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the planned API calls without posting")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "V", false, "Enable debug logging")
	cmd.Flags().SortFlags = false

	cmd.AddCommand(newStatusCommand())
	cmd.AddCommand(newAccountsCommand())
	cmd.AddCommand(newCompletionCommand())

	return cmd
}

func runRoot(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	message, err := resolveMessage(cmd, args)
	if err != nil {
		return err
	}

	targets, err := normalizeTargets(targetsFlag)
	if err != nil {
		return err
	}

	draft, err := buildDraft(message, imagePath, targets)
	if err != nil {
		return err
	}

	if dryRun {
		orch := publish.New(nil, facebook.New(nil), instagram.New(nil))
		plans, err := orch.Plan(draft, nil)
		if err != nil {
			return err
		}
		printPlans(out, plans, draft.Snapshot())
		return nil
	}

	cfg, err := loadConfigFromEnv()
	if err != nil {
		return err
	}

	a := newApp(cfg, draft)
	defer a.close()

	session, err := a.connect(ctx, true)
	if err != nil {
		return err
	}

	var account *metapost.LinkedAccount
	if draft.Snapshot().Has(metapost.TargetInstagram) {
		resolved, err := a.resolver.Resolve(ctx, session)
		if err != nil {
			logutil.Warnf("instagram account not resolved: %v", err)
		}
		account = &resolved
	}

	orch, err := a.orchestrator()
	if err != nil {
		return err
	}

	for _, target := range draft.Snapshot().Targets {
		fmt.Fprintf(out, "posting to %s...\n", target)
	}
	results, err := orch.Publish(ctx, draft, session, account)
	for _, res := range results {
		if res.Success {
			fmt.Fprintf(out, "posted to %s (id %s)\n", res.Target, res.RemoteID)
			continue
		}
		fmt.Fprintf(out, "failed to post to %s\n", res.Target)
	}
	return err
}

func resolveMessage(cmd *cobra.Command, args []string) (string, error) {
	var message string

	if messageFlag != "" {
		message = messageFlag
	}

	if len(args) > 0 {
		if message != "" {
			return "", errors.New("provide the message either as an argument or with --message, not both")
		}
		message = strings.Join(args, " ")
	}

	if message != "" {
		return strings.TrimSpace(message), nil
	}

	if file, ok := cmd.InOrStdin().(*os.File); ok && !term.IsTerminal(int(file.Fd())) {
		data, err := io.ReadAll(file)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		message = strings.TrimSpace(string(data))
	}

	if message == "" && imagePath == "" {
		return "", errors.New("message is required when no image is attached")
	}

	return message, nil
}

func normalizeTargets(values []string) ([]metapost.Target, error) {
	selected := map[metapost.Target]bool{}
	for _, raw := range values {
		raw = strings.TrimSpace(strings.ToLower(raw))
		if raw == "" {
			continue
		}
		if raw == "all" {
			return append([]metapost.Target(nil), metapost.Targets...), nil
		}
		target, err := metapost.ParseTarget(raw)
		if err != nil {
			return nil, err
		}
		selected[target] = true
	}

	result := make([]metapost.Target, 0, len(selected))
	for _, target := range metapost.Targets {
		if selected[target] {
			result = append(result, target)
		}
	}
	if len(result) == 0 {
		return nil, errors.New("no targets selected")
	}
	return result, nil
}

func buildDraft(message, path string, targets []metapost.Target) (*metapost.Draft, error) {
	draft := metapost.NewDraft()
	draft.SetText(message)

	if path != "" {
		img, err := metapost.LoadImage(path)
		if err != nil {
			return nil, err
		}
		draft.SetImage(img)
	}

	want := map[metapost.Target]bool{}
	for _, target := range targets {
		want[target] = true
	}
	for _, target := range metapost.Targets {
		if err := draft.Select(target, want[target]); err != nil {
			return nil, err
		}
	}

	return draft, nil
}

func printPlans(out io.Writer, plans []publish.TargetPlan, snap metapost.DraftSnapshot) {
	for _, plan := range plans {
		fmt.Fprintf(out, "[dry-run] would post to %s: %q\n", plan.Target, snap.Text)
		for _, call := range plan.Calls {
			fmt.Fprintf(out, "[dry-run]   %s\n", call)
		}
		if plan.Err != nil {
			fmt.Fprintf(out, "[dry-run]   note: %v\n", plan.Err)
		}
	}
	if snap.Image != nil {
		fmt.Fprintf(out, "[dry-run] image: %s (%s, %d bytes)\n", snap.Image.Name, snap.Image.ContentType, len(snap.Image.Data))
	}
}
