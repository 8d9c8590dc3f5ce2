package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaw77735-web/JuteVisionAudit/internal/jutevision/compliance"
	"github.com/shaw77735-web/JuteVisionAudit/internal/jutevision/session"
	"github.com/shaw77735-web/JuteVisionAudit/internal/jutevision/types"
)

var watchDuration time.Duration

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().DurationVar(&watchDuration, "for", 0, "Stop after this long (default: until interrupted)")
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow live metrics and grade",
	Long: "Polls the detection service every $JUTE_POLL_INTERVAL (1.5s) and prints one line per update.\n" +
		"Exits with the final grade once the audit is complete.",
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	if watchDuration > 0 {
		ctx, cancel = context.WithTimeout(ctx, watchDuration)
		defer cancel()
	}

	out := cmd.OutOrStdout()
	// Only the poll goroutine writes these until Close returns.
	var final compliance.Verdict
	completed := false

	ctrl := app.newController(func(s session.AuditSession, v compliance.Verdict) {
		fmt.Fprintln(out, watchLine(s, v))
		if s.Status == types.StatusComplete {
			final, completed = v, true
			cancel()
		}
	})

	ctrl.StartPolling(ctx)
	<-ctx.Done()
	ctrl.Close()

	if completed {
		fmt.Fprintln(out, "Audit complete.")
		printVerdict(out, final)
	}
	return nil
}
