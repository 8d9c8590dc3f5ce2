package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shaw77735-web/JuteVisionAudit/internal/jutevision/fault"
	"github.com/shaw77735-web/JuteVisionAudit/internal/jutevision/session"
)

var resetYes bool

func init() {
	rootCmd.AddCommand(statusCmd, startCmd, stopCmd, resetCmd)
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "Reset without asking (also $JUTE_SKIP_CONFIRM)")
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current audit and its grade",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start scanning",
	Long:  "Starts a scan from idle, complete or error. Starting while a scan is running is refused.",
	Args:  cobra.NoArgs,
	RunE:  runStart,
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop scanning and show final results",
	Args:  cobra.NoArgs,
	RunE:  runStop,
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Return to idle and clear the running total",
	Args:  cobra.NoArgs,
	RunE:  runReset,
}

func runStatus(cmd *cobra.Command, _ []string) error {
	ctrl := app.newController(nil)
	defer ctrl.Close()

	snap, err := ctrl.Sync(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	printSession(out, snap)
	printVerdict(out, session.Classify(snap))
	return nil
}

func runStart(cmd *cobra.Command, _ []string) error {
	ctrl := app.newController(nil)
	defer ctrl.Close()
	ctx := cmd.Context()

	if _, err := ctrl.Sync(ctx); err != nil {
		return err
	}
	snap, err := ctrl.Start(ctx)
	if errors.Is(err, fault.ErrInvalidTransition) {
		return fmt.Errorf("audit already %s; stop it first", snap.Status)
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Audit started.")
	printSession(cmd.OutOrStdout(), snap)
	return nil
}

func runStop(cmd *cobra.Command, _ []string) error {
	ctrl := app.newController(nil)
	defer ctrl.Close()
	ctx := cmd.Context()

	if _, err := ctrl.Sync(ctx); err != nil {
		return err
	}
	snap, err := ctrl.Stop(ctx)
	if errors.Is(err, fault.ErrInvalidTransition) {
		return fmt.Errorf("no scan running (audit is %s)", snap.Status)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Audit complete.")
	printSession(out, snap)
	if ctrl.ResultsUnlocked() {
		printVerdict(out, ctrl.Verdict())
	}
	return nil
}

func runReset(cmd *cobra.Command, _ []string) error {
	if !resetYes && !app.cfg.SkipConfirm {
		ok, err := confirm(cmd, "Reset the audit? The scanned total will be cleared.")
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(cmd.OutOrStdout(), "Reset cancelled.")
			return nil
		}
	}

	ctrl := app.newController(nil)
	defer ctrl.Close()

	if _, err := ctrl.Reset(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Audit reset.")
	return nil
}
