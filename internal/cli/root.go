// Package cli implements the jutevision operator command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/shaw77735-web/JuteVisionAudit/internal/config"
	"github.com/shaw77735-web/JuteVisionAudit/internal/detectclient"
	"github.com/shaw77735-web/JuteVisionAudit/internal/health"
	"github.com/shaw77735-web/JuteVisionAudit/internal/jutevision/fault"
	"github.com/shaw77735-web/JuteVisionAudit/internal/jutevision/gate"
	"github.com/shaw77735-web/JuteVisionAudit/internal/jutevision/session"
)

var (
	flagServiceURL  string
	flagWait        bool
	flagWaitTimeout time.Duration
	flagAppPIN      string
)

// app is built once per invocation by the root PersistentPreRunE.
var app *appState

type appState struct {
	cfg    config.ClientConfig
	logger *slog.Logger
	client *detectclient.Client
	gate   *gate.Gate
}

// newController returns a session controller bound to the shared client
// and gate. Callers Close it.
func (a *appState) newController(listener session.Listener) *session.Controller {
	return session.New(a.client, a.gate, session.Options{
		PollInterval: a.cfg.PollInterval,
		Logger:       a.logger,
		Listener:     listener,
	})
}

var rootCmd = &cobra.Command{
	Use:   "jutevision",
	Short: "Run jute bale audits against a JuteVision detection service",
	Long: "Starts, monitors and grades jute audits, saves and browses captured frames,\n" +
		"and manages the app and file PIN locks of a JuteVision detection service.",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagServiceURL, "url", "", "Detection service URL (default $JUTE_SERVICE_URL)")
	pf.BoolVar(&flagWait, "wait", false, "Wait for the detection service health check before running")
	pf.DurationVar(&flagWaitTimeout, "wait-timeout", 30*time.Second, "How long --wait waits")
	pf.StringVar(&flagAppPIN, "app-pin", "", "App PIN when the app lock is enabled (default $JUTE_APP_PIN, else prompt)")
}

// Execute runs the root command.
func Execute(ctx context.Context) int {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		return 1
	}
	return 0
}

func setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.ClientFromEnv()
	if err != nil {
		return err
	}
	if flagServiceURL != "" {
		cfg.ServiceURL = flagServiceURL
	}

	logger := newCommandLogger(cfg.LogLevel).With("command", cmd.CommandPath())

	client, err := detectclient.New(detectclient.Options{
		BaseURL:  cfg.ServiceURL,
		Timeout:  cfg.RequestTimeout,
		Protobuf: cfg.WireFormat == "protobuf",
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if flagWait {
		if err := waitForService(ctx, cfg.GRPCAddr, logger); err != nil {
			return err
		}
	}

	g := gate.New(client, client)
	if err := g.Refresh(ctx); err != nil {
		return fmt.Errorf("detection service at %s: %w", cfg.ServiceURL, err)
	}

	app = &appState{cfg: cfg, logger: logger, client: client, gate: g}

	if g.IsGateRequired(gate.LockApp) {
		if err := unlockApp(cmd); err != nil {
			return err
		}
	}
	return nil
}

func waitForService(ctx context.Context, addr string, logger *slog.Logger) error {
	conn, err := health.Dial(addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(ctx, flagWaitTimeout)
	defer cancel()
	return health.WaitForHealth(ctx, conn, health.ServiceName, logger)
}

func unlockApp(cmd *cobra.Command) error {
	pin := flagAppPIN
	if pin == "" {
		pin = app.cfg.AppPIN
	}
	if pin == "" {
		var err error
		if pin, err = readPIN(cmd, "App PIN: "); err != nil {
			return err
		}
	}

	_, err := app.gate.Authorize(cmd.Context(), gate.LockApp, pin)
	if errors.Is(err, fault.ErrCredentialDenied) {
		return fmt.Errorf("app locked: %s", fault.Reason(err))
	}
	return err
}

// newCommandLogger writes text to a terminal and JSON otherwise.
func newCommandLogger(level string) *slog.Logger {
	if term.IsTerminal(int(os.Stderr.Fd())) {
		return config.NewLogger(os.Stderr, level)
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelWarn
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
