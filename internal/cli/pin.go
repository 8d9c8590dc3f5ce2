package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shaw77735-web/JuteVisionAudit/internal/jutevision/fault"
	"github.com/shaw77735-web/JuteVisionAudit/internal/jutevision/gate"
)

var pinValue string

func init() {
	rootCmd.AddCommand(pinCmd)
	pinCmd.AddCommand(pinSetCmd, pinDisableCmd, pinVerifyCmd)
	for _, c := range []*cobra.Command{pinSetCmd, pinVerifyCmd} {
		c.Flags().StringVar(&pinValue, "pin", "", "PIN (prompted if omitted)")
	}
}

var pinCmd = &cobra.Command{
	Use:   "pin",
	Short: "Manage the app and file PIN locks",
}

var pinSetCmd = &cobra.Command{
	Use:   "set <app|file>",
	Short: "Enable a lock with a new PIN",
	Args:  cobra.ExactArgs(1),
	RunE:  runPinSet,
}

var pinDisableCmd = &cobra.Command{
	Use:   "disable <app|file>",
	Short: "Disable a lock",
	Args:  cobra.ExactArgs(1),
	RunE:  runPinDisable,
}

var pinVerifyCmd = &cobra.Command{
	Use:   "verify <app|file>",
	Short: "Check a PIN against a lock",
	Args:  cobra.ExactArgs(1),
	RunE:  runPinVerify,
}

func pinArg(cmd *cobra.Command, prompt string) (string, error) {
	if pinValue != "" {
		return pinValue, nil
	}
	return readPIN(cmd, prompt)
}

func runPinSet(cmd *cobra.Command, args []string) error {
	lock, err := gate.ParseLock(args[0])
	if err != nil {
		return err
	}
	pin, err := pinArg(cmd, "New PIN: ")
	if err != nil {
		return err
	}
	if pin == "" {
		return errors.New("PIN required when enabling")
	}

	if err := app.client.SetPIN(cmd.Context(), string(lock), true, pin); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s lock enabled.\n", lock)
	return nil
}

func runPinDisable(cmd *cobra.Command, args []string) error {
	lock, err := gate.ParseLock(args[0])
	if err != nil {
		return err
	}
	if err := app.client.SetPIN(cmd.Context(), string(lock), false, ""); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s lock disabled.\n", lock)
	return nil
}

func runPinVerify(cmd *cobra.Command, args []string) error {
	lock, err := gate.ParseLock(args[0])
	if err != nil {
		return err
	}
	pin, err := pinArg(cmd, "PIN: ")
	if err != nil {
		return err
	}

	_, err = app.gate.Authorize(cmd.Context(), lock, pin)
	switch {
	case err == nil:
		fmt.Fprintln(cmd.OutOrStdout(), "PIN accepted.")
		return nil
	case errors.Is(err, fault.ErrCredentialDenied):
		return errors.New("PIN rejected")
	default:
		return err
	}
}
