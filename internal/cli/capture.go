package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/shaw77735-web/JuteVisionAudit/internal/jutevision/fault"
	"github.com/shaw77735-web/JuteVisionAudit/internal/jutevision/gate"
)

var (
	filePIN    string
	uploadSave bool
	uploadOut  string
	savedOut   string
)

func init() {
	rootCmd.AddCommand(captureCmd, uploadCmd, savedCmd)
	savedCmd.AddCommand(savedListCmd, savedGetCmd)

	for _, c := range []*cobra.Command{captureCmd, uploadCmd, savedListCmd, savedGetCmd} {
		c.Flags().StringVar(&filePIN, "file-pin", "", "File PIN when the file lock is enabled (prompted if omitted)")
	}
	uploadCmd.Flags().BoolVar(&uploadSave, "save", false, "Keep the annotated image on the service")
	uploadCmd.Flags().StringVarP(&uploadOut, "out", "o", "", "Write the annotated image to this path")
	savedGetCmd.Flags().StringVarP(&savedOut, "out", "o", "", "Output path (default: the capture id)")
}

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Save the current camera frame",
	Args:  cobra.NoArgs,
	RunE:  runCapture,
}

var uploadCmd = &cobra.Command{
	Use:   "upload <image>",
	Short: "Analyze an image file and grade it on its own",
	Args:  cobra.ExactArgs(1),
	RunE:  runUpload,
}

var savedCmd = &cobra.Command{
	Use:   "saved",
	Short: "Browse saved captures",
}

var savedListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved captures, newest first",
	Args:  cobra.NoArgs,
	RunE:  runSavedList,
}

var savedGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Download a saved capture",
	Args:  cobra.ExactArgs(1),
	RunE:  runSavedGet,
}

// fileSecret returns --file-pin, prompting when the file lock needs one.
func fileSecret(cmd *cobra.Command) (string, error) {
	if filePIN != "" || !app.gate.IsGateRequired(gate.LockFile) {
		return filePIN, nil
	}
	return readPIN(cmd, "File PIN: ")
}

func runCapture(cmd *cobra.Command, _ []string) error {
	secret, err := fileSecret(cmd)
	if err != nil {
		return err
	}

	ctrl := app.newController(nil)
	defer ctrl.Close()

	res, err := ctrl.SaveCapture(cmd.Context(), secret)
	if err != nil {
		return fmt.Errorf("capture failed: %s", res.Reason)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Saved as %s\n", res.StorageID)
	printFrame(out, res.Metrics)
	return nil
}

func runUpload(cmd *cobra.Command, args []string) error {
	img, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	secret := ""
	if uploadSave {
		if secret, err = fileSecret(cmd); err != nil {
			return err
		}
	}

	ctrl := app.newController(nil)
	defer ctrl.Close()

	res, err := ctrl.UploadImage(cmd.Context(), img, uploadSave, secret)
	if err != nil {
		if errors.Is(err, fault.ErrValidationFailure) {
			return fmt.Errorf("upload rejected: %w", err)
		}
		return fmt.Errorf("upload failed: %s", res.Reason)
	}

	out := cmd.OutOrStdout()
	printFrame(out, res.Metrics)
	printVerdict(out, res.Verdict)
	if res.StorageID != "" {
		fmt.Fprintf(out, "Saved as %s\n", res.StorageID)
	}
	if uploadOut != "" {
		if err := os.WriteFile(uploadOut, res.AnnotatedImage, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(out, "Annotated image written to %s (%s)\n", uploadOut, humanize.Bytes(uint64(len(res.AnnotatedImage))))
	}
	return nil
}

func runSavedList(cmd *cobra.Command, _ []string) error {
	secret, err := fileSecret(cmd)
	if err != nil {
		return err
	}

	ctrl := app.newController(nil)
	defer ctrl.Close()

	ids, err := ctrl.SavedCaptures(cmd.Context(), secret)
	if err != nil {
		return fmt.Errorf("list failed: %s", fault.Reason(err))
	}

	out := cmd.OutOrStdout()
	if len(ids) == 0 {
		fmt.Fprintln(out, "No saved captures.")
		return nil
	}
	for _, id := range ids {
		if at, ok := captureTime(id); ok {
			fmt.Fprintf(out, "%-48s %s\n", id, humanize.Time(at))
			continue
		}
		fmt.Fprintln(out, id)
	}
	return nil
}

func runSavedGet(cmd *cobra.Command, args []string) error {
	id := args[0]
	secret, err := fileSecret(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if app.gate.IsGateRequired(gate.LockFile) {
		if _, err := app.gate.Authorize(ctx, gate.LockFile, secret); err != nil {
			return fmt.Errorf("download failed: %s", fault.Reason(err))
		}
	}

	img, _, err := app.client.DownloadCapture(ctx, id, secret)
	if err != nil {
		return err
	}

	path := savedOut
	if path == "" {
		path = id
	}
	if err := os.WriteFile(path, img, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%s)\n", path, humanize.Bytes(uint64(len(img))))
	return nil
}

// captureTime reads the timestamp embedded in a capture id such as
// capture_20260102_150405_ab12cd34.jpg.
func captureTime(id string) (time.Time, bool) {
	parts := strings.SplitN(id, "_", 4)
	if len(parts) < 3 {
		return time.Time{}, false
	}
	stamp := strings.TrimSuffix(parts[2], ".jpg")
	at, err := time.ParseInLocation("20060102_150405", parts[1]+"_"+stamp, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return at, true
}
