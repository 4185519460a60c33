package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/freecut/exportd/internal/ffmpeg"
)

// detectCmd runs ffmpeg capability detection and prints the result.
var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Detect FFmpeg and hardware encoder capabilities",
	Long: `Detect the FFmpeg installation and hardware encoder availability.

Hardware encoders are verified by running a short trial encode, so the
result reflects what will actually work on this system, not just what the
binary lists.

Examples:
  # Basic detection (JSON output)
  exportd detect

  # Pretty-printed JSON
  exportd detect --pretty`,
	RunE: runDetect,
}

func init() {
	rootCmd.AddCommand(detectCmd)

	detectCmd.Flags().Bool("pretty", false, "pretty-print JSON output")
	detectCmd.Flags().Duration("timeout", 30*time.Second, "detection timeout")
}

func runDetect(cmd *cobra.Command, _ []string) error {
	timeout, _ := cmd.Flags().GetDuration("timeout")
	pretty, _ := cmd.Flags().GetBool("pretty")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	info, err := ffmpeg.NewDetector(cfg.FFmpeg).Detect(ctx)
	if err != nil {
		return fmt.Errorf("detection failed: %w", err)
	}

	var output []byte
	if pretty {
		output, err = json.MarshalIndent(info, "", "  ")
	} else {
		output, err = json.Marshal(info)
	}
	if err != nil {
		return fmt.Errorf("marshaling result: %w", err)
	}

	fmt.Fprintln(os.Stdout, string(output))
	return nil
}
