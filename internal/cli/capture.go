package cli

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/junsooki/screendiff/internal/capture"
	"github.com/junsooki/screendiff/internal/logging"
	"github.com/junsooki/screendiff/internal/permissions"
	"github.com/junsooki/screendiff/internal/rpc"
)

var (
	captureOut    string
	captureRemote string
	captureOpts   captureFlags
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Take one screenshot",
	Long: `Take one screenshot and print its metadata.

Locally there is no previous capture, so the result is always reported as
changed. With --remote the host's baseline is used and updated.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := applyCaptureOverrides(cmd.Flags(), &captureOpts, appConfig); err != nil {
			return err
		}

		var (
			shot *capture.Screenshot
			err  error
		)
		if captureRemote != "" {
			shot, err = remoteCapture(cmd.Context(), captureRemote)
		} else {
			shot, err = localCapture()
		}
		if err != nil {
			return err
		}

		raw, err := base64.StdEncoding.DecodeString(shot.Data)
		if err != nil {
			return fmt.Errorf("decode screenshot payload: %w", err)
		}
		if captureOut != "" {
			if err := os.WriteFile(captureOut, raw, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", captureOut, err)
			}
		}
		return writeJSON(os.Stdout, summarize(shot, len(raw), captureOut))
	},
}

func init() {
	rootCmd.AddCommand(captureCmd)
	captureCmd.Flags().StringVarP(&captureOut, "out", "o", "", "write the encoded image to this file")
	captureCmd.Flags().StringVar(&captureRemote, "remote", "", "capture on a host at this WebSocket URL")
	addCaptureFlags(captureCmd.Flags(), &captureOpts)
}

func localCapture() (*capture.Screenshot, error) {
	if err := permissions.EnsureScreenRecording(); err != nil {
		return nil, err
	}
	capturer, err := newCapturer()
	if err != nil {
		return nil, err
	}
	return capturer.Capture()
}

func remoteCapture(ctx context.Context, url string) (*capture.Screenshot, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	client := rpc.NewClient(url, rpc.Handler{}, logging.Component("rpc"))
	if err := client.Connect(ctx); err != nil {
		return nil, err
	}
	defer client.Close()
	return client.Capture(ctx)
}

// captureSummary is the screenshot metadata printed by the capture command.
type captureSummary struct {
	Format    string `json:"format"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Timestamp uint64 `json:"timestamp"`
	Changed   bool   `json:"changed"`
	Bytes     int    `json:"bytes"`
	Out       string `json:"out,omitempty"`
}

func summarize(shot *capture.Screenshot, size int, out string) captureSummary {
	return captureSummary{
		Format:    shot.Format,
		Width:     shot.Width,
		Height:    shot.Height,
		Timestamp: shot.Timestamp,
		Changed:   shot.Changed,
		Bytes:     size,
		Out:       out,
	}
}
