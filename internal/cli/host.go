package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/junsooki/screendiff/internal/capture"
	"github.com/junsooki/screendiff/internal/encoder"
	"github.com/junsooki/screendiff/internal/logging"
	"github.com/junsooki/screendiff/internal/permissions"
	"github.com/junsooki/screendiff/internal/rpc"
)

var (
	hostListen        string
	hostWatchInterval time.Duration
	hostCapture       captureFlags
)

var hostCmd = &cobra.Command{
	Use:   "host",
	Short: "Serve captures over WebSocket",
	Long: `Serve the capture state of this machine over WebSocket at /ws.

Clients may list displays, capture, read or replace the capture
configuration and reset the baseline. A viewer that negotiates a WebRTC
session receives changed screenshots as they happen.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("listen") {
			appConfig.Host.Listen = hostListen
		}
		if cmd.Flags().Changed("watch-interval") {
			appConfig.Host.WatchInterval = hostWatchInterval
		}
		if err := applyCaptureOverrides(cmd.Flags(), &hostCapture, appConfig); err != nil {
			return err
		}
		return runHost(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(hostCmd)

	hostCmd.Flags().StringVar(&hostListen, "listen", "", "address to listen on (default from config, 127.0.0.1:8750)")
	hostCmd.Flags().DurationVar(&hostWatchInterval, "watch-interval", time.Second, "how often to poll for changes while a viewer is attached")
	addCaptureFlags(hostCmd.Flags(), &hostCapture)
}

func runHost(ctx context.Context) error {
	if err := permissions.EnsureScreenRecording(); err != nil {
		return err
	}

	capturer, err := newCapturer()
	if err != nil {
		return err
	}

	srv := rpc.NewServer(capturer,
		rpc.WithWatchInterval(appConfig.Host.WatchInterval),
		rpc.WithPeerOptions(peerOptions()),
		rpc.WithServerLogger(logging.Component("rpc")),
	)
	httpSrv := &http.Server{
		Addr:              appConfig.Host.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.ListenAndServe()
	}()

	cfg := appConfig.Capture
	logger.Info().
		Str("listen", appConfig.Host.Listen).
		Int("display", cfg.ScreenIndex).
		Stringer("region", regionStringer{cfg.Region}).
		Uint8("diff_threshold", cfg.DiffThreshold).
		Float32("change_threshold_percent", cfg.ChangeThresholdPercent).
		Str("format", appConfig.Host.Format).
		Dur("watch_interval", appConfig.Host.WatchInterval).
		Msg("host ready")

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve %s: %w", appConfig.Host.Listen, err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	srv.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// newCapturer builds a capturer for the local screens from appConfig.
func newCapturer() (*capture.Capturer, error) {
	enc, err := encoder.New(appConfig.Host.Format, appConfig.Host.Quality)
	if err != nil {
		return nil, err
	}
	return capture.NewCapturer(capture.NewScreenSource(), appConfig.Capture,
		capture.WithEncoder(enc),
		capture.WithLogger(logging.Component("capture")),
	), nil
}

type regionStringer struct{ r *capture.Region }

func (s regionStringer) String() string {
	if s.r == nil {
		return "full"
	}
	return s.r.String()
}
