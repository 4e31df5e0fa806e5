package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/junsooki/screendiff/internal/capture"
	"github.com/junsooki/screendiff/internal/decoder"
	"github.com/junsooki/screendiff/internal/display"
	"github.com/junsooki/screendiff/internal/logging"
	"github.com/junsooki/screendiff/internal/peer"
	"github.com/junsooki/screendiff/internal/rpc"
)

var viewerURL string

var viewerCmd = &cobra.Command{
	Use:   "viewer",
	Short: "Watch a host's screen",
	Long: `Open a window showing the screenshots a host pushes when its screen
changes. Press C to capture now and R to reset the host's baseline.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("url") {
			appConfig.Viewer.URL = viewerURL
		}
		return runViewer(cmd.Context(), appConfig.Viewer.URL)
	},
}

func init() {
	rootCmd.AddCommand(viewerCmd)
	viewerCmd.Flags().StringVar(&viewerURL, "url", "", "host WebSocket URL (default from config, ws://127.0.0.1:8750/ws)")
}

func runViewer(ctx context.Context, url string) error {
	log := logging.Component("viewer")
	dec := decoder.NewImageDecoder()

	var viewerPeer atomic.Pointer[peer.Viewer]
	var disp *display.EbitenDisplay

	show := func(shot *capture.Screenshot, source string) {
		if err := showScreenshot(disp, dec, shot, source); err != nil {
			log.Warn().Err(err).Msg("decode screenshot")
		}
	}

	client := rpc.NewClient(url, rpc.Handler{
		OnAnswer: func(payload json.RawMessage) {
			if v := viewerPeer.Load(); v != nil {
				if err := v.HandleAnswer(payload); err != nil {
					log.Warn().Err(err).Msg("handle answer")
				}
			}
		},
		OnICECandidate: func(payload json.RawMessage) {
			if v := viewerPeer.Load(); v != nil {
				if err := v.HandleICECandidate(payload); err != nil {
					log.Warn().Err(err).Msg("handle ICE candidate")
				}
			}
		},
		OnError: func(err error) {
			log.Warn().Err(err).Msg("host error")
		},
	}, logging.Component("rpc"))

	disp = display.NewEbitenDisplay("screendiff viewer", display.Actions{
		OnCapture: func() {
			callCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()
			shot, err := client.Capture(callCtx)
			if err != nil {
				log.Warn().Err(err).Str("kind", string(capture.KindOf(err))).Msg("capture")
				disp.SetStatus("capture failed: " + err.Error())
				return
			}
			show(shot, "manual")
		},
		OnReset: func() {
			callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			if err := client.Reset(callCtx); err != nil {
				log.Warn().Err(err).Msg("reset")
				disp.SetStatus("reset failed: " + err.Error())
				return
			}
			disp.SetStatus("baseline reset")
		},
	})

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Connect(dialCtx); err != nil {
		return err
	}
	defer client.Close()

	v, err := peer.NewViewer(client, peerOptions())
	if err != nil {
		return err
	}
	defer v.Close()
	viewerPeer.Store(v)

	v.Transport().OnScreenshot(func(shot *capture.Screenshot) {
		show(shot, "pushed")
	})
	v.Transport().OnError(func(err error) {
		log.Warn().Err(err).Msg("screenshot channel")
	})
	if err := v.Connect(); err != nil {
		return fmt.Errorf("viewer connect: %w", err)
	}

	go func() {
		<-client.Done()
		disp.SetStatus("disconnected from " + url)
	}()

	disp.SetStatus("connected to " + url + ", waiting for changes")
	log.Info().Str("url", url).Msg("viewer started")
	return disp.Run()
}

// showScreenshot decodes shot and hands it to sink with a status line.
func showScreenshot(sink display.FrameSink, dec decoder.Decoder, shot *capture.Screenshot, source string) error {
	img, err := decoder.DecodeScreenshot(dec, shot)
	if err != nil {
		return err
	}
	sink.SetFrame(img)
	sink.SetStatus(screenshotStatus(shot, source))
	return nil
}

func screenshotStatus(shot *capture.Screenshot, source string) string {
	state := "unchanged"
	if shot.Changed {
		state = "changed"
	}
	ts := time.UnixMilli(int64(shot.Timestamp)).Format(time.TimeOnly)
	return fmt.Sprintf("%s %dx%d %s at %s", source, shot.Width, shot.Height, state, ts)
}
