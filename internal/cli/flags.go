package cli

import (
	"github.com/spf13/pflag"

	"github.com/junsooki/screendiff/internal/capture"
	"github.com/junsooki/screendiff/internal/config"
	"github.com/junsooki/screendiff/internal/logging"
	"github.com/junsooki/screendiff/internal/peer"
)

// captureFlags holds capture overrides shared by host and capture.
type captureFlags struct {
	display         int
	region          string
	fullScreen      bool
	diffThreshold   uint8
	changeThreshold float32
	maxWidth        int
	format          string
	quality         int
}

func addCaptureFlags(flags *pflag.FlagSet, f *captureFlags) {
	flags.IntVar(&f.display, "display", 0, "index of the display to capture")
	flags.StringVar(&f.region, "region", "", "capture only x,y,width,height of the display")
	flags.BoolVar(&f.fullScreen, "full-screen", false, "ignore a configured region and capture the whole display")
	flags.Uint8Var(&f.diffThreshold, "diff-threshold", capture.DefaultDiffThreshold, "per-channel difference a pixel must exceed to count as changed")
	flags.Float32Var(&f.changeThreshold, "change-threshold", capture.DefaultChangeThresholdPercent, "percentage of changed pixels that marks the screen as changed")
	flags.IntVar(&f.maxWidth, "max-width", capture.DefaultMaxWidth, "downscale captures wider than this (0 disables)")
	flags.StringVar(&f.format, "format", "png", "image encoding (png, jpeg)")
	flags.IntVar(&f.quality, "quality", 80, "JPEG quality 1-100")
}

// applyCaptureOverrides copies explicitly set flags over cfg.
func applyCaptureOverrides(flags *pflag.FlagSet, f *captureFlags, cfg *config.Config) error {
	if flags.Changed("display") {
		cfg.Capture.ScreenIndex = f.display
	}
	if flags.Changed("region") {
		region, err := capture.ParseRegion(f.region)
		if err != nil {
			return err
		}
		cfg.Capture.Region = region
	}
	if f.fullScreen {
		cfg.Capture.Region = nil
	}
	if flags.Changed("diff-threshold") {
		cfg.Capture.DiffThreshold = f.diffThreshold
	}
	if flags.Changed("change-threshold") {
		cfg.Capture.ChangeThresholdPercent = f.changeThreshold
	}
	if flags.Changed("max-width") {
		if f.maxWidth > 0 {
			maxWidth := f.maxWidth
			cfg.Capture.MaxWidth = &maxWidth
		} else {
			cfg.Capture.MaxWidth = nil
		}
	}
	if flags.Changed("format") {
		cfg.Host.Format = f.format
	}
	if flags.Changed("quality") {
		cfg.Host.Quality = f.quality
	}
	return cfg.Validate()
}

// peerOptions gathers loopback candidates so host and viewer can share a machine.
func peerOptions() peer.Options {
	opts := peer.DefaultOptions()
	opts.IncludeLoopback = true
	opts.Logger = logging.Component("peer")
	return opts
}
