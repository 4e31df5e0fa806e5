package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/junsooki/screendiff/internal/capture"
	"github.com/junsooki/screendiff/internal/logging"
	"github.com/junsooki/screendiff/internal/rpc"
)

var displaysRemote string

var displaysCmd = &cobra.Command{
	Use:   "displays",
	Short: "List attached displays",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			infos []capture.ScreenInfo
			err   error
		)
		if displaysRemote != "" {
			infos, err = remoteDisplays(cmd.Context(), displaysRemote)
		} else {
			infos, err = capture.ListDisplays(capture.NewScreenSource())
		}
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(os.Stdout, infos)
		}
		return writeDisplays(os.Stdout, infos)
	},
}

func init() {
	rootCmd.AddCommand(displaysCmd)
	displaysCmd.Flags().StringVar(&displaysRemote, "remote", "", "query a host at this WebSocket URL instead of the local screens")
}

func remoteDisplays(ctx context.Context, url string) ([]capture.ScreenInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client := rpc.NewClient(url, rpc.Handler{}, logging.Component("rpc"))
	if err := client.Connect(ctx); err != nil {
		return nil, err
	}
	defer client.Close()
	return client.ListDisplays(ctx)
}

func writeDisplays(out io.Writer, infos []capture.ScreenInfo) error {
	w := tabwriter.NewWriter(out, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "INDEX\tNAME\tORIGIN\tSIZE\tPRIMARY")
	for _, info := range infos {
		primary := ""
		if info.IsPrimary {
			primary = "yes"
		}
		fmt.Fprintf(w, "%d\t%s\t%d,%d\t%dx%d\t%s\n",
			info.Index, info.Name, info.X, info.Y, info.Width, info.Height, primary)
	}
	return w.Flush()
}
