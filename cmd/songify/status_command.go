package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"songify/internal/ipc"
	"songify/internal/lifecycle"
	"songify/internal/preflight"
	"songify/internal/store"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and song status",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)
			now := time.Now()

			var resp *ipc.StatusResponse
			err := ctx.withClient(func(client *ipc.Client) error {
				var callErr error
				resp, callErr = client.Status()
				return callErr
			})
			if err != nil && !errors.Is(err, errDaemonUnavailable) {
				return err
			}

			printSection(stdout, "Daemon", daemonLines(resp, colorize))
			if resp != nil {
				printSection(stdout, "Current Song", requestLines(resp.Request, resp.StatusText, now, colorize))
				printSection(stdout, "Persistence", []string{pendingDownloadLine(resp.PendingDownload, now, colorize)})
				return nil
			}

			cfg, cfgErr := ctx.ensureConfig()
			if cfgErr != nil {
				return cfgErr
			}
			if lines, ok := lastRequestLines(cmd, ctx, now, colorize); ok {
				printSection(stdout, "Last Song", lines)
			}
			printSection(stdout, "Preflight", preflightLines(preflight.RunAll(cmd.Context(), cfg), colorize))
			return nil
		},
	}
}

func lastRequestLines(cmd *cobra.Command, ctx *commandContext, now time.Time, colorize bool) ([]string, bool) {
	st, err := store.Open(ctx.configValue())
	if err != nil {
		return nil, false
	}
	defer st.Close()
	req, ok, err := st.LastRequest(cmd.Context())
	if err != nil || !ok {
		return nil, false
	}
	info := ipc.RequestInfo{
		ID:        req.ID,
		State:     string(req.State),
		Style:     string(req.Style),
		Title:     req.Title,
		AudioURL:  req.AudioURL,
		LastError: req.LastError,
		StartedAt: req.StartedAt,
		UpdatedAt: req.UpdatedAt,
	}
	return requestLines(info, lifecycle.StatusFor(req, now), now, colorize), true
}

func printSection(out io.Writer, title string, lines []string) {
	for _, line := range renderSectionHeader(title, false) {
		fmt.Fprintln(out, line)
	}
	for _, line := range lines {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out)
}
