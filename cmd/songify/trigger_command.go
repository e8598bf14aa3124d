package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"songify/internal/ipc"
	"songify/internal/song"
)

func newTriggerCommand(ctx *commandContext) *cobra.Command {
	var (
		tabID    int
		tabTitle string
		style    string
		text     string
		textFile string
	)

	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Request a song for a browser tab",
		Long: "Request a song for a browser tab. The daemon reads the page text through the\n" +
			"extension unless --text or --text-file supplies it.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if tabID < 0 {
				return errors.New("--tab must be a browser tab id")
			}
			if _, err := song.ParseStyle(style); err != nil {
				return err
			}
			if textFile != "" {
				data, err := readTextFile(cmd, textFile)
				if err != nil {
					return err
				}
				text = data
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Trigger(ipc.TriggerRequest{
					TabID:    tabID,
					TabTitle: tabTitle,
					Style:    style,
					Text:     text,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Song requested (id %s)\n", resp.RequestID)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&tabID, "tab", 0, "Browser tab id that plays the song")
	cmd.Flags().StringVar(&tabTitle, "title", "", "Tab title shown until the song is named")
	cmd.Flags().StringVarP(&style, "style", "s", string(song.StyleMusical), "Song style (see `songify styles`)")
	cmd.Flags().StringVar(&text, "text", "", "Page text to use instead of extracting it")
	cmd.Flags().StringVar(&textFile, "text-file", "", "Read page text from a file (- for stdin)")
	cmd.MarkFlagsMutuallyExclusive("text", "text-file")
	return cmd
}

func readTextFile(cmd *cobra.Command, path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read text: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", errors.New("text file is empty")
	}
	return text, nil
}
