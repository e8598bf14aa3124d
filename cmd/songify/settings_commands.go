package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"songify/internal/ipc"
)

func newSettingsCommand(ctx *commandContext) *cobra.Command {
	settingsCmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change stored API credentials",
	}
	settingsCmd.AddCommand(newSettingsShowCommand(ctx))
	settingsCmd.AddCommand(newSettingsSetCommand(ctx))
	return settingsCmd
}

func newSettingsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective credentials (masked)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.SettingsGet()
				if err != nil {
					return err
				}
				rows := [][]string{
					{"openai_api_key", valueOrUnset(resp.OpenAIAPIKey)},
					{"piapi_key", valueOrUnset(resp.PiAPIKey)},
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Setting", "Value"}, rows, nil))
				return nil
			})
		},
	}
}

func newSettingsSetCommand(ctx *commandContext) *cobra.Command {
	var openAIKey, piAPIKey string
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Store API credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := ipc.SettingsSetRequest{
				OpenAIAPIKey: strings.TrimSpace(openAIKey),
				PiAPIKey:     strings.TrimSpace(piAPIKey),
			}
			if req.OpenAIAPIKey == "" && req.PiAPIKey == "" {
				return errors.New("provide --openai-api-key and/or --piapi-key")
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.SettingsSet(req)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, "Settings saved")
				if resp.RestartRequired {
					fmt.Fprintln(out, "Restart the daemon for the song host to use the new keys")
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&openAIKey, "openai-api-key", "", "OpenAI API key used for lyrics")
	cmd.Flags().StringVar(&piAPIKey, "piapi-key", "", "PiAPI key used for music generation")
	return cmd
}

func valueOrUnset(value string) string {
	if value == "" {
		return "(not set)"
	}
	return value
}
