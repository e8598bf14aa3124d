package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"songify/internal/song"
)

func newStylesCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "styles",
		Short:       "List song styles",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			rows := make([][]string, 0, len(song.AllStyles))
			for _, style := range song.AllStyles {
				rows = append(rows, []string{string(style), style.Label()})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Style", "Menu label"}, rows, nil))
			return nil
		},
	}
}
