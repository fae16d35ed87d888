package main

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"nexus/internal/tui"
)

func chatCMD(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Open the terminal chat UI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.build(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			chat, err := a.Chat()
			if err != nil {
				return err
			}
			subtitle := fmt.Sprintf("%s store", a.Config.VectorStore.Type)
			if n, err := a.Store.Count(cmd.Context()); err == nil {
				subtitle = fmt.Sprintf("%d chunks in the %s store", n, a.Config.VectorStore.Type)
			}
			_, err = tea.NewProgram(tui.New(chat, subtitle), tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run()
			return err
		},
	}
}
