package main

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/regchat/cli/internal/tui"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the indexed regulations in the terminal",
	RunE:  runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	database, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	store, err := newSessionStore(cfg, database)
	if err != nil {
		return err
	}

	engine, _, err := newEngine(cmd.Context(), cfg, database, store)
	if err != nil {
		return err
	}

	model := tui.New(engine, cfg.OpenAI.CompletionModel)
	if _, err := tea.NewProgram(model, tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("failed to run chat: %w", err)
	}
	return nil
}
