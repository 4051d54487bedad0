package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/studyctl/internal/shared"
	"github.com/desertthunder/studyctl/internal/ui"
	"github.com/urfave/cli/v3"
)

// TUI launches the interactive chat.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger(r.config.StatePath("studyctl-tui.log"))
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	r.SetLogger(fileLogger)

	if api, err := newAPIService(r.config, fileLogger); err == nil {
		r.api = api
	}

	controller, err := r.newController()
	if err != nil {
		return err
	}

	var store ui.ConversationStore
	if repo, err := r.conversations(); err == nil {
		store = repo
	} else {
		fileLogger.Warn("conversation history disabled", "error", err)
	}

	model := ui.NewModel(ctx, controller, store, ui.Options{
		Stream:      !cmd.Bool("no-stream"),
		TitleLength: titleLength,
	})
	defer model.Close()

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}
