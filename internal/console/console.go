package console

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jwebster45206/villager-trader/pkg/state"
)

// Run shows the console until ctx is cancelled. Quitting from the UI goes
// through the dispatcher's quit command, which cancels ctx.
func Run(ctx context.Context, handler Handler, snapshot func() state.Snapshot, botName string) error {
	p := tea.NewProgram(NewConsoleUI(ctx, handler, snapshot, botName),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("console: %w", err)
	}
	return nil
}
