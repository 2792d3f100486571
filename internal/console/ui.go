// Package console is the local operator terminal. Lines typed here go
// through the same command dispatcher as in-game whispers.
package console

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/jwebster45206/villager-trader/internal/commands"
	"github.com/jwebster45206/villager-trader/pkg/geom"
	"github.com/jwebster45206/villager-trader/pkg/state"
)

const (
	SenderName      = "console"
	PlaceHolderText = "Type a command (help for a list)..."

	statusRefresh = time.Second
)

// Handler executes one command line.
type Handler interface {
	Handle(ctx context.Context, from commands.Sender, input string) string
}

// entry is one command and its reply in the log.
type entry struct {
	input string
	reply string
}

// ConsoleUI is the BubbleTea model for the operator console.
type ConsoleUI struct {
	ctx      context.Context
	handler  Handler
	snapshot func() state.Snapshot
	botName  string
	copyFn   func(string) error

	logViewport    viewport.Model
	statusViewport viewport.Model
	textarea       textarea.Model
	ready          bool
	width          int
	height         int

	history   []entry
	lastReply string
	notice    string
	busy      bool

	showQuitModal bool
}

type replyMsg struct {
	input string
	reply string
}

type statusTickMsg struct{}

var (
	logPanelStyle = lipgloss.NewStyle().
			PaddingTop(1).
			PaddingLeft(2)

	statusPanelStyle = lipgloss.NewStyle().
				PaddingTop(1).
				PaddingRight(2)

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")). // pink
			Bold(true)

	inputStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")) // teal

	replyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")) // green

	noticeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // yellow

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey

	runningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")).
			Bold(true)

	idleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Bold(true)

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2).
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("255"))

	modalTitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			Align(lipgloss.Center)

	separatorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
)

// NewConsoleUI builds the model. snapshot feeds the status panel.
func NewConsoleUI(ctx context.Context, handler Handler, snapshot func() state.Snapshot, botName string) ConsoleUI {
	ta := textarea.New()
	ta.Placeholder = PlaceHolderText
	ta.Focus()
	ta.Prompt = promptStyle.Render(":: ")
	ta.CharLimit = 256
	ta.SetWidth(50)
	ta.SetHeight(1)
	ta.ShowLineNumbers = false

	logVp := viewport.New(50, 20)
	logVp.MouseWheelEnabled = true

	return ConsoleUI{
		ctx:            ctx,
		handler:        handler,
		snapshot:       snapshot,
		botName:        botName,
		copyFn:         clipboard.WriteAll,
		logViewport:    logVp,
		statusViewport: viewport.New(24, 20),
		textarea:       ta,
	}
}

func (m ConsoleUI) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, statusTick())
}

func (m ConsoleUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.showQuitModal {
		return m.updateQuitModal(msg)
	}

	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		logWidth := m.logWidth()
		m.logViewport.Width = logWidth - 2
		m.logViewport.Height = m.height - 5
		m.statusViewport.Width = m.width - logWidth - 2
		m.statusViewport.Height = m.height - 2
		m.textarea.SetWidth(logWidth - 4)
		m.ready = true
		m.writeLog()
		m.writeStatus()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.showQuitModal = true
			return m, nil
		case tea.KeyCtrlY:
			m.copyLastReply()
			m.writeLog()
			return m, nil
		case tea.KeyEnter:
			input := strings.TrimSpace(m.textarea.Value())
			m.textarea.Reset()
			if input == "" || m.busy {
				return m, nil
			}
			m.busy = true
			m.notice = ""
			return m, m.runCommand(input)
		}

	case replyMsg:
		m.busy = false
		m.history = append(m.history, entry{input: msg.input, reply: msg.reply})
		m.lastReply = msg.reply
		m.writeLog()
		m.writeStatus()
		return m, nil

	case statusTickMsg:
		m.writeStatus()
		return m, statusTick()
	}

	m.textarea, tiCmd = m.textarea.Update(msg)
	m.logViewport, vpCmd = m.logViewport.Update(msg)
	return m, tea.Batch(tiCmd, vpCmd)
}

func (m ConsoleUI) updateQuitModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEnter:
			return m, m.runCommand(string(commands.CmdQuit))
		default:
			switch msg.String() {
			case "y", "Y":
				return m, m.runCommand(string(commands.CmdQuit))
			case "n", "N", "esc":
				m.showQuitModal = false
				m.textarea.Focus()
				return m, textarea.Blink
			}
		}

	case replyMsg:
		// quit reply while the modal is up
		m.lastReply = msg.reply
	}

	return m, nil
}

// runCommand dispatches off the UI goroutine; position lookups may block on
// the game bridge.
func (m ConsoleUI) runCommand(input string) tea.Cmd {
	handler, ctx := m.handler, m.ctx
	return func() tea.Msg {
		reply := handler.Handle(ctx, commands.Sender{Name: SenderName, Console: true}, input)
		return replyMsg{input: input, reply: reply}
	}
}

func (m *ConsoleUI) copyLastReply() {
	if m.lastReply == "" {
		m.notice = "Nothing to copy yet."
		return
	}
	if err := m.copyFn(m.lastReply); err != nil {
		m.notice = "Clipboard unavailable: " + err.Error()
		return
	}
	m.notice = "Copied last reply to clipboard."
}

func (m ConsoleUI) logWidth() int {
	return int(float64(m.width)*0.7) - 2
}

func (m *ConsoleUI) writeLog() {
	width := m.logViewport.Width - 4
	if width < 20 {
		width = 20
	}

	var content strings.Builder
	content.WriteString(titleStyle.Render("VILLAGER TRADER") + "\n\n")
	content.WriteString(wordwrap.String("Commands run as the local operator. Ctrl+Y copies the last reply, Ctrl+C quits.", width) + "\n\n")
	content.WriteString(separatorStyle.Render(strings.Repeat("─", width)) + "\n\n")

	for _, e := range m.history {
		content.WriteString(inputStyle.Render("> "+e.input) + "\n")
		content.WriteString(replyStyle.Render(wordwrap.String(e.reply, width)) + "\n\n")
	}
	if m.notice != "" {
		content.WriteString(noticeStyle.Render(m.notice) + "\n")
	}

	m.logViewport.SetContent(content.String())
	m.logViewport.GotoBottom()
}

func (m *ConsoleUI) writeStatus() {
	m.statusViewport.SetContent(renderStatus(m.botName, m.snapshot()))
}

func renderStatus(botName string, snap state.Snapshot) string {
	var content strings.Builder
	content.WriteString(titleStyle.Render("STATUS") + "\n\n")

	content.WriteString("Bot:\n" + botName + "\n\n")

	content.WriteString("State:\n")
	switch {
	case snap.Running:
		content.WriteString(runningStyle.Render("TRADING"))
	case snap.CycleActive:
		// Stopped, but the current villager session is still finishing.
		content.WriteString(idleStyle.Render("STOPPING"))
	default:
		content.WriteString(idleStyle.Render("IDLE"))
	}
	content.WriteString("\n\n")

	fmt.Fprintf(&content, "Deposit:\n%s\n\n", posOrUnset(snap.Deposit))
	fmt.Fprintf(&content, "Refill:\n%s\n\n", posOrUnset(snap.Refill))
	fmt.Fprintf(&content, "Bounds:\n%s\n\n", snap.Bounds)

	content.WriteString("Whitelist:\n")
	if len(snap.Whitelist) == 0 {
		content.WriteString("None\n")
	}
	for _, name := range snap.Whitelist {
		content.WriteString("• " + name + "\n")
	}

	content.WriteString("\nTrading for:\n")
	for _, kw := range snap.Keywords {
		content.WriteString("• " + kw + "\n")
	}
	return content.String()
}

func (m ConsoleUI) renderQuitModal() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var content strings.Builder
	content.WriteString(modalTitleStyle.Render("Shut Down?"))
	content.WriteString("\n\n")
	content.WriteString("This stops trading and disconnects the bot.")
	content.WriteString("\n\n")
	content.WriteString(promptStyle.Render("Press Y to quit, N to continue"))

	modal := modalStyle.Width(50).Render(content.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal, lipgloss.WithWhitespaceChars(" "))
}

func (m ConsoleUI) View() string {
	if m.showQuitModal {
		return m.renderQuitModal()
	}

	if !m.ready {
		return "\n  Initializing..."
	}

	logWidth := m.logWidth()
	logPanel := logPanelStyle.Width(logWidth).Height(m.height - 2).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.logViewport.View(),
			separatorStyle.Render(strings.Repeat("─", max(logWidth-4, 1))),
			m.textarea.View(),
		),
	)
	statusPanel := statusPanelStyle.Width(m.width - logWidth).Height(m.height - 1).Render(
		m.statusViewport.View(),
	)
	return lipgloss.JoinHorizontal(lipgloss.Top, logPanel, statusPanel)
}

func statusTick() tea.Cmd {
	return tea.Tick(statusRefresh, func(time.Time) tea.Msg {
		return statusTickMsg{}
	})
}

func posOrUnset(p *geom.Position) string {
	if p == nil {
		return "unset"
	}
	return p.String()
}
