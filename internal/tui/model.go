// Package tui is an interactive chat console over the transaction chat
// pipeline.
package tui

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Veraticus/riskdesk/internal/chat"
	"github.com/Veraticus/riskdesk/internal/config"
	"github.com/Veraticus/riskdesk/internal/tui/themes"
)

const (
	headerHeight = 2
	footerHeight = 3
	helpText     = "Commands: /customer ID switches customer, /save FILE.png writes the last chart, /clear, /quit."
)

type role int

const (
	roleUser role = iota
	roleAssistant
	roleNotice
	roleError
)

type entry struct {
	text string
	role role
}

// Model is the console state.
type Model struct {
	ctx        context.Context
	chat       Chatter
	help       help.Model
	theme      themes.Theme
	keys       KeyMap
	customerID string
	lastChart  string
	entries    []entry
	input      textinput.Model
	viewport   viewport.Model
	spinner    spinner.Model
	width      int
	height     int
	busy       bool
	quitting   bool
}

// New creates a console model.
func New(ctx context.Context, opts ...Option) (Model, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Chat == nil {
		return Model{}, errors.New("chat pipeline is required")
	}
	return newModel(ctx, cfg), nil
}

func newModel(ctx context.Context, cfg Config) Model {
	ti := textinput.New()
	ti.Placeholder = "Ask about the customer's transactions"
	ti.CharLimit = 500
	ti.Prompt = "› "
	ti.Focus()

	s := spinner.New()
	s.Spinner = spinner.Dot

	m := Model{
		ctx:        ctx,
		chat:       cfg.Chat,
		help:       help.New(),
		theme:      cfg.Theme,
		keys:       DefaultKeyMap(),
		customerID: cfg.CustomerID,
		input:      ti,
		spinner:    s,
		viewport:   viewport.New(cfg.Width, max(1, cfg.Height-headerHeight-footerHeight)),
	}
	m.resize(cfg.Width, cfg.Height)
	m.push(roleNotice, helpText)
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case answerMsg:
		m.busy = false
		m.receive(msg.result)
		return m, nil

	case savedMsg:
		if msg.err != nil {
			m.push(roleError, fmt.Sprintf("Could not save chart: %v", msg.err))
		} else {
			m.push(roleNotice, "Chart saved to "+msg.path)
		}
		return m, nil

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit
	case key.Matches(msg, m.keys.Clear):
		m.entries = nil
		m.lastChart = ""
		m.refresh()
		return m, nil
	case key.Matches(msg, m.keys.PageUp):
		m.viewport.LineUp(max(1, m.viewport.Height/2))
		return m, nil
	case key.Matches(msg, m.keys.PageDown):
		m.viewport.LineDown(max(1, m.viewport.Height/2))
		return m, nil
	case key.Matches(msg, m.keys.Submit):
		return m.submit()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" || m.busy {
		return m, nil
	}
	m.input.Reset()

	if strings.HasPrefix(text, "/") {
		return m.command(text)
	}

	m.push(roleUser, text)
	m.busy = true
	return m, tea.Batch(m.spinner.Tick, m.ask(text))
}

func (m Model) ask(text string) tea.Cmd {
	ctx, chatter, customer := m.ctx, m.chat, m.customerID
	return func() tea.Msg {
		return answerMsg{query: text, result: chatter.Handle(ctx, chat.Query{Text: text, CustomerID: customer})}
	}
}

func (m Model) command(text string) (tea.Model, tea.Cmd) {
	name, arg, _ := strings.Cut(text, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/quit", "/exit":
		m.quitting = true
		return m, tea.Quit
	case "/clear":
		m.entries = nil
		m.lastChart = ""
		m.refresh()
	case "/help":
		m.push(roleNotice, helpText)
	case "/customer":
		if arg == "" {
			m.push(roleError, "Usage: /customer ID")
			break
		}
		m.customerID = arg
		m.lastChart = ""
		m.push(roleNotice, "Now answering for customer "+arg)
	case "/save":
		if arg == "" {
			m.push(roleError, "Usage: /save FILE.png")
			break
		}
		if m.lastChart == "" {
			m.push(roleError, "There is no chart to save yet.")
			break
		}
		return m, saveChart(m.lastChart, arg)
	default:
		m.push(roleError, fmt.Sprintf("Unknown command %s. %s", name, helpText))
	}
	return m, nil
}

func saveChart(encoded, path string) tea.Cmd {
	return func() tea.Msg {
		data, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return savedMsg{path: path, err: err}
		}
		expanded := config.ExpandPath(path)
		if err := os.WriteFile(expanded, data, 0o600); err != nil {
			return savedMsg{path: expanded, err: err}
		}
		return savedMsg{path: expanded}
	}
}

func (m *Model) receive(res chat.Result) {
	m.push(roleAssistant, res.Response)
	if res.Output != nil {
		if res.Output.Summary != "" && res.Output.Summary != res.Response {
			m.push(roleNotice, res.Output.Summary)
		}
		if res.Output.Visualization != "" {
			m.lastChart = res.Output.Visualization
			m.push(roleNotice, "A chart is available. Use /save FILE.png to write it.")
		}
	}
	switch res.Fallback {
	case chat.FallbackCannedChart:
		m.push(roleNotice, "The AI analysis was unavailable, so a standard chart was used.")
	case chat.FallbackCannedText:
		m.push(roleNotice, "The AI service was unavailable, so this is a standard answer.")
	}
}

func (m *Model) push(r role, text string) {
	m.entries = append(m.entries, entry{role: r, text: text})
	m.refresh()
}

func (m *Model) resize(width, height int) {
	m.width, m.height = width, height
	m.viewport.Width = width
	m.viewport.Height = max(1, height-headerHeight-footerHeight)
	m.input.Width = max(10, width-4)
	m.help.Width = width
	m.refresh()
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderEntries())
	m.viewport.GotoBottom()
}
