package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mfateev/llm-relay-bot/internal/commands"
	"github.com/mfateev/llm-relay-bot/internal/models"
	"github.com/mfateev/llm-relay-bot/internal/turn"
	"github.com/mfateev/llm-relay-bot/internal/version"
)

const MaxTextareaHeight = 10 // Maximum height for multi-line input

// State represents the console state.
type State int

const (
	StateInput State = iota
	StateGenerating
)

// Config holds console configuration.
type Config struct {
	Model    string
	Provider string
	UserID   models.UserID
	Username string
	NoColor  bool
	Inline   bool // Disable alt-screen mode
}

// TurnRunner runs one streamed turn.
type TurnRunner interface {
	Handle(ctx context.Context, req turn.Request) (turn.Outcome, error)
}

// Model is the bubbletea model for the interactive console.
type Model struct {
	config Config
	turns  TurnRunner
	router *commands.Router
	keys   KeyMap
	styles Styles

	state State

	viewport viewport.Model
	textarea textarea.Model
	spinner  spinner.Model

	width  int
	height int
	ready  bool

	// Transcript; replies are addressed by message id.
	blocks    []block
	byMessage map[int64]int
	active    int64 // message id of the reply being generated, 0 if none

	turnCount  int
	turnCancel context.CancelFunc

	lastInterruptTime time.Time

	quitting bool
}

// NewModel creates a new bubbletea model.
func NewModel(config Config, turns TurnRunner, router *commands.Router) *Model {
	styles := DefaultStyles()
	if config.NoColor {
		styles = NoColorStyles()
	}

	ta := textarea.New()
	ta.Placeholder = "Type a message..."
	ta.Prompt = "❯ "
	ta.CharLimit = 0
	ta.SetHeight(1)
	ta.ShowLineNumbers = false
	ta.KeyMap.InsertNewline.SetEnabled(true)
	keys := DefaultKeyMap()
	ta.KeyMap.InsertNewline = keys.Newline

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return &Model{
		config:    config,
		turns:     turns,
		router:    router,
		keys:      keys,
		styles:    styles,
		state:     StateInput,
		textarea:  ta,
		spinner:   sp,
		byMessage: make(map[int64]int),
	}
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleWindowSize(msg)

	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case PlaceholderMsg:
		m.byMessage[msg.Handle.MessageID] = len(m.blocks)
		m.active = msg.Handle.MessageID
		m.appendBlock(block{kind: blockAssistant, text: turn.PlaceholderText})

	case RenderMsg:
		if i, ok := m.byMessage[msg.Handle.MessageID]; ok {
			m.blocks[i].text = msg.Text
			m.refresh()
		}

	case TurnDoneMsg:
		return m.handleTurnDone(msg)
	}
	return m, nil
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return m.styles.Chrome.Render(m.spinner.View() + " Starting...")
	}

	sep := m.styles.Chrome.Render(strings.Repeat("─", m.width))

	var inputView string
	if m.state == StateInput {
		inputView = m.textarea.View()
	} else {
		inputView = m.spinner.View() + " " + m.styles.Chrome.Render("Generating... (ctrl+c to interrupt)")
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.viewport.View(),
		sep,
		inputView,
		sep,
		m.renderStatusBar(),
	)
}

func (m *Model) renderStatusBar() string {
	model := m.config.Model
	if m.config.Provider != "" && m.config.Provider != "openai" {
		model = fmt.Sprintf("%s (%s)", m.config.Model, m.config.Provider)
	}
	stateLabel := "ready"
	if m.state == StateGenerating {
		stateLabel = "generating"
	}

	left := fmt.Sprintf(" %s · turn %d · %s", model, m.turnCount, stateLabel)
	right := fmt.Sprintf("relay:%s ", version.GitCommit)
	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return m.styles.Chrome.Render(left + strings.Repeat(" ", gap) + right)
}

func (m *Model) handleWindowSize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height

	if !m.ready {
		m.viewport = viewport.New(m.width, m.viewportHeight())
		m.textarea.SetWidth(m.width)
		m.ready = true
		m.refresh()
		return m, m.focusTextarea()
	}

	m.viewport.Width = m.width
	m.viewport.Height = m.viewportHeight()
	m.textarea.SetWidth(m.width)
	m.refresh()
	return m, nil
}

// viewportHeight reserves separator(1) + input + separator(1) + status(1).
func (m *Model) viewportHeight() int {
	h := m.height - m.calculateTextareaHeight() - 3
	if h < 1 {
		h = 1
	}
	return h
}

func (m *Model) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		return m.handleCtrlC()
	}
	if msg.Type == tea.KeyCtrlD && m.state == StateInput {
		m.quitting = true
		return m, tea.Quit
	}
	if m.isViewportScrollKey(msg) {
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}
	if m.state != StateInput {
		return m, nil
	}

	// Ignore Enter during a bracketed paste (don't submit mid-paste)
	if key.Matches(msg, m.keys.Submit) && !msg.Paste {
		line := strings.TrimSpace(m.textarea.Value())
		m.textarea.Reset()
		m.textarea.SetHeight(1)
		m.viewport.Height = m.viewportHeight()
		if line == "" {
			return m, nil
		}
		return m.submit(line)
	}

	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	if h := m.calculateTextareaHeight(); h != m.textarea.Height() {
		m.textarea.SetHeight(h)
		m.viewport.Height = m.viewportHeight()
	}
	return m, cmd
}

// submit handles a line of input: local exits, bot commands, or a new turn.
func (m *Model) submit(line string) (tea.Model, tea.Cmd) {
	if line == "/exit" || line == "/quit" {
		m.quitting = true
		return m, tea.Quit
	}

	if cmd, ok := commands.Parse(line, ""); ok {
		cmd.UserID = m.config.UserID
		m.appendBlock(block{kind: blockUser, text: line})
		reply, err := m.router.Handle(context.Background(), cmd)
		if err != nil {
			m.appendBlock(block{kind: blockError, text: err.Error()})
		} else {
			m.appendBlock(block{kind: blockSystem, text: reply})
		}
		return m, nil
	}

	m.appendBlock(block{kind: blockUser, text: line})
	m.state = StateGenerating
	m.textarea.Blur()

	ctx, cancel := context.WithCancel(context.Background())
	m.turnCancel = cancel
	req := turn.Request{
		UserID:   m.config.UserID,
		ChatID:   ConsoleChatID,
		Username: m.config.Username,
		Prompt:   line,
	}
	runner := m.turns
	run := func() tea.Msg {
		out, err := runner.Handle(ctx, req)
		return TurnDoneMsg{Outcome: out, Err: err}
	}
	return m, tea.Batch(run, m.spinner.Tick)
}

func (m *Model) handleTurnDone(msg TurnDoneMsg) (tea.Model, tea.Cmd) {
	if m.turnCancel != nil {
		m.turnCancel()
		m.turnCancel = nil
	}
	m.state = StateInput

	switch {
	case msg.Err == nil:
		m.turnCount++
	case models.IsKind(msg.Err, models.ErrorKindCanceled):
		if i, ok := m.byMessage[m.active]; ok && m.blocks[i].text == turn.PlaceholderText {
			m.blocks[i].text = ""
		}
		m.appendBlock(block{kind: blockSystem, text: "Interrupted."})
	case !models.IsKind(msg.Err, models.ErrorKindStreamOpen) && !models.IsKind(msg.Err, models.ErrorKindStreamRead):
		// Open and read failures already replaced the reply block.
		m.appendBlock(block{kind: blockError, text: msg.Err.Error()})
	}
	m.active = 0
	m.refresh()
	return m, m.focusTextarea()
}

func (m *Model) handleCtrlC() (tea.Model, tea.Cmd) {
	now := time.Now()
	if m.state == StateGenerating {
		if now.Sub(m.lastInterruptTime) < 2*time.Second {
			// Second Ctrl+C within 2s: quit
			m.turnCancel()
			m.quitting = true
			return m, tea.Quit
		}
		m.lastInterruptTime = now
		if m.turnCancel != nil {
			m.turnCancel()
		}
		return m, nil
	}
	m.quitting = true
	return m, tea.Quit
}

func (m *Model) appendBlock(b block) {
	m.blocks = append(m.blocks, b)
	m.refresh()
}

// refresh re-renders the transcript, following the bottom if it was there.
func (m *Model) refresh() {
	if !m.ready {
		return
	}
	wasAtBottom := m.viewport.AtBottom()
	m.viewport.SetContent(renderTranscript(m.blocks, m.styles, m.width))
	if wasAtBottom {
		m.viewport.GotoBottom()
	}
}

// focusTextarea safely focuses the textarea and returns a blink command.
// In test environments where the cursor context isn't available, this recovers
// from panics gracefully.
func (m *Model) focusTextarea() tea.Cmd {
	defer func() { recover() }()
	m.textarea.Focus()
	return textarea.Blink
}

// calculateTextareaHeight returns the textarea height for its current content.
func (m *Model) calculateTextareaHeight() int {
	lines := strings.Count(m.textarea.Value(), "\n") + 1
	if lines > MaxTextareaHeight {
		lines = MaxTextareaHeight
	}
	return lines
}

// isViewportScrollKey returns true for keys that scroll the transcript.
func (m *Model) isViewportScrollKey(msg tea.KeyMsg) bool {
	return key.Matches(msg, m.keys.Scroll)
}

// Transcript returns the plain text of the conversation shown so far.
func (m *Model) Transcript() string {
	return renderTranscript(m.blocks, NoColorStyles(), 0)
}

// Run starts the console UI and blocks until the user quits or ctx is done.
func Run(ctx context.Context, config Config, turns TurnRunner, router *commands.Router, transport *Transport) error {
	model := NewModel(config, turns, router)

	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if !config.Inline {
		opts = append(opts, tea.WithAltScreen())
	}
	p := tea.NewProgram(model, opts...)
	transport.Attach(p.Send)

	// Enable CSI 1007 alternate scroll mode: the terminal translates mouse
	// wheel events into arrow key sequences. This gives us wheel scrolling
	// without capturing the mouse, so normal text selection keeps working.
	fmt.Fprint(os.Stderr, "\x1b[?1007h")
	defer fmt.Fprint(os.Stderr, "\x1b[?1007l")

	finalModel, err := p.Run()
	if fm, ok := finalModel.(*Model); ok && fm.turnCancel != nil {
		fm.turnCancel()
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
