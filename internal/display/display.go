// Package display provides the terminal storefront shell using Bubble Tea.
//
// The [UI] type keeps a persistent status bar (mic, narration, page, last
// command) and an input prompt at the bottom of the terminal. All
// application output is printed above the rendered area via
// Program.Println / Printf, so concurrent writes never garble the display.
package display

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ── Styles ───────────────────────────────────────────────────────

var (
	barBg = lipgloss.NewStyle().
		Background(lipgloss.Color("#27272a")).
		Foreground(lipgloss.Color("#a1a1aa"))

	micOnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#bbf7d0"))

	micBusyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#fde68a"))

	micOffStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#71717a")).
			Italic(true)

	noticeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#fca5a5"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#a1a1aa"))

	sepStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#52525b"))

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#94a3b8"))

	// BannerStyle renders the startup banner.
	BannerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#94a3b8"))

	chatStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#bae6fd"))

	pageStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#bbf7d0"))

	// hints, tips, metadata
	secondaryStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#71717a"))

	urgentOutputStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#fca5a5"))

	userInputEchoStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#a1a1aa"))

	primaryStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#d4d4d8"))
)

const promptText = "cart> "

// ── Status ───────────────────────────────────────────────────────

// Status is what the status bar renders. Mic is one of "off",
// "activating", "listening", "speaking" or "paused".
type Status struct {
	MicAvailable       bool
	Mic                string
	NarrationAvailable bool
	Narration          bool
	Page               string
	Tip                string
	LastCommand        string
	Notice             string
}

// Hooks connect the shell to the application. All are optional. Toggle
// hooks run on their own goroutine, never inside the Bubble Tea loop.
type Hooks struct {
	Status          func() Status
	ToggleMic       func()
	ToggleNarration func()
}

// ── UI ───────────────────────────────────────────────────────────

// UI owns the terminal while [UI.Run] blocks. After [UI.WaitReady]
// returns, any goroutine may print through it or read [UI.InputChan].
type UI struct {
	program *tea.Program
	hooks   Hooks
	inputCh chan string
	readyCh chan struct{}
	done    atomic.Bool
}

// NewUI creates the display. Nothing is drawn until Run.
func NewUI(hooks Hooks) *UI {
	return &UI{
		hooks:   hooks,
		inputCh: make(chan string, 16),
		readyCh: make(chan struct{}),
	}
}

// Println prints a line above the prompt. Thread-safe.
// If the program hasn't started yet, falls back to fmt.Println.
func (u *UI) Println(a ...interface{}) {
	if u.program != nil && !u.done.Load() {
		u.program.Println(a...)
	} else {
		fmt.Println(a...)
	}
}

// Printf prints formatted text above the prompt on its own line.
// Thread-safe.
func (u *UI) Printf(format string, a ...interface{}) {
	if u.program != nil && !u.done.Load() {
		u.program.Printf(format, a...)
	} else {
		fmt.Printf(format+"\n", a...)
	}
}

// InputChan returns completed user-input lines.
func (u *UI) InputChan() <-chan string { return u.inputCh }

// ── Styled print helpers ─────────────────────────────────────────

// PrintChat prints something the assistant said.
func (u *UI) PrintChat(text string) {
	u.Println(chatStyle.Render("  " + text))
}

// PrintPage prints a navigation line like "→ shopping cart (/cart)".
func (u *UI) PrintPage(name, path string) {
	u.Println(pageStyle.Render("  → "+name) + secondaryStyle.Render("  "+path))
}

// PrintHint prints a secondary/dimmed line.
func (u *UI) PrintHint(text string) {
	u.Println(secondaryStyle.Render("  " + text))
}

// PrintUrgent prints an urgent/error line.
func (u *UI) PrintUrgent(text string) {
	u.Println(urgentOutputStyle.Render("  " + text))
}

// PrintVoice echoes a recognized transcript.
func (u *UI) PrintVoice(text string) {
	u.Println(secondaryStyle.Render("[voice] ") + primaryStyle.Render(text))
}

// PrintUserInput echoes the user's typed command into the scrollback.
func (u *UI) PrintUserInput(text string) {
	u.Println(promptStyle.Render("cart") + secondaryStyle.Render("> ") + userInputEchoStyle.Render(text))
}

// WaitReady blocks until the Bubble Tea event loop is running.
func (u *UI) WaitReady() { <-u.readyCh }

// Quit tells Bubble Tea to exit.
func (u *UI) Quit() {
	if u.program != nil {
		u.program.Quit()
	}
}

// Run starts the Bubble Tea event loop. Blocks until quit.
func (u *UI) Run() error {
	u.program = tea.NewProgram(u.newModel())
	_, err := u.program.Run()
	u.done.Store(true)
	return err
}

func (u *UI) newModel() model {
	ti := textinput.New()
	// A plain-text prompt keeps the textinput width math correct; styled
	// prompts add invisible ANSI bytes to the offset calculations.
	ti.Prompt = promptText
	ti.PromptStyle = promptStyle
	ti.TextStyle = userInputEchoStyle
	ti.Cursor.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#94a3b8"))
	ti.Placeholder = "type a command, F2 mic, F3 read-aloud"
	ti.Focus()
	ti.CharLimit = 500
	ti.Width = 60 // updated on first WindowSizeMsg

	return model{
		hooks:   u.hooks,
		input:   ti,
		inputCh: u.inputCh,
		readyCh: u.readyCh,
		echoFn: func(v string) {
			u.PrintUserInput(v)
		},
	}
}

// ── Bubble Tea model ─────────────────────────────────────────────

type model struct {
	hooks   Hooks
	input   textinput.Model
	inputCh chan<- string
	readyCh chan struct{}
	echoFn  func(string) // prints user input into scrollback
	status  Status
	width   int
}

// Messages.
type tickMsg time.Time

const refreshInterval = 250 * time.Millisecond

func (m model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		tickCmd(),
		signalReady(m.readyCh),
	)
}

func signalReady(ch chan struct{}) tea.Cmd {
	return func() tea.Msg {
		close(ch)
		return nil
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// runHook runs fn outside Update and refreshes the bar afterwards.
func runHook(fn func()) tea.Cmd {
	if fn == nil {
		return nil
	}
	return func() tea.Msg {
		fn()
		return tickMsg(time.Now())
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			return m, tea.Quit
		case tea.KeyF2:
			if !m.status.MicAvailable {
				return m, nil
			}
			return m, runHook(m.hooks.ToggleMic)
		case tea.KeyF3:
			return m, runHook(m.hooks.ToggleNarration)
		case tea.KeyEnter:
			v := m.input.Value()
			m.input.Reset()
			if strings.TrimSpace(v) != "" {
				m.inputCh <- v
				// Echo from a Cmd so Update never blocks on Println.
				echoFn := m.echoFn
				return m, func() tea.Msg {
					echoFn(v)
					return nil
				}
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		if msg.Width > len(promptText) {
			m.input.Width = msg.Width - len(promptText)
		}
		return m, nil

	case tickMsg:
		m.refresh()
		return m, tea.Batch(tickCmd(), tea.SetWindowTitle(m.titleStr()))
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *model) refresh() {
	if m.hooks.Status != nil {
		m.status = m.hooks.Status()
	}
}

func (m model) titleStr() string {
	if !m.status.MicAvailable {
		return "VoiceCart"
	}
	return "VoiceCart: mic " + m.status.Mic
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(m.renderBar())
	b.WriteByte('\n')
	// Blank line before prompt for visual separation.
	b.WriteByte('\n')
	b.WriteString(m.input.View())
	return b.String()
}

func (m model) renderBar() string {
	s := m.status
	var parts []string

	// The mic control is hidden when recognition is unavailable.
	if s.MicAvailable {
		parts = append(parts, labelStyle.Render("F2 mic: ")+micStyle(s.Mic).Render(s.Mic))
	}
	if s.NarrationAvailable {
		state := "off"
		style := micOffStyle
		if s.Narration {
			state, style = "on", micOnStyle
		}
		parts = append(parts, labelStyle.Render("F3 read-aloud: ")+style.Render(state))
	}
	if s.Page != "" {
		parts = append(parts, labelStyle.Render("page: ")+primaryStyle.Render(s.Page))
	}
	if s.LastCommand != "" {
		parts = append(parts, labelStyle.Render("last: ")+primaryStyle.Render(s.LastCommand))
	}
	if s.Notice != "" {
		parts = append(parts, noticeStyle.Render(s.Notice))
	} else if s.Tip != "" {
		parts = append(parts, secondaryStyle.Render(s.Tip))
	}

	content := " " + strings.Join(parts, sepStyle.Render("  │  ")) + " "

	w := m.width
	if w <= 0 {
		w = 80
	}
	return barBg.Width(w).Render(content)
}

func micStyle(state string) lipgloss.Style {
	switch state {
	case "listening":
		return micOnStyle
	case "activating", "speaking", "paused":
		return micBusyStyle
	default:
		return micOffStyle
	}
}
