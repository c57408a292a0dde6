// Package tui provides the Bubble Tea study session interface.
package tui

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"studyflow/internal/models"
	"studyflow/internal/studysession"
)

// Session is the part of studysession.Controller the UI drives.
type Session interface {
	Start(ctx context.Context) (studysession.State, error)
	Pause(ctx context.Context) (studysession.State, error)
	Complete(ctx context.Context, summary models.CompletionSummary) (*studysession.Completion, error)
	ToggleObjective(objectiveID string) (studysession.State, error)
	SetNotes(notes string) (studysession.State, error)
	State() studysession.State
}

// StateMsg carries a controller snapshot into the program.
type StateMsg studysession.State

type actionDoneMsg struct {
	state studysession.State
	err   error
}

type completedMsg struct {
	completion *studysession.Completion
	err        error
}

// Relay forwards controller snapshots to a running program. Pass OnChange
// as the controller's change hook and Attach the program once it exists.
type Relay struct {
	program atomic.Pointer[tea.Program]
}

func (r *Relay) Attach(p *tea.Program) {
	r.program.Store(p)
}

func (r *Relay) OnChange(st studysession.State) {
	if p := r.program.Load(); p != nil {
		p.Send(StateMsg(st))
	}
}

type mode int

const (
	modeTimer mode = iota
	modeComplete
)

var ratingLabels = [3]string{"Confidence", "Focus", "Effectiveness"}

// Completion form fields in tab order; ratings follow the two text inputs.
const (
	focusNotes = iota
	focusTechniques
	focusFirstRating
	formFields = focusFirstRating + len(ratingLabels)
)

const barWidth = 40

var (
	titleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	doneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#52C41A"))
	filledStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A"))
	emptyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#4A4A4A"))
	focusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A")).Bold(true)
	statusStyles = map[models.SessionStatus]lipgloss.Style{
		models.StatusScheduled: lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C")),
		models.StatusActive:    lipgloss.NewStyle().Foreground(lipgloss.Color("#52C41A")).Bold(true),
		models.StatusPaused:    lipgloss.NewStyle().Foreground(lipgloss.Color("#FAAD14")),
		models.StatusCompleted: lipgloss.NewStyle().Foreground(lipgloss.Color("#1890FF")),
	}
	frameStyle = lipgloss.NewStyle().
			Padding(1, 2).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#4A4A4A"))
)

// Model implements the Bubble Tea session UI.
type Model struct {
	ctx     context.Context
	session Session
	state   studysession.State

	mode       mode
	busy       bool
	errMsg     string
	notes      textinput.Model
	techniques textinput.Model
	ratings    [3]int
	formFocus  int
	completion *studysession.Completion
	keys       keyMap
	help       help.Model
	width      int
}

// NewModel builds the UI around a loaded session. defaultRatings seeds the
// completion form in confidence, focus, effectiveness order.
func NewModel(ctx context.Context, session Session, defaultRatings [3]int) *Model {
	notes := textinput.New()
	notes.Placeholder = "What did you cover?"
	notes.CharLimit = 2000
	notes.Width = barWidth

	st := session.State()
	notes.SetValue(st.Notes)

	techniques := textinput.New()
	techniques.Placeholder = "spaced repetition, practice problems"
	techniques.CharLimit = 500
	techniques.Width = barWidth

	for i, r := range defaultRatings {
		if r < models.MinRating || r > models.MaxRating {
			defaultRatings[i] = models.DefaultRating
		}
	}

	return &Model{
		ctx:        ctx,
		session:    session,
		state:      st,
		notes:      notes,
		techniques: techniques,
		ratings:    defaultRatings,
		keys:       newKeyMap(),
		help:       help.New(),
	}
}

// Completion returns the result of a successful completion, or nil if the
// user quit before finishing.
func (m *Model) Completion() *studysession.Completion {
	return m.completion
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil
	case StateMsg:
		m.adopt(studysession.State(msg))
		return m, nil
	case actionDoneMsg:
		m.busy = false
		if msg.err != nil {
			m.errMsg = msg.err.Error()
			return m, nil
		}
		m.errMsg = ""
		m.adopt(msg.state)
		return m, nil
	case completedMsg:
		m.busy = false
		if msg.err != nil {
			m.errMsg = msg.err.Error()
			return m, nil
		}
		m.completion = msg.completion
		m.adopt(msg.completion.State)
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		if m.mode == modeComplete {
			return m.updateForm(msg)
		}
		return m.updateTimer(msg)
	}
	return m, nil
}

// adopt keeps the newest snapshot. Controller hooks can deliver a tick taken
// before a pause after the pause itself.
func (m *Model) adopt(st studysession.State) {
	if st.Version < m.state.Version {
		return
	}
	m.state = st
}

func (m *Model) updateTimer(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Toggle):
		if m.busy {
			return m, nil
		}
		m.busy = true
		return m, m.toggleCmd(m.state.IsActive)
	case key.Matches(msg, m.keys.Objective):
		idx := int(msg.Runes[0] - '1')
		if idx >= len(m.state.Objectives) {
			return m, nil
		}
		st, err := m.session.ToggleObjective(m.state.Objectives[idx].ID)
		if err != nil {
			m.errMsg = err.Error()
			return m, nil
		}
		m.errMsg = ""
		m.adopt(st)
		return m, nil
	case key.Matches(msg, m.keys.Complete):
		m.mode = modeComplete
		m.errMsg = ""
		return m, m.focusField(focusNotes)
	}
	return m, nil
}

func (m *Model) updateForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Back):
		m.mode = modeTimer
		m.notes.Blur()
		m.techniques.Blur()
		return m, nil
	case key.Matches(msg, m.keys.Next):
		step := 1
		if msg.String() == "shift+tab" {
			step = formFields - 1
		}
		return m, m.focusField((m.formFocus + step) % formFields)
	case key.Matches(msg, m.keys.Submit):
		if m.busy {
			return m, nil
		}
		m.busy = true
		return m, m.completeCmd()
	}

	if m.formFocus >= focusFirstRating {
		i := m.formFocus - focusFirstRating
		switch {
		case key.Matches(msg, m.keys.Increase):
			if m.ratings[i] < models.MaxRating {
				m.ratings[i]++
			}
		case key.Matches(msg, m.keys.Decrease):
			if m.ratings[i] > models.MinRating {
				m.ratings[i]--
			}
		}
		return m, nil
	}

	var cmd tea.Cmd
	if m.formFocus == focusTechniques {
		m.techniques, cmd = m.techniques.Update(msg)
	} else {
		m.notes, cmd = m.notes.Update(msg)
	}
	return m, cmd
}

func (m *Model) focusField(field int) tea.Cmd {
	m.formFocus = field
	m.notes.Blur()
	m.techniques.Blur()
	switch field {
	case focusNotes:
		return m.notes.Focus()
	case focusTechniques:
		return m.techniques.Focus()
	}
	return nil
}

// splitTechniques turns the comma-separated input into a de-duplicated list.
func splitTechniques(s string) []string {
	out := []string{}
	seen := make(map[string]bool)
	for _, part := range strings.Split(s, ",") {
		t := strings.TrimSpace(part)
		if t == "" || seen[strings.ToLower(t)] {
			continue
		}
		seen[strings.ToLower(t)] = true
		out = append(out, t)
	}
	return out
}

func (m *Model) toggleCmd(active bool) tea.Cmd {
	ctx, session := m.ctx, m.session
	return func() tea.Msg {
		var st studysession.State
		var err error
		if active {
			st, err = session.Pause(ctx)
		} else {
			st, err = session.Start(ctx)
		}
		return actionDoneMsg{state: st, err: err}
	}
}

func (m *Model) completeCmd() tea.Cmd {
	ctx, session := m.ctx, m.session
	summary := models.CompletionSummary{
		Notes:               strings.TrimSpace(m.notes.Value()),
		ConfidenceRating:    m.ratings[0],
		FocusLevel:          m.ratings[1],
		EffectivenessRating: m.ratings[2],
		TechniquesUsed:      splitTechniques(m.techniques.Value()),
	}
	return func() tea.Msg {
		if _, err := session.SetNotes(summary.Notes); err != nil {
			return completedMsg{err: err}
		}
		completion, err := session.Complete(ctx, summary)
		return completedMsg{completion: completion, err: err}
	}
}

// View implements tea.Model.
func (m *Model) View() string {
	var b strings.Builder

	title := m.state.Title
	if title == "" {
		title = "Study session"
	}
	if m.width > 8 {
		title = runewidth.Truncate(title, m.width-8, "…")
	}
	b.WriteString(titleStyle.Render(title))
	b.WriteString("  ")
	b.WriteString(renderStatus(m.state.Status, m.busy, m.state.Finalizing))
	b.WriteString("\n\n")

	b.WriteString(fmt.Sprintf("%s / %s\n",
		formatDuration(m.state.ElapsedSeconds), formatDuration(m.state.EstimatedDurationSeconds)))
	b.WriteString(renderBar(m.state.ProgressPercentage, barWidth))
	b.WriteString(fmt.Sprintf(" %3.0f%%\n", m.state.ProgressPercentage))

	if len(m.state.Objectives) > 0 {
		b.WriteString("\n")
		done := make(map[string]bool, len(m.state.CompletedObjectiveIDs))
		for _, id := range m.state.CompletedObjectiveIDs {
			done[id] = true
		}
		for i, o := range m.state.Objectives {
			mark := "[ ]"
			line := fmt.Sprintf("%d. %s", i+1, o.Title)
			if done[o.ID] {
				mark = doneStyle.Render("[x]")
				line = mutedStyle.Render(line)
			}
			b.WriteString(mark + " " + line + "\n")
		}
	}

	if m.mode == modeComplete {
		b.WriteString("\n")
		b.WriteString(m.renderForm())
	}

	if m.errMsg != "" {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render(m.errMsg))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if m.mode == modeComplete {
		b.WriteString(m.help.View(formKeys{m.keys}))
	} else {
		b.WriteString(m.help.View(timerKeys{m.keys}))
	}

	return frameStyle.Render(b.String())
}

func (m *Model) renderForm() string {
	var b strings.Builder
	label := "Notes"
	if m.formFocus == focusNotes {
		label = focusStyle.Render(label)
	}
	b.WriteString(label + "\n" + m.notes.View() + "\n\n")

	label = "Techniques (comma separated)"
	if m.formFocus == focusTechniques {
		label = focusStyle.Render(label)
	}
	b.WriteString(label + "\n" + m.techniques.View() + "\n\n")

	for i, name := range ratingLabels {
		if m.formFocus == focusFirstRating+i {
			name = focusStyle.Render(name)
		}
		b.WriteString(fmt.Sprintf("%-14s %s\n", name, renderRating(m.ratings[i])))
	}
	return b.String()
}

func renderStatus(status models.SessionStatus, busy, finalizing bool) string {
	label := string(status)
	switch {
	case finalizing:
		label = "saving…"
	case busy:
		label += "…"
	}
	style, ok := statusStyles[status]
	if !ok {
		style = mutedStyle
	}
	return style.Render(label)
}

func renderBar(pct float64, width int) string {
	filled := int(pct / 100 * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return filledStyle.Render(strings.Repeat("█", filled)) + emptyStyle.Render(strings.Repeat("░", width-filled))
}

func renderRating(v int) string {
	return filledStyle.Render(strings.Repeat("●", v)) + emptyStyle.Render(strings.Repeat("○", models.MaxRating-v))
}

// formatDuration renders seconds as MM:SS, or H:MM:SS past the hour.
func formatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	mnt := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, mnt, s)
	}
	return fmt.Sprintf("%02d:%02d", mnt, s)
}
