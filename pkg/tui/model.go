// Package tui is the interactive front end of pix: a single screen with a
// search box, the number of links found, a save directory, a count, the
// start/cancel toggle, a progress bar and a status line.
package tui

import (
	"errors"
	"fmt"
	"pix/pkg/coordinator"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Input fields, in focus order.
const (
	fieldQuery = iota
	fieldDir
	fieldNumber
	numFields
)

// Number of recently discovered links shown under the form.
const recentLinks = 5

// Model is the tea.Model of the interactive UI. It is also the coordinator's
// Listener, so every callback below runs on the tea goroutine.
// Mutable
type Model struct {
	coordinator.NopListener

	coord *coordinator.Coordinator
	keys  keyMap
	theme *Theme
	help  help.Model

	inputs  [numFields]textinput.Model
	focus   int
	spinner spinner.Model
	bar     progress.Model

	recent  []string
	problem string
	success bool
	done    bool
}

// New builds the model and registers it as coord's listener. dir prefills
// the save directory.
func New(coord *coordinator.Coordinator, dir string) *Model {
	m := &Model{
		coord:   coord,
		keys:    defaultKeys(),
		theme:   DefaultTheme(),
		help:    help.New(),
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
	}

	query := textinput.New()
	query.Placeholder = "What are you looking for?"
	query.CharLimit = 200
	query.Width = 40

	out := textinput.New()
	out.Placeholder = "Select the path to save"
	out.Width = 40
	out.SetValue(dir)

	count := textinput.New()
	count.Placeholder = "0"
	count.CharLimit = 9
	count.Width = 10

	m.inputs = [numFields]textinput.Model{query, out, count}
	m.inputs[fieldQuery].Focus()

	coord.SetListener(m)
	return m
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.bar.Width = min(max(msg.Width-24, 10), 60)
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m, m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	if cmd := m.coord.Update(msg); cmd != nil {
		return m, cmd
	}

	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	return m, cmd
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.done = true
		m.coord.Close()
		return tea.Quit

	case key.Matches(msg, m.keys.Submit):
		if m.focus == fieldQuery {
			m.report(m.coord.StartSearch(m.inputs[fieldQuery].Value()))
			return nil
		}
		return m.toggle()

	case key.Matches(msg, m.keys.Toggle):
		return m.toggle()

	case key.Matches(msg, m.keys.Reset):
		m.report(m.coord.ResetLinks())
		if m.problem == "" {
			m.recent = nil
			m.inputs[fieldNumber].SetValue("")
		}
		return nil

	case key.Matches(msg, m.keys.Next):
		return m.setFocus((m.focus + 1) % numFields)

	case key.Matches(msg, m.keys.Prev):
		return m.setFocus((m.focus + numFields - 1) % numFields)

	case m.focus == fieldNumber && key.Matches(msg, m.keys.Up):
		m.step(1)
		return nil

	case m.focus == fieldNumber && key.Matches(msg, m.keys.Down):
		m.step(-1)
		return nil
	}

	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	return cmd
}

func (m *Model) toggle() tea.Cmd {
	cmd, err := m.coord.StartOrCancelInstall(m.selection())
	m.report(err)
	return cmd
}

// report shows err under the form, or clears the previous one.
func (m *Model) report(err error) {
	m.success = false
	if err == nil {
		m.problem = ""
		return
	}
	m.problem = err.Error()
	if errors.Is(err, coordinator.ErrEmptyQuery) {
		m.problem = "Type something to search for"
	}
}

func (m *Model) setFocus(i int) tea.Cmd {
	m.inputs[m.focus].Blur()
	m.focus = i
	return m.inputs[m.focus].Focus()
}

// step moves the count by delta, kept within [1, SpinMax].
func (m *Model) step(delta int) {
	limit := m.coord.SpinMax()
	if limit < 1 {
		return
	}
	n := parseCount(m.inputs[fieldNumber].Value()) + delta
	n = min(max(n, 1), limit)
	m.inputs[fieldNumber].SetValue(strconv.Itoa(n))
}

func (m *Model) selection() coordinator.Selection {
	return coordinator.Selection{
		Dir:   strings.TrimSpace(m.inputs[fieldDir].Value()),
		Count: parseCount(m.inputs[fieldNumber].Value()),
	}
}

// parseCount reads the count box. Blank or unparsable text counts as "not
// chosen".
func parseCount(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}

func (m *Model) OnLinkDiscovered(url string) {
	m.recent = append(m.recent, url)
	if len(m.recent) > recentLinks {
		m.recent = m.recent[len(m.recent)-recentLinks:]
	}
}

func (m *Model) OnSearchFailed(err error) {
	m.report(err)
}

func (m *Model) OnInstallComplete() {
	m.recent = nil
	m.success = true
	m.inputs[fieldNumber].SetValue("")
}

func (m *Model) OnInstallFailed(err error) {
	m.report(err)
}

// Dir is the text of the save directory box.
func (m *Model) Dir() string { return strings.TrimSpace(m.inputs[fieldDir].Value()) }

func (m *Model) View() string {
	if m.done {
		return ""
	}
	t := m.theme
	var sb strings.Builder

	sb.WriteString(t.Title.Render("pix") + t.Dim.Render("  image search and download") + "\n\n")

	sb.WriteString(m.row(fieldQuery, "Search") + "\n")

	found := fmt.Sprintf("%d images", m.coord.LinkCount())
	if m.coord.Searching() {
		found = m.spinner.View() + " " + found
	}
	sb.WriteString(t.Label.Render("Found") + found + "\n\n")

	sb.WriteString(m.row(fieldDir, "Save to") + "\n")
	count := m.row(fieldNumber, "Number of images")
	if limit := m.coord.SpinMax(); limit > 0 {
		count += t.Dim.Render(fmt.Sprintf("  max %d", limit))
	}
	sb.WriteString(count + "\n\n")

	button := t.Button
	if m.coord.Installing() {
		button = t.Cancel
	}
	sb.WriteString(button.Render(m.coord.ToggleLabel()) + "  ")
	sb.WriteString(m.bar.ViewAs(float64(m.coord.Percent())/100) + "\n\n")

	status := t.Status.Render(m.coord.Status())
	if m.success && m.coord.Status() == coordinator.StatusSaved {
		status = t.Success.Render(m.coord.Status())
	}
	sb.WriteString(status + "\n")
	if m.problem != "" {
		sb.WriteString(t.Error.Render(m.problem) + "\n")
	}

	if len(m.recent) > 0 {
		sb.WriteString("\n")
		for _, u := range m.recent {
			sb.WriteString(t.Dim.Render(t.Bullet+" "+u) + "\n")
		}
	}

	sb.WriteString("\n" + m.help.View(m.keys))
	return t.Frame.Render(sb.String())
}

func (m *Model) row(field int, label string) string {
	style := m.theme.Label
	if m.focus == field {
		style = m.theme.Focused
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, style.Render(label), m.inputs[field].View())
}
