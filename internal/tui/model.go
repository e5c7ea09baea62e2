// Package tui is a terminal front-end for the danmu picker.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"danmustream/danmuservice/internal/domain"
	"danmustream/danmuservice/internal/selector"
)

var (
	docStyle = lipgloss.NewStyle().Padding(1, 2)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#22C55E"))

	cursorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#22C55E")).
			Bold(true)

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#16A34A")).
			Background(lipgloss.Color("#DCFCE7"))

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#9CA3AF"})

	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
)

type Searcher interface {
	Search(ctx context.Context, text, providerKey string) ([]domain.DanmuResult, error)
}

type searchResultMsg struct {
	seq     int
	results []domain.DanmuResult
	err     error
}

type Model struct {
	ctx      context.Context
	searcher Searcher
	provider string

	input   textinput.Model
	spinner spinner.Model
	view    *selector.View

	typing   bool
	query    string
	seq      int
	cursor   int
	selected *int64
	chosen   bool
	err      error
}

func New(ctx context.Context, searcher Searcher, provider, query string) *Model {
	input := textinput.New()
	input.Placeholder = "Search danmu by title..."
	input.Width = 40
	input.SetValue(query)

	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = cursorStyle

	m := &Model{
		ctx:      ctx,
		searcher: searcher,
		provider: provider,
		input:    input,
		spinner:  spin,
		query:    strings.TrimSpace(query),
	}
	m.view = selector.NewView(selector.Props{OnEpisodeChosen: m.onEpisodeChosen})
	if m.query == "" {
		m.typing = true
		m.input.Focus()
	}
	return m
}

// Chosen reports the picked episode id once the program has exited.
func (m *Model) Chosen() (int64, bool) {
	if !m.chosen || m.selected == nil {
		return 0, false
	}
	return *m.selected, true
}

func (m *Model) onEpisodeChosen(episodeID int64) {
	m.selected = &episodeID
	m.chosen = true
	m.view.SetSelectedEpisode(m.selected)
}

func (m *Model) Init() tea.Cmd {
	if m.typing {
		return textinput.Blink
	}
	return m.startSearch(m.query)
}

func (m *Model) startSearch(query string) tea.Cmd {
	m.seq++
	m.query = query
	m.err = nil
	m.view.SetLoading(true)
	seq := m.seq
	ctx, searcher, provider := m.ctx, m.searcher, m.provider
	return tea.Batch(m.spinner.Tick, func() tea.Msg {
		results, err := searcher.Search(ctx, query, provider)
		return searchResultMsg{seq: seq, results: results, err: err}
	})
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		if m.view.Frame().Screen != selector.ScreenLoading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case searchResultMsg:
		if msg.seq != m.seq {
			return m, nil
		}
		m.view.SetLoading(false)
		m.err = msg.err
		m.view.SetSources(msg.results)
		m.cursor = 0
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		if m.typing {
			return m.updateInput(msg)
		}
		return m.updatePicker(msg)
	}

	if m.typing {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		query := strings.TrimSpace(m.input.Value())
		if query == "" {
			return m, nil
		}
		m.typing = false
		m.input.Blur()
		return m, m.startSearch(query)
	case tea.KeyEsc:
		if m.query != "" {
			m.typing = false
			m.input.Blur()
		}
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) updatePicker(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	frame := m.view.Frame()
	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "/":
		m.typing = true
		m.input.Focus()
		return m, textinput.Blink
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < rowCount(frame)-1 {
			m.cursor++
		}
	case "esc", "backspace", "left", "h":
		if frame.Screen == selector.ScreenEpisodes {
			m.view.Back()
			m.cursor = frame.Source.Index
		}
	case "enter", "right", "l":
		return m.activate(frame)
	}
	return m, nil
}

func (m *Model) activate(frame selector.Frame) (tea.Model, tea.Cmd) {
	switch frame.Screen {
	case selector.ScreenSources:
		if m.cursor >= len(frame.Sources) {
			return m, nil
		}
		if err := m.view.ClickSource(frame.Sources[m.cursor].Index); err != nil {
			m.err = err
			return m, nil
		}
		m.cursor = 0
	case selector.ScreenEpisodes:
		if m.cursor >= len(frame.Episodes) {
			return m, nil
		}
		if err := m.view.ClickEpisode(frame.Episodes[m.cursor].EpisodeID); err != nil {
			m.err = err
			return m, nil
		}
		return m, tea.Quit
	}
	return m, nil
}

func rowCount(frame selector.Frame) int {
	switch frame.Screen {
	case selector.ScreenSources:
		return len(frame.Sources)
	case selector.ScreenEpisodes:
		return len(frame.Episodes)
	default:
		return 0
	}
}

func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Danmu sources"))
	b.WriteString("\n\n")

	if m.typing {
		b.WriteString(m.input.View())
		b.WriteString("\n\n")
		b.WriteString(mutedStyle.Render("enter: search • esc: cancel • ctrl+c: quit"))
		return docStyle.Render(b.String())
	}

	b.WriteString(mutedStyle.Render(fmt.Sprintf("query: %s", m.query)))
	b.WriteString("\n\n")

	frame := m.view.Frame()
	switch frame.Screen {
	case selector.ScreenLoading:
		b.WriteString(m.spinner.View() + " searching danmu sources...")
	case selector.ScreenEmpty:
		if m.err != nil {
			b.WriteString(errorStyle.Render("search failed: " + m.err.Error()))
		} else {
			b.WriteString(mutedStyle.Render("no danmu sources available"))
		}
	case selector.ScreenSources:
		for i, row := range frame.Sources {
			line := fmt.Sprintf("%s  %s", row.Title, mutedStyle.Render(fmt.Sprintf("%d episodes", row.EpisodeCount)))
			b.WriteString(m.renderRow(i, line, false))
		}
	case selector.ScreenEpisodes:
		b.WriteString(titleStyle.Render(frame.Source.Title))
		b.WriteString("\n")
		if len(frame.Episodes) == 0 {
			b.WriteString(mutedStyle.Render("this source has no episodes"))
			b.WriteString("\n")
		}
		for i, row := range frame.Episodes {
			b.WriteString(m.renderRow(i, row.Title, row.Selected))
		}
	}

	if m.err != nil && frame.Screen != selector.ScreenEmpty {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render(m.err.Error()))
	}
	b.WriteString("\n\n")
	b.WriteString(mutedStyle.Render("↑/↓: move • enter: open • esc: back • /: new search • q: quit"))
	return docStyle.Render(b.String())
}

func (m *Model) renderRow(index int, text string, selected bool) string {
	prefix := "  "
	if index == m.cursor {
		prefix = cursorStyle.Render("> ")
	}
	if selected {
		text = selectedStyle.Render(text)
	}
	return prefix + text + "\n"
}
