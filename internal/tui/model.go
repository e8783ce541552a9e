package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/vito/progrock"
)

const (
	statusRunning   = "running"
	statusCompleted = "completed"
	statusFailed    = "failed"
	statusCached    = "cached"
)

// VertexState is the displayed state of one target or task vertex.
type VertexState struct {
	ID               string
	ParentID         string
	Name             string
	Status           string
	IndentationLevel int
}

// Model is the Bubble Tea model rendering build progress from a progrock stream.
type Model struct {
	tape     TapeSource
	vertices []VertexState
	index    map[string]int
	width    int
	height   int
	spinner  spinner.Model
	styles   styles
}

// NewModel creates a new TUI model reading from tape. Styles follow the color
// profile of out.
func NewModel(tape TapeSource, out io.Writer) *Model {
	st := newStyles(out)
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = st.spinner

	return &Model{
		tape:    tape,
		index:   make(map[string]int),
		spinner: s,
		styles:  st,
	}
}

// Init starts reading from the tape.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		WaitForTape(m.tape),
		m.spinner.Tick,
	)
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.String() == "q" {
			return m, tea.Quit
		}
		return m, nil
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case MsgTapeUpdate:
		m.processVertexUpdates(msg.Update)
		return m, WaitForTape(m.tape)
	case MsgTapeEnded:
		return m, tea.Quit
	}
	return m, nil
}

func (m *Model) processVertexUpdates(update *progrock.StatusUpdate) {
	if update == nil {
		return
	}
	for _, v := range update.Vertexes {
		m.updateOrAddVertex(v)
	}
}

func (m *Model) updateOrAddVertex(v *progrock.Vertex) {
	i, ok := m.index[v.Id]
	if !ok {
		state := VertexState{ID: v.Id, Name: v.Name, Status: statusRunning}
		for _, input := range v.Inputs {
			if p, known := m.index[input]; known {
				state.ParentID = input
				state.IndentationLevel = m.vertices[p].IndentationLevel + 1
				break
			}
		}
		i = len(m.vertices)
		m.index[v.Id] = i
		m.vertices = append(m.vertices, state)
	}

	switch {
	case v.Cached:
		m.vertices[i].Status = statusCached
	case v.Completed == nil:
		m.vertices[i].Status = statusRunning
	case v.Error != nil:
		m.vertices[i].Status = statusFailed
	default:
		m.vertices[i].Status = statusCompleted
	}
}

// View renders the vertex list, newest lines last, followed by a summary.
func (m *Model) View() string {
	var s strings.Builder

	start := 0
	if m.height > 1 && len(m.vertices) > m.height-1 {
		start = len(m.vertices) - (m.height - 1)
	}

	counts := make(map[string]int)
	for _, v := range m.vertices {
		counts[v.Status]++
	}

	for _, v := range m.vertices[start:] {
		var icon string
		var style lipgloss.Style
		switch v.Status {
		case statusRunning:
			icon = m.spinner.View()
			style = m.styles.running
		case statusCompleted:
			icon = "✓"
			style = m.styles.completed
		case statusFailed:
			icon = "✗"
			style = m.styles.failed
		default:
			icon = "="
			style = m.styles.cached
		}
		indent := strings.Repeat("  ", v.IndentationLevel)
		fmt.Fprintf(&s, "%s%s %s\n", indent, style.Render(icon), v.Name)
	}

	s.WriteString(m.styles.summary.Render(fmt.Sprintf("%d running, %d done, %d up to date, %d failed",
		counts[statusRunning], counts[statusCompleted], counts[statusCached], counts[statusFailed])))
	s.WriteString("\n")
	return s.String()
}
