package picker

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dshills/kemote/internal/emote"
	"github.com/dshills/kemote/internal/imagecache"
	"github.com/dshills/kemote/internal/search"
)

// chromeLines is the number of lines used by everything but the list:
// input, blank line, status line and help bar.
const chromeLines = 4

// defaultRows is the list height used before the first WindowSizeMsg.
const defaultRows = 10

// Searcher receives text changes and decides which results are current.
type Searcher interface {
	OnTextChanged(text string) uint64
	ShowRecent() uint64
	Reset() uint64
	IsCurrent(gen uint64) bool
}

// Images resolves emote images. Load must not block.
type Images interface {
	Load(url string) imagecache.State
}

// Recorder records selected emotes in the recency list.
type Recorder interface {
	Access(e emote.Emote) error
}

// ResultsMsg carries a replacement list for one search generation.
type ResultsMsg struct {
	Generation uint64
	Query      string
	Emotes     []emote.Emote
	Source     search.Source
}

// SearchErrMsg reports a failed search. The shown list is kept.
type SearchErrMsg struct {
	Generation uint64
	Query      string
	Err        error
}

// ImageReadyMsg reports that an image finished loading.
type ImageReadyMsg struct {
	Key imagecache.Key
}

// recordedMsg reports that the selection was written to the recency list.
type recordedMsg struct {
	err error
}

// Model is the Bubble Tea model for the emote picker.
type Model struct {
	search   Searcher
	images   Images
	recorder Recorder

	input   textinput.Model
	spinner spinner.Model
	help    help.Model
	keys    keyMap

	emotes []emote.Emote
	source search.Source
	cursor int
	offset int
	width  int
	height int
	err    error

	selected *emote.Emote
}

// NewModel creates a picker with a focused, empty query input.
func NewModel(s Searcher, images Images, recorder Recorder) Model {
	in := textinput.New()
	in.Placeholder = "search emotes"
	in.Prompt = "› "
	in.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		search:   s,
		images:   images,
		recorder: recorder,
		input:    in,
		spinner:  sp,
		help:     help.New(),
		keys:     defaultKeyMap(),
	}
}

// Init shows the recency list and starts the cursor and spinner.
func (m Model) Init() tea.Cmd {
	s := m.search
	return tea.Batch(
		textinput.Blink,
		m.spinner.Tick,
		func() tea.Msg {
			s.ShowRecent()
			return nil
		},
	)
}

// Selected returns the emote chosen with enter, if any.
func (m Model) Selected() (emote.Emote, bool) {
	if m.selected == nil {
		return emote.Emote{}, false
	}
	return *m.selected, true
}

// Emotes returns the displayed list.
func (m Model) Emotes() []emote.Emote {
	return m.emotes
}

// Err returns the last search or recency error shown in the status line.
func (m Model) Err() error {
	return m.err
}

// Update handles incoming messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.input.Width = max(msg.Width-4, 10)
		m.clampOffset()
		return m, nil

	case ResultsMsg:
		if !m.search.IsCurrent(msg.Generation) {
			return m, nil
		}
		m.emotes = msg.Emotes
		m.source = msg.Source
		m.cursor = 0
		m.offset = 0
		m.err = nil
		return m, nil

	case SearchErrMsg:
		if m.search.IsCurrent(msg.Generation) {
			m.err = msg.Err
		}
		return m, nil

	case ImageReadyMsg:
		// Returning is enough: the next View reads the finished state.
		return m, nil

	case recordedMsg:
		if msg.err != nil {
			m.err = msg.err
		}
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.selected != nil {
		// The program quits once the recency write lands.
		return m, nil
	}
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
		m.clampOffset()
		return m, nil

	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.emotes)-1 {
			m.cursor++
		}
		m.clampOffset()
		return m, nil

	case key.Matches(msg, m.keys.Select):
		if len(m.emotes) == 0 {
			return m, nil
		}
		sel := m.emotes[m.cursor]
		m.selected = &sel
		return m, record(m.recorder, sel)

	case key.Matches(msg, m.keys.Recents):
		m.search.ShowRecent()
		return m, nil

	case key.Matches(msg, m.keys.Clear):
		m.input.Reset()
		m.search.Reset()
		return m, nil
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if after := m.input.Value(); after != before {
		m.search.OnTextChanged(after)
	}
	return m, cmd
}

// record writes sel to the recency list off the UI goroutine.
func record(r Recorder, sel emote.Emote) tea.Cmd {
	return func() tea.Msg {
		return recordedMsg{err: r.Access(sel)}
	}
}

func (m Model) rows() int {
	if m.height == 0 {
		return defaultRows
	}
	return max(m.height-chromeLines, 1)
}

func (m *Model) clampOffset() {
	rows := m.rows()
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+rows {
		m.offset = m.cursor - rows + 1
	}
}

// View renders the input, the visible slice of the list and the help bar.
// Every visible row asks the image cache for its emote, which starts loads
// for rows scrolled into view.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.input.View())
	b.WriteString("\n\n")

	if len(m.emotes) == 0 {
		b.WriteString(detailStyle.Render("  no emotes"))
		b.WriteString("\n")
	}
	end := min(m.offset+m.rows(), len(m.emotes))
	for i := m.offset; i < end; i++ {
		b.WriteString(m.renderRow(i))
		b.WriteString("\n")
	}

	b.WriteString(m.statusLine())
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return lipgloss.NewStyle().MaxWidth(max(m.width, 0)).Render(b.String())
}

func (m Model) renderRow(i int) string {
	e := m.emotes[i]
	prefix, style := "  ", nameStyle
	if i == m.cursor {
		prefix, style = cursorStyle.Render("> "), selectedStyle
	}
	return prefix + style.Render(e.Name) + "  " + m.imageDetail(e)
}

func (m Model) imageDetail(e emote.Emote) string {
	state := m.images.Load(e.URL)
	switch {
	case state.Status == imagecache.Pending:
		return m.spinner.View()
	case state.Err != nil:
		return errorStyle.Render("image unavailable")
	case state.Artifact == nil:
		return ""
	default:
		a := state.Artifact
		frames := "1 frame"
		if len(a.Frames) != 1 {
			frames = fmt.Sprintf("%d frames", len(a.Frames))
		}
		return detailStyle.Render(fmt.Sprintf("%dx%d %s, %s", a.Width, a.Height, a.Format, frames))
	}
}

func (m Model) statusLine() string {
	if m.err != nil {
		return errorStyle.Render("error: " + m.err.Error())
	}
	if m.source == search.SourceRecent {
		return titleStyle.Render("recent") + detailStyle.Render(fmt.Sprintf("  %d emotes", len(m.emotes)))
	}
	if m.source != "" {
		return titleStyle.Render("results") + detailStyle.Render(fmt.Sprintf("  %d emotes (%s)", len(m.emotes), m.source))
	}
	return ""
}
