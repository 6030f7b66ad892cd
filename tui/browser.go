// Package tui implements the terminal clone browser.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/richinex/clonr/cache"
	"github.com/richinex/clonr/feeds"
	"github.com/richinex/clonr/model"
	"github.com/richinex/clonr/paginate"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	cursorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
	nameStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	descStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("242")).Italic(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

const (
	defaultHeight = 20
	// advanceMargin is how close to the bottom of the loaded list the
	// cursor gets before the next page is requested.
	advanceMargin = 3
)

type snapshotMsg struct{}

type committedMsg struct{ name string }

type loadedMsg struct{ err error }

// Browser is a bubbletea model listing clones with a debounced search box.
type Browser struct {
	feed    *feeds.Clones
	search  *feeds.CloneSearch
	notify  chan struct{}
	commits chan string
	unsub   func()
	ctx     context.Context
	cancel  context.CancelFunc

	input    textinput.Model
	spin     spinner.Model
	cursor   int
	offset   int
	height   int
	err      error
	selected *model.Clone
}

// NewBrowser creates a browser over feed. delay is the search debounce.
func NewBrowser(feed *feeds.Clones, delay time.Duration) *Browser {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Browser{
		feed:    feed,
		notify:  make(chan struct{}, 1),
		commits: make(chan string, 1),
		ctx:     ctx,
		cancel:  cancel,
		height:  defaultHeight,
	}

	b.input = textinput.New()
	b.input.Placeholder = "Search clones"
	b.input.Prompt = "/ "
	b.input.SetValue(feed.Query().Name)
	b.input.Focus()

	b.spin = spinner.New()
	b.spin.Spinner = spinner.Dot

	b.search = feeds.NewCloneSearch(feed, delay, func(name string) {
		select {
		case b.commits <- name:
		case <-b.ctx.Done():
		}
	})
	// Snapshots coalesce: the view rereads the feed anyway.
	b.unsub = feed.Subscribe(func(cache.Snapshot[model.Clone]) {
		select {
		case b.notify <- struct{}{}:
		default:
		}
	})
	return b
}

// Selected returns the clone chosen with enter, if any.
func (b *Browser) Selected() (model.Clone, bool) {
	if b.selected == nil {
		return model.Clone{}, false
	}
	return *b.selected, true
}

// Close stops the search and cancels outstanding loads.
func (b *Browser) Close() {
	b.cancel()
	b.search.Close()
	b.unsub()
}

// Init implements tea.Model.
func (b *Browser) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, b.spin.Tick, b.load(false), b.wait())
}

func (b *Browser) wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case name := <-b.commits:
			return committedMsg{name: name}
		case <-b.notify:
			return snapshotMsg{}
		case <-b.ctx.Done():
			return nil
		}
	}
}

func (b *Browser) load(advance bool) tea.Cmd {
	return func() tea.Msg {
		var err error
		if advance {
			err = b.feed.Advance(b.ctx)
		} else {
			err = b.feed.Load(b.ctx)
		}
		return loadedMsg{err: err}
	}
}

// Update implements tea.Model.
func (b *Browser) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		b.height = max(msg.Height-5, 1)
		b.input.Width = max(msg.Width-4, 10)
		return b, nil

	case tea.KeyMsg:
		return b.handleKey(msg)

	case snapshotMsg:
		b.clamp()
		return b, b.wait()

	case committedMsg:
		b.cursor, b.offset = 0, 0
		return b, tea.Batch(b.load(false), b.wait())

	case loadedMsg:
		if msg.err != nil && !errors.Is(msg.err, context.Canceled) {
			b.err = msg.err
		} else {
			b.err = nil
		}
		return b, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		b.spin, cmd = b.spin.Update(msg)
		return b, cmd
	}

	var cmd tea.Cmd
	b.input, cmd = b.input.Update(msg)
	return b, cmd
}

func (b *Browser) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		return b, tea.Quit

	case tea.KeyEnter:
		visible := b.search.Visible()
		if b.cursor < len(visible) {
			c := visible[b.cursor]
			b.selected = &c
			return b, tea.Quit
		}
		b.search.Flush()
		return b, nil

	case tea.KeyUp:
		if b.cursor > 0 {
			b.cursor--
		}
		b.clamp()
		return b, nil

	case tea.KeyDown, tea.KeyPgDown:
		step := 1
		if msg.Type == tea.KeyPgDown {
			step = b.height
		}
		b.cursor += step
		b.clamp()
		return b, b.maybeAdvance()
	}

	before := b.input.Value()
	var cmd tea.Cmd
	b.input, cmd = b.input.Update(msg)
	if v := b.input.Value(); v != before {
		b.search.Type(v)
		b.cursor, b.offset = 0, 0
	}
	return b, cmd
}

// maybeAdvance requests the next page once the cursor nears the end of the
// loaded clones.
func (b *Browser) maybeAdvance() tea.Cmd {
	if b.feed.IsLastPage() || b.feed.State() == paginate.Loading {
		return nil
	}
	if b.cursor+advanceMargin < len(b.search.Visible()) {
		return nil
	}
	return b.load(true)
}

// clamp keeps the cursor on a visible row and scrolls to it.
func (b *Browser) clamp() {
	n := len(b.search.Visible())
	b.cursor = min(b.cursor, n-1)
	b.cursor = max(b.cursor, 0)
	if b.cursor < b.offset {
		b.offset = b.cursor
	}
	if b.cursor >= b.offset+b.height {
		b.offset = b.cursor - b.height + 1
	}
}

// View implements tea.Model.
func (b *Browser) View() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Clonr"))
	sb.WriteString("\n")
	sb.WriteString(b.input.View())
	sb.WriteString("\n\n")

	visible := b.search.Visible()
	end := min(b.offset+b.height, len(visible))
	for i := b.offset; i < end; i++ {
		c := visible[i]
		marker := "  "
		name := nameStyle.Render(c.Name)
		if i == b.cursor {
			marker = cursorStyle.Render("> ")
			name = cursorStyle.Render(c.Name)
		}
		sb.WriteString(marker + name)
		if c.ShortDescription != "" {
			sb.WriteString(" " + descStyle.Render(c.ShortDescription))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	sb.WriteString(b.status(len(visible)))
	return sb.String()
}

func (b *Browser) status(n int) string {
	switch {
	case b.err != nil:
		return errorStyle.Render("error: " + b.err.Error())
	case b.feed.State() == paginate.Loading:
		return b.spin.View() + statusStyle.Render(" loading")
	case n == 0:
		return statusStyle.Render("no clones found")
	case b.feed.IsLastPage():
		return statusStyle.Render(fmt.Sprintf("%d clones", n))
	default:
		return statusStyle.Render(fmt.Sprintf("%d clones loaded, more below", n))
	}
}

// Run shows the browser on the terminal and returns the chosen clone.
func Run(feed *feeds.Clones, delay time.Duration) (model.Clone, bool, error) {
	b := NewBrowser(feed, delay)
	defer b.Close()

	if _, err := tea.NewProgram(b, tea.WithAltScreen()).Run(); err != nil {
		return model.Clone{}, false, err
	}
	c, ok := b.Selected()
	return c, ok, nil
}
