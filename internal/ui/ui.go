// Package ui provides the terminal browser for columns and posts.
package ui

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/five82/zheye/internal/actions"
	"github.com/five82/zheye/internal/api"
	"github.com/five82/zheye/internal/state"
)

// Screen identifies the active view.
type Screen int

const (
	ScreenColumns Screen = iota
	ScreenPosts
	ScreenPost
)

// Options configure the browser.
type Options struct {
	Context      context.Context
	Orchestrator *actions.Orchestrator
	ThemeName    string
	// PollTick is how often Loading and Error are re-read from the store.
	PollTick time.Duration
}

// Messages

type tickMsg time.Time

type columnsMsg struct{ err error }

type columnMsg struct {
	view actions.ColumnView
	err  error
}

type postMsg struct {
	post api.Post
	err  error
}

// Model is the Bubble Tea model of the browser.
type Model struct {
	ctx      context.Context
	orch     *actions.Orchestrator
	store    *state.Store
	pollTick time.Duration

	theme  Theme
	keys   keyMap
	help   help.Model
	width  int
	height int
	ready  bool
	screen Screen

	spinner spinner.Model
	columns list.Model
	posts   list.Model
	detail  viewport.Model

	column   api.Column
	post     api.Post
	loading  bool
	errState state.ErrorState
	err      error
}

// New creates a new Bubble Tea model.
func New(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	pollTick := opts.PollTick
	if pollTick == 0 {
		pollTick = 250 * time.Millisecond
	}

	m := Model{
		ctx:      ctx,
		orch:     opts.Orchestrator,
		store:    opts.Orchestrator.Store(),
		pollTick: pollTick,
		theme:    GetTheme(opts.ThemeName),
		keys:     DefaultKeyMap(),
		help:     help.New(),
		spinner:  spinner.New(spinner.WithSpinner(spinner.Dot)),
		columns:  newList("Columns"),
		posts:    newList("Posts"),
		detail:   viewport.New(0, 0),
	}
	m.applyTheme()
	return m
}

func newList(title string) list.Model {
	l := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	l.Title = title
	l.SetShowHelp(false)
	l.SetShowStatusBar(true)
	return l
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(m.pollTick),
		m.spinner.Tick,
		loadColumnsCmd(m.ctx, m.orch, false),
	)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.resize()
		return m, nil

	case tickMsg:
		m.loading = m.store.Loading()
		m.errState = m.store.Error()
		return m, tickCmd(m.pollTick)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case columnsMsg:
		m.err = msg.err
		return m, m.columns.SetItems(columnItems(m.store.Columns()))

	case columnMsg:
		m.err = msg.err
		if msg.err != nil {
			return m, nil
		}
		m.column = msg.view.Column
		m.posts.Title = msg.view.Column.Title
		m.screen = ScreenPosts
		return m, m.posts.SetItems(postItems(msg.view.Posts))

	case postMsg:
		m.err = msg.err
		if msg.err != nil {
			return m, nil
		}
		m.post = msg.post
		m.screen = ScreenPost
		m.detail.SetContent(m.renderPost())
		m.detail.GotoTop()
		return m, nil
	}

	return m.updateActive(msg)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.filtering() {
		return m.updateActive(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		m.resize()
		return m, nil

	case key.Matches(msg, m.keys.CycleTheme):
		m.theme = GetTheme(NextTheme(m.theme.Name))
		m.applyTheme()
		if m.screen == ScreenPost {
			m.detail.SetContent(m.renderPost())
		}
		return m, nil

	case key.Matches(msg, m.keys.Back):
		switch m.screen {
		case ScreenPost:
			m.screen = ScreenPosts
		case ScreenPosts:
			m.screen = ScreenColumns
		}
		m.err = nil
		return m, nil

	case key.Matches(msg, m.keys.Open):
		switch m.screen {
		case ScreenColumns:
			if item, ok := m.columns.SelectedItem().(columnItem); ok {
				return m, openColumnCmd(m.ctx, m.orch, item.column.ID)
			}
		case ScreenPosts:
			if item, ok := m.posts.SelectedItem().(postItem); ok {
				return m, openPostCmd(m.ctx, m.orch, item.post.ID)
			}
		}
		return m, nil

	case key.Matches(msg, m.keys.More):
		if m.screen == ScreenColumns {
			return m, loadColumnsCmd(m.ctx, m.orch, true)
		}
		return m, nil
	}

	return m.updateActive(msg)
}

func (m Model) updateActive(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.screen {
	case ScreenColumns:
		m.columns, cmd = m.columns.Update(msg)
	case ScreenPosts:
		m.posts, cmd = m.posts.Update(msg)
	case ScreenPost:
		m.detail, cmd = m.detail.Update(msg)
	}
	return m, cmd
}

func (m Model) filtering() bool {
	switch m.screen {
	case ScreenColumns:
		return m.columns.FilterState() == list.Filtering
	case ScreenPosts:
		return m.posts.FilterState() == list.Filtering
	}
	return false
}

// Screen returns the active view.
func (m Model) Screen() Screen {
	return m.screen
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	var body string
	switch m.screen {
	case ScreenColumns:
		body = m.columns.View()
	case ScreenPosts:
		body = m.posts.View()
	case ScreenPost:
		body = m.detail.View()
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		body,
		m.renderFooter(),
	)
}

func (m Model) renderHeader() string {
	styles := m.theme.Styles()

	user := "anonymous"
	if u := m.store.User(); u.IsLogin {
		user = u.NickName
	}
	parts := []string{
		styles.Title.Render("zheye"),
		styles.MutedText.Render(user),
	}
	if m.loading {
		parts = append(parts, styles.AccentText.Render(m.spinner.View()+" loading"))
	}
	return styles.Header.Width(m.width).Render(strings.Join(parts, "  "))
}

func (m Model) renderFooter() string {
	styles := m.theme.Styles()
	switch {
	case m.err != nil:
		return styles.Footer.Width(m.width).Render(styles.DangerText.Render(m.err.Error()))
	case m.errState.Status:
		return styles.Footer.Width(m.width).Render(styles.DangerText.Render(m.errState.Message))
	}
	return styles.Footer.Width(m.width).Render(m.help.View(m.keys))
}

func (m Model) renderPost() string {
	styles := m.theme.Styles()
	p := m.post

	var b strings.Builder
	b.WriteString(styles.Title.Render(p.Title))
	b.WriteString("\n")
	meta := []string{}
	if name := p.Author.Name(); name != "" {
		meta = append(meta, name)
	}
	if t := p.ParsedCreatedAt(); !t.IsZero() {
		meta = append(meta, t.Local().Format("2006-01-02 15:04"))
	}
	if len(meta) > 0 {
		b.WriteString(styles.MutedText.Render(strings.Join(meta, " · ")))
		b.WriteString("\n")
	}
	if url := p.Image.URL(); url != "" {
		b.WriteString(styles.AccentText.Render(url))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	width := m.width - 2
	if width < 20 {
		width = 20
	}
	b.WriteString(styles.Text.Width(width).Render(PlainText(p.Content)))
	return b.String()
}

func (m *Model) resize() {
	footer := 1
	if m.help.ShowAll {
		footer = len(m.keys.FullHelp()[0])
	}
	h := m.height - 1 - footer
	if h < 1 {
		h = 1
	}
	m.columns.SetSize(m.width, h)
	m.posts.SetSize(m.width, h)
	m.detail.Width = m.width
	m.detail.Height = h
	m.help.Width = m.width
}

func (m *Model) applyTheme() {
	styles := m.theme.Styles()
	m.spinner.Style = styles.AccentText
	for _, l := range []*list.Model{&m.columns, &m.posts} {
		l.Styles.Title = styles.Title
		delegate := list.NewDefaultDelegate()
		delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.
			Foreground(lipgloss.Color(m.theme.Accent)).
			BorderForeground(lipgloss.Color(m.theme.Accent))
		delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.
			Foreground(lipgloss.Color(m.theme.Muted)).
			BorderForeground(lipgloss.Color(m.theme.Accent))
		l.SetDelegate(delegate)
	}
}

// List items

type columnItem struct{ column api.Column }

func (i columnItem) Title() string       { return i.column.Title }
func (i columnItem) Description() string { return i.column.Description }
func (i columnItem) FilterValue() string { return i.column.Title }

type postItem struct{ post api.Post }

func (i postItem) Title() string { return i.post.Title }
func (i postItem) Description() string {
	if i.post.Excerpt != "" {
		return i.post.Excerpt
	}
	return PlainText(i.post.Content)
}
func (i postItem) FilterValue() string { return i.post.Title }

// columnItems orders columns by title, then id.
func columnItems(columns []api.Column) []list.Item {
	slices.SortFunc(columns, func(a, b api.Column) int {
		if c := strings.Compare(a.Title, b.Title); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	items := make([]list.Item, len(columns))
	for i, c := range columns {
		items[i] = columnItem{column: c}
	}
	return items
}

// postItems orders posts newest first.
func postItems(posts []api.Post) []list.Item {
	slices.SortFunc(posts, func(a, b api.Post) int {
		if c := b.ParsedCreatedAt().Compare(a.ParsedCreatedAt()); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	items := make([]list.Item, len(posts))
	for i, p := range posts {
		items[i] = postItem{post: p}
	}
	return items
}

// Commands

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func loadColumnsCmd(ctx context.Context, orch *actions.Orchestrator, next bool) tea.Cmd {
	return func() tea.Msg {
		var err error
		if next {
			_, err = orch.NextColumns(ctx).Await(ctx)
		} else {
			_, err = orch.FetchColumns(ctx, actions.ColumnsQuery{CurrentPage: 1}).Await(ctx)
		}
		return columnsMsg{err: err}
	}
}

func openColumnCmd(ctx context.Context, orch *actions.Orchestrator, id string) tea.Cmd {
	return func() tea.Msg {
		view, err := orch.OpenColumn(ctx, id).Await(ctx)
		return columnMsg{view: view, err: err}
	}
}

func openPostCmd(ctx context.Context, orch *actions.Orchestrator, id string) tea.Cmd {
	return func() tea.Msg {
		if _, err := orch.FetchPost(ctx, id).Await(ctx); err != nil {
			return postMsg{err: err}
		}
		post, ok := orch.Store().Post(id)
		if !ok {
			return postMsg{err: fmt.Errorf("post %s not cached", id)}
		}
		return postMsg{post: post}
	}
}

// Run starts the Bubble Tea program.
func Run(opts Options) error {
	m := New(opts)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(m.ctx))
	_, err := p.Run()
	return err
}
