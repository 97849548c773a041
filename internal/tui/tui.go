// Package tui is a terminal console over the live feed snapshots.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/communitybot/feedwatch/internal/app"
	"github.com/communitybot/feedwatch/pkg/models"
)

type View int

const (
	ViewList View = iota
	ViewDetail
	ViewHelp
)

type Tab int

const (
	TabEvents Tab = iota
	TabBounties
)

func (t Tab) String() string {
	if t == TabBounties {
		return "Bounties"
	}
	return "Events"
}

type Model struct {
	app       *app.App
	view      View
	tab       Tab
	list      list.Model
	width     int
	height    int
	err       error
	statusMsg string
	detail    string
}

type itemsLoadedMsg struct {
	tab   Tab
	items []list.Item
}

type refreshedMsg struct {
	tab Tab
	n   int
	err error
}

type detailMsg string

type errorMsg struct {
	err error
}

type statusMsg string

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			MarginBottom(1)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))
)

func New(a *app.App) Model {
	delegate := list.NewDefaultDelegate()
	l := list.New(nil, delegate, 0, 0)
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	l.Styles.Title = titleStyle

	m := Model{app: a, view: ViewList, tab: TabEvents, list: l}
	m.list.Title = m.title()
	return m
}

func (m Model) title() string {
	return fmt.Sprintf("feedwatch - %s (tab to switch)", m.tab)
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		loadItems(m.app, m.tab),
		tea.EnterAltScreen,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(msg.Width, msg.Height-4)
		return m, nil

	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case itemsLoadedMsg:
		if msg.tab != m.tab {
			return m, nil
		}
		cmd := m.list.SetItems(msg.items)
		m.statusMsg = fmt.Sprintf("Loaded %d %s", len(msg.items), strings.ToLower(msg.tab.String()))
		return m, cmd

	case refreshedMsg:
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.err = nil
			m.statusMsg = fmt.Sprintf("Refreshed %s: %d records", strings.ToLower(msg.tab.String()), msg.n)
		}
		return m, loadItems(m.app, m.tab)

	case detailMsg:
		m.detail = string(msg)
		return m, nil

	case errorMsg:
		m.err = msg.err
		return m, nil

	case statusMsg:
		m.statusMsg = string(msg)
		return m, nil
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.view {
	case ViewList:
		return m.handleListKeys(msg)
	case ViewDetail:
		return m.handleDetailKeys(msg)
	case ViewHelp:
		return m.handleHelpKeys(msg)
	}
	return m, nil
}

func (m Model) handleListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.list.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit

	case "tab":
		if m.tab == TabEvents {
			m.tab = TabBounties
		} else {
			m.tab = TabEvents
		}
		m.list.Title = m.title()
		m.list.ResetFilter()
		return m, loadItems(m.app, m.tab)

	case "enter":
		switch i := m.list.SelectedItem().(type) {
		case eventItem:
			m.view = ViewDetail
			m.detail = "Loading event details..."
			return m, loadEventDetails(m.app, i.event.Link, m.width)
		case bountyItem:
			m.view = ViewDetail
			m.detail = render(bountyMarkdown(i.bounty), m.width)
			return m, nil
		}

	case "r":
		return m, tea.Batch(
			refresh(m.app, m.tab),
			func() tea.Msg { return statusMsg(fmt.Sprintf("Refreshing %s...", strings.ToLower(m.tab.String()))) },
		)

	case "o":
		return m, m.openSelected()

	case "?":
		m.view = ViewHelp
		return m, nil
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) handleDetailKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit

	case "esc", "backspace":
		m.view = ViewList
		m.detail = ""
		return m, nil

	case "o":
		return m, m.openSelected()

	case "?":
		m.view = ViewHelp
		return m, nil
	}

	return m, nil
}

func (m Model) handleHelpKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "?", "q":
		if m.detail != "" {
			m.view = ViewDetail
		} else {
			m.view = ViewList
		}
		return m, nil
	}
	return m, nil
}

func (m Model) openSelected() tea.Cmd {
	i, ok := m.list.SelectedItem().(linked)
	if !ok || i.Link() == "" {
		return nil
	}
	return func() tea.Msg {
		if err := openBrowser(i.Link()); err != nil {
			return errorMsg{err}
		}
		return statusMsg("Opened in browser")
	}
}

func (m Model) View() string {
	switch m.view {
	case ViewList:
		return m.renderList()
	case ViewDetail:
		return m.renderDetail()
	case ViewHelp:
		return m.renderHelp()
	}
	return ""
}

func (m Model) renderList() string {
	var s strings.Builder

	s.WriteString(m.list.View())
	s.WriteString("\n")

	// Status bar
	if m.err != nil {
		s.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
	} else if m.statusMsg != "" {
		s.WriteString(statusStyle.Render(m.statusMsg))
	}

	s.WriteString("\n")
	s.WriteString(helpStyle.Render("enter: details • o: open browser • r: refresh • tab: switch feed • ?: help • q: quit"))

	return s.String()
}

func (m Model) renderDetail() string {
	var s strings.Builder

	s.WriteString(m.detail)
	s.WriteString("\n\n")

	if m.err != nil {
		s.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		s.WriteString("\n")
	} else if m.statusMsg != "" {
		s.WriteString(statusStyle.Render(m.statusMsg))
		s.WriteString("\n")
	}

	s.WriteString(helpStyle.Render("o: open browser • esc: back • ?: help • q: quit"))

	return s.String()
}

func (m Model) renderHelp() string {
	help := `
feedwatch - Keyboard Shortcuts

List:
  ↑/↓, j/k     Navigate
  enter        Show details
  o            Open link in browser
  r            Refresh the current feed
  tab          Switch between events and bounties
  /            Filter
  q, ctrl+c    Quit

Details:
  o            Open link in browser
  esc          Back to list
  q, ctrl+c    Quit

General:
  ?            Show/hide this help
`
	return help + "\n" + helpStyle.Render("Press ? or esc to close help")
}

func loadItems(a *app.App, tab Tab) tea.Cmd {
	return func() tea.Msg {
		var items []list.Item
		if tab == TabBounties {
			for _, b := range a.Bounties.ActiveOrUpcoming(0) {
				items = append(items, bountyItem{b})
			}
		} else {
			for _, ev := range a.Events.ActiveOrUpcoming(0) {
				items = append(items, eventItem{ev, a.Location()})
			}
		}
		return itemsLoadedMsg{tab: tab, items: items}
	}
}

func refresh(a *app.App, tab Tab) tea.Cmd {
	return func() tea.Msg {
		var (
			n   int
			err error
		)
		if tab == TabBounties {
			n, err = a.Bounties.Refresh(context.Background())
		} else {
			n, err = a.Events.Refresh(context.Background())
		}
		return refreshedMsg{tab: tab, n: n, err: err}
	}
}

func loadEventDetails(a *app.App, url string, width int) tea.Cmd {
	return func() tea.Msg {
		d, err := a.EventDetails(context.Background(), url)
		if err != nil {
			return errorMsg{err}
		}
		return detailMsg(render(detailsMarkdown(d), width))
	}
}

// render draws markdown for the terminal, returning the source when
// rendering fails.
func render(markdown string, width int) string {
	if width <= 0 {
		width = 80
	}
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(width-2))
	if err != nil {
		return markdown
	}
	out, err := r.Render(markdown)
	if err != nil {
		return markdown
	}
	return out
}

func detailsMarkdown(d models.EventDetails) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", d.Title)
	if d.Date != "" || d.Time != "" {
		fmt.Fprintf(&b, "**When:** %s %s\n\n", d.Date, d.Time)
	}
	if d.Location != "" {
		fmt.Fprintf(&b, "**Where:** %s\n\n", d.Location)
	}
	if len(d.Hosts) > 0 {
		fmt.Fprintf(&b, "**Hosted by:** %s\n\n", strings.Join(d.Hosts, ", "))
	}
	if d.Attendees > 0 {
		fmt.Fprintf(&b, "**Going:** %d\n\n", d.Attendees)
	}
	if d.Description != "" {
		fmt.Fprintf(&b, "## About\n\n%s\n\n", d.Description)
	}
	if d.RegistrationURL != "" {
		fmt.Fprintf(&b, "[Register](%s)\n", d.RegistrationURL)
	}
	return b.String()
}

func bountyMarkdown(bt models.Bounty) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", bt.Title)
	fmt.Fprintf(&b, "- **Reward:** %s\n", bt.Reward)
	fmt.Fprintf(&b, "- **Deadline:** %s\n", bt.Deadline)
	if !bt.DueAt.IsZero() {
		fmt.Fprintf(&b, "- **Due:** %s\n", bt.DueAt.Format("Mon Jan 2, 2006"))
	}
	fmt.Fprintf(&b, "- **Source:** %s\n\n", bt.Source)
	if bt.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", bt.Description)
	}
	fmt.Fprintf(&b, "[Details](%s)\n", bt.Link)
	return b.String()
}
