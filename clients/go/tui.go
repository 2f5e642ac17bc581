package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/dsavault/clubchat/clients/go/clubchat"
	"github.com/dsavault/clubchat/internal/chat"
	"github.com/dsavault/clubchat/internal/chatview"
	"github.com/dsavault/clubchat/internal/models"
)

var (
	primaryColor = lipgloss.Color("#7C3AED")
	mineColor    = lipgloss.Color("#10B981")
	mutedColor   = lipgloss.Color("#9CA3AF")
	errorColor   = lipgloss.Color("#EF4444")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			Padding(0, 1)

	tabStyle       = lipgloss.NewStyle().Padding(0, 1).Foreground(mutedColor)
	activeTabStyle = lipgloss.NewStyle().Padding(0, 1).Bold(true).Underline(true)

	mutedStyle = lipgloss.NewStyle().Foreground(mutedColor)
	errorStyle = lipgloss.NewStyle().Foreground(errorColor).Bold(true)
	mineStyle  = lipgloss.NewStyle().Foreground(mineColor).Bold(true)

	selectedStyle = lipgloss.NewStyle().Foreground(primaryColor).Bold(true)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(1, 2)
)

// changeMsg is sent whenever the session state moves.
type changeMsg struct{}

// errMsg reports a failed background action.
type errMsg struct{ err error }

type chatModel struct {
	ctx     context.Context
	view    *chatview.View
	changes chan tea.Msg

	input    textinput.Model
	viewport viewport.Model
	cursor   int
	width    int
	height   int
	status   string
	failed   bool
}

func runChat(ctx context.Context, client *clubchat.Client, me *models.User) error {
	changes := make(chan tea.Msg, 1)
	notify := func() {
		select {
		case changes <- changeMsg{}:
		default:
		}
	}

	loc := time.Local
	if tz := os.Getenv("CLUBCHAT_TIMEZONE"); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return fmt.Errorf("CLUBCHAT_TIMEZONE: %w", err)
		}
		loc = l
	}

	view, err := chatview.New(ctx, client, me, client.Logger,
		chatview.WithOnChange(notify), chatview.WithLocation(loc))
	if err != nil {
		return err
	}
	defer view.Close()

	input := textinput.New()
	input.Placeholder = "Type a message..."
	input.CharLimit = 4000
	input.Focus()

	m := &chatModel{
		ctx:      ctx,
		view:     view,
		changes:  changes,
		input:    input,
		viewport: viewport.New(80, 20),
	}

	_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}

func (m *chatModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.waitForChange())
}

// waitForChange blocks until the session reports a change.
func (m *chatModel) waitForChange() tea.Cmd {
	return func() tea.Msg {
		return <-m.changes
	}
}

// run performs a store call off the UI loop.
func (m *chatModel) run(fn func(context.Context) error) tea.Cmd {
	return func() tea.Msg {
		if err := fn(m.ctx); err != nil {
			return errMsg{err}
		}
		return nil
	}
}

func (m *chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-6, 3)
		m.input.Width = max(msg.Width-4, 10)
		m.refresh()

	case changeMsg:
		m.refresh()
		cmds = append(cmds, m.waitForChange())

	case errMsg:
		m.status, m.failed = describe(msg.err), true

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		m.status, m.failed = "", false
		if cmd, handled := m.handleKey(msg); handled {
			m.refresh()
			return m, cmd
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
		m.syncInput()
		m.refresh()
	}

	return m, tea.Batch(cmds...)
}

// handleKey processes navigation keys. Keys it does not claim go to the
// text input.
func (m *chatModel) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	if _, open := m.view.Profile(); open {
		switch msg.String() {
		case "esc":
			m.view.CloseProfile()
		case "m", "enter":
			return m.run(m.view.MessageProfile), true
		}
		return nil, true
	}

	state := m.view.State()
	switch msg.String() {
	case "esc":
		if state.InConversation() {
			if err := m.view.Back(); err != nil {
				m.status, m.failed = describe(err), true
			}
			m.input.SetValue("")
			m.cursor = 0
			return nil, true
		}
		if state == chatview.BrowsingDirectory && m.input.Value() != "" {
			m.input.SetValue("")
			m.view.SetSearch("")
			return nil, true
		}
		return tea.Quit, true

	case "tab":
		if state.InConversation() {
			return nil, true
		}
		m.cursor = 0
		m.input.SetValue("")
		switch state {
		case chatview.BrowsingRooms:
			m.view.ShowInbox()
		case chatview.BrowsingInbox:
			return m.run(m.view.ShowDirectory), true
		default:
			m.view.ShowRooms()
		}
		return nil, true

	case "up":
		if m.cursor > 0 {
			m.cursor--
		}
		return nil, !state.InConversation()

	case "down":
		if m.cursor < m.listLen()-1 {
			m.cursor++
		}
		return nil, !state.InConversation()

	case "ctrl+o":
		if state.InConversation() {
			msgs := m.view.Messages()
			for i := len(msgs) - 1; i >= 0; i-- {
				if !m.view.IsMine(msgs[i]) {
					m.view.OpenMessageProfile(msgs[i])
					break
				}
			}
		}
		return nil, true

	case "enter":
		return m.enter(state), true
	}

	return nil, false
}

func (m *chatModel) enter(state chatview.State) tea.Cmd {
	switch state {
	case chatview.BrowsingRooms:
		rooms := chat.Rooms()
		if m.cursor < len(rooms) {
			id := rooms[m.cursor].ID
			m.input.SetValue("")
			return m.run(func(ctx context.Context) error { return m.view.SelectRoom(ctx, id) })
		}
	case chatview.BrowsingInbox:
		inbox := m.view.Inbox()
		if m.cursor < len(inbox) {
			entry := inbox[m.cursor]
			m.input.SetValue("")
			return m.run(func(ctx context.Context) error { return m.view.SelectInboxEntry(ctx, entry) })
		}
	case chatview.BrowsingDirectory:
		users := m.view.FilteredDirectory()
		if m.cursor < len(users) {
			m.view.OpenUserProfile(users[m.cursor])
		}
	case chatview.InRoom, chatview.InDirect:
		if !m.view.CanSend() {
			return nil
		}
		m.input.SetValue("")
		return m.run(m.view.Submit)
	}
	return nil
}

// syncInput copies the text field into the draft or the directory search.
func (m *chatModel) syncInput() {
	switch state := m.view.State(); {
	case state.InConversation():
		m.view.SetDraft(m.input.Value())
	case state == chatview.BrowsingDirectory:
		m.view.SetSearch(m.input.Value())
		m.cursor = 0
	}
}

func (m *chatModel) listLen() int {
	switch m.view.State() {
	case chatview.BrowsingRooms:
		return len(chat.Rooms())
	case chatview.BrowsingInbox:
		return len(m.view.Inbox())
	case chatview.BrowsingDirectory:
		return len(m.view.FilteredDirectory())
	}
	return 0
}

func (m *chatModel) refresh() {
	if n := m.listLen(); m.cursor >= n {
		m.cursor = max(n-1, 0)
	}
	if m.view.State().InConversation() {
		m.input.Placeholder = "Type a message..."
		m.viewport.SetContent(m.renderMessages())
		m.viewport.GotoBottom()
	} else {
		m.input.Placeholder = "Search by name or email..."
	}
}

func (m *chatModel) View() string {
	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n\n")

	if p, ok := m.view.Profile(); ok {
		b.WriteString(m.renderProfile(p))
	} else {
		switch state := m.view.State(); state {
		case chatview.BrowsingRooms:
			b.WriteString(m.renderRooms())
		case chatview.BrowsingInbox:
			b.WriteString(m.renderInbox())
		case chatview.BrowsingDirectory:
			b.WriteString(m.input.View())
			b.WriteString("\n\n")
			b.WriteString(m.renderDirectory())
		default:
			b.WriteString(m.viewport.View())
			b.WriteString("\n")
			b.WriteString(m.input.View())
		}
	}

	b.WriteString("\n")
	switch {
	case m.status != "" && m.failed:
		b.WriteString(errorStyle.Render(m.status))
	case m.status != "":
		b.WriteString(mutedStyle.Render(m.status))
	default:
		b.WriteString(mutedStyle.Render(m.help()))
	}
	return b.String()
}

func (m *chatModel) help() string {
	if _, ok := m.view.Profile(); ok {
		return "m message • esc close"
	}
	if m.view.State().InConversation() {
		return "enter send • ctrl+o profile • esc back • ctrl+c quit"
	}
	return "tab switch • ↑/↓ move • enter open • esc quit"
}

func (m *chatModel) renderHeader() string {
	state := m.view.State()
	if room, ok := m.view.ActiveRoom(); ok && state == chatview.InRoom {
		accent := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(room.AccentColor)).Padding(0, 1)
		return accent.Render(room.Name) + mutedStyle.Render(room.Description)
	}
	if with, ok := m.view.Counterpart(); ok && state == chatview.InDirect {
		return titleStyle.Render(with.Label())
	}

	tabs := []struct {
		label string
		state chatview.State
	}{
		{"Clubs", chatview.BrowsingRooms},
		{"Messages", chatview.BrowsingInbox},
		{"Directory", chatview.BrowsingDirectory},
	}
	parts := []string{titleStyle.Render("clubchat")}
	for _, t := range tabs {
		if t.state == state {
			parts = append(parts, activeTabStyle.Render(t.label))
		} else {
			parts = append(parts, tabStyle.Render(t.label))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (m *chatModel) line(i int, s string) string {
	if i == m.cursor {
		return selectedStyle.Render("> "+s) + "\n"
	}
	return "  " + s + "\n"
}

func (m *chatModel) renderRooms() string {
	var b strings.Builder
	for i, room := range chat.Rooms() {
		name := lipgloss.NewStyle().Foreground(lipgloss.Color(room.AccentColor)).Render(room.Name)
		b.WriteString(m.line(i, name+"  "+mutedStyle.Render(room.Description)))
	}
	return b.String()
}

func (m *chatModel) renderInbox() string {
	inbox := m.view.Inbox()
	if len(inbox) == 0 {
		return mutedStyle.Render("No conversations yet. Find someone in the directory.") + "\n"
	}
	var b strings.Builder
	for i, e := range inbox {
		b.WriteString(m.line(i, fmt.Sprintf("%s  %s  %s",
			e.DisplayName, mutedStyle.Render(e.LastMessageDisplayTime), e.LastMessage)))
	}
	return b.String()
}

func (m *chatModel) renderDirectory() string {
	if m.view.DirectoryLoading() {
		return mutedStyle.Render("Loading...") + "\n"
	}
	users := m.view.FilteredDirectory()
	if len(users) == 0 {
		return mutedStyle.Render("No users found.") + "\n"
	}
	var b strings.Builder
	for i, u := range users {
		b.WriteString(m.line(i, u.Label()+"  "+mutedStyle.Render(u.Email)))
	}
	return b.String()
}

func (m *chatModel) renderMessages() string {
	msgs := m.view.Messages()
	if len(msgs) == 0 {
		return mutedStyle.Render("No messages yet. Say hello!")
	}
	var b strings.Builder
	for _, msg := range msgs {
		name := msg.DisplayName
		if name == "" {
			name = msg.Author
		}
		if m.view.IsMine(msg) {
			name = mineStyle.Render("you")
		}
		line := fmt.Sprintf("%s %s: %s", mutedStyle.Render(msg.DisplayTime), name, msg.Body)
		if msg.Pending {
			line = mutedStyle.Render(line + " (sending)")
		}
		b.WriteString(lipgloss.NewStyle().Width(m.viewport.Width).Render(line))
		b.WriteString("\n")
	}
	return b.String()
}

func (m *chatModel) renderProfile(p chatview.Profile) string {
	body := titleStyle.Render(p.Title())
	if p.AuthorLabel != "" && p.AuthorLabel != p.Title() {
		body += "\n" + mutedStyle.Render(p.AuthorLabel)
	}
	if !m.view.CanMessageProfile() {
		body += "\n\n" + mutedStyle.Render("You can't message this user.")
	}
	return boxStyle.Render(body) + "\n"
}

func describe(err error) string {
	var partial *chat.PartialInboxWriteError
	switch {
	case errors.As(err, &partial):
		return "Sent, but the inbox did not update."
	case errors.Is(err, chat.ErrAuthRequired):
		return "Sign in first: clubchat login <token>"
	case errors.Is(err, chat.ErrSelfMessage):
		return "You can't message yourself."
	default:
		return "Error: " + err.Error()
	}
}
