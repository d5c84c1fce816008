package main

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"parley/internal/app"
	"parley/pkg/banner"
	"parley/pkg/models"
	"parley/pkg/shutdown"
	"parley/pkg/transport"
)

var (
	styleSender   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7dd3fc"))
	styleOwn      = lipgloss.NewStyle().Foreground(lipgloss.Color("#a7f3d0"))
	stylePendingM = lipgloss.NewStyle().Foreground(lipgloss.Color("#9ca3af")).Italic(true)
	styleFailed   = lipgloss.NewStyle().Foreground(lipgloss.Color("#f87171"))
	styleSystem   = lipgloss.NewStyle().Foreground(lipgloss.Color("#fbbf24")).Italic(true)
	styleBannerU  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#0f172a")).Background(lipgloss.Color("#fbbf24")).Padding(0, 1)
	styleNotice   = lipgloss.NewStyle().Foreground(lipgloss.Color("#fbbf24"))
	styleTimeDim  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280"))
)

func newChatCmd() *cobra.Command {
	var altScreen bool
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Open the interactive conversation view",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, source, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			banner.Print(cfg, source, Version)

			var pinned atomic.Bool
			pinned.Store(true)
			a, err := app.New(cfg, source, Version, app.Options{Pinned: pinned.Load})
			if err != nil {
				return err
			}
			ctx, cancel := shutdown.SetupSignalHandler(cmd.Context())
			defer cancel()
			if err := a.Start(ctx); err != nil {
				a.Close(context.Background())
				shutdown.Abort("open conversation", err, cfg.Storage.DataDir)
			}
			defer a.Close(context.Background())

			m := newChatModel(a, &pinned)
			opts := []tea.ProgramOption{}
			if altScreen {
				opts = append(opts, tea.WithAltScreen())
			}
			p := tea.NewProgram(m, opts...)
			a.Service.OnUpdate(func() { p.Send(viewUpdatedMsg{}) })
			a.Service.OnDenied(func(msg models.Message, res transport.ValidationResult) {
				p.Send(deniedMsg{res: res})
			})
			go func() {
				<-ctx.Done()
				p.Quit()
			}()

			_, err = p.Run()
			return err
		},
	}
	cmd.Flags().BoolVar(&altScreen, "alt-screen", true, "render in the terminal alternate screen")
	return cmd
}

type viewUpdatedMsg struct{}

type deniedMsg struct{ res transport.ValidationResult }

type chatModel struct {
	app    *app.App
	pinned *atomic.Bool

	vp     viewport.Model
	input  textinput.Model
	ready  bool
	notice string

	lastFailed *models.Message
}

func newChatModel(a *app.App, pinned *atomic.Bool) *chatModel {
	input := textinput.New()
	input.Prompt = "❯ "
	input.CharLimit = 4000
	input.Placeholder = "Say something (enter to send, ctrl+r to retry, ctrl+c to quit)"
	input.Focus()
	return &chatModel{app: a, pinned: pinned, input: input}
}

func (m *chatModel) Init() tea.Cmd { return textinput.Blink }

func (m *chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		inputH := 3
		if !m.ready {
			m.vp = viewport.New(msg.Width, msg.Height-inputH)
			m.vp.MouseWheelEnabled = true
			m.ready = true
		} else {
			m.vp.Width = msg.Width
			m.vp.Height = msg.Height - inputH
		}
		m.renderTranscript()
		return m, nil

	case viewUpdatedMsg:
		m.renderTranscript()
		return m, nil

	case deniedMsg:
		m.notice = fmt.Sprintf("message not sent: %s", msg.res.Detail)
		m.renderTranscript()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			body := strings.TrimSpace(m.input.Value())
			if body == "" {
				return m, nil
			}
			m.notice = ""
			m.app.Service.Send(body, models.KindText, nil)
			m.input.SetValue("")
			m.app.Service.OnInputChanged(false)
			m.vp.GotoBottom()
			m.syncPinned()
			return m, nil
		case tea.KeyCtrlR:
			if m.lastFailed != nil {
				failed := *m.lastFailed
				m.lastFailed = nil
				m.app.Service.Retry(failed)
				m.notice = ""
			}
			return m, nil
		}

		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		m.app.Service.OnInputChanged(strings.TrimSpace(m.input.Value()) != "")
		return m, cmd
	}

	// scrolling and everything else goes to the viewport
	var cmd tea.Cmd
	m.vp, cmd = m.vp.Update(msg)
	m.syncPinned()
	return m, cmd
}

// syncPinned publishes the auto-follow state to the sync core and
// acknowledges unread replies whenever the user is back at the bottom.
func (m *chatModel) syncPinned() {
	atBottom := m.vp.AtBottom()
	m.pinned.Store(atBottom)
	if atBottom {
		m.app.Service.AcknowledgeReplies()
	}
}

func (m *chatModel) renderTranscript() {
	if !m.ready {
		return
	}
	wasAtBottom := m.vp.AtBottom()
	m.vp.SetContent(m.transcript())
	if wasAtBottom {
		m.vp.GotoBottom()
	}
	m.syncPinned()
}

func (m *chatModel) transcript() string {
	var b strings.Builder
	id, _ := m.app.Bootstrap.Current()
	for _, g := range m.app.Service.Groups() {
		first := g.Messages[0]
		if first.System() {
			b.WriteString(styleSystem.Render("· "+first.Body) + "\n\n")
			continue
		}
		name := g.SenderName
		if name == "" {
			name = g.SenderID
		}
		own := m.app.Bootstrap.IsLocalSender(g.SenderID)
		if own {
			name = name + " (you)"
		}
		ts := time.UnixMilli(first.OrderKey()).Format("15:04")
		b.WriteString(styleSender.Render(name) + " " + styleTimeDim.Render(ts) + "\n")
		for _, msg := range g.Messages {
			line := msg.Body
			switch msg.Status {
			case models.StatusOptimistic:
				line = stylePendingM.Render(line + " …")
			case models.StatusFailed:
				failed := msg
				m.lastFailed = &failed
				line = styleFailed.Render(line + "  ⚠ not sent — ctrl+r to retry")
			default:
				if own {
					line = styleOwn.Render(line)
				}
			}
			if msg.ReplyRef != nil {
				line = styleTimeDim.Render("↳ "+msg.ReplyRef.SenderName+": "+msg.ReplyRef.Snippet) + "\n" + line
			}
			b.WriteString(line + "\n")
		}
		b.WriteString("\n")
	}
	if !id.Provisioned() {
		b.WriteString(styleTimeDim.Render("(guest session, identity pending)") + "\n")
	}
	return b.String()
}

func (m *chatModel) View() string {
	if !m.ready {
		return "connecting..."
	}
	var footer strings.Builder
	if st := m.app.Service.UnreadReplyState(); st.HasUnread {
		from := st.FromDisplayName
		if from == "" {
			from = "someone"
		}
		footer.WriteString(styleBannerU.Render("↓ new reply from "+from) + "\n")
	} else if m.notice != "" {
		footer.WriteString(styleNotice.Render(m.notice) + "\n")
	} else {
		footer.WriteString("\n")
	}
	footer.WriteString(m.input.View())
	return m.vp.View() + "\n" + footer.String()
}
