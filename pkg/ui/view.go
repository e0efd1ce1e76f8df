package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/go-go-golems/socratic/pkg/timeline"
)

var (
	headerStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	userLabelStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	tutorLabelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("118"))
	timeStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	attachmentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("213")).Italic(true)
	thinkingStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("246")).Italic(true)
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("246"))
	helpStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	messageStyle    = lipgloss.NewStyle().PaddingLeft(2)
)

const helpText = "enter send · alt+enter newline · /attach <file> · ctrl+r new session · ctrl+y copy reply · ctrl+c quit"

func (m Model) View() string {
	if m.confirm != nil {
		return m.confirm.View()
	}

	var sb strings.Builder
	header := headerStyle.Render("Socratic Math Tutor")
	if m.loading {
		header += "  " + m.spinner.View() + " " + thinkingStyle.Render("Thinking deeply...")
	}
	sb.WriteString(header)
	sb.WriteString("\n")
	sb.WriteString(m.viewport.View())
	sb.WriteString("\n")
	sb.WriteString(m.statusLine())
	sb.WriteString("\n")
	sb.WriteString(m.input.View())
	sb.WriteString("\n")
	sb.WriteString(helpStyle.Render(helpText))
	return sb.String()
}

func (m Model) statusLine() string {
	switch {
	case m.warning != "":
		return errorStyle.Render(m.warning)
	case m.attachment != nil:
		return attachmentStyle.Render(fmt.Sprintf("📎 %s (%s, %s) · /detach to remove",
			m.attachName, m.attachment.MediaType, humanSize(len(m.attachment.Data))))
	default:
		return statusStyle.Render(m.status)
	}
}

func (m Model) renderMessages() string {
	width := max(20, m.width-4)
	body := messageStyle.Width(width)

	blocks := make([]string, 0, len(m.view.Messages))
	for _, msg := range m.view.Messages {
		var sb strings.Builder
		label := tutorLabelStyle.Render("Tutor")
		if msg.Role == timeline.RoleUser {
			label = userLabelStyle.Render("You")
		}
		sb.WriteString(label + " " + timeStyle.Render(msg.CreatedAt.Format("15:04")))
		sb.WriteString("\n")

		if msg.Attachment != nil {
			sb.WriteString(body.Render(attachmentStyle.Render(fmt.Sprintf("[image %s, %s]",
				msg.Attachment.MediaType, humanSize(len(msg.Attachment.Data))))))
			sb.WriteString("\n")
		}
		switch {
		case msg.Pending:
			sb.WriteString(body.Render(m.spinner.View() + " " + thinkingStyle.Render("Thinking deeply...")))
		case msg.State == timeline.StateFailed:
			sb.WriteString(body.Render(errorStyle.Render(msg.Text)))
		case msg.Text != "":
			sb.WriteString(body.Render(msg.Text))
		}
		blocks = append(blocks, strings.TrimRight(sb.String(), "\n"))
	}
	return strings.Join(blocks, "\n\n")
}

func humanSize(n int) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
