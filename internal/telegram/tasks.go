package telegram

import (
	"fmt"
	"strings"
	"time"

	"github.com/DelureDev/Bitrix-task-bot/internal/bitrix"
)

// statusLabels maps Bitrix REAL_STATUS values to display text.
var statusLabels = map[int]string{
	1: "New",
	2: "Pending",
	3: "In progress",
	4: "Awaiting control",
	5: "Completed",
	6: "Deferred",
	7: "Declined",
}

func statusLabel(status int) string {
	if label, ok := statusLabels[status]; ok {
		return label
	}
	if status == 0 {
		return "-"
	}
	return fmt.Sprintf("%d", status)
}

// formatDeadline renders a Bitrix ISO-8601 deadline as dd.mm.yyyy hh:mm,
// falling back to the raw text when it does not parse.
func formatDeadline(deadline string) string {
	deadline = strings.TrimSpace(deadline)
	if deadline == "" {
		return "-"
	}
	t, err := time.Parse(time.RFC3339, deadline)
	if err != nil {
		return deadline
	}
	return t.Format("02.01.2006 15:04")
}

// taskLink builds a portal URL for a task. The explicit template wins;
// otherwise the link is derived from the portal base and the responsible
// user's task view. Returns "" when neither is configured.
func (b *Bot) taskLink(taskID int) string {
	if tpl := strings.TrimSpace(b.cfg.TaskURLTemplate); tpl != "" {
		return strings.ReplaceAll(tpl, "{task_id}", fmt.Sprintf("%d", taskID))
	}
	base := strings.TrimRight(strings.TrimSpace(b.cfg.PortalBase), "/")
	if base == "" {
		return ""
	}
	return fmt.Sprintf("%s/company/personal/user/%d/tasks/task/view/%d/", base, b.cfg.DefaultResponsibleID, taskID)
}

// formatTaskList renders the my-tasks listing.
func (b *Bot) formatTaskList(tasks []bitrix.Task) string {
	lines := []string{"📋 Your latest tasks (you are the author):"}
	for i, task := range tasks {
		title := strings.TrimSpace(task.Title)
		if title == "" {
			title = "(untitled)"
		}
		if r := []rune(title); len(r) > 110 {
			title = string(r[:107]) + "..."
		}
		row := []string{
			fmt.Sprintf("%d. #%d — %s", i+1, task.ID, title),
			"Status: " + statusLabel(task.Status),
		}
		if deadline := formatDeadline(task.Deadline); deadline != "-" {
			row = append(row, "Due: "+deadline)
		}
		if link := b.taskLink(task.ID); link != "" {
			row = append(row, "Link: "+link)
		}
		lines = append(lines, strings.Join(row, "\n"))
	}
	return strings.Join(lines, "\n\n")
}
