package telegram

import (
	"strings"
	"testing"

	"github.com/DelureDev/Bitrix-task-bot/internal/bitrix"
	"github.com/DelureDev/Bitrix-task-bot/internal/intake"
	"github.com/DelureDev/Bitrix-task-bot/internal/staging"
)

func TestStatusLabel(t *testing.T) {
	tests := []struct {
		status int
		want   string
	}{
		{1, "New"},
		{3, "In progress"},
		{7, "Declined"},
		{0, "-"},
		{42, "42"},
	}
	for _, tt := range tests {
		if got := statusLabel(tt.status); got != tt.want {
			t.Errorf("statusLabel(%d) = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestFormatDeadline(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "-"},
		{"  ", "-"},
		{"2026-03-01T15:04:00+03:00", "01.03.2026 15:04"},
		{"not-a-date", "not-a-date"},
	}
	for _, tt := range tests {
		if got := formatDeadline(tt.in); got != tt.want {
			t.Errorf("formatDeadline(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTaskLinkTemplateWins(t *testing.T) {
	b := &Bot{cfg: Config{
		TaskURLTemplate:      "https://portal.example/tasks/{task_id}/view",
		PortalBase:           "https://portal.example",
		DefaultResponsibleID: 9,
	}}
	got := b.taskLink(77)
	want := "https://portal.example/tasks/77/view"
	if got != want {
		t.Errorf("taskLink(77) = %q, want %q", got, want)
	}
}

func TestTaskLinkFromPortalBase(t *testing.T) {
	b := &Bot{cfg: Config{
		PortalBase:           "https://portal.example/",
		DefaultResponsibleID: 9,
	}}
	got := b.taskLink(77)
	want := "https://portal.example/company/personal/user/9/tasks/task/view/77/"
	if got != want {
		t.Errorf("taskLink(77) = %q, want %q", got, want)
	}
}

func TestTaskLinkUnconfigured(t *testing.T) {
	b := &Bot{}
	if got := b.taskLink(77); got != "" {
		t.Errorf("taskLink(77) = %q, want empty", got)
	}
}

func TestFormatTaskList(t *testing.T) {
	b := &Bot{cfg: Config{PortalBase: "https://portal.example", DefaultResponsibleID: 1}}
	long := strings.Repeat("x", 130)
	out := b.formatTaskList([]bitrix.Task{
		{ID: 10, Title: "Fix printer", Status: 3, Deadline: "2026-03-01T15:04:00+03:00"},
		{ID: 11, Title: long, Status: 1},
		{ID: 12, Status: 5},
	})

	for _, want := range []string{
		"1. #10 — Fix printer",
		"Status: In progress",
		"Due: 01.03.2026 15:04",
		"Link: https://portal.example/company/personal/user/1/tasks/task/view/10/",
		"2. #11 — " + strings.Repeat("x", 107) + "...",
		"3. #12 — (untitled)",
		"Status: Completed",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("formatTaskList output missing %q\ngot:\n%s", want, out)
		}
	}
	if strings.Contains(out, strings.Repeat("x", 110)) {
		t.Errorf("long title was not truncated:\n%s", out)
	}
	// Task without a deadline should not get a Due row.
	if strings.Count(out, "Due:") != 1 {
		t.Errorf("expected exactly one Due row, got:\n%s", out)
	}
}

func TestRenderReply(t *testing.T) {
	b := &Bot{}
	tests := []struct {
		name       string
		reply      intake.Reply
		wantText   string
		wantMarkup bool
	}{
		{
			name:     "ask title",
			reply:    intake.Reply{Kind: intake.ReplyAskTitle},
			wantText: "Send the task title",
		},
		{
			name:       "ask attachments carries keyboard",
			reply:      intake.Reply{Kind: intake.ReplyAskAttachments},
			wantText:   "Done",
			wantMarkup: true,
		},
		{
			name:     "staged names the file",
			reply:    intake.Reply{Kind: intake.ReplyAttachmentStaged, Name: "report.pdf"},
			wantText: "report.pdf",
		},
		{
			name: "too many rejection",
			reply: intake.Reply{
				Kind:      intake.ReplyAttachmentRejected,
				Rejection: &staging.ValidationError{Reason: staging.TooMany, Limit: 10},
			},
			wantText: "limit: 10",
		},
		{
			name: "too large rejection in megabytes",
			reply: intake.Reply{
				Kind:      intake.ReplyAttachmentRejected,
				Rejection: &staging.ValidationError{Reason: staging.TooLarge, Limit: 20 * 1024 * 1024},
			},
			wantText: "20 MB",
		},
		{
			name:     "download failure suggests retry",
			reply:    intake.Reply{Kind: intake.ReplyAttachmentRejected, Name: "scan.png"},
			wantText: "Couldn't save scan.png",
		},
		{
			name:       "confirm summary",
			reply:      intake.Reply{Kind: intake.ReplyConfirmSummary, Title: "Fix printer", FileCount: 2},
			wantText:   "Fix printer",
			wantMarkup: true,
		},
		{
			name:       "no session offers the menu",
			reply:      intake.Reply{Kind: intake.ReplyNoSession},
			wantMarkup: true,
			wantText:   "/task",
		},
		{
			name:     "unexpected input during attachments",
			reply:    intake.Reply{Kind: intake.ReplyUnexpectedInput, State: intake.StateAttachments},
			wantText: "Send a file or photo",
		},
		{
			name:  "none renders nothing",
			reply: intake.Reply{Kind: intake.ReplyNone},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, markup := b.renderReply(tt.reply)
			if tt.wantText == "" {
				if text != "" {
					t.Fatalf("expected empty text, got %q", text)
				}
				return
			}
			if !strings.Contains(text, tt.wantText) {
				t.Errorf("text %q does not contain %q", text, tt.wantText)
			}
			if tt.wantMarkup && markup == nil {
				t.Errorf("expected a keyboard, got none")
			}
		})
	}
}
