package views

import (
	"fmt"
	"time"

	"priorityforge/internal/priority"
	"priorityforge/internal/utils"
)

// DueLabel formats a due date relative to now: "3dOverdue", "today",
// "tomorrow", "5d" within a week, otherwise "Jan 2". Nil yields "".
func DueLabel(due *time.Time, now time.Time) string {
	if due == nil {
		return ""
	}
	days := priority.DaysUntil(*due, now)
	switch {
	case days < 0:
		return fmt.Sprintf("%ddOverdue", -days)
	case days == 0:
		return "today"
	case days == 1:
		return "tomorrow"
	case days <= 7:
		return fmt.Sprintf("%dd", days)
	default:
		return due.In(time.Local).Format("Jan 2")
	}
}

// CompletedLabel formats when a task was completed, counted in calendar
// days: "today", "yesterday", "3dAgo", "2wAgo", otherwise "Jan 2, 2006".
func CompletedLabel(at time.Time, now time.Time) string {
	if at.IsZero() {
		return "unknown"
	}
	days := utils.DaysBetween(at, now)
	switch {
	case days <= 0:
		return "today"
	case days == 1:
		return "yesterday"
	case days < 7:
		return fmt.Sprintf("%ddAgo", days)
	case days < 30:
		return fmt.Sprintf("%dwAgo", days/7)
	default:
		return at.In(time.Local).Format("Jan 2, 2006")
	}
}
