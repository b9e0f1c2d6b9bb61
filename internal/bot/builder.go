package bot

import (
	"fmt"
	"strings"
	"time"

	"github.com/example/agenda/internal/event"
)

// reminderText renders the notification sent when an event's reminder
// instant is reached.
func reminderText(e event.Event) string {
	var sb strings.Builder
	lead := e.ReminderOffset.Round(time.Minute)
	hours := int(lead / time.Hour)
	minutes := int(lead/time.Minute) % 60

	switch {
	case hours > 0 && minutes > 0:
		fmt.Fprintf(&sb, "⏰ In %dh %dmin: <b>%s</b>\n", hours, minutes, e.Title)
	case hours > 0:
		fmt.Fprintf(&sb, "⏰ In %dh: <b>%s</b>\n", hours, e.Title)
	default:
		fmt.Fprintf(&sb, "⏰ In %dmin: <b>%s</b>\n", minutes, e.Title)
	}

	fmt.Fprintf(&sb, "At %s", e.When.Format("15:04"))
	if e.Info != "" {
		fmt.Fprintf(&sb, "\n%s", e.Info)
	}
	if e.Location != "" {
		fmt.Fprintf(&sb, "\n📍 %s", e.Location)
	}
	return sb.String()
}

// wakeText renders the morning greeting with the day's plan.
func wakeText(name string, day time.Time, plan []event.Event) string {
	var sb strings.Builder
	if name != "" {
		fmt.Fprintf(&sb, "Good morning, %s! ☀️\n", name)
	} else {
		sb.WriteString("Good morning! ☀️\n")
	}
	fmt.Fprintf(&sb, "Today is %s, %s\n", day.Weekday(), day.Format("02.01.2006"))

	if len(plan) == 0 {
		sb.WriteString("Nothing on the plan today.")
		return sb.String()
	}

	sb.WriteString("Here is your plan:\n")
	sb.WriteString(scheduleLines(plan))
	return sb.String()
}

// eventListText renders the compact list used by /events: one line per
// event due today, soonest first.
func eventListText(events []event.Event) string {
	if len(events) == 0 {
		return message("EventsTodayEmpty")
	}
	event.Sort(events)

	var sb strings.Builder
	sb.WriteString("Events today:\n")
	for _, e := range events {
		fmt.Fprintf(&sb, "%s-%s-%s\n",
			e.When.Format("02.01.2006"), e.When.Format("15:04"), e.Title)
	}
	return sb.String()
}

// scheduleText renders the detailed view used by /schedule.
func scheduleText(events []event.Event) string {
	if len(events) == 0 {
		return message("ScheduleEmpty")
	}
	event.Sort(events)

	var sb strings.Builder
	for _, e := range events {
		fmt.Fprintf(&sb, "<b>%s %s</b>  %s\n",
			e.When.Format("02.01.2006"), e.When.Format("15:04"), e.Title)
		if e.Info != "" {
			fmt.Fprintf(&sb, "<pre>    </pre>%s\n", e.Info)
		}
		if e.Location != "" {
			fmt.Fprintf(&sb, "<pre>    </pre>📍 %s\n", e.Location)
		}
	}
	return sb.String()
}

// dayPlanText renders one weekday's recurring template plan.
func dayPlanText(weekday time.Weekday, entries []event.Event) string {
	if len(entries) == 0 {
		return message("DayPlanEmpty", "day", weekday.String())
	}
	event.Sort(entries)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Plan for %s:\n", weekday)
	sb.WriteString(scheduleLines(entries))
	return sb.String()
}

// todoListText renders a to-do list with its completion marks.
func todoListText(name string, items []string) string {
	if len(items) == 0 {
		return message("TodoEmpty")
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "To-do (%s):\n", name)
	for _, item := range items {
		fmt.Fprintf(&sb, "• %s\n", item)
	}
	return sb.String()
}

func scheduleLines(events []event.Event) string {
	var sb strings.Builder
	for _, e := range events {
		fmt.Fprintf(&sb, "%s  %s", e.When.Format("15:04"), e.Title)
		if e.Location != "" {
			fmt.Fprintf(&sb, " (%s)", e.Location)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
