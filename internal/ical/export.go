// Package ical renders a user's events as an iCalendar document for the
// export endpoint.
package ical

import (
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/example/agenda/internal/event"
)

// defaultDuration is assumed for events, which carry a start moment only.
const defaultDuration = time.Hour

// BuildCalendar serializes the events into an iCalendar document. Recurring
// entries carry an RRULE so importing clients expand them natively.
func BuildCalendar(events []event.Event, now time.Time) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//agenda//EN")

	event.Sort(events)
	for i, e := range events {
		ve := cal.AddEvent(uid(i, e))
		ve.SetDtStampTime(now)
		ve.SetStartAt(e.When)
		ve.SetEndAt(e.When.Add(defaultDuration))
		ve.SetSummary(e.Title)
		if e.Info != "" {
			ve.SetDescription(e.Info)
		}
		if e.Location != "" {
			ve.SetLocation(e.Location)
		}
		if rule, ok := rrules[e.Recurrence]; ok {
			ve.AddRrule(rule)
		}
	}
	return cal.Serialize()
}

// uid builds a stable identifier from the event's content so re-exports
// update rather than duplicate entries in the importing client.
func uid(i int, e event.Event) string {
	title := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '-'
	}, e.Title)
	return fmt.Sprintf("%d-%d-%s-%d@agenda", e.Owner, e.When.Unix(), title, i)
}

var rrules = map[event.Recurrence]string{
	event.Daily:   "FREQ=DAILY",
	event.Weekly:  "FREQ=WEEKLY",
	event.Monthly: "FREQ=MONTHLY",
	event.Yearly:  "FREQ=YEARLY",
}
