package bot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/example/agenda/internal/event"
	"github.com/example/agenda/internal/template"
)

// ErrBadSpec is returned for event text that cannot be parsed. Parsing
// failures never mutate any store.
var ErrBadSpec = errors.New("malformed event specification")

// ParseEventSpec parses "DD.MM.YYYY-HH:MM-Title[-Info[-Location]]" into a
// one-off event with the default reminder offset.
func ParseEventSpec(owner int64, text string) (event.Event, error) {
	parts := strings.Split(text, "-")
	if len(parts) < 3 {
		return event.Event{}, ErrBadSpec
	}

	when, err := parseDayTime(parts[0], parts[1])
	if err != nil {
		return event.Event{}, err
	}

	title := strings.TrimSpace(parts[2])
	if title == "" {
		return event.Event{}, ErrBadSpec
	}
	info, location := optionalFields(parts, 3)

	return event.New(owner, when, title, info, location, event.Once), nil
}

// ParseDeleteSpec parses "DD.MM.YYYY-HH:MM[-Title[-Info[-Location]]]" into
// exact-match deletion criteria. Absent fields stay nil and do not
// constrain the match.
func ParseDeleteSpec(text string) (when time.Time, title, info, location *string, err error) {
	parts := strings.Split(text, "-")
	if len(parts) < 2 {
		return time.Time{}, nil, nil, nil, ErrBadSpec
	}

	when, err = parseDayTime(parts[0], parts[1])
	if err != nil {
		return time.Time{}, nil, nil, nil, err
	}

	if len(parts) >= 3 {
		v := strings.TrimSpace(parts[2])
		title = &v
	}
	if len(parts) >= 4 {
		v := strings.TrimSpace(parts[3])
		info = &v
	}
	if len(parts) >= 5 {
		v := strings.TrimSpace(parts[4])
		location = &v
	}
	return when, title, info, location, nil
}

// ParseTemplateLine parses "HH:MM-Title[-Info[-Location]]" into a weekly
// template event anchored to the given weekday.
func ParseTemplateLine(owner int64, weekday time.Weekday, text string) (event.Event, error) {
	parts := strings.Split(text, "-")
	if len(parts) < 2 {
		return event.Event{}, ErrBadSpec
	}

	hour, minute, err := parseClock(parts[0])
	if err != nil {
		return event.Event{}, err
	}

	title := strings.TrimSpace(parts[1])
	if title == "" {
		return event.Event{}, ErrBadSpec
	}
	info, location := optionalFields(parts, 2)

	e := event.New(owner, template.Anchor(weekday, hour, minute), title, info, location, event.Weekly)
	return e, nil
}

// ParseWeekday maps a weekday name (any case) onto time.Weekday.
func ParseWeekday(s string) (time.Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if strings.ToLower(wd.String()) == name {
			return wd, nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}

func parseDayTime(dayPart, timePart string) (time.Time, error) {
	date := strings.Split(strings.TrimSpace(dayPart), ".")
	if len(date) != 3 {
		return time.Time{}, ErrBadSpec
	}

	day, err1 := strconv.Atoi(strings.TrimSpace(date[0]))
	month, err2 := strconv.Atoi(strings.TrimSpace(date[1]))
	year, err3 := strconv.Atoi(strings.TrimSpace(date[2]))
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, ErrBadSpec
	}

	hour, minute, err := parseClock(timePart)
	if err != nil {
		return time.Time{}, err
	}

	when := time.Date(year, time.Month(month), day, hour, minute, 0, 0, time.Local)
	// time.Date normalizes out-of-range components (32.01 becomes 01.02);
	// reject instead of silently shifting the date.
	if when.Day() != day || int(when.Month()) != month || when.Year() != year {
		return time.Time{}, ErrBadSpec
	}
	return when, nil
}

func parseClock(s string) (hour, minute int, err error) {
	clock := strings.Split(strings.TrimSpace(s), ":")
	if len(clock) != 2 {
		return 0, 0, ErrBadSpec
	}
	hour, err1 := strconv.Atoi(strings.TrimSpace(clock[0]))
	minute, err2 := strconv.Atoi(strings.TrimSpace(clock[1]))
	if err1 != nil || err2 != nil || hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, ErrBadSpec
	}
	return hour, minute, nil
}

func optionalFields(parts []string, from int) (info, location string) {
	if len(parts) > from {
		info = strings.TrimSpace(parts[from])
	}
	if len(parts) > from+1 {
		location = strings.TrimSpace(parts[from+1])
	}
	return info, location
}
