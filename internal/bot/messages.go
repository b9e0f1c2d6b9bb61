package bot

import "strings"

// catalog holds every canned reply, keyed the way the rest of the package
// refers to them. Kept in one place so wording changes never touch handler
// logic.
var catalog = map[string]string{
	"ArgumentError":       "I could not read that. Expected: DD.MM.YYYY-HH:MM-Title[-Info[-Location]]",
	"TemplateError":       "I could not read that. Expected: HH:MM-Title[-Info[-Location]], multiple entries separated by ';'",
	"EventAdded":          "Event saved. 📅",
	"EventExists":         "That event already exists.",
	"EventDeleted":        "Event deleted. 🗑",
	"EventNotFound":       "No matching event found.",
	"ScheduleEmpty":       "Your schedule is empty.",
	"EventsTodayEmpty":    "Nothing scheduled for today.",
	"ClearConfirm":        "Delete ALL of your events? Reply yes or no.",
	"EventsCleared":       "All events deleted.",
	"EventsNotCleared":    "Nothing was deleted.",
	"RegisterSuccess":     "Welcome! You are registered. Send /help to see what I can do.",
	"RegisterFailed":      "Wrong password.",
	"AlreadyRegistered":   "You are already registered.",
	"WakeTimeSet":         "Wake time set to {time}.",
	"WakeTimeInvalid":     "Wake times look like HH:MM, for example 07:30.",
	"WeekdayInvalid":      "I do not know that weekday.",
	"SetDayPrompt":        "Send the plan for {day}: HH:MM-Title[-Info[-Location]], entries separated by ';'. Sending an existing entry removes it.",
	"DayPlanEmpty":        "No plan for {day} yet.",
	"TodoPrompt":          "Which list? /todo monday ... sunday, or /todo general",
	"TodoEmpty":           "Nothing to do here!",
	"TodoSaved":           "List updated.",
	"DoneNotFound":        "That item is not on today's list or the general list.",
	"DoneToggled":         "Item toggled.",
	"ExportReady":         "Your calendar export is ready: {url}",
	"SaveFailed":          "Saving failed, please try again: {error}",
	"UnrecognisedCommand": "I do not know that command. Send /help for a list.",
	"UnrecognisedText":    "I was not expecting that. Send /help if you are lost.",
	"Help": `What I can do:
/set DD.MM.YYYY-HH:MM-Title[-Info[-Location]] - add an event (reminder 60 min before)
/del DD.MM.YYYY-HH:MM[-Title[-Info[-Location]]] - delete an event by exact match
/delname Title - delete events by name
/events - today's events, soonest first
/schedule - detailed schedule of everything
/setday weekday - edit that weekday's recurring plan
/getday weekday - show that weekday's recurring plan
/waketime HH:MM - when to send your morning plan
/todo list - show or edit a to-do list
/done item - tick an item off
/clear - delete all events (asks first)
/export - export your events as iCalendar
/help - this message`,
}

// message looks up a catalog entry, substituting {placeholders} from pairs
// of key, value arguments.
func message(key string, pairs ...string) string {
	text, ok := catalog[key]
	if !ok {
		return key
	}
	for i := 0; i+1 < len(pairs); i += 2 {
		text = strings.ReplaceAll(text, "{"+pairs[i]+"}", pairs[i+1])
	}
	return text
}
