package user

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseWakeTime validates an "HH:MM" wake time and returns its components.
func ParseWakeTime(s string) (hour, minute int, err error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid wake time %q", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid wake time %q", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid wake time %q", s)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("wake time %q out of range", s)
	}
	return hour, minute, nil
}

// FormatWakeTime renders hour and minute as zero-padded "HH:MM".
func FormatWakeTime(hour, minute int) string {
	return fmt.Sprintf("%02d:%02d", hour, minute)
}
