package browser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// countdownRe matches "1d 02:03:04", "02:03:04" and "03:04" (minutes:seconds).
var countdownRe = regexp.MustCompile(`^(?:(\d+)\s*d\s*)?(\d+):(\d{2})(?::(\d{2}))?$`)

var numberRe = regexp.MustCompile(`[-+]?\d+(?:[.,]\d+)?`)

// parseFinishTime reads a timer as an absolute time in one of layouts
// (interpreted in now's location) or, failing that, as a countdown relative to
// now. A layout without a date resolves to the next occurrence of that clock
// time.
func parseFinishTime(text string, now time.Time, layouts []string) (time.Time, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, fmt.Errorf("empty timer")
	}

	for _, layout := range layouts {
		t, err := time.ParseInLocation(layout, text, now.Location())
		if err != nil {
			continue
		}
		if t.Year() == 0 {
			t = time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), t.Second(), 0, now.Location())
			if !t.After(now) {
				t = t.AddDate(0, 0, 1)
			}
		}
		return t, nil
	}

	if m := countdownRe.FindStringSubmatch(text); m != nil {
		days := atoi(m[1])
		var d time.Duration
		if m[4] != "" {
			d = time.Duration(atoi(m[2]))*time.Hour + time.Duration(atoi(m[3]))*time.Minute + time.Duration(atoi(m[4]))*time.Second
		} else {
			d = time.Duration(atoi(m[2]))*time.Minute + time.Duration(atoi(m[3]))*time.Second
		}
		d += time.Duration(days) * 24 * time.Hour
		return now.Add(d), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized timer %q", text)
}

// parseMetric returns the first decimal number in text ("Abundance 87.5%").
func parseMetric(text string) (float64, error) {
	m := numberRe.FindString(text)
	if m == "" {
		return 0, fmt.Errorf("no number in %q", text)
	}
	v, err := strconv.ParseFloat(strings.Replace(m, ",", ".", 1), 64)
	if err != nil {
		return 0, fmt.Errorf("parse metric %q: %w", m, err)
	}
	return v, nil
}

func atoi(s string) int {
	if s == "" {
		return 0
	}
	n, _ := strconv.Atoi(s)
	return n
}
