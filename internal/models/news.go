package models

import "time"

// NewsEvent is one text item received from a source channel.
type NewsEvent struct {
	ID        string
	Text      string
	Channel   string
	Timestamp time.Time
	MessageID int
}

// Preview returns at most n runes of the event text.
func (e NewsEvent) Preview(n int) string {
	return Truncate(e.Text, n)
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
