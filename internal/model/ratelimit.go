package model

import "time"

// RateLimitCounter is one fixed window of attempts for a subject key. Once
// WindowResetAt has passed the stored Count is stale and reads as zero.
type RateLimitCounter struct {
	SubjectKey    string    `json:"subject_key"`
	Count         int       `json:"count"`
	WindowResetAt time.Time `json:"window_reset_at"`
}

// Open reports whether the window is still running at now.
func (c *RateLimitCounter) Open(now time.Time) bool {
	return now.Before(c.WindowResetAt)
}
