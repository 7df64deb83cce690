// ABOUTME: Counter model for scalar live counts such as unread notifications
// ABOUTME: Values clamp at zero and carry the time of the last mutation

package models

import "time"

// Counter is a persisted scalar count for one subject (for example, one
// user's unread notifications).
type Counter struct {
	Value       int       `json:"value"`
	LastUpdated time.Time `json:"last_updated"`
}

// Add applies a delta to the counter, clamping the result at zero.
func (c *Counter) Add(delta int) {
	c.Value += delta
	if c.Value < 0 {
		c.Value = 0
	}
	c.LastUpdated = time.Now().UTC()
}

// Set replaces the counter with an authoritative value, clamped at zero.
func (c *Counter) Set(value int) {
	if value < 0 {
		value = 0
	}
	c.Value = value
	c.LastUpdated = time.Now().UTC()
}
