package domain

import "time"

// DeadLetter is a consumed record that a consumer group committed without
// handling successfully.
type DeadLetter struct {
	ID            int64     `json:"id"`
	ConsumerGroup string    `json:"consumer_group"`
	Topic         string    `json:"topic"`
	Partition     int       `json:"partition"`
	Offset        int64     `json:"offset"`
	Key           string    `json:"key"`
	Payload       []byte    `json:"payload"`
	Outcome       string    `json:"outcome"`
	Reason        string    `json:"reason"`
	FailedAt      time.Time `json:"failed_at"`
}
