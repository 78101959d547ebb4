package domain

import "time"

// DeliveryAttempt records a single transport call for a queued message.
type DeliveryAttempt struct {
	ID            string
	MessageID     string
	Type          Type
	Recipient     string
	AttemptNumber int
	Error         *string
	CreatedAt     time.Time
}

// DeadLetter records a message that left the live pipeline for the dead-letter queue.
type DeadLetter struct {
	ID         string
	MessageID  string
	Type       Type
	Payload    []byte
	RetryCount int
	LastError  string
	Reason     string
	CreatedAt  time.Time
}
