package repository

import (
	"time"

	"github.com/kursadbilgin/notification-dispatch/internal/domain"
)

// DeliveryAttemptModel is the persistence model for the delivery_attempts table.
type DeliveryAttemptModel struct {
	ID            string      `gorm:"type:uuid;primaryKey"`
	MessageID     string      `gorm:"type:varchar(64);not null;index:idx_attempts_message_id"`
	Type          domain.Type `gorm:"type:varchar(10);not null"`
	Recipient     string      `gorm:"type:varchar(255);not null"`
	AttemptNumber int         `gorm:"not null"`
	Error         *string     `gorm:"type:text"`
	CreatedAt     time.Time
}

func (DeliveryAttemptModel) TableName() string {
	return "delivery_attempts"
}

// DeadLetterModel is the persistence model for the dead_letters table.
type DeadLetterModel struct {
	ID         string      `gorm:"type:uuid;primaryKey"`
	MessageID  string      `gorm:"type:varchar(64);not null"`
	Type       domain.Type `gorm:"type:varchar(10)"`
	Payload    []byte      `gorm:"type:bytea;not null"`
	RetryCount int         `gorm:"not null;default:0"`
	LastError  string      `gorm:"type:text;not null"`
	Reason     string      `gorm:"type:varchar(32);not null"`
	CreatedAt  time.Time
}

func (DeadLetterModel) TableName() string {
	return "dead_letters"
}

func attemptModelFromDomain(a *domain.DeliveryAttempt) *DeliveryAttemptModel {
	if a == nil {
		return nil
	}

	return &DeliveryAttemptModel{
		ID:            a.ID,
		MessageID:     a.MessageID,
		Type:          a.Type,
		Recipient:     a.Recipient,
		AttemptNumber: a.AttemptNumber,
		Error:         a.Error,
		CreatedAt:     a.CreatedAt,
	}
}

func attemptModelToDomain(m *DeliveryAttemptModel) *domain.DeliveryAttempt {
	if m == nil {
		return nil
	}

	return &domain.DeliveryAttempt{
		ID:            m.ID,
		MessageID:     m.MessageID,
		Type:          m.Type,
		Recipient:     m.Recipient,
		AttemptNumber: m.AttemptNumber,
		Error:         m.Error,
		CreatedAt:     m.CreatedAt,
	}
}

func deadLetterModelFromDomain(d *domain.DeadLetter) *DeadLetterModel {
	if d == nil {
		return nil
	}

	return &DeadLetterModel{
		ID:         d.ID,
		MessageID:  d.MessageID,
		Type:       d.Type,
		Payload:    d.Payload,
		RetryCount: d.RetryCount,
		LastError:  d.LastError,
		Reason:     d.Reason,
		CreatedAt:  d.CreatedAt,
	}
}

func deadLetterModelToDomain(m *DeadLetterModel) *domain.DeadLetter {
	if m == nil {
		return nil
	}

	return &domain.DeadLetter{
		ID:         m.ID,
		MessageID:  m.MessageID,
		Type:       m.Type,
		Payload:    m.Payload,
		RetryCount: m.RetryCount,
		LastError:  m.LastError,
		Reason:     m.Reason,
		CreatedAt:  m.CreatedAt,
	}
}
