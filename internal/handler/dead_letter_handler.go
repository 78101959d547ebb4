package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/notification-dispatch/internal/domain"
)

const (
	defaultDeadLetterLimit = 50
	maxDeadLetterLimit     = 200
)

type DeadLetterLister interface {
	ListRecent(ctx context.Context, limit int) ([]domain.DeadLetter, error)
}

type deadLetterResponse struct {
	ID         string    `json:"id"`
	MessageID  string    `json:"messageId"`
	Type       string    `json:"type,omitempty"`
	Payload    string    `json:"payload"`
	RetryCount int       `json:"retryCount"`
	LastError  string    `json:"lastError"`
	Reason     string    `json:"reason"`
	CreatedAt  time.Time `json:"createdAt"`
}

type listDeadLettersResponse struct {
	Data  []deadLetterResponse `json:"data"`
	Limit int                  `json:"limit"`
}

// RegisterDeadLetterRoutes exposes the dead-letter ledger for inspection.
func RegisterDeadLetterRoutes(router fiber.Router, lister DeadLetterLister) error {
	if lister == nil {
		return fmt.Errorf("dead letter lister is required")
	}
	router.Get("/dead-letters", ListDeadLettersHandler(lister))
	return nil
}

func ListDeadLettersHandler(lister DeadLetterLister) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit := c.QueryInt("limit", defaultDeadLetterLimit)
		if limit < 1 || limit > maxDeadLetterLimit {
			return fiber.NewError(fiber.StatusBadRequest,
				fmt.Sprintf("limit must be between 1 and %d", maxDeadLetterLimit))
		}

		letters, err := lister.ListRecent(c.Context(), limit)
		if err != nil {
			return fmt.Errorf("failed to list dead letters: %w", err)
		}

		items := make([]deadLetterResponse, 0, len(letters))
		for _, d := range letters {
			items = append(items, deadLetterResponse{
				ID:         d.ID,
				MessageID:  d.MessageID,
				Type:       d.Type.String(),
				Payload:    string(d.Payload),
				RetryCount: d.RetryCount,
				LastError:  d.LastError,
				Reason:     d.Reason,
				CreatedAt:  d.CreatedAt,
			})
		}

		return c.Status(fiber.StatusOK).JSON(listDeadLettersResponse{Data: items, Limit: limit})
	}
}
