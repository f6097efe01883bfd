package services

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Ingestion endpoints over the event store. The caller (gateway/ingestion
// layer) already batches and retries; duplicates are allowed through here and
// absorbed downstream by the idempotent aggregators.

type ingestEventRequest struct {
	EventType  string                 `json:"event_type"`
	UserID     string                 `json:"user_id"`
	Payload    map[string]interface{} `json:"payload"`
	ReceivedAt *time.Time             `json:"received_at,omitempty"`
}

func (s *EventStore) ingestOne(req ingestEventRequest, now time.Time) (string, error) {
	receivedAt := now
	if req.ReceivedAt != nil {
		receivedAt = *req.ReceivedAt
	}
	evt, err := s.BuildEvent(req.EventType, req.UserID, req.Payload, receivedAt)
	if err != nil {
		return "", err
	}
	if err := s.Append(evt); err != nil {
		return "", err
	}
	return evt.ID, nil
}

// IngestEvent accepts one event.
func (s *EventStore) IngestEvent(c *fiber.Ctx) error {
	var req ingestEventRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON body"})
	}

	id, err := s.ingestOne(req, time.Now())
	if err != nil {
		var vErr *ValidationError
		var sErr *SchemaError
		switch {
		case errors.As(err, &vErr):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": vErr.Error()})
		case errors.As(err, &sErr):
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": sErr.Error()})
		default:
			s.Log.Error("event append failed", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to store event"})
		}
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"event_id": id})
}

// IngestEventBatch accepts a batch; each event is validated independently so
// one bad event does not sink the rest.
func (s *EventStore) IngestEventBatch(c *fiber.Ctx) error {
	var req struct {
		Events []ingestEventRequest `json:"events"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON body"})
	}
	if len(req.Events) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "events must not be empty"})
	}

	now := time.Now()
	ids := make([]string, 0, len(req.Events))
	errs := make([]string, 0)
	for _, e := range req.Events {
		id, err := s.ingestOne(e, now)
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		ids = append(ids, id)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"accepted":  len(ids),
		"rejected":  len(errs),
		"event_ids": ids,
		"errors":    errs,
	})
}

// GetStuckEvents lists events that keep failing processing, for inspection.
func (s *EventStore) GetStuckEvents(c *fiber.Ctx) error {
	events, err := s.FetchStuck(100)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch stuck events"})
	}
	return c.JSON(fiber.Map{"events": events, "count": len(events)})
}
