// Package notification fans status-change toasts out to every open view of
// the same doctor.
package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jwalitptl/portal-api/internal/model"
	"github.com/jwalitptl/portal-api/pkg/logger"
	"github.com/jwalitptl/portal-api/pkg/messaging"
)

const channelPrefix = "portal:notifications:"

// Channel is the broker channel carrying one doctor's notifications.
func Channel(doctorID string) string {
	return channelPrefix + doctorID
}

type Service struct {
	broker messaging.MessageBroker
	logger *logger.Logger
}

func NewService(broker messaging.MessageBroker, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{broker: broker, logger: log}
}

// Notify publishes event on the doctor's channel.
func (s *Service) Notify(ctx context.Context, event *model.NotificationEvent) error {
	if event.DoctorID == "" {
		return fmt.Errorf("notification event has no doctor id")
	}
	if err := s.broker.Publish(ctx, Channel(event.DoctorID), event); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}

// Listen delivers the doctor's notifications to fn until ctx is done.
// Malformed payloads are logged and skipped.
func (s *Service) Listen(ctx context.Context, doctorID string, fn func(model.NotificationEvent)) error {
	return s.broker.Subscribe(ctx, Channel(doctorID), func(payload []byte) error {
		var event model.NotificationEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			return fmt.Errorf("failed to decode notification: %w", err)
		}
		fn(event)
		return nil
	})
}
