/*
Package notify publishes booking lifecycle events for the calendar-sync
integration.

PURPOSE:
  When a booking is confirmed, cancelled, or promoted off the waitlist, the
  member's external calendar should follow. Publishing is BEST-EFFORT: a
  publish failure is logged by the caller and never fails the booking flow.

IMPLEMENTATIONS:
  - AMQPPublisher (amqp.go): production, RabbitMQ queue per event stream
  - NopPublisher (below): tests and dev without a broker
*/
package notify

import (
	"context"
	"time"
)

// EventType identifies what happened to the booking.
type EventType string

const (
	EventBookingConfirmed  EventType = "booking.confirmed"
	EventBookingWaitlisted EventType = "booking.waitlisted"
	EventBookingCancelled  EventType = "booking.cancelled"
	EventBookingPromoted   EventType = "booking.promoted"
)

// Event is the calendar-sync payload.
type Event struct {
	Type       EventType `json:"type"`
	UserID     string    `json:"userId"`
	BookingID  string    `json:"bookingId"`
	InstanceID string    `json:"instanceId"`
	ClassTitle string    `json:"classTitle,omitempty"`
	ClassStart time.Time `json:"classStart"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Publisher sends events to the calendar integration.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// NopPublisher discards every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }
