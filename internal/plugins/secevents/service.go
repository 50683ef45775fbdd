package secevents

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/keyxmakerx/wayfarer/internal/apperror"
)

// perPage is the number of events returned per page.
const perPage = 50

// Recorder accepts security events. Recording never fails the caller's
// operation: errors are logged and dropped.
type Recorder interface {
	Record(ctx context.Context, event Event)
}

// SecurityEventService records and queries the security event log.
type SecurityEventService interface {
	Recorder

	// List returns a page of events, optionally filtered by type.
	List(ctx context.Context, eventType string, page int) (*EventPage, error)

	// Stats returns aggregate statistics for the admin console.
	Stats(ctx context.Context) (*Stats, error)
}

// securityEventService implements SecurityEventService.
type securityEventService struct {
	repo EventRepository
}

// NewSecurityEventService creates a new security event service.
func NewSecurityEventService(repo EventRepository) SecurityEventService {
	return &securityEventService{repo: repo}
}

// Record persists event. Events without a type are ignored.
func (s *securityEventService) Record(ctx context.Context, event Event) {
	if event.EventType == "" {
		return
	}
	if err := s.repo.Log(ctx, &event); err != nil {
		slog.Error("failed to log security event",
			slog.String("event_type", event.EventType),
			slog.String("ip", event.IPAddress),
			slog.Any("error", err),
		)
	}
}

// List pages through the log. Pages start at 1.
func (s *securityEventService) List(ctx context.Context, eventType string, page int) (*EventPage, error) {
	if page < 1 {
		page = 1
	}

	events, total, err := s.repo.List(ctx, eventType, perPage, (page-1)*perPage)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("listing security events: %w", err))
	}

	return &EventPage{Events: events, Total: total, Page: page, PerPage: perPage}, nil
}

// Stats returns the dashboard aggregates.
func (s *securityEventService) Stats(ctx context.Context) (*Stats, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("loading security stats: %w", err))
	}
	return stats, nil
}

// Nop is a Recorder that discards events.
type Nop struct{}

// Record does nothing.
func (Nop) Record(context.Context, Event) {}
