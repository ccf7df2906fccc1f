// Package service implements the account, social graph and content use cases
// on top of the repositories, count cache and job dispatcher.
package service

import (
	"context"
	"log/slog"

	"chirp/internal/cache"
	"chirp/internal/featureflags"
	"chirp/internal/middleware"
	"chirp/internal/notifications"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// PageRequest is a 1-based page selection.
type PageRequest struct {
	Page     int
	PageSize int
}

// NewPageRequest clamps page to >= 1 and size to [1, MaxPageSize], defaulting to DefaultPageSize.
func NewPageRequest(page, size int) PageRequest {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return PageRequest{Page: page, PageSize: size}
}

func (p PageRequest) normalized() PageRequest { return NewPageRequest(p.Page, p.PageSize) }

// Limit is the SQL LIMIT for this page.
func (p PageRequest) Limit() int { return p.normalized().PageSize }

// Offset is the SQL OFFSET for this page.
func (p PageRequest) Offset() int {
	n := p.normalized()
	return (n.Page - 1) * n.PageSize
}

// EventPublisher delivers realtime events to a user.
type EventPublisher interface {
	PublishEvent(ctx context.Context, recipientID uint, ev notifications.Event) error
}

// realtime publishes ev when the realtime_notifications flag is on for the recipient.
type realtime struct {
	publisher EventPublisher
	flags     *featureflags.Manager
}

func (r realtime) publish(ctx context.Context, recipientID uint, ev notifications.Event) {
	if r.publisher == nil || !r.flags.Enabled(featureflags.RealtimeNotifications, recipientID) {
		return
	}
	if err := r.publisher.PublishEvent(ctx, recipientID, ev); err != nil {
		middleware.Logger.WarnContext(ctx, "realtime publish failed",
			slog.String("event", ev.Type),
			slog.String("error", err.Error()),
		)
	}
}

func invalidate(ctx context.Context, counts *cache.CountCache, keys ...string) {
	if err := counts.Invalidate(ctx, keys...); err != nil {
		middleware.Logger.WarnContext(ctx, "count cache invalidation failed",
			slog.Any("keys", keys),
			slog.String("error", err.Error()),
		)
	}
}
