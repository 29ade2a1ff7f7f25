package core

import (
	"caredesk.io/telehealth/internal/store"
)

// NotificationService exposes the per-role feeds to the API layer. Open
// views learn about new entries through the broadcast hub; these accessors
// double as the polling fallback, since the writing view never receives
// its own broadcast.
type NotificationService struct {
	feed *store.NotificationFeed
}

func NewNotificationService(feed *store.NotificationFeed) *NotificationService {
	return &NotificationService{feed: feed}
}

func (s *NotificationService) List(role store.Role) []store.NotificationRecord {
	return s.feed.List(role)
}

func (s *NotificationService) MarkRead(role store.Role, id string) (bool, error) {
	return s.feed.MarkRead(role, id)
}

func (s *NotificationService) MarkAllRead(role store.Role) error {
	return s.feed.MarkAllRead(role)
}

func (s *NotificationService) UnreadCount(role store.Role) int {
	return s.feed.UnreadCount(role)
}
