// Package store holds the process-wide reactive state fed by the realtime
// dispatcher: connection status, recent transactions, notifications, and the
// activity feed. Collections are bounded; the oldest entries are evicted
// first. Lifetime is the daemon session — Reset clears everything on logout.
package store

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/ToastWithCheddar/finance-tracker-sub003/internal/domain"
	"github.com/ToastWithCheddar/finance-tracker-sub003/internal/metrics"
)

const (
	maxRecentTransactions = 50
	maxNotifications      = 100
	maxActivityEvents     = 200
)

// Snapshot is a deep copy of the store contents. Mutating a snapshot never
// affects the store.
type Snapshot struct {
	ConnectionState    domain.ConnectionState `json:"connection_state"`
	RecentTransactions []domain.Transaction   `json:"recent_transactions"`
	Notifications      []domain.Notification  `json:"notifications"`
	Activity           []domain.ActivityEvent `json:"activity"`
	UnreadCount        int                    `json:"unread_count"`
}

type Store struct {
	clock clockwork.Clock

	mu            sync.RWMutex
	state         domain.ConnectionState
	transactions  []domain.Transaction
	notifications []domain.Notification
	activity      []domain.ActivityEvent
}

func New(clock clockwork.Clock) *Store {
	return &Store{clock: clock}
}

// SetConnectionState records a transport state transition. Only the realtime
// transport calls this; everything else reads.
func (s *Store) SetConnectionState(state domain.ConnectionState) {
	s.mu.Lock()
	prev := s.state
	s.state = state
	s.mu.Unlock()

	metrics.RealtimeConnectionState.Set(float64(state))
	if prev != state {
		slog.Debug("Connection state changed", "from", prev.String(), "to", state.String())
	}
}

func (s *Store) ConnectionState() domain.ConnectionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// AddTransaction prepends a transaction to the recent list, evicting the
// oldest entry beyond the cap.
func (s *Store) AddTransaction(t domain.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions = prepend(s.transactions, t, maxRecentTransactions)
}

// AddNotification creates an unread notification and returns it.
func (s *Store) AddNotification(kind, title, body string) domain.Notification {
	n := domain.Notification{
		ID:        uuid.New(),
		Kind:      kind,
		Title:     title,
		Body:      body,
		CreatedAt: s.clock.Now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = prepend(s.notifications, n, maxNotifications)
	return n
}

// AddActivity creates an activity feed entry flagged as new and returns it.
func (s *Store) AddActivity(kind, accountID, message string) domain.ActivityEvent {
	e := domain.ActivityEvent{
		ID:         uuid.New(),
		Kind:       kind,
		AccountID:  accountID,
		Message:    message,
		IsNew:      true,
		OccurredAt: s.clock.Now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.activity = prepend(s.activity, e, maxActivityEvents)
	return e
}

// MarkRead flags a single notification as read. Returns false when the
// notification is unknown (evicted or never existed).
func (s *Store) MarkRead(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.notifications {
		if s.notifications[i].ID == id {
			s.notifications[i].Read = true
			return true
		}
	}
	return false
}

// MarkAllRead flags every notification as read and clears the activity
// feed's new markers. Returns the number of notifications flipped.
func (s *Store) MarkAllRead() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	flipped := 0
	for i := range s.notifications {
		if !s.notifications[i].Read {
			s.notifications[i].Read = true
			flipped++
		}
	}
	for i := range s.activity {
		s.activity[i].IsNew = false
	}
	return flipped
}

func (s *Store) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unreadLocked()
}

func (s *Store) unreadLocked() int {
	count := 0
	for i := range s.notifications {
		if !s.notifications[i].Read {
			count++
		}
	}
	return count
}

// Snapshot returns a deep copy of all store contents.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		ConnectionState:    s.state,
		RecentTransactions: make([]domain.Transaction, len(s.transactions)),
		Notifications:      make([]domain.Notification, len(s.notifications)),
		Activity:           make([]domain.ActivityEvent, len(s.activity)),
		UnreadCount:        s.unreadLocked(),
	}
	copy(snap.RecentTransactions, s.transactions)
	copy(snap.Notifications, s.notifications)
	copy(snap.Activity, s.activity)
	return snap
}

// Reset clears all collections. Connection state is left to the transport.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.transactions = nil
	s.notifications = nil
	s.activity = nil
	slog.Info("Store reset")
}

func prepend[T any](list []T, item T, max int) []T {
	list = append([]T{item}, list...)
	if len(list) > max {
		list = list[:max]
	}
	return list
}
