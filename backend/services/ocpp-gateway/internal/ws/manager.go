package ws

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"ocppgateway/backend/services/ocpp-gateway/internal/models"
	"ocppgateway/backend/services/ocpp-gateway/internal/ocpp/protocol"
)

// Session is one live station connection as seen by the rest of the gateway.
type Session interface {
	Identity() string
	Version() protocol.Version
	Call(ctx context.Context, action string, payload interface{}) (json.RawMessage, error)
	Ping() error
	Close() error
}

// Presence mirrors registry membership to an external directory.
type Presence interface {
	Touch(ctx context.Context, identity string, version protocol.Version, connectedAt time.Time) error
	Remove(ctx context.Context, identity string) error
}

// Entry is a registered session.
type Entry struct {
	Identity    string
	Version     protocol.Version
	ConnectedAt time.Time
	Session     Session
}

const presenceTimeout = 2 * time.Second

// Manager tracks station connections by case-insensitive identity.
type Manager struct {
	mu           sync.RWMutex
	entries      map[string]Entry
	pingInterval time.Duration
	presence     Presence
	logger       *zap.Logger
}

// NewManager builds connection manager. presence may be nil.
func NewManager(pingInterval time.Duration, presence Presence, logger *zap.Logger) *Manager {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &Manager{
		entries:      make(map[string]Entry),
		pingInterval: pingInterval,
		presence:     presence,
		logger:       logger,
	}
}

// Register stores the session, replacing and closing any previous one for the identity.
func (m *Manager) Register(identity string, session Session, version protocol.Version) {
	entry := Entry{
		Identity:    identity,
		Version:     version,
		ConnectedAt: time.Now().UTC(),
		Session:     session,
	}
	key := models.StationKey(identity)

	m.mu.Lock()
	previous, replaced := m.entries[key]
	m.entries[key] = entry
	m.mu.Unlock()

	if replaced && previous.Session != session {
		m.logger.Info("replacing stale station session", zap.String("station_id", identity))
		_ = previous.Session.Close()
	}
	m.touch(entry)
}

// Unregister drops the identity. Unknown identities are ignored.
func (m *Manager) Unregister(identity string) {
	key := models.StationKey(identity)
	m.mu.Lock()
	_, ok := m.entries[key]
	delete(m.entries, key)
	m.mu.Unlock()
	if ok {
		m.forget(identity)
	}
}

// UnregisterSession drops the identity only while it still maps to session.
func (m *Manager) UnregisterSession(identity string, session Session) bool {
	key := models.StationKey(identity)
	m.mu.Lock()
	entry, ok := m.entries[key]
	if !ok || entry.Session != session {
		m.mu.Unlock()
		return false
	}
	delete(m.entries, key)
	m.mu.Unlock()
	m.forget(identity)
	return true
}

// Lookup resolves an identity regardless of case.
func (m *Manager) Lookup(identity string) (Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[models.StationKey(identity)]
	return entry, ok
}

// List returns registered entries sorted by identity.
func (m *Manager) List() []Entry {
	m.mu.RLock()
	entries := make([]Entry, 0, len(m.entries))
	for _, entry := range m.entries {
		entries = append(entries, entry)
	}
	m.mu.RUnlock()
	sort.Slice(entries, func(i, j int) bool { return entries[i].Identity < entries[j].Identity })
	return entries
}

// Identities returns connected identities as the stations presented them.
func (m *Manager) Identities() []string {
	entries := m.List()
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		ids = append(ids, entry.Identity)
	}
	return ids
}

// Start begins ping loop to keep connections active.
func (m *Manager) Start(ctx context.Context) {
	ticker := time.NewTicker(m.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, entry := range m.List() {
				if err := entry.Session.Ping(); err != nil {
					m.logger.Debug("ping failed", zap.String("station_id", entry.Identity), zap.Error(err))
					continue
				}
				m.touch(entry)
			}
		}
	}
}

// Close closes every registered session.
func (m *Manager) Close() {
	for _, entry := range m.List() {
		_ = entry.Session.Close()
	}
}

func (m *Manager) touch(entry Entry) {
	if m.presence == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	defer cancel()
	if err := m.presence.Touch(ctx, entry.Identity, entry.Version, entry.ConnectedAt); err != nil {
		m.logger.Warn("presence update failed", zap.String("station_id", entry.Identity), zap.Error(err))
	}
}

func (m *Manager) forget(identity string) {
	if m.presence == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	defer cancel()
	if err := m.presence.Remove(ctx, identity); err != nil {
		m.logger.Warn("presence removal failed", zap.String("station_id", identity), zap.Error(err))
	}
}
