package devserver

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	errSessionNotFound = errors.New("no open session for driver")
	errSessionMismatch = errors.New("session id does not match the open session")
)

// driverSession is the server-side record of one online period.
type driverSession struct {
	ID            string
	DriverID      string
	StartedAt     time.Time
	LastHeartbeat time.Time
}

// PresenceStore tracks open driver sessions and their positions. Heartbeat
// silence beyond the stale threshold hides a driver from proximity results,
// which is the server-side half of the implicit-offline contract.
type PresenceStore struct {
	index GeoIndex

	mu       sync.RWMutex
	sessions map[string]*driverSession // keyed by driverID

	staleAfter time.Duration
}

// NewPresenceStore creates a presence store over the given geo index.
func NewPresenceStore(index GeoIndex, staleAfter time.Duration) *PresenceStore {
	return &PresenceStore{
		index:      index,
		sessions:   make(map[string]*driverSession),
		staleAfter: staleAfter,
	}
}

// Open starts an online session, replacing any session left open for the
// driver.
func (p *PresenceStore) Open(ctx context.Context, driverID string, lat, lng float64) (string, error) {
	now := time.Now()
	sess := &driverSession{
		ID:            uuid.New().String(),
		DriverID:      driverID,
		StartedAt:     now,
		LastHeartbeat: now,
	}

	if err := p.index.Update(ctx, driverID, lat, lng); err != nil {
		return "", err
	}

	p.mu.Lock()
	p.sessions[driverID] = sess
	p.mu.Unlock()
	return sess.ID, nil
}

// Close ends an online session and returns the accumulated online minutes.
func (p *PresenceStore) Close(ctx context.Context, driverID, sessionID string) (float64, error) {
	p.mu.Lock()
	sess, ok := p.sessions[driverID]
	if !ok {
		p.mu.Unlock()
		return 0, errSessionNotFound
	}
	if sess.ID != sessionID {
		p.mu.Unlock()
		return 0, errSessionMismatch
	}
	delete(p.sessions, driverID)
	p.mu.Unlock()

	if err := p.index.Remove(ctx, driverID); err != nil {
		return 0, err
	}
	return time.Since(sess.StartedAt).Minutes(), nil
}

// Heartbeat refreshes liveness and position for an open session.
func (p *PresenceStore) Heartbeat(ctx context.Context, driverID, sessionID string, lat, lng float64) error {
	p.mu.Lock()
	sess, ok := p.sessions[driverID]
	if !ok {
		p.mu.Unlock()
		return errSessionNotFound
	}
	if sess.ID != sessionID {
		p.mu.Unlock()
		return errSessionMismatch
	}
	sess.LastHeartbeat = time.Now()
	p.mu.Unlock()

	return p.index.Update(ctx, driverID, lat, lng)
}

// Near returns online, non-stale drivers within radiusMiles of a point.
func (p *PresenceStore) Near(ctx context.Context, lat, lng, radiusMiles float64) ([]driverPosition, error) {
	positions, err := p.index.Near(ctx, lat, lng, radiusMiles)
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().Add(-p.staleAfter)

	p.mu.RLock()
	defer p.mu.RUnlock()

	live := make([]driverPosition, 0, len(positions))
	for _, pos := range positions {
		sess, ok := p.sessions[pos.DriverID]
		if !ok || sess.LastHeartbeat.Before(cutoff) {
			continue
		}
		live = append(live, pos)
	}
	return live, nil
}
