package service

import (
	"context"
	"sync"
	"time"

	"courier/internal/config"
	"courier/internal/domain"
	"courier/internal/gateway"
	"courier/internal/geo"
	"courier/internal/logger"
	"courier/internal/session"
)

// PresenceGateway is the slice of the backend gateway the presence service
// needs.
type PresenceGateway interface {
	DriverOnline(ctx context.Context, driverID string, loc domain.LatLng) (string, error)
	DriverOffline(ctx context.Context, driverID, sessionID string) (*gateway.OfflineResult, error)
	Heartbeat(ctx context.Context, driverID, sessionID string, loc domain.LatLng) error
	OnlineDrivers(ctx context.Context, lat, lng, radiusMiles float64) ([]domain.OnlineDriver, error)
}

// PresenceService manages the session driver's online/offline lifecycle and
// heartbeat, and answers proximity queries.
type PresenceService struct {
	gw   PresenceGateway
	sess *session.Session
	cfg  config.PresenceConfig
	log  logger.Logger

	mu           sync.Mutex
	sessionID    string
	lastLocation domain.LatLng
	lastReported *domain.LatLng

	hbDone chan struct{}
	hbWg   sync.WaitGroup
}

// NewPresenceService creates a PresenceService for the given session.
func NewPresenceService(gw PresenceGateway, sess *session.Session, cfg config.PresenceConfig, log logger.Logger) *PresenceService {
	return &PresenceService{gw: gw, sess: sess, cfg: cfg, log: log}
}

// GoOnline opens an online session at the given location and starts the
// heartbeat loop.
func (s *PresenceService) GoOnline(ctx context.Context, loc domain.LatLng) (string, error) {
	if !isValidLatitude(loc.Latitude) || !isValidLongitude(loc.Longitude) {
		return "", ErrInvalidLocation
	}

	s.mu.Lock()
	if s.sessionID != "" {
		s.mu.Unlock()
		return "", ErrAlreadyOnline
	}
	s.mu.Unlock()

	sessionID, err := s.gw.DriverOnline(ctx, s.sess.UserID(), loc)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.sessionID = sessionID
	s.lastLocation = loc
	s.lastReported = &loc
	s.hbDone = make(chan struct{})
	s.mu.Unlock()

	s.hbWg.Add(1)
	go s.heartbeatLoop()
	return sessionID, nil
}

// GoOffline closes the online session and stops the heartbeat loop. The
// accumulated online minutes come back from the gateway.
func (s *PresenceService) GoOffline(ctx context.Context) (*gateway.OfflineResult, error) {
	s.mu.Lock()
	sessionID := s.sessionID
	done := s.hbDone
	s.mu.Unlock()

	if sessionID == "" {
		return nil, ErrNotOnline
	}

	close(done)
	s.hbWg.Wait()

	result, err := s.gw.DriverOffline(ctx, s.sess.UserID(), sessionID)

	s.mu.Lock()
	s.sessionID = ""
	s.lastReported = nil
	s.mu.Unlock()

	return result, err
}

// Online reports whether an online session is open.
func (s *PresenceService) Online() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID != ""
}

// ReportLocation records the driver's current position. Positions that have
// not moved beyond the configured threshold since the last report are
// dropped: this gates route recomputation and network chatter, it is not a
// correctness requirement. Returns whether the position was sent.
func (s *PresenceService) ReportLocation(ctx context.Context, loc domain.LatLng) (bool, error) {
	if !isValidLatitude(loc.Latitude) || !isValidLongitude(loc.Longitude) {
		return false, ErrInvalidLocation
	}

	s.mu.Lock()
	sessionID := s.sessionID
	last := s.lastReported
	s.lastLocation = loc
	s.mu.Unlock()

	if sessionID == "" {
		return false, ErrNotOnline
	}
	if last != nil && !geo.MovedEnough(last.Latitude, last.Longitude, loc.Latitude, loc.Longitude, s.cfg.MovementThresholdMiles) {
		return false, nil
	}

	if err := s.gw.Heartbeat(ctx, s.sess.UserID(), sessionID, loc); err != nil {
		return false, err
	}

	s.mu.Lock()
	s.lastReported = &loc
	s.mu.Unlock()
	return true, nil
}

// NearbyDrivers returns online drivers within radiusMiles of a point.
func (s *PresenceService) NearbyDrivers(ctx context.Context, lat, lng, radiusMiles float64) ([]domain.OnlineDriver, error) {
	if !isValidLatitude(lat) || !isValidLongitude(lng) {
		return nil, ErrInvalidLocation
	}
	return s.gw.OnlineDrivers(ctx, lat, lng, radiusMiles)
}

// heartbeatLoop refreshes liveness on a fixed interval with the last known
// position. Failures are logged and retried on the next tick; the remote
// side treats prolonged silence as implicitly offline.
func (s *PresenceService) heartbeatLoop() {
	defer s.hbWg.Done()

	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		s.mu.Lock()
		done := s.hbDone
		s.mu.Unlock()

		select {
		case <-ticker.C:
			s.mu.Lock()
			sessionID := s.sessionID
			loc := s.lastLocation
			s.mu.Unlock()
			if sessionID == "" {
				return
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			err := s.gw.Heartbeat(ctx, s.sess.UserID(), sessionID, loc)
			cancel()
			if err != nil {
				s.log.Warn("heartbeat failed", logger.Error(err))
			}
		case <-done:
			return
		}
	}
}
