package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/codebridge/wabridge/internal/chat"
	"github.com/codebridge/wabridge/internal/config"
)

// Directory owns the full set of authenticators, keyed by session id. It
// handles discovery of persisted sessions, creation and destruction, and
// aggregate health; it performs no chat-protocol work itself.
//
// The mutex protects map membership only. Operations on distinct session
// ids are fully independent; callers must serialize lifecycle operations
// against a single session id themselves.
type Directory struct {
	cfg      config.Session
	staleAge time.Duration
	factory  chat.Factory
	renderer chat.QRRenderer
	logger   *slog.Logger

	mu        sync.RWMutex
	onMessage MessageHandler
	sessions  map[string]*Authenticator
}

// NewDirectory creates an empty directory. staleAge is the inactivity
// window after which a non-disconnected session is reported unhealthy;
// zero selects the default. Call Initialize to discover sessions persisted
// under the storage root.
func NewDirectory(cfg config.Session, staleAge time.Duration, factory chat.Factory, renderer chat.QRRenderer, logger *slog.Logger) *Directory {
	if staleAge <= 0 {
		staleAge = config.DefaultStaleSessionAge
	}
	return &Directory{
		cfg:      cfg,
		staleAge: staleAge,
		factory:  factory,
		renderer: renderer,
		logger:   logger,
		sessions: make(map[string]*Authenticator),
	}
}

// Initialize registers an authenticator for every subdirectory of the
// storage root without connecting any of them. A missing root means zero
// sessions, not an error; re-initialization skips ids that are already
// registered.
func (d *Directory) Initialize(ctx context.Context) error {
	entries, err := os.ReadDir(d.cfg.StorageRoot)
	if err != nil {
		if os.IsNotExist(err) {
			d.logger.Info("Session storage root does not exist yet, starting empty",
				"root", d.cfg.StorageRoot)
			return nil
		}
		return fmt.Errorf("failed to scan session storage root: %w", err)
	}

	discovered := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		id := entry.Name()

		d.mu.Lock()
		if _, exists := d.sessions[id]; exists {
			d.mu.Unlock()
			d.logger.Warn("Session already registered, skipping", "session_id", id)
			continue
		}
		d.sessions[id] = d.newAuthenticator(id)
		d.mu.Unlock()
		discovered++
	}

	d.logger.Info("Session directory initialized",
		"discovered", discovered,
		"root", d.cfg.StorageRoot,
	)
	return nil
}

func (d *Directory) newAuthenticator(id string) *Authenticator {
	auth := NewAuthenticator(id, d.cfg, d.factory, d.renderer, d.logger)
	auth.SetMessageHandler(d.onMessage)
	return auth
}

// SetMessageHandler installs the incoming-message handler on every current
// and future session.
func (d *Directory) SetMessageHandler(h MessageHandler) {
	d.mu.Lock()
	d.onMessage = h
	auths := make([]*Authenticator, 0, len(d.sessions))
	for _, auth := range d.sessions {
		auths = append(auths, auth)
	}
	d.mu.Unlock()

	for _, auth := range auths {
		auth.SetMessageHandler(h)
	}
}

// CreateSession registers a new, not-yet-initialized session. With an empty
// id one is generated from the current time plus a random suffix. Returns
// the registered id, or ErrSessionExists on collision.
func (d *Directory) CreateSession(id string) (string, error) {
	if id == "" {
		id = generateSessionID()
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.sessions[id]; exists {
		return "", fmt.Errorf("%w: %s", ErrSessionExists, id)
	}
	d.sessions[id] = d.newAuthenticator(id)

	d.logger.Info("Session created", "session_id", id)
	return id, nil
}

// InitializeSession connects the session's chat client. Initialization
// failures from the authenticator propagate unchanged.
func (d *Directory) InitializeSession(ctx context.Context, id string) error {
	auth, err := d.lookup(id)
	if err != nil {
		return err
	}
	return auth.Initialize(ctx)
}

// DestroySession logs the session out and removes it from the directory.
// Because logout never fails, the only error is an unknown id.
func (d *Directory) DestroySession(ctx context.Context, id string) error {
	auth, err := d.lookup(id)
	if err != nil {
		return err
	}

	auth.Logout(ctx)

	d.mu.Lock()
	delete(d.sessions, id)
	d.mu.Unlock()

	d.logger.Info("Session destroyed", "session_id", id)
	return nil
}

// RestartSession logs the session out and reconnects it, propagating the
// authenticator's failure mode.
func (d *Directory) RestartSession(ctx context.Context, id string) error {
	auth, err := d.lookup(id)
	if err != nil {
		return err
	}
	return auth.Restart(ctx)
}

// ListSessions returns the live state and durable metadata of every
// registered session. Reads fan out concurrently; no ordering is
// guaranteed.
func (d *Directory) ListSessions(ctx context.Context) []Entry {
	auths := d.snapshot()

	entries := make([]Entry, len(auths))
	var wg sync.WaitGroup
	for i, auth := range auths {
		wg.Add(1)
		go func(i int, auth *Authenticator) {
			defer wg.Done()
			entries[i] = Entry{
				State: auth.AuthState(),
				Info:  auth.SessionInfo(),
			}
		}(i, auth)
	}
	wg.Wait()

	return entries
}

// GetSessionState returns the live state snapshot for one session.
func (d *Directory) GetSessionState(id string) (AuthState, error) {
	auth, err := d.lookup(id)
	if err != nil {
		return AuthState{}, err
	}
	return auth.AuthState(), nil
}

// GetSessionInfo returns the durable metadata for one session, nil when no
// document exists.
func (d *Directory) GetSessionInfo(id string) (*Info, error) {
	auth, err := d.lookup(id)
	if err != nil {
		return nil, err
	}
	return auth.SessionInfo(), nil
}

// Stats aggregates connection state across all sessions.
func (d *Directory) Stats() Stats {
	var stats Stats
	for _, auth := range d.snapshot() {
		state := auth.AuthState()
		stats.Total++
		if state.ConnectionState != StateDisconnected {
			stats.Active++
		}
		if state.ConnectionState == StateConnected {
			stats.Connected++
		}
		if state.IsAuthenticated {
			stats.Authenticated++
		}
	}
	return stats
}

// HealthCheck flags sessions stuck between authentication and readiness,
// and connected sessions whose last activity is older than the configured
// stale age. Healthy means zero issues.
func (d *Directory) HealthCheck() HealthReport {
	now := time.Now()

	var issues []string
	for _, auth := range d.snapshot() {
		state := auth.AuthState()

		if state.IsAuthenticated && !state.IsReady {
			issues = append(issues, fmt.Sprintf(
				"session %s is authenticated but not ready", state.SessionID))
		}
		if state.ConnectionState != StateDisconnected && now.Sub(state.LastActivity) > d.staleAge {
			issues = append(issues, fmt.Sprintf(
				"session %s has had no activity since %s",
				state.SessionID, state.LastActivity.Format(time.RFC3339)))
		}
	}

	return HealthReport{
		Healthy: len(issues) == 0,
		Issues:  issues,
		Stats:   d.Stats(),
	}
}

// Shutdown destroys every registered session concurrently. Individual
// failures are logged and do not stop the drain.
func (d *Directory) Shutdown(ctx context.Context) {
	d.mu.RLock()
	ids := make([]string, 0, len(d.sessions))
	for id := range d.sessions {
		ids = append(ids, id)
	}
	d.mu.RUnlock()

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if err := d.DestroySession(ctx, id); err != nil {
				d.logger.Error("Failed to destroy session during shutdown",
					"session_id", id, "error", err)
			}
		}(id)
	}
	wg.Wait()

	d.logger.Info("Session directory shut down", "drained", len(ids))
}

// ReadySessions returns the ids of all fully ready sessions.
func (d *Directory) ReadySessions() []string {
	var ids []string
	for _, auth := range d.snapshot() {
		if auth.Ready() {
			ids = append(ids, auth.ID())
		}
	}
	return ids
}

// IsSessionReady reports whether the session exists and is fully ready.
func (d *Directory) IsSessionReady(id string) bool {
	auth, err := d.lookup(id)
	if err != nil {
		return false
	}
	return auth.Ready()
}

// HasSession reports whether the id is registered.
func (d *Directory) HasSession(id string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.sessions[id]
	return ok
}

// SessionCount returns the number of registered sessions.
func (d *Directory) SessionCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.sessions)
}

func (d *Directory) lookup(id string) (*Authenticator, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	auth, ok := d.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return auth, nil
}

func (d *Directory) snapshot() []*Authenticator {
	d.mu.RLock()
	defer d.mu.RUnlock()

	auths := make([]*Authenticator, 0, len(d.sessions))
	for _, auth := range d.sessions {
		auths = append(auths, auth)
	}
	return auths
}

// generateSessionID builds session_<epoch-ms>_<6-hex-chars>.
func generateSessionID() string {
	return fmt.Sprintf("session_%d_%s", time.Now().UnixMilli(), randomSuffix())
}

func randomSuffix() string {
	b := make([]byte, 3)
	if _, err := rand.Read(b); err != nil {
		// Timestamp collisions within the same millisecond are the only
		// risk; fall back to the nanosecond clock.
		return fmt.Sprintf("%06d", time.Now().Nanosecond()%1000000)
	}
	return hex.EncodeToString(b)
}
