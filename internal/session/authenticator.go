package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/codebridge/wabridge/internal/chat"
	"github.com/codebridge/wabridge/internal/config"
)

const infoFileName = "session-info.json"

// MessageHandler processes one incoming chat message for a session. The
// returned reply is sent back to the originating chat when ok is true.
type MessageHandler func(ctx context.Context, sessionID string, msg chat.Message) (reply string, ok bool)

// Authenticator drives one chat client through its authentication state
// machine. It exclusively owns the client handle and the authentication
// timeout timer.
//
// The internal mutex only protects the state fields against concurrent
// snapshot reads; it does not serialize lifecycle operations. Callers must
// not issue Initialize, Logout, or Restart concurrently for the same
// session.
type Authenticator struct {
	id        string
	cfg       config.Session
	factory   chat.Factory
	renderer  chat.QRRenderer
	onMessage MessageHandler
	logger    *slog.Logger

	mu              sync.Mutex
	client          chat.Client
	isAuthenticated bool
	isReady         bool
	qrCode          string
	phoneNumber     string
	lastActivity    time.Time
	connState       ConnectionState
	qrRetries       int
	authTimer       *time.Timer
}

// NewAuthenticator creates an authenticator for the given session id. It
// does not touch the chat service until Initialize is called.
func NewAuthenticator(id string, cfg config.Session, factory chat.Factory, renderer chat.QRRenderer, logger *slog.Logger) *Authenticator {
	return &Authenticator{
		id:           id,
		cfg:          cfg,
		factory:      factory,
		renderer:     renderer,
		logger:       logger,
		lastActivity: time.Now(),
		connState:    StateDisconnected,
	}
}

// SetMessageHandler installs the handler for incoming messages. A nil
// handler silently drops them.
func (a *Authenticator) SetMessageHandler(h MessageHandler) {
	a.mu.Lock()
	a.onMessage = h
	a.mu.Unlock()
}

// ID returns the session identifier.
func (a *Authenticator) ID() string {
	return a.id
}

func (a *Authenticator) storageDir() string {
	return filepath.Join(a.cfg.StorageRoot, a.id)
}

// Initialize constructs the chat client bound to this session's storage
// directory, registers the lifecycle handlers, and starts the connection.
// Construction and connect errors propagate; the caller decides whether to
// retry with another Initialize call.
func (a *Authenticator) Initialize(ctx context.Context) error {
	dir := a.storageDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create storage for session %s: %w", a.id, err)
	}

	client, err := a.factory(ctx, chat.Options{
		SessionID:  a.id,
		StorageDir: dir,
		Headless:   a.cfg.Headless,
		LaunchArgs: a.cfg.LaunchArgs,
	})
	if err != nil {
		return fmt.Errorf("failed to construct chat client for session %s: %w", a.id, err)
	}

	client.SetHandlers(chat.Handlers{
		OnQR:            a.handleQR,
		OnAuthenticated: a.handleAuthenticated,
		OnReady:         a.handleReady,
		OnAuthFailure:   a.handleAuthFailure,
		OnDisconnected:  a.handleDisconnected,
		OnStateChange:   a.handleStateChange,
		OnMessage:       a.handleMessage,
	})

	a.mu.Lock()
	a.client = client
	a.mu.Unlock()

	if err := client.Connect(ctx); err != nil {
		if derr := client.Destroy(ctx); derr != nil {
			a.logger.Warn("Failed to tear down client after connect error",
				"session_id", a.id, "error", derr)
		}
		a.mu.Lock()
		a.client = nil
		a.mu.Unlock()
		return fmt.Errorf("failed to connect session %s: %w", a.id, err)
	}

	a.logger.Info("Session initializing", "session_id", a.id)
	return nil
}

// Logout best-effort invalidates and tears down the client. It never fails:
// every error is logged and swallowed, and local state is always left
// disconnected with the client handle cleared. Shutdown draining depends on
// this contract.
func (a *Authenticator) Logout(ctx context.Context) {
	a.mu.Lock()
	client := a.client
	a.client = nil
	a.isAuthenticated = false
	a.isReady = false
	a.qrCode = ""
	a.connState = StateDisconnected
	a.stopTimeoutLocked()
	a.mu.Unlock()

	if client == nil {
		return
	}

	if err := client.Logout(ctx); err != nil {
		a.logger.Warn("Logout call failed", "session_id", a.id, "error", err)
	}
	if err := client.Destroy(ctx); err != nil {
		a.logger.Warn("Client teardown failed", "session_id", a.id, "error", err)
	}
	a.logger.Info("Session logged out", "session_id", a.id)
}

// Restart logs out, resets the QR retry counter, and initializes again.
// Initialization errors propagate just like a direct Initialize call.
func (a *Authenticator) Restart(ctx context.Context) error {
	a.Logout(ctx)

	a.mu.Lock()
	a.qrRetries = 0
	a.mu.Unlock()

	return a.Initialize(ctx)
}

// Ready reports whether the session is authenticated and fully usable.
func (a *Authenticator) Ready() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.isAuthenticated && a.isReady
}

// AuthState returns a snapshot of the current authentication state.
func (a *Authenticator) AuthState() AuthState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return AuthState{
		SessionID:       a.id,
		IsAuthenticated: a.isAuthenticated,
		IsReady:         a.isReady,
		QRCode:          a.qrCode,
		PhoneNumber:     a.phoneNumber,
		LastActivity:    a.lastActivity,
		ConnectionState: a.connState,
	}
}

// SessionInfo reads the durable metadata document. A missing or unreadable
// document yields nil; read errors are logged, never raised.
func (a *Authenticator) SessionInfo() *Info {
	path := filepath.Join(a.storageDir(), infoFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			a.logger.Warn("Failed to read session info", "session_id", a.id, "error", err)
		}
		return nil
	}

	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		a.logger.Warn("Session info document is corrupt", "session_id", a.id, "error", err)
		return nil
	}
	return &info
}

// handleQR processes a fresh QR payload: count the attempt, expose the code,
// re-arm the authentication timeout, and fail immediately once the retry
// limit is reached.
func (a *Authenticator) handleQR(code string) {
	a.mu.Lock()
	a.qrRetries++
	attempt := a.qrRetries
	a.qrCode = code
	a.connState = StateConnecting
	a.armTimeoutLocked()
	a.mu.Unlock()

	a.logger.Info("QR code received",
		"session_id", a.id,
		"attempt", attempt,
		"max_retries", a.cfg.MaxQRRetries,
	)
	a.renderer.Render(code)

	if attempt >= a.cfg.MaxQRRetries {
		a.failAuth("QR retry limit reached")
	}
}

func (a *Authenticator) handleAuthenticated() {
	a.mu.Lock()
	a.isAuthenticated = true
	a.qrCode = ""
	a.qrRetries = 0
	a.connState = StateAuthenticated
	a.stopTimeoutLocked()
	a.mu.Unlock()

	a.logger.Info("Session authenticated", "session_id", a.id)
}

func (a *Authenticator) handleReady(identity chat.Identity) {
	a.mu.Lock()
	if identity.User == "" && a.client != nil {
		if resolved, ok := a.client.Identity(); ok {
			identity = resolved
		}
	}
	// A ready client is authenticated by definition. Restored sessions and
	// auto-reconnects go straight to ready without a fresh pairing, so the
	// authenticated signal may never arrive on its own.
	a.isAuthenticated = true
	a.qrCode = ""
	a.qrRetries = 0
	a.stopTimeoutLocked()
	a.isReady = true
	a.connState = StateConnected
	a.lastActivity = time.Now()
	a.phoneNumber = identity.User
	phone := a.phoneNumber
	a.mu.Unlock()

	a.logger.Info("Session ready", "session_id", a.id, "phone_number", phone)

	// Best-effort: a failed write leaves the session usable, only the
	// directory listing loses its metadata.
	if err := a.writeInfo(phone); err != nil {
		a.logger.Error("Failed to persist session info", "session_id", a.id, "error", err)
	}
}

func (a *Authenticator) handleAuthFailure(reason string) {
	a.failAuth(reason)
}

func (a *Authenticator) handleDisconnected(reason string) {
	a.mu.Lock()
	a.isAuthenticated = false
	a.isReady = false
	a.qrCode = ""
	a.connState = StateDisconnected
	// The QR retry counter deliberately survives disconnects; only a
	// successful authentication or an explicit restart resets it.
	a.mu.Unlock()

	a.logger.Warn("Session disconnected", "session_id", a.id, "reason", reason)
}

// handleMessage forwards an incoming message to the registered handler and
// sends its reply back over the chat. Send failures are logged, never
// surfaced: the sender simply gets no answer.
func (a *Authenticator) handleMessage(msg chat.Message) {
	a.mu.Lock()
	a.lastActivity = time.Now()
	handler := a.onMessage
	client := a.client
	a.mu.Unlock()

	if handler == nil || client == nil {
		return
	}

	reply, ok := handler(context.Background(), a.id, msg)
	if !ok {
		return
	}
	if err := client.SendMessage(context.Background(), msg.Chat, reply); err != nil {
		a.logger.Warn("Failed to send reply", "session_id", a.id, "error", err)
	}
}

func (a *Authenticator) handleStateChange(state string) {
	a.mu.Lock()
	a.lastActivity = time.Now()
	a.mu.Unlock()

	a.logger.Debug("Session state change", "session_id", a.id, "state", state)
}

// failAuth resets the session to disconnected after an authentication
// failure (explicit signal, QR exhaustion, or timeout). The failure is
// absorbed into state; callers observe it by polling, not as an error.
func (a *Authenticator) failAuth(reason string) {
	a.mu.Lock()
	a.isAuthenticated = false
	a.isReady = false
	a.qrCode = ""
	a.connState = StateDisconnected
	a.stopTimeoutLocked()
	a.mu.Unlock()

	a.logger.Warn("Authentication failed", "session_id", a.id, "reason", reason)
}

// armTimeoutLocked (re)starts the single-shot authentication timeout.
// Callers must hold a.mu.
func (a *Authenticator) armTimeoutLocked() {
	if a.authTimer != nil {
		a.authTimer.Stop()
	}
	a.authTimer = time.AfterFunc(a.cfg.AuthTimeout, func() {
		a.failAuth("authentication timed out")
	})
}

// stopTimeoutLocked cancels the authentication timeout if armed. Callers
// must hold a.mu.
func (a *Authenticator) stopTimeoutLocked() {
	if a.authTimer != nil {
		a.authTimer.Stop()
		a.authTimer = nil
	}
}

func (a *Authenticator) writeInfo(phone string) error {
	now := time.Now()
	info := Info{
		SessionID:   a.id,
		PhoneNumber: phone,
		CreatedAt:   now,
		LastUsed:    now,
		IsActive:    true,
	}

	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session info: %w", err)
	}

	return writeFileAtomic(filepath.Join(a.storageDir(), infoFileName), data)
}

// writeFileAtomic writes via a temp file and rename so the info document is
// never observed half-written.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
