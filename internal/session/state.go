// Package session implements the WhatsApp session lifecycle: a per-session
// Authenticator that drives one chat client through its
// connect/authenticate/ready state machine, and a Directory that owns the
// full set of authenticators, discovers persisted sessions at startup, and
// aggregates health across them.
package session

import "time"

// ConnectionState is the coarse connection state of one session.
type ConnectionState string

const (
	// StateDisconnected is the initial state and the terminal state of any
	// failure.
	StateDisconnected ConnectionState = "disconnected"
	// StateConnecting means a QR code is pending and waiting to be scanned.
	StateConnecting ConnectionState = "connecting"
	// StateAuthenticated means identity is confirmed but the client is not
	// yet fully usable.
	StateAuthenticated ConnectionState = "authenticated"
	// StateConnected means the client is fully ready. Readiness follows
	// authentication, so this is the most advanced state.
	StateConnected ConnectionState = "connected"
)

// AuthState is a point-in-time snapshot of one session's authentication
// state.
//
// Invariants: IsReady implies IsAuthenticated; QRCode is non-empty only in
// StateConnecting; StateDisconnected implies neither authenticated nor
// ready.
type AuthState struct {
	SessionID       string          `json:"sessionId"`
	IsAuthenticated bool            `json:"isAuthenticated"`
	IsReady         bool            `json:"isReady"`
	QRCode          string          `json:"qrCode,omitempty"`
	PhoneNumber     string          `json:"phoneNumber,omitempty"`
	LastActivity    time.Time       `json:"lastActivity"`
	ConnectionState ConnectionState `json:"connectionState"`
}

// Info is the durable per-session metadata document, written when a session
// first becomes ready and stored at <root>/<id>/session-info.json.
type Info struct {
	SessionID   string    `json:"sessionId"`
	PhoneNumber string    `json:"phoneNumber,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	LastUsed    time.Time `json:"lastUsed"`
	IsActive    bool      `json:"isActive"`
}

// Entry pairs a session's live state with its durable metadata for
// listings. Info is nil when no document has been written yet.
type Entry struct {
	State AuthState `json:"state"`
	Info  *Info     `json:"info,omitempty"`
}

// Stats aggregates connection state over every registered session.
type Stats struct {
	Total         int `json:"total"`
	Active        int `json:"active"`        // connectionState != disconnected
	Connected     int `json:"connected"`     // connectionState == connected
	Authenticated int `json:"authenticated"` // isAuthenticated
}

// HealthReport is the result of a directory health check.
type HealthReport struct {
	Healthy bool     `json:"healthy"`
	Issues  []string `json:"issues"`
	Stats   Stats    `json:"stats"`
}
