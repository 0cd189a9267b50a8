// Package chat defines the boundary to the external WhatsApp client. The
// session layer drives clients exclusively through the Client interface and
// the six signals in Handlers, so the wire protocol implementation can be
// swapped (or faked in tests) without touching any lifecycle logic.
package chat

import "context"

// Identity is the resolved account identity of a connected client.
type Identity struct {
	// User is the phone number portion of the account JID.
	User string
}

// Message is one incoming chat message.
type Message struct {
	// From is the phone number of the sender.
	From string
	// Chat is the conversation identifier replies go to.
	Chat string
	// Body is the plain message text.
	Body string
}

// Handlers carries the callbacks a client fires as it moves through its
// lifecycle. All handlers for a single client are invoked sequentially from
// one goroutine; a nil handler is skipped.
type Handlers struct {
	// OnQR fires each time a fresh QR payload must be scanned.
	OnQR func(code string)
	// OnAuthenticated fires once the server has confirmed the account identity.
	OnAuthenticated func()
	// OnReady fires when the client is fully usable.
	OnReady func(identity Identity)
	// OnAuthFailure fires on an explicit authentication failure.
	OnAuthFailure func(reason string)
	// OnDisconnected fires when the connection is lost for any reason.
	OnDisconnected func(reason string)
	// OnStateChange fires on opaque client diagnostics.
	OnStateChange func(state string)
	// OnMessage fires for each incoming text message from other users.
	OnMessage func(msg Message)
}

// Options configures a client bound to one session.
type Options struct {
	SessionID  string
	StorageDir string
	// Headless and LaunchArgs configure browser-driven client
	// implementations; protocol-native clients ignore them.
	Headless   bool
	LaunchArgs []string
}

// Client is one live connection to the chat service.
type Client interface {
	// SetHandlers registers the lifecycle callbacks. Must be called before
	// Connect.
	SetHandlers(h Handlers)

	// Connect establishes the connection and starts the login flow. It
	// returns once the connection attempt is underway; progress is reported
	// through the handlers.
	Connect(ctx context.Context) error

	// SendMessage sends a plain text message to the given chat.
	SendMessage(ctx context.Context, to string, body string) error

	// Logout invalidates the stored credentials on the server side.
	Logout(ctx context.Context) error

	// Destroy tears down the connection and releases all resources. The
	// client must not be used afterwards.
	Destroy(ctx context.Context) error

	// Identity returns the resolved account identity, if known.
	Identity() (Identity, bool)
}

// Factory constructs a client for one session. The session layer calls it on
// every initialize so a restart gets a fresh client.
type Factory func(ctx context.Context, opts Options) (Client, error)

// QRRenderer displays a QR payload for a human to scan. Render is
// fire-and-forget; implementations must not block on user interaction.
type QRRenderer interface {
	Render(code string)
}
