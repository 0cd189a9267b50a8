// Package meow adapts go.mau.fi/whatsmeow to the chat.Client boundary. It
// owns the per-session device store (SQLite) and translates whatsmeow events
// and the QR channel into the lifecycle and message signals; no protocol
// detail leaks past this package.
package meow

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"go.mau.fi/whatsmeow"
	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"
	_ "modernc.org/sqlite"

	"github.com/codebridge/wabridge/internal/chat"
)

const deviceDBName = "device.db"

// Client wraps one whatsmeow client bound to a session storage directory.
type Client struct {
	sessionID string
	wa        *whatsmeow.Client
	container *sqlstore.Container
	logger    *slog.Logger

	mu       sync.Mutex
	handlers chat.Handlers
}

// New constructs a client with its device store under opts.StorageDir.
// Headless and LaunchArgs are ignored: whatsmeow speaks the protocol
// natively and needs no browser.
func New(ctx context.Context, opts chat.Options, logger *slog.Logger) (*Client, error) {
	if err := os.MkdirAll(opts.StorageDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create session storage dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(10000)",
		filepath.Join(opts.StorageDir, deviceDBName))

	container, err := sqlstore.New(ctx, "sqlite", dsn, waLog.Noop)
	if err != nil {
		return nil, fmt.Errorf("failed to open device store: %w", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		_ = container.Close()
		return nil, fmt.Errorf("failed to load device: %w", err)
	}

	c := &Client{
		sessionID: opts.SessionID,
		container: container,
		logger:    logger,
	}
	c.wa = whatsmeow.NewClient(device, waLog.Noop)
	c.wa.AddEventHandler(c.dispatch)

	return c, nil
}

// Factory returns a chat.Factory producing whatsmeow clients.
func Factory(logger *slog.Logger) chat.Factory {
	return func(ctx context.Context, opts chat.Options) (chat.Client, error) {
		return New(ctx, opts, logger)
	}
}

// SetHandlers implements chat.Client.
func (c *Client) SetHandlers(h chat.Handlers) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = h
}

func (c *Client) getHandlers() chat.Handlers {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handlers
}

// Connect implements chat.Client. For an unpaired device it opens the QR
// channel first, so pairing codes flow to OnQR while the websocket connects.
func (c *Client) Connect(ctx context.Context) error {
	if c.wa.Store.ID == nil {
		qrChan, err := c.wa.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("failed to open QR channel: %w", err)
		}
		go c.pumpQR(qrChan)
	}

	if err := c.wa.Connect(); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	return nil
}

// pumpQR forwards QR channel items as lifecycle signals. The channel closes
// once pairing succeeds or gives up.
func (c *Client) pumpQR(ch <-chan whatsmeow.QRChannelItem) {
	for item := range ch {
		h := c.getHandlers()
		switch item.Event {
		case "code":
			if h.OnQR != nil {
				h.OnQR(item.Code)
			}
		case "success":
			// PairSuccess arrives through the event handler.
		case "timeout":
			if h.OnAuthFailure != nil {
				h.OnAuthFailure("qr channel timed out")
			}
		default:
			reason := item.Event
			if item.Error != nil {
				reason = fmt.Sprintf("%s: %v", item.Event, item.Error)
			}
			if h.OnAuthFailure != nil {
				h.OnAuthFailure(reason)
			}
		}
	}
}

// dispatch translates whatsmeow events into lifecycle signals. whatsmeow
// delivers events sequentially per client, which gives the session layer its
// in-order handler guarantee.
func (c *Client) dispatch(raw interface{}) {
	h := c.getHandlers()

	switch evt := raw.(type) {
	case *events.PairSuccess:
		if h.OnAuthenticated != nil {
			h.OnAuthenticated()
		}
	case *events.Connected:
		// An already-paired device reconnects without a PairSuccess, so
		// the authenticated signal has to come from here.
		if h.OnAuthenticated != nil && c.wa.Store.ID != nil {
			h.OnAuthenticated()
		}
		if h.OnReady != nil {
			identity, _ := c.Identity()
			h.OnReady(identity)
		}
	case *events.LoggedOut:
		if h.OnAuthFailure != nil {
			h.OnAuthFailure(fmt.Sprintf("logged out: %v", evt.Reason))
		}
	case *events.ConnectFailure:
		if h.OnAuthFailure != nil {
			h.OnAuthFailure(fmt.Sprintf("connect failure: %v", evt.Reason))
		}
	case *events.TemporaryBan:
		if h.OnAuthFailure != nil {
			h.OnAuthFailure(fmt.Sprintf("temporary ban: %v", evt.Code))
		}
	case *events.Message:
		if h.OnMessage == nil || evt.Info.IsFromMe {
			return
		}
		body := messageText(evt)
		if body == "" {
			return
		}
		h.OnMessage(chat.Message{
			From: evt.Info.Sender.User,
			Chat: evt.Info.Chat.String(),
			Body: body,
		})
	case *events.StreamReplaced:
		if h.OnDisconnected != nil {
			h.OnDisconnected("stream replaced by another client")
		}
	case *events.Disconnected:
		if h.OnDisconnected != nil {
			h.OnDisconnected("connection closed")
		}
	default:
		if h.OnStateChange != nil {
			h.OnStateChange(fmt.Sprintf("%T", raw))
		}
	}
}

// messageText extracts the plain text from a message, covering both simple
// conversations and extended text (replies, links).
func messageText(evt *events.Message) string {
	if evt.Message == nil {
		return ""
	}
	if text := evt.Message.GetConversation(); text != "" {
		return text
	}
	return evt.Message.GetExtendedTextMessage().GetText()
}

// SendMessage implements chat.Client.
func (c *Client) SendMessage(ctx context.Context, to string, body string) error {
	jid, err := types.ParseJID(to)
	if err != nil {
		jid = types.NewJID(to, types.DefaultUserServer)
	}

	_, err = c.wa.SendMessage(ctx, jid, &waE2E.Message{
		Conversation: proto.String(body),
	})
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// Identity implements chat.Client.
func (c *Client) Identity() (chat.Identity, bool) {
	id := c.wa.Store.ID
	if id == nil {
		return chat.Identity{}, false
	}
	return chat.Identity{User: id.User}, true
}

// Logout implements chat.Client.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.wa.Logout(ctx); err != nil {
		return fmt.Errorf("failed to log out: %w", err)
	}
	return nil
}

// Destroy implements chat.Client.
func (c *Client) Destroy(ctx context.Context) error {
	c.wa.Disconnect()
	if err := c.container.Close(); err != nil {
		return fmt.Errorf("failed to close device store: %w", err)
	}
	return nil
}
