package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/codebridge/wabridge/internal/chat"
	"github.com/codebridge/wabridge/internal/config"
)

// fakeClient implements chat.Client in-memory and exposes its handlers so
// tests can fire lifecycle signals directly.
type fakeClient struct {
	mu       sync.Mutex
	handlers chat.Handlers
	identity chat.Identity

	connectErr error
	logoutErr  error
	sendErr    error

	connectCalls int
	logoutCalls  int
	destroyCalls int
	calls        []string
	sent         []sentMessage
}

type sentMessage struct {
	to   string
	body string
}

func (f *fakeClient) SetHandlers(h chat.Handlers) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers = h
}

func (f *fakeClient) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectCalls++
	f.calls = append(f.calls, "connect")
	return f.connectErr
}

func (f *fakeClient) Logout(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logoutCalls++
	f.calls = append(f.calls, "logout")
	return f.logoutErr
}

func (f *fakeClient) Destroy(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyCalls++
	f.calls = append(f.calls, "destroy")
	return nil
}

func (f *fakeClient) SendMessage(ctx context.Context, to string, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sentMessage{to: to, body: body})
	return nil
}

func (f *fakeClient) sentMessages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentMessage, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeClient) Identity() (chat.Identity, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.identity, f.identity.User != ""
}

func (f *fakeClient) fireQR(code string) {
	f.mu.Lock()
	h := f.handlers.OnQR
	f.mu.Unlock()
	if h != nil {
		h(code)
	}
}

func (f *fakeClient) fireAuthenticated() {
	f.mu.Lock()
	h := f.handlers.OnAuthenticated
	f.mu.Unlock()
	if h != nil {
		h()
	}
}

func (f *fakeClient) fireReady(identity chat.Identity) {
	f.mu.Lock()
	h := f.handlers.OnReady
	f.mu.Unlock()
	if h != nil {
		h(identity)
	}
}

func (f *fakeClient) fireAuthFailure(reason string) {
	f.mu.Lock()
	h := f.handlers.OnAuthFailure
	f.mu.Unlock()
	if h != nil {
		h(reason)
	}
}

func (f *fakeClient) fireMessage(msg chat.Message) {
	f.mu.Lock()
	h := f.handlers.OnMessage
	f.mu.Unlock()
	if h != nil {
		h(msg)
	}
}

func (f *fakeClient) fireDisconnected(reason string) {
	f.mu.Lock()
	h := f.handlers.OnDisconnected
	f.mu.Unlock()
	if h != nil {
		h(reason)
	}
}

func (f *fakeClient) callSequence() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// fakeFactory hands out fakeClients and remembers every client it built.
type fakeFactory struct {
	mu         sync.Mutex
	clients    []*fakeClient
	connectErr error
	factoryErr error
}

func (ff *fakeFactory) factory(ctx context.Context, opts chat.Options) (chat.Client, error) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	if ff.factoryErr != nil {
		return nil, ff.factoryErr
	}
	c := &fakeClient{connectErr: ff.connectErr}
	ff.clients = append(ff.clients, c)
	return c, nil
}

func (ff *fakeFactory) last() *fakeClient {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	if len(ff.clients) == 0 {
		return nil
	}
	return ff.clients[len(ff.clients)-1]
}

func (ff *fakeFactory) count() int {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return len(ff.clients)
}

// recordingRenderer captures every rendered QR payload.
type recordingRenderer struct {
	mu    sync.Mutex
	codes []string
}

func (r *recordingRenderer) Render(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codes = append(r.codes, code)
}

func (r *recordingRenderer) rendered() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.codes))
	copy(out, r.codes)
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSessionConfig(root string) config.Session {
	return config.Session{
		StorageRoot:  root,
		Headless:     true,
		MaxQRRetries: 3,
		AuthTimeout:  time.Minute,
	}
}

var errConnectRefused = errors.New("connection refused")
