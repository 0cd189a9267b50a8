package chat

import (
	"fmt"
	"io"
	"sync"

	"github.com/mdp/qrterminal/v3"
)

// TerminalRenderer writes QR codes to a terminal using half-block characters.
type TerminalRenderer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewTerminalRenderer creates a renderer that writes to w, typically stderr
// so QR output does not interleave with a stdio transport.
func NewTerminalRenderer(w io.Writer) *TerminalRenderer {
	return &TerminalRenderer{w: w}
}

// Render draws the QR payload. Errors from the writer are ignored; rendering
// is purely diagnostic.
func (r *TerminalRenderer) Render(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fmt.Fprintln(r.w, "Scan the QR code below with WhatsApp:")
	qrterminal.GenerateHalfBlock(code, qrterminal.L, r.w)
}

// NopRenderer discards QR payloads. Used in tests and headless deployments
// where the QR is served over the API instead.
type NopRenderer struct{}

// Render implements QRRenderer.
func (NopRenderer) Render(string) {}
