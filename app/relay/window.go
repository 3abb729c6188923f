package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/grandcat/zeroconf"
)

// AgentService is the mDNS service type announced by the companion agent.
const AgentService = "_webprint._tcp"

// windowChannel is a MessageChannel over a websocket connection to the
// companion agent's print window endpoint.
type windowChannel struct {
	conn *websocket.Conn

	mu     sync.Mutex
	closed bool
}

func (w *windowChannel) Send(data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrNotConnected
	}
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

func (w *windowChannel) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.conn.Close()
}

func (w *windowChannel) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

// NewWindowOpener returns an Opener that dials the companion agent's
// /printwindow websocket endpoint.
func NewWindowOpener() Opener {
	return func(host string, port int, onMessage func([]byte), onClosed func()) (MessageChannel, error) {
		url := fmt.Sprintf("ws://%s:%d/printwindow", host, port)
		dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
		conn, _, err := dialer.Dial(url, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to reach print agent at %s: %w", url, err)
		}

		wc := &windowChannel{conn: conn}
		go func() {
			defer func() {
				wc.Close()
				onClosed()
			}()
			for {
				_, data, err := conn.ReadMessage()
				if err != nil {
					return
				}
				onMessage(data)
			}
		}()
		return wc, nil
	}
}

// DiscoverAgent browses mDNS for a companion agent and returns the first
// host and port found within the timeout.
func DiscoverAgent(ctx context.Context, timeout time.Duration) (string, int, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return "", 0, fmt.Errorf("failed to start mDNS resolver: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, 4)
	if err := resolver.Browse(ctx, AgentService, "local.", entries); err != nil {
		return "", 0, fmt.Errorf("failed to browse for print agent: %w", err)
	}

	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return "", 0, fmt.Errorf("no print agent found on the local network")
			}
			if entry == nil {
				continue
			}
			if len(entry.AddrIPv4) > 0 {
				return entry.AddrIPv4[0].String(), entry.Port, nil
			}
			if entry.HostName != "" {
				return entry.HostName, entry.Port, nil
			}
		case <-ctx.Done():
			return "", 0, fmt.Errorf("no print agent found on the local network")
		}
	}
}
