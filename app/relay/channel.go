package relay

import (
	"encoding/base64"
	"encoding/json"
	"sync"
	"time"

	"PosPrint/app/models"
)

// State is the connection lifecycle of the companion channel.
type State int

const (
	Disconnected State = iota
	Connecting
	AwaitingInit
	Ready
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case AwaitingInit:
		return "awaiting-init"
	case Ready:
		return "ready"
	default:
		return "disconnected"
	}
}

// MessageChannel is an open bidirectional link to the companion agent.
type MessageChannel interface {
	Send(data []byte) error
	Close() error
	Closed() bool
}

// Opener dials a new companion channel. Inbound payloads are delivered to
// onMessage; onClosed fires once when the link dies.
type Opener func(host string, port int, onMessage func([]byte), onClosed func()) (MessageChannel, error)

// SessionStore persists the companion session cookie across restarts, so a
// paired agent keeps trusting this terminal.
type SessionStore interface {
	LoadCookie() string
	SaveCookie(cookie string)
}

// ResendPolicy controls what happens to the timed re-delivery that follows
// a reconnect. The companion deduplicates raw jobs poorly, so exactly-once
// suppresses the second copy when the first delivery already went out.
type ResendPolicy int

const (
	ResendAtLeastOnce ResendPolicy = iota
	ResendExactlyOnce
)

// Callbacks surface asynchronous companion events to the caller.
type Callbacks struct {
	OnPorts         func([]string)
	OnPrinters      func([]string)
	OnReady         func()
	OnError         func(error)
	OnInstallPrompt func()
}

// Channel drives the companion connection state machine. All exported
// methods are safe for concurrent use.
type Channel struct {
	mu sync.Mutex

	host   string
	port   int
	open   Opener
	store  SessionStore
	cb     Callbacks
	policy ResendPolicy

	handshakeTimeout time.Duration
	resendDelay      time.Duration

	state     State
	ch        MessageChannel
	cookie    string
	timer     *time.Timer
	prompted  bool
	nextID    uint64
	delivered map[uint64]bool
}

// Option tweaks channel construction.
type Option func(*Channel)

// WithResendPolicy selects the duplicate-suppression behavior.
func WithResendPolicy(p ResendPolicy) Option {
	return func(c *Channel) { c.policy = p }
}

// WithTimings overrides the handshake timeout and resend delay, mainly for
// tests.
func WithTimings(handshake, resend time.Duration) Option {
	return func(c *Channel) {
		c.handshakeTimeout = handshake
		c.resendDelay = resend
	}
}

// NewChannel builds a channel for the agent at host:port. The channel stays
// Disconnected until Connect or the first Send.
func NewChannel(host string, port int, open Opener, store SessionStore, cb Callbacks, opts ...Option) *Channel {
	c := &Channel{
		host:             host,
		port:             port,
		open:             open,
		store:            store,
		cb:               cb,
		policy:           ResendAtLeastOnce,
		handshakeTimeout: 2000 * time.Millisecond,
		resendDelay:      250 * time.Millisecond,
		delivered:        make(map[uint64]bool),
	}
	if store != nil {
		c.cookie = store.LoadCookie()
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State reports the current lifecycle state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Ready reports whether the companion has completed its handshake.
func (c *Channel) Ready() bool {
	return c.State() == Ready
}

// Connect opens the companion channel if it is not already open.
func (c *Channel) Connect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Disconnected {
		c.connectLocked()
	}
}

// Close tears the channel down without reconnecting.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopTimerLocked()
	if c.ch != nil && !c.ch.Closed() {
		c.ch.Close()
	}
	c.ch = nil
	c.state = Disconnected
}

// Send delivers a request to the companion. When the channel is not Ready
// the request is still delivered optimistically, a reconnect is kicked off,
// and the same request is re-delivered after the resend delay so it survives
// the handshake. A request is never dropped.
func (c *Channel) Send(req *Request) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	req.id = c.nextID
	c.nextID++

	if c.ch == nil || c.ch.Closed() || c.state != Ready {
		if c.state == Ready {
			// The link died underneath a Ready state; reopen it.
			c.reconnectLocked()
		} else if c.state == Disconnected {
			c.connectLocked()
		}
		r := req
		time.AfterFunc(c.resendDelay, func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.deliverLocked(r)
		})
	}
	return c.deliverLocked(req)
}

// RequestPrinters asks the companion for its installed printer names.
func (c *Channel) RequestPrinters() error {
	return c.Send(&Request{A: ActionListPrinters})
}

// RequestPorts asks the companion for its serial port device names.
func (c *Channel) RequestPorts() error {
	return c.Send(&Request{A: ActionListPorts})
}

// OpenPort asks the companion to open a serial port with the given settings.
func (c *Channel) OpenPort(port string, settings models.SerialSettings) error {
	s := settings
	return c.Send(&Request{A: ActionOpenPort, Port: port, Settings: &s})
}

// PrintRaw sends raw printer bytes to a named printer queue.
func (c *Channel) PrintRaw(data []byte, printer string) error {
	return c.Send(&Request{
		A:       ActionPrintRaw,
		Data:    base64.StdEncoding.EncodeToString(data),
		Printer: printer,
	})
}

// PrintSerial sends raw printer bytes to an opened serial port.
func (c *Channel) PrintSerial(data []byte, port string) error {
	return c.Send(&Request{
		A:    ActionPrintRaw,
		Data: base64.StdEncoding.EncodeToString(data),
		Port: port,
	})
}

// PrintHTML sends rendered markup to a named printer for driver printing.
func (c *Channel) PrintHTML(markup, printer string) error {
	return c.Send(&Request{A: ActionPrintHTML, Data: markup, Printer: printer})
}

func (c *Channel) deliverLocked(req *Request) error {
	if c.policy == ResendExactlyOnce && c.delivered[req.id] {
		return nil
	}
	if c.ch == nil || c.ch.Closed() {
		return ErrNotConnected
	}
	req.Cookie = c.cookie
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	if err := c.ch.Send(data); err != nil {
		return err
	}
	if c.policy == ResendExactlyOnce {
		c.delivered[req.id] = true
	}
	return nil
}

func (c *Channel) connectLocked() {
	c.state = Connecting
	c.prompted = false
	c.openLocked()
}

func (c *Channel) reconnectLocked() {
	c.stopTimerLocked()
	if c.ch != nil && !c.ch.Closed() {
		c.ch.Close()
	}
	c.ch = nil
	c.state = Connecting
	c.prompted = false
	c.openLocked()
}

func (c *Channel) openLocked() {
	ch, err := c.open(c.host, c.port, c.handleMessage, c.handleClosed)
	if err != nil {
		c.state = Disconnected
		c.promptLocked()
		return
	}
	c.ch = ch
	c.state = AwaitingInit
	c.timer = time.AfterFunc(c.handshakeTimeout, c.handshakeTimedOut)
}

func (c *Channel) handshakeTimedOut() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != AwaitingInit {
		return
	}
	if c.ch != nil && !c.ch.Closed() {
		c.ch.Close()
	}
	c.ch = nil
	c.state = Disconnected
	c.promptLocked()
	if c.cb.OnError != nil {
		c.cb.OnError(ErrHandshakeTimeout)
	}
}

// promptLocked fires the install prompt once per connection attempt.
func (c *Channel) promptLocked() {
	if c.prompted {
		return
	}
	c.prompted = true
	if c.cb.OnInstallPrompt != nil {
		c.cb.OnInstallPrompt()
	}
}

func (c *Channel) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Channel) handleMessage(data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		if c.cb.OnError != nil {
			c.cb.OnError(ErrMalformedResponse)
		}
		return
	}
	switch msg.A {
	case ActionInit:
		c.handleInit()
	case ActionResponse:
		c.handleResponse(msg.JSON)
	case ActionError:
		c.mu.Lock()
		c.reconnectLocked()
		c.mu.Unlock()
	default:
		if c.cb.OnError != nil {
			c.cb.OnError(ErrMalformedResponse)
		}
	}
}

// handleInit completes the handshake. The acknowledgement carrying the
// session cookie must reach the companion before any queued requests, so it
// is sent inline here while the timed resends are still pending.
func (c *Channel) handleInit() {
	c.mu.Lock()
	c.stopTimerLocked()
	c.state = Ready
	c.deliverLocked(&Request{A: ActionInit, id: c.nextID})
	c.nextID++
	c.mu.Unlock()

	if c.cb.OnReady != nil {
		c.cb.OnReady()
	}
}

func (c *Channel) handleResponse(encoded string) {
	resp, err := DecodeResponse(encoded)
	if err != nil {
		if c.cb.OnError != nil {
			c.cb.OnError(err)
		}
		return
	}

	if resp.Cookie != nil {
		c.mu.Lock()
		c.cookie = *resp.Cookie
		c.mu.Unlock()
		if c.store != nil {
			c.store.SaveCookie(*resp.Cookie)
		}
	}

	kind, err := resp.Kind()
	if err != nil {
		if c.cb.OnError != nil {
			c.cb.OnError(err)
		}
		return
	}
	switch kind {
	case KindPorts:
		if c.cb.OnPorts != nil {
			c.cb.OnPorts(resp.Ports)
		}
	case KindPrinters:
		if c.cb.OnPrinters != nil {
			c.cb.OnPrinters(resp.Printers)
		}
	case KindError:
		if c.cb.OnError != nil {
			c.cb.OnError(&RelayError{Message: *resp.Error})
		}
	case KindReady:
		if c.cb.OnReady != nil && *resp.Ready {
			c.cb.OnReady()
		}
	}
}

// handleClosed fires for every dead link, including ones already replaced
// by a reconnect; only a dead current link changes state.
func (c *Channel) handleClosed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ch != nil && !c.ch.Closed() {
		return
	}
	c.stopTimerLocked()
	c.ch = nil
	c.state = Disconnected
}
