package relay

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLink struct {
	mu     sync.Mutex
	sent   [][]byte
	closed bool
}

func (f *fakeLink) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrNotConnected
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	f.sent = append(f.sent, buf)
	return nil
}

func (f *fakeLink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeLink) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeLink) requests(t *testing.T) []Request {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Request, 0, len(f.sent))
	for _, raw := range f.sent {
		var req Request
		require.NoError(t, json.Unmarshal(raw, &req))
		out = append(out, req)
	}
	return out
}

// fakeAgent hands out fakeLink channels and keeps the inbound delivery
// hooks so tests can play the companion side.
type fakeAgent struct {
	mu        sync.Mutex
	links     []*fakeLink
	onMessage func([]byte)
	onClosed  func()
	dialErr   error
}

func (a *fakeAgent) opener() Opener {
	return func(host string, port int, onMessage func([]byte), onClosed func()) (MessageChannel, error) {
		a.mu.Lock()
		defer a.mu.Unlock()
		if a.dialErr != nil {
			return nil, a.dialErr
		}
		link := &fakeLink{}
		a.links = append(a.links, link)
		a.onMessage = onMessage
		a.onClosed = onClosed
		return link, nil
	}
}

func (a *fakeAgent) dialCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.links)
}

func (a *fakeAgent) link() *fakeLink {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.links) == 0 {
		return nil
	}
	return a.links[len(a.links)-1]
}

func (a *fakeAgent) sendInit() {
	a.mu.Lock()
	deliver := a.onMessage
	a.mu.Unlock()
	deliver([]byte(`{"a":"init"}`))
}

func (a *fakeAgent) sendResponse(payload string) {
	a.mu.Lock()
	deliver := a.onMessage
	a.mu.Unlock()
	msg, _ := json.Marshal(Message{A: ActionResponse, JSON: payload})
	deliver(msg)
}

type memoryStore struct {
	mu     sync.Mutex
	cookie string
	saves  int
}

func (s *memoryStore) LoadCookie() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cookie
}

func (s *memoryStore) SaveCookie(cookie string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cookie = cookie
	s.saves++
}

func TestHandshakeCompletesAndAcks(t *testing.T) {
	agent := &fakeAgent{}
	store := &memoryStore{cookie: "stored-cookie"}
	c := NewChannel("localhost", 8080, agent.opener(), store, Callbacks{})

	c.Connect()
	assert.Equal(t, AwaitingInit, c.State())

	agent.sendInit()
	assert.Equal(t, Ready, c.State())

	reqs := agent.link().requests(t)
	require.Len(t, reqs, 1)
	assert.Equal(t, ActionInit, reqs[0].A)
	assert.Equal(t, "stored-cookie", reqs[0].Cookie)
}

func TestHandshakeTimeoutPromptsOnce(t *testing.T) {
	agent := &fakeAgent{}
	prompts := 0
	var mu sync.Mutex
	c := NewChannel("localhost", 8080, agent.opener(), nil, Callbacks{
		OnInstallPrompt: func() {
			mu.Lock()
			prompts++
			mu.Unlock()
		},
	}, WithTimings(30*time.Millisecond, 10*time.Millisecond))

	c.Connect()
	time.Sleep(150 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, prompts)
	assert.Equal(t, Disconnected, c.State())
}

func TestSendWhileDisconnectedReconnectsAndResends(t *testing.T) {
	agent := &fakeAgent{}
	c := NewChannel("localhost", 8080, agent.opener(), nil, Callbacks{},
		WithTimings(500*time.Millisecond, 20*time.Millisecond))

	err := c.Send(&Request{A: ActionListPorts})
	require.NoError(t, err)
	assert.Equal(t, 1, agent.dialCount())
	assert.Equal(t, AwaitingInit, c.State())

	time.Sleep(100 * time.Millisecond)

	reqs := agent.link().requests(t)
	require.Len(t, reqs, 2)
	assert.Equal(t, ActionListPorts, reqs[0].A)
	assert.Equal(t, ActionListPorts, reqs[1].A)
}

func TestExactlyOnceSuppressesDuplicate(t *testing.T) {
	agent := &fakeAgent{}
	c := NewChannel("localhost", 8080, agent.opener(), nil, Callbacks{},
		WithTimings(500*time.Millisecond, 20*time.Millisecond),
		WithResendPolicy(ResendExactlyOnce))

	require.NoError(t, c.Send(&Request{A: ActionPrintRaw, Data: "aGVsbG8=", Printer: "kitchen"}))
	time.Sleep(100 * time.Millisecond)

	count := 0
	for _, req := range agent.link().requests(t) {
		if req.A == ActionPrintRaw {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestResponseDispatch(t *testing.T) {
	agent := &fakeAgent{}
	var gotPorts, gotPrinters []string
	var errs []error
	var mu sync.Mutex
	c := NewChannel("localhost", 8080, agent.opener(), nil, Callbacks{
		OnPorts: func(p []string) {
			mu.Lock()
			gotPorts = p
			mu.Unlock()
		},
		OnPrinters: func(p []string) {
			mu.Lock()
			gotPrinters = p
			mu.Unlock()
		},
		OnError: func(err error) {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		},
	})

	c.Connect()
	agent.sendInit()

	agent.sendResponse(`{"ports":["COM1","/dev/ttyUSB0"]}`)
	agent.sendResponse(`{"printers":["Receipt","Kitchen"]}`)
	agent.sendResponse(`{"error":"port busy"}`)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"COM1", "/dev/ttyUSB0"}, gotPorts)
	assert.Equal(t, []string{"Receipt", "Kitchen"}, gotPrinters)
	require.Len(t, errs, 1)
	var relayErr *RelayError
	require.ErrorAs(t, errs[0], &relayErr)
	assert.Equal(t, "port busy", relayErr.Message)
}

func TestAmbiguousResponseRejected(t *testing.T) {
	agent := &fakeAgent{}
	var gotPorts []string
	var errs []error
	var mu sync.Mutex
	c := NewChannel("localhost", 8080, agent.opener(), nil, Callbacks{
		OnPorts: func(p []string) {
			mu.Lock()
			gotPorts = p
			mu.Unlock()
		},
		OnError: func(err error) {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		},
	})

	c.Connect()
	agent.sendInit()

	agent.sendResponse(`{"ports":["COM1"],"printers":["Receipt"]}`)
	agent.sendResponse(`{}`)

	mu.Lock()
	defer mu.Unlock()
	assert.Nil(t, gotPorts)
	require.Len(t, errs, 2)
	assert.True(t, errors.Is(errs[0], ErrMalformedResponse))
	assert.True(t, errors.Is(errs[1], ErrMalformedResponse))
}

func TestCookiePersistedAndReused(t *testing.T) {
	agent := &fakeAgent{}
	store := &memoryStore{}
	c := NewChannel("localhost", 8080, agent.opener(), store, Callbacks{})

	c.Connect()
	agent.sendInit()

	agent.sendResponse(`{"ready":true,"cookie":"session-abc"}`)
	assert.Equal(t, "session-abc", store.LoadCookie())

	require.NoError(t, c.RequestPrinters())
	reqs := agent.link().requests(t)
	last := reqs[len(reqs)-1]
	assert.Equal(t, ActionListPrinters, last.A)
	assert.Equal(t, "session-abc", last.Cookie)
}

func TestErrorActionTriggersReconnect(t *testing.T) {
	agent := &fakeAgent{}
	c := NewChannel("localhost", 8080, agent.opener(), nil, Callbacks{},
		WithTimings(500*time.Millisecond, 20*time.Millisecond))

	c.Connect()
	agent.sendInit()
	require.Equal(t, Ready, c.State())

	agent.mu.Lock()
	deliver := agent.onMessage
	agent.mu.Unlock()
	deliver([]byte(`{"a":"error"}`))

	assert.Equal(t, 2, agent.dialCount())
	assert.Equal(t, AwaitingInit, c.State())
}

func TestDialFailurePrompts(t *testing.T) {
	agent := &fakeAgent{dialErr: errors.New("connection refused")}
	prompts := 0
	var mu sync.Mutex
	c := NewChannel("localhost", 8080, agent.opener(), nil, Callbacks{
		OnInstallPrompt: func() {
			mu.Lock()
			prompts++
			mu.Unlock()
		},
	})

	c.Connect()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, prompts)
	assert.Equal(t, Disconnected, c.State())
}
