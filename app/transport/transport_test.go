package transport

import (
	"encoding/base64"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PosPrint/app/escpos"
	"PosPrint/app/models"
	"PosPrint/app/relay"
)

type nopLogger struct{}

func (nopLogger) LogInfo(message string, details ...string)            {}
func (nopLogger) LogWarning(message string, details ...string)         {}
func (nopLogger) LogError(message string, err error, details ...string) {}

type recordingLink struct {
	mu   sync.Mutex
	sent [][]byte
}

func (l *recordingLink) Send(data []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	l.sent = append(l.sent, buf)
	return nil
}

func (l *recordingLink) Close() error { return nil }
func (l *recordingLink) Closed() bool { return false }

func (l *recordingLink) requests(t *testing.T) []relay.Request {
	t.Helper()
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]relay.Request, 0, len(l.sent))
	for _, raw := range l.sent {
		var req relay.Request
		require.NoError(t, json.Unmarshal(raw, &req))
		out = append(out, req)
	}
	return out
}

// readyChannel builds a relay channel already past its handshake, backed by
// a link that records every request.
func readyChannel(t *testing.T) (*relay.Channel, *recordingLink) {
	t.Helper()
	link := &recordingLink{}
	var deliver func([]byte)
	opener := func(host string, port int, onMessage func([]byte), onClosed func()) (relay.MessageChannel, error) {
		deliver = onMessage
		return link, nil
	}
	ch := relay.NewChannel("localhost", 8080, opener, nil, relay.Callbacks{})
	ch.Connect()
	deliver([]byte(`{"a":"init"}`))
	require.True(t, ch.Ready())
	link.mu.Lock()
	link.sent = nil // drop the handshake ack
	link.mu.Unlock()
	return ch, link
}

func serialConfig() models.PrinterConfig {
	return models.PrinterConfig{
		ReceiptMethod: models.MethodRelayRaw,
		RecType:       models.RecTypeSerial,
		RecPort:       "COM3",
		RecSerial:     models.SerialSettings{Baud: 9600, DataBits: 8, StopBits: 1, Parity: "none", Flow: "none"},
		CashDrawer:    true,
	}
}

func TestSerialPrintOpensPortFirst(t *testing.T) {
	ch, link := readyChannel(t)
	tr := NewRelayAgent(models.MethodRelayRaw, serialConfig(), ch, nopLogger{})

	ok := tr.PrintReceipt(Document{Bytes: []byte("receipt bytes")})
	assert.True(t, ok)

	reqs := link.requests(t)
	require.Len(t, reqs, 2)
	assert.Equal(t, relay.ActionOpenPort, reqs[0].A)
	assert.Equal(t, "COM3", reqs[0].Port)
	require.NotNil(t, reqs[0].Settings)
	assert.Equal(t, 9600, reqs[0].Settings.Baud)
	assert.Equal(t, relay.ActionPrintRaw, reqs[1].A)
	assert.Equal(t, "COM3", reqs[1].Port)

	decoded, err := base64.StdEncoding.DecodeString(reqs[1].Data)
	require.NoError(t, err)
	assert.Equal(t, []byte("receipt bytes"), decoded)
}

func TestSerialPortOpenedOnce(t *testing.T) {
	ch, link := readyChannel(t)
	tr := NewRelayAgent(models.MethodRelayRaw, serialConfig(), ch, nopLogger{})

	tr.PrintReceipt(Document{Bytes: []byte("first")})
	tr.PrintReceipt(Document{Bytes: []byte("second")})

	opens := 0
	for _, req := range link.requests(t) {
		if req.A == relay.ActionOpenPort {
			opens++
		}
	}
	assert.Equal(t, 1, opens)
}

func TestRawPrintTargetsPrinter(t *testing.T) {
	ch, link := readyChannel(t)
	cfg := models.PrinterConfig{
		ReceiptMethod: models.MethodRelayRaw,
		RecType:       models.RecTypeRaw,
		RecPrinter:    "EPSON TM-T20",
	}
	tr := NewRelayAgent(models.MethodRelayRaw, cfg, ch, nopLogger{})

	require.True(t, tr.PrintReceipt(Document{Bytes: []byte("raw job")}))

	reqs := link.requests(t)
	require.Len(t, reqs, 1)
	assert.Equal(t, relay.ActionPrintRaw, reqs[0].A)
	assert.Equal(t, "EPSON TM-T20", reqs[0].Printer)
	assert.Empty(t, reqs[0].Port)
}

func TestCashDrawerGating(t *testing.T) {
	tests := []struct {
		name string
		cfg  models.PrinterConfig
		want bool
	}{
		{"eligible", serialConfig(), true},
		{"drawer flag off", func() models.PrinterConfig {
			c := serialConfig()
			c.CashDrawer = false
			return c
		}(), false},
		{"no target", models.PrinterConfig{
			ReceiptMethod: models.MethodRelayRaw,
			RecType:       models.RecTypeRaw,
			CashDrawer:    true,
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch, link := readyChannel(t)
			tr := NewRelayAgent(models.MethodRelayRaw, tt.cfg, ch, nopLogger{})
			got := tr.OpenCashDrawer()
			assert.Equal(t, tt.want, got)
			if !tt.want {
				assert.Empty(t, link.requests(t))
			}
		})
	}
}

func TestCashDrawerSendsPulse(t *testing.T) {
	ch, link := readyChannel(t)
	tr := NewRelayAgent(models.MethodRelayRaw, serialConfig(), ch, nopLogger{})

	require.True(t, tr.OpenCashDrawer())

	reqs := link.requests(t)
	last := reqs[len(reqs)-1]
	decoded, err := base64.StdEncoding.DecodeString(last.Data)
	require.NoError(t, err)
	assert.Equal(t, escpos.DrawerKick(), decoded)
}

func TestBrowserCannotOpenDrawer(t *testing.T) {
	b := NewBrowser(func() (PrintSurface, error) { return nil, nil }, nopLogger{})
	assert.False(t, b.OpenCashDrawer())
}

type fakeSurface struct {
	mu     sync.Mutex
	markup string
	closed bool
	done   chan struct{}
}

func (s *fakeSurface) Print(markup string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markup = markup
	return nil
}

func (s *fakeSurface) Done() <-chan struct{} { return s.done }

func (s *fakeSurface) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func TestBrowserPrintsMarkup(t *testing.T) {
	surface := &fakeSurface{}
	b := NewBrowser(func() (PrintSurface, error) { return surface, nil }, nopLogger{})

	ok := b.PrintReceipt(Document{Markup: "<html>receipt</html>"})
	assert.True(t, ok)

	surface.mu.Lock()
	defer surface.mu.Unlock()
	assert.Equal(t, "<html>receipt</html>", surface.markup)
	assert.False(t, surface.closed)
}

func TestResolverPlatformGating(t *testing.T) {
	browser := NewBrowser(func() (PrintSurface, error) { return &fakeSurface{}, nil }, nopLogger{})
	relays := func(kind string, cfg models.PrinterConfig) *RelayTransport {
		ch, _ := readyChannel(t)
		return NewRelayAgent(kind, cfg, ch, nopLogger{})
	}

	desktop := NewResolver(models.Platform{}, browser, relays)
	assert.ElementsMatch(t, []string{
		models.MethodBrowser, models.MethodLegacyApplet, models.MethodRelayRaw,
	}, desktop.Methods())

	mobile := NewResolver(models.Platform{Mobile: true}, browser, relays)
	assert.Equal(t, []string{models.MethodBrowser}, mobile.Methods())

	android := NewResolver(models.Platform{Mobile: true, Android: true}, browser, relays)
	assert.ElementsMatch(t, []string{
		models.MethodBrowser, models.MethodRelayHTTP,
	}, android.Methods())
}

func TestResolverFallsBackAndRejects(t *testing.T) {
	browser := NewBrowser(func() (PrintSurface, error) { return &fakeSurface{}, nil }, nopLogger{})
	relays := func(kind string, cfg models.PrinterConfig) *RelayTransport {
		ch, _ := readyChannel(t)
		return NewRelayAgent(kind, cfg, ch, nopLogger{})
	}
	mobile := NewResolver(models.Platform{Mobile: true}, browser, relays)

	tr, err := mobile.Resolve(models.PrinterConfig{}, DocumentReceipt)
	require.NoError(t, err)
	assert.Equal(t, models.MethodBrowser, tr.Kind())

	_, err = mobile.Resolve(models.PrinterConfig{ReceiptMethod: models.MethodRelayRaw}, DocumentReceipt)
	assert.ErrorIs(t, err, ErrTransportUnavailable)
}

func TestResolverSeparatesDocumentKind(t *testing.T) {
	browser := NewBrowser(func() (PrintSurface, error) { return &fakeSurface{}, nil }, nopLogger{})
	relays := func(kind string, cfg models.PrinterConfig) *RelayTransport {
		ch, _ := readyChannel(t)
		return NewRelayAgent(kind, cfg, ch, nopLogger{})
	}
	desktop := NewResolver(models.Platform{}, browser, relays)

	cfg := models.PrinterConfig{
		ReceiptMethod: models.MethodRelayRaw,
		DocMethod:     models.MethodBrowser,
		RecType:       models.RecTypeRaw,
		RecPrinter:    "Receipt",
	}

	rec, err := desktop.Resolve(cfg, DocumentReceipt)
	require.NoError(t, err)
	assert.Equal(t, models.MethodRelayRaw, rec.Kind())

	doc, err := desktop.Resolve(cfg, DocumentReport)
	require.NoError(t, err)
	assert.Equal(t, models.MethodBrowser, doc.Kind())
}
