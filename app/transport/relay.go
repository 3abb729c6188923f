package transport

import (
	"sync"

	"PosPrint/app/escpos"
	"PosPrint/app/models"
	"PosPrint/app/relay"
)

// RelayTransport drives a printer through a relay channel. The same
// protocol shape serves three methods: the relay agent in serial or raw
// mode and the deprecated local applet, which only differ in the transport
// identifier and target fields.
type RelayTransport struct {
	kind   string
	cfg    models.PrinterConfig
	ch     *relay.Channel
	logger Logger

	mu         sync.Mutex
	openedPort string
}

// NewRelayAgent builds the relay-agent transport for the configured method
// (relayRaw or relayHttp).
func NewRelayAgent(kind string, cfg models.PrinterConfig, ch *relay.Channel, logger Logger) *RelayTransport {
	return &RelayTransport{kind: kind, cfg: cfg, ch: ch, logger: logger}
}

// NewLegacyApplet builds the deprecated applet transport. It shares the
// relay request shape but answers to its own identifier so the resolver
// and settings UI can tell them apart.
func NewLegacyApplet(cfg models.PrinterConfig, ch *relay.Channel, logger Logger) *RelayTransport {
	return &RelayTransport{kind: models.MethodLegacyApplet, cfg: cfg, ch: ch, logger: logger}
}

func (t *RelayTransport) Kind() string      { return t.kind }
func (t *RelayTransport) ByteCapable() bool { return true }

// Channel exposes the underlying relay channel for port/printer listing.
func (t *RelayTransport) Channel() *relay.Channel { return t.ch }

func (t *RelayTransport) PrintReceipt(doc Document) bool {
	return t.sendBytes(doc.Bytes)
}

func (t *RelayTransport) TestPrint(doc Document) bool {
	return t.sendBytes(doc.Bytes)
}

// PrintDocument sends rendered markup to the configured document printer
// for driver-level printing.
func (t *RelayTransport) PrintDocument(doc Document) bool {
	if t.cfg.DocPrinter == "" {
		t.logger.LogWarning("Document print skipped", "no document printer configured")
		return false
	}
	if err := t.ch.PrintHTML(doc.Markup, t.cfg.DocPrinter); err != nil {
		t.logger.LogError("Failed to send document to relay", err)
		return false
	}
	return true
}

// OpenCashDrawer sends the drawer pulse through the normal print path.
// It refuses unless a target device is configured and the drawer flag is
// set.
func (t *RelayTransport) OpenCashDrawer() bool {
	if !t.cfg.CashDrawer || !t.cfg.HasTarget() {
		return false
	}
	return t.sendBytes(escpos.DrawerKick())
}

// sendBytes routes raw printer bytes to the configured target. Serial mode
// opens the port with the configured parameters before the first send; raw
// mode targets the named printer directly.
func (t *RelayTransport) sendBytes(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	if t.cfg.RecType == models.RecTypeSerial {
		if t.cfg.RecPort == "" {
			t.logger.LogWarning("Receipt print skipped", "no serial port configured")
			return false
		}
		if !t.ensurePortOpen() {
			return false
		}
		if err := t.ch.PrintSerial(data, t.cfg.RecPort); err != nil {
			t.logger.LogError("Failed to send bytes to serial port", err, t.cfg.RecPort)
			return false
		}
		return true
	}

	if t.cfg.RecPrinter == "" {
		t.logger.LogWarning("Receipt print skipped", "no printer configured")
		return false
	}
	if err := t.ch.PrintRaw(data, t.cfg.RecPrinter); err != nil {
		t.logger.LogError("Failed to send bytes to printer", err, t.cfg.RecPrinter)
		return false
	}
	return true
}

func (t *RelayTransport) ensurePortOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.openedPort == t.cfg.RecPort {
		return true
	}
	if err := t.ch.OpenPort(t.cfg.RecPort, t.cfg.RecSerial); err != nil {
		t.logger.LogError("Failed to open serial port", err, t.cfg.RecPort)
		return false
	}
	t.openedPort = t.cfg.RecPort
	return true
}
