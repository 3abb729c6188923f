package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"PosPrint/app/database"
	"PosPrint/app/escpos"
	"PosPrint/app/models"
	"PosPrint/app/receipt"
	"PosPrint/app/relay"
	"PosPrint/app/transport"
)

// PrintService is the outward printing API. It owns the print context:
// the configuration snapshot, document builder, relay channels, and the
// transports resolved for the current settings. Print calls report failure
// as a boolean so the sale workflow is never halted by a dead printer.
type PrintService struct {
	settings *SettingsService
	sales    *SalesService
	localDB  *database.LocalDB
	logger   *LoggerService

	surfaces transport.SurfaceOpener
	opener   relay.Opener

	// OnInstallPrompt fires when the relay companion cannot be reached and
	// the operator should be asked to install or start it.
	OnInstallPrompt func()

	// OnRelayPrinters and OnRelayPorts deliver the companion's answers to
	// RequestRelayPrinters / RequestRelayPorts.
	OnRelayPrinters func([]string)
	OnRelayPorts    func([]string)

	mu  sync.Mutex
	ctx *printContext
}

// printContext is the state derived from one LoadPrintSettings call.
type printContext struct {
	printer  models.PrinterConfig
	builder  *receipt.Builder
	resolver *transport.Resolver
	channels map[string]*relay.Channel
	receiptT transport.PrintTransport
	docT     transport.PrintTransport
}

// NewPrintService creates the print service. surfaces opens browser print
// surfaces; opener dials relay channels (nil selects the WebSocket dialer).
func NewPrintService(settings *SettingsService, sales *SalesService, localDB *database.LocalDB,
	logger *LoggerService, surfaces transport.SurfaceOpener, opener relay.Opener) *PrintService {
	if opener == nil {
		opener = relay.NewWindowOpener()
	}
	return &PrintService{
		settings: settings,
		sales:    sales,
		localDB:  localDB,
		logger:   logger,
		surfaces: surfaces,
		opener:   opener,
	}
}

// LoadPrintSettings re-reads the configuration and re-derives the active
// transports. Must be called once before printing and again after settings
// change.
func (s *PrintService) LoadPrintSettings() error {
	if err := s.settings.Load(); err != nil {
		return err
	}

	shop, err := s.settings.ShopConfig()
	if err != nil {
		s.logger.LogWarning("Shop config unavailable, using defaults", err.Error())
		shop = &models.ShopConfig{BizName: "Receipt"}
	}

	printer := s.settings.PrinterConfig()
	builder := receipt.NewBuilder(shop, s.settings.TaxLookup(), nil)
	builder.EftposReceipts = printer.EftposReceipts

	ctx := &printContext{
		printer:  printer,
		builder:  builder,
		channels: make(map[string]*relay.Channel),
	}

	browser := transport.NewBrowser(s.surfaces, s.logger)
	ctx.resolver = transport.NewResolver(s.settings.Platform(), browser,
		func(kind string, cfg models.PrinterConfig) *transport.RelayTransport {
			ch := s.channelFor(ctx, kind, cfg)
			if kind == models.MethodLegacyApplet {
				return transport.NewLegacyApplet(cfg, ch, s.logger)
			}
			return transport.NewRelayAgent(kind, cfg, ch, s.logger)
		})

	ctx.receiptT, err = ctx.resolver.Resolve(printer, transport.DocumentReceipt)
	if err != nil {
		s.logger.LogError("Receipt transport unavailable, falling back to browser", err)
		ctx.receiptT = browser
	}
	ctx.docT, err = ctx.resolver.Resolve(printer, transport.DocumentReport)
	if err != nil {
		s.logger.LogError("Document transport unavailable, falling back to browser", err)
		ctx.docT = browser
	}

	s.mu.Lock()
	old := s.ctx
	s.ctx = ctx
	s.mu.Unlock()

	if old != nil {
		for _, ch := range old.channels {
			ch.Close()
		}
	}

	s.logger.LogInfo("Print settings loaded",
		fmt.Sprintf("receipt=%s document=%s", ctx.receiptT.Kind(), ctx.docT.Kind()))
	return nil
}

// channelFor returns the relay channel for a transport kind, sharing one
// channel per companion endpoint. The applet listens on the loopback
// interface; the relay agent lives at the configured host, discovered over
// mDNS when none is set.
func (s *PrintService) channelFor(ctx *printContext, kind string, cfg models.PrinterConfig) *relay.Channel {
	host := cfg.RelayHost
	port := cfg.RelayPort
	if kind == models.MethodLegacyApplet {
		host = "localhost"
	}
	if host == "" {
		found, foundPort, err := relay.DiscoverAgent(context.Background(), 3*time.Second)
		if err != nil {
			s.logger.LogWarning("No relay host configured and discovery failed", err.Error())
			host = "localhost"
		} else {
			s.logger.LogInfo("Discovered print agent", fmt.Sprintf("%s:%d", found, foundPort))
			host, port = found, foundPort
		}
	}

	key := fmt.Sprintf("%s:%d", host, port)
	if ch, ok := ctx.channels[key]; ok {
		return ch
	}

	policy := relay.ResendAtLeastOnce
	if s.settings.ExactlyOnce() {
		policy = relay.ResendExactlyOnce
	}
	ch := relay.NewChannel(host, port, s.opener, s.settings, relay.Callbacks{
		OnReady: func() {
			s.logger.LogInfo("Relay channel ready", key)
		},
		OnPrinters: func(printers []string) {
			if s.OnRelayPrinters != nil {
				s.OnRelayPrinters(printers)
			}
		},
		OnPorts: func(ports []string) {
			if s.OnRelayPorts != nil {
				s.OnRelayPorts(ports)
			}
		},
		OnError: func(err error) {
			s.logger.LogError("Relay channel error", err, key)
		},
		OnInstallPrompt: func() {
			s.logger.LogWarning("Print agent unreachable", key)
			if s.OnInstallPrompt != nil {
				s.OnInstallPrompt()
			}
		},
	}, relay.WithResendPolicy(policy))
	ctx.channels[key] = ch
	return ch
}

func (s *PrintService) current() *printContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

// PrintReceipt prints the receipt for a stored transaction reference.
func (s *PrintService) PrintReceipt(ref string) bool {
	ctx := s.current()
	if ctx == nil {
		s.logger.LogWarning("Print settings not loaded")
		return false
	}

	rec, err := s.sales.GetTransactionRecord(ref)
	if err != nil {
		s.logger.LogError("Cannot print receipt", err, ref)
		return false
	}

	if ctx.receiptT.ByteCapable() {
		ok := true
		ctx.builder.ComposeEscp(rec, func(data []byte) bool {
			sent := ctx.receiptT.PrintReceipt(transport.Document{Bytes: data})
			s.localDB.LogPrint(ref, ctx.receiptT.Kind(), "receipt", sent, nil)
			ok = sent
			return sent
		})
		return ok
	}

	markup := receipt.PageDocument("Receipt "+ref, ctx.builder.BuildHTML(rec))
	sent := ctx.receiptT.PrintReceipt(transport.Document{Markup: markup})
	s.localDB.LogPrint(ref, ctx.receiptT.Kind(), "receipt", sent, nil)
	return sent
}

// PrintArbitraryText prints plain text through the receipt printer.
func (s *PrintService) PrintArbitraryText(text string) bool {
	ctx := s.current()
	if ctx == nil {
		return false
	}

	if ctx.receiptT.ByteCapable() {
		data := []byte(escpos.Init + escpos.AlignLeft + text + receipt.Trailer)
		sent := ctx.receiptT.PrintReceipt(transport.Document{Bytes: data})
		s.localDB.LogPrint("", ctx.receiptT.Kind(), "text", sent, nil)
		return sent
	}

	markup := receipt.PageDocument("Print", "<pre>"+text+"</pre>")
	sent := ctx.receiptT.PrintReceipt(transport.Document{Markup: markup})
	s.localDB.LogPrint("", ctx.receiptT.Kind(), "text", sent, nil)
	return sent
}

// PrintCurrentReportDocument prints rendered report markup through the
// document transport.
func (s *PrintService) PrintCurrentReportDocument(reportHTML string) bool {
	ctx := s.current()
	if ctx == nil {
		return false
	}

	markup := ctx.builder.BuildReportDocument(reportHTML)
	sent := ctx.docT.PrintDocument(transport.Document{Markup: markup})
	s.localDB.LogPrint("", ctx.docT.Kind(), "document", sent, nil)
	return sent
}

// OpenCashDrawer sends the drawer pulse. With silent set, an ineligible or
// failed attempt is logged and swallowed; otherwise the caller gets the
// failure to surface to the operator.
func (s *PrintService) OpenCashDrawer(silent bool) bool {
	ctx := s.current()
	if ctx == nil {
		return false
	}

	ok := ctx.receiptT.OpenCashDrawer()
	if !ok && !silent {
		s.logger.LogWarning("Cash drawer could not be opened",
			fmt.Sprintf("method=%s", ctx.receiptT.Kind()))
	}
	s.localDB.LogPrint("", ctx.receiptT.Kind(), "drawer", ok, nil)
	return ok
}

// TestReceiptPrinter prints a header-only test page on the receipt printer.
func (s *PrintService) TestReceiptPrinter() bool {
	ctx := s.current()
	if ctx == nil {
		return false
	}

	if ctx.receiptT.ByteCapable() {
		ok := true
		ctx.builder.ComposeTestPage(func(data []byte) bool {
			sent := ctx.receiptT.TestPrint(transport.Document{Bytes: data})
			s.localDB.LogPrint("", ctx.receiptT.Kind(), "test", sent, nil)
			ok = sent
			return sent
		})
		return ok
	}

	markup := receipt.PageDocument("Test Page", "<h3>Receipt printer test</h3>")
	sent := ctx.receiptT.TestPrint(transport.Document{Markup: markup})
	s.localDB.LogPrint("", ctx.receiptT.Kind(), "test", sent, nil)
	return sent
}

// AvailableMethods lists the print methods supported on this platform.
func (s *PrintService) AvailableMethods() []string {
	ctx := s.current()
	if ctx == nil {
		return []string{models.MethodBrowser}
	}
	return ctx.resolver.Methods()
}

// RequestRelayPrinters asks the relay companion for its printer names; the
// answer arrives through the relay callbacks.
func (s *PrintService) RequestRelayPrinters() error {
	ctx := s.current()
	if ctx == nil {
		return fmt.Errorf("print settings not loaded")
	}
	rt, ok := ctx.receiptT.(*transport.RelayTransport)
	if !ok {
		return fmt.Errorf("active transport has no relay channel")
	}
	return rt.Channel().RequestPrinters()
}

// RequestRelayPorts asks the relay companion for its serial port names.
func (s *PrintService) RequestRelayPorts() error {
	ctx := s.current()
	if ctx == nil {
		return fmt.Errorf("print settings not loaded")
	}
	rt, ok := ctx.receiptT.(*transport.RelayTransport)
	if !ok {
		return fmt.Errorf("active transport has no relay channel")
	}
	return rt.Channel().RequestPorts()
}

// Close tears down the relay channels.
func (s *PrintService) Close() {
	s.mu.Lock()
	ctx := s.ctx
	s.ctx = nil
	s.mu.Unlock()
	if ctx != nil {
		for _, ch := range ctx.channels {
			ch.Close()
		}
	}
}
