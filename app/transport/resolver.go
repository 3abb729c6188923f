package transport

import (
	"errors"
	"fmt"

	"PosPrint/app/models"
)

// ErrTransportUnavailable means no viable transport exists for the current
// configuration and platform.
var ErrTransportUnavailable = errors.New("transport: no viable transport for this configuration")

// DocumentKind distinguishes receipt jobs from report/document jobs, which
// may resolve to different transports.
type DocumentKind int

const (
	DocumentReceipt DocumentKind = iota
	DocumentReport
)

// Resolver gates the configured print methods by platform and hands out
// transports. It holds no business logic beyond option gating.
type Resolver struct {
	platform models.Platform
	browser  *Browser
	relays   func(kind string, cfg models.PrinterConfig) *RelayTransport
}

// NewResolver builds a resolver over the given platform. browser is the
// markup fallback; relays constructs a byte transport for a given method,
// letting the caller share one relay channel across kinds.
func NewResolver(platform models.Platform, browser *Browser, relays func(kind string, cfg models.PrinterConfig) *RelayTransport) *Resolver {
	return &Resolver{platform: platform, browser: browser, relays: relays}
}

// Supported reports whether a print method is usable on this platform.
// The applet and relay options need a desktop-class host; the raw-HTTP
// relay additionally requires an Android host.
func (r *Resolver) Supported(method string) bool {
	switch method {
	case models.MethodBrowser:
		return true
	case models.MethodLegacyApplet, models.MethodRelayRaw:
		return !r.platform.Mobile
	case models.MethodRelayHTTP:
		return r.platform.Android
	default:
		return false
	}
}

// Methods lists the print methods available on this platform, for the
// settings surface.
func (r *Resolver) Methods() []string {
	all := []string{
		models.MethodBrowser,
		models.MethodLegacyApplet,
		models.MethodRelayRaw,
		models.MethodRelayHTTP,
	}
	out := make([]string, 0, len(all))
	for _, m := range all {
		if r.Supported(m) {
			out = append(out, m)
		}
	}
	return out
}

// Resolve returns the transport for a document kind under the given
// configuration.
func (r *Resolver) Resolve(cfg models.PrinterConfig, kind DocumentKind) (PrintTransport, error) {
	method := cfg.ReceiptMethod
	if kind == DocumentReport {
		method = cfg.DocMethod
	}
	if method == "" {
		method = models.MethodBrowser
	}
	if !r.Supported(method) {
		return nil, fmt.Errorf("%w: method %q on this platform", ErrTransportUnavailable, method)
	}
	switch method {
	case models.MethodBrowser:
		return r.browser, nil
	default:
		return r.relays(method, cfg), nil
	}
}
