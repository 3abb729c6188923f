package transport

import (
	"fmt"

	"PosPrint/app/models"
)

// PrintSurface is a transient output window the browser transport prints
// through. Done returns a channel closed when the host signals that
// printing finished, or nil when no such signal exists; in that case the
// surface is left open for the operator to close.
type PrintSurface interface {
	Print(markup string) error
	Done() <-chan struct{}
	Close() error
}

// SurfaceOpener opens a fresh print surface per document.
type SurfaceOpener func() (PrintSurface, error)

// Browser prints markup through the host's print dialog. It cannot carry
// raw printer bytes, so cash-drawer and byte jobs are refused.
type Browser struct {
	open   SurfaceOpener
	logger Logger
}

// NewBrowser builds the browser transport around a surface opener.
func NewBrowser(open SurfaceOpener, logger Logger) *Browser {
	return &Browser{open: open, logger: logger}
}

func (b *Browser) Kind() string      { return models.MethodBrowser }
func (b *Browser) ByteCapable() bool { return false }

func (b *Browser) PrintReceipt(doc Document) bool {
	return b.printMarkup(doc.Markup)
}

func (b *Browser) PrintDocument(doc Document) bool {
	return b.printMarkup(doc.Markup)
}

func (b *Browser) TestPrint(doc Document) bool {
	return b.printMarkup(doc.Markup)
}

// OpenCashDrawer always fails for the browser; there is no byte path to a
// drawer kick.
func (b *Browser) OpenCashDrawer() bool {
	return false
}

func (b *Browser) printMarkup(markup string) bool {
	if markup == "" {
		b.logger.LogWarning("Browser print skipped", "empty document markup")
		return false
	}
	surface, err := b.open()
	if err != nil {
		b.logger.LogError("Failed to open print surface", err)
		return false
	}
	if err := surface.Print(markup); err != nil {
		b.logger.LogError("Browser print failed", err)
		surface.Close()
		return false
	}
	if done := surface.Done(); done != nil {
		go func() {
			<-done
			if err := surface.Close(); err != nil {
				b.logger.LogWarning("Failed to close print surface", fmt.Sprintf("%v", err))
			}
		}()
	}
	return true
}
