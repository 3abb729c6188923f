package receipt

import (
	"fmt"
	"log"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"PosPrint/app/escpos"
	"PosPrint/app/models"

	"github.com/skip2/go-qrcode"
)

// Trailer feeds the paper clear of the cutter and cuts.
const Trailer = "\n\n\n\n" + escpos.Cut + "\r"

// TaxLookup resolves a tax line id from a receipt record to its display
// name and percent rate.
type TaxLookup func(key string) (name string, percent float64, ok bool)

// Builder assembles receipt records into printable documents. The record is
// borrowed read-only; the same section ordering is produced by the ESC/P
// and HTML renderers.
type Builder struct {
	shop    *models.ShopConfig
	taxes   TaxLookup
	fetcher ImageFetcher

	// EftposReceipts includes embedded payment-terminal receipts when set.
	EftposReceipts bool
}

// NewBuilder creates a document builder for the given shop configuration.
func NewBuilder(shop *models.ShopConfig, taxes TaxLookup, fetcher ImageFetcher) *Builder {
	if fetcher == nil {
		fetcher = NewHTTPFetcher()
	}
	return &Builder{shop: shop, taxes: taxes, fetcher: fetcher}
}

func (b *Builder) money(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

func (b *Builder) cur() string {
	if b.shop.CurrencySymbol == "" {
		return "$"
	}
	return b.shop.CurrencySymbol
}

func capFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func formatTimestamp(ms int64) string {
	return time.UnixMilli(ms).Format("2006-01-02 15:04:05")
}

// taxLabel renders "Name (rate%)" for a tax line id.
func (b *Builder) taxLabel(key string) string {
	if b.taxes != nil {
		if name, percent, ok := b.taxes(key); ok {
			return fmt.Sprintf("%s (%s%%)", name, strconv.FormatFloat(percent, 'f', -1, 64))
		}
	}
	return key
}

// sortedTaxKeys returns the tax line ids in a stable order.
func sortedTaxKeys(taxdata map[string]float64) []string {
	keys := make([]string, 0, len(taxdata))
	for k := range taxdata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// totalLabel renders the grand total label with item count agreement.
func totalLabel(numItems int) string {
	if numItems > 1 {
		return fmt.Sprintf("Total (%d items):", numItems)
	}
	return fmt.Sprintf("Total (%d item):", numItems)
}

// discountValue derives the discount amount from the record totals rather
// than recomputing subtotal * percent, matching how the totals were
// produced at sale time.
func discountValue(rec *models.ReceiptRecord) float64 {
	return math.Abs(rec.Total - (rec.Subtotal + rec.Tax))
}

// latestRefund returns the refund with the maximum timestamp; it sources
// the embedded terminal receipt when one is attached.
func latestRefund(refunds []models.RefundRecord) *models.RefundRecord {
	if len(refunds) == 0 {
		return nil
	}
	latest := &refunds[0]
	for i := range refunds {
		if refunds[i].ProcessDT > latest.ProcessDT {
			latest = &refunds[i]
		}
	}
	return latest
}

// EscpHeader renders the business name and address/slogan lines with the
// printer initialized and centered.
func (b *Builder) EscpHeader() string {
	header := escpos.Init + escpos.AlignCenter + escpos.DoubleSize + b.shop.BizName + "\n" + escpos.FontReset +
		escpos.BoldOn + b.shop.RecLine2 + "\n"
	if b.shop.RecLine3 != "" {
		header += b.shop.RecLine3 + "\n"
	}
	header += "\n" + escpos.BoldOff
	return header
}

// BuildEscp renders the receipt body as an ESC/P byte stream. The trailer
// (feed + cut) is appended by the dispatch path after optional QR artwork.
func (b *Builder) BuildEscp(rec *models.ReceiptRecord) []byte {
	cur := b.cur()
	var cmd strings.Builder
	cmd.WriteString(b.EscpHeader())

	cmd.WriteString(escpos.AlignLeft + "Transaction Ref: " + rec.Ref + "\n")
	cmd.WriteString("Sale Time:       " + formatTimestamp(rec.ProcessDT) + "\n\n")

	for _, item := range rec.Items {
		left := fmt.Sprintf("%d x %s (%s%s)", item.Qty, item.Name, cur, b.money(item.Unit))
		cmd.WriteString(escpos.LayoutRow(left, cur+b.money(item.Price), false, false))
	}
	cmd.WriteString("\n")

	if len(rec.TaxData) > 0 || rec.Discount > 0 {
		cmd.WriteString(escpos.LayoutRow("Subtotal:", cur+b.money(rec.Subtotal), true, false))
	}
	for _, key := range sortedTaxKeys(rec.TaxData) {
		cmd.WriteString(escpos.LayoutRow(b.taxLabel(key), cur+b.money(rec.TaxData[key]), false, false))
	}
	if rec.Discount > 0 {
		label := strconv.FormatFloat(rec.Discount, 'f', -1, 64) + "% Discount"
		cmd.WriteString(escpos.LayoutRow(label, cur+b.money(discountValue(rec)), false, false))
	}
	cmd.WriteString(escpos.LayoutRow(totalLabel(rec.NumItems), cur+b.money(rec.Total), true, true))

	paymentReceipts := ""
	for _, p := range rec.Payments {
		method, amount := p.Method, p.Amount
		if p.PayData != nil {
			if p.PayData.CustomerReceipt != "" {
				paymentReceipts += p.PayData.CustomerReceipt + "\n"
			}
			if p.PayData.CashOut {
				method = "cashout"
				amount = -amount
			}
		}
		cmd.WriteString(escpos.LayoutRow(capFirst(method)+":", cur+b.money(amount), false, false))
		if method == "cash" {
			cmd.WriteString(escpos.LayoutRow("Tendered:", cur+b.money(p.Tender), false, false))
			cmd.WriteString(escpos.LayoutRow("Change:", cur+b.money(p.Change), false, false))
		}
	}
	cmd.WriteString("\n")

	if rec.HasRefunds() {
		cmd.WriteString(escpos.AlignCenter + escpos.BoldOn + "Refund" + escpos.FontReset + "\n")
		for _, ref := range rec.Refunds {
			left := fmt.Sprintf("%s (%d items)", formatTimestamp(ref.ProcessDT), len(ref.Items))
			right := fmt.Sprintf("%s     %s%s", capFirst(ref.Method), cur, b.money(ref.Amount))
			cmd.WriteString(escpos.LayoutRow(left, right, false, false))
		}
		cmd.WriteString("\n")
		if last := latestRefund(rec.Refunds); last.PayData != nil && last.PayData.CustomerReceipt != "" {
			paymentReceipts = last.PayData.CustomerReceipt + "\n"
		}
	}

	if rec.IsVoid() {
		cmd.WriteString(escpos.AlignCenter + escpos.DoubleSize + escpos.BoldOn + "VOID TRANSACTION" + escpos.FontReset + "\n")
		cmd.WriteString("\n")
	}

	if paymentReceipts != "" && b.EftposReceipts {
		cmd.WriteString(escpos.AlignCenter + paymentReceipts)
	}

	cmd.WriteString(escpos.BoldOn + escpos.AlignCenter + b.shop.RecFooter + escpos.FontReset + "\r")
	return []byte(cmd.String())
}

// BuildHTML renders the receipt for the browser transport. Section order
// matches BuildEscp.
func (b *Builder) BuildHTML(rec *models.ReceiptRecord) string {
	cur := b.cur()
	var html strings.Builder
	html.WriteString(`<div style="padding-left: 5px; padding-right: 5px; text-align: center;">`)
	if b.shop.EmailLogoURL != "" {
		html.WriteString(`<img style="width: 260px;" src="` + b.shop.EmailLogoURL + `"/><br/>`)
	}
	html.WriteString(`<h3 style="text-align: center; margin: 5px;">` + b.shop.BizName + `</h3>`)
	html.WriteString(`<p style="text-align: center"><strong>` + b.shop.RecLine2 + `</strong>`)
	if b.shop.RecLine3 != "" {
		html.WriteString(`<br/><strong style="text-align: center">` + b.shop.RecLine3 + `</strong>`)
	}
	html.WriteString(`</p>`)

	html.WriteString(`<p style="padding-top: 5px;">Transaction Ref:&nbsp;&nbsp;` + rec.Ref + `<br/>`)
	html.WriteString(`Sale Time:&nbsp;&nbsp;` + formatTimestamp(rec.ProcessDT) + `</p>`)

	html.WriteString(`<table style="width: 100%; margin-bottom: 4px; font-size: 13px;">`)
	for _, item := range rec.Items {
		left := fmt.Sprintf("%dx %s (%s%s)", item.Qty, item.Name, cur, b.money(item.Unit))
		html.WriteString(`<tr><td>` + left + `</td><td style="text-align: right;">` + cur + b.money(item.Price) + `</td></tr>`)
	}
	html.WriteString(`<tr style="height: 5px;"><td></td><td></td></tr>`)

	if len(rec.TaxData) > 0 || rec.Discount > 0 {
		html.WriteString(`<tr><td><b>Subtotal: </b></td><td style="text-align: right;"><b style="text-decoration: overline;">` +
			cur + b.money(rec.Subtotal) + `</b></td></tr>`)
	}
	for _, key := range sortedTaxKeys(rec.TaxData) {
		html.WriteString(`<tr><td>` + b.taxLabel(key) + `:</td><td style="text-align: right;">` + cur + b.money(rec.TaxData[key]) + `</td></tr>`)
	}
	if rec.Discount > 0 {
		label := strconv.FormatFloat(rec.Discount, 'f', -1, 64) + "% Discount"
		html.WriteString(`<tr><td>` + label + `</td><td style="text-align: right;">` + cur + b.money(discountValue(rec)) + `</td></tr>`)
	}
	html.WriteString(`<tr><td><b>` + totalLabel(rec.NumItems) + ` </b></td><td style="text-align: right;"><b style="text-decoration: overline;">` +
		cur + b.money(rec.Total) + `</b></td></tr>`)
	html.WriteString(`<tr style="height: 2px;"><td></td><td></td></tr>`)

	paymentReceipts := ""
	for _, p := range rec.Payments {
		method, amount := p.Method, p.Amount
		if p.PayData != nil {
			if p.PayData.CustomerReceipt != "" {
				paymentReceipts += p.PayData.CustomerReceipt
			}
			if p.PayData.CashOut {
				method = "cashout"
				amount = -amount
			}
		}
		html.WriteString(`<tr><td>` + capFirst(method) + `:</td><td style="text-align: right;">` + cur + b.money(amount) + `</td></tr>`)
		if method == "cash" {
			html.WriteString(`<tr><td>Tendered:</td><td style="text-align: right;">` + cur + b.money(p.Tender) + `</td></tr>`)
			html.WriteString(`<tr><td>Change:</td><td style="text-align: right;">` + cur + b.money(p.Change) + `</td></tr>`)
		}
	}
	html.WriteString(`</table>`)

	if rec.HasRefunds() {
		html.WriteString(`<p style="margin-top: 0px; margin-bottom: 5px; font-size: 13px;"><strong>Refund</strong></p>` +
			`<table style="width: 100%; font-size: 13px;">`)
		for _, ref := range rec.Refunds {
			html.WriteString(`<tr><td>` + formatTimestamp(ref.ProcessDT) + ` (` + strconv.Itoa(len(ref.Items)) + ` items)</td>` +
				`<td><p style="font-size: 13px; display: inline-block;">` + capFirst(ref.Method) + `</p>` +
				`<p style="font-size: 13px; display: inline-block; float: right;">` + cur + b.money(ref.Amount) + `</p></td></tr>`)
		}
		html.WriteString(`</table>`)
		if last := latestRefund(rec.Refunds); last.PayData != nil && last.PayData.CustomerReceipt != "" {
			paymentReceipts = last.PayData.CustomerReceipt
		}
	}

	if rec.IsVoid() {
		html.WriteString(`<h2 style="text-align: center; color: #dc322f; margin-top: 5px;">VOID TRANSACTION</h2>`)
	}

	if paymentReceipts != "" && b.EftposReceipts {
		html.WriteString(`<pre style="text-align: center; background-color: white;">` + paymentReceipts + `</pre>`)
	}

	html.WriteString(`<p style="text-align: center;"><strong>` + b.shop.RecFooter + `</strong><br/>`)
	if b.shop.QRData != "" {
		html.WriteString(`<img style="text-align: center;" height="99" src="/docs/qrcode.png"/>`)
	}
	html.WriteString(`</p></div>`)
	return html.String()
}

// BuildTestPage renders a header-only test receipt.
func (b *Builder) BuildTestPage() []byte {
	return []byte(b.EscpHeader() + Trailer)
}

// BuildReportDocument wraps rendered report markup in a printable page.
func (b *Builder) BuildReportDocument(reportHTML string) string {
	return PageDocument("PosPrint Report", reportHTML)
}

// PageDocument wraps body markup in a complete styled HTML document.
func PageDocument(title, body string) string {
	var html strings.Builder
	html.WriteString(`<html><head><title>` + title + `</title>`)
	html.WriteString(`<link media="all" href="/assets/css/bootstrap.min.css" rel="stylesheet"/>`)
	html.WriteString(`<link media="all" rel="stylesheet" href="/assets/css/receipt.css"/>`)
	html.WriteString(`</head><body style="background-color: #FFFFFF;">`)
	html.WriteString(body)
	html.WriteString(`</body></html>`)
	return html.String()
}

// qrImage generates the configured QR code as a bitmap, sized for 80mm
// paper at 203 DPI.
func (b *Builder) qrImage() (imageBytes []byte, err error) {
	qr, err := qrcode.New(b.shop.QRData, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("failed to generate QR code: %w", err)
	}
	return escpos.RasterDocument(qr.Image(256)), nil
}

// logoBytes fetches and rasterizes the shop logo. Returns nil when the
// image cannot be loaded; the receipt still prints without it.
func (b *Builder) logoBytes() []byte {
	img, err := b.fetcher.Fetch(b.shop.LogoURL)
	if err != nil {
		log.Printf("[WARNING] Logo image unavailable, printing without it | %v", err)
		return nil
	}
	return escpos.RasterDocument(img)
}

// appendQR appends the QR code (when configured) and trailer, then hands
// the finished stream to dispatch.
func (b *Builder) appendQR(data []byte, dispatch func([]byte) bool) {
	if b.shop.QRData != "" {
		if qr, err := b.qrImage(); err == nil {
			data = append(data, qr...)
		} else {
			log.Printf("[WARNING] QR code unavailable, printing without it | %v", err)
		}
	}
	dispatch(append(data, []byte(Trailer)...))
}

// ComposeEscp builds the ESC/P receipt and hands the finished stream to
// dispatch. When the logo is enabled the fetch runs off the caller's
// goroutine and the whole document is dispatched once the image resolves,
// so image bytes always precede text bytes without blocking the caller.
func (b *Builder) ComposeEscp(rec *models.ReceiptRecord, dispatch func([]byte) bool) {
	body := b.BuildEscp(rec)
	if b.shop.PrintLogo && b.shop.LogoURL != "" {
		go func() {
			data := append(b.logoBytes(), body...)
			b.appendQR(data, dispatch)
		}()
		return
	}
	b.appendQR(body, dispatch)
}

// ComposeTestPage builds the test receipt with the logo prepended when it
// loads, mirroring the receipt dispatch ordering.
func (b *Builder) ComposeTestPage(dispatch func([]byte) bool) {
	body := b.BuildTestPage()
	if b.shop.LogoURL != "" {
		go func() {
			dispatch(append(b.logoBytes(), body...))
		}()
		return
	}
	dispatch(body)
}
