package receipt

import (
	"bytes"
	"image"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PosPrint/app/escpos"
	"PosPrint/app/models"
)

func testShop() *models.ShopConfig {
	return &models.ShopConfig{
		BizName:        "Widget World",
		RecLine2:       "1 Example Street",
		RecFooter:      "Thank you!",
		CurrencySymbol: "$",
	}
}

func testTaxes(key string) (string, float64, bool) {
	if key == "1" {
		return "GST", 10, true
	}
	return "", 0, false
}

func newTestBuilder() *Builder {
	return NewBuilder(testShop(), testTaxes, nil)
}

// cashSale is the canonical two-widget cash sale.
func cashSale() *models.ReceiptRecord {
	return &models.ReceiptRecord{
		Ref:       "TX1",
		ProcessDT: time.Date(2024, 5, 1, 12, 30, 0, 0, time.Local).UnixMilli(),
		Items: []models.LineItem{
			{Qty: 2, Name: "Widget", Unit: 1.00, Price: 2.00},
		},
		Subtotal: 2.00,
		TaxData:  map[string]float64{},
		Discount: 0,
		Total:    2.00,
		NumItems: 2,
		Payments: []models.Payment{
			{Method: "cash", Amount: 2.00, Tender: 5.00, Change: 3.00},
		},
	}
}

func TestCashSaleReceipt(t *testing.T) {
	out := string(newTestBuilder().BuildEscp(cashSale()))

	assert.Contains(t, out, "Transaction Ref: TX1")
	assert.Contains(t, out, "Tendered:")
	assert.Contains(t, out, "$5.00")
	assert.Contains(t, out, "Change:")
	assert.Contains(t, out, "$3.00")
	assert.Contains(t, out, "Total (2 items):")
	assert.NotContains(t, out, "Subtotal")
	assert.NotContains(t, out, "Discount")
}

func TestSubtotalEmittedWithTaxes(t *testing.T) {
	rec := cashSale()
	rec.TaxData = map[string]float64{"1": 0.20}
	rec.Tax = 0.20
	rec.Total = 2.20

	out := string(newTestBuilder().BuildEscp(rec))
	assert.Contains(t, out, "Subtotal:")
	assert.Contains(t, out, "GST (10%)")
	assert.Contains(t, out, "$0.20")
}

func TestSubtotalEmittedWithDiscount(t *testing.T) {
	rec := cashSale()
	rec.Discount = 10
	rec.Total = 1.80

	out := string(newTestBuilder().BuildEscp(rec))
	assert.Contains(t, out, "Subtotal:")
	assert.Contains(t, out, "10% Discount")
	// value derived from the totals, not recomputed from the percent
	assert.Contains(t, out, "$0.20")
}

func TestDiscountValueDerivedFromTotals(t *testing.T) {
	rec := cashSale()
	rec.Subtotal = 10
	rec.TaxData = map[string]float64{"1": 1}
	rec.Tax = 1
	rec.Discount = 10
	rec.Total = 9.90

	assert.InDelta(t, 1.10, discountValue(rec), 0.0001)
}

func TestSingularItemLabel(t *testing.T) {
	rec := cashSale()
	rec.NumItems = 1

	out := string(newTestBuilder().BuildEscp(rec))
	assert.Contains(t, out, "Total (1 item):")
}

func TestCashoutRelabelsAndNegates(t *testing.T) {
	rec := cashSale()
	rec.Payments = []models.Payment{
		{Method: "eftpos", Amount: 20.00, PayData: &models.PayData{CashOut: true}},
	}

	out := string(newTestBuilder().BuildEscp(rec))
	assert.Contains(t, out, "Cashout:")
	assert.Contains(t, out, "$-20.00")
	assert.NotContains(t, out, "Tendered:")
}

func TestLatestRefundSuppliesTerminalReceipt(t *testing.T) {
	rec := cashSale()
	rec.Refunds = []models.RefundRecord{
		{
			ProcessDT: 1000,
			Method:    "eftpos",
			Amount:    1.00,
			Items:     []models.RefundedItem{{Ref: "1", Qty: 1}},
			PayData:   &models.PayData{CustomerReceipt: "OLD TERMINAL RECEIPT"},
		},
		{
			ProcessDT: 2000,
			Method:    "eftpos",
			Amount:    1.00,
			Items:     []models.RefundedItem{{Ref: "1", Qty: 1}},
			PayData:   &models.PayData{CustomerReceipt: "NEW TERMINAL RECEIPT"},
		},
	}

	b := newTestBuilder()
	b.EftposReceipts = true
	out := string(b.BuildEscp(rec))

	assert.Contains(t, out, "Refund")
	assert.Contains(t, out, "NEW TERMINAL RECEIPT")
	assert.NotContains(t, out, "OLD TERMINAL RECEIPT")
}

func TestTerminalReceiptsSuppressedWhenDisabled(t *testing.T) {
	rec := cashSale()
	rec.Payments[0].PayData = &models.PayData{CustomerReceipt: "TERMINAL RECEIPT"}

	out := string(newTestBuilder().BuildEscp(rec))
	assert.NotContains(t, out, "TERMINAL RECEIPT")
}

func TestVoidBanner(t *testing.T) {
	rec := cashSale()
	rec.Void = &models.VoidMarker{ProcessDT: 3000}

	out := string(newTestBuilder().BuildEscp(rec))
	assert.Contains(t, out, "VOID TRANSACTION")
}

func TestRenderersAgreeOnContent(t *testing.T) {
	rec := cashSale()
	rec.TaxData = map[string]float64{"1": 0.20}
	rec.Tax = 0.20
	rec.Total = 2.20

	escp := string(newTestBuilder().BuildEscp(rec))
	html := newTestBuilder().BuildHTML(rec)

	for _, want := range []string{
		"Transaction Ref:", "TX1", "Widget", "Subtotal:", "GST (10%)",
		"Total (2 items):", "Tendered:", "Change:", "Thank you!",
	} {
		assert.Contains(t, escp, want)
		assert.Contains(t, html, want)
	}
}

func TestBuildTestPage(t *testing.T) {
	b := newTestBuilder()
	out := string(b.BuildTestPage())

	assert.True(t, strings.HasPrefix(out, b.EscpHeader()))
	assert.True(t, strings.HasSuffix(out, Trailer))
	assert.Contains(t, out, "Widget World")
}

func TestBuildReportDocumentWrapsMarkup(t *testing.T) {
	out := newTestBuilder().BuildReportDocument("<table><tr><td>42</td></tr></table>")

	assert.True(t, strings.HasPrefix(out, "<html>"))
	assert.Contains(t, out, "<table><tr><td>42</td></tr></table>")
	assert.True(t, strings.HasSuffix(out, "</html>"))
}

type fakeFetcher struct {
	img image.Image
	err error
}

func (f *fakeFetcher) Fetch(url string) (image.Image, error) {
	return f.img, f.err
}

func TestComposeEscpDispatchesWithTrailer(t *testing.T) {
	b := newTestBuilder()
	rec := cashSale()

	var got []byte
	b.ComposeEscp(rec, func(data []byte) bool {
		got = data
		return true
	})

	require.NotNil(t, got)
	assert.True(t, bytes.HasSuffix(got, []byte(Trailer)))
	assert.Contains(t, string(got), "Transaction Ref: TX1")
}

func TestComposeEscpImageBytesPrecedeText(t *testing.T) {
	shop := testShop()
	shop.PrintLogo = true
	shop.LogoURL = "http://example.com/logo.png"
	// all-ink logo; the zero RGBA has a zero red channel
	b := NewBuilder(shop, testTaxes, &fakeFetcher{img: image.NewRGBA(image.Rect(0, 0, 8, 24))})

	done := make(chan []byte, 1)
	b.ComposeEscp(cashSale(), func(data []byte) bool {
		done <- data
		return true
	})

	select {
	case got := <-done:
		rasterAt := bytes.Index(got, []byte{escpos.ESC, 0x2A})
		textAt := bytes.Index(got, []byte("Transaction Ref:"))
		require.NotEqual(t, -1, rasterAt)
		require.NotEqual(t, -1, textAt)
		assert.Less(t, rasterAt, textAt)
		assert.True(t, bytes.HasSuffix(got, []byte(Trailer)))
	case <-time.After(2 * time.Second):
		t.Fatal("receipt was never dispatched")
	}
}

func TestComposeEscpAppendsQRCode(t *testing.T) {
	shop := testShop()
	shop.QRData = "https://example.com/receipt/TX1"
	b := NewBuilder(shop, testTaxes, nil)

	var got []byte
	b.ComposeEscp(cashSale(), func(data []byte) bool {
		got = data
		return true
	})

	require.NotNil(t, got)
	textAt := bytes.Index(got, []byte("Transaction Ref:"))
	qrAt := bytes.LastIndex(got, []byte{escpos.ESC, 0x2A})
	require.NotEqual(t, -1, qrAt)
	assert.Greater(t, qrAt, textAt)
	assert.True(t, bytes.HasSuffix(got, []byte(Trailer)))
}
