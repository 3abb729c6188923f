package models

import (
	"time"
)

// Print method identifiers. Receipt and document printing are configured
// independently and may use different methods.
const (
	MethodBrowser      = "browser"      // OS print dialog via a transient window
	MethodLegacyApplet = "legacyApplet" // deprecated local applet, relay request shape
	MethodRelayHTTP    = "relayHttp"    // raw http relay, Android hosts only
	MethodRelayRaw     = "relayRaw"     // relay agent (serial or named printer)
)

// Receipt printer connection modes for the relay methods.
const (
	RecTypeSerial = "serial"
	RecTypeRaw    = "raw"
)

// SerialSettings holds the parameters sent with an openport request.
type SerialSettings struct {
	Baud     int    `json:"baud"`
	DataBits int    `json:"databits"`
	StopBits int    `json:"stopbits"`
	Parity   string `json:"parity"`
	Flow     string `json:"flow"`
}

// PrinterConfig is the device-local print configuration. It is owned by the
// settings collaborator and read-only to the print pipeline.
type PrinterConfig struct {
	ReceiptMethod  string         `json:"printmethod"`
	DocMethod      string         `json:"docmethod"`
	RecType        string         `json:"rectype"` // serial | raw
	RecPort        string         `json:"recport"`
	RecSerial      SerialSettings `json:"recserial"`
	RecPrinter     string         `json:"recprinter"`
	DocPrinter     string         `json:"docprinter"`
	RelayHost      string         `json:"recip"`
	RelayPort      int            `json:"rectcpport"`
	CashDrawer     bool           `json:"cashdraw"`
	EftposReceipts bool           `json:"eftpos_receipts"`
}

// HasTarget reports whether a byte-capable output target is configured,
// either a named printer or a serial port.
func (c *PrinterConfig) HasTarget() bool {
	return c.RecPrinter != "" || c.RecPort != ""
}

// IsRelayMethod reports whether the given method delivers raw bytes through
// the relay protocol rather than the browser.
func IsRelayMethod(method string) bool {
	switch method {
	case MethodLegacyApplet, MethodRelayHTTP, MethodRelayRaw:
		return true
	}
	return false
}

// ShopConfig is the server-side receipt branding configuration.
type ShopConfig struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	BizName        string    `gorm:"not null" json:"bizname"`
	RecLine2       string    `json:"recline2"`
	RecLine3       string    `json:"recline3"`
	RecFooter      string    `json:"recfooter"`
	LogoURL        string    `json:"reclogo"`      // fetched and rasterized for ESC/P output
	EmailLogoURL   string    `json:"recemaillogo"` // used by the HTML renderer
	PrintLogo      bool      `json:"recprintlogo"` // include logo on ESC/P receipts
	QRData         string    `json:"recqrcode"`    // empty disables the QR code
	CurrencySymbol string    `gorm:"default:$" json:"currency_symbol"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Platform describes the host environment used to gate transport options.
type Platform struct {
	Mobile  bool `json:"mobile"`
	Android bool `json:"android"`
}
