package transport

// Logger is the slice of the application logger the transports use.
type Logger interface {
	LogInfo(message string, details ...string)
	LogWarning(message string, details ...string)
	LogError(message string, err error, details ...string)
}

// Document is a rendered print job. Byte-capable transports consume Bytes;
// markup transports consume Markup. The builder fills whichever the
// resolved transport needs.
type Document struct {
	Bytes  []byte
	Markup string
}

// PrintTransport delivers rendered documents to a physical device. All
// methods report success as a boolean; a failed print must never halt the
// sale workflow, so errors are logged rather than returned.
type PrintTransport interface {
	// Kind identifies the transport method (browser, legacyApplet,
	// relayHttp, relayRaw).
	Kind() string
	// ByteCapable reports whether the transport accepts raw printer bytes.
	ByteCapable() bool
	PrintReceipt(doc Document) bool
	PrintDocument(doc Document) bool
	OpenCashDrawer() bool
	TestPrint(doc Document) bool
}
