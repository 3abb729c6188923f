package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// ReceiptRecord is the in-memory shape of a finalized sale handed to the
// print pipeline. It is built once by the transaction store and borrowed
// read-only by the document builder; nothing in the pipeline mutates it.
type ReceiptRecord struct {
	Ref       string             `json:"ref"`
	ProcessDT int64              `json:"processdt"` // unix milliseconds
	Items     []LineItem         `json:"items"`
	Subtotal  float64            `json:"subtotal"`
	TaxData   map[string]float64 `json:"taxdata"` // tax rate id -> amount
	Tax       float64            `json:"tax"`     // sum of TaxData values
	Discount  float64            `json:"discount"` // percent
	Total     float64            `json:"total"`
	NumItems  int                `json:"numitems"`
	Payments  []Payment          `json:"payments"`
	Refunds   []RefundRecord     `json:"refunddata,omitempty"`
	Void      *VoidMarker        `json:"voiddata,omitempty"`
}

// LineItem is a sold item line on the receipt.
type LineItem struct {
	Qty   int     `json:"qty"`
	Name  string  `json:"name"`
	Unit  float64 `json:"unit"`  // unit price
	Price float64 `json:"price"` // line total
}

// Payment records one tender against the sale. Tender and Change are only
// meaningful for cash payments.
type Payment struct {
	Method  string   `json:"method"`
	Amount  float64  `json:"amount"`
	Tender  float64  `json:"tender,omitempty"`
	Change  float64  `json:"change,omitempty"`
	PayData *PayData `json:"paydata,omitempty"`
}

// PayData carries extra data attached by integrated payment terminals.
type PayData struct {
	CustomerReceipt string `json:"customerReceipt,omitempty"`
	CashOut         bool   `json:"cashOut,omitempty"`
}

// RefundRecord describes one refund processed against the sale.
type RefundRecord struct {
	ProcessDT int64         `json:"processdt"` // unix milliseconds
	Method    string        `json:"method"`
	Amount    float64       `json:"amount"`
	Items     []RefundedItem `json:"items"`
	PayData   *PayData      `json:"paydata,omitempty"`
}

// RefundedItem identifies an item affected by a refund.
type RefundedItem struct {
	Ref string `json:"ref"`
	Qty int    `json:"qty"`
}

// VoidMarker flags the whole transaction as voided.
type VoidMarker struct {
	ProcessDT int64  `json:"processdt"`
	Reason    string `json:"reason,omitempty"`
}

// HasRefunds reports whether any refunds were processed.
func (r *ReceiptRecord) HasRefunds() bool {
	return len(r.Refunds) > 0
}

// IsVoid reports whether the transaction was voided.
func (r *ReceiptRecord) IsVoid() bool {
	return r.Void != nil
}

// Timestamp returns the sale time as a time.Time.
func (r *ReceiptRecord) Timestamp() time.Time {
	return time.UnixMilli(r.ProcessDT)
}

// Transaction is the stored form of a completed sale. The full record is
// serialized as JSON; the print pipeline only ever reads it back whole.
type Transaction struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Ref       string         `gorm:"unique;not null" json:"ref"`
	Data      string         `gorm:"type:text" json:"data"` // JSON serialized ReceiptRecord
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

// Record deserializes the stored receipt record.
func (t *Transaction) Record() (*ReceiptRecord, error) {
	var rec ReceiptRecord
	if err := json.Unmarshal([]byte(t.Data), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// NewTransaction serializes a receipt record for storage.
func NewTransaction(rec *ReceiptRecord) (*Transaction, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	return &Transaction{Ref: rec.Ref, Data: string(data)}, nil
}

// TaxRate is a configured tax line referenced by ReceiptRecord.TaxData keys.
type TaxRate struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Key       string    `gorm:"unique;not null" json:"key"` // id used in TaxData
	Name      string    `gorm:"not null" json:"name"`
	Value     float64   `json:"value"` // percent rate
	IsActive  bool      `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
