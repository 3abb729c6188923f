package escpos

import (
	"strings"
)

// ESC/POS control bytes
const (
	ESC byte = 0x1B
	GS  byte = 0x1D
	NL  byte = 0x0A
)

// Printer control sequences. These are emitted verbatim into the output
// stream; thermal printers treat unknown sequences as text, so the exact
// byte values matter.
const (
	Init        = "\x1B\x40"     // initialize printer
	DrawerPulse = "\x1B\x70\x30" // open drawer (pulse pin 2)
	Cut         = "\x1D\x56\x4E" // cut paper
	AlignLeft   = "\x1B\x61\x30"
	AlignCenter = "\x1B\x61\x31"
	AlignRight  = "\x1B\x61\x32"
	DoubleSize  = "\x1B\x21\x31" // double width/height heading
	FontReset   = "\x1B\x21\x02" // styles off
	UnderlineOn = "\x1B\x2D\x31"
	BoldOn      = "\x1B\x45\x31"
	BoldOff     = "\x1B\x45\x30"
)

// LineWidth is the column count of the target thermal paper.
const LineWidth = 48

// ellipsis restores the line to full width when the left column is clipped.
const ellipsis = ".. "

// DrawerKick is the full cash-drawer pulse sequence sent through the normal
// print path.
func DrawerKick() []byte {
	return []byte(Init + DrawerPulse + "\x32\x32")
}

// LayoutRow lays out a two-column row clipped to LineWidth characters.
// When left and right together overflow the line, the left value is
// truncated and suffixed with an ellipsis so the row is exactly LineWidth
// wide again; otherwise the gap is filled with spaces. Underline wraps only
// the right value, bold wraps the whole row. Every aligned row on a receipt
// (items, totals, payments, refunds) goes through here.
func LayoutRow(left, right string, bold, underline bool) string {
	var pad string
	if len(left)+len(right) > LineWidth {
		clip := len(left) + len(right) - LineWidth
		keep := len(left) - (clip + len(ellipsis))
		if keep < 0 {
			keep = 0
		}
		left = left[:keep]
		pad = ellipsis
	} else {
		pad = strings.Repeat(" ", LineWidth-(len(left)+len(right)))
	}

	row := left + pad
	if underline {
		row += UnderlineOn + right + FontReset
	} else {
		row += right
	}
	row += "\n"
	if bold {
		row = BoldOn + row + BoldOff
	}
	return row
}
