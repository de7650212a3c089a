package billing

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// InvoiceNumberPrefix precedes the year-month part of every invoice number.
const InvoiceNumberPrefix = "INV-00"

// InvoiceSequence hands out per year-month counters atomically.
// Next returns the value reserved for the caller; the first call for a
// year-month returns 1 unless the sequence was seeded from existing data.
type InvoiceSequence interface {
	Next(ctx context.Context, yearMonth string) (int64, error)
}

// YearMonth returns the YYMM key used for numbering.
func YearMonth(t time.Time) string {
	return t.Format("0601")
}

// InvoicePrefix returns INV-00{YY}{MM} for t.
func InvoicePrefix(t time.Time) string {
	return InvoiceNumberPrefix + YearMonth(t)
}

// FormatInvoiceNumber renders the number for sequence value n, zero-padded to
// three digits. Non-positive values fall back to 1.
func FormatInvoiceNumber(t time.Time, n int64) string {
	if n < 1 {
		n = 1
	}
	return fmt.Sprintf("%s%03d", InvoicePrefix(t), n)
}

// ParseInvoiceSuffix extracts the numeric suffix of number under prefix.
func ParseInvoiceSuffix(number, prefix string) (int64, bool) {
	if !strings.HasPrefix(number, prefix) {
		return 0, false
	}
	suffix := number[len(prefix):]
	if suffix == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(suffix, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// HighestSuffix returns the largest parsable suffix among numbers that carry
// prefix, or 0 when none does.
func HighestSuffix(prefix string, numbers []string) int64 {
	var highest int64
	for _, number := range numbers {
		if n, ok := ParseInvoiceSuffix(number, prefix); ok && n > highest {
			highest = n
		}
	}
	return highest
}

// NextInvoiceNumber computes the number following the highest existing one in
// now's year-month. It never returns an empty string; when nothing parsable
// exists the suffix is 1.
//
// This is not safe under concurrent creation on its own. Live numbering goes
// through InvoiceSequence; this function seeds sequences and backfills data.
func NextInvoiceNumber(now time.Time, existing []string) string {
	prefix := InvoicePrefix(now)
	return FormatInvoiceNumber(now, HighestSuffix(prefix, existing)+1)
}
