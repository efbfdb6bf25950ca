package core

import (
	"fmt"
	"time"
)

// defaultBarcodePrefix is used when the service is constructed without an
// explicit prefix.
const defaultBarcodePrefix = "SMP"

// barcodeScope names the counter a reservation draws from. Counters are
// scoped per prefix and year so sequences reset across year boundaries
// without coordination.
func barcodeScope(prefix string, year int) string {
	return fmt.Sprintf("%s-%d", prefix, year)
}

// FormatBarcode renders the canonical barcode for a reserved sequence
// number: prefix, four-digit year, six-digit zero-padded sequence.
func FormatBarcode(prefix string, year int, n int64) string {
	return fmt.Sprintf("%s%d%06d", prefix, year, n)
}

func (s *Service) barcodeFor(now time.Time, n int64) string {
	return FormatBarcode(s.barcodePrefix, now.Year(), n)
}
