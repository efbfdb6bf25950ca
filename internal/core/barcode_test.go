package core

import "testing"

func TestFormatBarcode(t *testing.T) {
	cases := []struct {
		prefix string
		year   int
		n      int64
		want   string
	}{
		{"SMP", 2026, 1, "SMP2026000001"},
		{"SMP", 2026, 123456, "SMP2026123456"},
		{"LAB", 2024, 10, "LAB2024000010"},
		{"SMP", 2026, 1234567, "SMP20261234567"}, // overflow widens, never truncates
	}
	for _, tc := range cases {
		if got := FormatBarcode(tc.prefix, tc.year, tc.n); got != tc.want {
			t.Fatalf("FormatBarcode(%s, %d, %d) = %s, want %s", tc.prefix, tc.year, tc.n, got, tc.want)
		}
	}
}

func TestBarcodeScopeSeparatesYears(t *testing.T) {
	if barcodeScope("SMP", 2025) == barcodeScope("SMP", 2026) {
		t.Fatalf("scopes must differ per year")
	}
	if barcodeScope("SMP", 2026) == barcodeScope("LAB", 2026) {
		t.Fatalf("scopes must differ per prefix")
	}
}
