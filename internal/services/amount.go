package services

import "fmt"

// MicroToUSDString converts a fixed-point micro-USDC amount (6 implied
// decimals) to a 2-decimal USD string, rounding half-up at the cent boundary.
func MicroToUSDString(micros uint64) string {
	cents := (micros + 5_000) / 10_000
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}

// FormatMicroUSDC renders a micro-USDC amount with full 6-decimal precision,
// for logging.
func FormatMicroUSDC(micros uint64) string {
	return fmt.Sprintf("%d.%06d", micros/1_000_000, micros%1_000_000)
}
