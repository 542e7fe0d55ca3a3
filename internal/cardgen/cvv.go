package cardgen

import (
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
)

// DefaultServiceCode is the service code card verification values are derived
// under when none is given.
const DefaultServiceCode = "101"

const cvvDomain = "static-v1"

// DeriveCVV computes a reproducible card verification value for pan, its
// YYMM expiry and serviceCode under key. width is 3 or 4; anything else
// yields 3 digits.
func DeriveCVV(pan, yymm, serviceCode string, width int, key []byte) (string, error) {
	if len(key) == 0 {
		return "", fmt.Errorf("cvv key is required")
	}
	if len(yymm) != 4 || !IsDigits(yymm) {
		return "", fmt.Errorf("expiry must be YYMM (4 digits)")
	}
	if len(serviceCode) != 3 || !IsDigits(serviceCode) {
		return "", fmt.Errorf("service code must be 3 digits")
	}
	pan = NormalizePAN(pan)
	if !LuhnValid(pan) {
		return "", fmt.Errorf("pan fails the Luhn check")
	}

	// the check digit carries no information
	msg := pan[:len(pan)-1] + "|" + yymm + "|" + serviceCode + "|" + cvvDomain
	return truncatedDecimal(key, []byte(msg), width), nil
}

// truncatedDecimal is the HOTP dynamic truncation of an HMAC-SHA256 over msg.
func truncatedDecimal(key, msg []byte, width int) string {
	h := hmac.New(sha256.New, key)
	h.Write(msg)
	sum := h.Sum(nil)
	off := sum[len(sum)-1] & 0x0f
	code := (uint32(sum[off])&0x7f)<<24 |
		uint32(sum[off+1])<<16 |
		uint32(sum[off+2])<<8 |
		uint32(sum[off+3])
	if width == 4 {
		return fmt.Sprintf("%04d", code%10000)
	}
	return fmt.Sprintf("%03d", code%1000)
}
