package cardgen

import (
	"crypto/rand"
	"fmt"
	"regexp"
	"strings"
)

const panLen = 16

var plausiblePAN = regexp.MustCompile(`^\d{13,19}$`)

// Plausible reports whether pan looks like a card number: 13 to 19 digits,
// nothing else. No Luhn check is applied.
func Plausible(pan string) bool {
	return plausiblePAN.MatchString(pan)
}

// GeneratePAN returns a Luhn-valid 16 digit PAN starting with bin; sequence,
// when set, overrides the trailing digits before the check digit.
func GeneratePAN(bin, sequence string) (string, error) {
	return GeneratePANWithLength(bin, panLen, sequence)
}

// GeneratePANWithLength is GeneratePAN for any length in 13..19.
func GeneratePANWithLength(bin string, totalLen int, sequence string) (string, error) {
	if err := ValidateBIN(bin); err != nil {
		return "", err
	}
	if totalLen < 13 || totalLen > 19 {
		return "", fmt.Errorf("total length must be 13..19")
	}
	fill := totalLen - 1 - len(bin)
	if fill <= 0 {
		return "", fmt.Errorf("bin too long: %s", bin)
	}
	seq := strings.TrimSpace(sequence)
	if seq != "" {
		if !IsDigits(seq) {
			return "", fmt.Errorf("sequence must be numeric")
		}
		if len(seq) > fill {
			return "", fmt.Errorf("sequence length %d exceeds %d", len(seq), fill)
		}
	}
	digitsPart, err := randomDigits(fill)
	if err != nil {
		return "", fmt.Errorf("rand: %w", err)
	}
	b := []byte(digitsPart)
	if seq != "" {
		copy(b[fill-len(seq):], seq)
	}
	body := bin + string(b)
	return body + luhnCheckDigit(body), nil
}

// randomDigits uses rejection sampling so every digit is equally likely.
func randomDigits(count int) (string, error) {
	if count <= 0 {
		return "", nil
	}
	const threshold = 250 // 256 - (256 % 10)
	var sb strings.Builder
	sb.Grow(count)
	buf := make([]byte, 64)
	for sb.Len() < count {
		n, err := rand.Read(buf)
		if err != nil {
			return "", err
		}
		for i := 0; i < n && sb.Len() < count; i++ {
			b := buf[i]
			if b < threshold {
				sb.WriteByte('0' + (b % 10))
			}
		}
	}
	return sb.String(), nil
}

func luhnCheckDigit(body string) string {
	sum, dbl := 0, true
	for i := len(body) - 1; i >= 0; i-- {
		d := int(body[i] - '0')
		if dbl {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		dbl = !dbl
	}
	cd := (10 - (sum % 10)) % 10
	return string('0' + byte(cd))
}

// LuhnValid reports whether the last digit of pan is its Luhn check digit.
func LuhnValid(pan string) bool {
	if len(pan) < 2 || !IsDigits(pan) {
		return false
	}
	return luhnCheckDigit(pan[:len(pan)-1])[0] == pan[len(pan)-1]
}

// ValidateBIN accepts routing prefixes of 1 to 9 digits.
func ValidateBIN(bin string) error {
	if bin == "" {
		return fmt.Errorf("bin is required")
	}
	if !IsDigits(bin) {
		return fmt.Errorf("bin must contain digits only")
	}
	if len(bin) > 9 {
		return fmt.Errorf("bin must be at most 9 digits")
	}
	return nil
}

func IsDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func LastN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// MaskPAN keeps the first six and last four digits. Use it whenever a card
// number goes into a log line.
func MaskPAN(pan string) string {
	cleaned := NormalizePAN(pan)
	n := len(cleaned)
	if n == 0 {
		return ""
	}
	if n <= 4 {
		return strings.Repeat("*", n)
	}
	if n < 10 {
		return strings.Repeat("*", n-4) + cleaned[n-4:]
	}
	return cleaned[:6] + strings.Repeat("*", n-10) + cleaned[n-4:]
}

// NormalizePAN strips spaces, tabs and dashes.
func NormalizePAN(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '-':
			return -1
		default:
			return r
		}
	}, s)
}
