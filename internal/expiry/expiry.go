package expiry

import (
    "fmt"
    "strconv"
    "strings"
    "time"
)

var productYears = map[string]int{"credit": 3, "debit": 5}

// YearsForProduct returns validity years for product unless override>0.
func YearsForProduct(product string, override int) int {
    if override > 0 {
        return override
    }
    if y, ok := productYears[strings.ToLower(product)]; ok {
        return y
    }
    return 5
}

// ForIssue returns the expiry month (MM) and four digit year (YYYY) of a card
// issued at issue and valid for years.
func ForIssue(issue time.Time, years int) (string, string) {
    t := issue.UTC()
    return fmt.Sprintf("%02d", int(t.Month())), fmt.Sprintf("%04d", t.Year()+years)
}

// ValidateMonthYear checks the request shape: MM in 01..12 and a four digit year.
func ValidateMonthYear(month, year string) error {
    if len(month) != 2 || !digits(month) {
        return fmt.Errorf("expiry month must be MM")
    }
    mm, _ := strconv.Atoi(month)
    if mm < 1 || mm > 12 {
        return fmt.Errorf("expiry month must be 01..12")
    }
    if len(year) != 4 || !digits(year) {
        return fmt.Errorf("expiry year must be YYYY")
    }
    if year[:2] != "20" {
        return fmt.Errorf("expiry year must be in 2000..2099")
    }
    return nil
}

// YYMM packs MM + YYYY into the ISO 8583 DE14 form.
func YYMM(month, year string) (string, error) {
    if err := ValidateMonthYear(month, year); err != nil {
        return "", err
    }
    return year[2:] + month, nil
}

// MonthYear unpacks DE14 back into MM and YYYY. It is the inverse of YYMM for
// years 2000..2099.
func MonthYear(yymm string) (string, string, error) {
    if err := ValidateYYMM(yymm); err != nil {
        return "", "", err
    }
    return yymm[2:], "20" + yymm[:2], nil
}

// CardFace returns expiry as MM/YY for card imprint.
func CardFace(month, year string) string {
    if len(month) != 2 || len(year) < 2 {
        return ""
    }
    return month + "/" + year[len(year)-2:]
}

// ValidateYYMM checks the expiry is four digits YYMM with month 01..12.
func ValidateYYMM(yymm string) error {
    if len(yymm) != 4 {
        return fmt.Errorf("expiry must be YYMM (4 digits)")
    }
    if !digits(yymm) {
        return fmt.Errorf("expiry must be digits: YYMM")
    }
    mm := (int(yymm[2]-'0')*10 + int(yymm[3]-'0'))
    if mm < 1 || mm > 12 {
        return fmt.Errorf("expiry month must be 01..12")
    }
    return nil
}

func digits(s string) bool {
    for i := 0; i < len(s); i++ {
        if s[i] < '0' || s[i] > '9' {
            return false
        }
    }
    return true
}
