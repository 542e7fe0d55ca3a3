package expiry

import (
    "testing"
    "time"
)

func TestForIssue_Rollover(t *testing.T) {
    issue := time.Date(2029, time.December, 15, 0, 0, 0, 0, time.UTC)
    mm, yyyy := ForIssue(issue, 1)
    if mm != "12" || yyyy != "2030" {
        t.Fatalf("ForIssue got %s/%s want 12/2030", mm, yyyy)
    }
    if got := CardFace(mm, yyyy); got != "12/30" {
        t.Fatalf("CardFace got %s want %s", got, "12/30")
    }
}

func TestForIssue_LeapIssue(t *testing.T) {
    issue := time.Date(2028, time.February, 29, 0, 0, 0, 0, time.UTC)
    mm, yyyy := ForIssue(issue, 3)
    if mm != "02" || yyyy != "2031" {
        t.Fatalf("ForIssue got %s/%s want 02/2031", mm, yyyy)
    }
}

func TestYYMM_RoundTrip(t *testing.T) {
    yymm, err := YYMM("12", "2025")
    if err != nil { t.Fatalf("err: %v", err) }
    if yymm != "2512" {
        t.Fatalf("YYMM got %s want 2512", yymm)
    }
    mm, yyyy, err := MonthYear(yymm)
    if err != nil { t.Fatalf("err: %v", err) }
    if mm != "12" || yyyy != "2025" {
        t.Fatalf("MonthYear got %s/%s want 12/2025", mm, yyyy)
    }
}

func TestValidateMonthYear(t *testing.T) {
    cases := []struct {
        month, year string
        ok          bool
    }{
        {"12", "2025", true},
        {"01", "2099", true},
        {"1", "2025", false},
        {"13", "2025", false},
        {"00", "2025", false},
        {"12", "25", false},
        {"12", "1999", false},
        {"1a", "2025", false},
    }
    for _, c := range cases {
        err := ValidateMonthYear(c.month, c.year)
        if (err == nil) != c.ok {
            t.Fatalf("ValidateMonthYear(%q,%q) err=%v want ok=%v", c.month, c.year, err, c.ok)
        }
    }
}

func TestValidateYYMM(t *testing.T) {
    cases := map[string]bool{
        "2512": true,
        "3001": true,
        "2500": false,
        "2513": false,
        "251":  false,
        "25a2": false,
    }
    for in, ok := range cases {
        if err := ValidateYYMM(in); (err == nil) != ok {
            t.Fatalf("ValidateYYMM(%q) err=%v want ok=%v", in, err, ok)
        }
    }
}

func TestYearsForProduct(t *testing.T) {
    if got := YearsForProduct("credit", 0); got != 3 {
        t.Fatalf("credit got %d", got)
    }
    if got := YearsForProduct("DEBIT", 0); got != 5 {
        t.Fatalf("debit got %d", got)
    }
    if got := YearsForProduct("credit", 7); got != 7 {
        t.Fatalf("override got %d", got)
    }
    if got := YearsForProduct("prepaid", 0); got != 5 {
        t.Fatalf("fallback got %d", got)
    }
}
