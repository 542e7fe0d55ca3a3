package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind groups protocol error codes by the precondition they violate.
type ErrorKind string

const (
	KindValidation     ErrorKind = "validation"
	KindRouting        ErrorKind = "routing"
	KindUnknownCard    ErrorKind = "unknown_card"
	KindSession        ErrorKind = "session"
	KindCommunication  ErrorKind = "communication"
	KindCallbackFailed ErrorKind = "callback_failed"
	KindInternal       ErrorKind = "internal"
)

// ErrorCode is the machine-readable reason carried on every hop as "ERROR:<code>".
type ErrorCode string

const (
	CodeMissingField        ErrorCode = "MISSING_FIELD"
	CodeInvalidCardFormat   ErrorCode = "INVALID_CARD_FORMAT"
	CodeInvalidExpiry       ErrorCode = "INVALID_EXPIRY"
	CodeInvalidAmount       ErrorCode = "INVALID_AMOUNT"
	CodeInvalidCurrency     ErrorCode = "INVALID_CURRENCY"
	CodeDuplicateToken      ErrorCode = "DUPLICATE_TOKEN"
	CodeUnsupportedIssuer   ErrorCode = "UNSUPPORTED_ISSUER"
	CodeUnknownCard         ErrorCode = "UNKNOWN_CARD"
	CodeNoActiveTransaction ErrorCode = "NO_ACTIVE_TRANSACTION"
	CodeTooManyAttempts     ErrorCode = "TOO_MANY_ATTEMPTS"
	CodeInvalidOrExpired    ErrorCode = "INVALID_OR_EXPIRED"
	CodeIssuerUnreachable   ErrorCode = "ISSUER_UNREACHABLE"
	CodeAcquirerUnreachable ErrorCode = "ACQUIRER_UNREACHABLE"
	CodeGatewayUnreachable  ErrorCode = "GATEWAY_UNREACHABLE"
	CodeCallbackFailed      ErrorCode = "CALLBACK_FAILED"
	CodeInternal            ErrorCode = "INTERNAL"
)

// ErrorLinePrefix discriminates an error line from a challenge reference.
const ErrorLinePrefix = "ERROR:"

var codeKinds = map[ErrorCode]ErrorKind{
	CodeMissingField:        KindValidation,
	CodeInvalidCardFormat:   KindValidation,
	CodeInvalidExpiry:       KindValidation,
	CodeInvalidAmount:       KindValidation,
	CodeInvalidCurrency:     KindValidation,
	CodeDuplicateToken:      KindValidation,
	CodeUnsupportedIssuer:   KindRouting,
	CodeUnknownCard:         KindUnknownCard,
	CodeNoActiveTransaction: KindSession,
	CodeTooManyAttempts:     KindSession,
	CodeInvalidOrExpired:    KindSession,
	CodeIssuerUnreachable:   KindCommunication,
	CodeAcquirerUnreachable: KindCommunication,
	CodeGatewayUnreachable:  KindCommunication,
	CodeCallbackFailed:      KindCallbackFailed,
	CodeInternal:            KindInternal,
}

// Kind returns the taxonomy group of the code.
func (c ErrorCode) Kind() ErrorKind {
	if k, ok := codeKinds[c]; ok {
		return k
	}
	return KindInternal
}

// Error is the protocol error passed from hop to hop. Hops may add their
// identity but never change the code.
type Error struct {
	Code    ErrorCode
	Message string
	Token   string
	Hop     string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Hop != "" {
		b.WriteString(e.Hop)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Code))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same code, so callers can write
// errors.Is(err, models.ErrUnknownCard).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Kind returns the taxonomy group of the error.
func (e *Error) Kind() ErrorKind {
	return e.Code.Kind()
}

// Sentinels for errors.Is.
var (
	ErrMissingField        = &Error{Code: CodeMissingField}
	ErrInvalidCardFormat   = &Error{Code: CodeInvalidCardFormat}
	ErrInvalidExpiry       = &Error{Code: CodeInvalidExpiry}
	ErrInvalidAmount       = &Error{Code: CodeInvalidAmount}
	ErrInvalidCurrency     = &Error{Code: CodeInvalidCurrency}
	ErrDuplicateToken      = &Error{Code: CodeDuplicateToken}
	ErrUnsupportedIssuer   = &Error{Code: CodeUnsupportedIssuer}
	ErrUnknownCard         = &Error{Code: CodeUnknownCard}
	ErrNoActiveTransaction = &Error{Code: CodeNoActiveTransaction}
	ErrTooManyAttempts     = &Error{Code: CodeTooManyAttempts}
	ErrInvalidOrExpired    = &Error{Code: CodeInvalidOrExpired}
	ErrIssuerUnreachable   = &Error{Code: CodeIssuerUnreachable}
	ErrAcquirerUnreachable = &Error{Code: CodeAcquirerUnreachable}
	ErrGatewayUnreachable  = &Error{Code: CodeGatewayUnreachable}
	ErrCallbackFailed      = &Error{Code: CodeCallbackFailed}
)

// NewError builds a protocol error.
func NewError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapError builds a protocol error around a lower level cause.
func WrapError(code ErrorCode, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// WithToken returns a copy of err carrying the transaction token.
func (e *Error) WithToken(token string) *Error {
	c := *e
	c.Token = token
	return &c
}

// WithHop tags a protocol error with the identity of the hop that saw it
// first. Non-protocol errors become INTERNAL errors of that hop.
func WithHop(err error, hop string) error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		if pe.Hop != "" {
			return err
		}
		c := *pe
		c.Hop = hop
		return &c
	}
	return &Error{Code: CodeInternal, Hop: hop, Err: err}
}

// CodeOf extracts the protocol code of err, INTERNAL for anything else.
func CodeOf(err error) ErrorCode {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return CodeInternal
}

// ErrorLine renders err as the discriminated wire line "ERROR:<code>".
func ErrorLine(err error) string {
	return ErrorLinePrefix + string(CodeOf(err))
}

// IsErrorLine reports whether a relayed response is an error line.
func IsErrorLine(s string) bool {
	return strings.HasPrefix(strings.TrimSpace(s), ErrorLinePrefix)
}

// ParseErrorLine turns "ERROR:<code>" back into a protocol error. Lines that
// carry free text after the code (older peers) keep it as the message.
func ParseErrorLine(s string) *Error {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, ErrorLinePrefix) {
		return nil
	}
	rest := strings.TrimSpace(strings.TrimPrefix(s, ErrorLinePrefix))
	code, msg, _ := strings.Cut(rest, " ")
	code = strings.TrimSuffix(code, ":")
	if code == "" {
		return &Error{Code: CodeInternal, Message: "empty error line"}
	}
	return &Error{Code: ErrorCode(code), Message: strings.TrimSpace(msg)}
}
