package iso8583

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"strconv"

	"github.com/alovak/cardflow-3ds/internal/expiry"
	"github.com/alovak/cardflow-3ds/internal/models"
	"github.com/moov-io/iso8583"
	"github.com/moov-io/iso8583/network"
	"github.com/shopspring/decimal"
)

// EncodeAuthorizationRequest builds an 0100 for req. The STAN is generated
// per message; the connection matches the 0110 to it.
func EncodeAuthorizationRequest(req models.AuthorizationRequest) (*iso8583.Message, error) {
	yymm, err := expiry.YYMM(req.ExpiryMonth, req.ExpiryYear)
	if err != nil {
		return nil, models.WrapError(models.CodeInvalidExpiry, err, "encoding expiry")
	}
	if !models.ValidAmount(req.Amount) {
		return nil, models.NewError(models.CodeInvalidAmount, "amount %s is not representable in %d minor unit digits", req.Amount, models.MaxMinorUnitDigits)
	}
	if !models.ValidCurrency(req.Currency) {
		return nil, models.NewError(models.CodeInvalidCurrency, "currency %q is not a 3 character ISO 4217 code", req.Currency)
	}
	stan, err := generateSTAN()
	if err != nil {
		return nil, fmt.Errorf("generating stan: %w", err)
	}

	msg := iso8583.NewMessage(Spec)
	msg.MTI(MTIAuthorizationRequest)
	fields := map[int]string{
		FieldPAN:               req.CardNumber,
		FieldAmount:            req.Amount.Shift(2).String(),
		FieldSTAN:              stan,
		FieldExpiry:            yymm,
		FieldToken:             req.Token,
		FieldCardholderName:    req.CardholderName,
		FieldMerchantReference: req.MerchantCallbackRef,
		FieldCVV:               req.CVV,
	}
	if req.Currency != "" {
		fields[FieldCurrency] = req.Currency
	}
	for id, v := range fields {
		if v == "" {
			continue
		}
		if err := msg.Field(id, v); err != nil {
			return nil, models.WrapError(models.CodeMissingField, err, "setting field %d", id)
		}
	}

	// oversized fields fail here, before any connection is involved
	if _, err := msg.Pack(); err != nil {
		return nil, models.WrapError(models.CodeMissingField, err, "request does not fit the issuer link")
	}
	return msg, nil
}

// DecodeAuthorizationRequest is the inverse of EncodeAuthorizationRequest.
func DecodeAuthorizationRequest(msg *iso8583.Message) (models.AuthorizationRequest, error) {
	mti, err := msg.GetMTI()
	if err != nil {
		return models.AuthorizationRequest{}, fmt.Errorf("reading mti: %w", err)
	}
	if mti != MTIAuthorizationRequest {
		return models.AuthorizationRequest{}, fmt.Errorf("unexpected mti %s", mti)
	}

	req := models.AuthorizationRequest{
		CardNumber:          optional(msg, FieldPAN),
		Token:               optional(msg, FieldToken),
		CardholderName:      optional(msg, FieldCardholderName),
		MerchantCallbackRef: optional(msg, FieldMerchantReference),
		CVV:                 optional(msg, FieldCVV),
		Currency:            optional(msg, FieldCurrency),
	}
	if yymm := optional(msg, FieldExpiry); yymm != "" {
		req.ExpiryMonth, req.ExpiryYear, err = expiry.MonthYear(yymm)
		if err != nil {
			return req, models.WrapError(models.CodeInvalidExpiry, err, "decoding expiry")
		}
	}
	if minor := optional(msg, FieldAmount); minor != "" {
		v, err := strconv.ParseInt(minor, 10, 64)
		if err != nil {
			return req, models.WrapError(models.CodeInvalidAmount, err, "decoding amount")
		}
		req.Amount = decimal.New(v, -2)
	}
	return req, nil
}

// EncodeAuthorizationResponse builds the 0110 answering request: an approval
// with the challenge reference, or a decline carrying the protocol error code.
func EncodeAuthorizationResponse(request *iso8583.Message, ref models.ChallengeReference, authErr error) (*iso8583.Message, error) {
	resp := iso8583.NewMessage(Spec)
	resp.MTI(MTIAuthorizationResponse)

	stan, err := request.GetString(FieldSTAN)
	if err != nil {
		return nil, fmt.Errorf("reading stan: %w", err)
	}
	if err := resp.Field(FieldSTAN, stan); err != nil {
		return nil, fmt.Errorf("setting stan: %w", err)
	}
	if token := optional(request, FieldToken); token != "" {
		if err := resp.Field(FieldToken, token); err != nil {
			return nil, fmt.Errorf("setting token: %w", err)
		}
	}

	if authErr == nil {
		if err := resp.Field(FieldResponseCode, ResponseApproved); err != nil {
			return nil, err
		}
		if err := resp.Field(FieldChallengeRef, ref.String()); err != nil {
			return nil, fmt.Errorf("setting challenge reference: %w", err)
		}
		return resp, nil
	}

	code := models.CodeOf(authErr)
	if err := resp.Field(FieldResponseCode, responseCodeFor(code)); err != nil {
		return nil, err
	}
	if err := resp.Field(FieldErrorCode, string(code)); err != nil {
		return nil, fmt.Errorf("setting error code: %w", err)
	}
	return resp, nil
}

// DecodeAuthorizationResponse returns the challenge reference of an approval
// or the protocol error of a decline.
func DecodeAuthorizationResponse(msg *iso8583.Message) (models.ChallengeReference, error) {
	mti, err := msg.GetMTI()
	if err != nil {
		return "", fmt.Errorf("reading mti: %w", err)
	}
	if mti != MTIAuthorizationResponse {
		return "", fmt.Errorf("unexpected mti %s", mti)
	}
	rc := optional(msg, FieldResponseCode)
	token := optional(msg, FieldToken)
	if rc == ResponseApproved {
		ref := optional(msg, FieldChallengeRef)
		if ref == "" {
			return "", fmt.Errorf("approval without challenge reference")
		}
		return models.ChallengeReference(ref), nil
	}

	code := models.ErrorCode(optional(msg, FieldErrorCode))
	if code == "" {
		code = errorCodeFor(rc)
	}
	return "", (&models.Error{Code: code, Message: "issuer response code " + rc}).WithToken(token)
}

func responseCodeFor(code models.ErrorCode) string {
	switch code {
	case models.CodeUnknownCard:
		return ResponseUnknownCard
	case models.CodeDuplicateToken:
		return ResponseDuplicateToken
	}
	if code.Kind() == models.KindValidation {
		return ResponseFormatError
	}
	return ResponseSystemError
}

func errorCodeFor(rc string) models.ErrorCode {
	switch rc {
	case ResponseUnknownCard:
		return models.CodeUnknownCard
	case ResponseDuplicateToken:
		return models.CodeDuplicateToken
	case ResponseFormatError:
		return models.CodeMissingField
	}
	return models.CodeInternal
}

// optional reads a field that may be absent from the message.
func optional(msg *iso8583.Message, id int) string {
	v, err := msg.GetString(id)
	if err != nil {
		return ""
	}
	return v
}

func generateSTAN() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(999999))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+1), nil
}

// ReadMessageLength reads the 2 byte binary length header.
func ReadMessageLength(r io.Reader) (int, error) {
	header := network.NewBinary2BytesHeader()
	n, err := header.ReadFrom(r)
	if err != nil {
		return n, err
	}
	return header.Length(), nil
}

// WriteMessageLength writes the 2 byte binary length header.
func WriteMessageLength(w io.Writer, length int) (int, error) {
	header := network.NewBinary2BytesHeader()
	header.SetLength(length)
	return header.WriteTo(w)
}
