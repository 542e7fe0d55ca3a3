package iso8583

import (
	"github.com/moov-io/iso8583"
	"github.com/moov-io/iso8583/encoding"
	"github.com/moov-io/iso8583/field"
	"github.com/moov-io/iso8583/padding"
	"github.com/moov-io/iso8583/prefix"
)

// Field numbers used on the acquirer/issuer link.
const (
	FieldPAN               = 2
	FieldAmount            = 4
	FieldSTAN              = 11
	FieldExpiry            = 14
	FieldResponseCode      = 39
	FieldErrorCode         = 44
	FieldToken             = 48
	FieldCurrency          = 49
	FieldCardholderName    = 61
	FieldMerchantReference = 62
	FieldCVV               = 63
	FieldChallengeRef      = 120
)

// Message type indicators.
const (
	MTIAuthorizationRequest  = "0100"
	MTIAuthorizationResponse = "0110"
)

// Response codes (DE39).
const (
	ResponseApproved       = "00"
	ResponseUnknownCard    = "14"
	ResponseFormatError    = "30"
	ResponseDuplicateToken = "94"
	ResponseSystemError    = "96"
)

// Spec is the message specification shared by both ends of the link. Free
// text fields carry raw UTF-8 bytes behind a byte-count prefix.
var Spec *iso8583.MessageSpec = &iso8583.MessageSpec{
	Name: "Cardflow 3DS Authorization",
	Fields: map[int]field.Field{
		0: field.NewString(&field.Spec{
			Length:      4,
			Description: "Message Type Indicator",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.Fixed,
		}),
		1: field.NewBitmap(&field.Spec{
			Length:      8,
			Description: "Bitmap",
			Enc:         encoding.BytesToASCIIHex,
			Pref:        prefix.Hex.Fixed,
		}),
		FieldPAN: field.NewString(&field.Spec{
			Length:      19,
			Description: "Primary Account Number",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.LL,
		}),
		FieldAmount: field.NewNumeric(&field.Spec{
			Length:      12,
			Description: "Transaction Amount (minor units)",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.Fixed,
			Pad:         padding.Left('0'),
		}),
		FieldSTAN: field.NewString(&field.Spec{
			Length:      6,
			Description: "Systems Trace Audit Number",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.Fixed,
			Pad:         padding.Left('0'),
		}),
		FieldExpiry: field.NewString(&field.Spec{
			Length:      4,
			Description: "Expiration Date (YYMM)",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.Fixed,
		}),
		FieldResponseCode: field.NewString(&field.Spec{
			Length:      2,
			Description: "Response Code",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.Fixed,
		}),
		FieldErrorCode: field.NewString(&field.Spec{
			Length:      99,
			Description: "Additional Response Data (error code)",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.LL,
		}),
		FieldToken: field.NewString(&field.Spec{
			Length:      999,
			Description: "Transaction Token",
			Enc:         encoding.Binary,
			Pref:        prefix.ASCII.LLL,
		}),
		FieldCurrency: field.NewString(&field.Spec{
			Length:      3,
			Description: "Currency Code",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.Fixed,
		}),
		FieldCardholderName: field.NewString(&field.Spec{
			Length:      999,
			Description: "Cardholder Name",
			Enc:         encoding.Binary,
			Pref:        prefix.ASCII.LLL,
		}),
		FieldMerchantReference: field.NewString(&field.Spec{
			Length:      999,
			Description: "Merchant Callback Reference",
			Enc:         encoding.Binary,
			Pref:        prefix.ASCII.LLL,
		}),
		FieldCVV: field.NewString(&field.Spec{
			Length:      999,
			Description: "Card Verification Value",
			Enc:         encoding.Binary,
			Pref:        prefix.ASCII.LLL,
		}),
		FieldChallengeRef: field.NewString(&field.Spec{
			Length:      999,
			Description: "Challenge Reference",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.LLL,
		}),
	},
}
