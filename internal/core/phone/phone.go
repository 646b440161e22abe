// Package phone normalizes sender identifiers coming from WhatsApp providers
// and operator input into E.164.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
	"go.mau.fi/whatsmeow/types"

	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/shared/apperrors"
)

// maxNationalDigits is the longest digit string still read as a national
// number. Longer strings are assumed to carry their country code, which is
// how every provider we integrate with reports senders.
const maxNationalDigits = 11

// Normalize turns raw into an E.164 number ("+5511999990000"). It accepts
// formatted numbers, bare digits, "00" international prefixes and WhatsApp
// JIDs ("5511999990000@c.us", "...@s.whatsapp.net"). Group and LID JIDs are
// rejected because they do not identify a phone.
func Normalize(raw, defaultRegion string) (string, error) {
	const op = "phone.Normalize"

	s := strings.TrimSpace(raw)
	if s == "" {
		return "", apperrors.New(apperrors.InvalidIdentifier, op, "empty phone")
	}

	international := false
	if strings.Contains(s, "@") {
		jid, err := types.ParseJID(s)
		if err != nil {
			return "", &apperrors.Error{Kind: apperrors.InvalidIdentifier, Op: op, Msg: "invalid jid " + s, Err: err}
		}
		if jid.Server != types.DefaultUserServer && jid.Server != types.LegacyUserServer {
			return "", apperrors.New(apperrors.InvalidIdentifier, op, "jid is not a user: "+s)
		}
		s = jid.User
		international = true
	}

	if strings.HasPrefix(s, "+") {
		international = true
	}
	digits := onlyDigits(s)
	if strings.HasPrefix(digits, "00") && !international {
		digits = strings.TrimPrefix(digits, "00")
		international = true
	}
	if digits == "" {
		return "", apperrors.New(apperrors.InvalidIdentifier, op, "no digits in "+raw)
	}
	if len(digits) > maxNationalDigits {
		international = true
	}

	toParse := digits
	if international {
		toParse = "+" + digits
	}
	num, err := phonenumbers.Parse(toParse, defaultRegion)
	if err != nil {
		return "", &apperrors.Error{Kind: apperrors.InvalidIdentifier, Op: op, Msg: raw, Err: err}
	}
	if !phonenumbers.IsPossibleNumber(num) {
		return "", apperrors.New(apperrors.InvalidIdentifier, op, "impossible number "+raw)
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// International marks a provider-reported sender as already carrying its
// country code. Z-API and the Cloud API send bare digits ("14155551234")
// that would otherwise be read as a national number in the default region.
// JIDs and numbers that already start with "+" are returned unchanged.
func International(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" || strings.HasPrefix(s, "+") || strings.Contains(s, "@") {
		return s
	}
	return "+" + s
}

// Digits strips the leading "+" of an E.164 number, the form the WhatsApp
// gateways expect in their send APIs.
func Digits(e164 string) string {
	return strings.TrimPrefix(e164, "+")
}

func onlyDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
