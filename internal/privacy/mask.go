// Package privacy renders resident personal data according to the
// resident's visibility choices.
package privacy

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/domushq/domus/internal/models"
)

// MaskRune replaces every letter and digit.
const MaskRune = '*'

// Flags resolves per-field visibility. true means the field is shown as is.
type Flags struct {
	FullName bool `json:"show_full_name"`
	Phone    bool `json:"show_phone"`
	Email    bool `json:"show_email"`
	Telegram bool `json:"show_telegram"`
}

// Visible returns flags with every field shown.
func Visible() Flags {
	return Flags{FullName: true, Phone: true, Email: true, Telegram: true}
}

// FromRecord resolves stored privacy settings. A missing record or an unset
// field counts as visible; only an explicit false hides a field.
func FromRecord(record *models.ResidentPrivacy) Flags {
	flags := Visible()
	if record == nil {
		return flags
	}
	flags.FullName = valueOrTrue(record.ShowFullName)
	flags.Phone = valueOrTrue(record.ShowPhone)
	flags.Email = valueOrTrue(record.ShowEmail)
	flags.Telegram = valueOrTrue(record.ShowTelegram)
	return flags
}

func valueOrTrue(v *bool) bool {
	return v == nil || *v
}

// Resident is the public projection of a resident.
type Resident struct {
	ID       uint    `json:"id"`
	FullName string  `json:"full_name"`
	Phone    *string `json:"phone"`
	Email    *string `json:"email"`
	Telegram *string `json:"telegram"`
}

// MaskResident projects the record, masking every field whose flag is false.
// Empty contact fields are rendered as null.
func MaskResident(record models.Resident, flags Flags) Resident {
	name := strings.TrimSpace(record.FullName)
	if !flags.FullName {
		name = MaskName(name)
	}

	return Resident{
		ID:       record.ID,
		FullName: name,
		Phone:    maskField(record.Phone, flags.Phone),
		Email:    maskField(record.Email, flags.Email),
		Telegram: maskField(record.Telegram, flags.Telegram),
	}
}

func maskField(value string, visible bool) *string {
	if value == "" {
		return nil
	}
	if !visible {
		value = MaskString(value)
	}
	return &value
}

// MaskString replaces letters, digits and combining marks with MaskRune,
// keeping punctuation and whitespace so the layout stays recognisable.
func MaskString(s string) string {
	if s == "" {
		return ""
	}
	s = norm.NFC.String(s)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r) {
			b.WriteRune(MaskRune)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// MaskName reduces a full name to "Surname I.". A single word keeps only its
// first letter and an empty name becomes "***".
func MaskName(name string) string {
	parts := strings.Fields(norm.NFC.String(name))
	switch len(parts) {
	case 0:
		return "***"
	case 1:
		first := []rune(parts[0])[0]
		return string(first) + "***"
	default:
		initial := []rune(parts[1])[0]
		return parts[0] + " " + string(initial) + "."
	}
}
