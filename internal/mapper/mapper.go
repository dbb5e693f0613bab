// Package mapper turns a vendor prediction into the fields of a document record.
package mapper

import (
	"errors"
	"strings"

	"golang.org/x/text/unicode/norm"

	"docintake/internal/extraction"
	"docintake/internal/model"
)

// Vendor field keys, as named in the extraction template.
const (
	KeyAadhaarNumber = "aadhar_number"
	KeyFullName      = "full_name"
	KeyAddress       = "address"
	KeyGender        = "gender"
	KeyPhoneNumber   = "phone_number"
	KeyDateOfBirth   = "date_of_birth"
)

// RequiredKeys lists every key a complete prediction must carry, in report order.
var RequiredKeys = []string{KeyAadhaarNumber, KeyFullName, KeyAddress, KeyGender, KeyPhoneNumber, KeyDateOfBirth}

var ErrIncomplete = errors.New("incomplete extraction")

// IncompleteError names the required keys that had no usable value.
type IncompleteError struct {
	Missing []string
}

func (e *IncompleteError) Error() string {
	return "incomplete extraction: missing " + strings.Join(e.Missing, ", ")
}

func (e *IncompleteError) Is(target error) bool { return target == ErrIncomplete }

// Map extracts the six required fields. Every field must be present and
// non-blank, otherwise an *IncompleteError is returned. Values are kept
// exactly as the vendor returned them.
func Map(p extraction.Prediction) (model.Fields, error) {
	values := make(map[string]string, len(RequiredKeys))
	var missing []string
	for _, key := range RequiredKeys {
		v, ok := p[key]
		if !ok || !v.Present {
			missing = append(missing, key)
			continue
		}
		if Normalize(v.Text) == "" {
			missing = append(missing, key)
			continue
		}
		values[key] = v.Text
	}
	if len(missing) > 0 {
		return model.Fields{}, &IncompleteError{Missing: missing}
	}

	return model.Fields{
		Name:          values[KeyFullName],
		AadhaarNumber: values[KeyAadhaarNumber],
		DOB:           values[KeyDateOfBirth],
		Address:       values[KeyAddress],
		Gender:        values[KeyGender],
		PhoneNumber:   values[KeyPhoneNumber],
	}, nil
}

// Normalize trims, collapses whitespace runs to one space and applies NFC.
// Map only uses it to decide whether a value is blank.
func Normalize(s string) string {
	return norm.NFC.String(strings.Join(strings.Fields(s), " "))
}
