// Package validator decides whether an uploaded file may be sent for extraction.
package validator

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"
)

// MaxBytes is the largest accepted upload (2 MiB).
const MaxBytes int64 = 2 * 1024 * 1024

const (
	TypePNG  = "image/png"
	TypeJPEG = "image/jpeg"
	TypePDF  = "application/pdf"
)

// User-facing rejection messages. The browser form shows the same text.
const (
	MsgInvalidType = "Invalid file type. Please upload PNG, JPG, or PDF."
	MsgTooLarge    = "File size exceeds 2MB limit."
	MsgUnreadable  = "The uploaded PDF could not be read."
)

var (
	ErrUnsupportedType = errors.New("unsupported content type")
	ErrTooLarge        = errors.New("file too large")
	ErrMalformed       = errors.New("malformed document")
)

var allowedTypes = []string{TypePNG, TypeJPEG, TypePDF}

// AllowedTypes returns the accepted MIME types in display order.
func AllowedTypes() []string {
	out := make([]string, len(allowedTypes))
	copy(out, allowedTypes)
	return out
}

// Error is a rejection with a message that is safe to show to the uploader.
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func invalidType(detail string) error {
	return &Error{Code: "INVALID_FILE_TYPE", Message: MsgInvalidType, Err: fmt.Errorf("%w: %s", ErrUnsupportedType, detail)}
}

func tooLarge(size int64) error {
	return &Error{Code: "FILE_TOO_LARGE", Message: MsgTooLarge, Err: fmt.Errorf("%w: %d bytes", ErrTooLarge, size)}
}

// ValidateDeclared checks the client-declared content type and size.
func ValidateDeclared(contentType string, size int64) error {
	ct := normalize(contentType)
	if !isAllowed(ct) {
		return invalidType(fmt.Sprintf("declared %q", contentType))
	}
	if size > MaxBytes {
		return tooLarge(size)
	}
	return nil
}

// Sniff detects the actual content type from the file's leading bytes and
// returns it when it is one of the allowed types.
func Sniff(data []byte) (string, error) {
	if int64(len(data)) > MaxBytes {
		return "", tooLarge(int64(len(data)))
	}
	detected := mimetype.Detect(data)
	for _, t := range allowedTypes {
		if detected.Is(t) {
			return t, nil
		}
	}
	return "", invalidType(fmt.Sprintf("detected %q", detected.String()))
}

// MatchDeclared rejects content whose detected family (image or PDF) differs
// from the declared one. A PNG declared as JPEG is still an image and passes.
func MatchDeclared(declared, detected string) error {
	if family(normalize(declared)) != family(detected) {
		return invalidType(fmt.Sprintf("declared %q but content is %q", declared, detected))
	}
	return nil
}

func family(ct string) string {
	if ct == TypePDF {
		return "pdf"
	}
	if strings.HasPrefix(ct, "image/") {
		return "image"
	}
	return ct
}

// CheckPDF verifies that r holds a parseable PDF with at least one page.
func CheckPDF(r io.ReaderAt, size int64) (err error) {
	defer func() {
		// the parser panics on some truncated inputs
		if p := recover(); p != nil {
			err = malformed(fmt.Errorf("pdf parser: %v", p))
		}
	}()

	doc, err := pdf.NewReader(r, size)
	if err != nil {
		return malformed(err)
	}
	if doc.NumPage() < 1 {
		return malformed(errors.New("pdf has no pages"))
	}
	return nil
}

func malformed(err error) error {
	return &Error{Code: "MALFORMED_DOCUMENT", Message: MsgUnreadable, Err: fmt.Errorf("%w: %v", ErrMalformed, err)}
}

func normalize(contentType string) string {
	ct := strings.TrimSpace(strings.ToLower(contentType))
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		ct = mt
	}
	if ct == "image/jpg" || ct == "image/pjpeg" {
		ct = TypeJPEG
	}
	return ct
}

func isAllowed(ct string) bool {
	for _, t := range allowedTypes {
		if ct == t {
			return true
		}
	}
	return false
}
