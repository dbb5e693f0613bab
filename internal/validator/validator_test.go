package validator

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	pngHead  = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")
	jpegHead = []byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00\x01\x01\x00\x00\x01\x00\x01\x00\x00")
)

// minimalPDF builds a one-page PDF with a correct cross-reference table.
func minimalPDF() []byte {
	var b bytes.Buffer
	b.WriteString("%PDF-1.4\n")
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>",
	}
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n", len(objects)+1)
	b.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&b, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return b.Bytes()
}

func TestValidateDeclared(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		size        int64
		wantErr     error
		wantMsg     string
	}{
		{name: "png", contentType: "image/png", size: 1024},
		{name: "jpeg", contentType: "image/jpeg", size: 500 * 1024},
		{name: "jpg alias", contentType: "image/jpg", size: 10},
		{name: "pdf with params", contentType: "application/pdf; charset=binary", size: 10},
		{name: "upper case", contentType: "IMAGE/PNG", size: 10},
		{name: "exactly the limit", contentType: "image/png", size: MaxBytes},
		{name: "one byte over", contentType: "image/png", size: MaxBytes + 1, wantErr: ErrTooLarge, wantMsg: MsgTooLarge},
		{name: "3 MB png", contentType: "image/png", size: 3 * 1000 * 1000, wantErr: ErrTooLarge, wantMsg: MsgTooLarge},
		{name: "gif", contentType: "image/gif", size: 10, wantErr: ErrUnsupportedType, wantMsg: MsgInvalidType},
		{name: "word document", contentType: "application/msword", size: 10, wantErr: ErrUnsupportedType, wantMsg: MsgInvalidType},
		{name: "empty", contentType: "", size: 10, wantErr: ErrUnsupportedType, wantMsg: MsgInvalidType},
		{name: "type checked before size", contentType: "text/plain", size: MaxBytes * 2, wantErr: ErrUnsupportedType, wantMsg: MsgInvalidType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDeclared(tt.contentType, tt.size)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
			var verr *Error
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.wantMsg, verr.Message)
		})
	}
}

func TestSniff(t *testing.T) {
	t.Run("png", func(t *testing.T) {
		got, err := Sniff(pngHead)
		require.NoError(t, err)
		assert.Equal(t, TypePNG, got)
	})

	t.Run("jpeg", func(t *testing.T) {
		got, err := Sniff(jpegHead)
		require.NoError(t, err)
		assert.Equal(t, TypeJPEG, got)
	})

	t.Run("pdf", func(t *testing.T) {
		got, err := Sniff(minimalPDF())
		require.NoError(t, err)
		assert.Equal(t, TypePDF, got)
	})

	t.Run("text disguised as image", func(t *testing.T) {
		_, err := Sniff([]byte("hello, I am definitely a png"))
		assert.ErrorIs(t, err, ErrUnsupportedType)
	})

	t.Run("oversized content", func(t *testing.T) {
		data := append(append([]byte{}, pngHead...), bytes.Repeat([]byte{0}, int(MaxBytes))...)
		_, err := Sniff(data)
		assert.ErrorIs(t, err, ErrTooLarge)
	})
}

func TestMatchDeclared(t *testing.T) {
	assert.NoError(t, MatchDeclared("image/png", TypePNG))
	assert.NoError(t, MatchDeclared("image/jpeg", TypePNG))
	assert.NoError(t, MatchDeclared("application/pdf; charset=binary", TypePDF))

	err := MatchDeclared("image/png", TypePDF)
	assert.ErrorIs(t, err, ErrUnsupportedType)
	err = MatchDeclared("application/pdf", TypeJPEG)
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestCheckPDF(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		data := minimalPDF()
		assert.NoError(t, CheckPDF(bytes.NewReader(data), int64(len(data))))
	})

	t.Run("header only", func(t *testing.T) {
		data := []byte("%PDF-1.4\n" + strings.Repeat("garbage ", 20))
		err := CheckPDF(bytes.NewReader(data), int64(len(data)))
		assert.ErrorIs(t, err, ErrMalformed)

		var verr *Error
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, MsgUnreadable, verr.Message)
	})

	t.Run("not a pdf", func(t *testing.T) {
		err := CheckPDF(bytes.NewReader(pngHead), int64(len(pngHead)))
		assert.ErrorIs(t, err, ErrMalformed)
	})
}

func TestAllowedTypes_ReturnsCopy(t *testing.T) {
	types := AllowedTypes()
	types[0] = "text/html"
	assert.Equal(t, []string{TypePNG, TypeJPEG, TypePDF}, AllowedTypes())
}
