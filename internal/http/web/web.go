// Package web serves the browser upload form.
package web

import (
	"bytes"
	_ "embed"
	"html/template"
	"strings"

	"github.com/gofiber/fiber/v2"

	"docintake/internal/validator"
)

//go:embed index.html
var indexHTML string

var indexTmpl = template.Must(template.New("index").Parse(indexHTML))

type pageData struct {
	Accept         string
	AllowedTypes   []string
	MaxBytes       int64
	MsgInvalidType string
	MsgTooLarge    string
}

// Render executes the page with the server-side validation rules so the
// client checks the same types, limit and messages.
func Render() ([]byte, error) {
	types := validator.AllowedTypes()
	var buf bytes.Buffer
	err := indexTmpl.Execute(&buf, pageData{
		Accept:         strings.Join(types, ", "),
		AllowedTypes:   types,
		MaxBytes:       validator.MaxBytes,
		MsgInvalidType: validator.MsgInvalidType,
		MsgTooLarge:    validator.MsgTooLarge,
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Index serves the upload form.
func Index() fiber.Handler {
	page, err := Render()
	return func(c *fiber.Ctx) error {
		if err != nil {
			return err
		}
		c.Type("html", "utf-8")
		return c.Send(page)
	}
}
