// Package extraction defines the contract between the intake pipeline and the
// OCR/data-extraction vendors.
package extraction

import (
	"context"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrNoInference means the vendor produced no usable result: the job
	// failed, the payload had no inference, the deadline passed or the
	// transport broke.
	ErrNoInference = errors.New("no inference returned by extraction vendor")
	// ErrEmptyPrediction means an inference came back with no fields at all.
	ErrEmptyPrediction = errors.New("extraction returned an empty prediction")
)

// Template identifies the vendor-side extraction model.
type Template struct {
	Account string
	Name    string
	Version string
}

func (t Template) String() string {
	return fmt.Sprintf("%s/%s@v%s", t.Account, t.Name, t.Version)
}

// Value is a single extracted field. Present is false when the vendor
// returned the key without a value.
type Value struct {
	Text    string
	Present bool
}

// Some returns a present value.
func Some(text string) Value { return Value{Text: text, Present: true} }

// Prediction maps vendor field keys to extracted values.
type Prediction map[string]Value

type Request struct {
	Document    io.Reader
	Filename    string
	ContentType string
	Template    Template
}

// Extractor sends a document to a vendor and blocks until the prediction is
// final, the vendor gives up, or ctx is done.
type Extractor interface {
	Extract(ctx context.Context, req Request) (Prediction, error)
}
