// Package docai implements extraction.Extractor with a Google Document AI
// custom extractor processor.
package docai

import (
	"context"
	"fmt"
	"io"
	"strings"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"google.golang.org/api/option"

	"docintake/internal/config"
	"docintake/internal/extraction"
)

// ProcessFunc sends one process request to Document AI.
type ProcessFunc func(ctx context.Context, req *documentaipb.ProcessRequest) (*documentaipb.ProcessResponse, error)

type Client struct {
	location string
	process  ProcessFunc
	close    func() error
}

// New dials the regional Document AI endpoint.
func New(ctx context.Context, cfg config.DocAIConfig) (*Client, error) {
	if cfg.Location == "" {
		return nil, fmt.Errorf("document ai location is required")
	}
	opts := []option.ClientOption{
		option.WithEndpoint(fmt.Sprintf("%s-documentai.googleapis.com:443", cfg.Location)),
	}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	cli, err := documentai.NewDocumentProcessorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Document AI client: %w", err)
	}
	return &Client{
		location: cfg.Location,
		process: func(ctx context.Context, req *documentaipb.ProcessRequest) (*documentaipb.ProcessResponse, error) {
			return cli.ProcessDocument(ctx, req)
		},
		close: cli.Close,
	}, nil
}

// NewWithProcessor builds a client around an existing process function.
func NewWithProcessor(location string, fn ProcessFunc) *Client {
	return &Client{location: location, process: fn, close: func() error { return nil }}
}

// Close releases the underlying gRPC connection.
func (c *Client) Close() error {
	return c.close()
}

// ProcessorName maps a template onto a processor (version) resource name.
// Template.Account is the Google Cloud project, Name the processor id.
func ProcessorName(location string, t extraction.Template) string {
	name := fmt.Sprintf("projects/%s/locations/%s/processors/%s", t.Account, location, t.Name)
	if t.Version != "" {
		name += "/processorVersions/" + t.Version
	}
	return name
}

func (c *Client) Extract(ctx context.Context, req extraction.Request) (extraction.Prediction, error) {
	if req.Document == nil {
		return nil, fmt.Errorf("document reader is nil")
	}
	content, err := io.ReadAll(req.Document)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}

	resp, err := c.process(ctx, &documentaipb.ProcessRequest{
		Name: ProcessorName(c.location, req.Template),
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  content,
				MimeType: req.ContentType,
			},
		},
		SkipHumanReview: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: process document: %w", extraction.ErrNoInference, err)
	}
	if resp.GetDocument() == nil {
		return nil, fmt.Errorf("%w: response has no document", extraction.ErrNoInference)
	}

	pred := PredictionFromEntities(resp.GetDocument())
	if len(pred) == 0 {
		return nil, extraction.ErrEmptyPrediction
	}
	return pred, nil
}

// PredictionFromEntities turns top-level entities into prediction fields.
// When an entity type repeats, the most confident mention wins.
func PredictionFromEntities(doc *documentaipb.Document) extraction.Prediction {
	out := extraction.Prediction{}
	best := map[string]float32{}

	for _, e := range doc.GetEntities() {
		key := e.GetType()
		if key == "" {
			continue
		}
		text := e.GetNormalizedValue().GetText()
		if strings.TrimSpace(text) == "" {
			text = e.GetMentionText()
		}
		if strings.TrimSpace(text) == "" {
			if _, seen := out[key]; !seen {
				out[key] = extraction.Value{}
			}
			continue
		}
		if prev, ok := best[key]; ok && e.GetConfidence() <= prev {
			continue
		}
		best[key] = e.GetConfidence()
		out[key] = extraction.Some(text)
	}
	return out
}
