package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"docintake/internal/export"
	"docintake/internal/extraction"
	"docintake/internal/logging"
	"docintake/internal/mapper"
	"docintake/internal/metrics"
	"docintake/internal/model"
	"docintake/internal/repository"
	"docintake/internal/storage"
	"docintake/internal/validator"
)

var ErrReaderNil = errors.New("reader is nil")

const defaultCleanupTimeout = 5 * time.Second

var tracer = otel.Tracer("docintake/internal/service")

// Upload is one file received from the client.
type Upload struct {
	Reader      io.Reader
	Filename    string
	ContentType string
	Size        int64
}

// Options tune the pipeline. Zero values are usable.
type Options struct {
	Template       extraction.Template
	VendorTimeout  time.Duration
	CleanupTimeout time.Duration
	Metrics        *metrics.Pipeline
}

// DocumentService defines the use cases for identity documents.
type DocumentService interface {
	// Process validates the upload, keeps a scratch copy while the vendor
	// extracts it, maps the prediction and persists the record. The scratch
	// copy is removed on every path once it has been written.
	Process(ctx context.Context, up Upload) (*model.DocumentRecord, error)

	// List returns every stored record in insertion order.
	List(ctx context.Context) ([]model.DocumentRecord, error)

	// Export renders every stored record as an XLSX workbook.
	Export(ctx context.Context) ([]byte, error)
}

type documentService struct {
	store     storage.Storage
	repo      repository.DocumentRepository
	extractor extraction.Extractor
	opts      Options
}

// NewDocumentService constructs a new DocumentService.
func NewDocumentService(store storage.Storage, repo repository.DocumentRepository, extractor extraction.Extractor, opts Options) DocumentService {
	if opts.CleanupTimeout <= 0 {
		opts.CleanupTimeout = defaultCleanupTimeout
	}
	return &documentService{store: store, repo: repo, extractor: extractor, opts: opts}
}

func (s *documentService) Process(ctx context.Context, up Upload) (rec *model.DocumentRecord, err error) {
	ctx, span := tracer.Start(ctx, "document.process")
	span.SetAttributes(
		attribute.String("upload.content_type", up.ContentType),
		attribute.Int64("upload.size", up.Size),
	)
	defer func() {
		s.opts.Metrics.Outcome(outcomeOf(err))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, outcomeOf(err))
		}
		span.End()
	}()

	if up.Reader == nil {
		return nil, ErrReaderNil
	}
	if err := validator.ValidateDeclared(up.ContentType, up.Size); err != nil {
		return nil, err
	}

	// one byte past the limit is enough to detect an understated size
	data, err := io.ReadAll(io.LimitReader(up.Reader, validator.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	detected, err := validator.Sniff(data)
	if err != nil {
		return nil, err
	}
	if err := validator.MatchDeclared(up.ContentType, detected); err != nil {
		return nil, err
	}
	if detected == validator.TypePDF {
		if err := validator.CheckPDF(bytes.NewReader(data), int64(len(data))); err != nil {
			return nil, err
		}
	}

	key := scratchKey(detected)
	owned := true
	defer func() {
		if owned {
			s.cleanup(ctx, key)
		}
	}()

	if _, err := s.store.Put(ctx, key, bytes.NewReader(data), storage.PutObjectOptions{
		Size:        int64(len(data)),
		ContentType: detected,
		Metadata:    map[string]string{"original-filename": up.Filename},
	}); err != nil {
		if errors.Is(err, storage.ErrKeyExists) {
			owned = false
		}
		return nil, fmt.Errorf("write scratch: %w", err)
	}

	pred, err := s.extract(ctx, key, up.Filename, detected)
	if err != nil {
		return nil, err
	}

	fields, err := mapper.Map(pred)
	if err != nil {
		return nil, err
	}

	stored, err := s.repo.Create(ctx, model.NewDocumentRecord(fields))
	if err != nil {
		return nil, fmt.Errorf("db save failed: %w", err)
	}
	span.SetAttributes(attribute.String("document.id", stored.ID))
	return stored, nil
}

func (s *documentService) extract(ctx context.Context, key, filename, contentType string) (extraction.Prediction, error) {
	rc, _, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("open scratch: %w", err)
	}
	defer rc.Close()

	if s.opts.VendorTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.VendorTimeout)
		defer cancel()
	}

	start := time.Now()
	pred, err := s.extractor.Extract(ctx, extraction.Request{
		Document:    rc,
		Filename:    filename,
		ContentType: contentType,
		Template:    s.opts.Template,
	})
	s.opts.Metrics.ObserveVendor(time.Since(start), err)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, extraction.ErrNoInference) {
			err = fmt.Errorf("%w: %w", extraction.ErrNoInference, err)
		}
		return nil, err
	}
	if len(pred) == 0 {
		return nil, extraction.ErrEmptyPrediction
	}
	return pred, nil
}

// cleanup runs after the request context may already be gone, so it gets its
// own short deadline.
func (s *documentService) cleanup(ctx context.Context, key string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.CleanupTimeout)
	defer cancel()
	if err := s.store.Delete(ctx, key); err != nil {
		logging.Error("scratch_cleanup_failed", map[string]any{
			"component": "service",
			"key":       key,
			"error":     err.Error(),
		})
	}
}

func (s *documentService) List(ctx context.Context) ([]model.DocumentRecord, error) {
	return s.repo.List(ctx)
}

func (s *documentService) Export(ctx context.Context) ([]byte, error) {
	docs, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return export.WriteXLSX(docs)
}

func scratchKey(contentType string) string {
	return fmt.Sprintf("scratch/%d-%s%s", time.Now().UnixNano(), uuid.NewString(), extensionFor(contentType))
}

func extensionFor(contentType string) string {
	switch contentType {
	case validator.TypePNG:
		return ".png"
	case validator.TypeJPEG:
		return ".jpg"
	case validator.TypePDF:
		return ".pdf"
	}
	return ""
}

func outcomeOf(err error) string {
	var verr *validator.Error
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.As(err, &verr), errors.Is(err, ErrReaderNil):
		return metrics.OutcomeRejected
	case errors.Is(err, extraction.ErrNoInference):
		return metrics.OutcomeExtractionFailed
	case errors.Is(err, extraction.ErrEmptyPrediction):
		return metrics.OutcomeEmptyPrediction
	case errors.Is(err, mapper.ErrIncomplete):
		return metrics.OutcomeIncomplete
	default:
		return metrics.OutcomeError
	}
}
