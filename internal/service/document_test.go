package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"docintake/internal/extraction"
	extMocks "docintake/internal/extraction/mocks"
	"docintake/internal/logging"
	"docintake/internal/mapper"
	"docintake/internal/metrics"
	"docintake/internal/model"
	repoMocks "docintake/internal/repository/mocks"
	"docintake/internal/storage"
	storeMocks "docintake/internal/storage/mocks"
	"docintake/internal/validator"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")
	tmpl     = extraction.Template{Account: "acme", Name: "aadhar_card", Version: "1"}
)

func completePrediction() extraction.Prediction {
	return extraction.Prediction{
		mapper.KeyAadhaarNumber: extraction.Some("1234 5678 9012"),
		mapper.KeyFullName:      extraction.Some("Asha Verma"),
		mapper.KeyAddress:       extraction.Some("12 MG Road, Pune"),
		mapper.KeyGender:        extraction.Some("Female"),
		mapper.KeyPhoneNumber:   extraction.Some("9876543210"),
		mapper.KeyDateOfBirth:   extraction.Some("01/02/1990"),
	}
}

func pngUpload() Upload {
	return Upload{
		Reader:      bytes.NewReader(pngBytes),
		Filename:    "card.png",
		ContentType: "image/png",
		Size:        int64(len(pngBytes)),
	}
}

// scratchFiles lists regular files left in the scratch directory.
func scratchFiles(t *testing.T, dir string) []string {
	t.Helper()
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	require.NoError(t, err)
	return files
}

type fixture struct {
	dir       string
	store     storage.Storage
	repo      *repoMocks.MockDocumentRepository
	extractor *extMocks.MockExtractor
	svc       DocumentService
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewLocal(dir)
	require.NoError(t, err)

	f := &fixture{
		dir:       dir,
		store:     store,
		repo:      new(repoMocks.MockDocumentRepository),
		extractor: new(extMocks.MockExtractor),
	}
	if opts.Template == (extraction.Template{}) {
		opts.Template = tmpl
	}
	f.svc = NewDocumentService(store, f.repo, f.extractor, opts)
	return f
}

func TestProcess_HappyPath(t *testing.T) {
	f := newFixture(t, Options{VendorTimeout: time.Second})
	ctx := context.Background()

	f.extractor.On("Extract", mock.Anything, mock.MatchedBy(func(req extraction.Request) bool {
		return req.Template == tmpl && req.ContentType == validator.TypePNG && req.Filename == "card.png"
	})).Return(func(ctx context.Context, req extraction.Request) extraction.Prediction {
		// the vendor sees the scratch copy while it exists
		body, err := io.ReadAll(req.Document)
		assert.NoError(t, err)
		assert.Equal(t, pngBytes, body)
		assert.Len(t, scratchFiles(t, f.dir), 1)
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		return completePrediction()
	}, nil)

	stored := &model.DocumentRecord{ID: "gen-id", Name: "Asha Verma", CreatedAt: time.Now().UTC()}
	f.repo.On("Create", mock.Anything, mock.MatchedBy(func(doc *model.DocumentRecord) bool {
		return doc.ID == "" &&
			doc.Name == "Asha Verma" &&
			doc.AadhaarNumber == "1234 5678 9012" &&
			doc.DOB == "01/02/1990" &&
			doc.Address == "12 MG Road, Pune" &&
			doc.Gender == "Female" &&
			doc.PhoneNumber == "9876543210"
	})).Return(stored, nil)

	got, err := f.svc.Process(ctx, pngUpload())

	require.NoError(t, err)
	assert.Equal(t, stored, got)
	assert.Empty(t, scratchFiles(t, f.dir))
	f.extractor.AssertExpectations(t)
	f.repo.AssertExpectations(t)
}

func TestProcess_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		upload  Upload
		wantErr error
		wantMsg string
	}{
		{
			name:    "nil reader",
			upload:  Upload{ContentType: "image/png", Size: 10},
			wantErr: ErrReaderNil,
		},
		{
			name:    "declared type not allowed",
			upload:  Upload{Reader: strings.NewReader("GIF89a"), ContentType: "image/gif", Size: 6},
			wantErr: validator.ErrUnsupportedType,
			wantMsg: validator.MsgInvalidType,
		},
		{
			name:    "declared size over limit",
			upload:  Upload{Reader: bytes.NewReader(pngBytes), ContentType: "image/png", Size: 3_000_000},
			wantErr: validator.ErrTooLarge,
			wantMsg: validator.MsgTooLarge,
		},
		{
			name: "size understated by client",
			upload: Upload{
				Reader:      io.MultiReader(bytes.NewReader(pngBytes), bytes.NewReader(make([]byte, validator.MaxBytes))),
				ContentType: "image/png",
				Size:        100,
			},
			wantErr: validator.ErrTooLarge,
			wantMsg: validator.MsgTooLarge,
		},
		{
			name:    "content is not an image",
			upload:  Upload{Reader: strings.NewReader("just some text"), ContentType: "image/png", Size: 14},
			wantErr: validator.ErrUnsupportedType,
			wantMsg: validator.MsgInvalidType,
		},
		{
			name:    "image declared as pdf",
			upload:  Upload{Reader: bytes.NewReader(pngBytes), ContentType: "application/pdf", Size: int64(len(pngBytes))},
			wantErr: validator.ErrUnsupportedType,
			wantMsg: validator.MsgInvalidType,
		},
		{
			name: "unreadable pdf",
			upload: Upload{
				Reader:      strings.NewReader("%PDF-1.4\n" + strings.Repeat("junk ", 40)),
				ContentType: "application/pdf",
				Size:        209,
			},
			wantErr: validator.ErrMalformed,
			wantMsg: validator.MsgUnreadable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Options{})

			_, err := f.svc.Process(context.Background(), tt.upload)

			assert.ErrorIs(t, err, tt.wantErr)
			if tt.wantMsg != "" {
				var verr *validator.Error
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, tt.wantMsg, verr.Message)
			}
			assert.Empty(t, scratchFiles(t, f.dir))
			f.extractor.AssertNotCalled(t, "Extract", mock.Anything, mock.Anything)
			f.repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		})
	}
}

func TestProcess_ExtractionOutcomes(t *testing.T) {
	incomplete := completePrediction()
	incomplete[mapper.KeyGender] = extraction.Value{}

	tests := []struct {
		name    string
		pred    extraction.Prediction
		err     error
		wantErr error
	}{
		{name: "vendor failed", err: extraction.ErrNoInference, wantErr: extraction.ErrNoInference},
		{name: "vendor reports empty", err: extraction.ErrEmptyPrediction, wantErr: extraction.ErrEmptyPrediction},
		{name: "empty map without error", pred: extraction.Prediction{}, wantErr: extraction.ErrEmptyPrediction},
		{name: "field missing", pred: incomplete, wantErr: mapper.ErrIncomplete},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Options{})
			f.extractor.On("Extract", mock.Anything, mock.Anything).Return(tt.pred, tt.err)

			got, err := f.svc.Process(context.Background(), pngUpload())

			assert.Nil(t, got)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, scratchFiles(t, f.dir))
			f.repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		})
	}
}

func TestProcess_IncompleteNamesMissingField(t *testing.T) {
	f := newFixture(t, Options{})
	pred := completePrediction()
	delete(pred, mapper.KeyPhoneNumber)
	f.extractor.On("Extract", mock.Anything, mock.Anything).Return(pred, nil)

	_, err := f.svc.Process(context.Background(), pngUpload())

	var ie *mapper.IncompleteError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, []string{mapper.KeyPhoneNumber}, ie.Missing)
}

func TestProcess_VendorDeadline(t *testing.T) {
	f := newFixture(t, Options{VendorTimeout: 20 * time.Millisecond})
	f.extractor.On("Extract", mock.Anything, mock.Anything).
		Return(func(ctx context.Context, _ extraction.Request) extraction.Prediction {
			<-ctx.Done()
			return nil
		}, context.DeadlineExceeded)

	_, err := f.svc.Process(context.Background(), pngUpload())

	assert.ErrorIs(t, err, extraction.ErrNoInference)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, scratchFiles(t, f.dir))
}

func TestProcess_RepositoryFailure(t *testing.T) {
	f := newFixture(t, Options{})
	f.extractor.On("Extract", mock.Anything, mock.Anything).Return(completePrediction(), nil)
	f.repo.On("Create", mock.Anything, mock.Anything).Return(nil, errors.New("db error"))

	_, err := f.svc.Process(context.Background(), pngUpload())

	assert.ErrorContains(t, err, "db save failed")
	assert.NotErrorIs(t, err, mapper.ErrIncomplete)
	assert.Empty(t, scratchFiles(t, f.dir))
}

func TestProcess_CleanupOutlivesRequestContext(t *testing.T) {
	mStore := new(storeMocks.MockStorage)
	mExt := new(extMocks.MockExtractor)
	mRepo := new(repoMocks.MockDocumentRepository)
	svc := NewDocumentService(mStore, mRepo, mExt, Options{Template: tmpl})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var key string
	mStore.On("Put", mock.Anything, mock.MatchedBy(func(k string) bool {
		key = k
		return strings.HasPrefix(k, "scratch/") && strings.HasSuffix(k, ".png")
	}), mock.Anything, mock.MatchedBy(func(opt storage.PutObjectOptions) bool {
		return opt.Size == int64(len(pngBytes)) && opt.ContentType == validator.TypePNG
	})).Return(storage.ObjectInfo{}, nil)
	mStore.On("Get", mock.Anything, mock.Anything).Return(io.NopCloser(bytes.NewReader(pngBytes)), storage.ObjectInfo{}, nil)
	mExt.On("Extract", mock.Anything, mock.Anything).
		Return(func(context.Context, extraction.Request) extraction.Prediction {
			// client went away mid-extraction
			cancel()
			return nil
		}, extraction.ErrNoInference)
	mStore.On("Delete", mock.MatchedBy(func(c context.Context) bool {
		_, hasDeadline := c.Deadline()
		return c.Err() == nil && hasDeadline
	}), mock.Anything).Return(nil)

	_, err := svc.Process(ctx, pngUpload())

	assert.ErrorIs(t, err, extraction.ErrNoInference)
	mStore.AssertExpectations(t)
	mStore.AssertCalled(t, "Delete", mock.Anything, key)
}

func TestProcess_ConcurrentUploadsUseDistinctScratchKeys(t *testing.T) {
	const n = 32

	mStore := new(storeMocks.MockStorage)
	mExt := new(extMocks.MockExtractor)
	mRepo := new(repoMocks.MockDocumentRepository)
	svc := NewDocumentService(mStore, mRepo, mExt, Options{Template: tmpl})

	var mu sync.Mutex
	puts := map[string]int{}
	deletes := map[string]int{}

	mStore.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			mu.Lock()
			puts[args.String(1)]++
			mu.Unlock()
		}).Return(storage.ObjectInfo{}, nil)
	mStore.On("Get", mock.Anything, mock.Anything).
		Return(func(context.Context, string) io.ReadCloser {
			return io.NopCloser(bytes.NewReader(pngBytes))
		}, storage.ObjectInfo{}, nil)
	mStore.On("Delete", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			mu.Lock()
			deletes[args.String(1)]++
			mu.Unlock()
		}).Return(nil)
	mExt.On("Extract", mock.Anything, mock.Anything).
		Return(func(context.Context, extraction.Request) extraction.Prediction {
			return completePrediction()
		}, nil)
	mRepo.On("Create", mock.Anything, mock.Anything).Return(&model.DocumentRecord{ID: "ok"}, nil)

	start := make(chan struct{})
	errs := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := svc.Process(context.Background(), pngUpload())
			errs <- err
		}()
	}
	close(start)
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Len(t, puts, n, "every request writes its own scratch key")
	for key, count := range puts {
		assert.Equal(t, 1, count, "key %s written more than once", key)
		assert.Equal(t, 1, deletes[key], "key %s not deleted exactly once", key)
	}
	assert.Len(t, deletes, n)
}

func TestScratchKey_UniqueAcrossGoroutines(t *testing.T) {
	const workers, perWorker = 16, 200

	var mu sync.Mutex
	seen := make(map[string]struct{}, workers*perWorker)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				k := scratchKey(validator.TypePDF)
				mu.Lock()
				seen[k] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*perWorker)
	for k := range seen {
		if !strings.HasPrefix(k, "scratch/") || !strings.HasSuffix(k, ".pdf") {
			t.Fatalf("unexpected scratch key %q", k)
		}
	}
}

func TestProcess_CleanupFailureIsOnlyLogged(t *testing.T) {
	var logs bytes.Buffer
	prev := logging.SetOutput(&logs)
	defer logging.SetOutput(prev)

	mStore := new(storeMocks.MockStorage)
	mExt := new(extMocks.MockExtractor)
	mRepo := new(repoMocks.MockDocumentRepository)
	svc := NewDocumentService(mStore, mRepo, mExt, Options{Template: tmpl})

	mStore.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(storage.ObjectInfo{}, nil)
	mStore.On("Get", mock.Anything, mock.Anything).Return(io.NopCloser(bytes.NewReader(pngBytes)), storage.ObjectInfo{}, nil)
	mStore.On("Delete", mock.Anything, mock.Anything).Return(errors.New("disk on fire"))
	mExt.On("Extract", mock.Anything, mock.Anything).Return(completePrediction(), nil)
	mRepo.On("Create", mock.Anything, mock.Anything).Return(&model.DocumentRecord{ID: "ok"}, nil)

	got, err := svc.Process(context.Background(), pngUpload())

	require.NoError(t, err)
	assert.Equal(t, "ok", got.ID)
	assert.Contains(t, logs.String(), "scratch_cleanup_failed")
	assert.Contains(t, logs.String(), "disk on fire")
}

func TestProcess_ScratchCollisionDoesNotDeleteOtherObject(t *testing.T) {
	mStore := new(storeMocks.MockStorage)
	svc := NewDocumentService(mStore, new(repoMocks.MockDocumentRepository), new(extMocks.MockExtractor), Options{})

	mStore.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(storage.ObjectInfo{}, storage.ErrKeyExists)

	_, err := svc.Process(context.Background(), pngUpload())

	assert.ErrorIs(t, err, storage.ErrKeyExists)
	mStore.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestProcess_ScratchWriteFailureStillCleansUp(t *testing.T) {
	mStore := new(storeMocks.MockStorage)
	svc := NewDocumentService(mStore, new(repoMocks.MockDocumentRepository), new(extMocks.MockExtractor), Options{})

	mStore.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(storage.ObjectInfo{}, errors.New("disk full"))
	mStore.On("Delete", mock.Anything, mock.Anything).Return(nil)

	_, err := svc.Process(context.Background(), pngUpload())

	assert.ErrorContains(t, err, "write scratch")
	mStore.AssertNumberOfCalls(t, "Delete", 1)
}

func TestProcess_RecordsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	pm, err := metrics.NewPipeline(reg)
	require.NoError(t, err)

	f := newFixture(t, Options{Metrics: pm})
	f.extractor.On("Extract", mock.Anything, mock.Anything).Return(completePrediction(), nil)
	f.repo.On("Create", mock.Anything, mock.Anything).Return(&model.DocumentRecord{ID: "1"}, nil)

	_, err = f.svc.Process(context.Background(), pngUpload())
	require.NoError(t, err)
	_, err = f.svc.Process(context.Background(), Upload{Reader: strings.NewReader("x"), ContentType: "text/plain", Size: 1})
	require.Error(t, err)

	counts := map[string]float64{}
	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != "document_uploads_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			counts[m.GetLabel()[0].GetValue()] = m.GetCounter().GetValue()
		}
	}
	assert.Equal(t, map[string]float64{metrics.OutcomeSuccess: 1, metrics.OutcomeRejected: 1}, counts)
}

func TestOutcomeOf(t *testing.T) {
	assert.Equal(t, metrics.OutcomeSuccess, outcomeOf(nil))
	assert.Equal(t, metrics.OutcomeRejected, outcomeOf(validator.ValidateDeclared("image/gif", 1)))
	assert.Equal(t, metrics.OutcomeExtractionFailed, outcomeOf(extraction.ErrNoInference))
	assert.Equal(t, metrics.OutcomeEmptyPrediction, outcomeOf(extraction.ErrEmptyPrediction))
	assert.Equal(t, metrics.OutcomeIncomplete, outcomeOf(&mapper.IncompleteError{Missing: []string{"gender"}}))
	assert.Equal(t, metrics.OutcomeError, outcomeOf(errors.New("boom")))
}

func TestDocumentService_List(t *testing.T) {
	ctx := context.Background()
	mRepo := new(repoMocks.MockDocumentRepository)
	svc := NewDocumentService(new(storeMocks.MockStorage), mRepo, new(extMocks.MockExtractor), Options{})

	docs := []model.DocumentRecord{{ID: "1"}, {ID: "2"}}
	mRepo.On("List", ctx).Return(docs, nil).Once()
	mRepo.On("List", ctx).Return(nil, errors.New("db error")).Once()

	got, err := svc.List(ctx)
	assert.NoError(t, err)
	assert.Equal(t, docs, got)

	_, err = svc.List(ctx)
	assert.Error(t, err)
}

func TestDocumentService_Export(t *testing.T) {
	ctx := context.Background()
	mRepo := new(repoMocks.MockDocumentRepository)
	svc := NewDocumentService(new(storeMocks.MockStorage), mRepo, new(extMocks.MockExtractor), Options{})

	mRepo.On("List", ctx).Return([]model.DocumentRecord{{ID: "1", Name: "Asha"}}, nil).Once()
	mRepo.On("List", ctx).Return(nil, errors.New("db error")).Once()

	b, err := svc.Export(ctx)
	require.NoError(t, err)
	// xlsx files are zip archives
	assert.True(t, bytes.HasPrefix(b, []byte("PK")))

	_, err = svc.Export(ctx)
	assert.ErrorContains(t, err, "list documents")
}
