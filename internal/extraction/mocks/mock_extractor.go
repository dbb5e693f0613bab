package mocks

import (
	"context"

	"docintake/internal/extraction"

	"github.com/stretchr/testify/mock"
)

type MockExtractor struct {
	mock.Mock
}

func (m *MockExtractor) Extract(ctx context.Context, req extraction.Request) (extraction.Prediction, error) {
	args := m.Called(ctx, req)
	if f, ok := args.Get(0).(func(context.Context, extraction.Request) extraction.Prediction); ok {
		return f(ctx, req), args.Error(1)
	}
	var p extraction.Prediction
	if v := args.Get(0); v != nil {
		p = v.(extraction.Prediction)
	}
	return p, args.Error(1)
}
