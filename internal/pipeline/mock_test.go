package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/keyword-cli/internal/classify"
	"github.com/sells-group/keyword-cli/internal/model"
	"github.com/sells-group/keyword-cli/pkg/anthropic"
)

type mockClassifier struct {
	mock.Mock
}

func (m *mockClassifier) Submit(ctx context.Context, pending []model.PendingRequest) (string, error) {
	args := m.Called(ctx, pending)
	return args.String(0), args.Error(1)
}

func (m *mockClassifier) Collect(ctx context.Context, batchID string, pending []model.PendingRequest) (*classify.Result, error) {
	args := m.Called(ctx, batchID, pending)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*classify.Result), args.Error(1)
}

func (m *mockClassifier) Run(ctx context.Context, pending []model.PendingRequest, progress func(*anthropic.BatchResponse)) (*classify.Result, error) {
	args := m.Called(ctx, pending, progress)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*classify.Result), args.Error(1)
}
