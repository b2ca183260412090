package repository

import (
	"context"

	"github.com/sakif/ai-code-relay/internal/model"
)

type ListOptions struct {
	Limit int
	Kind  model.CallKind // empty means every kind
}

// CallRepository stores the relay's call audit log.
type CallRepository interface {
	Record(ctx context.Context, rec *model.CallRecord) error
	ListRecent(ctx context.Context, opts ListOptions) ([]model.CallRecord, error)
}
