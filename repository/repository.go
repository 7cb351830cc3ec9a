package repository

import (
	"context"

	"github.com/goliatone/go-persistence-bun/query"
	"github.com/google/uuid"
)

// ModelHandlers supplies the per-entity accessors a repository needs. Models
// carry their schema mapping in bun struct tags; the handlers cover what
// tags cannot express: identity access and record construction. Every
// handler is required.
type ModelHandlers[T any] struct {
	NewRecord func() T
	GetID     func(T) uuid.UUID
	SetID     func(T, uuid.UUID)
}

func (h ModelHandlers[T]) validate() error {
	if h.NewRecord == nil || h.GetID == nil || h.SetID == nil {
		return ConfigError("repository: ModelHandlers requires NewRecord, GetID and SetID")
	}
	return nil
}

// Repository is the contract application-layer command/query handlers are
// allowed to depend on.
type Repository[T any] interface {
	FindByID(ctx context.Context, id uuid.UUID, opts ...*QueryOptions) (T, error)
	FindOne(ctx context.Context, opts ...*QueryOptions) (T, error)
	FindMany(ctx context.Context, opts ...*QueryOptions) ([]T, error)
	Paginate(ctx context.Context, req PageRequest, opts ...*QueryOptions) (Page[T], error)
	Create(ctx context.Context, record T) (T, error)
	CreateMany(ctx context.Context, records []T) ([]T, error)
	Save(ctx context.Context, record T) (T, error)
	Update(ctx context.Context, id uuid.UUID, data map[string]any) (T, error)
	UpdateEntity(ctx context.Context, record T) (T, error)
	UpdateMany(ctx context.Context, filter query.Filter, data map[string]any) (int64, error)
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteMany(ctx context.Context, filter query.Filter) (int64, error)
	Exists(ctx context.Context, filter query.Filter) (bool, error)
	Count(ctx context.Context, filter query.Filter) (int, error)
}
