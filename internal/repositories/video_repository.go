package repositories

import (
	"context"

	"github.com/clipstream/backend/internal/models"
)

// VideoListOptions narrows and orders a video listing. SortBy accepts title,
// views, or createdAt; anything else falls back to createdAt.
type VideoListOptions struct {
	OwnerID       string
	PublishedOnly bool
	SortBy        string
	Descending    bool
	Limit         int
	Offset        int
}

// VideoRepository defines persistence for published media records.
type VideoRepository interface {
	Create(ctx context.Context, video models.Video) error
	FindByID(ctx context.Context, id string) (models.Video, error)
	FindByIDWithOwner(ctx context.Context, id string) (models.VideoWithOwner, error)
	List(ctx context.Context, opts VideoListOptions) ([]models.VideoWithOwner, error)
	Update(ctx context.Context, video models.Video) error
	Delete(ctx context.Context, id string) error
	IncrementViews(ctx context.Context, id string) error
}
