// Package assets coordinates mutations that touch both the database and
// external object storage, making "upload blobs, then write a record
// referencing them" appear atomic to callers.
package assets

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/clipstream/backend/internal/apperrors"
	"github.com/clipstream/backend/internal/logging"
	"github.com/clipstream/backend/internal/models"
)

// ObjectStore is the opaque blob service the coordinator drives. Both
// operations can fail independently and nothing ties them together
// transactionally; the coordinator compensates.
type ObjectStore interface {
	Upload(ctx context.Context, key string, body io.Reader) (models.AssetRef, error)
	Delete(ctx context.Context, key string) error
}

// Input describes one blob to upload. Kind becomes the key prefix so blobs of
// a feather group together in the bucket.
type Input struct {
	Kind string
	Name string
	Body io.Reader
}

const compensateTimeout = 10 * time.Second

// Coordinator wraps upload/persist/compensate sequencing. Compensation
// deletes are attempted once; their failures are logged and never surfaced,
// since an orphaned blob is an acceptable cost while blocking a committed
// mutation on storage cleanup is not.
type Coordinator struct {
	store  ObjectStore
	logger *slog.Logger
}

// NewCoordinator constructs a coordinator over the provided object store.
func NewCoordinator(store ObjectStore, logger *slog.Logger) *Coordinator {
	if store == nil {
		panic("assets: object store must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{store: store, logger: logger}
}

// CreateWithAssets uploads every input, then attempts the database write via
// persist. If any upload fails the database is never touched and blobs
// uploaded so far are removed. If persist fails, every uploaded blob is
// removed before the error propagates.
func (c *Coordinator) CreateWithAssets(ctx context.Context, inputs []Input, persist func(refs []models.AssetRef) error) ([]models.AssetRef, error) {
	ctx, span := logging.StartSpan(ctx, "assets.create")
	defer span.End()

	refs := make([]models.AssetRef, len(inputs))

	// Inputs are independent, so uploads may proceed concurrently.
	g, uploadCtx := errgroup.WithContext(ctx)
	for i, in := range inputs {
		g.Go(func() error {
			ref, err := c.store.Upload(uploadCtx, objectKey(in), in.Body)
			if err != nil {
				return fmt.Errorf("upload %s: %w: %v", in.Kind, apperrors.ErrUploadFailed, err)
			}
			refs[i] = ref
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		c.compensate(refs)
		return nil, err
	}

	if err := persist(refs); err != nil {
		c.compensate(refs)
		return nil, err
	}

	return refs, nil
}

// ReplaceAsset uploads the replacement blob, applies the new reference via a
// database write, and only then deletes the superseded blob. The old blob is
// never removed before the new reference is durably committed, so the record
// never points at nothing. A failed write deletes the fresh upload instead.
func (c *Coordinator) ReplaceAsset(ctx context.Context, old models.AssetRef, in Input, apply func(models.AssetRef) error) (models.AssetRef, error) {
	ctx, span := logging.StartSpan(ctx, "assets.replace")
	defer span.End()

	ref, err := c.store.Upload(ctx, objectKey(in), in.Body)
	if err != nil {
		return models.AssetRef{}, fmt.Errorf("upload %s: %w: %v", in.Kind, apperrors.ErrUploadFailed, err)
	}

	if err := apply(ref); err != nil {
		c.compensate([]models.AssetRef{ref})
		return models.AssetRef{}, err
	}

	if !old.Zero() {
		c.compensate([]models.AssetRef{old})
	}

	return ref, nil
}

// DeleteWithAssets removes every referenced blob, then the database record. A
// failed blob delete aborts before the record is touched: leaving undeleted
// blobs beats a surviving reader finding a record whose assets are half gone.
func (c *Coordinator) DeleteWithAssets(ctx context.Context, refs []models.AssetRef, remove func() error) error {
	ctx, span := logging.StartSpan(ctx, "assets.delete")
	defer span.End()

	for _, ref := range refs {
		if ref.Zero() {
			continue
		}
		if err := c.store.Delete(ctx, ref.Key); err != nil {
			return fmt.Errorf("delete asset %s: %w: %v", ref.Key, apperrors.ErrAssetDeletionFailed, err)
		}
	}

	return remove()
}

// compensate best-effort deletes the given blobs on a detached context, so a
// canceled request still gets its cleanup attempt.
func (c *Coordinator) compensate(refs []models.AssetRef) {
	ctx, cancel := context.WithTimeout(context.Background(), compensateTimeout)
	defer cancel()

	for _, ref := range refs {
		if ref.Zero() {
			continue
		}
		if err := c.store.Delete(ctx, ref.Key); err != nil {
			c.logger.Error("compensation delete failed, blob orphaned", "key", ref.Key, "error", err)
		}
	}
}

func objectKey(in Input) string {
	name := uuid.NewString()
	if ext := strings.ToLower(path.Ext(in.Name)); ext != "" {
		name += ext
	}
	return path.Join(in.Kind, name)
}
