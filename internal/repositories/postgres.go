package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/clipstream/backend/internal/apperrors"
	"github.com/clipstream/backend/internal/db"
	"github.com/clipstream/backend/internal/models"
)

// PostgresIdentityRepository provides PostgreSQL-backed persistence for identities.
type PostgresIdentityRepository struct {
	pool db.Pool
}

// NewPostgresIdentityRepository constructs an identity repository backed by PostgreSQL.
func NewPostgresIdentityRepository(pool db.Pool) *PostgresIdentityRepository {
	return &PostgresIdentityRepository{pool: pool}
}

const identityColumns = `
        id, username, email, fullname, password_hash,
        refresh_token, refresh_token_issued_at,
        avatar_url, avatar_key, cover_url, cover_key,
        created_at, updated_at`

// Create persists a new identity record.
func (r *PostgresIdentityRepository) Create(ctx context.Context, identity models.Identity) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO identities (id, username, email, fullname, password_hash,
                avatar_url, avatar_key, cover_url, cover_key, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
    `, identity.ID, identity.Username, identity.Email, identity.FullName, identity.Password,
		identity.Avatar.URL, identity.Avatar.Key, identity.Cover.URL, identity.Cover.Key,
		identity.CreatedAt, identity.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.ErrConflict
		}
		return fmt.Errorf("insert identity: %w", err)
	}

	return nil
}

// FindByID fetches an identity by its primary key.
func (r *PostgresIdentityRepository) FindByID(ctx context.Context, id string) (models.Identity, error) {
	return r.findOne(ctx, `WHERE id = $1`, id)
}

// FindByUsername fetches an identity by its case-folded username.
func (r *PostgresIdentityRepository) FindByUsername(ctx context.Context, username string) (models.Identity, error) {
	return r.findOne(ctx, `WHERE username = $1`, username)
}

// FindByLogin matches the supplied value against username or email.
func (r *PostgresIdentityRepository) FindByLogin(ctx context.Context, login string) (models.Identity, error) {
	return r.findOne(ctx, `WHERE username = $1 OR email = $1`, login)
}

func (r *PostgresIdentityRepository) findOne(ctx context.Context, where string, args ...any) (models.Identity, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Identity{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `SELECT `+identityColumns+` FROM identities `+where, args...)

	var (
		identity     models.Identity
		refreshToken *string
	)
	if err := row.Scan(&identity.ID, &identity.Username, &identity.Email, &identity.FullName,
		&identity.Password, &refreshToken, &identity.RefreshTokenIssuedAt,
		&identity.Avatar.URL, &identity.Avatar.Key, &identity.Cover.URL, &identity.Cover.Key,
		&identity.CreatedAt, &identity.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Identity{}, apperrors.ErrNotFound
		}
		return models.Identity{}, fmt.Errorf("select identity: %w", err)
	}

	if refreshToken != nil {
		identity.RefreshToken = *refreshToken
	}

	return identity, nil
}

// ExistsByUsernameOrEmail reports whether either unique field is taken.
func (r *PostgresIdentityRepository) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var exists bool
	err = conn.QueryRow(ctx, `
        SELECT EXISTS (SELECT 1 FROM identities WHERE username = $1 OR email = $2)
    `, username, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check identity exists: %w", err)
	}

	return exists, nil
}

// Update modifies the user-editable fields of an existing identity.
func (r *PostgresIdentityRepository) Update(ctx context.Context, identity models.Identity) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE identities
        SET fullname = $2, email = $3, password_hash = $4, updated_at = $5
        WHERE id = $1
    `, identity.ID, identity.FullName, identity.Email, identity.Password, identity.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.ErrConflict
		}
		return fmt.Errorf("update identity: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

// SetAvatar replaces the avatar asset reference.
func (r *PostgresIdentityRepository) SetAvatar(ctx context.Context, id string, ref models.AssetRef) error {
	return r.setAssetRef(ctx, id, "avatar_url", "avatar_key", ref)
}

// SetCover replaces the cover image asset reference.
func (r *PostgresIdentityRepository) SetCover(ctx context.Context, id string, ref models.AssetRef) error {
	return r.setAssetRef(ctx, id, "cover_url", "cover_key", ref)
}

func (r *PostgresIdentityRepository) setAssetRef(ctx context.Context, id, urlCol, keyCol string, ref models.AssetRef) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE identities SET `+urlCol+` = $2, `+keyCol+` = $3, updated_at = $4 WHERE id = $1
    `, id, ref.URL, ref.Key, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update identity asset: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

// SetRefreshToken overwrites the single refresh-token slot. This is a system
// update used at login and registration; it intentionally bypasses the
// user-edit path.
func (r *PostgresIdentityRepository) SetRefreshToken(ctx context.Context, id, token string, issuedAt time.Time) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE identities SET refresh_token = $2, refresh_token_issued_at = $3 WHERE id = $1
    `, id, token, issuedAt)
	if err != nil {
		return fmt.Errorf("set refresh token: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

// SwapRefreshToken rotates the slot only while it still holds old, so a
// concurrent rotation surfaces as ErrNotFound instead of last-write-wins.
func (r *PostgresIdentityRepository) SwapRefreshToken(ctx context.Context, id, old, token string, issuedAt time.Time) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE identities
        SET refresh_token = $3, refresh_token_issued_at = $4
        WHERE id = $1 AND refresh_token = $2
    `, id, old, token, issuedAt)
	if err != nil {
		return fmt.Errorf("swap refresh token: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

// ClearRefreshToken empties the slot. Clearing an already-empty slot is not
// an error; revocation is idempotent.
func (r *PostgresIdentityRepository) ClearRefreshToken(ctx context.Context, id string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        UPDATE identities SET refresh_token = NULL, refresh_token_issued_at = NULL WHERE id = $1
    `, id)
	if err != nil {
		return fmt.Errorf("clear refresh token: %w", err)
	}

	return nil
}

// PostgresVideoRepository provides PostgreSQL-backed persistence for videos.
type PostgresVideoRepository struct {
	pool db.Pool
}

// NewPostgresVideoRepository constructs a video repository backed by PostgreSQL.
func NewPostgresVideoRepository(pool db.Pool) *PostgresVideoRepository {
	return &PostgresVideoRepository{pool: pool}
}

// Create stores a new video record. The owner must exist; a broken foreign
// reference maps to ErrNotFound.
func (r *PostgresVideoRepository) Create(ctx context.Context, video models.Video) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO videos (id, owner_id, title, description,
                video_url, video_key, thumbnail_url, thumbnail_key,
                duration, is_published, views, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
    `, video.ID, video.OwnerID, video.Title, video.Description,
		video.VideoFile.URL, video.VideoFile.Key, video.Thumbnail.URL, video.Thumbnail.Key,
		video.Duration, video.Published, video.Views, video.CreatedAt, video.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case pgerrcode.UniqueViolation:
				return apperrors.ErrConflict
			case pgerrcode.ForeignKeyViolation:
				return apperrors.ErrNotFound
			}
		}
		return fmt.Errorf("insert video: %w", err)
	}

	return nil
}

// FindByID fetches a video by its primary key.
func (r *PostgresVideoRepository) FindByID(ctx context.Context, id string) (models.Video, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Video{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT id, owner_id, title, description,
               video_url, video_key, thumbnail_url, thumbnail_key,
               duration, is_published, views, created_at, updated_at
        FROM videos
        WHERE id = $1
    `, id)

	video, err := scanVideo(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Video{}, apperrors.ErrNotFound
		}
		return models.Video{}, fmt.Errorf("select video: %w", err)
	}

	return video, nil
}

// FindByIDWithOwner fetches a video along with its owner's public fields.
func (r *PostgresVideoRepository) FindByIDWithOwner(ctx context.Context, id string) (models.VideoWithOwner, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.VideoWithOwner{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT v.id, v.owner_id, v.title, v.description,
               v.video_url, v.video_key, v.thumbnail_url, v.thumbnail_key,
               v.duration, v.is_published, v.views, v.created_at, v.updated_at,
               i.id, i.username, i.fullname
        FROM videos v
        JOIN identities i ON i.id = v.owner_id
        WHERE v.id = $1
    `, id)

	enriched, err := scanVideoWithOwner(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.VideoWithOwner{}, apperrors.ErrNotFound
		}
		return models.VideoWithOwner{}, fmt.Errorf("select video with owner: %w", err)
	}

	return enriched, nil
}

var videoSortColumns = map[string]string{
	"title":     "v.title",
	"views":     "v.views",
	"createdAt": "v.created_at",
}

// List returns videos with their owners applying the provided filters.
func (r *PostgresVideoRepository) List(ctx context.Context, opts VideoListOptions) ([]models.VideoWithOwner, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	sortCol, ok := videoSortColumns[opts.SortBy]
	if !ok {
		sortCol = "v.created_at"
	}
	direction := "ASC"
	if opts.Descending {
		direction = "DESC"
	}
	if opts.Limit <= 0 || opts.Limit > 100 {
		opts.Limit = 100
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}

	rows, err := conn.Query(ctx, `
        SELECT v.id, v.owner_id, v.title, v.description,
               v.video_url, v.video_key, v.thumbnail_url, v.thumbnail_key,
               v.duration, v.is_published, v.views, v.created_at, v.updated_at,
               i.id, i.username, i.fullname
        FROM videos v
        JOIN identities i ON i.id = v.owner_id
        WHERE ($1 = '' OR v.owner_id = $1)
          AND (NOT $2 OR v.is_published)
        ORDER BY `+sortCol+` `+direction+`
        LIMIT $3 OFFSET $4
    `, opts.OwnerID, opts.PublishedOnly, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("query videos: %w", err)
	}
	defer rows.Close()

	var videos []models.VideoWithOwner
	for rows.Next() {
		enriched, err := scanVideoWithOwner(rows)
		if err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		videos = append(videos, enriched)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate videos: %w", err)
	}

	return videos, nil
}

// Update modifies the mutable fields of an existing video record.
func (r *PostgresVideoRepository) Update(ctx context.Context, video models.Video) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE videos
        SET title = $2, description = $3,
            thumbnail_url = $4, thumbnail_key = $5,
            is_published = $6, updated_at = $7
        WHERE id = $1
    `, video.ID, video.Title, video.Description,
		video.Thumbnail.URL, video.Thumbnail.Key, video.Published, video.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update video: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

// Delete removes a video record.
func (r *PostgresVideoRepository) Delete(ctx context.Context, id string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `DELETE FROM videos WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete video: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

// IncrementViews bumps the view counter.
func (r *PostgresVideoRepository) IncrementViews(ctx context.Context, id string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `UPDATE videos SET views = views + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("increment views: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVideo(row rowScanner) (models.Video, error) {
	var video models.Video
	err := row.Scan(&video.ID, &video.OwnerID, &video.Title, &video.Description,
		&video.VideoFile.URL, &video.VideoFile.Key, &video.Thumbnail.URL, &video.Thumbnail.Key,
		&video.Duration, &video.Published, &video.Views, &video.CreatedAt, &video.UpdatedAt)
	return video, err
}

func scanVideoWithOwner(row rowScanner) (models.VideoWithOwner, error) {
	var enriched models.VideoWithOwner
	err := row.Scan(&enriched.ID, &enriched.OwnerID, &enriched.Title, &enriched.Description,
		&enriched.VideoFile.URL, &enriched.VideoFile.Key, &enriched.Thumbnail.URL, &enriched.Thumbnail.Key,
		&enriched.Duration, &enriched.Published, &enriched.Views, &enriched.CreatedAt, &enriched.UpdatedAt,
		&enriched.Owner.ID, &enriched.Owner.Username, &enriched.Owner.FullName)
	return enriched, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

var _ IdentityRepository = (*PostgresIdentityRepository)(nil)
var _ VideoRepository = (*PostgresVideoRepository)(nil)
