package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clipstream/backend/internal/apperrors"
	"github.com/clipstream/backend/internal/assets"
	"github.com/clipstream/backend/internal/logging"
	"github.com/clipstream/backend/internal/models"
	"github.com/clipstream/backend/internal/repositories"
)

// VideoHandler implements video publishing and catalog endpoints.
type VideoHandler struct {
	Videos         VideoStore
	Assets         AssetCoordinator
	MaxUploadBytes int64
}

type publishForm struct {
	Title       string `validate:"required,max=200"`
	Description string `validate:"max=5000"`
}

type videoPage struct {
	Videos []models.VideoWithOwner `json:"videos"`
	Page   int                     `json:"page"`
	Limit  int                     `json:"limit"`
}

// Publish handles POST /api/v1/videos requests. The multipart form carries
// title, description, and the videoFile and thumbnail uploads.
func (h VideoHandler) Publish(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	session, err := sessionFrom(ctx)
	if err != nil {
		respondError(ctx, w, err, "authentication required")
		return
	}

	if err := parseMultipart(w, r, h.MaxUploadBytes); err != nil {
		respondError(ctx, w, err, "invalid publish form")
		return
	}

	form := publishForm{
		Title:       strings.TrimSpace(r.FormValue("title")),
		Description: strings.TrimSpace(r.FormValue("description")),
	}
	if err := validateStruct(form); err != nil {
		respondError(ctx, w, err, "title is required")
		return
	}

	duration, err := parseDuration(r.FormValue("duration"))
	if err != nil {
		respondError(ctx, w, err, "duration must be a non-negative number of seconds")
		return
	}

	var closers []io.Closer
	defer func() { closeAll(closers) }()

	videoIn, videoFile, _, err := formFile(r, "videoFile", "videos", true)
	if err != nil {
		respondError(ctx, w, err, "video file is required")
		return
	}
	closers = append(closers, videoFile)

	thumbIn, thumbFile, _, err := formFile(r, "thumbnail", "thumbnails", true)
	if err != nil {
		respondError(ctx, w, err, "thumbnail is required")
		return
	}
	closers = append(closers, thumbFile)

	now := time.Now().UTC()
	video := models.Video{
		ID:          uuid.NewString(),
		OwnerID:     session.IdentityID,
		Title:       form.Title,
		Description: form.Description,
		Duration:    duration,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	_, err = h.Assets.CreateWithAssets(ctx, []assets.Input{videoIn, thumbIn}, func(refs []models.AssetRef) error {
		video.VideoFile = refs[0]
		video.Thumbnail = refs[1]
		return h.Videos.Create(ctx, video)
	})
	if err != nil {
		respondError(ctx, w, err, "could not publish video")
		return
	}

	logging.FromContext(ctx).Info("video published", "videoId", video.ID, "ownerId", video.OwnerID)
	respondData(ctx, w, http.StatusCreated, video, "video published")
}

// List handles GET /api/v1/videos requests. Unpublished entries only appear
// when the requester filters by their own channel.
func (h VideoHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	session, err := sessionFrom(ctx)
	if err != nil {
		respondError(ctx, w, err, "authentication required")
		return
	}

	query := r.URL.Query()
	page := parsePositiveInt(query.Get("page"), 1)
	limit := parsePositiveInt(query.Get("limit"), 10)
	ownerID := strings.TrimSpace(query.Get("userId"))

	opts := repositories.VideoListOptions{
		OwnerID:       ownerID,
		PublishedOnly: ownerID == "" || ownerID != session.IdentityID,
		SortBy:        query.Get("sortBy"),
		Descending:    !strings.EqualFold(query.Get("sortType"), "asc"),
		Limit:         limit,
		Offset:        (page - 1) * limit,
	}

	videos, err := h.Videos.List(ctx, opts)
	if err != nil {
		respondError(ctx, w, err, "could not list videos")
		return
	}

	respondData(ctx, w, http.StatusOK, videoPage{Videos: videos, Page: page, Limit: limit}, "videos")
}

// Get handles GET /api/v1/videos/{id} requests and counts the view.
func (h VideoHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	session, err := sessionFrom(ctx)
	if err != nil {
		respondError(ctx, w, err, "authentication required")
		return
	}

	video, err := h.Videos.FindByIDWithOwner(ctx, r.PathValue("id"))
	if err != nil {
		respondError(ctx, w, err, "video not found")
		return
	}

	// Drafts are visible to their owner only and read as absent to anyone else.
	if !video.Published && video.OwnerID != session.IdentityID {
		respondError(ctx, w, fmt.Errorf("%w: video %s is not published", apperrors.ErrNotFound, video.ID), "video not found")
		return
	}

	if video.Published {
		if err := h.Videos.IncrementViews(ctx, video.ID); err != nil {
			logging.FromContext(ctx).Warn("increment views", "videoId", video.ID, "error", err)
		} else {
			video.Views++
		}
	}

	respondData(ctx, w, http.StatusOK, video, "video")
}

// Update handles PATCH /api/v1/videos/{id} requests. Title and description
// come from the multipart form; a thumbnail file is optional and replaces the
// existing one when present.
func (h VideoHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	video, ok := h.ownedVideo(w, r)
	if !ok {
		return
	}

	if err := parseMultipart(w, r, h.MaxUploadBytes); err != nil {
		respondError(ctx, w, err, "invalid update form")
		return
	}

	if title := strings.TrimSpace(r.FormValue("title")); title != "" {
		video.Title = title
	}
	if r.Form.Has("description") {
		video.Description = strings.TrimSpace(r.FormValue("description"))
	}
	video.UpdatedAt = time.Now().UTC()

	thumbIn, thumbFile, hasThumb, err := formFile(r, "thumbnail", "thumbnails", false)
	if err != nil {
		respondError(ctx, w, err, "invalid thumbnail upload")
		return
	}

	if !hasThumb {
		if err := h.Videos.Update(ctx, video); err != nil {
			respondError(ctx, w, err, "could not update video")
			return
		}
		respondData(ctx, w, http.StatusOK, video, "video updated")
		return
	}
	defer thumbFile.Close()

	if _, err := h.Assets.ReplaceAsset(ctx, video.Thumbnail, thumbIn, func(ref models.AssetRef) error {
		video.Thumbnail = ref
		return h.Videos.Update(ctx, video)
	}); err != nil {
		respondError(ctx, w, err, "could not update video")
		return
	}

	respondData(ctx, w, http.StatusOK, video, "video updated")
}

// Delete handles DELETE /api/v1/videos/{id} requests. Both blobs go first;
// the record is only removed once the storage side has let go of them.
func (h VideoHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	video, ok := h.ownedVideo(w, r)
	if !ok {
		return
	}

	refs := []models.AssetRef{video.VideoFile, video.Thumbnail}
	err := h.Assets.DeleteWithAssets(ctx, refs, func() error {
		return h.Videos.Delete(ctx, video.ID)
	})
	if err != nil {
		respondError(ctx, w, err, "could not delete video")
		return
	}

	logging.FromContext(ctx).Info("video deleted", "videoId", video.ID)
	respondData(ctx, w, http.StatusOK, map[string]any{}, "video deleted")
}

// TogglePublish handles PATCH /api/v1/videos/{id}/publish requests.
func (h VideoHandler) TogglePublish(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	video, ok := h.ownedVideo(w, r)
	if !ok {
		return
	}

	video.Published = !video.Published
	video.UpdatedAt = time.Now().UTC()
	if err := h.Videos.Update(ctx, video); err != nil {
		respondError(ctx, w, err, "could not toggle publish state")
		return
	}

	respondData(ctx, w, http.StatusOK, map[string]bool{"isPublished": video.Published}, "publish state toggled")
}

// ownedVideo loads the addressed video and enforces that the session owns it.
func (h VideoHandler) ownedVideo(w http.ResponseWriter, r *http.Request) (models.Video, bool) {
	ctx := r.Context()

	session, err := sessionFrom(ctx)
	if err != nil {
		respondError(ctx, w, err, "authentication required")
		return models.Video{}, false
	}

	video, err := h.Videos.FindByID(ctx, r.PathValue("id"))
	if err != nil {
		respondError(ctx, w, err, "video not found")
		return models.Video{}, false
	}

	if video.OwnerID != session.IdentityID {
		respondError(ctx, w, fmt.Errorf("%w: video %s belongs to another channel", apperrors.ErrForbidden, video.ID), "you do not own this video")
		return models.Video{}, false
	}
	return video, true
}

func parsePositiveInt(raw string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

func parseDuration(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil || seconds < 0 {
		return 0, fmt.Errorf("%w: invalid duration %q", apperrors.ErrValidation, raw)
	}
	return seconds, nil
}
