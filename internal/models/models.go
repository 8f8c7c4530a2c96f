package models

import "time"

// AssetRef is a durable pointer to a blob in external object storage. The key
// is the only handle needed to delete the blob later; the URL is what clients
// fetch. A ref is exclusively owned by the record holding it.
type AssetRef struct {
	URL string `json:"url"`
	Key string `json:"-"`
}

// Zero reports whether the ref points at nothing.
func (r AssetRef) Zero() bool {
	return r.Key == "" && r.URL == ""
}

// Identity represents an account on the Clipstream platform.
type Identity struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"fullname"`

	// Bcrypt hash, never serialized.
	Password string `json:"-"`

	// Single-slot refresh credential: at most one live refresh token per
	// identity. Replacing the slot invalidates the previous token, which is
	// what makes the otherwise stateless refresh tokens revocable.
	RefreshToken         string     `json:"-"`
	RefreshTokenIssuedAt *time.Time `json:"-"`

	Avatar AssetRef `json:"avatar"`
	Cover  AssetRef `json:"coverImage"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Video is a published media record owned by an identity.
type Video struct {
	ID          string `json:"id"`
	OwnerID     string `json:"ownerId"`
	Title       string `json:"title"`
	Description string `json:"description"`

	VideoFile AssetRef `json:"videoFile"`
	Thumbnail AssetRef `json:"thumbnail"`

	// Duration in seconds as reported by the object store on upload.
	Duration  float64 `json:"duration"`
	Published bool    `json:"isPublished"`
	Views     int64   `json:"views"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// VideoOwner is the projection of an identity attached to listed videos.
type VideoOwner struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	FullName string `json:"fullname"`
}

// VideoWithOwner enriches a video with its owner's public fields.
type VideoWithOwner struct {
	Video
	Owner VideoOwner `json:"owner"`
}

// TokenPair groups the bearer credentials issued to authenticated users.
type TokenPair struct {
	AccessToken      string    `json:"accessToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshToken     string    `json:"refreshToken"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}
