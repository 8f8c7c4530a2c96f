package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/clipstream/backend/internal/apperrors"
	"github.com/clipstream/backend/internal/assets"
	"github.com/clipstream/backend/internal/auth"
	"github.com/clipstream/backend/internal/models"
	"github.com/clipstream/backend/internal/repositories"
)

// memIdentityStore is an in-memory IdentityStore that also satisfies the
// token authority's persistence interface.
type memIdentityStore struct {
	mu         sync.Mutex
	identities map[string]models.Identity
	existsErr  error
	createErr  error
}

func newMemIdentityStore() *memIdentityStore {
	return &memIdentityStore{identities: map[string]models.Identity{}}
}

func (s *memIdentityStore) Create(_ context.Context, identity models.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	for _, existing := range s.identities {
		if existing.Username == identity.Username || existing.Email == identity.Email {
			return fmt.Errorf("duplicate identity: %w", apperrors.ErrConflict)
		}
	}
	s.identities[identity.ID] = identity
	return nil
}

func (s *memIdentityStore) FindByID(_ context.Context, id string) (models.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.identities[id]
	if !ok {
		return models.Identity{}, fmt.Errorf("identity %s: %w", id, apperrors.ErrNotFound)
	}
	return identity, nil
}

func (s *memIdentityStore) FindByUsername(_ context.Context, username string) (models.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, identity := range s.identities {
		if identity.Username == username {
			return identity, nil
		}
	}
	return models.Identity{}, fmt.Errorf("username %s: %w", username, apperrors.ErrNotFound)
}

func (s *memIdentityStore) FindByLogin(_ context.Context, login string) (models.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, identity := range s.identities {
		if identity.Username == login || identity.Email == login {
			return identity, nil
		}
	}
	return models.Identity{}, fmt.Errorf("login %s: %w", login, apperrors.ErrNotFound)
}

func (s *memIdentityStore) ExistsByUsernameOrEmail(_ context.Context, username, email string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.existsErr != nil {
		return false, s.existsErr
	}
	for _, identity := range s.identities {
		if identity.Username == username || identity.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (s *memIdentityStore) Update(_ context.Context, identity models.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.identities[identity.ID]; !ok {
		return fmt.Errorf("identity %s: %w", identity.ID, apperrors.ErrNotFound)
	}
	stored := s.identities[identity.ID]
	identity.RefreshToken = stored.RefreshToken
	identity.RefreshTokenIssuedAt = stored.RefreshTokenIssuedAt
	s.identities[identity.ID] = identity
	return nil
}

func (s *memIdentityStore) SetAvatar(_ context.Context, id string, ref models.AssetRef) error {
	return s.setRef(id, func(identity *models.Identity) { identity.Avatar = ref })
}

func (s *memIdentityStore) SetCover(_ context.Context, id string, ref models.AssetRef) error {
	return s.setRef(id, func(identity *models.Identity) { identity.Cover = ref })
}

func (s *memIdentityStore) setRef(id string, apply func(*models.Identity)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.identities[id]
	if !ok {
		return fmt.Errorf("identity %s: %w", id, apperrors.ErrNotFound)
	}
	apply(&identity)
	s.identities[id] = identity
	return nil
}

func (s *memIdentityStore) SetRefreshToken(_ context.Context, id, token string, issuedAt time.Time) error {
	return s.setRef(id, func(identity *models.Identity) {
		identity.RefreshToken = token
		identity.RefreshTokenIssuedAt = &issuedAt
	})
}

func (s *memIdentityStore) SwapRefreshToken(_ context.Context, id, old, token string, issuedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.identities[id]
	if !ok || identity.RefreshToken != old {
		return fmt.Errorf("refresh slot: %w", apperrors.ErrNotFound)
	}
	identity.RefreshToken = token
	identity.RefreshTokenIssuedAt = &issuedAt
	s.identities[id] = identity
	return nil
}

func (s *memIdentityStore) ClearRefreshToken(_ context.Context, id string) error {
	return s.setRef(id, func(identity *models.Identity) {
		identity.RefreshToken = ""
		identity.RefreshTokenIssuedAt = nil
	})
}

// memVideoStore is an in-memory VideoStore.
type memVideoStore struct {
	mu        sync.Mutex
	videos    map[string]models.Video
	owners    map[string]models.VideoOwner
	createErr error
	deleteErr error
}

func newMemVideoStore() *memVideoStore {
	return &memVideoStore{videos: map[string]models.Video{}, owners: map[string]models.VideoOwner{}}
}

func (s *memVideoStore) Create(_ context.Context, video models.Video) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	s.videos[video.ID] = video
	return nil
}

func (s *memVideoStore) FindByID(_ context.Context, id string) (models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	video, ok := s.videos[id]
	if !ok {
		return models.Video{}, fmt.Errorf("video %s: %w", id, apperrors.ErrNotFound)
	}
	return video, nil
}

func (s *memVideoStore) FindByIDWithOwner(ctx context.Context, id string) (models.VideoWithOwner, error) {
	video, err := s.FindByID(ctx, id)
	if err != nil {
		return models.VideoWithOwner{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.VideoWithOwner{Video: video, Owner: s.owners[video.OwnerID]}, nil
}

func (s *memVideoStore) List(_ context.Context, opts repositories.VideoListOptions) ([]models.VideoWithOwner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.VideoWithOwner
	for _, video := range s.videos {
		if opts.OwnerID != "" && video.OwnerID != opts.OwnerID {
			continue
		}
		if opts.PublishedOnly && !video.Published {
			continue
		}
		out = append(out, models.VideoWithOwner{Video: video, Owner: s.owners[video.OwnerID]})
	}
	sort.Slice(out, func(i, j int) bool {
		if opts.Descending {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *memVideoStore) Update(_ context.Context, video models.Video) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.videos[video.ID]; !ok {
		return fmt.Errorf("video %s: %w", video.ID, apperrors.ErrNotFound)
	}
	s.videos[video.ID] = video
	return nil
}

func (s *memVideoStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	if _, ok := s.videos[id]; !ok {
		return fmt.Errorf("video %s: %w", id, apperrors.ErrNotFound)
	}
	delete(s.videos, id)
	return nil
}

func (s *memVideoStore) IncrementViews(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	video, ok := s.videos[id]
	if !ok {
		return fmt.Errorf("video %s: %w", id, apperrors.ErrNotFound)
	}
	video.Views++
	s.videos[id] = video
	return nil
}

// memAssets mimics the upload-then-persist contract of the real coordinator
// while recording which blobs were stored and discarded.
type memAssets struct {
	mu             sync.Mutex
	uploaded       []string
	deleted        []string
	failUploadKind string
}

func (a *memAssets) upload(in assets.Input) (models.AssetRef, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failUploadKind == in.Kind {
		return models.AssetRef{}, fmt.Errorf("upload %s: %w", in.Kind, apperrors.ErrUploadFailed)
	}
	key := in.Kind + "/" + in.Name
	a.uploaded = append(a.uploaded, key)
	return models.AssetRef{URL: "https://cdn.test/" + key, Key: key}, nil
}

func (a *memAssets) discard(refs ...models.AssetRef) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, ref := range refs {
		if !ref.Zero() {
			a.deleted = append(a.deleted, ref.Key)
		}
	}
}

func (a *memAssets) CreateWithAssets(_ context.Context, inputs []assets.Input, persist func([]models.AssetRef) error) ([]models.AssetRef, error) {
	refs := make([]models.AssetRef, 0, len(inputs))
	for _, in := range inputs {
		ref, err := a.upload(in)
		if err != nil {
			a.discard(refs...)
			return nil, err
		}
		refs = append(refs, ref)
	}
	if err := persist(refs); err != nil {
		a.discard(refs...)
		return nil, err
	}
	return refs, nil
}

func (a *memAssets) ReplaceAsset(_ context.Context, old models.AssetRef, in assets.Input, apply func(models.AssetRef) error) (models.AssetRef, error) {
	ref, err := a.upload(in)
	if err != nil {
		return models.AssetRef{}, err
	}
	if err := apply(ref); err != nil {
		a.discard(ref)
		return models.AssetRef{}, err
	}
	a.discard(old)
	return ref, nil
}

func (a *memAssets) DeleteWithAssets(_ context.Context, refs []models.AssetRef, remove func() error) error {
	a.discard(refs...)
	return remove()
}

// testEnv bundles a fully wired mux with the fakes behind it.
type testEnv struct {
	mux        *http.ServeMux
	identities *memIdentityStore
	videos     *memVideoStore
	assets     *memAssets
	authority  *auth.Authority
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	identities := newMemIdentityStore()
	videos := newMemVideoStore()
	assetStore := &memAssets{}

	authority, err := auth.NewAuthority(auth.AuthorityConfig{
		AccessSecret:  "test-access-secret-test-access-secret",
		RefreshSecret: "test-refresh-secret-test-refresh-secret",
	}, identities)
	if err != nil {
		t.Fatalf("new authority: %v", err)
	}

	mux := http.NewServeMux()
	RegisterRoutes(mux, Dependencies{
		Identities:     identities,
		Videos:         videos,
		Tokens:         authority,
		Assets:         assetStore,
		Cookies:        auth.CookieWriter{Secure: false},
		MaxUploadBytes: 1 << 20,
	})

	return &testEnv{mux: mux, identities: identities, videos: videos, assets: assetStore, authority: authority}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	StatusCode int             `json:"statusCode"`
	Data       json.RawMessage `json:"data"`
	Message    string          `json:"message"`
	ErrorKind  string          `json:"errorKind"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v body=%s", err, rec.Body.String())
	}
	return env
}

// multipartBody builds a multipart form with the given text fields and files.
// Files map field name to file name; every file carries the same stub bytes.
func multipartBody(t *testing.T, fields map[string]string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			t.Fatalf("write field %s: %v", name, err)
		}
	}
	for field, filename := range files {
		part, err := writer.CreateFormFile(field, filename)
		if err != nil {
			t.Fatalf("create file part %s: %v", field, err)
		}
		if _, err := io.WriteString(part, "stub-bytes"); err != nil {
			t.Fatalf("write file part %s: %v", field, err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return body, writer.FormDataContentType()
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}
