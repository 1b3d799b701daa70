package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "glabassets/internal/errors"
	"glabassets/internal/imaging"
	"glabassets/internal/infrastructure"
	"glabassets/internal/validation"
	"glabassets/pkg/contracts/domain"
)

type memRepo struct {
	mu        sync.Mutex
	assets    map[string]domain.Asset
	next      int
	insertErr error
}

func newMemRepo() *memRepo {
	return &memRepo{assets: make(map[string]domain.Asset)}
}

func (r *memRepo) List(ctx context.Context, category domain.Category) ([]domain.Asset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Asset
	for _, a := range r.assets {
		if category == domain.CategoryAll || category == "" || a.Category == category {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memRepo) Get(ctx context.Context, id string) (*domain.Asset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.assets[id]
	if !ok {
		return nil, fmt.Errorf("asset %s: %w", id, apperrors.ErrRecordNotFound)
	}
	return &a, nil
}

func (r *memRepo) Insert(ctx context.Context, a *domain.Asset) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return r.insertErr
	}
	r.next++
	a.ID = fmt.Sprintf("asset-%d", r.next)
	r.assets[a.ID] = *a
	return nil
}

func (r *memRepo) Update(ctx context.Context, a *domain.Asset) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.assets[a.ID]; !ok {
		return apperrors.ErrRecordNotFound
	}
	r.assets[a.ID] = *a
	return nil
}

func (r *memRepo) Delete(ctx context.Context, id string) (*domain.Asset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.assets[id]
	if !ok {
		return nil, apperrors.ErrRecordNotFound
	}
	delete(r.assets, id)
	return &a, nil
}

type fakeBlobs struct {
	mu        sync.Mutex
	uploads   map[string]string
	deleted   []string
	failOn    string
	deleteErr error
	n         int
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{uploads: make(map[string]string)}
}

func (b *fakeBlobs) Upload(ctx context.Context, folder, filename, contentType string, r io.Reader) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if folder == b.failOn {
		return "", errors.New("bucket unavailable")
	}
	data, _ := io.ReadAll(r)
	b.n++
	url := fmt.Sprintf("https://cdn/resolve-assets/%s/obj%d_%s", folder, b.n, filename)
	b.uploads[url] = string(data)
	return url, nil
}

func (b *fakeBlobs) Delete(ctx context.Context, url string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleted = append(b.deleted, url)
	return b.deleteErr
}

type passCompressor struct{ fellBack bool }

func (c passCompressor) Compress(ctx context.Context, data []byte, maxBytes int) ([]byte, imaging.Result, error) {
	if c.fellBack {
		return data, imaging.Result{FellBack: true, ContentType: "image/png", OutputBytes: len(data)}, nil
	}
	return []byte("jpeg:" + string(data)), imaging.Result{ContentType: "image/jpeg"}, nil
}

type mockDownloader struct{ mock.Mock }

func (m *mockDownloader) Download(ctx context.Context, sourceURL, filename string) (string, error) {
	args := m.Called(ctx, sourceURL, filename)
	return args.String(0), args.Error(1)
}

type fixture struct {
	svc   *Service
	repo  *memRepo
	blobs *fakeBlobs
	dl    *mockDownloader
}

func newFixture(c Compressor) *fixture {
	if c == nil {
		c = passCompressor{}
	}
	f := &fixture{repo: newMemRepo(), blobs: newFakeBlobs(), dl: &mockDownloader{}}
	f.svc = NewService(f.repo, f.blobs, c, f.dl, validation.New(), nil, infrastructure.DiscardLogger())
	return f
}

func upload(name, body string) *Upload {
	return &Upload{Filename: name, Size: int64(len(body)), Body: strings.NewReader(body)}
}

func validInput() domain.AssetInput {
	return domain.AssetInput{
		Title:       "Smooth Zoom",
		Category:    domain.CategoryTransitions,
		Description: "A zoom",
		Tags:        []string{"zoom"},
	}
}

func TestCreateUploadsAndInserts(t *testing.T) {
	f := newFixture(nil)

	a, err := f.svc.Create(context.Background(), validInput(), Files{
		Asset:     upload("zoom.drfx", "bundle"),
		Thumbnail: upload("thumb.png", "png-bytes"),
		Preview:   upload("clip.mp4", "video"),
	})
	require.NoError(t, err)

	assert.Equal(t, domain.AssetTypeDRFX, a.Type, "type inferred from the file name")
	assert.Contains(t, a.FileURL, "/assets/")
	require.NotNil(t, a.ThumbnailURL)
	assert.Contains(t, *a.ThumbnailURL, "/thumbnails/")
	assert.True(t, strings.HasSuffix(*a.ThumbnailURL, "thumb.jpg"))
	assert.Equal(t, "jpeg:png-bytes", f.blobs.uploads[*a.ThumbnailURL])
	require.NotNil(t, a.VideoPreviewURL)
	require.NotNil(t, a.SizeBytes)
	assert.Equal(t, int64(6), *a.SizeBytes)
	assert.Nil(t, a.YoutubeURL)

	stored, err := f.svc.Get(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Smooth Zoom", stored.Title)
}

func TestCreateThumbnailFallbackKeepsExtension(t *testing.T) {
	f := newFixture(passCompressor{fellBack: true})

	a, err := f.svc.Create(context.Background(), validInput(), Files{
		Asset:     upload("zoom.drfx", "bundle"),
		Thumbnail: upload("thumb.png", "huge"),
	})
	require.NoError(t, err)
	require.NotNil(t, a.ThumbnailURL)
	assert.True(t, strings.HasSuffix(*a.ThumbnailURL, "thumb.png"))
	assert.Equal(t, "huge", f.blobs.uploads[*a.ThumbnailURL])
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(nil)

	_, err := f.svc.Create(context.Background(), domain.AssetInput{Category: "nope"}, Files{Asset: upload("a.drfx", "x")})
	var apiErr *apperrors.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "VALIDATION_FAILED", apiErr.ErrorCode)

	_, err = f.svc.Create(context.Background(), validInput(), Files{})
	require.ErrorAs(t, err, &apiErr)

	_, err = f.svc.Create(context.Background(), validInput(), Files{Asset: upload("readme.txt", "x")})
	require.ErrorAs(t, err, &apiErr)

	assert.Empty(t, f.blobs.uploads)
}

func TestCreateRemovesUploadsWhenLaterStepFails(t *testing.T) {
	f := newFixture(nil)
	f.blobs.failOn = "previews"

	_, err := f.svc.Create(context.Background(), validInput(), Files{
		Asset:     upload("zoom.drfx", "bundle"),
		Thumbnail: upload("t.png", "img"),
		Preview:   upload("p.mp4", "vid"),
	})
	require.Error(t, err)
	assert.Len(t, f.blobs.deleted, 2)

	f2 := newFixture(nil)
	f2.repo.insertErr = errors.New("db down")
	_, err = f2.svc.Create(context.Background(), validInput(), Files{Asset: upload("zoom.drfx", "bundle")})
	require.Error(t, err)
	assert.Len(t, f2.blobs.deleted, 1)
}

func TestUpdateKeepsUnchangedFiles(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()

	a, err := f.svc.Create(ctx, validInput(), Files{
		Asset:     upload("zoom.drfx", "bundle"),
		Thumbnail: upload("t.png", "img"),
	})
	require.NoError(t, err)
	oldThumb := *a.ThumbnailURL

	in := validInput()
	in.Title = "Smooth Zoom v2"
	in.Type = domain.AssetTypeSetting
	updated, err := f.svc.Update(ctx, a.ID, in, Files{Thumbnail: upload("t2.png", "img2")})
	require.NoError(t, err)

	assert.Equal(t, "Smooth Zoom v2", updated.Title)
	assert.Equal(t, domain.AssetTypeSetting, updated.Type)
	assert.Equal(t, a.FileURL, updated.FileURL)
	require.NotNil(t, updated.ThumbnailURL)
	assert.NotEqual(t, oldThumb, *updated.ThumbnailURL)
	assert.Equal(t, []string{oldThumb}, f.blobs.deleted, "replaced thumbnail removed")
}

func TestUpdateMissingAsset(t *testing.T) {
	f := newFixture(nil)
	_, err := f.svc.Update(context.Background(), "ghost", validInput(), Files{})
	assert.ErrorIs(t, err, apperrors.ErrAssetNotFound)
}

func TestDeleteSwallowsBlobFailures(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()

	a, err := f.svc.Create(ctx, validInput(), Files{
		Asset:     upload("zoom.drfx", "bundle"),
		Thumbnail: upload("t.png", "img"),
		Preview:   upload("p.mp4", "vid"),
	})
	require.NoError(t, err)

	f.blobs.deleteErr = errors.New("permission denied")
	require.NoError(t, f.svc.Delete(ctx, a.ID))
	assert.Len(t, f.blobs.deleted, 3)

	_, err = f.svc.Get(ctx, a.ID)
	assert.ErrorIs(t, err, apperrors.ErrAssetNotFound)

	assert.ErrorIs(t, f.svc.Delete(ctx, a.ID), apperrors.ErrAssetNotFound)
}

func TestInstallRequiresEntitlement(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()
	a, err := f.svc.Create(ctx, validInput(), Files{Asset: upload("zoom.drfx", "bundle")})
	require.NoError(t, err)

	_, err = f.svc.Install(ctx, domain.SessionState{}, a.ID)
	assert.ErrorIs(t, err, apperrors.ErrLicenseRequired)
	f.dl.AssertNotCalled(t, "Download", mock.Anything, mock.Anything, mock.Anything)

	want := InstallFilename(*a)
	f.dl.On("Download", mock.Anything, a.FileURL, want).Return("/templates/"+want, nil).Once()

	path, err := f.svc.Install(ctx, domain.SessionState{IsPremium: true}, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "/templates/"+want, path)
	f.dl.AssertExpectations(t)
}

func TestInstallAsAdminUnknownAsset(t *testing.T) {
	f := newFixture(nil)
	_, err := f.svc.Install(context.Background(), domain.SessionState{IsAdmin: true}, "ghost")
	assert.ErrorIs(t, err, apperrors.ErrAssetNotFound)
}

func TestListRejectsUnknownCategory(t *testing.T) {
	f := newFixture(nil)
	_, err := f.svc.List(context.Background(), "music")
	var apiErr *apperrors.APIError
	assert.ErrorAs(t, err, &apiErr)

	_, err = f.svc.List(context.Background(), domain.CategoryAll)
	assert.NoError(t, err)
}
