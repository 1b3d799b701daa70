package download

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "glabassets/internal/errors"
	"glabassets/internal/infrastructure"
	"glabassets/pkg/contracts/events"
)

type progressRecorder struct {
	mu     sync.Mutex
	events []events.DownloadProgress
}

func (r *progressRecorder) record(ev events.DownloadProgress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *progressRecorder) percents() []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]float64, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Percent
	}
	return out
}

func newTestPipeline(t *testing.T, opts ...Option) *Pipeline {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "Fusion", "Templates")
	return NewPipeline(dir, infrastructure.DiscardLogger(), opts...)
}

func TestDownloadKnownLength(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "10")
		_, _ = w.Write([]byte("0123456789"))
	}))
	defer srv.Close()

	p := newTestPipeline(t, WithChunkSize(3))
	rec := &progressRecorder{}
	dispose := p.Subscribe(rec.record)
	defer dispose()

	path, err := p.Download(context.Background(), srv.URL+"/a.drfx", "a.drfx")
	require.NoError(t, err)

	assert.True(t, filepath.IsAbs(path))
	assert.Equal(t, "a.drfx", filepath.Base(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(data))

	percents := rec.percents()
	require.NotEmpty(t, percents)
	for i := 1; i < len(percents); i++ {
		assert.GreaterOrEqual(t, percents[i], percents[i-1], "progress is non-decreasing")
	}
	assert.InDelta(t, 100.0, percents[len(percents)-1], 0.0001)

	rec.mu.Lock()
	for _, ev := range rec.events {
		assert.Equal(t, "a.drfx", ev.Filename)
	}
	rec.mu.Unlock()
}

func TestDownloadUnknownLengthReportsZero(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		for i := 0; i < 4; i++ {
			_, _ = w.Write([]byte(strings.Repeat("x", 64)))
			flusher.Flush()
		}
	}))
	defer srv.Close()

	p := newTestPipeline(t, WithChunkSize(16))
	rec := &progressRecorder{}
	defer p.Subscribe(rec.record)()

	path, err := p.Download(context.Background(), srv.URL, "t.setting")
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(256), info.Size())

	percents := rec.percents()
	require.NotEmpty(t, percents)
	for _, pct := range percents {
		assert.Zero(t, pct)
	}
}

func TestDownloadNon200RemovesDestination(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	p := newTestPipeline(t)
	dest := filepath.Join(p.Dir(), "missing.drfx")

	// a stale file with the same name does not survive a failed download
	require.NoError(t, os.MkdirAll(p.Dir(), 0755))
	require.NoError(t, os.WriteFile(dest, []byte("old"), 0644))

	_, err := p.Download(context.Background(), srv.URL, "missing.drfx")
	require.Error(t, err)

	var te *apperrors.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusNotFound, te.StatusCode)
	assert.NoFileExists(t, dest)
}

func TestDownloadTruncatedBodyRemovesPartialFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000")
		_, _ = w.Write([]byte("only ten b"))
	}))
	defer srv.Close()

	p := newTestPipeline(t, WithChunkSize(4))
	_, err := p.Download(context.Background(), srv.URL, "partial.drp")
	require.Error(t, err)

	var te *apperrors.TransportError
	assert.ErrorAs(t, err, &te)
	assert.NoFileExists(t, filepath.Join(p.Dir(), "partial.drp"))
}

func TestDownloadConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	p := newTestPipeline(t)
	_, err := p.Download(context.Background(), url, "x.drfx")

	var te *apperrors.TransportError
	require.ErrorAs(t, err, &te)
	assert.Zero(t, te.StatusCode)
	assert.NoFileExists(t, filepath.Join(p.Dir(), "x.drfx"))
}

func TestDownloadOverwritesExistingFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("new"))
	}))
	defer srv.Close()

	p := newTestPipeline(t)
	require.NoError(t, os.MkdirAll(p.Dir(), 0755))
	dest := filepath.Join(p.Dir(), "same.drfx")
	require.NoError(t, os.WriteFile(dest, []byte("much longer old content"), 0644))

	_, err := p.Download(context.Background(), srv.URL, "same.drfx")
	require.NoError(t, err)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}

func TestDownloadRejectsUnsafeFilenames(t *testing.T) {
	p := newTestPipeline(t)
	for _, name := range []string{"", ".", "..", "../evil.drfx", "a/b.drfx", `a\b.drfx`} {
		t.Run(name, func(t *testing.T) {
			_, err := p.Download(context.Background(), "http://127.0.0.1:1", name)
			assert.ErrorIs(t, err, apperrors.ErrInvalidFilename)
		})
	}
}

func TestDisposedObserverReceivesNothing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("abc"))
	}))
	defer srv.Close()

	p := newTestPipeline(t)
	rec := &progressRecorder{}
	dispose := p.Subscribe(rec.record)
	dispose()

	_, err := p.Download(context.Background(), srv.URL, "a.drfx")
	require.NoError(t, err)
	assert.Empty(t, rec.percents())
}

func TestConcurrentDownloadsAreIndependent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bad" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(r.URL.Path))
	}))
	defer srv.Close()

	p := newTestPipeline(t)
	var wg sync.WaitGroup
	errs := make(map[string]error)
	var mu sync.Mutex
	for _, name := range []string{"one", "two", "bad"} {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			_, err := p.Download(context.Background(), srv.URL+"/"+name, name+".drfx")
			mu.Lock()
			errs[name] = err
			mu.Unlock()
		}(name)
	}
	wg.Wait()

	assert.NoError(t, errs["one"])
	assert.NoError(t, errs["two"])
	assert.Error(t, errs["bad"])
	assert.FileExists(t, filepath.Join(p.Dir(), "one.drfx"))
	assert.FileExists(t, filepath.Join(p.Dir(), "two.drfx"))
	assert.NoFileExists(t, filepath.Join(p.Dir(), "bad.drfx"))
}

func TestParseContentLength(t *testing.T) {
	tests := map[string]int64{
		"":     0,
		"abc":  0,
		"-5":   0,
		"0":    0,
		" 42 ": 42,
		"10":   10,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseContentLength(in), in)
	}
}
