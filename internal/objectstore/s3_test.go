package objectstore

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBucket = "reels"

type s3Request struct {
	Method      string
	Path        string
	ContentType string
	Body        string
}

// fakeS3 answers path-style S3 requests and records what it received.
type fakeS3 struct {
	mu         sync.Mutex
	requests   []s3Request
	headStatus int
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	f.requests = append(f.requests, s3Request{
		Method:      r.Method,
		Path:        r.URL.Path,
		ContentType: r.Header.Get("Content-Type"),
		Body:        string(body),
	})
	headStatus := f.headStatus
	f.mu.Unlock()

	switch r.Method {
	case http.MethodPut:
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodDelete:
		w.WriteHeader(http.StatusNoContent)
	case http.MethodHead:
		if headStatus == 0 {
			headStatus = http.StatusOK
		}
		w.WriteHeader(headStatus)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeS3) recorded() []s3Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]s3Request, len(f.requests))
	copy(out, f.requests)
	return out
}

func newS3(t *testing.T) (*S3Store, *fakeS3) {
	t.Helper()
	fake := &fakeS3{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	store, err := NewS3Store(context.Background(), S3Config{
		Endpoint:      srv.URL,
		Region:        "us-east-1",
		Bucket:        testBucket,
		AccessKeyID:   "test-key",
		SecretKey:     "test-secret",
		UsePathStyle:  true,
		PublicBaseURL: base,
	}, zerolog.Nop())
	require.NoError(t, err)
	return store, fake
}

func TestNewS3StoreRequiresBucketAndCredentials(t *testing.T) {
	_, err := NewS3Store(context.Background(), S3Config{AccessKeyID: "k", SecretKey: "s"}, zerolog.Nop())
	assert.ErrorContains(t, err, "bucket")

	_, err = NewS3Store(context.Background(), S3Config{Bucket: testBucket}, zerolog.Nop())
	assert.ErrorContains(t, err, "credentials")
}

func TestS3StoreUpload(t *testing.T) {
	store, fake := newS3(t)
	key := "Funny_Cat_0011223344.mp4"

	publicURL, err := store.Upload(context.Background(), key, writeScratch(t, "video bytes"), VideoContentType)
	require.NoError(t, err)
	assert.Equal(t, PublicURL(base, key), publicURL)
	assert.Equal(t, key, store.KeyFromURL(publicURL))

	reqs := fake.recorded()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPut, reqs[0].Method)
	assert.Equal(t, "/"+testBucket+"/"+key, reqs[0].Path)
	assert.Equal(t, VideoContentType, reqs[0].ContentType)
	assert.Contains(t, reqs[0].Body, "video bytes")
}

func TestS3StoreUploadMissingFile(t *testing.T) {
	store, fake := newS3(t)

	_, err := store.Upload(context.Background(), "a.mp4", "/does/not/exist.mp4", VideoContentType)
	assert.Error(t, err)
	assert.Empty(t, fake.recorded())
}

func TestS3StoreDelete(t *testing.T) {
	store, fake := newS3(t)

	require.NoError(t, store.Delete(context.Background(), "Funny_Cat_0011223344.mp4"))
	// S3 answers 204 for keys that never existed as well.
	require.NoError(t, store.Delete(context.Background(), "missing.mp4"))

	reqs := fake.recorded()
	require.Len(t, reqs, 2)
	assert.Equal(t, http.MethodDelete, reqs[0].Method)
	assert.Equal(t, "/"+testBucket+"/Funny_Cat_0011223344.mp4", reqs[0].Path)
	assert.Equal(t, "/"+testBucket+"/missing.mp4", reqs[1].Path)
}

func TestS3StoreHealth(t *testing.T) {
	store, fake := newS3(t)

	require.NoError(t, store.Health(context.Background()))

	reqs := fake.recorded()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodHead, reqs[0].Method)
	assert.Equal(t, "/"+testBucket, strings.TrimSuffix(reqs[0].Path, "/"))
}

func TestS3StoreHealthMissingBucket(t *testing.T) {
	store, fake := newS3(t)
	fake.mu.Lock()
	fake.headStatus = http.StatusNotFound
	fake.mu.Unlock()

	assert.Error(t, store.Health(context.Background()))
}
