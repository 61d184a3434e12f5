package scene

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetcher_HTTPSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("png-bytes"))
	}))
	defer srv.Close()

	f := NewFetcher(WithHTTPClient(srv.Client()))
	data, ct, err := f.Fetch(context.Background(), srv.URL+"/maps/a.png")
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))
	assert.Equal(t, "image/png", ct)
}

func TestFetcher_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := NewFetcher(WithHTTPClient(srv.Client()), WithBaseBackoff(time.Millisecond))
	data, _, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(data))
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetcher_NoRetryOnNotFound(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.NotFound(w, nil)
	}))
	defer srv.Close()

	f := NewFetcher(WithHTTPClient(srv.Client()), WithBaseBackoff(time.Millisecond))
	_, _, err := f.Fetch(context.Background(), srv.URL+"/missing.glb")
	require.Error(t, err)
	var assetErr *AssetError
	assert.True(t, errors.As(err, &assetErr))
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetcher_AllAttemptsFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := NewFetcher(WithHTTPClient(srv.Client()), WithMaxRetries(2), WithBaseBackoff(time.Millisecond))
	_, _, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all 2 attempts failed")
}

func TestFetcher_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := NewFetcher(WithHTTPClient(srv.Client()), WithBaseBackoff(time.Hour))
	_, _, err := f.Fetch(ctx, srv.URL)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFetcher_RootedPathUsesBaseURL(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte("x"))
	}))
	defer srv.Close()

	f := NewFetcher(WithHTTPClient(srv.Client()), WithBaseURL(srv.URL+"/"))
	_, _, err := f.Fetch(context.Background(), "/maps/Material/wood-eiche.png")
	require.NoError(t, err)
	assert.Equal(t, "/maps/Material/wood-eiche.png", gotPath)
}

func TestFetcher_AssetDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "maps"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "maps", "oak.png"), []byte("oak"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "secret.txt"), []byte("nope"), 0o644))

	f := NewFetcher(WithAssetDir(filepath.Join(dir, "maps")))
	data, _, err := f.Fetch(context.Background(), "/oak.png")
	require.NoError(t, err)
	assert.Equal(t, "oak", string(data))

	_, _, err = f.Fetch(context.Background(), "/../secret.txt")
	assert.Error(t, err, "paths cannot escape the asset dir")

	data, _, err = f.Fetch(context.Background(), "file://"+filepath.ToSlash(filepath.Join(dir, "secret.txt")))
	require.NoError(t, err)
	assert.Equal(t, "nope", string(data))
}

func TestFetcher_Unsupported(t *testing.T) {
	f := NewFetcher()
	for _, u := range []string{"", "ftp://host/x.png", "/maps/x.png", "s3://bucket/key"} {
		_, _, err := f.Fetch(context.Background(), u)
		assert.Error(t, err, u)
	}
}

type fakeS3 struct {
	objects map[string]string
	gotKey  string
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	key := aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)
	f.gotKey = key
	body, ok := f.objects[key]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{
		Body:        io.NopCloser(strings.NewReader(body)),
		ContentType: aws.String("model/gltf-binary"),
	}, nil
}

func TestFetcher_S3(t *testing.T) {
	fake := &fakeS3{objects: map[string]string{"assets/models/chair.glb": "glTF"}}
	f := NewFetcher(WithS3(fake))

	data, ct, err := f.Fetch(context.Background(), "s3://assets/models/chair.glb")
	require.NoError(t, err)
	assert.True(t, bytes.Equal([]byte("glTF"), data))
	assert.Equal(t, "model/gltf-binary", ct)
	assert.Equal(t, "assets/models/chair.glb", fake.gotKey)

	_, _, err = f.Fetch(context.Background(), "s3://assets/models/missing.glb")
	assert.Error(t, err)
	_, _, err = f.Fetch(context.Background(), "s3://assets")
	assert.Error(t, err)
}
