package blob

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtOf(t *testing.T) {
	assert.Equal(t, ".pdf", extOf("report.PDF"))
	assert.Equal(t, ".gz", extOf("dir\\archive.tar.gz"))
	assert.Equal(t, "", extOf("noext"))
	assert.Equal(t, "", extOf("weird.p$f"))
}

func TestDisabled(t *testing.T) {
	_, err := Disabled{}.Credentials(context.Background(), CredentialRequest{})
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.ErrorIs(t, Disabled{}.Delete(context.Background(), "x"), ErrNotConfigured)
}

func newTestCloudinary(t *testing.T, baseURL string) *CloudinaryStore {
	t.Helper()
	s, err := NewCloudinaryStore(CloudinaryConfig{
		CloudName: "demo",
		APIKey:    "key",
		APISecret: "secret",
		BaseURL:   baseURL,
	})
	require.NoError(t, err)
	s.now = func() time.Time { return time.Unix(1700000000, 0) }
	return s
}

// fakeCloudinary answers destroy calls with results keyed by resource type.
func fakeCloudinary(t *testing.T, results map[string]string) (*httptest.Server, *[]string, *[]string) {
	t.Helper()
	var paths, ids []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		ids = append(ids, r.FormValue("public_id"))
		rt := strings.Split(strings.TrimPrefix(r.URL.Path, "/v1_1/demo/"), "/")[0]
		result, ok := results[rt]
		if !ok {
			result = "not found"
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":"` + result + `"}`))
	}))
	t.Cleanup(srv.Close)
	return srv, &paths, &ids
}

func TestCloudinary_Credentials(t *testing.T) {
	s := newTestCloudinary(t, "")

	creds, err := s.Credentials(context.Background(), CredentialRequest{FileName: "a.txt"})
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000), creds.Timestamp)
	assert.Equal(t, "demo", creds.CloudName)
	assert.Equal(t, "key", creds.APIKey)
	assert.Equal(t, DefaultFolder, creds.Folder)
	assert.Equal(t, "https://api.cloudinary.com/v1_1/demo/auto/upload", creds.UploadURL)

	sum := sha1.Sum([]byte("folder=temp_shares&timestamp=1700000000secret"))
	assert.Equal(t, hex.EncodeToString(sum[:]), creds.Signature)
}

func TestCloudinary_RequiresCredentials(t *testing.T) {
	_, err := NewCloudinaryStore(CloudinaryConfig{CloudName: "demo"})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestCloudinary_DeleteImage(t *testing.T) {
	srv, paths, ids := fakeCloudinary(t, map[string]string{"image": "ok"})

	s := newTestCloudinary(t, srv.URL)
	require.NoError(t, s.Delete(context.Background(), "temp_shares/abc"))

	assert.Equal(t, []string{"/v1_1/demo/image/destroy"}, *paths)
	assert.Equal(t, []string{"temp_shares/abc"}, *ids)
}

func TestCloudinary_DeleteFallsBackToRaw(t *testing.T) {
	srv, paths, _ := fakeCloudinary(t, map[string]string{"raw": "ok"})

	s := newTestCloudinary(t, srv.URL)
	require.NoError(t, s.Delete(context.Background(), "temp_shares/archive.zip"))

	assert.Equal(t, []string{
		"/v1_1/demo/image/destroy",
		"/v1_1/demo/video/destroy",
		"/v1_1/demo/raw/destroy",
	}, *paths)
}

func TestCloudinary_DeleteConfiguredTypeFirst(t *testing.T) {
	srv, paths, _ := fakeCloudinary(t, map[string]string{"video": "ok"})

	s := newTestCloudinary(t, srv.URL)
	s.cfg.ResourceType = "video"
	require.NoError(t, s.Delete(context.Background(), "clip"))
	assert.Equal(t, []string{"/v1_1/demo/video/destroy"}, *paths)
}

func TestCloudinary_DeleteMissingIsReported(t *testing.T) {
	srv, paths, _ := fakeCloudinary(t, nil)

	s := newTestCloudinary(t, srv.URL)
	err := s.Delete(context.Background(), "gone")
	assert.ErrorIs(t, err, ErrObjectNotFound)
	assert.Len(t, *paths, 3)
}

func TestCloudinary_DeleteFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid Signature"}}`))
	}))
	defer srv.Close()

	s := newTestCloudinary(t, srv.URL)
	err := s.Delete(context.Background(), "x")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrObjectNotFound)
}

func newTestS3(t *testing.T, endpoint string) *S3Store {
	t.Helper()
	s, err := NewS3Store(S3Config{
		Endpoint:        endpoint,
		Region:          "us-east-1",
		Bucket:          "shares",
		AccessKeyID:     "AKIDEXAMPLE",
		SecretAccessKey: "wJalrXUtnFEMI/K7MDENG/bPxRfiCYEXAMPLEKEY",
		PublicBaseURL:   "https://files.example.com/",
		UsePathStyle:    true,
	})
	require.NoError(t, err)
	return s
}

func TestS3_Credentials(t *testing.T) {
	s := newTestS3(t, "http://127.0.0.1:9000")

	creds, err := s.Credentials(context.Background(), CredentialRequest{FileName: "notes.PDF", ContentType: "application/pdf"})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(creds.PublicID, DefaultFolder+"/"))
	assert.True(t, strings.HasSuffix(creds.PublicID, ".pdf"))
	assert.Equal(t, http.MethodPut, creds.Method)
	assert.Equal(t, "shares", creds.CloudName)
	assert.Equal(t, "https://files.example.com/"+creds.PublicID, creds.URL)
	assert.NotEmpty(t, creds.Signature)

	u, err := url.Parse(creds.UploadURL)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", u.Host)
	assert.Equal(t, "/shares/"+creds.PublicID, u.Path)
}

func TestS3_CredentialsAreUnique(t *testing.T) {
	s := newTestS3(t, "http://127.0.0.1:9000")
	a, err := s.Credentials(context.Background(), CredentialRequest{FileName: "a.txt"})
	require.NoError(t, err)
	b, err := s.Credentials(context.Background(), CredentialRequest{FileName: "a.txt"})
	require.NoError(t, err)
	assert.NotEqual(t, a.PublicID, b.PublicID)
}

func TestS3_Delete(t *testing.T) {
	var method, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := newTestS3(t, srv.URL)
	require.NoError(t, s.Delete(context.Background(), "temp_shares/abc.txt"))
	assert.Equal(t, http.MethodDelete, method)
	assert.Equal(t, "/shares/temp_shares/abc.txt", path)
}

func TestS3_RequiresBucket(t *testing.T) {
	_, err := NewS3Store(S3Config{AccessKeyID: "a", SecretAccessKey: "b"})
	assert.ErrorIs(t, err, ErrNotConfigured)
}
