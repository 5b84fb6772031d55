package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/BradenHooton/consensus/internal/config"
	"github.com/BradenHooton/consensus/internal/models"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\nfake-image-body")

func dataURI(subtype string, data []byte) string {
	return "data:image/" + subtype + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func TestDecodeDataURI(t *testing.T) {
	img, err := DecodeDataURI(dataURI("png", pngBytes), 1024)
	require.NoError(t, err)
	assert.Equal(t, pngBytes, img.Data)
	assert.Equal(t, "image/png", img.ContentType)
	assert.Equal(t, "png", img.Ext)

	img, err = DecodeDataURI(dataURI("JPEG", pngBytes), 0)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", img.Ext)
}

func TestDecodeDataURI_Rejects(t *testing.T) {
	tests := []struct {
		name string
		uri  string
		max  int
	}{
		{"not a data uri", "https://example.com/a.png", 0},
		{"not an image", "data:text/plain;base64,aGVsbG8=", 0},
		{"svg is not allowed", dataURI("svg+xml", []byte("<svg/>")), 0},
		{"bad base64", "data:image/png;base64,@@@", 0},
		{"empty payload", "data:image/png;base64,", 0},
		{"too large", dataURI("png", []byte(strings.Repeat("a", 100))), 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeDataURI(tt.uri, tt.max)
			require.ErrorIs(t, err, models.ErrValidation)
		})
	}
}

func TestLocalUploader_WritesUnderRoot(t *testing.T) {
	dir := t.TempDir()
	u, err := NewLocalUploader(dir)
	require.NoError(t, err)

	require.NoError(t, u.Upload(context.Background(), "user/Img_1.png", pngBytes, "image/png"))

	got, err := os.ReadFile(filepath.Join(dir, "user", "Img_1.png"))
	require.NoError(t, err)
	assert.Equal(t, pngBytes, got)

	// overwrite keeps a single file
	require.NoError(t, u.Upload(context.Background(), "user/Img_1.png", []byte("v2"), "image/png"))
	entries, err := os.ReadDir(filepath.Join(dir, "user"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLocalUploader_RejectsEscapingKeys(t *testing.T) {
	u, err := NewLocalUploader(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"../evil.png", "user/../../evil.png", ""} {
		assert.Error(t, u.Upload(context.Background(), key, pngBytes, "image/png"), key)
	}
}

func TestLocalUploader_HonoursCancellation(t *testing.T) {
	u, err := NewLocalUploader(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, u.Upload(ctx, "user/a.png", pngBytes, "image/png"), context.Canceled)
}

type mockS3 struct {
	PutObjectFunc func(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

func (m *mockS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	return m.PutObjectFunc(ctx, params, optFns...)
}

func TestS3Uploader_PutsObject(t *testing.T) {
	var got *s3.PutObjectInput
	u := &S3Uploader{
		bucket: "avatars",
		client: &mockS3{PutObjectFunc: func(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
			got = params
			return &s3.PutObjectOutput{}, nil
		}},
	}

	require.NoError(t, u.Upload(context.Background(), "user/Img_1.png", pngBytes, "image/png"))
	require.NotNil(t, got)
	assert.Equal(t, "avatars", *got.Bucket)
	assert.Equal(t, "user/Img_1.png", *got.Key)
	assert.Equal(t, "image/png", *got.ContentType)
	assert.Equal(t, int64(len(pngBytes)), *got.ContentLength)
}

func TestS3Uploader_WrapsErrors(t *testing.T) {
	u := &S3Uploader{
		bucket: "avatars",
		client: &mockS3{PutObjectFunc: func(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
			return nil, errors.New("access denied")
		}},
	}

	err := u.Upload(context.Background(), "user/a.png", pngBytes, "image/png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3://avatars/user/a.png")
}

func TestNew_SelectsBackend(t *testing.T) {
	local, err := New(context.Background(), config.UploadConfig{ImageServer: config.ImageServerLocal, LocalDir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &LocalUploader{}, local)

	s3u, err := New(context.Background(), config.UploadConfig{
		ImageServer:   config.ImageServerS3,
		S3Bucket:      "avatars",
		S3Region:      "us-east-1",
		S3AccessKeyID: "key",
		S3SecretKey:   "secret",
	})
	require.NoError(t, err)
	assert.IsType(t, &S3Uploader{}, s3u)

	_, err = New(context.Background(), config.UploadConfig{ImageServer: "ftp"})
	assert.Error(t, err)
}
