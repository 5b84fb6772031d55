package storage

import (
	"context"
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"

	"github.com/BradenHooton/consensus/internal/config"
	"github.com/BradenHooton/consensus/internal/models"
)

// ImageUploader stores an uploaded image under key. The backend is chosen
// once at startup.
type ImageUploader interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
}

// New returns the uploader selected by IMAGE_SERVER
func New(ctx context.Context, cfg config.UploadConfig) (ImageUploader, error) {
	switch cfg.ImageServer {
	case config.ImageServerS3:
		return NewS3Uploader(ctx, cfg)
	case config.ImageServerLocal:
		return NewLocalUploader(cfg.LocalDir)
	default:
		return nil, fmt.Errorf("storage: unknown image server %q", cfg.ImageServer)
	}
}

// Image is a decoded data URI
type Image struct {
	Data        []byte
	ContentType string
	Ext         string
}

var dataURIPattern = regexp.MustCompile(`^data:image/([a-zA-Z0-9.+-]+);base64,`)

var allowedImageTypes = map[string]string{
	"png":  "png",
	"jpeg": "jpeg",
	"jpg":  "jpg",
	"gif":  "gif",
	"webp": "webp",
}

// DecodeDataURI parses a data:image/<type>;base64,<payload> string. The
// decoded payload must not exceed maxBytes when maxBytes is positive.
func DecodeDataURI(uri string, maxBytes int) (*Image, error) {
	m := dataURIPattern.FindStringSubmatch(uri)
	if m == nil {
		return nil, models.NewValidationError("avatar", "must be a base64 image data URI")
	}

	subtype := strings.ToLower(m[1])
	ext, ok := allowedImageTypes[subtype]
	if !ok {
		return nil, models.NewValidationError("avatar", "unsupported image type "+subtype)
	}

	payload := uri[len(m[0]):]
	if maxBytes > 0 && base64.StdEncoding.DecodedLen(len(payload)) > maxBytes+2 {
		return nil, models.NewValidationError("avatar", "image is too large")
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, models.NewValidationError("avatar", "invalid base64 payload")
	}
	if len(data) == 0 {
		return nil, models.NewValidationError("avatar", "image is empty")
	}
	if maxBytes > 0 && len(data) > maxBytes {
		return nil, models.NewValidationError("avatar", "image is too large")
	}

	return &Image{Data: data, ContentType: "image/" + subtype, Ext: ext}, nil
}
