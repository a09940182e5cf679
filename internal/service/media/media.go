// Package media stores user images (avatar, cover image) in an object storage
package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/nkiryanov/vidtube/internal/apperrors"
)

// Uploads larger than this are rejected
const MaxImageSize = 5 << 20

type Store interface {
	// Save object and return public URL to it
	Put(ctx context.Context, key string, body io.Reader, contentType string) (string, error)

	// Remove object by URL returned from Put. URLs not owned by the store are ignored
	Delete(ctx context.Context, url string) error
}

// Read image, make sure it is an image indeed and save it under 'prefix'
// Content type is detected from the bytes, whatever client says
func UploadImage(ctx context.Context, store Store, prefix string, body io.Reader) (string, error) {
	if store == nil {
		return "", apperrors.ErrMediaUnavailable
	}

	data, err := io.ReadAll(io.LimitReader(body, MaxImageSize+1))
	if err != nil {
		return "", fmt.Errorf("error while reading upload. Err: %w", err)
	}
	if len(data) > MaxImageSize {
		return "", fmt.Errorf("%w: image is larger than %d bytes", apperrors.ErrUnsupportedMedia, MaxImageSize)
	}

	mtype := mimetype.Detect(data)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return "", fmt.Errorf("%w: %s is not an image", apperrors.ErrUnsupportedMedia, mtype.String())
	}

	key := prefix + "/" + uuid.NewString() + mtype.Extension()

	url, err := store.Put(ctx, key, bytes.NewReader(data), mtype.String())
	if err != nil {
		return "", fmt.Errorf("error while saving image. Err: %w", err)
	}

	return url, nil
}
