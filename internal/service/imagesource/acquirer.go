package imagesource

import (
	"context"
	"fmt"
	"io"
	"strings"

	"gocv.io/x/gocv"

	"detectserver/internal/dto"
)

// Request carries the two optional inputs of a detection call.
type Request struct {
	ImageURL string
	File     io.Reader // nil when no file part was sent
}

// URLFetcher downloads the raw bytes behind a URL.
type URLFetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// Acquirer turns a Request into a decoded image.
type Acquirer struct {
	fetcher URLFetcher
}

func NewAcquirer(fetcher URLFetcher) *Acquirer {
	return &Acquirer{fetcher: fetcher}
}

// IsValidURL reports whether s should be used as an image URL. Generated API
// clients often send "string" or "null" for unset text fields; those are ignored.
func IsValidURL(s string) bool {
	s = strings.TrimSpace(s)
	switch s {
	case "", "string", "null":
		return false
	}
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// Acquire returns the decoded BGR image and the source it came from. A valid URL
// takes precedence over the file; the file is not read in that case. Every error
// is an *InputError. The caller must Close the returned Mat.
func (a *Acquirer) Acquire(ctx context.Context, req Request) (gocv.Mat, string, error) {
	if IsValidURL(req.ImageURL) {
		img, err := a.fromURL(ctx, strings.TrimSpace(req.ImageURL))
		if err != nil {
			return gocv.Mat{}, "", &InputError{
				Detail: fmt.Sprintf("Failed to load image from URL: %v", err),
				Err:    err,
			}
		}
		return img, req.ImageURL, nil
	}

	if req.File != nil {
		img, err := fromReader(req.File)
		if err != nil {
			return gocv.Mat{}, "", &InputError{Detail: "Invalid uploaded image", Err: err}
		}
		return img, dto.UploadedFileSource, nil
	}

	return gocv.Mat{}, "", ErrNoImageSource
}

func (a *Acquirer) fromURL(ctx context.Context, rawURL string) (gocv.Mat, error) {
	data, err := a.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return gocv.Mat{}, err
	}
	return DecodeImage(data)
}

func fromReader(r io.Reader) (gocv.Mat, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("read upload: %w", err)
	}
	return DecodeImage(data)
}
