// Package media resolves chat attachments into prompt parts: platform files
// are downloaded into a content cache, photos are normalised and inlined,
// and other media goes through the Google file service's resumable upload.
package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"

	"github.com/hrygo/mynah/ai"
)

const (
	// maxFileSize caps what we are willing to hold in memory per file.
	maxFileSize = 10 << 20

	// maxPhotoSide is the longest side kept when re-encoding photos.
	maxPhotoSide = 2048

	jpegQuality = 85
)

// Downloader fetches a platform file's bytes. Implemented by the Telegram
// client.
type Downloader interface {
	Download(ctx context.Context, fileID string) ([]byte, error)
}

// Resolver turns file ids into prompt parts.
type Resolver struct {
	cacheDir string
	dl       Downloader
	uploader *Uploader
}

// New creates a resolver caching downloads under cacheDir.
func New(cacheDir string, dl Downloader, client *http.Client) *Resolver {
	return &Resolver{
		cacheDir: cacheDir,
		dl:       dl,
		uploader: NewUploader(client),
	}
}

// fetch returns a file's bytes, downloading on cache miss. Files are stored
// under their platform file id, which is stable per file.
func (r *Resolver) fetch(ctx context.Context, fileID string) ([]byte, error) {
	path := filepath.Join(r.cacheDir, fileID)
	if data, err := os.ReadFile(path); err == nil {
		return data, nil
	}

	data, err := r.dl.Download(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if len(data) > maxFileSize {
		return nil, fmt.Errorf("file %s exceeds size cap: %d bytes", fileID, len(data))
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		// Cache misses are re-downloaded; a failed write only costs a
		// repeat download next time.
		slog.Warn("failed to cache media file", "file_id", fileID, "error", err)
	}
	return data, nil
}

// Photo resolves a photo file into inline base64 data. Non-JPEG images are
// re-encoded and oversized ones scaled down; formats the decoder does not
// know pass through with their sniffed MIME when they are still images.
func (r *Resolver) Photo(ctx context.Context, fileID string) (*ai.InlineData, error) {
	data, err := r.fetch(ctx, fileID)
	if err != nil {
		return nil, err
	}

	mime := http.DetectContentType(data)

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		if len(mime) >= 6 && mime[:6] == "image/" {
			return &ai.InlineData{
				MIMEType: mime,
				Data:     base64.StdEncoding.EncodeToString(data),
			}, nil
		}
		return nil, fmt.Errorf("failed to decode photo %s (%s): %w", fileID, mime, err)
	}

	if mime == "image/jpeg" && fits(img, maxPhotoSide) {
		return &ai.InlineData{
			MIMEType: "image/jpeg",
			Data:     base64.StdEncoding.EncodeToString(data),
		}, nil
	}

	if !fits(img, maxPhotoSide) {
		img = imaging.Fit(img, maxPhotoSide, maxPhotoSide, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return nil, fmt.Errorf("failed to encode photo %s: %w", fileID, err)
	}

	return &ai.InlineData{
		MIMEType: "image/jpeg",
		Data:     base64.StdEncoding.EncodeToString(buf.Bytes()),
	}, nil
}

func fits(img image.Image, side int) bool {
	b := img.Bounds()
	return b.Dx() <= side && b.Dy() <= side
}

// Other resolves a non-photo file into an uploaded file handle. The upload
// binds the handle to the given API key, so callers must pin that key for
// the whole generation.
func (r *Resolver) Other(ctx context.Context, fileID, apiKey string) (*ai.FileData, error) {
	data, err := r.fetch(ctx, fileID)
	if err != nil {
		return nil, err
	}

	mime := NormalizeMIME(http.DetectContentType(data))
	return r.uploader.Upload(ctx, apiKey, fileID, mime, data)
}

// NormalizeMIME maps sniffed content types onto what the file service
// accepts. Unidentified binaries are overwhelmingly PDFs in practice.
func NormalizeMIME(mime string) string {
	switch mime {
	case "application/octet-stream":
		return "application/pdf"
	case "audio/wave", "audio/x-wav", "application/wav":
		return "audio/wav"
	case "application/ogg":
		return "audio/ogg"
	case "application/mp3", "audio/mp3":
		return "audio/mpeg"
	}
	return mime
}
