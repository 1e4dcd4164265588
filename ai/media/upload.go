package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/hrygo/mynah/ai"
)

const (
	// DefaultUploadBase is the Google file service endpoint.
	DefaultUploadBase = "https://generativelanguage.googleapis.com"

	pollInterval = 250 * time.Millisecond
	pollBudget   = 5 * time.Second
)

// Uploader speaks the resumable upload protocol of the Google file service.
type Uploader struct {
	base   string
	client *http.Client
}

// NewUploader creates an uploader. A nil client falls back to a default.
func NewUploader(client *http.Client) *Uploader {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &Uploader{base: DefaultUploadBase, client: client}
}

// fileInfo is the File resource subset we read back.
type fileInfo struct {
	File struct {
		Name     string `json:"name"`
		URI      string `json:"uri"`
		MimeType string `json:"mimeType"`
		State    string `json:"state"`
	} `json:"file"`
}

// fileState is the poll response shape (the File resource itself).
type fileState struct {
	Name  string `json:"name"`
	URI   string `json:"uri"`
	State string `json:"state"`
}

// Upload pushes bytes through the three-step resumable flow: start, upload
// with finalize, then poll until the file is ACTIVE. A file that is still
// processing when the poll budget runs out is returned anyway with a
// warning; generation against it may race the service.
func (u *Uploader) Upload(ctx context.Context, apiKey, displayName, mime string, data []byte) (*ai.FileData, error) {
	uploadURL, err := u.start(ctx, apiKey, displayName, mime, len(data))
	if err != nil {
		return nil, err
	}

	info, err := u.push(ctx, uploadURL, mime, data)
	if err != nil {
		return nil, err
	}

	state, err := u.awaitActive(ctx, apiKey, info.File.URI)
	if err != nil {
		return nil, err
	}
	if state != "ACTIVE" {
		slog.Warn("uploaded file not yet active, proceeding anyway",
			"file", info.File.Name, "state", state)
	}

	return &ai.FileData{MIMEType: mime, URI: info.File.URI}, nil
}

// start opens a resumable session and returns the upload URL.
func (u *Uploader) start(ctx context.Context, apiKey, displayName, mime string, size int) (string, error) {
	body, err := json.Marshal(map[string]any{
		"file": map[string]string{"display_name": displayName},
	})
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/upload/v1beta/files?key=%s", u.base, apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Upload-Protocol", "resumable")
	req.Header.Set("X-Goog-Upload-Command", "start")
	req.Header.Set("X-Goog-Upload-Header-Content-Length", strconv.Itoa(size))
	req.Header.Set("X-Goog-Upload-Header-Content-Type", mime)

	resp, err := u.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to start upload: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to start upload: status %d", resp.StatusCode)
	}

	uploadURL := resp.Header.Get("X-Goog-Upload-URL")
	if uploadURL == "" {
		return "", fmt.Errorf("upload start returned no upload url")
	}
	return uploadURL, nil
}

// push sends the bytes and finalizes the session.
func (u *Uploader) push(ctx context.Context, uploadURL, mime string, data []byte) (*fileInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mime)
	req.Header.Set("Content-Length", strconv.Itoa(len(data)))
	req.Header.Set("X-Goog-Upload-Offset", "0")
	req.Header.Set("X-Goog-Upload-Command", "upload, finalize")

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to upload bytes: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to upload bytes: status %d", resp.StatusCode)
	}

	var info fileInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode upload response: %w", err)
	}
	if info.File.URI == "" {
		return nil, fmt.Errorf("upload finalize returned no file uri")
	}
	return &info, nil
}

// awaitActive polls the file resource until it leaves PROCESSING or the
// poll budget elapses. Returns the last observed state.
func (u *Uploader) awaitActive(ctx context.Context, apiKey, uri string) (string, error) {
	deadline := time.Now().Add(pollBudget)
	state := "PROCESSING"

	for time.Now().Before(deadline) {
		fs, err := u.getState(ctx, apiKey, uri)
		if err != nil {
			return "", err
		}
		state = fs.State
		if state != "PROCESSING" && state != "" {
			return state, nil
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(pollInterval):
		}
	}
	return state, nil
}

func (u *Uploader) getState(ctx context.Context, apiKey, uri string) (*fileState, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri+"?key="+apiKey, nil)
	if err != nil {
		return nil, err
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to poll file state: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to poll file state: status %d", resp.StatusCode)
	}

	var fs fileState
	if err := json.NewDecoder(resp.Body).Decode(&fs); err != nil {
		return nil, fmt.Errorf("failed to decode file state: %w", err)
	}
	return &fs, nil
}
