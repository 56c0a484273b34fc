package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/tonimelisma/hivedrive/internal/drive"
)

// chunkAlignment is the required alignment for upload chunk sizes (320 KiB).
// All chunks except the final one must be a multiple of this value.
const chunkAlignment = 320 * 1024

// uploadChunkSize is the chunk size used for upload sessions.
const uploadChunkSize = 10 * chunkAlignment

// SimpleUploadMaxSize is the largest payload sent in a single PUT (4 MiB).
// Larger payloads go through an upload session.
const SimpleUploadMaxSize = 4 * 1024 * 1024

// DownloadURL resolves the pre-authenticated download URL of the file at p.
// A zero-byte file may have none, in which case the URL is empty.
func (c *Client) DownloadURL(ctx context.Context, token, driveID, p string) (string, error) {
	item, err := c.getItem(ctx, token, driveID, p)
	if err != nil {
		return "", err
	}

	if item.Folder != nil {
		return "", &drive.InvalidArgumentError{Arg: "path", Reason: "is a directory: " + p}
	}

	if item.DownloadURL == "" && item.Size > 0 {
		return "", &drive.DecodeError{What: "item", Err: errors.New("missing download URL")}
	}

	return item.DownloadURL, nil
}

// FetchContent reads the whole body behind a pre-authenticated download URL.
// The URL is never logged; it embeds credentials.
func (c *Client) FetchContent(ctx context.Context, downloadURL string) ([]byte, error) {
	resp, err := c.do(ctx, request{method: http.MethodGet, target: downloadURL})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("graph: reading download content: %w", err)
	}

	c.logger.Debug("download complete", slog.Int("bytes", len(data)))

	return data, nil
}

// SimpleUpload replaces the content of p with data in one request. data must
// not exceed SimpleUploadMaxSize.
func (c *Client) SimpleUpload(ctx context.Context, token, driveID, p string, data []byte) error {
	c.logger.Info("simple upload",
		slog.String("drive_id", driveID),
		slog.String("path", p),
		slog.Int("size", len(data)),
	)

	_, err := c.doDiscard(ctx, request{
		method:      http.MethodPut,
		target:      itemAction(driveID, p, "content"),
		token:       token,
		body:        bytes.NewReader(data),
		contentType: "application/octet-stream",
		size:        int64(len(data)),
		expect:      []int{http.StatusOK, http.StatusCreated},
	})

	return err
}

type createUploadSessionRequest struct {
	Item struct {
		ConflictBehavior string `json:"@microsoft.graph.conflictBehavior"` //nolint:tagliatelle // Graph API annotation key
	} `json:"item"`
}

type uploadSessionResponse struct {
	UploadURL string `json:"uploadUrl"`
}

// CreateUploadSession opens a resumable upload session for p and returns its
// pre-authenticated upload URL.
func (c *Client) CreateUploadSession(ctx context.Context, token, driveID, p string) (string, error) {
	c.logger.Info("creating upload session",
		slog.String("drive_id", driveID),
		slog.String("path", p),
	)

	var reqBody createUploadSessionRequest
	reqBody.Item.ConflictBehavior = "replace"

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("graph: marshaling upload session request: %w", err)
	}

	var sess uploadSessionResponse

	err = c.doJSON(ctx, request{
		method:      http.MethodPost,
		target:      itemAction(driveID, p, "createUploadSession"),
		token:       token,
		body:        bytes.NewReader(body),
		contentType: "application/json",
		size:        int64(len(body)),
	}, "upload session", &sess)
	if err != nil {
		return "", err
	}

	if sess.UploadURL == "" {
		return "", &drive.DecodeError{What: "upload session", Err: errors.New("missing uploadUrl")}
	}

	return sess.UploadURL, nil
}

// UploadChunks sends data to an upload session in aligned chunks. On failure
// the session is canceled so no partial upload lingers.
func (c *Client) UploadChunks(ctx context.Context, uploadURL string, data []byte) error {
	total := int64(len(data))

	for off := int64(0); off < total; off += uploadChunkSize {
		end := min(off+uploadChunkSize, total)

		c.logger.Debug("uploading chunk",
			slog.Int64("offset", off),
			slog.Int64("length", end-off),
			slog.Int64("total", total),
		)

		_, err := c.doDiscard(ctx, request{
			method:      http.MethodPut,
			target:      uploadURL,
			body:        bytes.NewReader(data[off:end]),
			contentType: "application/octet-stream",
			size:        end - off,
			header:      map[string]string{"Content-Range": fmt.Sprintf("bytes %d-%d/%d", off, end-1, total)},
			expect:      []int{http.StatusAccepted, http.StatusOK, http.StatusCreated},
		})
		if err != nil {
			c.cancelUploadSession(uploadURL)

			return fmt.Errorf("graph: uploading chunk at offset %d: %w", off, err)
		}
	}

	return nil
}

// cancelUploadSession deletes an upload session. Best effort; it runs on a
// fresh context because the caller's may already be canceled.
func (c *Client) cancelUploadSession(uploadURL string) {
	_, err := c.doDiscard(context.Background(), request{
		method: http.MethodDelete,
		target: uploadURL,
		expect: []int{http.StatusNoContent},
	})
	if err != nil {
		c.logger.Warn("canceling upload session failed", slog.String("error", err.Error()))
	}
}
