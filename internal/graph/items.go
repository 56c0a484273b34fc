package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tonimelisma/hivedrive/internal/drive"
)

// DefaultDriveID selects the signed-in user's own drive.
const DefaultDriveID = "default"

// listPageSize is the $top value for children listings; 200 is the Graph
// maximum for drive item collections.
const listPageSize = 200

// driveRoot returns the URL path of a drive: "/me/drive" for the default
// drive, "/drives/{id}" otherwise.
func driveRoot(driveID string) string {
	if driveID == "" || driveID == DefaultDriveID {
		return "/me/drive"
	}

	return "/drives/" + url.PathEscape(driveID)
}

// refRoot is the drive prefix used inside parentReference.path bodies.
func refRoot(driveID string) string {
	if driveID == "" || driveID == DefaultDriveID {
		return "/drive"
	}

	return "/drives/" + driveID
}

// itemPath addresses a cleaned absolute drive path: "{drive}/root" for the
// root, "{drive}/root:{escaped}:" for anything else.
func itemPath(driveID, p string) string {
	if drive.IsRoot(p) {
		return driveRoot(driveID) + "/root"
	}

	return driveRoot(driveID) + "/root:" + encodePathSegments(p) + ":"
}

// itemAction appends an action or navigation segment to an item address.
func itemAction(driveID, p, action string) string {
	return itemPath(driveID, p) + "/" + action
}

// parentRefPath is the parentReference.path value for a directory.
func parentRefPath(driveID, dir string) string {
	if drive.IsRoot(dir) {
		return refRoot(driveID) + "/root:"
	}

	return refRoot(driveID) + "/root:" + dir
}

// encodePathSegments URL-encodes each segment of a slash-separated path.
// Characters like #, ?, % and spaces are encoded per segment so the result
// is safe to interpolate into Graph API URLs.
func encodePathSegments(p string) string {
	segments := strings.Split(p, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}

	return strings.Join(segments, "/")
}

// driveItemResponse mirrors the fields of a Graph driveItem we use.
type driveItemResponse struct {
	ID                   string       `json:"id"`
	Name                 string       `json:"name"`
	Size                 int64        `json:"size"`
	ETag                 string       `json:"eTag"`
	LastModifiedDateTime string       `json:"lastModifiedDateTime"`
	File                 *fileFacet   `json:"file"`
	Folder               *folderFacet `json:"folder"`
	DownloadURL          string       `json:"@microsoft.graph.downloadUrl"` //nolint:tagliatelle // Graph API annotation key
}

type fileFacet struct {
	Hashes *struct {
		QuickXorHash string `json:"quickXorHash"`
		SHA256Hash   string `json:"sha256Hash"`
	} `json:"hashes"`
}

type folderFacet struct {
	ChildCount int `json:"childCount"`
}

// toFileInfo normalizes a driveItem. p is the cleaned path it was fetched by.
func (d *driveItemResponse) toFileInfo(p string) *drive.FileInfo {
	fi := &drive.FileInfo{
		ID:       d.ID,
		Name:     d.Name,
		Path:     p,
		Size:     d.Size,
		IsDir:    d.Folder != nil,
		ETag:     d.ETag,
		Children: -1,
	}

	if drive.IsRoot(p) {
		fi.Name = "/"
	}

	if d.Folder != nil {
		fi.Children = d.Folder.ChildCount
	}

	if d.File != nil && d.File.Hashes != nil {
		fi.Hash = d.File.Hashes.QuickXorHash
		if fi.Hash == "" {
			fi.Hash = d.File.Hashes.SHA256Hash
		}
	}

	if t, err := time.Parse(time.RFC3339, d.LastModifiedDateTime); err == nil {
		fi.ModTime = t
	}

	return fi
}

// getItem fetches the driveItem at p.
func (c *Client) getItem(ctx context.Context, token, driveID, p string) (*driveItemResponse, error) {
	var item driveItemResponse

	err := c.doJSON(ctx, request{method: http.MethodGet, target: itemPath(driveID, p), token: token}, "item", &item)
	if err != nil {
		return nil, err
	}

	if item.ID == "" {
		return nil, &drive.DecodeError{What: "item", Err: errors.New("missing id")}
	}

	return &item, nil
}

// Stat returns metadata for p.
func (c *Client) Stat(ctx context.Context, token, driveID, p string) (*drive.FileInfo, error) {
	item, err := c.getItem(ctx, token, driveID, p)
	if err != nil {
		return nil, err
	}

	return item.toFileInfo(p), nil
}

// childrenPage is one page of a children listing. Fields are pointers so
// that absent and wrongly typed members can be told apart.
type childrenPage struct {
	Value    *[]json.RawMessage `json:"value"`
	NextLink *json.RawMessage   `json:"@odata.nextLink"` //nolint:tagliatelle // OData annotation key
}

// ChildrenURL returns the target of the first page of a listing of p.
func ChildrenURL(driveID, p string) string {
	return fmt.Sprintf("%s?$top=%d", itemAction(driveID, p, "children"), listPageSize)
}

// ListPage fetches one listing page. target is ChildrenURL for the first
// page and the previous page's nextLink, used verbatim, afterwards.
func (c *Client) ListPage(ctx context.Context, token, target string) (drive.Page, error) {
	resp, err := c.do(ctx, request{method: http.MethodGet, target: target, token: token})
	if err != nil {
		return drive.Page{}, err
	}
	defer resp.Body.Close()

	var page childrenPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return drive.Page{}, &drive.DecodeError{What: "listing page", Err: err}
	}

	return decodeChildrenPage(&page)
}

func decodeChildrenPage(page *childrenPage) (drive.Page, error) {
	if page.Value == nil {
		return drive.Page{}, &drive.DecodeError{What: "listing page", Err: errors.New("missing value array")}
	}

	entries := make([]drive.Entry, 0, len(*page.Value))

	for i, raw := range *page.Value {
		var item driveItemResponse
		if err := json.Unmarshal(raw, &item); err != nil {
			return drive.Page{}, &drive.DecodeError{What: fmt.Sprintf("listing entry %d", i), Err: err}
		}

		if item.Name == "" {
			return drive.Page{}, &drive.DecodeError{What: fmt.Sprintf("listing entry %d", i), Err: errors.New("missing name")}
		}

		entries = append(entries, drive.Entry{
			Name:  item.Name,
			ID:    item.ID,
			Size:  item.Size,
			IsDir: item.Folder != nil,
		})
	}

	out := drive.Page{Entries: entries}

	if page.NextLink != nil {
		var next string
		if err := json.Unmarshal(*page.NextLink, &next); err != nil || next == "" {
			return drive.Page{}, &drive.DecodeError{What: "listing page", Err: errors.New("malformed @odata.nextLink")}
		}

		out.Next = next
	}

	return out, nil
}

type createFolderRequest struct {
	Name             string   `json:"name"`
	Folder           struct{} `json:"folder"`
	ConflictBehavior string   `json:"@microsoft.graph.conflictBehavior"` //nolint:tagliatelle // Graph API annotation key
}

// CreateFolder creates name under dir. A name collision makes the service
// pick a fresh name rather than fail.
func (c *Client) CreateFolder(ctx context.Context, token, driveID, dir, name string) error {
	c.logger.Info("creating folder",
		slog.String("drive_id", driveID),
		slog.String("parent", dir),
		slog.String("name", name),
	)

	body, err := json.Marshal(createFolderRequest{Name: name, ConflictBehavior: "rename"})
	if err != nil {
		return fmt.Errorf("graph: marshaling create folder request: %w", err)
	}

	_, err = c.doDiscard(ctx, request{
		method:      http.MethodPost,
		target:      itemAction(driveID, dir, "children"),
		token:       token,
		body:        bytes.NewReader(body),
		contentType: "application/json",
		size:        int64(len(body)),
		expect:      []int{http.StatusCreated},
	})

	return err
}

type parentReference struct {
	Path string `json:"path"`
}

// relocateRequest is the body shared by move (PATCH) and copy (POST).
type relocateRequest struct {
	ParentReference parentReference `json:"parentReference"`
	Name            string          `json:"name"`
}

func relocateBody(driveID, to string) ([]byte, error) {
	dir, name, err := drive.SplitPath(to)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(relocateRequest{
		ParentReference: parentReference{Path: parentRefPath(driveID, dir)},
		Name:            name,
	})
	if err != nil {
		return nil, fmt.Errorf("graph: marshaling relocate request: %w", err)
	}

	return body, nil
}

// Move renames or relocates from to to.
func (c *Client) Move(ctx context.Context, token, driveID, from, to string) error {
	c.logger.Info("moving item",
		slog.String("drive_id", driveID),
		slog.String("from", from),
		slog.String("to", to),
	)

	body, err := relocateBody(driveID, to)
	if err != nil {
		return err
	}

	_, err = c.doDiscard(ctx, request{
		method:      http.MethodPatch,
		target:      itemPath(driveID, from),
		token:       token,
		body:        bytes.NewReader(body),
		contentType: "application/json",
		size:        int64(len(body)),
		expect:      []int{http.StatusOK},
	})

	return err
}

// Delete removes p (recursively for folders).
func (c *Client) Delete(ctx context.Context, token, driveID, p string) error {
	c.logger.Info("deleting item",
		slog.String("drive_id", driveID),
		slog.String("path", p),
	)

	_, err := c.doDiscard(ctx, request{
		method: http.MethodDelete,
		target: itemPath(driveID, p),
		token:  token,
		expect: []int{http.StatusNoContent},
	})

	return err
}
