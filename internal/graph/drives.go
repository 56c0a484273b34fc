package graph

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tonimelisma/hivedrive/internal/drive"
)

// driveResponse mirrors the Graph API drive JSON response.
type driveResponse struct {
	ID        string `json:"id"`
	DriveType string `json:"driveType"`
	Owner     *struct {
		User struct {
			DisplayName string `json:"displayName"`
		} `json:"user"`
	} `json:"owner"`
	Quota *struct {
		Used  int64 `json:"used"`
		Total int64 `json:"total"`
	} `json:"quota"`
}

// DriveInfo fetches identity and quota for a drive.
func (c *Client) DriveInfo(ctx context.Context, token, driveID string) (*drive.Info, error) {
	var dr driveResponse

	if err := c.doJSON(ctx, request{method: http.MethodGet, target: driveRoot(driveID), token: token}, "drive", &dr); err != nil {
		return nil, err
	}

	if dr.ID == "" {
		return nil, &drive.DecodeError{What: "drive", Err: errors.New("missing id")}
	}

	info := &drive.Info{
		ID:        dr.ID,
		Backend:   BackendName,
		DriveType: dr.DriveType,
	}

	if dr.Owner != nil {
		info.Owner = dr.Owner.User.DisplayName
	}

	if dr.Quota != nil {
		info.QuotaUsed = dr.Quota.Used
		info.QuotaTotal = dr.Quota.Total
	}

	c.logger.Debug("fetched drive",
		slog.String("id", info.ID),
		slog.String("drive_type", info.DriveType),
	)

	return info, nil
}

// userResponse mirrors the Graph API /me JSON response.
type userResponse struct {
	DisplayName string `json:"displayName"`
	Mail        string `json:"mail"`
	// UPN is a fallback when mail is empty (common on personal accounts).
	UPN string `json:"userPrincipalName"`
}

// Account returns the signed-in user's email address, or display name when
// the account has none.
func (c *Client) Account(ctx context.Context, token string) (string, error) {
	var ur userResponse

	if err := c.doJSON(ctx, request{method: http.MethodGet, target: "/me", token: token}, "user", &ur); err != nil {
		return "", err
	}

	switch {
	case ur.Mail != "":
		return ur.Mail, nil
	case ur.UPN != "":
		return ur.UPN, nil
	default:
		return ur.DisplayName, nil
	}
}
