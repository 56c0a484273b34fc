package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"

	"github.com/tonimelisma/hivedrive/internal/drive"
	"github.com/tonimelisma/hivedrive/internal/tokenfile"
)

// BackendName identifies this backend in logs, metrics and drive.Info.
const BackendName = "onedrive"

// DefaultTenant accepts both personal and work accounts.
const DefaultTenant = "common"

// ErrNotLoggedIn is returned when no token file exists for the drive.
var ErrNotLoggedIn = errors.New("graph: not logged in")

var defaultScopes = []string{
	"offline_access",
	"Files.ReadWrite.All",
	"User.Read",
}

// OAuthConfig builds the public-client OAuth2 configuration for an Azure AD
// application.
func OAuthConfig(clientID, tenant string) *oauth2.Config {
	if tenant == "" {
		tenant = DefaultTenant
	}

	return &oauth2.Config{
		ClientID: clientID,
		Scopes:   defaultScopes,
		Endpoint: microsoft.AzureADEndpoint(tenant),
	}
}

// DeviceAuth holds the device code response fields that the CLI displays to the user.
type DeviceAuth struct {
	UserCode        string
	VerificationURI string
}

// Login performs the device code flow:
//  1. Requests a device code
//  2. Calls display so the CLI can show the user code and verification URL
//  3. Polls until the user authorizes (blocking, respects ctx cancellation)
//  4. Saves the token to tokenPath
func Login(
	ctx context.Context,
	cfg *oauth2.Config,
	tenant, tokenPath string,
	display func(DeviceAuth),
	logger *slog.Logger,
) (*oauth2.Token, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("starting device code auth flow", slog.String("path", tokenPath))

	da, err := cfg.DeviceAuth(ctx)
	if err != nil {
		return nil, fmt.Errorf("graph: device auth request failed: %w", err)
	}

	display(DeviceAuth{
		UserCode:        da.UserCode,
		VerificationURI: da.VerificationURI,
	})

	tok, err := cfg.DeviceAccessToken(ctx, da)
	if err != nil {
		return nil, fmt.Errorf("graph: device code authorization failed: %w", err)
	}

	rec := &tokenfile.Record{Token: tok, ClientID: cfg.ClientID, Tenant: tenant}
	if err := tokenfile.Save(tokenPath, rec); err != nil {
		return nil, fmt.Errorf("graph: saving token: %w", err)
	}

	logger.Info("login successful",
		slog.String("path", tokenPath),
		slog.Time("expiry", tok.Expiry),
	)

	return tok, nil
}

// Logout removes the saved token at tokenPath. Already logged out is not
// an error.
func Logout(tokenPath string, logger *slog.Logger) error {
	if err := tokenfile.Remove(tokenPath); err != nil {
		return err
	}

	if logger != nil {
		logger.Info("logged out", slog.String("path", tokenPath))
	}

	return nil
}

// CachedAccessToken returns the saved access token if it has not expired,
// so a new process can skip its first refresh. Empty otherwise.
func CachedAccessToken(tokenPath string) string {
	rec, err := tokenfile.Load(tokenPath)
	if err != nil || !rec.Token.Valid() {
		return ""
	}

	return rec.Token.AccessToken
}

// Refresher exchanges the saved refresh token for a new access token and
// persists whatever the authority hands back. It implements
// drive.TokenRefresher.
type Refresher struct {
	cfg       *oauth2.Config
	tokenPath string
	logger    *slog.Logger
}

// NewRefresher creates a Refresher for the token file at tokenPath.
func NewRefresher(cfg *oauth2.Config, tokenPath string, logger *slog.Logger) *Refresher {
	if logger == nil {
		logger = slog.Default()
	}

	return &Refresher{cfg: cfg, tokenPath: tokenPath, logger: logger}
}

// RefreshToken performs one refresh-token grant. Failures are returned as
// *drive.AuthError with the narrowest cause that fits.
func (r *Refresher) RefreshToken(ctx context.Context) (string, error) {
	rec, err := tokenfile.Load(r.tokenPath)
	if errors.Is(err, tokenfile.ErrNotFound) {
		return "", &drive.AuthError{Cause: drive.AuthCauseInvalidGrant, Err: ErrNotLoggedIn}
	}

	if err != nil {
		return "", &drive.AuthError{Cause: drive.AuthCauseUnknown, Err: err}
	}

	if rec.ClientID != "" && rec.ClientID != r.cfg.ClientID {
		return "", &drive.AuthError{
			Cause: drive.AuthCauseInvalidGrant,
			Err:   fmt.Errorf("graph: saved token was issued to client %s; log in again", rec.ClientID),
		}
	}

	// Only the refresh token is passed in, so the source always performs a
	// grant instead of handing back a cached access token.
	src := r.cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: rec.Token.RefreshToken})

	tok, err := src.Token()
	if err != nil {
		return "", &drive.AuthError{Cause: refreshCause(err), Err: err}
	}

	if tok.RefreshToken == "" {
		tok.RefreshToken = rec.Token.RefreshToken
	}

	if err := tokenfile.UpdateToken(r.tokenPath, tok); err != nil {
		r.logger.Warn("failed to persist refreshed token",
			slog.String("path", r.tokenPath),
			slog.String("error", err.Error()),
		)
	}

	r.logger.Debug("token refreshed", slog.Time("expiry", tok.Expiry))

	return tok.AccessToken, nil
}

func refreshCause(err error) drive.AuthCause {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && (re.ErrorCode == "invalid_grant" || re.ErrorCode == "invalid_client") {
		return drive.AuthCauseInvalidGrant
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return drive.AuthCauseNetwork
	}

	return drive.AuthCauseUnknown
}
