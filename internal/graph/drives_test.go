package graph

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/hivedrive/internal/drive"
)

func TestDriveInfo_MissingID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, `{"driveType": "personal"}`)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).DriveInfo(context.Background(), "tok", DefaultDriveID)

	var decodeErr *drive.DecodeError
	assert.ErrorAs(t, err, &decodeErr)
}

func TestDriveInfo_ExplicitDrive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/drives/abc", r.URL.Path)
		writeJSON(w, http.StatusOK, `{"id": "abc", "driveType": "business"}`)
	}))
	defer srv.Close()

	info, err := newTestClient(t, srv.URL).DriveInfo(context.Background(), "tok", "abc")
	require.NoError(t, err)
	assert.Equal(t, "business", info.DriveType)
	assert.Zero(t, info.QuotaTotal)
}

func TestAccount(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"mail", `{"mail": "a@example.com", "userPrincipalName": "upn@example.com", "displayName": "A"}`, "a@example.com"},
		{"upn fallback", `{"userPrincipalName": "upn@example.com", "displayName": "A"}`, "upn@example.com"},
		{"display name fallback", `{"displayName": "A"}`, "A"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/me", r.URL.Path)
				writeJSON(w, http.StatusOK, tt.body)
			}))
			defer srv.Close()

			got, err := newTestClient(t, srv.URL).Account(context.Background(), "tok")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
