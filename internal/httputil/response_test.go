package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/allisson/fieldcrypt/internal/errors"
)

func performError(t *testing.T, err error) (*httptest.ResponseRecorder, ErrorResponse) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	HandleErrorGin(c, err, slog.New(slog.DiscardHandler))

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func TestHandleErrorGin(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
	}{
		{
			name:       "not found",
			err:        apperrors.Wrap(apperrors.ErrNotFound, "key version 9"),
			wantStatus: http.StatusNotFound,
			wantError:  "not_found",
		},
		{
			name:       "conflict",
			err:        apperrors.Wrap(apperrors.ErrConflict, "rotation already in progress"),
			wantStatus: http.StatusConflict,
			wantError:  "conflict",
		},
		{
			name:       "invalid input",
			err:        apperrors.Wrap(apperrors.ErrInvalidInput, "malformed payload"),
			wantStatus: http.StatusUnprocessableEntity,
			wantError:  "invalid_input",
		},
		{
			name:       "forbidden",
			err:        apperrors.Wrap(apperrors.ErrForbidden, "key version revoked"),
			wantStatus: http.StatusForbidden,
			wantError:  "forbidden",
		},
		{
			name:       "unavailable",
			err:        apperrors.Wrap(apperrors.ErrUnavailable, "key store unreachable"),
			wantStatus: http.StatusServiceUnavailable,
			wantError:  "unavailable",
		},
		{
			name:       "unknown error hides details",
			err:        errors.New("pq: connection reset"),
			wantStatus: http.StatusInternalServerError,
			wantError:  "internal_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := performError(t, tt.err)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantError, body.Error)
			if tt.wantError == "internal_error" {
				assert.NotContains(t, body.Message, "pq:")
			}
		})
	}
}

func TestHandleBadRequestGin(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", nil)

	HandleBadRequestGin(c, errors.New("invalid json"), slog.New(slog.DiscardHandler))

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "bad_request", body.Error)
	assert.Equal(t, "invalid json", body.Message)
}
