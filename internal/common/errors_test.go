package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{ErrUnauthorized, http.StatusUnauthorized},
		{fmt.Errorf("wrap: %w", ErrAccessDenied), http.StatusForbidden},
		{NotFoundf("message %d", 3), http.StatusNotFound},
		{&RateLimitError{RetryAfter: time.Second}, http.StatusTooManyRequests},
		{Validationf("bad"), http.StatusBadRequest},
		{ErrStorageUnavailable, http.StatusBadGateway},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, HTTPStatus(tc.err), "%v", tc.err)
	}
}

func TestRateLimitError(t *testing.T) {
	err := fmt.Errorf("send: %w", &RateLimitError{RetryAfter: 1500 * time.Millisecond})
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, "RATE_LIMITED", ErrorCode(err))

	var rl *RateLimitError
	require.True(t, errors.As(err, &rl))
	assert.Equal(t, 2, rl.RetryAfterSeconds())
	assert.Equal(t, 1, (&RateLimitError{}).RetryAfterSeconds())
}

func TestFail_Envelope(t *testing.T) {
	gin.SetMode(gin.TestMode)

	render := func(err error) (*httptest.ResponseRecorder, Response) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		Fail(c, err)
		var resp Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		return w, resp
	}

	w, resp := render(&RateLimitError{RetryAfter: 4 * time.Second})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "4", w.Header().Get("Retry-After"))
	assert.False(t, resp.Success)
	assert.Equal(t, 4, resp.Error.RetryAfterSeconds)

	w, resp = render(errors.New("dial tcp 10.0.0.3:3306: connection refused"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal server error", resp.Error.Message)
	assert.Equal(t, "INTERNAL_SERVER_ERROR", resp.Error.Code)
}
