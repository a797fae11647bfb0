package apierror

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAPIError_Error(t *testing.T) {
	assert.Equal(t, "BAD_REQUEST: email is required", New("BAD_REQUEST", "email is required", "", http.StatusBadRequest).Error())
	assert.Equal(t, "BAD_REQUEST: invalid field (email)", New("BAD_REQUEST", "invalid field", "email", http.StatusBadRequest).Error())

	var nilErr *APIError
	assert.Equal(t, "", nilErr.Error())
}

func TestWrap_KeepsCause(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(cause, "BAD_REQUEST", "invalid input", "", http.StatusBadRequest)

	assert.ErrorIs(t, err, cause)

	var apiErr *APIError
	assert.True(t, errors.As(error(err), &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.HTTPStatus)
}
