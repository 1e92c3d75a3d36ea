package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{ErrInvalid("bad input"), http.StatusBadRequest},
		{ErrNotFound("book not found"), http.StatusNotFound},
		{ErrConflict("isbn already exists"), http.StatusConflict},
		{ErrUnavailable("no copies available"), http.StatusConflict},
		{ErrInvalidState("loan already returned"), http.StatusConflict},
		{ErrInternal("boom"), http.StatusInternalServerError},
		{errors.New("plain error"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ToHTTPStatus(tc.err), "err=%v", tc.err)
	}
}

func TestIsCode_SeesThroughWrapping(t *testing.T) {
	err := fmt.Errorf("borrow: %w", ErrUnavailable("no copies available"))

	assert.True(t, IsCode(err, CodeUnavailable))
	assert.False(t, IsCode(err, CodeNotFound))
	assert.False(t, IsCode(errors.New("plain"), CodeUnavailable))
}

func TestFromErr(t *testing.T) {
	d := FromErr(ErrNotFound("user not found"))
	assert.Equal(t, CodeNotFound, d.Error.Code)
	assert.Equal(t, "user not found", d.Error.Message)

	d = FromErr(errors.New("db down"))
	assert.Equal(t, CodeInternal, d.Error.Code)
}
