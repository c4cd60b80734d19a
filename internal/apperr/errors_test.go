package apperr

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifiersSeeThroughWrapping(t *testing.T) {
	cases := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"validation", Validation("bad", nil), IsValidation},
		{"conflict", Conflict("request %s already reviewed", "r1"), IsConflict},
		{"not found", NotFound("request"), IsNotFound},
		{"forbidden", Forbidden(), IsForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			wrapped := fmt.Errorf("review: %w", tc.err)
			assert.True(t, tc.check(wrapped))
		})
	}
}

func TestClassifiersDoNotCrossMatch(t *testing.T) {
	err := Conflict("duplicate")
	assert.False(t, IsValidation(err))
	assert.False(t, IsNotFound(err))
	assert.False(t, IsForbidden(err))
}

func TestValidationErrorMessageListsFieldsInOrder(t *testing.T) {
	err := Validation("invalid changes", map[string]string{
		"phone": "field not allowed",
		"email": "already in use",
	})
	assert.Equal(t, "invalid changes (email: already in use; phone: field not allowed)", err.Error())
}

func TestFieldError(t *testing.T) {
	err := FieldError("reason", "required when rejecting")
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)
	assert.Equal(t, "required when rejecting", ve.Fields["reason"])
}

func TestNotFoundMessage(t *testing.T) {
	assert.Equal(t, "profile update request not found", NotFound("profile update request").Error())
}
