package validation_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	svcErr "github.com/oggyb/muzz-matching/internal/errors"
	"github.com/oggyb/muzz-matching/internal/validation"
)

type sample struct {
	UserID string `json:"user_id" validate:"required,max=8"`
	Kind   string `json:"kind" validate:"oneof=like super_like"`
}

func TestStruct(t *testing.T) {
	assert.NoError(t, validation.Struct(sample{UserID: "u1", Kind: "like"}))

	err := validation.Struct(sample{Kind: "like"})
	assert.True(t, errors.Is(err, svcErr.ErrValidation))
	assert.EqualError(t, err, "user_id is required")

	err = validation.Struct(sample{UserID: "way-too-long", Kind: "like"})
	assert.EqualError(t, err, "user_id must be at most 8 characters")

	err = validation.Struct(sample{UserID: "u1", Kind: "meh"})
	assert.EqualError(t, err, "kind must be one of [like super_like]")
}
