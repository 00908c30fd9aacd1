package response

import (
	"testing"

	"github.com/go-playground/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Reference string `validate:"required"`
	Tier      string `validate:"oneof=monthly annual lifetime"`
}

func TestValidationError(t *testing.T) {
	err := validator.New().Struct(sample{Tier: "weekly"})
	require.Error(t, err)

	resp := ValidationError(err.(validator.ValidationErrors))
	assert.Contains(t, resp.Error, "field Reference is a required field")
	assert.Contains(t, resp.Error, "field Tier must be one of: monthly annual lifetime")
}

func TestError(t *testing.T) {
	assert.Equal(t, ErrorResponse{Error: "boom"}, Error("boom"))
}
