package sl_test

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/magabrotheeeer/entitlement-service/internal/lib/sl"
)

func TestErr_ReturnsCorrectAttr(t *testing.T) {
	err := errors.New("something went wrong")
	attr := sl.Err(err)

	assert.Equal(t, "error", attr.Key)
	assert.Equal(t, slog.StringValue("something went wrong"), attr.Value)
}

func TestErr_NilError(t *testing.T) {
	assert.NotPanics(t, func() {
		attr := sl.Err(nil)
		assert.True(t, attr.Equal(slog.Attr{}))
	})
}

func TestOpAndUserUID(t *testing.T) {
	assert.Equal(t, slog.String("op", "pkg.Func"), sl.Op("pkg.Func"))
	assert.Equal(t, slog.String("user_uid", "u1"), sl.UserUID("u1"))
}
