package repository

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"

	"mindbridge-go/pkg/apperr"
)

func TestWrapTranslatesGormErrors(t *testing.T) {
	assert.NoError(t, wrap(nil, "noop"))

	notFound := wrap(gorm.ErrRecordNotFound, "find appointment %d", 7)
	assert.ErrorIs(t, notFound, apperr.ErrNotFound)
	assert.Equal(t, "find appointment 7: not found", notFound.Error())

	dup := wrap(gorm.ErrDuplicatedKey, "create appointment")
	assert.ErrorIs(t, dup, apperr.ErrConflict)

	other := errors.New("connection refused")
	wrapped := wrap(other, "list users")
	assert.ErrorIs(t, wrapped, other)
	assert.NotErrorIs(t, wrapped, apperr.ErrNotFound)
}
