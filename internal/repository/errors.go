package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"mindbridge-go/pkg/apperr"
)

// wrap 把 gorm 错误转换为 apperr 类别，其余错误原样包装。
func wrap(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	msg := fmt.Sprintf(format, args...)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", msg, apperr.ErrNotFound)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%s: %w", msg, apperr.ErrConflict)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
