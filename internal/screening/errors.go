package screening

import (
	"fmt"

	"mindbridge-go/pkg/apperr"
)

var (
	ErrUnknownInstrument   = fmt.Errorf("%w: unknown screening instrument", apperr.ErrValidation)
	ErrInvalidResponse     = fmt.Errorf("%w: invalid screening response", apperr.ErrValidation)
	ErrIncompleteResponses = fmt.Errorf("%w: incomplete screening responses", apperr.ErrValidation)
)
