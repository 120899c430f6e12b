package validator

import (
	"fmt"
)

type ErrInvalidField struct {
	error
	Field string
	Tag   string
}

func NewErrInvalidField(field, tag string, value any) *ErrInvalidField {
	return &ErrInvalidField{
		error: fmt.Errorf("invalid %s %v: failed on %q", field, value, tag),
		Field: field,
		Tag:   tag,
	}
}
