package validator

import (
	"reflect"
	"regexp"
	"time"

	"github.com/fedspending/data-broker/internal/store/model"
	"github.com/go-playground/validator/v10"
	"github.com/thoas/go-funk"
)

// DateLayout is the MM/DD/YYYY format of generation dates.
const DateLayout = "01/02/2006"

// CGAC codes have three digits, FREC codes four.
var agencyCodeRegex = regexp.MustCompile(`^[0-9]{3,4}$`)

// stringValue reads a string or *string field. A nil pointer reports ok=false.
func stringValue(fl validator.FieldLevel) (string, bool) {
	field := fl.Field()
	if field.Kind() == reflect.Ptr {
		if field.IsNil() {
			return "", false
		}
		field = field.Elem()
	}
	if field.Kind() != reflect.String {
		return "", false
	}
	return field.String(), true
}

func generatedFileTypeValidator(fl validator.FieldLevel) bool {
	val, ok := stringValue(fl)
	if !ok {
		return false
	}
	return funk.Contains(model.GeneratedFileTypes, model.FileType(val))
}

func dateValidator(fl validator.FieldLevel) bool {
	val, ok := stringValue(fl)
	if !ok {
		return true
	}
	_, err := time.Parse(DateLayout, val)
	return err == nil
}

func agencyCodeValidator(fl validator.FieldLevel) bool {
	val, ok := stringValue(fl)
	if !ok {
		return true
	}
	return agencyCodeRegex.MatchString(val)
}
