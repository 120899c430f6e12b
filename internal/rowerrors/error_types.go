package rowerrors

import (
	"strconv"
	"strings"
)

// ErrorType is a predefined category of row-level validation error.
type ErrorType struct {
	ID      int
	Name    string
	Message string
}

const (
	TypeError     = 1
	RequiredError = 2
	ValueError    = 3
	ReadError     = 4
	WriteError    = 5
	RuleFailed    = 6
	JobError      = 7
	LengthError   = 8
)

const lengthLimitMessage = "Field must be no longer than specified limit"

var ErrorTypeByID = map[int]ErrorType{
	TypeError:     {ID: TypeError, Name: "type_error", Message: "The value provided was of the wrong type."},
	RequiredError: {ID: RequiredError, Name: "required_error", Message: "This field is required for all submissions but was not provided in this row."},
	ValueError:    {ID: ValueError, Name: "value_error", Message: "The value provided was invalid."},
	ReadError:     {ID: ReadError, Name: "read_error", Message: "Could not parse this record correctly."},
	WriteError:    {ID: WriteError, Name: "write_error", Message: "Could not write this record into the staging table."},
	RuleFailed:    {ID: RuleFailed, Name: "rule_failed", Message: "A rule failed for this value."},
	JobError:      {ID: JobError, Name: "job_error", Message: "Error occurred in job manager."},
	LengthError:   {ID: LengthError, Name: "length_error", Message: lengthLimitMessage + "."},
}

// Code returns the error kind of a predefined error type.
func Code(id int) string {
	return strconv.Itoa(id)
}

// LengthExceeded returns the free-text error kind reported for a value longer than limit.
func LengthExceeded(limit int) string {
	return lengthLimitMessage + ": " + strconv.Itoa(limit)
}

// classify resolves an error kind into its error type id and the rule text to store.
// Numeric kinds are predefined types, anything else is the message of a failed rule.
func classify(kind string) (int, string) {
	if id, err := strconv.Atoi(kind); err == nil {
		if errorType, found := ErrorTypeByID[id]; found {
			return errorType.ID, errorType.Message
		}
	}

	if strings.Contains(kind, lengthLimitMessage) {
		return LengthError, kind
	}
	return RuleFailed, kind
}
