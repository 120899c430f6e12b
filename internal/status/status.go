package status

import (
	"github.com/fedspending/data-broker/internal/store/model"
)

type External string

const (
	Invalid  External = "invalid"
	Waiting  External = "waiting"
	Finished External = "finished"
	Failed   External = "failed"
)

const (
	MsgUploadFailed     = "Upload job failed without error message"
	MsgRowLevelErrors   = "Validation completed but row-level errors were found"
	MsgFileLevelErrors  = "Generated file had file-level errors"
	MsgValidationFailed = "Validation job had an internal error"
)

var uploadStatusMap = map[model.JobStatus]External{
	model.JobStatusWaiting:  Invalid,
	model.JobStatusReady:    Invalid,
	model.JobStatusRunning:  Waiting,
	model.JobStatusFinished: Finished,
	model.JobStatusInvalid:  Failed,
	model.JobStatusFailed:   Failed,
}

var validationStatusMap = map[model.JobStatus]External{
	model.JobStatusWaiting:  Waiting,
	model.JobStatusReady:    Waiting,
	model.JobStatusRunning:  Waiting,
	model.JobStatusFinished: Finished,
	model.JobStatusFailed:   Failed,
	model.JobStatusInvalid:  Failed,
}

type Input struct {
	UploadStatus model.JobStatus
	UploadError  *string
	// ValidationStatus is nil when the upload job has no validation job.
	ValidationStatus *model.JobStatus
	ValidationError  *string
	// HasFatalErrors is true when the validation job recorded fatal row errors.
	HasFatalErrors bool
}

type Result struct {
	Status External
	// Message is the error message to report for the upload job, empty when there is none.
	Message string
}

// MapStatus computes the external status of a generation. It has no side effects.
func MapStatus(in Input) Result {
	message := in.UploadError

	status, found := uploadStatusMap[in.UploadStatus]
	if !found {
		status = Failed
	}
	if status == Failed && message == nil {
		message = ptr(MsgUploadFailed)
	}

	if in.ValidationStatus == nil {
		return newResult(status, message)
	}

	if status == Finished {
		status, found = validationStatusMap[*in.ValidationStatus]
		if !found {
			status = Failed
		}
		if status == Finished && in.HasFatalErrors {
			status = Failed
			message = ptr(MsgRowLevelErrors)
		}
	}

	if status == Failed {
		switch {
		case message == nil && in.ValidationError == nil:
			if *in.ValidationStatus == model.JobStatusInvalid {
				message = ptr(MsgFileLevelErrors)
			} else {
				message = ptr(MsgValidationFailed)
			}
		case message == nil:
			message = in.ValidationError
		}
	}

	return newResult(status, message)
}

func newResult(status External, message *string) Result {
	return Result{Status: status, Message: model.StringValue(message)}
}

func ptr(s string) *string {
	return &s
}
