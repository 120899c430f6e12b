package service

import (
	"fmt"

	"github.com/fedspending/data-broker/internal/store/model"
)

type ErrJobNotFound struct {
	error
}

func NewErrJobNotFound(id int64) *ErrJobNotFound {
	return &ErrJobNotFound{fmt.Errorf("job %d not found", id)}
}

type ErrSubmissionNotFound struct {
	error
}

func NewErrSubmissionNotFound(id int64) *ErrSubmissionNotFound {
	return &ErrSubmissionNotFound{fmt.Errorf("submission %d not found", id)}
}

type ErrInvalidRequest struct {
	error
}

func NewErrInvalidRequest(format string, args ...any) *ErrInvalidRequest {
	return &ErrInvalidRequest{fmt.Errorf("bad request: "+format, args...)}
}

type ErrPrerequisiteNotMet struct {
	error
}

func NewErrPrerequisiteNotMet(jobID int64, fileType model.FileType) *ErrPrerequisiteNotMet {
	return &ErrPrerequisiteNotMet{fmt.Errorf("generation of %s for job %d is already in progress", fileType, jobID)}
}
