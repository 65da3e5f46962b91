package response

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

type Response struct {
	Status    string `json:"status"`
	ErrorKind string `json:"error_kind,omitempty"`
	Error     string `json:"error,omitempty"`
}

const (
	StatusOK    = "OK"
	StatusError = "Error"
)

// Machine-checkable error kinds reported alongside the prose detail.
const (
	KindValidation     = "validation_error"
	KindNotFound       = "not_found"
	KindConflict       = "conflict"
	KindCapacity       = "capacity_exceeded"
	KindAccessDenied   = "access_denied"
	KindInfrastructure = "infrastructure_error"
)

func OK() Response {
	return Response{Status: StatusOK}
}

func Error(kind, msg string) Response {
	return Response{
		Status:    StatusError,
		ErrorKind: kind,
		Error:     msg,
	}
}

func ValidationError(errs validator.ValidationErrors) Response {
	var errMsgs []string

	for _, err := range errs {
		switch err.ActualTag() {
		case "required":
			errMsgs = append(errMsgs, fmt.Sprintf("field %s is a required field", err.Field()))
		case "email":
			errMsgs = append(errMsgs, fmt.Sprintf("field %s is not a valid email", err.Field()))
		case "min":
			errMsgs = append(errMsgs, fmt.Sprintf("field %s is too short", err.Field()))
		case "gte":
			errMsgs = append(errMsgs, fmt.Sprintf("field %s must be greater than or equal to %s", err.Field(), err.Param()))
		default:
			errMsgs = append(errMsgs, fmt.Sprintf("field %s is not valid", err.Field()))
		}
	}

	return Response{
		Status:    StatusError,
		ErrorKind: KindValidation,
		Error:     strings.Join(errMsgs, ", "),
	}
}
