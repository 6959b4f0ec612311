package error

import (
	"errors"
	"net/http"
)

// GenericError is what the REST recovery middleware knows how to render.
type GenericError interface {
	error
	ErrCode() string
	StatusCode() int
}

type ValidationError string

func (err ValidationError) Error() string {
	return string(err)
}

func (err ValidationError) ErrCode() string {
	return "VALIDATION_ERROR"
}

func (err ValidationError) StatusCode() int {
	return http.StatusBadRequest
}

type InternalServerError string

func (err InternalServerError) Error() string {
	return string(err)
}

func (err InternalServerError) ErrCode() string {
	return "INTERNAL_SERVER_ERROR"
}

func (err InternalServerError) StatusCode() int {
	return http.StatusInternalServerError
}

// AsGeneric finds the first GenericError in err's chain.
func AsGeneric(err error) (GenericError, bool) {
	var g GenericError
	if errors.As(err, &g) {
		return g, true
	}
	return nil, false
}
