package error

import (
	"errors"
	"fmt"
	"net/http"
)

// TimeoutFailure: the lookup was abandoned after its deadline.
type TimeoutFailure string

func (err TimeoutFailure) Error() string {
	return string(err)
}

func (err TimeoutFailure) ErrCode() string {
	return "TIMEOUT_FAILURE"
}

func (err TimeoutFailure) StatusCode() int {
	return http.StatusGatewayTimeout
}

// ConnectionFailure: the transport could not reach the data provider.
type ConnectionFailure string

func (err ConnectionFailure) Error() string {
	return string(err)
}

func (err ConnectionFailure) ErrCode() string {
	return "CONNECTION_FAILURE"
}

func (err ConnectionFailure) StatusCode() int {
	return http.StatusBadGateway
}

// UpstreamFailure: the data provider answered with a non-2xx status.
type UpstreamFailure struct {
	Status int
	Body   string
}

func (err UpstreamFailure) Error() string {
	if err.Body == "" {
		return fmt.Sprintf("upstream responded with status %d", err.Status)
	}
	return fmt.Sprintf("upstream responded with status %d: %s", err.Status, err.Body)
}

func (err UpstreamFailure) ErrCode() string {
	return "UPSTREAM_FAILURE"
}

func (err UpstreamFailure) StatusCode() int {
	return http.StatusBadGateway
}

// MalformedResponse: the payload did not have the expected shape.
type MalformedResponse string

func (err MalformedResponse) Error() string {
	return string(err)
}

func (err MalformedResponse) ErrCode() string {
	return "MALFORMED_RESPONSE"
}

func (err MalformedResponse) StatusCode() int {
	return http.StatusBadGateway
}

const (
	StatusServerUnreachable = "server unreachable"
	StatusNoData            = "no data for this page"
	StatusUnexpected        = "unexpected error"
)

// IsRetryable reports whether err is a timeout or connection failure.
// Upstream and malformed responses are never retried.
func IsRetryable(err error) bool {
	var timeout TimeoutFailure
	var conn ConnectionFailure
	return errors.As(err, &timeout) || errors.As(err, &conn)
}

func IsMappingAbsent(err error) bool {
	var absent MappingAbsent
	if errors.As(err, &absent) {
		return true
	}
	var notFound NotFoundError
	return errors.As(err, &notFound)
}

// StatusMessage maps a failure to the single line shown to users.
func StatusMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case IsRetryable(err):
		return StatusServerUnreachable
	case IsMappingAbsent(err):
		return StatusNoData
	default:
		return StatusUnexpected
	}
}
