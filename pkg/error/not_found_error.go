package error

import "net/http"

type NotFoundError string

func (err NotFoundError) Error() string {
	return string(err)
}

func (err NotFoundError) ErrCode() string {
	return "NOT_FOUND_ERROR"
}

func (err NotFoundError) StatusCode() int {
	return http.StatusNotFound
}

// MappingAbsent means the data provider has no counterpart for a vendor or
// product. It is a valid terminal state and callers render "no data".
type MappingAbsent string

func (err MappingAbsent) Error() string {
	return string(err)
}

func (err MappingAbsent) ErrCode() string {
	return "MAPPING_ABSENT"
}

func (err MappingAbsent) StatusCode() int {
	return http.StatusNotFound
}
