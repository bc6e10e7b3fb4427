package rapidapi

import (
	"errors"
	"fmt"
	"net/http"
)

// StatusError is a non-2xx response from the upstream API.
type StatusError struct {
	Code     int
	Endpoint string
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: api status %d", e.Endpoint, e.Code)
}

// IsRateLimited reports whether err is a 429 response.
func IsRateLimited(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusTooManyRequests
}

// IsClientError reports whether err is a bad-request/not-found class
// response, the trigger for batch bisection.
func IsClientError(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == http.StatusBadRequest || se.Code == http.StatusNotFound
}
