package soapbox

import "net/http"

// StatusFunc maps a fault to a transport status. An Application carries one;
// DefaultStatus is used when it is nil.
type StatusFunc func(f *Fault) int

// DefaultStatus maps fault code prefixes to HTTP statuses.
func DefaultStatus(f *Fault) int {
	switch {
	case f == nil:
		return http.StatusOK
	case f.HasCode(FaultResourceNotFound), f.HasCode(FaultMethodNotFound):
		return http.StatusNotFound
	case f.HasCode(FaultNotAllowed):
		return http.StatusForbidden
	case f.HasCode(FaultRequestTooLong):
		return http.StatusRequestEntityTooLarge
	case f.IsClient():
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func redirectStatus(r *Redirect) int {
	if r.Status == 0 {
		return http.StatusFound
	}
	return r.Status
}
