// Package api implements the HTTP API server for the allocation engine.
package api

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the error envelope every non-2xx answer carries.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail pairs a stable machine code (UNKNOWN_COUNTRY, QUOTA_EXCEEDED,
// ...) with a human-readable message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PageResponse is the list envelope for paginated endpoints.
type PageResponse[T any] struct {
	Items  []T `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// WriteJSON encodes data as the response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteError writes the standard error envelope.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
}

// WritePage applies p to allItems and writes the page plus the pre-slice
// total, so clients can page without a separate count call.
func WritePage[T any](w http.ResponseWriter, status int, allItems []T, p Pagination) {
	WriteJSON(w, status, PageResponse[T]{
		Items:  PaginateSlice(allItems, p),
		Total:  len(allItems),
		Limit:  p.Limit,
		Offset: p.Offset,
	})
}
