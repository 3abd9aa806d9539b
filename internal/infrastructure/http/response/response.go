package response

import (
	"encoding/json"
	"net/http"
)

type Status string

const (
	StatusError              Status = "error"
	StatusValidationError    Status = "validation_error"
	StatusNotFound           Status = "not_found"
	StatusGone               Status = "gone"
	StatusConflict           Status = "conflict"
	StatusInternalError      Status = "internal_error"
	StatusServiceUnavailable Status = "service_unavailable"
)

// ErrorResponse is the body of every non-2xx reply. Fields is only set for
// validation failures and maps a request field to what is wrong with it.
type ErrorResponse struct {
	Message string            `json:"message,omitempty"`
	Code    string            `json:"code"`
	Error   string            `json:"error,omitempty"`
	Fields  map[string]string `json:"errors,omitempty"`
}

// ListResponse always serialises Items as an array, never null.
type ListResponse[T any] struct {
	Items  []T `json:"items"`
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

func List[T any](items []T, limit, offset int) ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	return ListResponse[T]{Items: items, Limit: limit, Offset: offset}
}

func Error(status Status, message string, detail ...string) *ErrorResponse {
	resp := &ErrorResponse{Message: message, Code: string(status)}
	if len(detail) > 0 {
		resp.Error = detail[0]
	}
	return resp
}

// WriteJSON marks every reply uncacheable: checkout views carry payment
// client secrets.
func WriteJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}

func WriteSuccess[T any](w http.ResponseWriter, data T) {
	WriteJSON(w, http.StatusOK, data)
}

func WriteCreated[T any](w http.ResponseWriter, data T) {
	WriteJSON(w, http.StatusCreated, data)
}

// WriteAccepted acknowledges a command the checkout loop will act on later.
func WriteAccepted[T any](w http.ResponseWriter, data T) {
	WriteJSON(w, http.StatusAccepted, data)
}

func WriteError(w http.ResponseWriter, statusCode int, status Status, message string, detail ...string) {
	WriteJSON(w, statusCode, Error(status, message, detail...))
}

func WriteValidationError(w http.ResponseWriter, message string, fields map[string]string) {
	resp := Error(StatusValidationError, message)
	resp.Fields = fields
	WriteJSON(w, http.StatusBadRequest, resp)
}
