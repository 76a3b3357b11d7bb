package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Response wraps every stats payload. Errors is always an array so clients
// can range over it without a nil check.
type Response struct {
	Success bool       `json:"success"`
	Result  any        `json:"result"`
	Errors  []APIError `json:"errors"`
}

// APIError is one entry of Response.Errors. Codes are 9000 plus the HTTP status.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// SuccessResponse wraps a ledger result such as model.Totals or a page of outcomes.
func SuccessResponse(result any) Response {
	return Response{Success: true, Result: result, Errors: []APIError{}}
}

func ErrorResponse(code int, message string) Response {
	return Response{Errors: []APIError{{Code: code, Message: message}}}
}

// WriteJSON writes resp with the given status. Encoding failures happen after
// the header is out, so they are only logged.
func WriteJSON(w http.ResponseWriter, status int, resp any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("encoding stats response", "error", err)
	}
}
