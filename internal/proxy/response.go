package proxy

import (
	"encoding/json"
	"net/http"
)

// ErrorBody is the uniform error payload for every gateway-originated
// error response.
type ErrorBody struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorBody{StatusCode: status, Message: message})
}
