package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/StudioVBG/TALOK-sub014/pkg/logger"

	"github.com/google/uuid"
)

func NewRequestID() string { return "req_" + uuid.NewString() }

// RequestID returns the id assigned by the request-id middleware, or a fresh one.
func RequestID(r *http.Request) string {
	if r != nil {
		if id, ok := r.Context().Value(logger.RequestIDKey).(string); ok && id != "" {
			return id
		}
	}
	return NewRequestID()
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func ReadJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	resp := map[string]any{
		"request_id": RequestID(r),
		"error": map[string]any{
			"code": code, "message": message, "details": details,
		},
	}
	WriteJSON(w, status, resp)
}
