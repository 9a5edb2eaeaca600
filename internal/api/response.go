package api

import (
	"encoding/json"
	"net/http"

	storyerrors "github.com/randalmurphal/storyforge/internal/errors"
)

// APIError is the standard error response format.
type APIError struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
	Fix   string `json:"fix,omitempty"`
}

// JSONResponse writes a successful JSON response.
func JSONResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

// JSONError writes a simple error response.
func JSONError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(APIError{Error: message})
}

// HandleError writes err with the HTTP status of its category. Errors that
// are not StoryErrors become 500s.
func HandleError(w http.ResponseWriter, err error) {
	if se := storyerrors.AsStoryError(err); se != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(se.HTTPStatus())
		_ = json.NewEncoder(w).Encode(APIError{
			Error: se.What,
			Code:  string(se.Code),
			Fix:   se.Fix,
		})
		return
	}
	JSONError(w, err.Error(), http.StatusInternalServerError)
}
