package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/John-Robertt/subtagger/internal/model"
)

const contentTypeJSON = "application/json; charset=utf-8"

func WriteText(w http.ResponseWriter, status int, body string) {
	writeBody(w, status, "text/plain; charset=utf-8", []byte(body))
}

// WriteError writes the ErrorResponse envelope. Errors are never cached.
func WriteError(w http.ResponseWriter, status int, e model.AppError) {
	w.Header().Set("Cache-Control", "no-store")
	WriteJSON(w, status, model.ErrorResponse{Error: e})
}

// WriteJSON encodes v followed by a newline. An unencodable v is a
// programming error and becomes a bare 500.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	writeBody(w, status, contentTypeJSON, append(b, '\n'))
}

func writeBody(w http.ResponseWriter, status int, contentType string, body []byte) {
	h := w.Header()
	h.Set("Content-Type", contentType)
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
