// Package responseformat writes HTTP responses as JSON or MessagePack.
package responseformat

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

const (
	ContentTypeJSON    = "application/json"
	ContentTypeMsgPack = "application/x-msgpack"
)

// Formatter handles encoding and writing responses in JSON or MessagePack format
type Formatter struct {
	cors bool
}

// NewFormatter creates a new response formatter. When cors is set every
// response allows any origin.
func NewFormatter(cors bool) *Formatter {
	return &Formatter{cors: cors}
}

// WantsMsgPack reports whether the request asked for MessagePack, either with
// format=msgpack or an Accept header naming the msgpack media type
func WantsMsgPack(req *http.Request) bool {
	if req.URL.Query().Get("format") == "msgpack" {
		return true
	}
	return strings.Contains(req.Header.Get("Accept"), ContentTypeMsgPack)
}

// WriteResponse writes data with the given status in the format the request asked for.
// JSON is the default format.
func (f *Formatter) WriteResponse(w http.ResponseWriter, req *http.Request, status int, data any) error {
	if f.cors {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	}

	if WantsMsgPack(req) {
		return f.writeMsgPack(w, status, data)
	}
	return f.writeJSON(w, status, data)
}

// WriteError writes an error body with the status, message, timestamp and optional details
func (f *Formatter) WriteError(w http.ResponseWriter, req *http.Request, status int, message string, err error) error {
	errorResponse := map[string]any{
		"error":     message,
		"status":    status,
		"timestamp": time.Now().Unix(),
	}
	if err != nil {
		errorResponse["details"] = err.Error()
	}
	return f.WriteResponse(w, req, status, errorResponse)
}

// WriteRawJSON writes pre-encoded JSON, converting it to MessagePack when requested
func (f *Formatter) WriteRawJSON(w http.ResponseWriter, req *http.Request, status int, jsonBytes []byte) error {
	if f.cors {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	}

	if WantsMsgPack(req) {
		// Need to decode JSON then encode as MessagePack
		var data any
		if err := json.Unmarshal(jsonBytes, &data); err != nil {
			return err
		}
		return f.writeMsgPack(w, status, data)
	}

	w.Header().Set("Content-Type", ContentTypeJSON)
	w.WriteHeader(status)
	_, err := w.Write(jsonBytes)
	return err
}

func (f *Formatter) writeJSON(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", ContentTypeJSON)
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

func (f *Formatter) writeMsgPack(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", ContentTypeMsgPack)
	w.WriteHeader(status)
	encoder := msgpack.NewEncoder(w)
	encoder.SetCustomStructTag("json") // Use json tags for MessagePack
	return encoder.Encode(data)
}
