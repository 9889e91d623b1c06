package templates

import "net/http"

// SafeWriter writes HTML response headers exactly once, with the status
// chosen before the first write
type SafeWriter struct {
	http.ResponseWriter
	statusCode    int
	headerWritten bool
}

// NewSafeWriter wraps w for page rendering
func (t *Templates) NewSafeWriter(w http.ResponseWriter) *SafeWriter {
	return &SafeWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

// SetStatusCode sets the status used when headers are written implicitly
func (sw *SafeWriter) SetStatusCode(code int) {
	if !sw.headerWritten {
		sw.statusCode = code
	}
}

// WriteHeader writes headers on the first call and ignores later calls
func (sw *SafeWriter) WriteHeader(code int) {
	if sw.headerWritten {
		return
	}
	sw.headerWritten = true
	sw.statusCode = code
	sw.Header().Set("Content-Type", "text/html; charset=utf-8")
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *SafeWriter) Write(b []byte) (int, error) {
	if !sw.headerWritten {
		sw.WriteHeader(sw.statusCode)
	}
	return sw.ResponseWriter.Write(b)
}

// Written reports whether headers have been sent
func (sw *SafeWriter) Written() bool {
	return sw.headerWritten
}
