package metrics

import (
	"net/http"
	"regexp"
	"time"
)

// numericSegment matches numeric path segments for label normalization.
var numericSegment = regexp.MustCompile(`/(\d+)`)

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.written {
		r.statusCode = code
		r.written = true
		r.ResponseWriter.WriteHeader(code)
	}
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if !r.written {
		r.statusCode = http.StatusOK
		r.written = true
	}
	return r.ResponseWriter.Write(b)
}

// Middleware records request count and latency for every handled request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		start := time.Now()

		defer func() {
			duration := time.Since(start).Seconds()
			path := normalizePath(r.URL.Path)
			status := http.StatusText(recorder.statusCode)
			if status == "" {
				status = "UNKNOWN"
			}
			RecordRequest(r.Method, path, status)
			RecordRequestDuration(r.Method, path, status, duration)

			if err := recover(); err != nil {
				if !recorder.written {
					recorder.WriteHeader(http.StatusInternalServerError)
				}
			}
		}()

		next.ServeHTTP(recorder, r)
	})
}

// normalizePath collapses numeric path segments so deal IDs do not explode
// metric cardinality: /deals/123 becomes /deals/:id.
func normalizePath(path string) string {
	return numericSegment.ReplaceAllString(path, "/:id")
}
