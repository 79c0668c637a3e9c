// Package backendtest provides an upstream service for tests, that
// records the requests it receives, and echoes their body.
package backendtest

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"

	log "github.com/sirupsen/logrus"
)

type RecordedRequest struct {
	Method string
	URL    string
	Host   string
	Header http.Header
	Body   string
}

type BackendRecorder struct {
	server   *httptest.Server
	requests []RecordedRequest
	mutex    sync.RWMutex

	// Handler, when set, responds instead of echoing the body.
	Handler http.HandlerFunc
}

func (rec *BackendRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Error("backendrecorder: error while reading request body")
	}

	rec.mutex.Lock()
	rec.requests = append(rec.requests, RecordedRequest{
		Method: r.Method,
		URL:    r.URL.String(),
		Host:   r.Host,
		Header: r.Header.Clone(),
		Body:   string(body),
	})
	handler := rec.Handler
	rec.mutex.Unlock()

	if handler != nil {
		handler(w, r)
		return
	}

	// return request body in the response
	if _, err := w.Write(body); err != nil {
		log.Error("backendrecorder: error while writing the response body")
	}
}

// GetRequests returns the recorded requests.
func (rec *BackendRecorder) GetRequests() []RecordedRequest {
	rec.mutex.RLock()
	defer rec.mutex.RUnlock()
	return append([]RecordedRequest(nil), rec.requests...)
}

// GetServedRequests returns the number of the recorded requests.
func (rec *BackendRecorder) GetServedRequests() int {
	rec.mutex.RLock()
	defer rec.mutex.RUnlock()
	return len(rec.requests)
}

// SetHandler replaces the response handler.
func (rec *BackendRecorder) SetHandler(h http.HandlerFunc) {
	rec.mutex.Lock()
	defer rec.mutex.Unlock()
	rec.Handler = h
}

func (rec *BackendRecorder) GetURL() string {
	return rec.server.URL
}

func (rec *BackendRecorder) Close() {
	rec.server.Close()
}

func NewBackendRecorder() *BackendRecorder {
	rec := &BackendRecorder{}
	rec.server = httptest.NewServer(rec)
	return rec
}
