package testing

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
)

// MockPatchServer serves catalogs, fix archives and .pwr patches. Unknown
// paths answer 404, HEAD answers carry Content-Length without a body.
type MockPatchServer struct {
	*httptest.Server

	mu        sync.Mutex
	responses map[string]MockResponse
	requests  []MockRequest
}

// MockResponse holds response data for a path
type MockResponse struct {
	StatusCode int
	Body       []byte
	Headers    map[string]string
}

// MockRequest records a request made to the mock server
type MockRequest struct {
	Method string
	Path   string
}

// NewMockPatchServer creates a new mock patch server
func NewMockPatchServer(t *testing.T) *MockPatchServer {
	t.Helper()

	mock := &MockPatchServer{responses: make(map[string]MockResponse)}

	mock.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.requests = append(mock.requests, MockRequest{Method: r.Method, Path: r.URL.Path})
		response, ok := mock.responses[r.URL.Path]
		mock.mu.Unlock()

		if !ok {
			http.NotFound(w, r)
			return
		}

		for key, value := range response.Headers {
			w.Header().Set(key, value)
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(response.Body)))

		status := response.StatusCode
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)

		if r.Method != http.MethodHead {
			w.Write(response.Body)
		}
	}))

	t.Cleanup(func() {
		mock.Server.Close()
	})

	return mock
}

// SetJSON serves data encoded as JSON at path
func (m *MockPatchServer) SetJSON(path string, data interface{}) error {
	body, err := json.Marshal(data)
	if err != nil {
		return err
	}
	m.SetRaw(path, http.StatusOK, body, map[string]string{"Content-Type": "application/json"})
	return nil
}

// SetFile serves body as a binary download at path
func (m *MockPatchServer) SetFile(path string, body []byte) {
	m.SetRaw(path, http.StatusOK, body, map[string]string{"Content-Type": "application/octet-stream"})
}

// SetRaw sets a raw response
func (m *MockPatchServer) SetRaw(path string, statusCode int, body []byte, headers map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[path] = MockResponse{StatusCode: statusCode, Body: body, Headers: headers}
}

// Remove makes path answer 404 again
func (m *MockPatchServer) Remove(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.responses, path)
}

// RequestCount returns how many requests with method hit path; an empty
// method counts every method
func (m *MockPatchServer) RequestCount(method, path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, req := range m.requests {
		if req.Path == path && (method == "" || req.Method == method) {
			count++
		}
	}
	return count
}

// TotalRequests returns how many requests the server has seen
func (m *MockPatchServer) TotalRequests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// ClearRequests clears the recorded requests
func (m *MockPatchServer) ClearRequests() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
}
