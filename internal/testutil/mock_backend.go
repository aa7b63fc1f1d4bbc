// Package testutil provides testing utilities for pagewindow.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/pagewindow/internal/backend"
)

// CollectionPath is where MockBackend serves its collection.
const CollectionPath = "/v1/items"

// MockBackend is a paged backend on an httptest server.
type MockBackend struct {
	*backend.Server

	server *httptest.Server

	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
}

// NewMockBackend starts a mock backend that is closed when the test ends.
func NewMockBackend(t *testing.T, opts backend.Options) *MockBackend {
	t.Helper()

	mock := &MockBackend{
		Server:   backend.New(opts, zerolog.Nop()),
		handlers: make(map[string]http.HandlerFunc),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		switch {
		case exists:
			handler(w, r)
		case r.URL.Path == CollectionPath:
			mock.Server.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(mock.server.Close)

	return mock
}

// URL returns the mock server URL.
func (m *MockBackend) URL() string {
	return m.server.URL
}

// SetHandler overrides the handler for a specific path.
func (m *MockBackend) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}
