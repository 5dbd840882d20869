// Package remotetest provides an in-memory groceryItems store served over
// HTTP, for tests of code that talks to the remote store.
package remotetest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"

	"grocerylist/domain/core/entities"

	"github.com/gorilla/mux"
)

// Server is a fake remote store
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	items    []entities.GroceryItem
	failures map[string]int
	calls    map[string]int
	total    atomic.Int64
}

// NewServer starts a fake store seeded with items
func NewServer(items ...entities.GroceryItem) *Server {
	s := &Server{
		items:    entities.CloneItems(items),
		failures: make(map[string]int),
		calls:    make(map[string]int),
	}
	if s.items == nil {
		s.items = []entities.GroceryItem{}
	}

	router := mux.NewRouter()
	router.HandleFunc("/groceryItems", s.list).Methods(http.MethodGet)
	router.HandleFunc("/groceryItems", s.create).Methods(http.MethodPost)
	router.HandleFunc("/groceryItems/{id}", s.update).Methods(http.MethodPatch)
	router.HandleFunc("/groceryItems/{id}", s.remove).Methods(http.MethodDelete)

	s.Server = httptest.NewServer(router)
	return s
}

// FailNext makes the next n requests with the given method answer status 500
func (s *Server) FailNext(method string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method] += n
}

// Items returns a copy of the stored collection
func (s *Server) Items() []entities.GroceryItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return entities.CloneItems(s.items)
}

// Calls returns how many requests used method
func (s *Server) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

// TotalCalls returns the number of requests served
func (s *Server) TotalCalls() int {
	return int(s.total.Load())
}

func (s *Server) begin(w http.ResponseWriter, r *http.Request) bool {
	s.total.Add(1)
	s.mu.Lock()
	s.calls[r.Method]++
	fail := s.failures[r.Method] > 0
	if fail {
		s.failures[r.Method]--
	}
	s.mu.Unlock()

	if fail {
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"status":  http.StatusInternalServerError,
			"message": "injected failure",
		})
		return false
	}
	return true
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	if !s.begin(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, s.Items())
}

func (s *Server) create(w http.ResponseWriter, r *http.Request) {
	if !s.begin(w, r) {
		return
	}

	var item entities.GroceryItem
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"status": 400, "message": err.Error()})
		return
	}

	s.mu.Lock()
	if _, exists := entities.FindItem(s.items, item.ID); exists {
		s.mu.Unlock()
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"status": 500, "message": "Insert failed, duplicate id"})
		return
	}
	s.items = append(s.items, item)
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, item)
}

func (s *Server) update(w http.ResponseWriter, r *http.Request) {
	if !s.begin(w, r) {
		return
	}

	var patch entities.ItemPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"status": 400, "message": err.Error()})
		return
	}

	id := mux.Vars(r)["id"]
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID.String() == id {
			s.items[i] = s.items[i].Apply(patch)
			writeJSON(w, http.StatusOK, s.items[i])
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]interface{}{})
}

func (s *Server) remove(w http.ResponseWriter, r *http.Request) {
	if !s.begin(w, r) {
		return
	}

	id := mux.Vars(r)["id"]
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID.String() == id {
			s.items = append(s.items[:i], s.items[i+1:]...)
			writeJSON(w, http.StatusOK, map[string]interface{}{})
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]interface{}{})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
