// Package gatewaytest runs an in-memory gateway over httptest for tests.
package gatewaytest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"

	"github.com/gorilla/mux"
)

// Push records one accepted or rejected POST
type Push struct {
	ModuleID string
	Data     string
}

// Server is a fake gateway storing documents per module id
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	docs      map[string]json.RawMessage
	pushes    []Push
	gets      map[string]int
	failSave  map[string]bool
	failAll   bool
	nonce     string
	lastNonce string
}

// New starts a fake gateway. When nonce is non-empty requests without a
// matching X-WP-Nonce header are rejected with 403.
func New(nonce string) *Server {
	s := &Server{
		docs:     make(map[string]json.RawMessage),
		gets:     make(map[string]int),
		failSave: make(map[string]bool),
		nonce:    nonce,
	}

	r := mux.NewRouter().UseEncodedPath()
	r.Use(s.checkNonce)
	r.HandleFunc("/", s.index).Methods(http.MethodGet)
	r.HandleFunc("/data/{id}", s.get).Methods(http.MethodGet)
	r.HandleFunc("/data/{id}", s.save).Methods(http.MethodPost)
	r.HandleFunc("/data", s.deleteAll).Methods(http.MethodDelete)

	s.Server = httptest.NewServer(r)
	return s
}

// BaseURL is the namespace root for gateway.Config
func (s *Server) BaseURL() string {
	return s.URL + "/"
}

func (s *Server) checkNonce(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.lastNonce = r.Header.Get("X-WP-Nonce")
		fail := s.failAll
		s.mu.Unlock()

		if s.nonce != "" && r.Header.Get("X-WP-Nonce") != s.nonce {
			http.Error(w, `{"code":"rest_cookie_invalid_nonce"}`, http.StatusForbidden)
			return
		}
		if fail {
			http.Error(w, `{"code":"unavailable"}`, http.StatusServiceUnavailable)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	io.WriteString(w, `{"namespace":"framework-modular/v1"}`)
}

func (s *Server) get(w http.ResponseWriter, r *http.Request) {
	id := moduleID(r)

	s.mu.Lock()
	s.gets[id]++
	doc, ok := s.docs[id]
	s.mu.Unlock()

	if !ok {
		http.Error(w, `{"code":"not_found"}`, http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(doc)
}

func (s *Server) save(w http.ResponseWriter, r *http.Request) {
	id := moduleID(r)

	var body struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pushes = append(s.pushes, Push{ModuleID: id, Data: string(body.Data)})
	if s.failSave[id] {
		http.Error(w, `{"code":"db_error"}`, http.StatusInternalServerError)
		return
	}
	s.docs[id] = body.Data
	w.Header().Set("Content-Type", "application/json")
	io.WriteString(w, `{"success":true}`)
}

// moduleID decodes the escaped {id} segment
func moduleID(r *http.Request) string {
	raw := mux.Vars(r)["id"]
	if id, err := url.PathUnescape(raw); err == nil {
		return id
	}
	return raw
}

func (s *Server) deleteAll(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	n := len(s.docs)
	s.docs = make(map[string]json.RawMessage)
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"deleted_records": n,
		"message":         "all data deleted",
	})
}

// Put seeds a server-side document
func (s *Server) Put(id, doc string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[id] = json.RawMessage(doc)
}

// Doc returns the stored document for id
func (s *Server) Doc(id string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	return string(doc), ok
}

// FailSaves makes POSTs for id answer 500 (the push is still recorded)
func (s *Server) FailSaves(id string, fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failSave[id] = fail
}

// FailAll makes every request answer 503
func (s *Server) FailAll(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAll = fail
}

// Pushes returns a copy of every POST received so far
func (s *Server) Pushes() []Push {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Push(nil), s.pushes...)
}

// PushesFor returns the POSTs received for id
func (s *Server) PushesFor(id string) []Push {
	var out []Push
	for _, p := range s.Pushes() {
		if p.ModuleID == id {
			out = append(out, p)
		}
	}
	return out
}

// Gets returns how many GETs were served for id
func (s *Server) Gets(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets[id]
}

// LastNonce returns the nonce header of the most recent request
func (s *Server) LastNonce() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastNonce
}
