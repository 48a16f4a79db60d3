// Package server exposes the tracker over a small REST-like HTTP surface
// and serves the static front-end. All mutation routes are thin wrappers
// over the lexicon; the routing layer holds no state of its own.
package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/japaniel/kotoba/pkg/article"
	"github.com/japaniel/kotoba/pkg/lexicon"
	"github.com/japaniel/kotoba/pkg/sync"
)

// Config holds the optional collaborators of a Server.
type Config struct {
	// Syncer backs GET /updateLastVisited; nil disables the route.
	Syncer *sync.Syncer
	// Articles backs POST /importArticle; nil disables the route.
	Articles *article.Importer
	// StaticDir is served at /; empty disables static serving.
	StaticDir string
	Logger    *log.Logger
}

// Server is the HTTP front of the tracker.
type Server struct {
	lx  *lexicon.Lexicon
	cfg Config

	srv *http.Server
	ln  net.Listener
}

// New builds a Server around the lexicon.
func New(lx *lexicon.Lexicon, cfg Config) *Server {
	return &Server{lx: lx, cfg: cfg}
}

// Handler returns the route table, usable directly in tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/word/", s.handleWord)
	mux.HandleFunc("/allWords", s.handleAllWords)
	mux.HandleFunc("/randomWord", s.handleRandomWord)
	mux.HandleFunc("/addWord", s.handleAddWord)
	mux.HandleFunc("/modifyWord", s.handleModifyWord)
	mux.HandleFunc("/removeWord", s.handleRemoveWord)
	if s.cfg.Syncer != nil {
		mux.HandleFunc("/updateLastVisited", s.handleSync)
	}
	if s.cfg.Articles != nil {
		mux.HandleFunc("/importArticle", s.handleImportArticle)
	}
	if s.cfg.StaticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(s.cfg.StaticDir)))
	}
	return mux
}

// Start begins serving on the given port. It blocks only until the
// listener is ready; use port 0 with Addr for tests.
func (s *Server) Start(port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", port, err)
	}
	s.ln = ln
	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logf("serve error: %v", err)
		}
	}()
	return nil
}

// Addr returns the listener address.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) logf(format string, args ...interface{}) {
	if s.cfg.Logger != nil {
		s.cfg.Logger.Printf(format, args...)
	}
}

// wordParam extracts the path segment after /word/.
func wordParam(r *http.Request) string {
	return strings.TrimPrefix(r.URL.Path, "/word/")
}
