// Package livereload serves a site directory and pushes reloads to the
// browsers that have it open.
//
// HTML pages are served with a small client script injected before </body>.
// The script opens a websocket back to the server; Reload makes every
// connected page reload and Inject swaps stylesheets in place.
package livereload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	serrors "github.com/AndreyAkinshin/sitepipe/internal/errors"
	"github.com/AndreyAkinshin/sitepipe/internal/output"
)

// Reserved URL paths.
const (
	PathPrefix  = "/__sitepipe/"
	SocketPath  = PathPrefix + "livereload"
	ScriptPath  = PathPrefix + "livereload.js"
	MetricsPath = PathPrefix + "metrics"
)

const injectedCacheSize = 128

// Options configures a Server.
type Options struct {
	Root string // Directory to serve
	Host string
	Port int // 0 picks a free port
	CORS bool

	// Metrics, if set, is served at MetricsPath.
	Metrics http.Handler
	Out     *output.Writer
}

type cacheKey struct {
	path    string
	modTime time.Time
	size    int64
}

// Server is a static file server with live reload.
type Server struct {
	opts Options
	out  *output.Writer
	hub  *hub

	injected *lru.Cache[cacheKey, []byte]

	mu       sync.Mutex
	srv      *http.Server
	listener net.Listener
	serveErr chan error
}

// New creates a server for opts. It does not listen until Start.
func New(opts Options) (*Server, error) {
	if opts.Root == "" {
		return nil, errors.New("livereload: root directory is required")
	}
	cache, err := lru.New[cacheKey, []byte](injectedCacheSize)
	if err != nil {
		return nil, err
	}
	out := opts.Out
	if out == nil {
		out = output.Discard()
	}
	return &Server{opts: opts, out: out, hub: newHub(), injected: cache}, nil
}

// Handler returns the HTTP handler without starting a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(SocketPath, s.hub.serveWS)
	mux.HandleFunc(ScriptPath, serveScript)
	if s.opts.Metrics != nil {
		mux.Handle(MetricsPath, s.opts.Metrics)
	}
	mux.HandleFunc("/", s.serveFile)

	if !s.opts.CORS {
		return mux
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		mux.ServeHTTP(w, r)
	})
}

// Start begins listening. A port that cannot be bound is a server error.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return errors.New("livereload: server already started")
	}

	addr := net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return serrors.Server(addr, err)
	}

	s.listener = ln
	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.serveErr = make(chan error, 1)
	go func(srv *http.Server) {
		err := srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		s.serveErr <- err
	}(s.srv)

	s.out.Info("Serving %s at %s", s.opts.Root, s.urlLocked())
	return nil
}

// URL returns the base URL of a started server.
func (s *Server) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.urlLocked()
}

func (s *Server) urlLocked() string {
	if s.listener == nil {
		return ""
	}
	host := s.opts.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	_, port, _ := net.SplitHostPort(s.listener.Addr().String())
	return "http://" + net.JoinHostPort(host, port)
}

// Shutdown disconnects browsers and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv, serveErr := s.srv, s.serveErr
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	s.hub.closeAll()
	if err := srv.Shutdown(ctx); err != nil {
		return err
	}
	return <-serveErr
}

// Reload tells every connected page to reload. It returns the number of
// pages notified.
func (s *Server) Reload() int {
	n := s.hub.broadcast(Message{Type: "reload"})
	s.out.Debug("livereload: reload sent to %d client(s)", n)
	return n
}

// Inject swaps the given stylesheets, URL paths relative to the served root,
// in connected pages without a full reload.
func (s *Server) Inject(paths ...string) int {
	if len(paths) == 0 || s.Clients() == 0 {
		return 0
	}
	n := 0
	for _, p := range paths {
		n = s.hub.broadcast(Message{Type: "css", Path: "/" + strings.TrimPrefix(p, "/")})
	}
	s.out.Debug("livereload: %d stylesheet(s) injected into %d client(s)", len(paths), n)
	return n
}

// Clients returns the number of connected pages.
func (s *Server) Clients() int {
	return s.hub.count()
}

func (s *Server) serveFile(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, PathPrefix) {
		http.NotFound(w, r)
		return
	}

	fsys := http.Dir(s.opts.Root)
	name := path.Clean("/" + r.URL.Path)
	f, err := fsys.Open(name)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		http.NotFound(w, r)
		return
	}
	if info.IsDir() {
		f.Close()
		if !strings.HasSuffix(r.URL.Path, "/") {
			http.Redirect(w, r, r.URL.Path+"/", http.StatusMovedPermanently)
			return
		}
		name = path.Join(name, "index.html")
		if f, err = fsys.Open(name); err != nil {
			http.NotFound(w, r)
			return
		}
		if info, err = f.Stat(); err != nil {
			f.Close()
			http.NotFound(w, r)
			return
		}
	}
	defer f.Close()

	if !isHTML(name) {
		http.ServeContent(w, r, name, info.ModTime(), f)
		return
	}

	key := cacheKey{path: name, modTime: info.ModTime(), size: info.Size()}
	page, ok := s.injected.Get(key)
	if !ok {
		raw, err := io.ReadAll(f)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		page = InjectScript(raw)
		s.injected.Add(key, page)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Content-Length", strconv.Itoa(len(page)))
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(page)
}

func isHTML(name string) bool {
	ext := strings.ToLower(path.Ext(name))
	return ext == ".html" || ext == ".htm"
}

// scriptTag is inserted into served HTML pages.
var scriptTag = []byte(`<script src="` + ScriptPath + `"></script>`)

// InjectScript inserts the client script tag before the last </body>, or
// appends it when the page has none.
func InjectScript(page []byte) []byte {
	lower := strings.ToLower(string(page))
	i := strings.LastIndex(lower, "</body>")
	out := make([]byte, 0, len(page)+len(scriptTag))
	if i < 0 {
		out = append(out, page...)
		return append(out, scriptTag...)
	}
	out = append(out, page[:i]...)
	out = append(out, scriptTag...)
	return append(out, page[i:]...)
}

func serveScript(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	fmt.Fprint(w, clientScript)
}

// Stat reports whether the served root exists.
func (s *Server) Stat() error {
	info, err := os.Stat(s.opts.Root)
	if err != nil {
		return serrors.Filesystem(s.opts.Root, err)
	}
	if !info.IsDir() {
		return serrors.Filesystem(s.opts.Root, errors.New("not a directory"))
	}
	return nil
}
