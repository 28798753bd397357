package livereload

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	serrors "github.com/AndreyAkinshin/sitepipe/internal/errors"
)

func newTestServer(t *testing.T, cors bool) (*Server, string) {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"index.html":       "<html><body><h1>Home</h1></body></html>",
		"about/index.html": "<html><BODY>About</BODY></html>",
		"css/style.css":    "body{color:red}",
		"fragment.html":    "<p>no body</p>",
	}
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	srv, err := New(Options{Root: root, CORS: cors})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return srv, root
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestNew_RequiresRoot(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Error("New() without root should fail")
	}
}

func TestInjectScript(t *testing.T) {
	tests := []struct {
		name string
		page string
		want string
	}{
		{"before body", "<body>x</body>", "<body>x" + string(scriptTag) + "</body>"},
		{"upper case", "<BODY>x</BODY>", "<BODY>x" + string(scriptTag) + "</BODY>"},
		{"last body", "<body></body><!-- </body> -->", "<body></body><!-- " + string(scriptTag) + "</body> -->"},
		{"no body", "<p>x</p>", "<p>x</p>" + string(scriptTag)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := string(InjectScript([]byte(tt.page))); got != tt.want {
				t.Errorf("InjectScript() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestServeFile(t *testing.T) {
	srv, _ := newTestServer(t, false)
	h := srv.Handler()

	tests := []struct {
		path       string
		wantStatus int
		wantScript bool
		wantBody   string
	}{
		{"/", http.StatusOK, true, "<h1>Home</h1>"},
		{"/index.html", http.StatusOK, true, "<h1>Home</h1>"},
		{"/about/", http.StatusOK, true, "About"},
		{"/about", http.StatusMovedPermanently, false, ""},
		{"/css/style.css", http.StatusOK, false, "body{color:red}"},
		{"/fragment.html", http.StatusOK, true, "<p>no body</p>"},
		{"/missing.html", http.StatusNotFound, false, ""},
		{"/__sitepipe/unknown", http.StatusNotFound, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := get(t, h, tt.path)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			body := rec.Body.String()
			if got := strings.Contains(body, ScriptPath); got != tt.wantScript {
				t.Errorf("script injected = %v, want %v (body %q)", got, tt.wantScript, body)
			}
			if tt.wantBody != "" && !strings.Contains(body, tt.wantBody) {
				t.Errorf("body = %q, want it to contain %q", body, tt.wantBody)
			}
		})
	}
}

func TestServeFile_CacheFollowsModTime(t *testing.T) {
	srv, root := newTestServer(t, false)
	h := srv.Handler()

	if body := get(t, h, "/index.html").Body.String(); !strings.Contains(body, "Home") {
		t.Fatalf("first body = %q", body)
	}

	path := filepath.Join(root, "index.html")
	if err := os.WriteFile(path, []byte("<body>Changed</body>"), 0644); err != nil {
		t.Fatal(err)
	}
	later := time.Now().Add(time.Minute)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatal(err)
	}

	if body := get(t, h, "/index.html").Body.String(); !strings.Contains(body, "Changed") {
		t.Errorf("body after change = %q, want the new content", body)
	}
}

func TestServeScript(t *testing.T) {
	srv, _ := newTestServer(t, false)
	rec := get(t, srv.Handler(), ScriptPath)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/javascript") {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), SocketPath) {
		t.Error("client script should connect to the socket path")
	}
}

func TestCORS(t *testing.T) {
	tests := []struct {
		cors bool
		want string
	}{
		{true, "*"},
		{false, ""},
	}
	for _, tt := range tests {
		t.Run(strconv.FormatBool(tt.cors), func(t *testing.T) {
			srv, _ := newTestServer(t, tt.cors)
			rec := get(t, srv.Handler(), "/css/style.css")
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.want {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMetricsRoute(t *testing.T) {
	root := t.TempDir()
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, "sitepipe_runs_total 1\n")
	})
	srv, err := New(Options{Root: root, Metrics: metrics})
	if err != nil {
		t.Fatal(err)
	}
	rec := get(t, srv.Handler(), MetricsPath)
	if !strings.Contains(rec.Body.String(), "sitepipe_runs_total") {
		t.Errorf("metrics body = %q", rec.Body.String())
	}
}

func dial(t *testing.T, base string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(base, "http") + SocketPath
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	var hello Message
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&hello); err != nil {
		t.Fatalf("reading hello: %v", err)
	}
	if hello.Type != "hello" {
		t.Fatalf("first message = %+v, want hello", hello)
	}
	return conn
}

func waitClients(t *testing.T, srv *Server, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for srv.Clients() != n {
		if time.Now().After(deadline) {
			t.Fatalf("Clients() = %d, want %d", srv.Clients(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestReloadAndInject(t *testing.T) {
	srv, _ := newTestServer(t, false)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	defer srv.hub.closeAll()

	a := dial(t, ts.URL)
	b := dial(t, ts.URL)
	waitClients(t, srv, 2)

	if n := srv.Reload(); n != 2 {
		t.Errorf("Reload() notified %d clients, want 2", n)
	}
	if n := srv.Inject("css/style.css"); n != 2 {
		t.Errorf("Inject() notified %d clients, want 2", n)
	}

	for _, conn := range []*websocket.Conn{a, b} {
		var msg Message
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatal(err)
		}
		if msg.Type != "reload" {
			t.Errorf("message = %+v, want reload", msg)
		}
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatal(err)
		}
		if msg.Type != "css" || msg.Path != "/css/style.css" {
			t.Errorf("message = %+v, want css /css/style.css", msg)
		}
	}

	a.Close()
	waitClients(t, srv, 1)
}

func TestStartShutdown(t *testing.T) {
	srv, _ := newTestServer(t, false)
	srv.opts.Host = "127.0.0.1"
	ctx := context.Background()

	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := srv.Start(ctx); err == nil {
		t.Error("second Start() should fail")
	}

	url := srv.URL()
	if !strings.HasPrefix(url, "http://127.0.0.1:") {
		t.Errorf("URL() = %q", url)
	}
	resp, err := http.Get(url + "/")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET / status = %d", resp.StatusCode)
	}

	dial(t, url)
	waitClients(t, srv, 1)

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if srv.Clients() != 0 {
		t.Errorf("Clients() after Shutdown = %d", srv.Clients())
	}
}

func TestStart_PortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	srv, err := New(Options{Root: t.TempDir(), Host: "127.0.0.1", Port: port})
	if err != nil {
		t.Fatal(err)
	}
	err = srv.Start(context.Background())
	if err == nil {
		srv.Shutdown(context.Background())
		t.Fatal("Start() on a busy port should fail")
	}
	if serrors.KindOf(err) != serrors.KindServer {
		t.Errorf("error kind = %v, want server", serrors.KindOf(err))
	}
	if serrors.GetExitCode(err) != serrors.ExitEnvironmentError {
		t.Errorf("exit code = %d, want %d", serrors.GetExitCode(err), serrors.ExitEnvironmentError)
	}
}

func TestStat(t *testing.T) {
	srv, root := newTestServer(t, false)
	if err := srv.Stat(); err != nil {
		t.Errorf("Stat() error = %v", err)
	}
	missing, _ := New(Options{Root: filepath.Join(root, "nope")})
	if err := missing.Stat(); err == nil {
		t.Error("Stat() on a missing root should fail")
	}
}
