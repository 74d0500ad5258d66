package alist

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/alist-sync/internal/transport"
)

// fakeServer is a minimal in-memory Alist API.
type fakeServer struct {
	t      *testing.T
	mu     sync.Mutex
	files  map[string][]byte
	dirs   map[string]bool
	token  string
	logins int
	calls  []string
	putHdr http.Header
	putCL  int64
	done   []transport.Task
	undone []transport.Task
	paged  bool
	clears int
	copies []map[string]any
}

func newFakeServer(t *testing.T) (*fakeServer, *httptest.Server) {
	t.Helper()
	fs := &fakeServer{
		t:     t,
		files: map[string][]byte{},
		dirs:  map[string]bool{"/": true},
		token: "tok-1",
	}
	srv := httptest.NewServer(fs)
	t.Cleanup(srv.Close)
	return fs, srv
}

func (f *fakeServer) reply(w http.ResponseWriter, code int, msg string, data any) {
	w.Header().Set("Content-Type", "application/json")
	b, err := json.Marshal(map[string]any{"code": code, "message": msg, "data": data})
	require.NoError(f.t, err)
	_, _ = w.Write(b)
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, r.URL.Path)

	if strings.HasPrefix(r.URL.Path, "/d/") {
		data, ok := f.files[strings.TrimPrefix(r.URL.Path, "/d")]
		if !ok || r.URL.Query().Get("sign") != "s1" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(data)
		return
	}
	if r.URL.Path == "/api/auth/login" {
		f.logins++
		f.reply(w, 200, "success", map[string]string{"token": f.token})
		return
	}
	if r.Header.Get("Authorization") != f.token {
		f.reply(w, 401, "token is expired", nil)
		return
	}

	var body map[string]any
	if r.Method == http.MethodPost && r.URL.Path != "/api/fs/put" {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	str := func(k string) string { s, _ := body[k].(string); return s }
	names := func() []string {
		var out []string
		raw, _ := body["names"].([]any)
		for _, n := range raw {
			out = append(out, n.(string))
		}
		return out
	}

	switch r.URL.Path {
	case "/api/fs/get":
		p := str("path")
		if data, ok := f.files[p]; ok {
			f.reply(w, 200, "success", map[string]any{
				"name": path.Base(p), "size": len(data), "is_dir": false,
				"modified": "2024-03-01T12:00:00Z", "sign": "s1", "raw_url": "",
			})
			return
		}
		if f.dirs[p] {
			f.reply(w, 200, "success", map[string]any{"name": path.Base(p), "is_dir": true, "size": 0})
			return
		}
		f.reply(w, 500, "failed get obj: object not found", nil)
	case "/api/fs/list":
		dir := str("path")
		var content []map[string]any
		for p, data := range f.files {
			if path.Dir(p) == dir {
				content = append(content, map[string]any{"name": path.Base(p), "size": len(data), "is_dir": false})
			}
		}
		f.reply(w, 200, "success", map[string]any{"content": content, "total": len(content)})
	case "/api/fs/put":
		p, err := url.PathUnescape(r.Header.Get("File-Path"))
		require.NoError(f.t, err)
		data, err := io.ReadAll(r.Body)
		require.NoError(f.t, err)
		f.files[p] = data
		f.putHdr = r.Header.Clone()
		f.putCL = r.ContentLength
		f.reply(w, 200, "success", nil)
	case "/api/fs/mkdir":
		f.dirs[str("path")] = true
		f.reply(w, 200, "success", nil)
	case "/api/fs/remove":
		for _, n := range names() {
			delete(f.files, path.Join(str("dir"), n))
		}
		f.reply(w, 200, "success", nil)
	case "/api/fs/rename":
		p := str("path")
		f.files[path.Join(path.Dir(p), str("name"))] = f.files[p]
		delete(f.files, p)
		f.reply(w, 200, "success", nil)
	case "/api/fs/move":
		for _, n := range names() {
			f.files[path.Join(str("dst_dir"), n)] = f.files[path.Join(str("src_dir"), n)]
			delete(f.files, path.Join(str("src_dir"), n))
		}
		f.reply(w, 200, "success", nil)
	case "/api/fs/copy":
		f.copies = append(f.copies, body)
		f.reply(w, 200, "success", nil)
	case "/api/task/copy/done", "/api/task/copy/undone":
		list := f.undone
		if strings.HasSuffix(r.URL.Path, "/done") {
			list = f.done
		}
		if f.paged {
			f.reply(w, 200, "success", map[string]any{"content": list, "total": len(list)})
		} else {
			f.reply(w, 200, "success", list)
		}
	case "/api/task/copy/clear_done":
		f.clears++
		f.done = nil
		f.reply(w, 200, "success", nil)
	default:
		http.NotFound(w, r)
	}
}

func newTestClient(srv *httptest.Server) *Client {
	return New(Options{
		BaseURL:  srv.URL,
		Username: "admin",
		Password: "secret",
		TaskPoll: 10 * time.Millisecond,
	})
}

func TestClient_LoginAndStat(t *testing.T) {
	t.Parallel()
	fake, srv := newFakeServer(t)
	fake.files["/local/a.txt"] = []byte("hello")
	c := newTestClient(srv)
	defer c.Close()

	e, err := c.Stat(context.Background(), "local/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "/local/a.txt", e.Path)
	assert.Equal(t, int64(5), e.Size)
	assert.Equal(t, 2024, e.Modified.Year())
	assert.Equal(t, 1, fake.logins)

	_, err = c.Stat(context.Background(), "/local/missing.txt")
	require.ErrorIs(t, err, transport.ErrNotFound)
	assert.Equal(t, 1, fake.logins, "token is reused")
}

func TestClient_ReloginOnExpiredToken(t *testing.T) {
	t.Parallel()
	fake, srv := newFakeServer(t)
	fake.files["/a.txt"] = []byte("x")
	c := newTestClient(srv)
	defer c.Close()

	_, err := c.Stat(context.Background(), "/a.txt")
	require.NoError(t, err)

	fake.mu.Lock()
	fake.token = "tok-2"
	fake.mu.Unlock()

	_, err = c.Stat(context.Background(), "/a.txt")
	require.NoError(t, err)
	assert.Equal(t, 2, fake.logins)
}

func TestClient_PutSendsStreamHeaders(t *testing.T) {
	t.Parallel()
	fake, srv := newFakeServer(t)
	c := newTestClient(srv)
	defer c.Close()

	mtime := time.UnixMilli(1709294400000)
	body := strings.Repeat("z", 1000)
	// io.MultiReader hides the length from net/http.
	r := io.MultiReader(strings.NewReader(body))
	require.NoError(t, c.Put(context.Background(), "/dst/中文 b.txt", r, 1000, mtime))

	assert.Equal(t, body, string(fake.files["/dst/中文 b.txt"]))
	assert.Equal(t, "false", fake.putHdr.Get("As-Task"))
	assert.Equal(t, "1709294400000", fake.putHdr.Get("Last-Modified"))
	assert.Equal(t, int64(1000), fake.putCL)
	assert.NotContains(t, fake.putHdr.Get("File-Path"), " ")
}

func TestClient_OpenFallsBackToSignedProxy(t *testing.T) {
	t.Parallel()
	fake, srv := newFakeServer(t)
	fake.files["/src/f.bin"] = []byte("payload")
	c := newTestClient(srv)
	defer c.Close()

	rc, err := c.Open(context.Background(), "/src/f.bin")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "payload", string(data))
}

func TestClient_RenameAcrossDirectories(t *testing.T) {
	t.Parallel()
	fake, srv := newFakeServer(t)
	fake.files["/data/x.txt"] = []byte("old")
	c := newTestClient(srv)
	defer c.Close()

	require.NoError(t, c.Rename(context.Background(), "/data/x.txt", "/bak/abc_1.history"))
	assert.Equal(t, "old", string(fake.files["/bak/abc_1.history"]))
	assert.NotContains(t, fake.files, "/data/x.txt")
	assert.True(t, fake.dirs["/bak"])
	assert.Contains(t, fake.calls, "/api/fs/rename")
	assert.Contains(t, fake.calls, "/api/fs/move")
}

func TestClient_RemoveMissingIsNotFound(t *testing.T) {
	t.Parallel()
	fake, srv := newFakeServer(t)
	fake.files["/d/a.txt"] = []byte("1")
	c := newTestClient(srv)
	defer c.Close()

	require.NoError(t, c.Remove(context.Background(), "/d/a.txt"))
	assert.Empty(t, fake.files)
	require.ErrorIs(t, c.Remove(context.Background(), "/d/a.txt"), transport.ErrNotFound)
}

func TestClient_SubmitCopy(t *testing.T) {
	t.Parallel()
	fake, srv := newFakeServer(t)
	c := newTestClient(srv)
	defer c.Close()

	require.NoError(t, c.SubmitCopy(context.Background(), "/src/dir", "/dst/dir", []string{"a.txt"}))
	require.Len(t, fake.copies, 1)
	assert.Equal(t, "/src/dir", fake.copies[0]["src_dir"])
	assert.Equal(t, "/dst/dir", fake.copies[0]["dst_dir"])
}

func TestClient_TaskSnapshotStaleUntilFirstRefresh(t *testing.T) {
	t.Parallel()
	for _, paged := range []bool{false, true} {
		fake, srv := newFakeServer(t)
		fake.paged = paged
		fake.undone = []transport.Task{{ID: "t1", Name: "copy [/local](/src/a.txt) to [/bak](/dst)"}}
		c := newTestClient(srv)

		snap, err := c.TaskSnapshot(context.Background(), transport.TaskCopy)
		require.NoError(t, err)
		if snap.Stale() {
			require.Eventually(t, func() bool {
				snap, _ = c.TaskSnapshot(context.Background(), transport.TaskCopy)
				return !snap.Stale()
			}, 2*time.Second, 5*time.Millisecond)
		}
		require.Len(t, snap.Undone, 1)
		assert.Equal(t, "/local/src/a.txt", snap.Undone[0].SrcPath)
		assert.Equal(t, "/bak/dst", snap.Undone[0].DstDir)
		assert.Empty(t, snap.Done)

		require.NoError(t, c.ClearDone(context.Background(), transport.TaskCopy))
		fake.mu.Lock()
		assert.Equal(t, 1, fake.clears)
		fake.mu.Unlock()
		require.NoError(t, c.Close())

		_, err = c.TaskSnapshot(context.Background(), transport.TaskCopy)
		require.Error(t, err)
	}
}

func TestParseCopyTaskName(t *testing.T) {
	t.Parallel()

	src, dst, ok := ParseCopyTaskName("copy [/](/movies/a b.mkv) to [/backup](/movies)")
	require.True(t, ok)
	assert.Equal(t, "/movies/a b.mkv", src)
	assert.Equal(t, "/backup/movies", dst)

	_, _, ok = ParseCopyTaskName("upload a.txt to [/x](/)")
	assert.False(t, ok)
}

func TestAPIError_NotFoundMapping(t *testing.T) {
	t.Parallel()

	assert.ErrorIs(t, &APIError{Code: 500, Message: "storage not found; please add a storage first"}, transport.ErrNotFound)
	assert.NotErrorIs(t, &APIError{Code: 403, Message: "permission denied"}, transport.ErrNotFound)
}

// slowReader yields one byte per read, pausing before each.
type slowReader struct {
	n     int
	pause time.Duration
}

func (s *slowReader) Read(p []byte) (int, error) {
	if s.n == 0 {
		return 0, io.EOF
	}
	time.Sleep(s.pause)
	s.n--
	p[0] = 'x'
	return 1, nil
}

func newSlowServer(t *testing.T) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reply := func(data any) {
			b, err := json.Marshal(map[string]any{"code": 200, "message": "success", "data": data})
			require.NoError(t, err)
			_, _ = w.Write(b)
		}
		switch r.URL.Path {
		case "/api/fs/get":
			reply(map[string]any{"name": "big.bin", "size": 10, "raw_url": srv.URL + "/raw/big.bin"})
		case "/raw/big.bin":
			flusher := w.(http.Flusher)
			for range 10 {
				_, _ = w.Write([]byte("x"))
				flusher.Flush()
				time.Sleep(50 * time.Millisecond)
			}
		case "/api/fs/put":
			data, _ := io.ReadAll(r.Body)
			reply(map[string]int{"received": len(data)})
		case "/api/fs/mkdir":
			time.Sleep(300 * time.Millisecond)
			reply(nil)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_TransfersOutlastTimeout(t *testing.T) {
	t.Parallel()
	srv := newSlowServer(t)
	c := New(Options{BaseURL: srv.URL, Token: "tok", Timeout: 200 * time.Millisecond})
	defer c.Close()

	rc, err := c.Open(context.Background(), "/big.bin")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, strings.Repeat("x", 10), string(data))

	err = c.Put(context.Background(), "/up.bin", &slowReader{n: 10, pause: 50 * time.Millisecond}, 10, time.Time{})
	require.NoError(t, err)
}

func TestClient_APICallTimesOut(t *testing.T) {
	t.Parallel()
	srv := newSlowServer(t)
	c := New(Options{BaseURL: srv.URL, Token: "tok", Timeout: 100 * time.Millisecond})
	defer c.Close()

	err := c.Mkdir(context.Background(), "/slow")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
