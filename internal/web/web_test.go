package web

import (
	"bytes"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/local/pdfmerger/internal/blob"
	"github.com/local/pdfmerger/internal/export"
	"github.com/local/pdfmerger/internal/pdftest"
	"github.com/local/pdfmerger/internal/service"
	"github.com/local/pdfmerger/internal/session"
)

func newDashboard(t *testing.T, opts Options) (*httptest.Server, *http.Client) {
	t.Helper()
	_, srv, c := newDashboardWeb(t, opts, nil)
	return srv, c
}

func newDashboardWeb(t *testing.T, opts Options, now func() time.Time) (*Web, *httptest.Server, *http.Client) {
	t.Helper()
	opts.Service = service.New(service.Dependencies{
		Sessions: session.NewRegistry("merged.pdf"),
		Sink:     export.NewSink(blob.NewMemoryStore()),
	})
	w, err := New(opts)
	require.NoError(t, err)
	if now != nil {
		w.now = now
	}
	mux := http.NewServeMux()
	w.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return w, srv, &http.Client{Jar: jar}
}

func login(t *testing.T, srv *httptest.Server, c *http.Client, user, pass string) *http.Response {
	t.Helper()
	resp, err := c.PostForm(srv.URL+"/web/login", url.Values{"username": {user}, "password": {pass}})
	require.NoError(t, err)
	return resp
}

func body(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func postFiles(t *testing.T, srv *httptest.Server, c *http.Client, files map[string][]byte, order ...string) string {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, name := range order {
		fw, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = fw.Write(files[name])
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	resp, err := c.Post(srv.URL+"/web/files", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return body(t, resp)
}

func TestDashboardDisabledWithoutCredentials(t *testing.T) {
	srv, c := newDashboard(t, Options{})

	resp, err := c.Get(srv.URL + "/web/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = login(t, srv, c, "", "")
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestUnauthenticatedRedirectsToLogin(t *testing.T) {
	srv, c := newDashboard(t, Options{Username: "admin", Password: "secret"})

	resp, err := c.Get(srv.URL + "/web/")
	require.NoError(t, err)
	page := body(t, resp)
	assert.Equal(t, "/web/login", resp.Request.URL.Path)
	assert.Contains(t, page, `action="/web/login"`)
}

func TestLoginRejectsBadPassword(t *testing.T) {
	srv, c := newDashboard(t, Options{Username: "admin", Password: "secret"})

	resp := login(t, srv, c, "admin", "wrong")
	page := body(t, resp)
	assert.Equal(t, "/web/login", resp.Request.URL.Path)
	assert.Contains(t, page, "invalid credentials")
}

func TestLoginWithBcryptHash(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	require.NoError(t, err)
	srv, c := newDashboard(t, Options{Username: "admin", PasswordBcrypt: string(hash)})

	resp := login(t, srv, c, "admin", "secret")
	page := body(t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, page, "No files selected.")
	assert.Contains(t, page, `accept="application/pdf" multiple`)
}

func TestMergeFromDashboard(t *testing.T) {
	srv, c := newDashboard(t, Options{Username: "admin", Password: "secret"})
	login(t, srv, c, "admin", "secret").Body.Close()

	page := postFiles(t, srv, c, map[string][]byte{
		"a.pdf": pdftest.Build(210),
		"b.pdf": pdftest.Build(220, 221),
	}, "a.pdf", "b.pdf")
	assert.Contains(t, page, "Added 2 file(s).")
	assert.Contains(t, page, "a.pdf")
	assert.Contains(t, page, "b.pdf")

	resp, err := c.PostForm(srv.URL+"/web/merge", url.Values{"file_name": {"report.pdf"}})
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "report.pdf")

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	widths, err := pdftest.PageWidths(data)
	require.NoError(t, err)
	assert.Equal(t, []int{210, 220, 221}, widths)
}

func TestMergeWithOneFileShowsAlert(t *testing.T) {
	srv, c := newDashboard(t, Options{Username: "admin", Password: "secret"})
	login(t, srv, c, "admin", "secret").Body.Close()
	postFiles(t, srv, c, map[string][]byte{"a.pdf": pdftest.Build(210)}, "a.pdf")

	resp, err := c.PostForm(srv.URL+"/web/merge", nil)
	require.NoError(t, err)
	page := body(t, resp)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, page, "Please select at least two PDFs.")
	assert.Contains(t, page, "a.pdf")
}

func TestRemoveAndClear(t *testing.T) {
	srv, c := newDashboard(t, Options{Username: "admin", Password: "secret"})
	login(t, srv, c, "admin", "secret").Body.Close()

	page := postFiles(t, srv, c, map[string][]byte{
		"a.pdf": pdftest.Build(210),
		"b.pdf": pdftest.Build(220),
		"c.txt": []byte("text"),
	}, "a.pdf", "b.pdf", "c.txt")
	assert.Contains(t, page, "Skipped: c.txt")

	m := regexp.MustCompile(`action="/web/files/([^/]+)/remove"`).FindStringSubmatch(page)
	require.Len(t, m, 2)

	resp, err := c.PostForm(srv.URL+"/web/files/"+m[1]+"/remove", nil)
	require.NoError(t, err)
	page = body(t, resp)
	assert.NotContains(t, page, "a.pdf")
	assert.Contains(t, page, "b.pdf")

	resp, err = c.PostForm(srv.URL+"/web/clear", nil)
	require.NoError(t, err)
	page = body(t, resp)
	assert.Contains(t, page, "No files selected.")
}

func TestLogoutDropsAuth(t *testing.T) {
	srv, c := newDashboard(t, Options{Username: "admin", Password: "secret"})
	login(t, srv, c, "admin", "secret").Body.Close()

	resp, err := c.Get(srv.URL + "/web/logout")
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = c.Get(srv.URL + "/web/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "/web/login", resp.Request.URL.Path)
}

// testClock is shared with server goroutines. It starts at the real time so the
// jar keeps the auth cookie.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *testClock { return &testClock{t: time.Now()} }

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestLoginTokensExpire(t *testing.T) {
	clock := newClock()
	w, srv, c := newDashboardWeb(t, Options{Username: "admin", Password: "secret", LoginTTL: time.Hour}, clock.now)

	resp := login(t, srv, c, "admin", "secret")
	resp.Body.Close()
	assert.Equal(t, "/web/", resp.Request.URL.Path)

	clock.advance(2 * time.Hour)
	resp, err := c.Get(srv.URL + "/web/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "/web/login", resp.Request.URL.Path)

	w.mu.Lock()
	assert.Empty(t, w.tokens)
	w.mu.Unlock()
}

func TestLoginPrunesExpiredTokens(t *testing.T) {
	clock := newClock()
	w, srv, _ := newDashboardWeb(t, Options{Username: "admin", Password: "secret", LoginTTL: time.Hour}, clock.now)

	for i := 0; i < 3; i++ {
		jar, err := cookiejar.New(nil)
		require.NoError(t, err)
		login(t, srv, &http.Client{Jar: jar}, "admin", "secret").Body.Close()
	}
	clock.advance(90 * time.Minute)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	login(t, srv, &http.Client{Jar: jar}, "admin", "secret").Body.Close()

	w.mu.Lock()
	assert.Len(t, w.tokens, 1)
	w.mu.Unlock()
}

type hungUpWriter struct {
	header http.Header
	codes  []int
}

func (h *hungUpWriter) Header() http.Header {
	if h.header == nil {
		h.header = http.Header{}
	}
	return h.header
}
func (h *hungUpWriter) WriteHeader(code int) { h.codes = append(h.codes, code) }
func (h *hungUpWriter) Write([]byte) (int, error) {
	return 0, errors.New("broken pipe")
}

func TestMergeInterruptedDownloadRendersNothing(t *testing.T) {
	w, srv, c := newDashboardWeb(t, Options{Username: "admin", Password: "secret"}, nil)
	login(t, srv, c, "admin", "secret").Body.Close()
	postFiles(t, srv, c, map[string][]byte{
		"a.pdf": pdftest.Build(210),
		"b.pdf": pdftest.Build(220),
	}, "a.pdf", "b.pdf")

	u, err := url.Parse(srv.URL + "/web/merge")
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/web/merge", nil)
	for _, ck := range c.Jar.Cookies(u) {
		req.AddCookie(ck)
	}
	mux := http.NewServeMux()
	w.RegisterRoutes(mux)

	hw := &hungUpWriter{}
	mux.ServeHTTP(hw, req)

	assert.Equal(t, []int{http.StatusOK}, hw.codes)
	assert.Equal(t, "application/pdf", hw.Header().Get("Content-Type"))
}
