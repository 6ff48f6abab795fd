package web

import (
	"crypto/subtle"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/local/pdfmerger/internal/export"
	"github.com/local/pdfmerger/internal/merge"
	"github.com/local/pdfmerger/internal/service"
	"github.com/local/pdfmerger/internal/session"
)

const (
	sessionCookie = "merge_session"
	authCookie    = "auth"
)

//go:embed templates/*.html
var templateFS embed.FS

var funcs = template.FuncMap{"inc": func(i int) int { return i + 1 }}

type Options struct {
	Service        *service.Service
	Username       string
	Password       string
	PasswordBcrypt string
	// TemplateDir overrides the embedded templates when set.
	TemplateDir string
	MaxUploadMB int64
	// LoginTTL bounds how long a login stays valid. Defaults to 12h.
	LoginTTL time.Duration
}

type Web struct {
	tpl          *template.Template
	svc          *service.Service
	username     string
	password     string
	passwordHash []byte
	maxUploadMB  int64
	loginTTL     time.Duration
	now          func() time.Time

	mu     sync.Mutex
	tokens map[string]time.Time // token -> expiry
}

func New(opts Options) (*Web, error) {
	tpl := template.New("").Funcs(funcs)
	var err error
	if opts.TemplateDir != "" {
		tpl, err = tpl.ParseGlob(filepath.Join(opts.TemplateDir, "*.html"))
	} else {
		tpl, err = tpl.ParseFS(templateFS, "templates/*.html")
	}
	if err != nil {
		return nil, err
	}
	if opts.MaxUploadMB <= 0 {
		opts.MaxUploadMB = 64
	}
	if opts.LoginTTL <= 0 {
		opts.LoginTTL = 12 * time.Hour
	}
	w := &Web{
		tpl:         tpl,
		svc:         opts.Service,
		username:    opts.Username,
		password:    opts.Password,
		maxUploadMB: opts.MaxUploadMB,
		loginTTL:    opts.LoginTTL,
		now:         time.Now,
		tokens:      map[string]time.Time{},
	}
	if opts.PasswordBcrypt != "" {
		w.passwordHash = []byte(opts.PasswordBcrypt)
	}
	return w, nil
}

func (w *Web) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /web/login", w.handleLoginPage)
	mux.HandleFunc("POST /web/login", w.handleLogin)
	mux.HandleFunc("/web/logout", w.handleLogout)
	mux.HandleFunc("GET /web/{$}", w.requireAuth(w.handleDashboard))
	mux.HandleFunc("POST /web/files", w.requireAuth(w.handleAddFiles))
	mux.HandleFunc("GET /web/files/{fileID}/preview", w.requireAuth(w.handlePreview))
	mux.HandleFunc("POST /web/files/{fileID}/remove", w.requireAuth(w.handleRemove))
	mux.HandleFunc("POST /web/clear", w.requireAuth(w.handleClear))
	mux.HandleFunc("POST /web/merge", w.requireAuth(w.handleMerge))
}

func (w *Web) render(wr http.ResponseWriter, code int, name string, data any) {
	wr.Header().Set("Content-Type", "text/html; charset=utf-8")
	wr.WriteHeader(code)
	if err := w.tpl.ExecuteTemplate(wr, name, data); err != nil {
		log.Error().Err(err).Str("template", name).Msg("render failed")
	}
}

func (w *Web) enabled() bool {
	return w.username != "" && (w.password != "" || len(w.passwordHash) > 0)
}

func (w *Web) checkCredentials(user, pass string) bool {
	if subtle.ConstantTimeCompare([]byte(user), []byte(w.username)) != 1 {
		return false
	}
	if len(w.passwordHash) > 0 {
		return bcrypt.CompareHashAndPassword(w.passwordHash, []byte(pass)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(pass), []byte(w.password)) == 1
}

func (w *Web) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(wr http.ResponseWriter, r *http.Request) {
		if !w.enabled() {
			http.Error(wr, "WEB_USERNAME/WEB_PASSWORD not set", http.StatusForbidden)
			return
		}
		c, err := r.Cookie(authCookie)
		if err != nil || !w.validToken(c.Value) {
			http.Redirect(wr, r, "/web/login", http.StatusSeeOther)
			return
		}
		next(wr, r)
	}
}

func (w *Web) validToken(tok string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	exp, ok := w.tokens[tok]
	if !ok {
		return false
	}
	if !w.now().Before(exp) {
		delete(w.tokens, tok)
		return false
	}
	return true
}

// issueToken records a new login and drops expired ones.
func (w *Web) issueToken() (string, time.Time) {
	now := w.now()
	tok := uuid.NewString()
	exp := now.Add(w.loginTTL)
	w.mu.Lock()
	defer w.mu.Unlock()
	for t, e := range w.tokens {
		if !now.Before(e) {
			delete(w.tokens, t)
		}
	}
	w.tokens[tok] = exp
	return tok, exp
}

func (w *Web) handleLoginPage(wr http.ResponseWriter, r *http.Request) {
	if !w.enabled() {
		http.Error(wr, "WEB_USERNAME/WEB_PASSWORD not set", http.StatusForbidden)
		return
	}
	w.render(wr, http.StatusOK, "login.html", map[string]any{"Error": r.URL.Query().Get("error")})
}

func (w *Web) handleLogin(wr http.ResponseWriter, r *http.Request) {
	if !w.enabled() {
		http.Error(wr, "WEB_USERNAME/WEB_PASSWORD not set", http.StatusForbidden)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Redirect(wr, r, "/web/login?error=invalid+form", http.StatusSeeOther)
		return
	}
	if !w.checkCredentials(r.Form.Get("username"), r.Form.Get("password")) {
		log.Warn().Str("username", r.Form.Get("username")).Msg("dashboard login failed")
		http.Redirect(wr, r, "/web/login?error=invalid+credentials", http.StatusSeeOther)
		return
	}
	tok, exp := w.issueToken()
	http.SetCookie(wr, &http.Cookie{Name: authCookie, Value: tok, Path: "/", Expires: exp, HttpOnly: true, SameSite: http.SameSiteLaxMode})
	http.Redirect(wr, r, "/web/", http.StatusSeeOther)
}

func (w *Web) handleLogout(wr http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(authCookie); err == nil {
		w.mu.Lock()
		delete(w.tokens, c.Value)
		w.mu.Unlock()
	}
	if c, err := r.Cookie(sessionCookie); err == nil {
		w.svc.Sessions().Delete(c.Value)
	}
	http.SetCookie(wr, &http.Cookie{Name: authCookie, Value: "", Path: "/", MaxAge: -1})
	http.SetCookie(wr, &http.Cookie{Name: sessionCookie, Value: "", Path: "/", MaxAge: -1})
	http.Redirect(wr, r, "/web/login", http.StatusSeeOther)
}

// sessionID returns the caller's merge session, starting one when the cookie
// is missing or the session was swept.
func (w *Web) sessionID(wr http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(sessionCookie); err == nil {
		if _, err := w.svc.Sessions().Get(c.Value); err == nil {
			return c.Value
		}
	}
	s := w.svc.Sessions().Create()
	http.SetCookie(wr, &http.Cookie{Name: sessionCookie, Value: s.ID, Path: "/", HttpOnly: true, SameSite: http.SameSiteLaxMode})
	return s.ID
}

// redirectHome sends the user back to the dashboard with a flash message.
func redirectHome(wr http.ResponseWriter, r *http.Request, key, msg string) {
	target := "/web/"
	if msg != "" {
		target += "?" + url.Values{key: {msg}}.Encode()
	}
	http.Redirect(wr, r, target, http.StatusSeeOther)
}

func (w *Web) dashboardData(id string, q url.Values) (map[string]any, error) {
	v, err := w.svc.Describe(id)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"Username": w.username,
		"View":     v,
		"Alert":    q.Get("alert"),
		"Notice":   q.Get("notice"),
	}, nil
}

func (w *Web) handleDashboard(wr http.ResponseWriter, r *http.Request) {
	id := w.sessionID(wr, r)
	data, err := w.dashboardData(id, r.URL.Query())
	if err != nil {
		http.Error(wr, "session unavailable", http.StatusInternalServerError)
		return
	}
	w.render(wr, http.StatusOK, "dashboard.html", data)
}

func (w *Web) handleAddFiles(wr http.ResponseWriter, r *http.Request) {
	id := w.sessionID(wr, r)
	r.Body = http.MaxBytesReader(wr, r.Body, w.maxUploadMB<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		redirectHome(wr, r, "alert", "Upload failed: invalid form or files too large.")
		return
	}
	defer r.MultipartForm.RemoveAll()
	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		redirectHome(wr, r, "alert", "No files selected.")
		return
	}
	res, err := w.svc.AddFiles(r.Context(), id, service.FromMultipart(headers))
	if err != nil {
		redirectHome(wr, r, "alert", "Upload failed.")
		return
	}
	if len(res.Rejected)+len(res.Failed) > 0 {
		var names []string
		for _, rej := range append(res.Rejected, res.Failed...) {
			names = append(names, rej.Name)
		}
		redirectHome(wr, r, "alert", "Skipped: "+strings.Join(names, ", "))
		return
	}
	redirectHome(wr, r, "notice", "Added "+strconv.Itoa(len(res.Added))+" file(s).")
}

func (w *Web) handlePreview(wr http.ResponseWriter, r *http.Request) {
	id := w.sessionID(wr, r)
	thumb, err := w.svc.Thumbnail(id, r.PathValue("fileID"))
	if err != nil {
		http.NotFound(wr, r)
		return
	}
	wr.Header().Set("Content-Type", "image/png")
	_, _ = wr.Write(thumb.PNG)
}

func (w *Web) handleRemove(wr http.ResponseWriter, r *http.Request) {
	id := w.sessionID(wr, r)
	if err := w.svc.RemoveFile(id, r.PathValue("fileID")); err != nil {
		redirectHome(wr, r, "alert", "That file is no longer in the list.")
		return
	}
	redirectHome(wr, r, "", "")
}

func (w *Web) handleClear(wr http.ResponseWriter, r *http.Request) {
	id := w.sessionID(wr, r)
	_ = w.svc.Clear(id)
	redirectHome(wr, r, "notice", "Cleared.")
}

func (w *Web) handleMerge(wr http.ResponseWriter, r *http.Request) {
	id := w.sessionID(wr, r)
	if err := r.ParseForm(); err != nil {
		redirectHome(wr, r, "alert", "Invalid form.")
		return
	}
	if name := r.Form.Get("file_name"); name != "" {
		if _, err := w.svc.SetOutputName(id, name); err != nil {
			redirectHome(wr, r, "alert", "Session unavailable.")
			return
		}
	}
	_, err := w.svc.Merge(r.Context(), id, export.HTTPDownload(wr))
	if err == nil {
		return
	}
	if errors.Is(err, export.ErrPartialDownload) {
		log.Warn().Err(err).Str("session_id", id).Msg("merge download interrupted")
		return
	}

	var insufficient *merge.InsufficientInputError
	var inputErr *service.InputError
	switch {
	case errors.As(err, &insufficient):
		w.renderAlert(wr, r, id, service.InsufficientInputMessage)
	case errors.As(err, &inputErr):
		w.renderAlert(wr, r, id, inputErr.File.Name+" is not a readable PDF.")
	case errors.Is(err, service.ErrBusy):
		w.renderAlert(wr, r, id, "A merge is already running. Try again shortly.")
	case errors.Is(err, session.ErrNotFound):
		redirectHome(wr, r, "alert", "Session expired.")
	default:
		w.renderAlert(wr, r, id, "Merge failed.")
	}
}

// renderAlert shows the dashboard in place with an alert.
func (w *Web) renderAlert(wr http.ResponseWriter, r *http.Request, id, msg string) {
	data, err := w.dashboardData(id, url.Values{"alert": {msg}})
	if err != nil {
		http.Error(wr, msg, http.StatusUnprocessableEntity)
		return
	}
	w.render(wr, http.StatusUnprocessableEntity, "dashboard.html", data)
}
