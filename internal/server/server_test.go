package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"basket-booking/internal/booking"
	"basket-booking/internal/cache"
	"basket-booking/internal/config"
	"basket-booking/internal/models"
	"basket-booking/internal/sheets"
)

const (
	day  = "2025-10-05"
	hour = "16:30"
)

type fixture struct {
	srv *Server
	mem *sheets.MemTable
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := sheets.NewMemTable()
	st := sheets.NewStore(mem)
	require.NoError(t, st.Provision(context.Background()))
	mem.Seed(sheets.SheetSessions,
		append(mem.Rows(sheets.SheetSessions), []string{day, hour, "ABIERTA", "ABIERTA", "ABIERTA"})...)

	now := func() time.Time { return time.Date(2025, 10, 1, 9, 0, 0, 0, time.UTC) }
	loader := booking.NewLoader(st, cache.New[*booking.Snapshot](time.Minute, cache.WithClock[*booking.Snapshot](now)))
	fams := booking.NewFamilies(st, cache.New[*booking.FamilyData](5*time.Minute))
	svc := booking.NewService(st, loader, booking.WithClock(now), booking.WithFamilies(fams))

	cfg := config.Config{
		AdminPass: "pw", SigningSecret: "test-secret", HTTPAddr: ":0",
		ChannelMiniURL: "https://chat.example.com/mini",
	}
	srv, err := NewServer(cfg, svc)
	require.NoError(t, err)
	srv.now = now
	return &fixture{srv: srv, mem: mem}
}

var reToken = regexp.MustCompile(`name="gorilla.csrf.Token" value="([^"]+)"`)

// client keeps cookies between requests like a browser would.
type client struct {
	t       *testing.T
	h       http.Handler
	cookies map[string]*http.Cookie
}

func newClient(t *testing.T, h http.Handler) *client {
	return &client{t: t, h: h, cookies: map[string]*http.Cookie{}}
}

func (c *client) do(method, path string, form url.Values) *httptest.ResponseRecorder {
	var body *strings.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	} else {
		body = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}
	w := httptest.NewRecorder()
	c.h.ServeHTTP(w, req)
	for _, ck := range w.Result().Cookies() {
		if ck.MaxAge < 0 {
			delete(c.cookies, ck.Name)
			continue
		}
		c.cookies[ck.Name] = ck
	}
	return w
}

// post fetches page first to pick up a CSRF token, then submits form.
func (c *client) post(page, path string, form url.Values) *httptest.ResponseRecorder {
	c.t.Helper()
	w := c.do(http.MethodGet, page, nil)
	m := reToken.FindStringSubmatch(w.Body.String())
	require.NotNil(c.t, m, "no csrf token on %s", page)
	form.Set("gorilla.csrf.Token", m[1])
	return c.do(http.MethodPost, path, form)
}

func sessionPath() string {
	return "/session?" + url.Values{"date": {day}, "time": {hour}}.Encode()
}

func registration(player, category string) url.Values {
	return url.Values{
		"date": {day}, "time": {hour},
		"player": {player}, "category": {category}, "team": {"Alevín 1ºaño 2015"},
		"guardian": {"Eva"}, "phone": {"612 345 678"}, "email": {"eva@example.com"},
	}
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	w := newClient(t, f.srv).do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestIndexListsUpcomingSessions(t *testing.T) {
	f := newFixture(t)
	w := newClient(t, f.srv).do(http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "Bienvenid@")
	assert.Contains(t, body, "Domingo, 05 octubre 2025")
	assert.Contains(t, body, "4/4 libres")
	assert.Contains(t, body, "dot green")
}

func TestRegisterConfirmed(t *testing.T) {
	f := newFixture(t)
	c := newClient(t, f.srv)

	w := c.post(sessionPath(), "/session", registration("Ana García", string(models.CategoryMini)))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := w.Body.String()
	assert.Contains(t, body, "Inscripción realizada correctamente")
	assert.Contains(t, body, "https://chat.example.com/mini")

	rows := f.mem.Rows(sheets.SheetConfirmed)
	require.Len(t, rows, 2)
	assert.Equal(t, "Ana García", rows[1][3])
	assert.Equal(t, "612345678", rows[1][7])

	m := regexp.MustCompile(`href="(/confirmation\.pdf\?t=[^"]+)"`).FindStringSubmatch(body)
	require.NotNil(t, m)
	link := strings.ReplaceAll(m[1], "&amp;", "&")
	pdfResp := c.do(http.MethodGet, link, nil)
	require.Equal(t, http.StatusOK, pdfResp.Code)
	assert.Equal(t, "application/pdf", pdfResp.Header().Get("Content-Type"))
	assert.Contains(t, pdfResp.Header().Get("Content-Disposition"), "justificante_2025-10-05_ana_garcia_1630.pdf")
	assert.True(t, strings.HasPrefix(pdfResp.Body.String(), "%PDF-"))
}

func TestRegisterOutcomesMapToStatus(t *testing.T) {
	f := newFixture(t)
	c := newClient(t, f.srv)

	bad := registration("", string(models.CategoryMini))
	w := c.post(sessionPath(), "/session", bad)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "Campo obligatorio")

	w = c.post(sessionPath(), "/session", registration("Leo", string(models.CategoryGrande)))
	require.Equal(t, http.StatusOK, w.Code)
	w = c.post(sessionPath(), "/session", registration("  leo ", string(models.CategoryGrande)))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "ya está inscrito")
}

func TestRegisterWithoutCSRFTokenIsForbidden(t *testing.T) {
	f := newFixture(t)
	w := newClient(t, f.srv).do(http.MethodPost, "/session", registration("Ana", string(models.CategoryMini)))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Len(t, f.mem.Rows(sheets.SheetConfirmed), 1)
}

func TestRegisterStoreFailureIs502(t *testing.T) {
	f := newFixture(t)
	c := newClient(t, f.srv)
	c.do(http.MethodGet, sessionPath(), nil)
	f.mem.FailWith("append", &googleapi.Error{Code: http.StatusForbidden})

	w := c.post(sessionPath(), "/session", registration("Ana", string(models.CategoryMini)))
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "configuración")
}

func TestConfirmationLinkExpires(t *testing.T) {
	f := newFixture(t)
	res := &booking.Result{
		Outcome: booking.OutcomeConfirmed,
		Registration: models.Registration{
			Date: day, Time: hour, Player: "Ana", Category: string(models.CategoryMini),
			Phone: "612345678", Email: "eva@example.com",
		},
	}
	c := newClient(t, f.srv)

	fresh := f.srv.confirmationToken(res, f.srv.now().Add(time.Hour))
	w := c.do(http.MethodGet, "/confirmation.pdf?t="+url.QueryEscape(fresh), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "private, no-store", w.Header().Get("Cache-Control"))

	stale := f.srv.confirmationToken(res, f.srv.now().Add(-time.Minute))
	w = c.do(http.MethodGet, "/confirmation.pdf?t="+url.QueryEscape(stale), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "caducado")
}

func TestConfirmationRejectsTamperedToken(t *testing.T) {
	f := newFixture(t)
	w := newClient(t, f.srv).do(http.MethodGet, "/confirmation.pdf?t=abc.def", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAvailabilityAPI(t *testing.T) {
	f := newFixture(t)
	c := newClient(t, f.srv)

	w := c.do(http.MethodGet, "/api/availability?"+url.Values{"date": {"05/10/2025"}, "time": {"16:30"}}.Encode(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"date":"2025-10-05"`)
	assert.Contains(t, w.Body.String(), `"level":"green"`)
	assert.Contains(t, w.Body.String(), `"free":4`)

	w = c.do(http.MethodGet, "/api/availability", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminLoginAndActions(t *testing.T) {
	f := newFixture(t)
	c := newClient(t, f.srv)

	w := c.post("/?admin=1", "/?admin=1", url.Values{"action": {"login"}, "password": {"wrong"}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = c.post("/?admin=1", "/?admin=1", url.Values{"action": {"login"}, "password": {"pw"}})
	require.Equal(t, http.StatusSeeOther, w.Code)
	require.Contains(t, c.cookies, adminCookie)

	w = c.do(http.MethodGet, "/?admin=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Nueva sesión")

	w = c.post("/?admin=1", "/?admin=1", url.Values{"action": {"status"}, "date": {day}, "time": {hour}, "scope": {"mini"}, "status": {"closed"}})
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Contains(t, w.Header().Get("Location"), "msg=status")
	rows := f.mem.Rows(sheets.SheetSessions)
	assert.Equal(t, "CERRADA", rows[1][3])

	w = c.post("/?admin=1", "/?admin=1", url.Values{"action": {"upsert"}, "date": {"2025-10-12"}, "time": {"10:00"}})
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Contains(t, w.Header().Get("Location"), "msg=created")
	assert.Len(t, f.mem.Rows(sheets.SheetSessions), 3)

	w = c.do(http.MethodGet, "/?admin=1&export=roster&date="+day+"&time="+url.QueryEscape(hour), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "sesion_2025-10-05_1630.pdf")

	w = c.post("/?admin=1", "/?admin=1", url.Values{"action": {"delete"}, "date": {"2025-10-12"}, "time": {"10:00"}})
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Len(t, f.mem.Rows(sheets.SheetSessions), 2)

	w = c.post("/?admin=1", "/?admin=1", url.Values{"action": {"logout"}})
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.NotContains(t, c.cookies, adminCookie)
}

func TestAdminActionsNeedLogin(t *testing.T) {
	f := newFixture(t)
	c := newClient(t, f.srv)
	w := c.post("/?admin=1", "/?admin=1", url.Values{"action": {"delete"}, "date": {day}, "time": {hour}})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Len(t, f.mem.Rows(sheets.SheetSessions), 2)
}

func TestAdminCookieExpires(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/?admin=1", nil)
	req.AddCookie(&http.Cookie{Name: adminCookie, Value: f.srv.adminToken(f.srv.now().Add(-time.Minute))})
	assert.False(t, f.srv.isAdmin(req))

	req = httptest.NewRequest(http.MethodGet, "/?admin=1", nil)
	req.AddCookie(&http.Cookie{Name: adminCookie, Value: f.srv.adminToken(f.srv.now().Add(time.Minute))})
	assert.True(t, f.srv.isAdmin(req))
}

func TestFamilyPrefill(t *testing.T) {
	f := newFixture(t)
	c := newClient(t, f.srv)

	form := registration("Ana García", string(models.CategoryMini))
	form.Set("save_family", "1")
	w := c.post(sessionPath(), "/session", form)
	require.Equal(t, http.StatusOK, w.Code)
	code := regexp.MustCompile(`<code>(CBC-[0-9A-Z]{8})</code>`).FindStringSubmatch(w.Body.String())
	require.NotNil(t, code)
	require.Contains(t, c.cookies, familyCookie)

	w = c.do(http.MethodGet, sessionPath()+"&child=0", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "Datos cargados.")
	assert.Contains(t, body, `value="Ana García"`)
	assert.Contains(t, body, `value="612345678"`)

	w = newClient(t, f.srv).do(http.MethodGet, sessionPath()+"&code=CBC-00000000", nil)
	assert.Contains(t, w.Body.String(), "Código no válido")
}
