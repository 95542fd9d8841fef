package server

import (
	"bytes"
	"errors"
	"net/http"
	"net/url"

	"basket-booking/internal/booking"
	"basket-booking/internal/logging"
	"basket-booking/internal/models"
	"basket-booking/internal/normalize"
	"basket-booking/internal/pdf"
)

type adminSession struct {
	Date     string
	Time     string
	Selected bool
	URL      string
}

type toggle struct {
	Scope  models.Scope
	Label  string
	Closed bool
}

// Next is the status a click on the toggle sets.
func (t toggle) Next() string {
	if t.Closed {
		return "open"
	}
	return "closed"
}

type numbered struct {
	N int
	models.Registration
}

type rosterView struct {
	Category  string
	Confirmed []numbered
	Waitlist  []numbered
}

type adminPage struct {
	base
	Sessions []adminSession
	Roster   *booking.Roster
	Toggles  []toggle
	Groups   []rosterView
	Export   string
}

func number(regs []models.Registration) []numbered {
	out := make([]numbered, len(regs))
	for i, r := range regs {
		out[i] = numbered{N: i + 1, Registration: r}
	}
	return out
}

// flash messages by code so redirects never echo user input.
var adminFlash = map[string]string{
	"created":  "Sesión creada.",
	"exists":   "La sesión ya existía.",
	"status":   "Estado actualizado.",
	"deleted":  "Sesión eliminada.",
	"loggedin": "Acceso concedido.",
}

// ---------- admin view ----------

func (s *Server) handleAdmin(w http.ResponseWriter, r *http.Request) {
	if !s.isAdmin(r) {
		s.render(w, r, http.StatusOK, "admin_login.html", s.base(r))
		return
	}
	q := r.URL.Query()
	if q.Get("export") == "roster" {
		s.exportRoster(w, r, q.Get("date"), q.Get("time"))
		return
	}

	sessions, err := s.svc.SessionsWithData(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	page := adminPage{base: s.base(r)}
	page.Flash = adminFlash[q.Get("msg")]

	date, _ := normalize.ParseDate(q.Get("date"))
	tm, _ := normalize.ParseTime(q.Get("time"))
	for _, sess := range sessions {
		sel := sess.Date == date && sess.Time == tm
		page.Sessions = append(page.Sessions, adminSession{
			Date: sess.Date, Time: sess.Time, Selected: sel,
			URL: "/?" + url.Values{"admin": {"1"}, "date": {sess.Date}, "time": {sess.Time}}.Encode(),
		})
	}

	if date != "" && tm != "" {
		roster, err := s.svc.Roster(r.Context(), date, tm)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		page.Roster = roster
		page.Toggles = []toggle{
			{Scope: models.ScopeGlobal, Label: "Sesión", Closed: roster.State.Global == models.StatusClosed},
			{Scope: models.ScopeMini, Label: string(models.CategoryMini), Closed: roster.State.Mini == models.StatusClosed},
			{Scope: models.ScopeGrande, Label: string(models.CategoryGrande), Closed: roster.State.Grande == models.StatusClosed},
		}
		for _, g := range roster.Groups {
			page.Groups = append(page.Groups, rosterView{Category: g.Category, Confirmed: number(g.Confirmed), Waitlist: number(g.Waitlist)})
		}
		page.Export = "/?" + url.Values{"admin": {"1"}, "export": {"roster"}, "date": {date}, "time": {tm}}.Encode()
	}
	s.render(w, r, http.StatusOK, "admin.html", page)
}

func (s *Server) exportRoster(w http.ResponseWriter, r *http.Request, date, tm string) {
	roster, err := s.svc.Roster(r.Context(), date, tm)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := pdf.Roster(&buf, pdf.FromRoster("Tecnificación Baloncesto", roster)); err != nil {
		logging.FromContext(r.Context()).Error("render roster", "err", err)
		s.renderError(w, r, http.StatusInternalServerError, "No se ha podido generar el listado.")
		return
	}
	sendPDF(w, pdf.RosterFilename(roster.Date, roster.Time), buf.Bytes())
}

// ---------- admin actions ----------

func (s *Server) handleAdminPost(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("admin") != "1" {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		s.renderError(w, r, http.StatusBadRequest, "Formulario no válido.")
		return
	}
	f := r.PostForm
	log := logging.FromContext(r.Context())
	action := f.Get("action")

	switch action {
	case "login":
		if !s.checkPassword(f.Get("password")) {
			log.Warn("admin login failed")
			p := s.base(r)
			p.Error = "Contraseña incorrecta."
			s.render(w, r, http.StatusUnauthorized, "admin_login.html", p)
			return
		}
		s.setAdminCookie(w)
		log.Info("admin login")
		redirect(w, r, url.Values{"admin": {"1"}, "msg": {"loggedin"}})
		return
	case "logout":
		s.clearAdminCookie(w)
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	if !s.isAdmin(r) {
		p := s.base(r)
		p.Error = "Acceso restringido."
		s.render(w, r, http.StatusForbidden, "admin_login.html", p)
		return
	}

	date, tm := f.Get("date"), f.Get("time")
	back := url.Values{"admin": {"1"}}
	if d, ok := normalize.ParseDate(date); ok {
		back.Set("date", d)
	}
	if t, ok := normalize.ParseTime(tm); ok {
		back.Set("time", t)
	}

	var err error
	switch action {
	case "upsert":
		var created bool
		created, err = s.svc.UpsertSession(r.Context(), date, tm)
		back.Set("msg", "exists")
		if created {
			back.Set("msg", "created")
		}
	case "status":
		st := models.StatusOpen
		if f.Get("status") == "closed" {
			st = models.StatusClosed
		}
		_, err = s.svc.SetStatus(r.Context(), date, tm, models.Scope(f.Get("scope")), st)
		back.Set("msg", "status")
	case "delete":
		err = s.svc.DeleteSession(r.Context(), date, tm)
		back.Del("date")
		back.Del("time")
		back.Set("msg", "deleted")
	default:
		s.renderError(w, r, http.StatusBadRequest, "Acción desconocida.")
		return
	}
	if err != nil {
		if errors.Is(err, booking.ErrInvalidScope) {
			s.renderError(w, r, http.StatusBadRequest, "Ámbito no válido.")
			return
		}
		s.respondError(w, r, err)
		return
	}
	redirect(w, r, back)
}

func redirect(w http.ResponseWriter, r *http.Request, q url.Values) {
	http.Redirect(w, r, "/?"+q.Encode(), http.StatusSeeOther)
}
