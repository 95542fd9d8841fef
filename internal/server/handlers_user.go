package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"basket-booking/internal/booking"
	"basket-booking/internal/logging"
	"basket-booking/internal/models"
	"basket-booking/internal/normalize"
	"basket-booking/internal/pdf"
	"basket-booking/internal/sheets"
	"basket-booking/internal/util"
)

const (
	familyCookie = "bb_family"
	// confirmationTTL bounds how long a confirmation link stays usable.
	confirmationTTL = 7 * 24 * time.Hour
)

type dayGroup struct {
	Date     string
	Sessions []booking.Availability
}

type indexPage struct {
	base
	Welcome template.HTML
	Days    []dayGroup
}

// ---------- user view ----------

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("admin") == "1" {
		s.handleAdmin(w, r)
		return
	}
	snap, err := s.svc.Snapshot(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	page := indexPage{base: s.base(r), Welcome: s.welcome}
	for _, sess := range snap.UpcomingSessions(s.svc.Today()) {
		a := snap.Availability(sess.Date, sess.Time)
		if !a.Bookable() {
			continue
		}
		if n := len(page.Days); n == 0 || page.Days[n-1].Date != a.Date {
			page.Days = append(page.Days, dayGroup{Date: a.Date})
		}
		d := &page.Days[len(page.Days)-1]
		d.Sessions = append(d.Sessions, a)
	}
	s.render(w, r, http.StatusOK, "index.html", page)
}

type sessionPage struct {
	base
	Avail      booking.Availability
	Open       []models.Category
	Full       []models.Category
	Teams      []string
	Form       booking.Request
	Errors     map[string]string
	Children   []childLink
	FamilyCode string
}

type childLink struct {
	Player string
	URL    string
}

// Err returns the message for one form field.
func (p sessionPage) Err(field string) string { return p.Errors[field] }

func sessionQuery(r *http.Request) (string, string, bool) {
	q := r.URL.Query()
	date, ok := normalize.ParseDate(q.Get("date"))
	if !ok {
		return "", "", false
	}
	tm, ok := normalize.ParseTime(q.Get("time"))
	return date, tm, ok
}

func (s *Server) handleSessionForm(w http.ResponseWriter, r *http.Request) {
	date, tm, ok := sessionQuery(r)
	if !ok {
		s.renderError(w, r, http.StatusBadRequest, "Sesión no válida.")
		return
	}
	form := booking.Request{Date: date, Time: tm}
	page := sessionPage{Form: form}

	code := strings.TrimSpace(r.URL.Query().Get("code"))
	if code == "" {
		if c, err := r.Cookie(familyCookie); err == nil {
			code = c.Value
		}
	}
	if code != "" && s.svc.Families() != nil {
		s.prefill(r, &page, code)
	}
	s.renderSession(w, r, http.StatusOK, page)
}

// prefill copies a saved family into the form. ?child=N picks one of the
// saved players.
func (s *Server) prefill(r *http.Request, page *sessionPage, code string) {
	fam, kids, err := s.svc.Families().Lookup(r.Context(), code)
	switch {
	case errors.Is(err, booking.ErrFamilyNotFound):
		page.Error = "Código no válido (o no encontrado)."
		return
	case err != nil:
		logging.FromContext(r.Context()).Warn("family lookup failed", "err", err)
		return
	}
	page.Form.Guardian, page.Form.Phone, page.Form.Email = fam.Guardian, fam.Phone, fam.Email
	page.Form.FamilyCode = fam.Code
	page.FamilyCode = fam.Code

	for i, k := range kids {
		q := url.Values{"date": {page.Form.Date}, "time": {page.Form.Time}, "code": {fam.Code}, "child": {strconv.Itoa(i)}}
		page.Children = append(page.Children, childLink{Player: k.Player, URL: "/session?" + q.Encode()})
	}
	i, err := strconv.Atoi(r.URL.Query().Get("child"))
	if err != nil || i < 0 || i >= len(kids) {
		return
	}
	k := kids[i]
	page.Form.Player, page.Form.Category = k.Player, k.Category
	page.Form.Team = k.Team
	if !knownTeam(k.Team) {
		page.Form.Team, page.Form.TeamOther = models.OtherTeam, k.Team
	}
	page.Flash = "Datos cargados."
}

func knownTeam(t string) bool {
	for _, o := range models.TeamOptions {
		if o == t {
			return true
		}
	}
	return false
}

func (s *Server) renderSession(w http.ResponseWriter, r *http.Request, status int, page sessionPage) {
	snap, err := s.svc.Snapshot(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	flash, errMsg := page.Flash, page.Error
	page.base = s.base(r)
	page.Flash, page.Error = flash, errMsg
	page.Avail = snap.Availability(page.Form.Date, page.Form.Time)
	page.Teams = models.TeamOptions
	for _, c := range page.Avail.Categories {
		if !c.Status.Open() {
			continue
		}
		page.Open = append(page.Open, c.Category)
		if c.Free == 0 {
			page.Full = append(page.Full, c.Category)
		}
	}
	s.render(w, r, status, "session.html", page)
}

type resultPage struct {
	base
	Res         *booking.Result
	Waitlisted  bool
	ChannelName string
	ChannelURL  string
	PDFURL      string
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.renderError(w, r, http.StatusBadRequest, "Formulario no válido.")
		return
	}
	f := r.PostForm
	req := booking.Request{
		Date:       f.Get("date"),
		Time:       f.Get("time"),
		Player:     f.Get("player"),
		Category:   f.Get("category"),
		Team:       f.Get("team"),
		TeamOther:  f.Get("team_other"),
		Guardian:   f.Get("guardian"),
		Phone:      f.Get("phone"),
		Email:      f.Get("email"),
		SaveFamily: f.Get("save_family") != "",
		FamilyCode: f.Get("family_code"),
	}

	res, err := s.svc.Register(r.Context(), req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	page := sessionPage{Form: req, Errors: res.Errors, FamilyCode: req.FamilyCode}
	switch res.Outcome {
	case booking.OutcomeRejected:
		page.Error = "Revisa los campos marcados."
		s.renderSession(w, r, http.StatusUnprocessableEntity, page)
		return
	case booking.OutcomeRejectedClosed:
		page.Error = "Esta categoría está cerrada para esta sesión."
		s.renderSession(w, r, http.StatusConflict, page)
		return
	case booking.OutcomeDuplicateConfirmed:
		page.Error = "Este jugador ya está inscrito en esta sesión."
		s.renderSession(w, r, http.StatusConflict, page)
		return
	case booking.OutcomeDuplicateWaitlisted:
		page.Error = "Este jugador ya está en lista de espera para esta sesión."
		s.renderSession(w, r, http.StatusConflict, page)
		return
	}

	if res.FamilyCode != "" {
		http.SetCookie(w, &http.Cookie{
			Name: familyCookie, Value: res.FamilyCode, Path: "/",
			MaxAge: 365 * 24 * 3600, HttpOnly: true, Secure: s.cfg.CSRFSecure, SameSite: http.SameSiteLaxMode,
		})
	}
	out := resultPage{
		base:       s.base(r),
		Res:        res,
		Waitlisted: res.Outcome == booking.OutcomeWaitlisted,
		PDFURL:     "/confirmation.pdf?t=" + url.QueryEscape(s.confirmationToken(res, s.now().Add(confirmationTTL))),
	}
	if res.Registration.Category == string(models.CategoryMini) {
		out.ChannelName, out.ChannelURL = "MINIBASKET", s.cfg.ChannelMiniURL
	} else {
		out.ChannelName, out.ChannelURL = "CANASTA GRANDE", s.cfg.ChannelGrandeURL
	}
	s.render(w, r, http.StatusOK, "result.html", out)
}

// confirmationClaim is what a confirmation link carries.
type confirmationClaim struct {
	Date       string `json:"d"`
	Time       string `json:"t"`
	Player     string `json:"p"`
	Category   string `json:"c"`
	Team       string `json:"e"`
	Guardian   string `json:"g"`
	Phone      string `json:"ph"`
	Email      string `json:"m"`
	Waitlisted bool   `json:"w,omitempty"`
	Expires    int64  `json:"x"`
}

func (s *Server) confirmationToken(res *booking.Result, expires time.Time) string {
	r := res.Registration
	b, _ := json.Marshal(confirmationClaim{
		Date: r.Date, Time: r.Time, Player: r.Player, Category: r.Category, Team: r.Team,
		Guardian: r.Guardian, Phone: r.Phone, Email: r.Email,
		Waitlisted: res.Outcome == booking.OutcomeWaitlisted,
		Expires:    expires.Unix(),
	})
	return util.SignToken(s.cfg.SigningSecret, b)
}

func (s *Server) handleConfirmationPDF(w http.ResponseWriter, r *http.Request) {
	raw, err := util.OpenToken(s.cfg.SigningSecret, r.URL.Query().Get("t"))
	var c confirmationClaim
	if err == nil {
		err = json.Unmarshal(raw, &c)
	}
	if err != nil {
		s.renderError(w, r, http.StatusForbidden, "Enlace de justificante no válido.")
		return
	}
	if s.now().Unix() > c.Expires {
		s.renderError(w, r, http.StatusForbidden, "El enlace del justificante ha caducado.")
		return
	}

	var buf bytes.Buffer
	err = pdf.Confirmation(&buf, pdf.ConfirmationData{
		Date: c.Date, Time: c.Time, Waitlisted: c.Waitlisted,
		Player: c.Player, Category: c.Category, Team: c.Team,
		Guardian: c.Guardian, Phone: c.Phone, Email: c.Email,
	})
	if err != nil {
		logging.FromContext(r.Context()).Error("render confirmation", "err", err)
		s.renderError(w, r, http.StatusInternalServerError, "No se ha podido generar el justificante.")
		return
	}
	sendPDF(w, pdf.ConfirmationFilename(c.Date, c.Player, c.Time), buf.Bytes())
}

func sendPDF(w http.ResponseWriter, filename string, b []byte) {
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Cache-Control", "private, no-store")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(b)))
	_, _ = w.Write(b)
}

// ---------- api ----------

func (s *Server) handleAvailability(w http.ResponseWriter, r *http.Request) {
	date, tm, ok := sessionQuery(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "date and time are required"})
		return
	}
	snap, err := s.svc.Snapshot(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).Error("availability", "err", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "store unavailable"})
		return
	}
	a := snap.Availability(date, tm)
	writeJSON(w, http.StatusOK, struct {
		booking.Availability
		Level string `json:"level"`
	}{a, a.Level()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ---------- errors ----------

type errorPage struct {
	base
	Status int
}

func (s *Server) renderError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	p := errorPage{base: s.base(r), Status: status}
	p.Error = msg
	s.render(w, r, status, "error.html", p)
}

// respondError maps a service error to a status and a user message. Store
// failures are 502; configuration problems are logged at error level.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	log := logging.FromContext(r.Context())
	switch {
	case errors.Is(err, booking.ErrInvalidSession), errors.Is(err, booking.ErrInvalidScope):
		s.renderError(w, r, http.StatusBadRequest, "Sesión no válida.")
	case errors.Is(err, booking.ErrSessionNotFound):
		s.renderError(w, r, http.StatusNotFound, "La sesión no existe.")
	case sheets.IsConfig(err):
		log.Error("store configuration problem", "err", err)
		s.renderError(w, r, http.StatusBadGateway, "Problema de configuración del servicio. Avisa a la organización.")
	default:
		log.Error("store request failed", "err", err)
		s.renderError(w, r, http.StatusBadGateway, "No se han podido leer o guardar los datos. Inténtalo de nuevo en unos minutos.")
	}
}

func displayDate(iso string) string { return pdf.DisplayDate(iso) }
func longDate(iso string) string    { return pdf.LongDate(iso) }

func categoryID(c models.Category) string {
	return string(models.ScopeFor(c))
}
