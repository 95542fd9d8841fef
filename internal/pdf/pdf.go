// Package pdf renders the two printable documents: the per-registration
// confirmation and the per-session roster. It only formats what it is
// given.
package pdf

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"basket-booking/internal/booking"
	"basket-booking/internal/models"
	"basket-booking/internal/normalize"
)

const (
	pageW  = 210.0
	pageH  = 297.0
	left   = 20.0
	right  = 190.0
	top    = 20.0
	bottom = 30.0 // minimum free space before a page break
)

type ConfirmationData struct {
	Date       string // YYYY-MM-DD
	Time       string
	Waitlisted bool
	Player     string
	Category   string
	Team       string
	Guardian   string
	Phone      string
	Email      string
}

// Entry is one roster line.
type Entry struct {
	Player   string
	Category string
	Team     string
	Guardian string
	Phone    string
	Email    string
}

// Group is the entries of one category.
type Group struct {
	Category string
	Entries  []Entry
}

type RosterData struct {
	Title     string
	Date      string
	Time      string
	Capacity  int
	Counts    []Count
	Confirmed []Group
	Waitlist  []Group
}

type Count struct {
	Label string
	N     int
}

type doc struct {
	*fpdf.Fpdf
	tr func(string) string
}

func newDoc(title string) *doc {
	f := fpdf.New("P", "mm", "A4", "")
	f.SetMargins(left, top, pageW-right)
	f.SetAutoPageBreak(false, 0)
	d := &doc{Fpdf: f, tr: f.UnicodeTranslatorFromDescriptor("")}
	f.SetTitle(title, true)
	f.SetCreator("basket-booking", true)
	f.AddPage()
	return d
}

func (d *doc) text(x, y float64, s string) {
	d.Text(x, y, d.tr(s))
}

// fit truncates s with an ellipsis so it is at most w wide in the current
// font.
func (d *doc) fit(s string, w float64) string {
	if s == "" || d.GetStringWidth(d.tr(s)) <= w {
		return s
	}
	const ell = "…"
	ellW := d.GetStringWidth(d.tr(ell))
	r := []rune(s)
	for len(r) > 0 && d.GetStringWidth(d.tr(string(r)))+ellW > w {
		r = r[:len(r)-1]
	}
	return string(r) + ell
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return normalize.Placeholder
	}
	return s
}

// Confirmation writes the one-page registration receipt.
func Confirmation(w io.Writer, c ConfirmationData) error {
	title, status := "Justificante de inscripción", "CONFIRMADA"
	if c.Waitlisted {
		title, status = "Justificante - Lista de espera", "LISTA DE ESPERA"
	}
	d := newDoc(title)

	y := top
	d.SetFont("Helvetica", "B", 16)
	d.text(left, y, title)
	y += 8

	d.SetFont("Helvetica", "", 11)
	d.text(left, y, fmt.Sprintf("Sesión: %s  ·  Hora: %s", DisplayDate(c.Date), orDash(c.Time)))
	y += 5
	d.text(left, y, "Estado: "+status)
	y += 8

	rows := []struct{ label, value string }{
		{"Jugador", c.Player},
		{"Canasta", c.Category},
		{"Categoría/Equipo", c.Team},
		{"Tutor", c.Guardian},
		{"Teléfono", c.Phone},
		{"Email", c.Email},
	}
	for _, r := range rows {
		d.SetFont("Helvetica", "", 10)
		d.text(left, y, r.label+":")
		d.SetFont("Helvetica", "B", 10)
		d.text(left+42, y, d.fit(orDash(r.value), right-left-42))
		y += 6
	}

	y += 4
	d.SetFont("Helvetica", "I", 9)
	d.SetTextColor(128, 128, 128)
	d.text(left, y, "Conserve este justificante como comprobante de su reserva.")
	d.SetTextColor(0, 0, 0)

	return d.Output(w)
}

// roster column layout
const (
	xNum   = left
	xName  = left + 9
	xCat   = left + 110
	xTeam  = left + 140
	lineH  = 4.6
	sepOff = 3.0
	sepGap = 5.0
)

// Roster writes the session listing, confirmed entries first and the
// waitlist after, both split by category. Column headers repeat on every
// new page.
func Roster(w io.Writer, r RosterData) error {
	title := r.Title
	if title == "" {
		title = "Tecnificación Baloncesto"
	}
	d := newDoc(title)

	y := top
	d.SetFont("Helvetica", "B", 16)
	d.text(left, y, d.fit(fmt.Sprintf("%s — %s %s", title, LongDate(r.Date), orDash(r.Time)), right-left))
	y += 8

	counts := []string{fmt.Sprintf("Capacidad por categoría: %d", r.Capacity)}
	for _, c := range r.Counts {
		counts = append(counts, fmt.Sprintf("%s: %d", c.Label, c.N))
	}
	d.SetFont("Helvetica", "", 11)
	d.text(left, y, strings.Join(counts, " | "))
	y += 10

	y = d.section(y, "Inscripciones confirmadas:", "— Sin inscripciones —", r.Confirmed)
	y += 10
	d.section(y, "Lista de espera:", "— Vacía —", r.Waitlist)

	return d.Output(w)
}

func (d *doc) section(y float64, heading, empty string, groups []Group) float64 {
	d.SetFont("Helvetica", "B", 12)
	d.text(left, y, heading)
	y += 8

	total := 0
	for _, g := range groups {
		total += len(g.Entries)
	}
	if total == 0 {
		d.SetFont("Helvetica", "", 10)
		d.text(left, y, empty)
		return y + 6
	}

	n := 1
	for _, g := range groups {
		y = d.group(y, g, n)
		n += len(g.Entries)
	}
	return y
}

func (d *doc) headers(y float64, title string) float64 {
	d.SetFont("Helvetica", "B", 11)
	if title != "" {
		d.text(left, y, title)
		y += 5
	}
	d.SetFont("Helvetica", "", 10)
	d.text(xNum, y, "#")
	d.text(xName, y, "Nombre (jugador)")
	d.text(xCat, y, "Canasta")
	d.text(xTeam, y, "Equipo")
	y += 3.5
	d.Line(left, y, right, y)
	return y + 3.5
}

func (d *doc) group(y float64, g Group, start int) float64 {
	title := g.Category + ":"
	if len(g.Entries) == 0 {
		d.SetFont("Helvetica", "", 10)
		d.text(left, y, fmt.Sprintf("— Sin inscripciones en %s —", strings.ToLower(g.Category)))
		return y + 6
	}

	y = d.headers(y, title)
	for i, e := range g.Entries {
		if y+lineH+sepOff+sepGap > pageH-bottom {
			d.AddPage()
			y = d.headers(top, title)
		}

		d.SetFont("Helvetica", "", 10)
		d.text(xNum, y, fmt.Sprint(start+i))
		d.text(xName, y, d.fit(e.Player, xCat-xName-2))
		d.text(xCat, y, d.fit(e.Category, xTeam-xCat-2))
		d.text(xTeam, y, d.fit(e.Team, right-xTeam))

		y += lineH
		d.SetFont("Helvetica", "", 9)
		d.text(xName, y, "Email: "+d.fit(e.Email, xCat-xName-3))
		d.text(xCat, y, "Tel.: "+d.fit(e.Phone, xTeam-xCat-3))
		d.text(xTeam, y, "Tutor: "+d.fit(e.Guardian, right-xTeam))

		y += sepOff
		d.SetLineWidth(0.1)
		d.SetDashPattern([]float64{0.35, 0.7}, 0)
		d.Line(left, y, right, y)
		d.SetDashPattern([]float64{}, 0)
		d.SetLineWidth(0.2)
		y += sepGap
	}
	return y
}

var (
	weekdays = []string{"domingo", "lunes", "martes", "miércoles", "jueves", "viernes", "sábado"}
	months   = []string{"enero", "febrero", "marzo", "abril", "mayo", "junio", "julio",
		"agosto", "septiembre", "octubre", "noviembre", "diciembre"}
)

// DisplayDate renders an ISO date as DD/MM/YYYY; anything else is returned
// as is.
func DisplayDate(iso string) string {
	t, err := time.Parse("2006-01-02", iso)
	if err != nil {
		return orDash(iso)
	}
	return t.Format("02/01/2006")
}

// LongDate renders an ISO date as "Domingo, 05 octubre 2025".
func LongDate(iso string) string {
	t, err := time.Parse("2006-01-02", iso)
	if err != nil {
		return orDash(iso)
	}
	s := fmt.Sprintf("%s, %02d %s %d", weekdays[t.Weekday()], t.Day(), months[t.Month()-1], t.Year())
	return strings.ToUpper(s[:1]) + s[1:]
}

// ConfirmationFilename is justificante_<date>_<player>_<HHMM>.pdf.
func ConfirmationFilename(date, player, tm string) string {
	return fmt.Sprintf("justificante_%s_%s_%s.pdf", date, slug(player), compactTime(tm))
}

// RosterFilename is sesion_<date>_<HHMM>.pdf.
func RosterFilename(date, tm string) string {
	return fmt.Sprintf("sesion_%s_%s.pdf", date, compactTime(tm))
}

func compactTime(tm string) string {
	if t, ok := normalize.ParseTime(tm); ok {
		return strings.ReplaceAll(t, ":", "")
	}
	return "0000"
}

func slug(s string) string {
	var b strings.Builder
	for _, r := range normalize.NameKey(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), "_")
	if out == "" {
		out = "jugador"
	}
	return out
}

// FromRegistration fills a confirmation from a stored registration.
func FromRegistration(r models.Registration, waitlisted bool) ConfirmationData {
	return ConfirmationData{
		Date:       r.Date,
		Time:       r.Time,
		Waitlisted: waitlisted,
		Player:     r.Player,
		Category:   r.Category,
		Team:       r.Team,
		Guardian:   r.Guardian,
		Phone:      r.Phone,
		Email:      r.Email,
	}
}

// FromRoster lays out a session roster for printing.
func FromRoster(title string, r *booking.Roster) RosterData {
	out := RosterData{Title: title, Date: r.Date, Time: r.Time, Capacity: models.Capacity}
	for _, g := range r.Groups {
		if len(g.Confirmed) > 0 || isKnown(g.Category) {
			out.Counts = append(out.Counts, Count{Label: g.Category, N: len(g.Confirmed)})
		}
		out.Confirmed = append(out.Confirmed, Group{Category: g.Category, Entries: entries(g.Confirmed)})
		if len(g.Waitlist) > 0 {
			out.Waitlist = append(out.Waitlist, Group{Category: g.Category, Entries: entries(g.Waitlist)})
		}
	}
	return out
}

func isKnown(c string) bool {
	for _, k := range models.Categories {
		if string(k) == c {
			return true
		}
	}
	return false
}

func entries(regs []models.Registration) []Entry {
	out := make([]Entry, 0, len(regs))
	for _, r := range regs {
		out = append(out, Entry{
			Player:   r.Player,
			Category: r.Category,
			Team:     r.Team,
			Guardian: r.Guardian,
			Phone:    r.Phone,
			Email:    r.Email,
		})
	}
	return out
}
