package sheets

import (
	"strings"

	"basket-booking/internal/models"
	"basket-booking/internal/normalize"
)

const (
	SheetSessions  = "sessions"
	SheetConfirmed = "inscripciones"
	SheetWaitlist  = "waitlist"
	SheetFamilies  = "familias"
	SheetChildren  = "hijos"
)

var (
	SessionHeaders      = []string{"fecha_iso", "hora", "estado", "estado_mini", "estado_grande"}
	RegistrationHeaders = []string{"timestamp", "fecha_iso", "hora", "nombre", "canasta", "equipo", "tutor", "telefono", "email"}
	FamilyHeaders       = []string{"codigo", "tutor", "telefono", "email", "updated_at"}
	ChildHeaders        = []string{"codigo", "jugador", "equipo", "canasta", "updated_at"}
)

// Schema lists every tab with its expected header row.
var Schema = []struct {
	Sheet   string
	Headers []string
}{
	{SheetSessions, SessionHeaders},
	{SheetConfirmed, RegistrationHeaders},
	{SheetWaitlist, RegistrationHeaders},
	{SheetFamilies, FamilyHeaders},
	{SheetChildren, ChildHeaders},
}

// SheetFor maps a registration list to its tab.
func SheetFor(l models.List) string {
	if l == models.ListWaitlist {
		return SheetWaitlist
	}
	return SheetConfirmed
}

// header resolves column names to positions. Lookups are case-insensitive.
type header struct {
	names []string
	idx   map[string]int
}

func headerOf(rows [][]string, fallback []string) header {
	var names []string
	if len(rows) > 0 && !blank(rows[0]) {
		names = rows[0]
	} else {
		names = fallback
	}
	h := header{names: names, idx: make(map[string]int, len(names))}
	for i, n := range names {
		key := strings.ToLower(strings.TrimSpace(n))
		if _, dup := h.idx[key]; !dup && key != "" {
			h.idx[key] = i
		}
	}
	return h
}

// get returns the trimmed cell under name, or "" when the column or the cell
// is missing.
func (h header) get(row []string, name string) string {
	i, ok := h.idx[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// merge lays fields out in this header's column order on top of existing,
// keeping cells of columns it does not own. Fields without a column are
// dropped.
func (h header) merge(existing []string, fields map[string]string) []string {
	out := make([]string, max(len(h.names), len(existing)))
	copy(out, existing)
	for name, v := range fields {
		if i, ok := h.idx[name]; ok {
			out[i] = v
		}
	}
	return out
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// StatusWord is how a status is written to the sheet.
func StatusWord(s models.Status) string {
	if s == models.StatusClosed {
		return "CERRADA"
	}
	return "ABIERTA"
}

// ---------- decoders ----------

func decodeSessions(rows [][]string) []models.Session {
	h := headerOf(rows, SessionHeaders)
	out := []models.Session{}
	for i := 1; i < len(rows); i++ {
		row := rows[i]
		if blank(row) {
			continue
		}
		date, tm := h.get(row, "fecha_iso"), h.get(row, "hora")
		if date == "" && tm == "" {
			continue
		}
		out = append(out, models.Session{
			Date:   normalize.Date(date),
			Time:   normalize.Time(tm),
			Global: normalize.Status(h.get(row, "estado")),
			Mini:   normalize.Status(h.get(row, "estado_mini")),
			Grande: normalize.Status(h.get(row, "estado_grande")),
			Row:    i + 1,
		})
	}
	return out
}

func decodeRegistrations(rows [][]string) []models.Registration {
	h := headerOf(rows, RegistrationHeaders)
	out := []models.Registration{}
	for i := 1; i < len(rows); i++ {
		row := rows[i]
		if blank(row) {
			continue
		}
		out = append(out, models.Registration{
			Timestamp: h.get(row, "timestamp"),
			Date:      normalize.Date(h.get(row, "fecha_iso")),
			Time:      normalize.Time(h.get(row, "hora")),
			Player:    normalize.CleanName(h.get(row, "nombre")),
			Category:  h.get(row, "canasta"),
			Team:      h.get(row, "equipo"),
			Guardian:  h.get(row, "tutor"),
			Phone:     h.get(row, "telefono"),
			Email:     h.get(row, "email"),
			Row:       i + 1,
		})
	}
	return out
}

func decodeFamilies(rows [][]string) []models.Family {
	h := headerOf(rows, FamilyHeaders)
	out := []models.Family{}
	for i := 1; i < len(rows); i++ {
		row := rows[i]
		code := h.get(row, "codigo")
		if code == "" {
			continue
		}
		out = append(out, models.Family{
			Code:      strings.ToUpper(code),
			Guardian:  h.get(row, "tutor"),
			Phone:     h.get(row, "telefono"),
			Email:     h.get(row, "email"),
			UpdatedAt: h.get(row, "updated_at"),
			Row:       i + 1,
		})
	}
	return out
}

func decodeChildren(rows [][]string) []models.Child {
	h := headerOf(rows, ChildHeaders)
	out := []models.Child{}
	for i := 1; i < len(rows); i++ {
		row := rows[i]
		code, player := h.get(row, "codigo"), h.get(row, "jugador")
		if code == "" || player == "" {
			continue
		}
		out = append(out, models.Child{
			Code:      strings.ToUpper(code),
			Player:    normalize.CleanName(player),
			Team:      h.get(row, "equipo"),
			Category:  h.get(row, "canasta"),
			UpdatedAt: h.get(row, "updated_at"),
			Row:       i + 1,
		})
	}
	return out
}

// ---------- encoders ----------

func sessionFields(s models.Session) map[string]string {
	return map[string]string{
		"fecha_iso":     s.Date,
		"hora":          s.Time,
		"estado":        StatusWord(s.Global),
		"estado_mini":   StatusWord(s.Mini),
		"estado_grande": StatusWord(s.Grande),
	}
}

func registrationFields(r models.Registration) map[string]string {
	return map[string]string{
		"timestamp": r.Timestamp,
		"fecha_iso": r.Date,
		"hora":      r.Time,
		"nombre":    r.Player,
		"canasta":   r.Category,
		"equipo":    r.Team,
		"tutor":     r.Guardian,
		"telefono":  r.Phone,
		"email":     r.Email,
	}
}

func familyFields(f models.Family) map[string]string {
	return map[string]string{
		"codigo":     f.Code,
		"tutor":      f.Guardian,
		"telefono":   f.Phone,
		"email":      f.Email,
		"updated_at": f.UpdatedAt,
	}
}

func childFields(c models.Child) map[string]string {
	return map[string]string{
		"codigo":     c.Code,
		"jugador":    c.Player,
		"equipo":     c.Team,
		"canasta":    c.Category,
		"updated_at": c.UpdatedAt,
	}
}
