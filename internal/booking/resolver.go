package booking

import (
	"sort"
	"strings"

	"basket-booking/internal/models"
	"basket-booking/internal/normalize"
)

// SessionState holds the stored status flags of one session.
type SessionState struct {
	Global models.Status
	Mini   models.Status
	Grande models.Status
}

var openState = SessionState{models.StatusOpen, models.StatusOpen, models.StatusOpen}

// Effective applies the global flag over the category flag.
func (st SessionState) Effective(c models.Category) models.Status {
	if st.Global == models.StatusClosed {
		return models.StatusClosed
	}
	if c == models.CategoryMini {
		return st.Mini
	}
	return st.Grande
}

func key(date, tm string) (string, string) {
	return normalize.Date(date), normalize.Time(tm)
}

// bookableKey reports whether (date, time) is a canonical session key.
// Rows with free-text dates or a missing time can never be booked.
func bookableKey(date, tm string) bool {
	d, ok := normalize.ParseDate(date)
	if !ok || d != date {
		return false
	}
	t, ok := normalize.ParseTime(tm)
	return ok && t == tm
}

// session returns the first row for (date, time).
func (s *Snapshot) session(date, tm string) (models.Session, bool) {
	date, tm = key(date, tm)
	for _, sess := range s.Sessions {
		if sess.Date == date && sess.Time == tm {
			return sess, true
		}
	}
	return models.Session{}, false
}

// SessionStatus returns the stored flags, or all OPEN for a session that has
// no row.
func (s *Snapshot) SessionStatus(date, tm string) SessionState {
	sess, ok := s.session(date, tm)
	if !ok {
		return openState
	}
	return SessionState{Global: sess.Global, Mini: sess.Mini, Grande: sess.Grande}
}

func (s *Snapshot) EffectiveStatus(date, tm string, c models.Category) models.Status {
	return s.SessionStatus(date, tm).Effective(c)
}

// MatchCategory reports whether a stored category label counts against
// target. Labels of the "mini" and "canasta" families match by prefix, so
// "Canasta Grande 2010" counts as "Canasta grande"; anything else needs a
// case-insensitive exact match.
func MatchCategory(stored, target string) bool {
	v := strings.ToLower(strings.TrimSpace(stored))
	o := strings.ToLower(strings.TrimSpace(target))
	switch {
	case strings.HasPrefix(o, "mini"):
		return strings.HasPrefix(v, "mini")
	case strings.HasPrefix(o, "canasta"):
		return strings.HasPrefix(v, "canasta")
	}
	return v == o
}

// Registrations returns the rows of list for the session, in sheet order.
func (s *Snapshot) Registrations(list models.List, date, tm string) []models.Registration {
	date, tm = key(date, tm)
	src := s.Confirmed
	if list == models.ListWaitlist {
		src = s.Waitlist
	}
	out := []models.Registration{}
	for _, r := range src {
		if r.Date == date && r.Time == tm {
			out = append(out, r)
		}
	}
	return out
}

// Occupancy counts confirmed registrations of category c in the session.
func (s *Snapshot) Occupancy(date, tm string, c models.Category) int {
	n := 0
	for _, r := range s.Registrations(models.ListConfirmed, date, tm) {
		if MatchCategory(r.Category, string(c)) {
			n++
		}
	}
	return n
}

// FreeSlots is 0 for a closed category, otherwise Capacity minus occupancy,
// never negative.
func (s *Snapshot) FreeSlots(date, tm string, c models.Category) int {
	if !s.EffectiveStatus(date, tm, c).Open() {
		return 0
	}
	return max(0, models.Capacity-s.Occupancy(date, tm, c))
}

// FindRegistration looks for player in the session, confirmed list first.
func (s *Snapshot) FindRegistration(date, tm, player string) (models.List, bool) {
	k := normalize.NameKey(player)
	if k == "" {
		return "", false
	}
	for _, list := range []models.List{models.ListConfirmed, models.ListWaitlist} {
		for _, r := range s.Registrations(list, date, tm) {
			if normalize.NameKey(r.Player) == k {
				return list, true
			}
		}
	}
	return "", false
}

type CategoryAvailability struct {
	Category models.Category `json:"category"`
	Status   models.Status   `json:"status"`
	Occupied int             `json:"occupied"`
	Waiting  int             `json:"waiting"`
	Free     int             `json:"free"`
}

type Availability struct {
	Date       string                 `json:"date"`
	Time       string                 `json:"time"`
	Global     models.Status          `json:"global"`
	Capacity   int                    `json:"capacity"`
	Categories []CategoryAvailability `json:"categories"`
}

// Level is "red" when no category has room, "yellow" when one of them is
// full and "green" otherwise.
func (a Availability) Level() string {
	full := 0
	for _, c := range a.Categories {
		if c.Free == 0 {
			full++
		}
	}
	switch {
	case full == len(a.Categories):
		return "red"
	case full > 0:
		return "yellow"
	}
	return "green"
}

// Bookable reports whether at least one category is open.
func (a Availability) Bookable() bool {
	for _, c := range a.Categories {
		if c.Status.Open() {
			return true
		}
	}
	return false
}

func (a Availability) For(c models.Category) CategoryAvailability {
	for _, ca := range a.Categories {
		if ca.Category == c {
			return ca
		}
	}
	return CategoryAvailability{Category: c}
}

func (s *Snapshot) Availability(date, tm string) Availability {
	date, tm = key(date, tm)
	st := s.SessionStatus(date, tm)
	a := Availability{Date: date, Time: tm, Global: st.Global, Capacity: models.Capacity}
	waiting := s.Registrations(models.ListWaitlist, date, tm)
	for _, c := range models.Categories {
		w := 0
		for _, r := range waiting {
			if MatchCategory(r.Category, string(c)) {
				w++
			}
		}
		a.Categories = append(a.Categories, CategoryAvailability{
			Category: c,
			Status:   st.Effective(c),
			Occupied: s.Occupancy(date, tm, c),
			Waiting:  w,
			Free:     s.FreeSlots(date, tm, c),
		})
	}
	return a
}

// UpcomingSessions returns sessions dated today or later, by date then
// time, one per (date, time). Rows without a valid date and time are left
// out.
func (s *Snapshot) UpcomingSessions(today string) []models.Session {
	seen := map[[2]string]bool{}
	out := []models.Session{}
	for _, sess := range s.Sessions {
		k := [2]string{sess.Date, sess.Time}
		if seen[k] || !bookableKey(sess.Date, sess.Time) || sess.Date < today {
			continue
		}
		seen[k] = true
		out = append(out, sess)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].Time < out[j].Time
	})
	return out
}

// KnownSessions returns every (date, time) that has a session row or at
// least one registration, sorted, one entry each. Sessions without a row
// come back all OPEN with Row 0.
func (s *Snapshot) KnownSessions() []models.Session {
	seen := map[[2]string]bool{}
	out := []models.Session{}
	add := func(sess models.Session) {
		k := [2]string{sess.Date, sess.Time}
		if seen[k] || !bookableKey(sess.Date, sess.Time) {
			return
		}
		seen[k] = true
		out = append(out, sess)
	}
	for _, sess := range s.Sessions {
		add(sess)
	}
	for _, list := range [][]models.Registration{s.Confirmed, s.Waitlist} {
		for _, r := range list {
			add(models.Session{Date: r.Date, Time: r.Time, Global: models.StatusOpen, Mini: models.StatusOpen, Grande: models.StatusOpen})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].Time < out[j].Time
	})
	return out
}
