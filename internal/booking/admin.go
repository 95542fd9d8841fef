package booking

import (
	"context"
	"fmt"
	"sort"

	"basket-booking/internal/logging"
	"basket-booking/internal/models"
	"basket-booking/internal/normalize"
)

func sessionKey(date, tm string) (string, string, error) {
	d, ok := normalize.ParseDate(date)
	if !ok {
		return "", "", fmt.Errorf("%w: date %q", ErrInvalidSession, date)
	}
	t, ok := normalize.ParseTime(tm)
	if !ok {
		return "", "", fmt.Errorf("%w: time %q", ErrInvalidSession, tm)
	}
	return d, t, nil
}

// fresh drops the cache first; admin screens act on current data.
func (s *Service) fresh(ctx context.Context) (*Snapshot, error) {
	s.loader.Invalidate()
	return s.loader.Snapshot(ctx)
}

// UpsertSession creates an all-OPEN session. An existing session is left
// untouched and created is false.
func (s *Service) UpsertSession(ctx context.Context, date, tm string) (created bool, err error) {
	date, tm, err = sessionKey(date, tm)
	if err != nil {
		return false, err
	}
	snap, err := s.fresh(ctx)
	if err != nil {
		return false, err
	}
	if _, ok := snap.session(date, tm); ok {
		return false, nil
	}
	_, err = s.store.UpsertSession(ctx, models.Session{
		Date: date, Time: tm,
		Global: models.StatusOpen, Mini: models.StatusOpen, Grande: models.StatusOpen,
	})
	s.loader.Invalidate()
	if err != nil {
		return false, fmt.Errorf("upsert session: %w", err)
	}
	logging.FromContext(ctx).Info("session created", "date", date, "time", tm)
	return true, nil
}

// SetStatus changes one flag of a session, creating the session row when
// there is none. Opening a category of a globally closed session opens the
// session too, otherwise the category would stay closed in effect.
func (s *Service) SetStatus(ctx context.Context, date, tm string, scope models.Scope, st models.Status) (SessionState, error) {
	date, tm, err := sessionKey(date, tm)
	if err != nil {
		return SessionState{}, err
	}
	if st != models.StatusOpen && st != models.StatusClosed {
		return SessionState{}, fmt.Errorf("%w: status %q", ErrInvalidScope, st)
	}
	snap, err := s.fresh(ctx)
	if err != nil {
		return SessionState{}, err
	}
	sess, ok := snap.session(date, tm)
	if !ok {
		sess = models.Session{
			Date: date, Time: tm,
			Global: models.StatusOpen, Mini: models.StatusOpen, Grande: models.StatusOpen,
		}
	}

	switch scope {
	case models.ScopeGlobal:
		sess.Global = st
	case models.ScopeMini:
		sess.Mini = st
	case models.ScopeGrande:
		sess.Grande = st
	default:
		return SessionState{}, fmt.Errorf("%w: %q", ErrInvalidScope, scope)
	}
	if scope != models.ScopeGlobal && st == models.StatusOpen && sess.Global == models.StatusClosed {
		sess.Global = models.StatusOpen
	}

	_, err = s.store.UpsertSession(ctx, sess)
	s.loader.Invalidate()
	if err != nil {
		return SessionState{}, fmt.Errorf("set status: %w", err)
	}
	logging.FromContext(ctx).Info("session status changed",
		"date", date, "time", tm, "scope", scope, "status", st)
	return SessionState{Global: sess.Global, Mini: sess.Mini, Grande: sess.Grande}, nil
}

func (s *Service) DeleteSession(ctx context.Context, date, tm string) error {
	date, tm, err := sessionKey(date, tm)
	if err != nil {
		return err
	}
	found, err := s.store.DeleteSession(ctx, date, tm)
	s.loader.Invalidate()
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if !found {
		return ErrSessionNotFound
	}
	logging.FromContext(ctx).Info("session deleted", "date", date, "time", tm)
	return nil
}

// RosterGroup is one category of a roster.
type RosterGroup struct {
	Category  string
	Confirmed []models.Registration
	Waitlist  []models.Registration
}

type Roster struct {
	Date   string
	Time   string
	State  SessionState
	Groups []RosterGroup
}

// rosterOrder is the print order of the known categories.
var rosterOrder = []models.Category{models.CategoryGrande, models.CategoryMini}

func (r *Roster) ConfirmedCount() int {
	n := 0
	for _, g := range r.Groups {
		n += len(g.Confirmed)
	}
	return n
}

func (r *Roster) WaitlistCount() int {
	n := 0
	for _, g := range r.Groups {
		n += len(g.Waitlist)
	}
	return n
}

// Group returns the group of a known category; it is empty when missing.
func (r *Roster) Group(c models.Category) RosterGroup {
	for _, g := range r.Groups {
		if g.Category == string(c) {
			return g
		}
	}
	return RosterGroup{Category: string(c)}
}

// Roster lists who is confirmed and waiting in a session, split by
// category. Rows whose category matches neither known family are grouped
// under their own label after the known ones.
func (s *Service) Roster(ctx context.Context, date, tm string) (*Roster, error) {
	date, tm, err := sessionKey(date, tm)
	if err != nil {
		return nil, err
	}
	snap, err := s.fresh(ctx)
	if err != nil {
		return nil, err
	}
	return buildRoster(snap, date, tm), nil
}

func buildRoster(snap *Snapshot, date, tm string) *Roster {
	r := &Roster{Date: date, Time: tm, State: snap.SessionStatus(date, tm)}
	idx := map[string]int{}
	for _, c := range rosterOrder {
		idx[string(c)] = len(r.Groups)
		r.Groups = append(r.Groups, RosterGroup{Category: string(c)})
	}
	group := func(reg models.Registration) *RosterGroup {
		for _, c := range rosterOrder {
			if MatchCategory(reg.Category, string(c)) {
				return &r.Groups[idx[string(c)]]
			}
		}
		label := reg.Category
		if label == "" {
			label = "—"
		}
		if _, ok := idx[label]; !ok {
			idx[label] = len(r.Groups)
			r.Groups = append(r.Groups, RosterGroup{Category: label})
		}
		return &r.Groups[idx[label]]
	}
	for _, reg := range snap.Registrations(models.ListConfirmed, date, tm) {
		g := group(reg)
		g.Confirmed = append(g.Confirmed, reg)
	}
	for _, reg := range snap.Registrations(models.ListWaitlist, date, tm) {
		g := group(reg)
		g.Waitlist = append(g.Waitlist, reg)
	}
	rest := r.Groups[len(rosterOrder):]
	sort.SliceStable(rest, func(i, j int) bool { return rest[i].Category < rest[j].Category })
	return r
}

// SessionsWithData lists every session that has a row or registrations,
// for the admin selector.
func (s *Service) SessionsWithData(ctx context.Context) ([]models.Session, error) {
	snap, err := s.fresh(ctx)
	if err != nil {
		return nil, err
	}
	return snap.KnownSessions(), nil
}
