package sheets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"basket-booking/internal/models"
	"basket-booking/internal/normalize"
)

// Store is the typed view of the booking spreadsheet. Raw rows stay inside
// this package.
type Store struct {
	t Table
}

func NewStore(t Table) *Store {
	return &Store{t: t}
}

// Provision creates missing tabs and upgrades legacy header rows.
func (s *Store) Provision(ctx context.Context) error {
	for _, tab := range Schema {
		if err := s.t.EnsureSheet(ctx, tab.Sheet, tab.Headers); err != nil {
			return fmt.Errorf("provision %s: %w", tab.Sheet, err)
		}
	}
	return nil
}

// readAll treats a tab that does not exist yet as empty.
func (s *Store) readAll(ctx context.Context, sheet string) ([][]string, error) {
	rows, err := s.t.ReadAll(ctx, sheet)
	if errors.Is(err, ErrSheetNotFound) {
		return nil, nil
	}
	return rows, err
}

// appendRow provisions the tab on first write.
func (s *Store) appendRow(ctx context.Context, sheet string, headers, values []string) error {
	err := s.t.AppendRow(ctx, sheet, values)
	if !errors.Is(err, ErrSheetNotFound) {
		return err
	}
	if err := s.t.EnsureSheet(ctx, sheet, headers); err != nil {
		return err
	}
	return s.t.AppendRow(ctx, sheet, values)
}

// ---------- Sessions ----------

func (s *Store) ListSessions(ctx context.Context) ([]models.Session, error) {
	rows, err := s.readAll(ctx, SheetSessions)
	if err != nil {
		return nil, err
	}
	return decodeSessions(rows), nil
}

// UpsertSession writes the three status flags of the (Date, Time) session,
// appending a row when the session is new. created reports which one
// happened.
func (s *Store) UpsertSession(ctx context.Context, sess models.Session) (created bool, err error) {
	rows, err := s.readAll(ctx, SheetSessions)
	if err != nil {
		return false, err
	}
	h := headerOf(rows, SessionHeaders)
	fields := sessionFields(sess)
	for _, cur := range decodeSessions(rows) {
		if cur.Date == sess.Date && cur.Time == sess.Time {
			values := h.merge(rows[cur.Row-1], fields)
			return false, s.t.UpdateRow(ctx, SheetSessions, cur.Row, values)
		}
	}
	return true, s.appendRow(ctx, SheetSessions, SessionHeaders, h.merge(nil, fields))
}

// DeleteSession removes every row of the (date, time) session, bottom-up
// so row numbers stay valid. It reports whether any row matched.
func (s *Store) DeleteSession(ctx context.Context, date, tm string) (bool, error) {
	rows, err := s.readAll(ctx, SheetSessions)
	if err != nil {
		return false, err
	}
	sessions := decodeSessions(rows)
	found := false
	for i := len(sessions) - 1; i >= 0; i-- {
		if sessions[i].Date != date || sessions[i].Time != tm {
			continue
		}
		if err := s.t.DeleteRow(ctx, SheetSessions, sessions[i].Row); err != nil {
			return found, err
		}
		found = true
	}
	return found, nil
}

// ---------- Registrations ----------

func (s *Store) ListRegistrations(ctx context.Context, list models.List) ([]models.Registration, error) {
	rows, err := s.readAll(ctx, SheetFor(list))
	if err != nil {
		return nil, err
	}
	return decodeRegistrations(rows), nil
}

// AppendRegistration lays the row out by the tab's current header so
// reordered or inserted columns keep decoding to the right fields.
func (s *Store) AppendRegistration(ctx context.Context, list models.List, r models.Registration) error {
	sheet := SheetFor(list)
	rows, err := s.readAll(ctx, sheet)
	if err != nil {
		return err
	}
	h := headerOf(rows, RegistrationHeaders)
	return s.appendRow(ctx, sheet, RegistrationHeaders, h.merge(nil, registrationFields(r)))
}

// ---------- Families ----------

func (s *Store) ListFamilies(ctx context.Context) ([]models.Family, error) {
	rows, err := s.readAll(ctx, SheetFamilies)
	if err != nil {
		return nil, err
	}
	return decodeFamilies(rows), nil
}

func (s *Store) ListChildren(ctx context.Context) ([]models.Child, error) {
	rows, err := s.readAll(ctx, SheetChildren)
	if err != nil {
		return nil, err
	}
	return decodeChildren(rows), nil
}

// UpsertFamily replaces the contact details stored under f.Code.
func (s *Store) UpsertFamily(ctx context.Context, f models.Family) error {
	rows, err := s.readAll(ctx, SheetFamilies)
	if err != nil {
		return err
	}
	h := headerOf(rows, FamilyHeaders)
	f.Code = strings.ToUpper(strings.TrimSpace(f.Code))
	fields := familyFields(f)
	for _, cur := range decodeFamilies(rows) {
		if cur.Code == f.Code {
			return s.t.UpdateRow(ctx, SheetFamilies, cur.Row, h.merge(rows[cur.Row-1], fields))
		}
	}
	return s.appendRow(ctx, SheetFamilies, FamilyHeaders, h.merge(nil, fields))
}

// UpsertChild replaces the profile of c.Player within family c.Code.
// Players are matched by normalized name.
func (s *Store) UpsertChild(ctx context.Context, c models.Child) error {
	rows, err := s.readAll(ctx, SheetChildren)
	if err != nil {
		return err
	}
	h := headerOf(rows, ChildHeaders)
	c.Code = strings.ToUpper(strings.TrimSpace(c.Code))
	c.Player = normalize.CleanName(c.Player)
	fields := childFields(c)
	key := normalize.NameKey(c.Player)
	for _, cur := range decodeChildren(rows) {
		if cur.Code == c.Code && normalize.NameKey(cur.Player) == key {
			return s.t.UpdateRow(ctx, SheetChildren, cur.Row, h.merge(rows[cur.Row-1], fields))
		}
	}
	return s.appendRow(ctx, SheetChildren, ChildHeaders, h.merge(nil, fields))
}
