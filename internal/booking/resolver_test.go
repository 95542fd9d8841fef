package booking

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"basket-booking/internal/models"
	"basket-booking/internal/normalize"
	"basket-booking/internal/sheets"
)

func reg(date, tm, player, category string) models.Registration {
	return models.Registration{Date: date, Time: tm, Player: player, Category: category}
}

func TestMatchCategory(t *testing.T) {
	tests := []struct {
		stored, target string
		want           bool
	}{
		{"Minibasket", "Minibasket", true},
		{"mini basket 2017", "Minibasket", true},
		{"Canasta Grande 2010", "Canasta grande", true},
		{"canasta", "Canasta grande", true},
		{"Minibasket", "Canasta grande", false},
		{"", "Minibasket", false},
		{"Voley", "voley ", true},
		{"Voley playa", "Voley", false},
		{"Minibasket", "Voley", false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%s", tt.stored, tt.target), func(t *testing.T) {
			assert.Equal(t, tt.want, MatchCategory(tt.stored, tt.target))
		})
	}
}

func TestEffectiveStatus_GlobalDominates(t *testing.T) {
	statuses := []models.Status{models.StatusOpen, models.StatusClosed}
	for _, mini := range statuses {
		for _, grande := range statuses {
			snap := &Snapshot{Sessions: []models.Session{{
				Date: day, Time: hour, Global: models.StatusClosed, Mini: mini, Grande: grande,
			}}}
			for _, c := range models.Categories {
				assert.Equal(t, models.StatusClosed, snap.EffectiveStatus(day, hour, c))
				assert.Equal(t, 0, snap.FreeSlots(day, hour, c))
			}
		}
	}
}

func TestEffectiveStatus_CategoryFlagWhenGlobalOpen(t *testing.T) {
	snap := &Snapshot{Sessions: []models.Session{{
		Date: day, Time: hour, Global: models.StatusOpen, Mini: models.StatusClosed, Grande: models.StatusOpen,
	}}}
	assert.Equal(t, models.StatusClosed, snap.EffectiveStatus(day, hour, models.CategoryMini))
	assert.Equal(t, models.StatusOpen, snap.EffectiveStatus(day, hour, models.CategoryGrande))
}

func TestSessionStatus_MissingRowIsOpenAndInputIsNormalized(t *testing.T) {
	snap := &Snapshot{Sessions: []models.Session{{
		Date: day, Time: hour, Global: models.StatusClosed, Mini: models.StatusOpen, Grande: models.StatusOpen,
	}}}
	assert.Equal(t, openState, snap.SessionStatus("2025-10-06", hour))
	assert.Equal(t, models.StatusClosed, snap.SessionStatus("05/10/2025", "1630").Global)
}

func TestFreeSlots_Clamp(t *testing.T) {
	for n := 0; n <= 7; n++ {
		snap := &Snapshot{}
		for i := 0; i < n; i++ {
			snap.Confirmed = append(snap.Confirmed, reg(day, hour, fmt.Sprint("p", i), "Minibasket"))
		}
		free := snap.FreeSlots(day, hour, models.CategoryMini)
		assert.Equal(t, max(0, models.Capacity-n), free, "n=%d", n)
		assert.GreaterOrEqual(t, free, 0)
		assert.LessOrEqual(t, free, models.Capacity)
		assert.Equal(t, models.Capacity, snap.FreeSlots(day, hour, models.CategoryGrande))
	}
}

func TestOccupancy_ExactSessionAndPrefixCategory(t *testing.T) {
	snap := &Snapshot{Confirmed: []models.Registration{
		reg(day, hour, "a", "Canasta Grande 2010"),
		reg(day, hour, "b", "canasta grande"),
		reg(day, "17:30", "c", "Canasta grande"),
		reg("2025-10-06", hour, "d", "Canasta grande"),
		reg(day, hour, "e", "Minibasket"),
	}}
	assert.Equal(t, 2, snap.Occupancy(day, hour, models.CategoryGrande))
	assert.Equal(t, 1, snap.Occupancy(day, hour, models.CategoryMini))
}

func TestFindRegistration_ConfirmedWins(t *testing.T) {
	snap := &Snapshot{
		Confirmed: []models.Registration{reg(day, hour, "Ana García", "Minibasket")},
		Waitlist:  []models.Registration{reg(day, hour, "ana garcia", "Minibasket"), reg(day, hour, "Luis", "Minibasket")},
	}
	list, ok := snap.FindRegistration(day, hour, "ANA  GARCÍA")
	assert.True(t, ok)
	assert.Equal(t, models.ListConfirmed, list)

	list, ok = snap.FindRegistration(day, hour, "luis")
	assert.True(t, ok)
	assert.Equal(t, models.ListWaitlist, list)

	_, ok = snap.FindRegistration("2025-10-06", hour, "Luis")
	assert.False(t, ok, "other session")
	_, ok = snap.FindRegistration(day, hour, "  ")
	assert.False(t, ok)
}

func TestAvailability(t *testing.T) {
	snap := &Snapshot{
		Sessions: []models.Session{{Date: day, Time: hour, Global: models.StatusOpen, Mini: models.StatusOpen, Grande: models.StatusClosed}},
		Waitlist: []models.Registration{reg(day, hour, "w", "Minibasket")},
	}
	for i := 0; i < 4; i++ {
		snap.Confirmed = append(snap.Confirmed, reg(day, hour, fmt.Sprint("p", i), "Minibasket"))
	}
	a := snap.Availability(day, hour)
	assert.Equal(t, "red", a.Level())
	assert.True(t, a.Bookable(), "mini is full but open, so it takes waitlist entries")
	assert.Equal(t, CategoryAvailability{
		Category: models.CategoryMini, Status: models.StatusOpen, Occupied: 4, Waiting: 1, Free: 0,
	}, a.For(models.CategoryMini))
	assert.Equal(t, models.StatusClosed, a.For(models.CategoryGrande).Status)

	assert.Equal(t, "green", (&Snapshot{}).Availability(day, hour).Level())

	half := &Snapshot{Sessions: []models.Session{{Date: day, Time: hour, Global: models.StatusOpen, Mini: models.StatusClosed, Grande: models.StatusOpen}}}
	assert.Equal(t, "yellow", half.Availability(day, hour).Level())
}

func TestUpcomingSessions(t *testing.T) {
	snap := &Snapshot{Sessions: []models.Session{
		{Date: "2025-10-12", Time: "10:00"},
		{Date: "2025-09-28", Time: "10:00"},
		{Date: "2025-10-05", Time: "18:00"},
		{Date: "2025-10-05", Time: "16:30"},
		{Date: "2025-10-05", Time: "16:30", Global: models.StatusClosed},
	}}
	got := snap.UpcomingSessions("2025-10-05")
	require.Len(t, got, 3)
	assert.Equal(t, []string{"16:30", "18:00", "10:00"}, []string{got[0].Time, got[1].Time, got[2].Time})
	assert.Equal(t, models.Status(""), got[0].Global, "first row of a duplicated session wins")
}

func TestUpcomingSessions_SkipsMalformedRows(t *testing.T) {
	snap := &Snapshot{Sessions: []models.Session{
		{Date: "mañana", Time: "16:30"},
		{Date: "2025-10-05", Time: normalize.Placeholder},
		{Date: "2025-10-05", Time: "por la tarde"},
		{Date: "2025-10-05", Time: "16:30"},
	}}
	got := snap.UpcomingSessions("2025-10-01")
	require.Len(t, got, 1)
	assert.Equal(t, "2025-10-05", got[0].Date)
	assert.Equal(t, "16:30", got[0].Time)

	assert.Len(t, snap.KnownSessions(), 1)
}

func TestKnownSessions_IncludesRegistrationOnlySessions(t *testing.T) {
	snap := &Snapshot{
		Sessions:  []models.Session{{Date: "2025-10-12", Time: "10:00", Global: models.StatusClosed}},
		Confirmed: []models.Registration{reg(day, hour, "a", "Minibasket")},
		Waitlist:  []models.Registration{reg(day, hour, "b", "Minibasket")},
	}
	got := snap.KnownSessions()
	require.Len(t, got, 2)
	assert.Equal(t, day, got[0].Date)
	assert.Equal(t, models.StatusOpen, got[0].Global)
	assert.Equal(t, models.StatusClosed, got[1].Global)
}

func TestSetStatus_ReopeningCategoryReopensSession(t *testing.T) {
	f := newFixture(t)
	f.session(day, hour, "CERRADA", "CERRADA", "ABIERTA")
	ctx := context.Background()

	st, err := f.svc.SetStatus(ctx, day, hour, models.ScopeMini, models.StatusOpen)
	require.NoError(t, err)
	assert.Equal(t, SessionState{models.StatusOpen, models.StatusOpen, models.StatusOpen}, st)
	assert.Equal(t, []string{day, hour, "ABIERTA", "ABIERTA", "ABIERTA"}, f.mem.Rows(sheets.SheetSessions)[1])

	// closing a category never touches the global flag
	st, err = f.svc.SetStatus(ctx, day, hour, models.ScopeGrande, models.StatusClosed)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOpen, st.Global)

	_, err = f.svc.SetStatus(ctx, day, hour, models.Scope("weekend"), models.StatusOpen)
	assert.ErrorIs(t, err, ErrInvalidScope)
	_, err = f.svc.SetStatus(ctx, "mañana", hour, models.ScopeMini, models.StatusOpen)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestSetStatus_CreatesMissingSession(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.SetStatus(context.Background(), day, "1630", models.ScopeGrande, models.StatusClosed)
	require.NoError(t, err)
	assert.Equal(t, []string{day, hour, "ABIERTA", "ABIERTA", "CERRADA"}, f.mem.Rows(sheets.SheetSessions)[1])
}

func TestUpsertAndDeleteSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.UpsertSession(ctx, "05/10/2025", "16:30")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = f.svc.UpsertSession(ctx, day, hour)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, 1, dataRows(f.mem, sheets.SheetSessions))

	_, err = f.svc.UpsertSession(ctx, day, "tarde")
	assert.ErrorIs(t, err, ErrInvalidSession)

	require.NoError(t, f.svc.DeleteSession(ctx, day, hour))
	assert.Equal(t, 0, dataRows(f.mem, sheets.SheetSessions))
	assert.ErrorIs(t, f.svc.DeleteSession(ctx, day, hour), ErrSessionNotFound)
}

func TestRoster_SplitByCategory(t *testing.T) {
	f := newFixture(t)
	f.session(day, hour, "ABIERTA", "ABIERTA", "ABIERTA")
	f.confirmed("Mini", "Minibasket", 2)
	f.confirmed("Grande", "Canasta grande 2010", 1)
	f.confirmed("Raro", "Voley", 1)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, req("Ana García", "Canasta grande"))
	require.NoError(t, err)

	r, err := f.svc.Roster(ctx, day, hour)
	require.NoError(t, err)

	require.Len(t, r.Groups, 3)
	assert.Equal(t, "Canasta grande", r.Groups[0].Category)
	assert.Equal(t, "Minibasket", r.Groups[1].Category)
	assert.Equal(t, "Voley", r.Groups[2].Category)
	assert.Len(t, r.Group(models.CategoryGrande).Confirmed, 2)
	assert.Len(t, r.Group(models.CategoryMini).Confirmed, 2)
	assert.Equal(t, 5, r.ConfirmedCount())
	assert.Equal(t, 0, r.WaitlistCount())

	sessions, err := f.svc.SessionsWithData(ctx)
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}

func TestFamilyCode(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		code, err := NewFamilyCode()
		require.NoError(t, err)
		assert.True(t, ValidFamilyCode(code), code)
		assert.Len(t, code, 12)
		assert.NotContains(t, code[4:], "O")
		assert.NotContains(t, code[4:], "I")
		seen[code] = true
	}
	assert.Len(t, seen, 50)

	assert.True(t, ValidFamilyCode(" cbc-7f3kq9p2 "))
	assert.False(t, ValidFamilyCode("CBC-7F3KQ9PO"))
	assert.False(t, ValidFamilyCode("XYZ-7F3KQ9P2"))
}

func TestFamilies_LookupAndUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	fams := f.svc.Families()

	_, _, err := fams.Lookup(ctx, "CBC-7F3KQ9P2")
	assert.ErrorIs(t, err, ErrFamilyNotFound)

	code, err := fams.Save(ctx, "cbc-7f3kq9p2", reg(day, hour, "Ana García", "Minibasket"))
	require.NoError(t, err)
	assert.Equal(t, "CBC-7F3KQ9P2", code)

	fam, kids, err := fams.Lookup(ctx, "cbc-7f3kq9p2")
	require.NoError(t, err)
	assert.Equal(t, code, fam.Code)
	require.Len(t, kids, 1)

	_, err = fams.Save(ctx, code, reg(day, hour, "Pablo", "Canasta grande"))
	require.NoError(t, err)
	_, kids, err = fams.Lookup(ctx, code)
	require.NoError(t, err)
	assert.Len(t, kids, 2, "cache invalidated by Save")
}
