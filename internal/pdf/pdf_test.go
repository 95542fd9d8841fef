package pdf

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"basket-booking/internal/booking"
	"basket-booking/internal/models"
)

func pages(b []byte) int {
	return strings.Count(string(b), "/Type /Page\n")
}

func TestConfirmation(t *testing.T) {
	for _, waitlisted := range []bool{false, true} {
		var buf bytes.Buffer
		err := Confirmation(&buf, ConfirmationData{
			Date: "2025-10-05", Time: "16:30", Waitlisted: waitlisted,
			Player: "Ana García", Category: "Minibasket", Team: "Alevín 1ºaño 2015",
			Guardian: "Eva Martínez", Phone: "612345678",
		})
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
		assert.Equal(t, 1, pages(buf.Bytes()))
	}
}

func TestRoster_Paginates(t *testing.T) {
	var entries []Entry
	for i := 0; i < 40; i++ {
		entries = append(entries, Entry{
			Player:   fmt.Sprintf("Jugador con un nombre bastante largo número %d", i),
			Category: "Canasta grande",
			Team:     "Cadete 1ºaño 2011",
			Guardian: "Tutor",
			Phone:    "600000000",
			Email:    "tutor@example.com",
		})
	}
	var buf bytes.Buffer
	err := Roster(&buf, RosterData{
		Date: "2025-10-05", Time: "16:30", Capacity: 4,
		Counts:    []Count{{"Mini", 0}, {"Grande", 40}},
		Confirmed: []Group{{Category: "Canasta grande", Entries: entries}, {Category: "Minibasket"}},
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
	assert.Greater(t, pages(buf.Bytes()), 1)
}

func TestRoster_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Roster(&buf, RosterData{Date: "2025-10-05", Time: "16:30", Capacity: 4}))
	assert.Equal(t, 1, pages(buf.Bytes()))
}

func TestDates(t *testing.T) {
	assert.Equal(t, "05/10/2025", DisplayDate("2025-10-05"))
	assert.Equal(t, "Domingo, 05 octubre 2025", LongDate("2025-10-05"))
	assert.Equal(t, "—", DisplayDate(""))
	assert.Equal(t, "pronto", LongDate("pronto"))
}

func TestFilenames(t *testing.T) {
	assert.Equal(t, "justificante_2025-10-05_ana_garcia_1630.pdf", ConfirmationFilename("2025-10-05", " Ana  García ", "16:30"))
	assert.Equal(t, "justificante_2025-10-05_jugador_0000.pdf", ConfirmationFilename("2025-10-05", "¿?", "—"))
	assert.Equal(t, "sesion_2025-10-05_0930.pdf", RosterFilename("2025-10-05", "9:30"))
}

func TestFromRoster(t *testing.T) {
	r := &booking.Roster{
		Date: "2025-10-05", Time: "16:30",
		Groups: []booking.RosterGroup{
			{Category: string(models.CategoryGrande), Confirmed: []models.Registration{{Player: "Ana"}}},
			{Category: string(models.CategoryMini), Waitlist: []models.Registration{{Player: "Leo"}}},
			{Category: "Benjamín", Confirmed: []models.Registration{{Player: "Sara"}}},
		},
	}
	d := FromRoster("Tecnificación", r)

	assert.Equal(t, []Count{
		{Label: string(models.CategoryGrande), N: 1},
		{Label: string(models.CategoryMini), N: 0},
		{Label: "Benjamín", N: 1},
	}, d.Counts)
	require.Len(t, d.Confirmed, 3)
	require.Len(t, d.Waitlist, 1)
	assert.Equal(t, "Leo", d.Waitlist[0].Entries[0].Player)

	var buf bytes.Buffer
	require.NoError(t, Roster(&buf, d))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
}
