// Package normalize converts the loosely typed cell values found in the
// booking spreadsheet into canonical forms: ISO dates (YYYY-MM-DD),
// zero-padded 24h times (HH:MM), comparable player names and session
// statuses.
//
// Every Parse* function reports whether it understood its input; the
// matching total function (Date, Time) never fails and leaves the choice of
// a default to the caller only through its documented fallback.
package normalize

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"basket-booking/internal/models"
)

// Placeholder is returned by Time for empty input. It never parses as a time.
const Placeholder = "—"

const isoLayout = "2006-01-02"

// sheetsEpoch is day zero of spreadsheet serial dates.
var sheetsEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// maxSerial is 9999-12-31 as a serial day number.
const maxSerial = 2958465

var (
	reISO     = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})(?:[T ].*)?$`)
	reDMY     = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})(?:\s.*)?$`)
	reSerial  = regexp.MustCompile(`^\d+(?:[.,]\d+)?$`)
	reHour    = regexp.MustCompile(`^(\d{1,2})$`)
	reClock   = regexp.MustCompile(`^(\d{1,2}):(\d{1,2})(?::\d{1,2})?$`)
	reCompact = regexp.MustCompile(`^(\d{1,2})(\d{2})$`)
	reInText  = regexp.MustCompile(`(\d{1,2}):(\d{2})`)
)

// ParseDate returns the ISO form of v. It accepts ISO strings (optionally
// followed by a time part), DD/MM/YYYY, time.Time values and spreadsheet
// serial day numbers, either numeric or as text.
func ParseDate(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case time.Time:
		if x.IsZero() {
			return "", false
		}
		return x.Format(isoLayout), true
	case *time.Time:
		if x == nil {
			return "", false
		}
		return ParseDate(*x)
	case int:
		return fromSerial(float64(x))
	case int64:
		return fromSerial(float64(x))
	case float64:
		return fromSerial(x)
	case float32:
		return fromSerial(float64(x))
	case string:
		return parseDateText(x)
	default:
		return parseDateText(fmt.Sprint(x))
	}
}

// Date is the total form of ParseDate: unparseable input comes back as
// trimmed text, unchanged otherwise.
func Date(v any) string {
	if d, ok := ParseDate(v); ok {
		return d
	}
	return text(v)
}

func parseDateText(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	if m := reISO.FindStringSubmatch(s); m != nil {
		return ymd(m[1], m[2], m[3])
	}
	if m := reDMY.FindStringSubmatch(s); m != nil {
		return ymd(m[3], m[2], m[1])
	}
	if reSerial.MatchString(s) {
		f, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
		if err != nil {
			return "", false
		}
		return fromSerial(f)
	}
	return "", false
}

func ymd(ys, ms, ds string) (string, bool) {
	y, _ := strconv.Atoi(ys)
	m, _ := strconv.Atoi(ms)
	d, _ := strconv.Atoi(ds)
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if t.Year() != y || int(t.Month()) != m || t.Day() != d {
		return "", false
	}
	return t.Format(isoLayout), true
}

func fromSerial(f float64) (string, bool) {
	if math.IsNaN(f) || f < 1 || f > maxSerial {
		return "", false
	}
	return sheetsEpoch.AddDate(0, 0, int(f)).Format(isoLayout), true
}

// ParseTime returns the HH:MM form of v. It accepts H, H:M, HH:MM,
// HH:MM:SS (seconds dropped), HMM/HHMM digit runs, free text carrying an
// embedded H:MM, time.Time values and spreadsheet day fractions.
// Hours are clamped to 0-23 and minutes to 0-59.
func ParseTime(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case time.Time:
		if x.IsZero() {
			return "", false
		}
		return x.Format("15:04"), true
	case float64:
		if x >= 0 && x < 1 {
			mins := int(math.Round(x * 24 * 60))
			return clock(mins/60, mins%60), true
		}
		return parseTimeText(strconv.FormatFloat(x, 'f', -1, 64))
	case int:
		return parseTimeText(strconv.Itoa(x))
	case string:
		return parseTimeText(x)
	default:
		return parseTimeText(fmt.Sprint(x))
	}
}

// Time is the total form of ParseTime. Empty input yields Placeholder;
// other unparseable input comes back as trimmed text.
func Time(v any) string {
	s := text(v)
	if s == "" || s == Placeholder {
		return Placeholder
	}
	if t, ok := ParseTime(v); ok {
		return t
	}
	return s
}

func parseTimeText(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	if m := reHour.FindStringSubmatch(s); m != nil {
		return clock(atoi(m[1]), 0), true
	}
	if m := reClock.FindStringSubmatch(s); m != nil {
		return clock(atoi(m[1]), atoi(m[2])), true
	}
	if m := reCompact.FindStringSubmatch(s); m != nil {
		return clock(atoi(m[1]), atoi(m[2])), true
	}
	if m := reInText.FindStringSubmatch(s); m != nil {
		return clock(atoi(m[1]), atoi(m[2])), true
	}
	return "", false
}

func clock(h, m int) string {
	h = min(max(h, 0), 23)
	m = min(max(m, 0), 59)
	return fmt.Sprintf("%02d:%02d", h, m)
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// CleanName collapses whitespace runs and trims. It is the display form.
func CleanName(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// NameKey is the comparison form of a player name: CleanName, case folded,
// diacritics removed. "  Ana   GARCÍA " and "ana garcia" share a key.
func NameKey(s string) string {
	// Casers are stateful; one per call.
	s = cases.Fold().String(CleanName(s))
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range norm.NFD.String(s) {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return norm.NFC.String(b.String())
}

// Status reads an open/closed flag. Blank and unknown values are OPEN.
func Status(s string) models.Status {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CLOSED", "CERRADA", "CERRADO", "NO", "FALSE":
		return models.StatusClosed
	default:
		return models.StatusOpen
	}
}

func text(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case []byte:
		return strings.TrimSpace(string(x))
	default:
		return strings.TrimSpace(fmt.Sprint(x))
	}
}
