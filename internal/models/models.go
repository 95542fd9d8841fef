package models

import "strings"

// Capacity is the number of confirmed places per category and session.
const Capacity = 4

type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusClosed Status = "CLOSED"
)

func (s Status) Open() bool { return s != StatusClosed }

type Category string

const (
	CategoryMini   Category = "Minibasket"
	CategoryGrande Category = "Canasta grande"
)

// Categories in display order.
var Categories = []Category{CategoryMini, CategoryGrande}

// ParseCategory maps a submitted label to one of the two known categories.
func ParseCategory(s string) (Category, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case strings.HasPrefix(s, "mini"):
		return CategoryMini, true
	case strings.HasPrefix(s, "canasta"):
		return CategoryGrande, true
	}
	return "", false
}

// Scope selects which status flag of a session an admin action touches.
type Scope string

const (
	ScopeGlobal Scope = "global"
	ScopeMini   Scope = "mini"
	ScopeGrande Scope = "grande"
)

func ScopeFor(c Category) Scope {
	if c == CategoryMini {
		return ScopeMini
	}
	return ScopeGrande
}

type Session struct {
	Date   string // YYYY-MM-DD
	Time   string // HH:MM
	Global Status
	Mini   Status
	Grande Status
	Row    int // 1-indexed sheet row, 0 when not stored
}

// Status returns the stored per-category flag, ignoring the global one.
func (s Session) Status(c Category) Status {
	if c == CategoryMini {
		return s.Mini
	}
	return s.Grande
}

// List identifies one of the two registration tables.
type List string

const (
	ListConfirmed List = "inscripciones"
	ListWaitlist  List = "waitlist"
)

type Registration struct {
	Timestamp string
	Date      string
	Time      string
	Player    string
	Category  string
	Team      string
	Guardian  string
	Phone     string
	Email     string
	Row       int
}

type Family struct {
	Code      string
	Guardian  string
	Phone     string
	Email     string
	UpdatedAt string
	Row       int
}

type Child struct {
	Code      string
	Player    string
	Team      string
	Category  string
	UpdatedAt string
	Row       int
}

// OtherTeam is the option that asks for a free-text team label.
const OtherTeam = "Otro"

// TeamOptions are the team / age-group labels offered by the booking form.
var TeamOptions = []string{
	"Escuela 1ºaño 2019",
	"Escuela 2ºaño 2018",
	"Benjamín 1ºaño 2017",
	"Benjamín 2ºaño 2016",
	"Alevín 1ºaño 2015",
	"Alevín 2ºaño 2014",
	"Infantil 1ºaño 2013",
	"Infantil 2ºaño 2012",
	"Cadete 1ºaño 2011",
	"Cadete 2ºaño 2010",
	"Junior 1ºaño 2009",
	"Junior 2ºaño 2008",
	"Senior",
	OtherTeam,
}
