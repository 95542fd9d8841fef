package booking

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"basket-booking/internal/logging"
	"basket-booking/internal/models"
	"basket-booking/internal/normalize"
	"basket-booking/internal/util"
)

type Outcome string

const (
	OutcomeRejected            Outcome = "REJECTED"
	OutcomeRejectedClosed      Outcome = "REJECTED_CLOSED"
	OutcomeDuplicateConfirmed  Outcome = "DUPLICATE_CONFIRMED"
	OutcomeDuplicateWaitlisted Outcome = "DUPLICATE_WAITLISTED"
	OutcomeConfirmed           Outcome = "CONFIRMED"
	OutcomeWaitlisted          Outcome = "WAITLISTED"
)

// Accepted is true for the two outcomes that wrote a row.
func (o Outcome) Accepted() bool {
	return o == OutcomeConfirmed || o == OutcomeWaitlisted
}

// Request is one registration attempt as submitted. Form field names are
// used as keys in Result.Errors.
type Request struct {
	Date      string `form:"date" validate:"required,isodate"`
	Time      string `form:"time" validate:"required,clock"`
	Player    string `form:"player" validate:"required,max=80"`
	Category  string `form:"category" validate:"required,category"`
	Team      string `form:"team" validate:"required,max=80"`
	TeamOther string `form:"team_other" validate:"-"`
	Guardian  string `form:"guardian" validate:"max=80"`
	Phone     string `form:"phone" validate:"required,digits,max=9"`
	Email     string `form:"email" validate:"omitempty,email,max=120"`

	SaveFamily bool   `form:"save_family" validate:"-"`
	FamilyCode string `form:"family_code" validate:"omitempty,max=20"`
}

// normalized trims every field and puts date, time, name and phone in
// their canonical forms. The free-text team replaces "Otro".
func (r Request) normalized() Request {
	r.Date = normalize.Date(r.Date)
	if t, ok := normalize.ParseTime(r.Time); ok {
		r.Time = t
	} else {
		r.Time = strings.TrimSpace(r.Time)
	}
	r.Player = normalize.CleanName(r.Player)
	if c, ok := models.ParseCategory(r.Category); ok {
		r.Category = string(c)
	} else {
		r.Category = strings.TrimSpace(r.Category)
	}
	r.Team = strings.TrimSpace(r.Team)
	if r.Team == models.OtherTeam {
		r.Team = strings.TrimSpace(r.TeamOther)
	}
	r.Guardian = normalize.CleanName(r.Guardian)
	r.Phone = util.StripSpaces(r.Phone)
	r.Email = strings.TrimSpace(r.Email)
	r.FamilyCode = strings.ToUpper(strings.TrimSpace(r.FamilyCode))
	return r
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("form"); name != "" {
			return name
		}
		return f.Name
	})
	must := func(tag string, fn validator.Func) {
		if err := v.RegisterValidation(tag, fn); err != nil {
			panic(err)
		}
	}
	must("digits", func(fl validator.FieldLevel) bool {
		for _, r := range fl.Field().String() {
			if r < '0' || r > '9' {
				return false
			}
		}
		return true
	})
	must("category", func(fl validator.FieldLevel) bool {
		_, ok := models.ParseCategory(fl.Field().String())
		return ok
	})
	must("isodate", func(fl validator.FieldLevel) bool {
		d, ok := normalize.ParseDate(fl.Field().String())
		return ok && d == fl.Field().String()
	})
	must("clock", func(fl validator.FieldLevel) bool {
		_, ok := normalize.ParseTime(fl.Field().String())
		return ok
	})
	return v
}

var fieldMessages = map[string]string{
	"required": "Campo obligatorio",
	"digits":   "Solo números",
	"max":      "Demasiado largo",
	"email":    "Email no válido",
	"category": "Categoría no válida",
	"isodate":  "Fecha no válida",
	"clock":    "Hora no válida",
}

// fieldErrors maps validator failures to one message per form field.
func fieldErrors(err error) map[string]string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return map[string]string{"form": err.Error()}
	}
	out := make(map[string]string, len(ve))
	for _, fe := range ve {
		msg, ok := fieldMessages[fe.Tag()]
		if !ok {
			msg = fe.Tag()
		}
		if fe.Field() == "phone" && fe.Tag() == "max" {
			msg = "Máximo 9 dígitos"
		}
		out[fe.Field()] = msg
	}
	return out
}

// Result is the terminal state of one attempt. Errors is only set for
// OutcomeRejected; Registration and List only for accepted outcomes and
// duplicates.
type Result struct {
	Outcome      Outcome
	Registration models.Registration
	List         models.List
	Errors       map[string]string
	FamilyCode   string
	ArchiveURL   string
}

// Notifier is told about every accepted registration.
type Notifier interface {
	NotifyRegistration(ctx context.Context, res *Result) error
}

// Archiver stores a copy of the confirmation and returns where it lives.
type Archiver interface {
	ArchiveConfirmation(ctx context.Context, res *Result) (string, error)
}

// Service is the single write path for registrations plus the admin
// operations on sessions.
type Service struct {
	store    Store
	loader   *Loader
	families *Families
	archiver Archiver
	notifier Notifier
	now      func() time.Time

	serialize bool
	mu        sync.Mutex
}

type Option func(*Service)

func WithFamilies(f *Families) Option { return func(s *Service) { s.families = f } }
func WithArchiver(a Archiver) Option  { return func(s *Service) { s.archiver = a } }
func WithNotifier(n Notifier) Option  { return func(s *Service) { s.notifier = n } }
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithSerializedAdmission runs the check-then-append of Register under a
// process-wide lock. Writers in other processes can still race.
func WithSerializedAdmission(on bool) Option {
	return func(s *Service) { s.serialize = on }
}

func NewService(store Store, loader *Loader, opts ...Option) *Service {
	s := &Service{store: store, loader: loader, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Snapshot exposes the current cached view for read-only screens.
func (s *Service) Snapshot(ctx context.Context) (*Snapshot, error) {
	return s.loader.Snapshot(ctx)
}

// Today is the service clock's date, the lower bound of upcoming sessions.
func (s *Service) Today() string {
	return s.now().Format("2006-01-02")
}

func (s *Service) Families() *Families { return s.families }

// Register validates req and, when the chosen category is open and the
// player is not already in the session, appends it to the confirmed list
// or, with no free slot left, to the waitlist. Status, duplicate and
// capacity checks all read the same snapshot. A non-nil error means the
// remote store failed; every user-facing rejection is an Outcome.
func (s *Service) Register(ctx context.Context, req Request) (*Result, error) {
	req = req.normalized()
	log := logging.WithFields(ctx, "date", req.Date, "time", req.Time, "category", req.Category)

	if err := validate.Struct(req); err != nil {
		log.Info("registration rejected", "fields", len(fieldErrors(err)))
		return &Result{Outcome: OutcomeRejected, Errors: fieldErrors(err)}, nil
	}
	cat, _ := models.ParseCategory(req.Category)

	if s.serialize {
		s.mu.Lock()
		defer s.mu.Unlock()
	}

	snap, err := s.loader.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	reg := models.Registration{
		Timestamp: util.Timestamp(s.now()),
		Date:      req.Date,
		Time:      req.Time,
		Player:    req.Player,
		Category:  string(cat),
		Team:      req.Team,
		Guardian:  req.Guardian,
		Phone:     req.Phone,
		Email:     req.Email,
	}

	if !snap.EffectiveStatus(req.Date, req.Time, cat).Open() {
		log.Info("registration rejected, category closed")
		return &Result{Outcome: OutcomeRejectedClosed, Registration: reg}, nil
	}

	if list, dup := snap.FindRegistration(req.Date, req.Time, req.Player); dup {
		out := OutcomeDuplicateConfirmed
		if list == models.ListWaitlist {
			out = OutcomeDuplicateWaitlisted
		}
		log.Info("duplicate registration", "list", list)
		return &Result{Outcome: out, Registration: reg, List: list}, nil
	}

	res := &Result{Outcome: OutcomeConfirmed, Registration: reg, List: models.ListConfirmed}
	if snap.FreeSlots(req.Date, req.Time, cat) <= 0 {
		res.Outcome, res.List = OutcomeWaitlisted, models.ListWaitlist
	}

	err = s.store.AppendRegistration(ctx, res.List, reg)
	// A failed append may still have landed remotely.
	s.loader.Invalidate()
	if err != nil {
		return nil, fmt.Errorf("append registration: %w", err)
	}
	log.Info("registration stored", "outcome", res.Outcome)

	s.afterAppend(ctx, req, res)
	return res, nil
}

// afterAppend runs the optional side steps. Their failures never change
// the outcome.
func (s *Service) afterAppend(ctx context.Context, req Request, res *Result) {
	log := logging.FromContext(ctx)

	if req.SaveFamily && s.families != nil {
		code, err := s.families.Save(ctx, req.FamilyCode, res.Registration)
		if err != nil {
			log.Warn("family profile not saved", "err", err)
		} else {
			res.FamilyCode = code
		}
	}
	if s.archiver != nil {
		url, err := s.archiver.ArchiveConfirmation(ctx, res)
		if err != nil {
			log.Warn("confirmation not archived", "err", err)
		} else {
			res.ArchiveURL = url
		}
	}
	if s.notifier != nil {
		if err := s.notifier.NotifyRegistration(ctx, res); err != nil {
			log.Warn("registration notification failed", "err", err)
		}
	}
}
