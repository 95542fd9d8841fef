package booking

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"basket-booking/internal/cache"
	"basket-booking/internal/logging"
	"basket-booking/internal/models"
	"basket-booking/internal/normalize"
	"basket-booking/internal/util"
)

// Family codes look like CBC-7F3KQ9P2. The alphabet leaves out I and O so
// codes can be read back over the phone.
const (
	familyCodePrefix   = "CBC-"
	familyCodeAlphabet = "0123456789ABCDEFGHJKLMNPQRSTUVWXYZ"
	familyCodeLength   = 8
)

var reFamilyCode = regexp.MustCompile(`^CBC-[0-9A-HJ-NP-Z]{8}$`)

func NewFamilyCode() (string, error) {
	id, err := gonanoid.Generate(familyCodeAlphabet, familyCodeLength)
	if err != nil {
		return "", fmt.Errorf("family code: %w", err)
	}
	return familyCodePrefix + id, nil
}

func ValidFamilyCode(code string) bool {
	return reFamilyCode.MatchString(strings.ToUpper(strings.TrimSpace(code)))
}

// FamilyData is the cached content of the familias and hijos tabs.
type FamilyData struct {
	Families []models.Family
	Children []models.Child
}

const familyKey = "families"

// Families stores guardian details and saved players under a family code.
// It only pre-fills forms; admission never reads it.
type Families struct {
	store Store
	cache *cache.Cache[*FamilyData]
	now   func() time.Time
}

func NewFamilies(store Store, c *cache.Cache[*FamilyData]) *Families {
	return &Families{store: store, cache: c, now: time.Now}
}

func (f *Families) load(ctx context.Context) (*FamilyData, error) {
	fams, err := f.store.ListFamilies(ctx)
	if err != nil {
		return nil, fmt.Errorf("load families: %w", err)
	}
	kids, err := f.store.ListChildren(ctx)
	if err != nil {
		return nil, fmt.Errorf("load children: %w", err)
	}
	return &FamilyData{Families: fams, Children: kids}, nil
}

// Lookup returns the family stored under code and its saved players.
func (f *Families) Lookup(ctx context.Context, code string) (*models.Family, []models.Child, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, nil, ErrFamilyNotFound
	}
	data, _, err := f.cache.Get(ctx, familyKey, f.load)
	if err != nil {
		return nil, nil, err
	}
	for _, fam := range data.Families {
		if fam.Code != code {
			continue
		}
		fam := fam
		kids := []models.Child{}
		for _, c := range data.Children {
			if c.Code == code {
				kids = append(kids, c)
			}
		}
		return &fam, kids, nil
	}
	return nil, nil, ErrFamilyNotFound
}

// Save records the guardian and player of reg under code, generating a
// code when code is empty or malformed. It returns the code used.
func (f *Families) Save(ctx context.Context, code string, reg models.Registration) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !ValidFamilyCode(code) {
		var err error
		if code, err = NewFamilyCode(); err != nil {
			return "", err
		}
	}
	stamp := util.Timestamp(f.now())

	err := f.store.UpsertFamily(ctx, models.Family{
		Code:      code,
		Guardian:  reg.Guardian,
		Phone:     reg.Phone,
		Email:     reg.Email,
		UpdatedAt: stamp,
	})
	if err == nil {
		err = f.store.UpsertChild(ctx, models.Child{
			Code:      code,
			Player:    normalize.CleanName(reg.Player),
			Team:      reg.Team,
			Category:  reg.Category,
			UpdatedAt: stamp,
		})
	}
	f.cache.Invalidate(familyKey)
	if err != nil {
		return "", fmt.Errorf("save family: %w", err)
	}
	logging.FromContext(ctx).Info("family profile saved", "code", code)
	return code, nil
}
