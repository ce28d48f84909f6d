package unit

import (
	"time"

	"github.com/google/uuid"
)

// Level is the depth of a unit in the administrative hierarchy. Levels 1-4
// are official geography owned by the canonical store; levels 5-8 are
// tenant-private extensions that never leave the owning tenant's mirror.
type Level int

const (
	LevelCountry      Level = 1
	LevelProvince     Level = 2
	LevelDistrict     Level = 3
	LevelMunicipality Level = 4
	LevelWard         Level = 5
	LevelSettlement   Level = 6
	LevelStreet       Level = 7
	LevelBlock        Level = 8
)

const (
	MinLevel         Level = LevelCountry
	MaxOfficialLevel Level = LevelMunicipality
	MaxLevel         Level = LevelBlock
)

func (l Level) Valid() bool {
	return l >= MinLevel && l <= MaxLevel
}

func (l Level) IsOfficial() bool {
	return l >= MinLevel && l <= MaxOfficialLevel
}

func (l Level) String() string {
	switch l {
	case LevelCountry:
		return "country"
	case LevelProvince:
		return "province"
	case LevelDistrict:
		return "district"
	case LevelMunicipality:
		return "municipality"
	case LevelWard:
		return "ward"
	case LevelSettlement:
		return "settlement"
	case LevelStreet:
		return "street"
	case LevelBlock:
		return "block"
	default:
		return "invalid"
	}
}

// StoreID names the physical store a unit id is local to: the canonical
// store or one tenant mirror. Unit ids are meaningless without it; carrying
// the pair prevents a tenant-local id from being mistaken for a canonical
// one.
type StoreID struct {
	Tenant uuid.UUID
}

// CanonicalStore is the store id of the shared authoritative dataset.
var CanonicalStore = StoreID{}

func TenantStore(tenantID uuid.UUID) StoreID {
	return StoreID{Tenant: tenantID}
}

func (s StoreID) IsCanonical() bool {
	return s.Tenant == uuid.Nil
}

func (s StoreID) String() string {
	if s.IsCanonical() {
		return "canonical"
	}
	return s.Tenant.String()
}

// Ref is a store-qualified unit reference.
type Ref struct {
	Store StoreID
	ID    uuid.UUID
}

func (r Ref) String() string {
	return r.Store.String() + ":" + r.ID.String()
}

// AdministrativeUnit is one node of the hierarchy. Rows in a tenant mirror
// carry CanonicalID pointing at the canonical row they mirror; canonical
// rows and tenant-private rows have it nil.
type AdministrativeUnit struct {
	ID             uuid.UUID  `json:"id"`
	Store          StoreID    `json:"store"`
	CanonicalID    *uuid.UUID `json:"canonical_id,omitempty"`
	Level          Level      `json:"level"`
	Name           string     `json:"name"`
	NormalizedName string     `json:"normalized_name"`
	ParentID       *uuid.UUID `json:"parent_id,omitempty"`
	Path           Path       `json:"path"`
	Country        string     `json:"country"`
	Official       bool       `json:"official"`
	Active         bool       `json:"active"`
	ValidFrom      time.Time  `json:"valid_from"`
	ValidTo        *time.Time `json:"valid_to,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
}

func (u *AdministrativeUnit) Ref() Ref {
	return Ref{Store: u.Store, ID: u.ID}
}

func (u *AdministrativeUnit) IsDeleted() bool {
	return u.DeletedAt != nil
}

// Clone returns a deep copy. Backups and rollback restore depend on copies
// not aliasing the live row.
func (u *AdministrativeUnit) Clone() *AdministrativeUnit {
	if u == nil {
		return nil
	}
	c := *u
	c.Path = append(Path(nil), u.Path...)
	if u.CanonicalID != nil {
		id := *u.CanonicalID
		c.CanonicalID = &id
	}
	if u.ParentID != nil {
		id := *u.ParentID
		c.ParentID = &id
	}
	if u.ValidTo != nil {
		t := *u.ValidTo
		c.ValidTo = &t
	}
	if u.DeletedAt != nil {
		t := *u.DeletedAt
		c.DeletedAt = &t
	}
	return &c
}
