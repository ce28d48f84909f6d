package unit

import (
	"fmt"

	"github.com/google/uuid"
)

// Reasons an id set can fail hierarchy validation.
const (
	ReasonInvalidLevel     = "INVALID_LEVEL"
	ReasonLevelMismatch    = "LEVEL_MISMATCH"
	ReasonMissingParent    = "MISSING_PARENT"
	ReasonForeignParent    = "FOREIGN_PARENT"
	ReasonPathMismatch     = "PATH_MISMATCH"
	ReasonCyclicReference  = "CYCLIC_REFERENCE"
	ReasonOfficialAncestry = "OFFICIAL_ANCESTRY"
	ReasonCountryMismatch  = "COUNTRY_MISMATCH"
)

type InvalidHierarchyError struct {
	UnitID uuid.UUID
	Reason string
	Detail string
}

func (e *InvalidHierarchyError) Error() string {
	return fmt.Sprintf("invalid hierarchy at unit %s: %s (%s)", e.UnitID, e.Reason, e.Detail)
}

func invalidHierarchy(id uuid.UUID, reason, format string, args ...any) *InvalidHierarchyError {
	return &InvalidHierarchyError{UnitID: id, Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// PathEncoding maps each validated unit id to its encoded path.
type PathEncoding map[uuid.UUID]string

// ValidateNode checks the invariants between a unit and its resolved
// parent. parent must be nil exactly when the unit is a level-1 root.
func ValidateNode(u *AdministrativeUnit, parent *AdministrativeUnit) error {
	if !u.Level.Valid() {
		return invalidHierarchy(u.ID, ReasonInvalidLevel, "level %d outside 1..%d", u.Level, MaxLevel)
	}

	if parent == nil {
		if u.Level != LevelCountry {
			return invalidHierarchy(u.ID, ReasonMissingParent, "level %d unit has no parent", u.Level)
		}
		if !u.Path.Equal(Path{u.ID}) {
			return invalidHierarchy(u.ID, ReasonPathMismatch, "root path must be [self], got %s", u.Path.Encode())
		}
		return nil
	}

	if u.Level != parent.Level+1 {
		return invalidHierarchy(u.ID, ReasonLevelMismatch, "level %d under level-%d parent %s", u.Level, parent.Level, parent.ID)
	}
	if u.ParentID == nil || *u.ParentID != parent.ID {
		return invalidHierarchy(u.ID, ReasonMissingParent, "parent reference does not point at %s", parent.ID)
	}
	if u.Store != parent.Store {
		return invalidHierarchy(u.ID, ReasonForeignParent, "parent %s lives in store %s, unit in %s", parent.ID, parent.Store, u.Store)
	}
	if u.Country != parent.Country {
		return invalidHierarchy(u.ID, ReasonCountryMismatch, "country %q differs from parent country %q", u.Country, parent.Country)
	}
	if u.Official && !parent.Official {
		return invalidHierarchy(u.ID, ReasonOfficialAncestry, "official unit under non-official parent %s", parent.ID)
	}
	if u.Path.Contains(u.ID) && u.Path[len(u.Path)-1] != u.ID {
		return invalidHierarchy(u.ID, ReasonCyclicReference, "unit appears as its own ancestor")
	}
	if want := ChildPath(parent.Path, u.ID); !u.Path.Equal(want) {
		return invalidHierarchy(u.ID, ReasonPathMismatch, "path %s, expected %s", u.Path.Encode(), want.Encode())
	}
	return nil
}

// ValidateHierarchy validates a closed set of units: every non-root unit's
// parent must be present in the set, and every node must satisfy the
// level, path, store, and official-ancestry invariants. On success it
// returns the encoded path of every unit. The first violation is fatal and
// returned as *InvalidHierarchyError; nothing is repaired.
func ValidateHierarchy(units []*AdministrativeUnit) (PathEncoding, error) {
	byID := make(map[uuid.UUID]*AdministrativeUnit, len(units))
	for _, u := range units {
		byID[u.ID] = u
	}

	encoding := make(PathEncoding, len(units))
	for _, u := range units {
		var parent *AdministrativeUnit
		if u.ParentID != nil {
			p, ok := byID[*u.ParentID]
			if !ok {
				return nil, invalidHierarchy(u.ID, ReasonMissingParent, "parent %s not in validated set", *u.ParentID)
			}
			parent = p
		}
		if err := ValidateNode(u, parent); err != nil {
			return nil, err
		}
		// Walking the path through the set guards against a forged path
		// that names ancestors at the wrong depth.
		for depth, ancestorID := range u.Path[:len(u.Path)-1] {
			ancestor, ok := byID[ancestorID]
			if !ok {
				continue
			}
			if int(ancestor.Level) != depth+int(u.Level)-len(u.Path)+1 {
				return nil, invalidHierarchy(u.ID, ReasonPathMismatch, "path names %s at depth %d but it is a level-%d unit", ancestorID, depth, ancestor.Level)
			}
		}
		encoding[u.ID] = u.Path.Encode()
	}
	return encoding, nil
}
