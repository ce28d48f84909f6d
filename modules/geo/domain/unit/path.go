package unit

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Path is the ordered chain of ancestor ids from the root down to the unit
// itself. Its text form "/root/.../self" supports O(prefix) ancestor and
// descendant queries.
type Path []uuid.UUID

func (p Path) Encode() string {
	if len(p) == 0 {
		return "/"
	}
	var b strings.Builder
	for _, id := range p {
		b.WriteByte('/')
		b.WriteString(id.String())
	}
	return b.String()
}

func ParsePath(encoded string) (Path, error) {
	trimmed := strings.Trim(encoded, "/")
	if trimmed == "" {
		return nil, nil
	}
	parts := strings.Split(trimmed, "/")
	path := make(Path, 0, len(parts))
	for _, part := range parts {
		id, err := uuid.Parse(part)
		if err != nil {
			return nil, fmt.Errorf("invalid path segment %q: %w", part, err)
		}
		path = append(path, id)
	}
	return path, nil
}

func (p Path) Contains(id uuid.UUID) bool {
	for _, el := range p {
		if el == id {
			return true
		}
	}
	return false
}

// IsAncestorOf reports whether p is a strict prefix of other.
func (p Path) IsAncestorOf(other Path) bool {
	if len(p) >= len(other) {
		return false
	}
	for i, id := range p {
		if other[i] != id {
			return false
		}
	}
	return true
}

func (p Path) Equal(other Path) bool {
	if len(p) != len(other) {
		return false
	}
	for i, id := range p {
		if other[i] != id {
			return false
		}
	}
	return true
}

// ChildPath derives the path of a child node from its parent's path.
func ChildPath(parent Path, childID uuid.UUID) Path {
	out := make(Path, 0, len(parent)+1)
	out = append(out, parent...)
	return append(out, childID)
}
