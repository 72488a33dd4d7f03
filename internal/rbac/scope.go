package rbac

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrMalformedScope is returned when a stored or submitted scope is neither
// {"all":true} nor {"houses":[...]}.
var ErrMalformedScope = errors.New("rbac: malformed scope")

type scopeKind uint8

const (
	kindHouses scopeKind = iota
	kindAll
)

// Scope is the set of houses a grant applies to. It is either unrestricted or
// an explicit house set. The zero value is an empty house set.
type Scope struct {
	kind   scopeKind
	houses map[uint]struct{}
}

// Unrestricted returns the scope covering every house.
func Unrestricted() Scope {
	return Scope{kind: kindAll}
}

// Houses returns a scope limited to the given house ids.
func Houses(ids ...uint) Scope {
	s := Scope{kind: kindHouses, houses: make(map[uint]struct{}, len(ids))}
	for _, id := range ids {
		s.houses[id] = struct{}{}
	}
	return s
}

// IsAll reports whether the scope is unrestricted.
func (s Scope) IsAll() bool {
	return s.kind == kindAll
}

// IsEmpty reports whether the scope covers no house at all.
func (s Scope) IsEmpty() bool {
	return s.kind == kindHouses && len(s.houses) == 0
}

// HouseIDs returns the sorted house ids. It is nil for an unrestricted scope.
func (s Scope) HouseIDs() []uint {
	if s.IsAll() {
		return nil
	}
	ids := make([]uint, 0, len(s.houses))
	for id := range s.houses {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Contains reports whether the house is within the scope.
func (s Scope) Contains(houseID uint) bool {
	if s.IsAll() {
		return true
	}
	_, ok := s.houses[houseID]
	return ok
}

// Union merges two scopes. Unrestricted wins over any house set.
func (s Scope) Union(other Scope) Scope {
	if s.IsAll() || other.IsAll() {
		return Unrestricted()
	}
	out := Houses()
	for id := range s.houses {
		out.houses[id] = struct{}{}
	}
	for id := range other.houses {
		out.houses[id] = struct{}{}
	}
	return out
}

// Intersects reports whether the scopes share a house. An unrestricted scope
// on either side always intersects.
func (s Scope) Intersects(other Scope) bool {
	if s.IsAll() || other.IsAll() {
		return true
	}
	small, large := s.houses, other.houses
	if len(small) > len(large) {
		small, large = large, small
	}
	for id := range small {
		if _, ok := large[id]; ok {
			return true
		}
	}
	return false
}

// Covers reports whether every house of target lies within s. An unrestricted
// target is only covered by an unrestricted scope.
func (s Scope) Covers(target Scope) bool {
	if s.IsAll() {
		return true
	}
	if target.IsAll() {
		return false
	}
	for id := range target.houses {
		if _, ok := s.houses[id]; !ok {
			return false
		}
	}
	return true
}

// Equal reports whether both scopes describe the same houses.
func (s Scope) Equal(other Scope) bool {
	if s.IsAll() || other.IsAll() {
		return s.IsAll() == other.IsAll()
	}
	return len(s.houses) == len(other.houses) && s.Covers(other)
}

func (s Scope) String() string {
	if s.IsAll() {
		return "all"
	}
	ids := s.HouseIDs()
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatUint(uint64(id), 10)
	}
	return "houses[" + strings.Join(parts, ",") + "]"
}

type scopeWire struct {
	All    *bool          `json:"all,omitempty"`
	Houses *[]json.Number `json:"houses,omitempty"`
}

// MarshalJSON renders {"all":true} or {"houses":[...]}.
func (s Scope) MarshalJSON() ([]byte, error) {
	if s.IsAll() {
		return []byte(`{"all":true}`), nil
	}
	ids := s.HouseIDs()
	return json.Marshal(struct {
		Houses []uint `json:"houses"`
	}{Houses: ids})
}

// UnmarshalJSON accepts only the two well-formed shapes.
func (s *Scope) UnmarshalJSON(data []byte) error {
	parsed, err := ParseScope(data)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseScope decodes a scope document, rejecting anything ambiguous.
func ParseScope(data []byte) (Scope, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Scope{}, fmt.Errorf("%w: expected object", ErrMalformedScope)
	}

	var wire scopeWire
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	dec.DisallowUnknownFields()
	if err := dec.Decode(&wire); err != nil {
		return Scope{}, fmt.Errorf("%w: %v", ErrMalformedScope, err)
	}

	if wire.All != nil && *wire.All {
		return Unrestricted(), nil
	}
	if wire.Houses == nil {
		return Scope{}, fmt.Errorf("%w: houses list is required", ErrMalformedScope)
	}

	ids := make([]uint, 0, len(*wire.Houses))
	for _, raw := range *wire.Houses {
		id, err := parseHouseID(raw.String())
		if err != nil {
			return Scope{}, fmt.Errorf("%w: %v", ErrMalformedScope, err)
		}
		ids = append(ids, id)
	}
	return Houses(ids...), nil
}

// MustJSON returns the canonical JSON encoding of the scope.
func (s Scope) MustJSON() []byte {
	out, _ := s.MarshalJSON()
	return out
}

func parseHouseID(raw string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 0)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid house id %q", raw)
	}
	return uint(id), nil
}

// ParseHouseID parses a positive decimal house identifier.
func ParseHouseID(raw string) (uint, bool) {
	id, err := parseHouseID(strings.TrimSpace(raw))
	return id, err == nil
}
