package rbac

import "sort"

// PermissionSet is a set of permission codes.
type PermissionSet map[string]struct{}

// NewPermissionSet builds a set from the given codes.
func NewPermissionSet(codes ...string) PermissionSet {
	set := make(PermissionSet, len(codes))
	for _, code := range codes {
		set[code] = struct{}{}
	}
	return set
}

// Has reports whether the code is in the set.
func (p PermissionSet) Has(code string) bool {
	_, ok := p[code]
	return ok
}

// Add inserts codes into the set.
func (p PermissionSet) Add(codes ...string) {
	for _, code := range codes {
		p[code] = struct{}{}
	}
}

// Merge inserts every code of other into the set.
func (p PermissionSet) Merge(other PermissionSet) {
	for code := range other {
		p[code] = struct{}{}
	}
}

// Clone returns an independent copy.
func (p PermissionSet) Clone() PermissionSet {
	out := make(PermissionSet, len(p))
	out.Merge(p)
	return out
}

// Codes returns the codes in lexical order.
func (p PermissionSet) Codes() []string {
	codes := make([]string, 0, len(p))
	for code := range p {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
