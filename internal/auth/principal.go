package auth

import "github.com/domushq/domus/internal/rbac"

// Principal is the authenticated caller as described by a validated access token.
type Principal struct {
	UserID      string
	Permissions rbac.PermissionSet
	Scope       rbac.Scope
}

// PrincipalFromClaims rebuilds the caller from access token claims.
func PrincipalFromClaims(claims *AccessClaims) *Principal {
	if claims == nil {
		return nil
	}
	return &Principal{
		UserID:      claims.Subject,
		Permissions: rbac.NewPermissionSet(claims.Perms...),
		Scope:       claims.Scope,
	}
}

// Can reports whether the principal holds the permission code.
func (p *Principal) Can(code string) bool {
	return p != nil && p.Permissions.Has(code)
}

// InScope reports whether the house is within the principal's scope.
func (p *Principal) InScope(houseID uint) bool {
	return p != nil && p.Scope.Contains(houseID)
}
