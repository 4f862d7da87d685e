//go:generate mockgen -source authorizer.go -destination ../../internal/mocks/mock_authorizer.go -package mocks Authorizer

// Package security decorates datasources and registries with permission checks. Reads
// of objects the principal may not see fail as if the object did not exist; mutations
// that are visible but not permitted fail with storage.ErrRuntime.
package security

// Authorizer decides whether a permission string is granted. The grammar of the
// strings is opaque to the decorators; see Permission for the form they emit.
type Authorizer interface {
	IsPermitted(permission string) bool
}

type allowAll struct{}

func (allowAll) IsPermitted(string) bool { return true }

type denyAll struct{}

func (denyAll) IsPermitted(string) bool { return false }

// AllowAll grants every permission.
func AllowAll() Authorizer { return allowAll{} }

// DenyAll grants nothing.
func DenyAll() Authorizer { return denyAll{} }

func isPermitted(authz Authorizer, p Permission) bool {
	return authz.IsPermitted(p.String())
}
