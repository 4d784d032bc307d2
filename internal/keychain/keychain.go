// Package keychain is the boundary between kvault and the native
// secure-storage facility.
//
// Items are generic passwords identified by:
//   - Service: the store's service name (optional)
//   - AccessGroup: the store's access group (optional)
//   - Account: the caller's key
//
// Queries follow Keychain matching rules: an attribute set on the query
// must equal the item's attribute, an unset attribute matches any value.
// Every backend in this package (and internal/prefs) implements the same
// rules so stores behave alike regardless of where bytes end up.
package keychain

import "errors"

var (
	// ErrNotFound is returned when no item matches a query.
	ErrNotFound = errors.New("item not found")

	// ErrDuplicateItem is returned by Insert when an item with the same
	// service, access group and account already exists.
	ErrDuplicateItem = errors.New("item already exists")
)

// Scope selects the partition of the facility a store can see.
// Empty fields are unset.
type Scope struct {
	Service     string
	AccessGroup string
}

// Matches reports whether an item stored under item is visible to s.
func (s Scope) Matches(item Scope) bool {
	if s.Service != "" && s.Service != item.Service {
		return false
	}
	if s.AccessGroup != "" && s.AccessGroup != item.AccessGroup {
		return false
	}
	return true
}

func (s Scope) String() string {
	switch {
	case s.Service == "" && s.AccessGroup == "":
		return "<default>"
	case s.AccessGroup == "":
		return s.Service
	default:
		return s.AccessGroup + "/" + s.Service
	}
}

// Backend is the set of native calls a store needs. Implementations must
// not hold per-call resources across calls.
type Backend interface {
	Exists(scope Scope, account string) (bool, error)
	Insert(scope Scope, account string, data []byte, access Accessibility) error
	Update(scope Scope, account string, data []byte) error
	Read(scope Scope, account string) ([]byte, error)
	Delete(scope Scope, account string) error
	DeleteAll(scope Scope) error
	Accounts(scope Scope) ([]string, error)
}
