//go:build darwin

package keychain

import (
	"errors"
	"fmt"

	gokeychain "github.com/keybase/go-keychain"
)

var accessibleAttr = map[Accessibility]gokeychain.Accessible{
	WhenUnlocked:                   gokeychain.AccessibleWhenUnlocked,
	WhenUnlockedThisDeviceOnly:     gokeychain.AccessibleWhenUnlockedThisDeviceOnly,
	AfterFirstUnlock:               gokeychain.AccessibleAfterFirstUnlock,
	AfterFirstUnlockThisDeviceOnly: gokeychain.AccessibleAfterFirstUnlockThisDeviceOnly,
	WhenPasscodeSetThisDeviceOnly:  gokeychain.AccessibleWhenPasscodeSetThisDeviceOnly,
}

// SystemBackend stores items as generic passwords in the Keychain.
// Each call builds its own query item; nothing is cached between calls.
type SystemBackend struct{}

var _ Backend = SystemBackend{}

// NewSystemBackend returns the Keychain backend.
func NewSystemBackend() Backend {
	return SystemBackend{}
}

// query builds a generic-password query scoped by service and access group.
// Unset scope fields are left out so they match any value.
func query(scope Scope, account string) gokeychain.Item {
	item := gokeychain.NewItem()
	item.SetSecClass(gokeychain.SecClassGenericPassword)
	item.SetService(scope.Service)
	item.SetAccessGroup(scope.AccessGroup)
	item.SetAccount(account)
	return item
}

func (SystemBackend) Exists(scope Scope, account string) (bool, error) {
	q := query(scope, account)
	q.SetMatchLimit(gokeychain.MatchLimitOne)
	q.SetReturnAttributes(true)
	results, err := gokeychain.QueryItem(q)
	if err != nil {
		if errors.Is(err, gokeychain.ErrorItemNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("keychain exists %q: %w", account, err)
	}
	return len(results) > 0, nil
}

func (SystemBackend) Insert(scope Scope, account string, data []byte, access Accessibility) error {
	item := query(scope, account)
	item.SetLabel(fmt.Sprintf("kvault: %s", account))
	item.SetData(data)
	item.SetSynchronizable(gokeychain.SynchronizableNo)
	if attr, ok := accessibleAttr[access]; ok {
		item.SetAccessible(attr)
	}

	if err := gokeychain.AddItem(item); err != nil {
		if errors.Is(err, gokeychain.ErrorDuplicateItem) {
			return fmt.Errorf("%w: %s", ErrDuplicateItem, account)
		}
		return fmt.Errorf("keychain add %q: %w", account, err)
	}
	return nil
}

func (SystemBackend) Update(scope Scope, account string, data []byte) error {
	update := gokeychain.NewItem()
	update.SetData(data)

	if err := gokeychain.UpdateItem(query(scope, account), update); err != nil {
		if errors.Is(err, gokeychain.ErrorItemNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, account)
		}
		return fmt.Errorf("keychain update %q: %w", account, err)
	}
	return nil
}

func (SystemBackend) Read(scope Scope, account string) ([]byte, error) {
	q := query(scope, account)
	q.SetMatchLimit(gokeychain.MatchLimitOne)
	q.SetReturnData(true)
	results, err := gokeychain.QueryItem(q)
	if err != nil {
		if errors.Is(err, gokeychain.ErrorItemNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, account)
		}
		return nil, fmt.Errorf("keychain get %q: %w", account, err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, account)
	}
	return results[0].Data, nil
}

func (SystemBackend) Delete(scope Scope, account string) error {
	err := gokeychain.DeleteItem(query(scope, account))
	if err != nil && !errors.Is(err, gokeychain.ErrorItemNotFound) {
		return fmt.Errorf("keychain delete %q: %w", account, err)
	}
	return nil
}

// DeleteAll removes every generic password matching scope. With an empty
// scope this is every generic password the process can reach.
func (SystemBackend) DeleteAll(scope Scope) error {
	err := gokeychain.DeleteItem(query(scope, ""))
	if err != nil && !errors.Is(err, gokeychain.ErrorItemNotFound) {
		return fmt.Errorf("keychain clear %s: %w", scope, err)
	}
	return nil
}

func (SystemBackend) Accounts(scope Scope) ([]string, error) {
	q := query(scope, "")
	q.SetMatchLimit(gokeychain.MatchLimitAll)
	q.SetReturnAttributes(true)
	results, err := gokeychain.QueryItem(q)
	if err != nil {
		if errors.Is(err, gokeychain.ErrorItemNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("keychain list %s: %w", scope, err)
	}
	accounts := make([]string, 0, len(results))
	for _, r := range results {
		if r.Account != "" {
			accounts = append(accounts, r.Account)
		}
	}
	return accounts, nil
}
