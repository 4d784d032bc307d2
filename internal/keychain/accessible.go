package keychain

import (
	"fmt"
	"strings"
)

// Accessibility controls when the OS unlocks an item for reads relative to
// the device lock state. It is attached at insert time and cannot be
// queried back.
type Accessibility int

const (
	WhenUnlocked Accessibility = iota
	WhenUnlockedThisDeviceOnly
	AfterFirstUnlock
	AfterFirstUnlockThisDeviceOnly
	WhenPasscodeSetThisDeviceOnly
)

var accessibilityNames = map[Accessibility]string{
	WhenUnlocked:                   "when-unlocked",
	WhenUnlockedThisDeviceOnly:     "when-unlocked-this-device-only",
	AfterFirstUnlock:               "after-first-unlock",
	AfterFirstUnlockThisDeviceOnly: "after-first-unlock-this-device-only",
	WhenPasscodeSetThisDeviceOnly:  "when-passcode-set-this-device-only",
}

func (a Accessibility) String() string {
	if name, ok := accessibilityNames[a]; ok {
		return name
	}
	return fmt.Sprintf("accessibility(%d)", int(a))
}

// ParseAccessibility parses a config value such as "after-first-unlock".
// The empty string yields the default, WhenUnlocked.
func ParseAccessibility(s string) (Accessibility, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return WhenUnlocked, nil
	}
	s = strings.ReplaceAll(s, "_", "-")
	for a, name := range accessibilityNames {
		if name == s {
			return a, nil
		}
	}
	return WhenUnlocked, fmt.Errorf("unknown accessibility %q", s)
}
