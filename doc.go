// Package kvault is a typed key-value store over a platform's secure
// storage: the Keychain on Apple systems, or an encrypted preferences
// file elsewhere.
//
// A Vault is bound to a scope (service name and optional access group)
// and stores strings, 32/64-bit integers, 32/64-bit floats and bools:
//
//	v := kvault.NewSystem(kvault.WithService("com.example.app"))
//	if err := v.SetInt("user_id", 42); err != nil {
//		return err
//	}
//	id, ok := v.Int("user_id")
//
// Strings are stored as UTF-8 bytes. Numbers and bools are boxed into
// protobuf wrapper messages so a read can tell which width was written
// and coerce to the width requested. The typed accessors report a
// missing key and an undecodable one the same way; Get distinguishes
// them with ErrNotFound and ErrTypeMismatch.
package kvault
