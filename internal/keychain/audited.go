package keychain

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/benaskins/kvault/internal/audit"
)

// ItemMetadata tracks write history for one item. Values are never stored here.
type ItemMetadata struct {
	Service     string    `json:"service,omitempty"`
	AccessGroup string    `json:"access_group,omitempty"`
	Account     string    `json:"account"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
	LastRotated time.Time `json:"last_rotated,omitempty"`
}

func (m *ItemMetadata) scope() Scope {
	return Scope{Service: m.Service, AccessGroup: m.AccessGroup}
}

func metadataKey(scope Scope, account string) string {
	return scope.AccessGroup + "\x00" + scope.Service + "\x00" + account
}

// MetadataStore persists item metadata to a JSON file.
type MetadataStore struct {
	mu       sync.RWMutex
	path     string
	metadata map[string]*ItemMetadata
}

// NewMetadataStore loads or creates a metadata file.
func NewMetadataStore(path string) (*MetadataStore, error) {
	ms := &MetadataStore{
		path:     path,
		metadata: make(map[string]*ItemMetadata),
	}

	data, err := os.ReadFile(path)
	if err == nil {
		if jsonErr := json.Unmarshal(data, &ms.metadata); jsonErr != nil {
			slog.Warn("corrupt metadata file, starting fresh", "path", path, "error", jsonErr)
			ms.metadata = make(map[string]*ItemMetadata)
		}
	}

	return ms, nil
}

// Get returns a copy of the metadata for an item, or nil if not tracked.
func (ms *MetadataStore) Get(scope Scope, account string) *ItemMetadata {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	m, ok := ms.metadata[metadataKey(scope, account)]
	if !ok {
		return nil
	}
	cp := *m
	return &cp
}

// Touch records a write to an item and persists to disk.
func (ms *MetadataStore) Touch(scope Scope, account string, now time.Time) error {
	return ms.update(scope, account, func(m *ItemMetadata) {
		m.UpdatedAt = now
	}, now)
}

// MarkRotated records a successful rotation of an item.
func (ms *MetadataStore) MarkRotated(scope Scope, account string, now time.Time) error {
	return ms.update(scope, account, func(m *ItemMetadata) {
		m.UpdatedAt = now
		m.LastRotated = now
	}, now)
}

func (ms *MetadataStore) update(scope Scope, account string, fn func(*ItemMetadata), now time.Time) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	key := metadataKey(scope, account)
	m, ok := ms.metadata[key]
	if !ok {
		m = &ItemMetadata{
			Service:     scope.Service,
			AccessGroup: scope.AccessGroup,
			Account:     account,
			CreatedAt:   now,
		}
		ms.metadata[key] = m
	}
	fn(m)
	return ms.save()
}

// Delete removes metadata for every item matching scope and account.
// An empty account removes every item in scope.
func (ms *MetadataStore) Delete(scope Scope, account string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	for k, m := range ms.metadata {
		if account != "" && m.Account != account {
			continue
		}
		if scope.Matches(m.scope()) {
			delete(ms.metadata, k)
		}
	}
	return ms.save()
}

// All returns copies of all metadata entries.
func (ms *MetadataStore) All() []ItemMetadata {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	result := make([]ItemMetadata, 0, len(ms.metadata))
	for _, v := range ms.metadata {
		result = append(result, *v)
	}
	return result
}

func (ms *MetadataStore) save() error {
	data, err := json.MarshalIndent(ms.metadata, "", "  ")
	if err != nil {
		return err
	}
	tmpPath := ms.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmpPath, ms.path)
}

// AuditedBackend wraps a Backend and adds audit logging and metadata tracking.
type AuditedBackend struct {
	inner    Backend
	audit    *audit.Logger
	metadata *MetadataStore
	actor    string // "cli" or "app"
}

var _ Backend = (*AuditedBackend)(nil)

// NewAuditedBackend wraps an existing backend with audit logging.
func NewAuditedBackend(inner Backend, auditLog *audit.Logger, metadata *MetadataStore, actor string) *AuditedBackend {
	return &AuditedBackend{
		inner:    inner,
		audit:    auditLog,
		metadata: metadata,
		actor:    actor,
	}
}

func (b *AuditedBackend) log(action audit.Action, scope Scope, account, trigger string, err error) {
	entry := audit.Entry{
		Action:      action,
		Key:         account,
		Service:     scope.Service,
		AccessGroup: scope.AccessGroup,
		Actor:       b.actor,
		Trigger:     trigger,
	}
	if err != nil {
		entry.Error = err.Error()
	}
	// Audit logging is best-effort; a failure to log does not block the operation.
	if logErr := b.audit.Log(entry); logErr != nil {
		slog.Warn("audit log write failed", "action", action, "error", logErr)
	}
}

// track reports a metadata failure after the backend call succeeded.
// The value is already stored or removed, so the caller sees success.
func (b *AuditedBackend) track(op string, scope Scope, account string, err error) {
	if err != nil {
		slog.Warn("metadata update failed", "op", op, "scope", scope.String(), "key", account, "error", err)
	}
}

// Exists is not audited: it reveals nothing about values.
func (b *AuditedBackend) Exists(scope Scope, account string) (bool, error) {
	return b.inner.Exists(scope, account)
}

func (b *AuditedBackend) Insert(scope Scope, account string, data []byte, access Accessibility) error {
	if err := b.inner.Insert(scope, account, data, access); err != nil {
		b.log(audit.ActionValueWrite, scope, account, "insert", err)
		return fmt.Errorf("audited insert: %w", err)
	}
	b.log(audit.ActionValueWrite, scope, account, "insert", nil)

	b.track("touch", scope, account, b.metadata.Touch(scope, account, time.Now().UTC()))
	return nil
}

func (b *AuditedBackend) Update(scope Scope, account string, data []byte) error {
	if err := b.inner.Update(scope, account, data); err != nil {
		b.log(audit.ActionValueWrite, scope, account, "update", err)
		return fmt.Errorf("audited update: %w", err)
	}
	b.log(audit.ActionValueWrite, scope, account, "update", nil)

	b.track("touch", scope, account, b.metadata.Touch(scope, account, time.Now().UTC()))
	return nil
}

func (b *AuditedBackend) Read(scope Scope, account string) ([]byte, error) {
	data, err := b.inner.Read(scope, account)
	if err != nil {
		return nil, fmt.Errorf("audited read: %w", err)
	}
	b.log(audit.ActionValueRead, scope, account, "", nil)
	return data, nil
}

func (b *AuditedBackend) Delete(scope Scope, account string) error {
	if err := b.inner.Delete(scope, account); err != nil {
		b.log(audit.ActionValueDelete, scope, account, "", err)
		return fmt.Errorf("audited delete: %w", err)
	}
	b.log(audit.ActionValueDelete, scope, account, "", nil)

	b.track("delete", scope, account, b.metadata.Delete(scope, account))
	return nil
}

func (b *AuditedBackend) DeleteAll(scope Scope) error {
	if err := b.inner.DeleteAll(scope); err != nil {
		b.log(audit.ActionStoreClear, scope, "", "", err)
		return fmt.Errorf("audited clear: %w", err)
	}
	b.log(audit.ActionStoreClear, scope, "", "", nil)

	b.track("clear", scope, "", b.metadata.Delete(scope, ""))
	return nil
}

func (b *AuditedBackend) Accounts(scope Scope) ([]string, error) {
	return b.inner.Accounts(scope)
}

// RecordRotation logs a rotation attempt. The new value itself is written
// through Insert or Update, which log their own entries.
func (b *AuditedBackend) RecordRotation(scope Scope, account, command string, rotateErr error) error {
	entry := audit.Entry{
		Action:      audit.ActionValueRotate,
		Key:         account,
		Service:     scope.Service,
		AccessGroup: scope.AccessGroup,
		Actor:       b.actor,
		Trigger:     "hook",
		Command:     command,
	}
	if rotateErr != nil {
		entry.Error = rotateErr.Error()
	}
	if err := b.audit.Log(entry); err != nil {
		slog.Warn("audit log write failed", "action", entry.Action, "error", err)
	}
	if rotateErr != nil {
		return nil
	}
	if err := b.metadata.MarkRotated(scope, account, time.Now().UTC()); err != nil {
		return fmt.Errorf("saving rotation metadata: %w", err)
	}
	return nil
}

// Metadata returns the metadata store for direct access.
func (b *AuditedBackend) Metadata() *MetadataStore {
	return b.metadata
}
