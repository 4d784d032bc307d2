package keychain

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// InstrumentedBackend wraps any Backend with operation counters and
// latency histograms. It works the same for the Keychain, the encrypted
// preferences file and the memory backend.
type InstrumentedBackend struct {
	inner   Backend
	ops     *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

var _ Backend = (*InstrumentedBackend)(nil)

// NewInstrumentedBackend wraps inner and registers its collectors on reg.
// Registering twice on the same registry reuses the existing collectors.
func NewInstrumentedBackend(inner Backend, reg prometheus.Registerer) (*InstrumentedBackend, error) {
	ops := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kvault",
		Subsystem: "backend",
		Name:      "operations_total",
		Help:      "Native storage calls by operation and result.",
	}, []string{"op", "result"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "kvault",
		Subsystem: "backend",
		Name:      "operation_duration_seconds",
		Help:      "Latency of native storage calls.",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
	}, []string{"op"})

	var err error
	if ops, err = register(reg, ops); err != nil {
		return nil, err
	}
	if latency, err = register(reg, latency); err != nil {
		return nil, err
	}
	return &InstrumentedBackend{inner: inner, ops: ops, latency: latency}, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrDuplicateItem):
		return "duplicate"
	default:
		return "error"
	}
}

func (b *InstrumentedBackend) observe(op string, start time.Time, err error) {
	b.latency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	b.ops.WithLabelValues(op, result(err)).Inc()
}

func (b *InstrumentedBackend) Exists(scope Scope, account string) (bool, error) {
	start := time.Now()
	ok, err := b.inner.Exists(scope, account)
	b.observe("exists", start, err)
	return ok, err
}

func (b *InstrumentedBackend) Insert(scope Scope, account string, data []byte, access Accessibility) error {
	start := time.Now()
	err := b.inner.Insert(scope, account, data, access)
	b.observe("insert", start, err)
	return err
}

func (b *InstrumentedBackend) Update(scope Scope, account string, data []byte) error {
	start := time.Now()
	err := b.inner.Update(scope, account, data)
	b.observe("update", start, err)
	return err
}

func (b *InstrumentedBackend) Read(scope Scope, account string) ([]byte, error) {
	start := time.Now()
	data, err := b.inner.Read(scope, account)
	b.observe("read", start, err)
	return data, err
}

func (b *InstrumentedBackend) Delete(scope Scope, account string) error {
	start := time.Now()
	err := b.inner.Delete(scope, account)
	b.observe("delete", start, err)
	return err
}

func (b *InstrumentedBackend) DeleteAll(scope Scope) error {
	start := time.Now()
	err := b.inner.DeleteAll(scope)
	b.observe("delete_all", start, err)
	return err
}

func (b *InstrumentedBackend) Accounts(scope Scope) ([]string, error) {
	start := time.Now()
	accounts, err := b.inner.Accounts(scope)
	b.observe("accounts", start, err)
	return accounts, err
}
