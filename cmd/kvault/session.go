package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/benaskins/kvault"
	"github.com/benaskins/kvault/internal/audit"
	"github.com/benaskins/kvault/internal/config"
	"github.com/benaskins/kvault/internal/keychain"
	"github.com/benaskins/kvault/internal/prefs"
)

// session is one command's view of the store: the vault plus the audit
// and metrics layers wrapped around its backend.
type session struct {
	cfg      *config.Config
	vault    *kvault.Vault
	audited  *keychain.AuditedBackend
	registry *prometheus.Registry
	closers  []io.Closer
}

// loadConfig reads the config file and layers env and flags on top.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	home, err := config.Home()
	if err != nil {
		return nil, fmt.Errorf("resolving home: %w", err)
	}
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	cfg.ApplyEnv(os.LookupEnv)

	flags := cmd.Flags()
	if flags.Changed("service") {
		cfg.ServiceName = service
	}
	if flags.Changed("access-group") {
		cfg.AccessGroup = accessGroup
	}
	if flags.Changed("backend") {
		cfg.Backend = backendName
	}
	cfg.FillDefaults(home)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openSession(cmd *cobra.Command) (*session, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	for _, path := range []string{cfg.AuditLog, cfg.MetadataPath} {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
		}
	}
	s := &session{cfg: cfg, registry: prometheus.NewRegistry()}

	inner, err := s.openBackend()
	if err != nil {
		return nil, err
	}

	auditLog, err := audit.NewLogger(cfg.AuditLog)
	if err != nil {
		s.close()
		return nil, err
	}
	s.closers = append(s.closers, auditLog)

	metadata, err := keychain.NewMetadataStore(cfg.MetadataPath)
	if err != nil {
		s.close()
		return nil, err
	}
	s.audited = keychain.NewAuditedBackend(inner, auditLog, metadata, "cli")

	instrumented, err := keychain.NewInstrumentedBackend(s.audited, s.registry)
	if err != nil {
		s.close()
		return nil, err
	}

	// Validate already accepted the level.
	access, _ := keychain.ParseAccessibility(cfg.Accessibility)
	s.vault = kvault.New(instrumented,
		kvault.WithService(cfg.ServiceName),
		kvault.WithAccessGroup(cfg.AccessGroup),
		kvault.WithAccessibility(access),
	)
	return s, nil
}

func (s *session) openBackend() (keychain.Backend, error) {
	switch s.cfg.Backend {
	case config.BackendKeychain:
		return keychain.NewSystemBackend(), nil
	case config.BackendMemory:
		slog.Warn("memory backend selected, values last only for this command")
		return keychain.NewMemoryBackend(), nil
	case config.BackendFile:
		passphrase, err := readPassphrase()
		if err != nil {
			return nil, err
		}
		f, err := prefs.Open(s.cfg.FilePath, passphrase, nil)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, f)
		return f, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", s.cfg.Backend)
	}
}

// scope is the partition commands operate on.
func (s *session) scope() keychain.Scope {
	return s.vault.Scope()
}

// close flushes metrics to the textfile, if one is configured, and
// releases the backend and audit log.
func (s *session) close() error {
	var errs []error
	if s.cfg.MetricsTextfile != "" && s.vault != nil {
		if err := prometheus.WriteToTextfile(s.cfg.MetricsTextfile, s.registry); err != nil {
			errs = append(errs, fmt.Errorf("writing metrics: %w", err))
		}
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// withSession runs fn against an open session and closes it afterwards.
func withSession(cmd *cobra.Command, fn func(s *session) error) (err error) {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.close(); cerr != nil {
			slog.Warn("closing session", "error", cerr)
		}
	}()
	return fn(s)
}
