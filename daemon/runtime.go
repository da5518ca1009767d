package daemon

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/wspotter/kit/modules"
	"github.com/wspotter/kit/prefs"
	"github.com/wspotter/kit/tool"
)

// Runtime is the assembled tool host described by a Config.
type Runtime struct {
	Config      Config
	Registry    *tool.Registry
	Sources     []tool.CandidateSource
	History     tool.Store
	Preferences prefs.Source

	closers []func() error
}

// Build opens the configured backends and wires the registry.
func Build(cfg Config, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}
	rt := &Runtime{Config: cfg}

	preferences, err := rt.openPreferences()
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.Preferences = preferences

	history, err := rt.openHistory()
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.History = history

	rt.Sources = []tool.CandidateSource{
		modules.NewCatalog(modules.CatalogConfig{
			Preferences:  preferences,
			ListingsPath: cfg.Market.ListingsPath,
			Disabled:     cfg.Tools.Disabled,
			Logger:       logger,
		}),
	}
	if cfg.Tools.PluginDir != "" {
		rt.Sources = append(rt.Sources, tool.NewDirectorySource(cfg.Tools.PluginDir))
	}

	rt.Registry = tool.NewRegistry(tool.RegistryConfig{
		Sources:                  rt.Sources,
		History:                  history,
		DisableSchemaEnforcement: !cfg.EnforceSchema(),
		Logger:                   logger,
	})
	return rt, nil
}

// Close releases every backend opened by Build.
func (r *Runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

func (r *Runtime) openPreferences() (prefs.Source, error) {
	section := r.Config.Preferences
	switch section.Backend {
	case BackendNone:
		return prefs.Static(prefs.Empty()), nil
	case BackendRedis:
		var opts []prefs.RedisOption
		if section.Redis.Key != "" {
			opts = append(opts, prefs.WithKey(section.Redis.Key))
		}
		source := prefs.NewRedisSource(section.Redis.Addr, section.Redis.Password, section.Redis.DB, opts...)
		r.closers = append(r.closers, source.Close)
		return source, nil
	case BackendFile, "":
		return prefs.NewFileSource(section.Path), nil
	default:
		return nil, fmt.Errorf("unsupported preferences backend %q", section.Backend)
	}
}

func (r *Runtime) openHistory() (tool.Store, error) {
	section := r.Config.History
	switch section.Backend {
	case BackendNone:
		return nil, nil
	case BackendSQLite:
		store, err := tool.NewSQLiteStore(tool.SQLiteStoreConfig{DSN: section.Path})
		if err != nil {
			return nil, fmt.Errorf("opening sqlite history store: %w", err)
		}
		r.closers = append(r.closers, store.Close)
		return store, nil
	case BackendFile, "":
		store := tool.NewFileStore(section.Path)
		if section.Limit > 0 {
			store = store.WithLimit(section.Limit)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported history backend %q", section.Backend)
	}
}
