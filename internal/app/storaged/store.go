// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package storaged

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/siderolabs/storagecfg/pkg/logging"
	"github.com/siderolabs/storagecfg/pkg/machinery/config/types/storage"
	"github.com/siderolabs/storagecfg/pkg/storage/apimodel"
	"github.com/siderolabs/storagecfg/pkg/storage/model"
	modelconfig "github.com/siderolabs/storagecfg/pkg/storage/model/config"
	"github.com/siderolabs/storagecfg/pkg/storage/solver"
	"github.com/siderolabs/storagecfg/pkg/storage/system"
)

// Prober loads the system inventory.
type Prober func(ctx context.Context) (*system.System, error)

// Store holds the storage config of the service.
//
// Every accepted change bumps the generation and notifies the watchers.
type Store struct {
	logger *zap.Logger
	prober Prober

	mu         sync.Mutex
	system     *system.System
	solver     solver.Solver
	config     *storage.Config
	watchers   map[chan uint64]struct{}
	generation uint64
}

// NewStore creates an empty store, the system is loaded by Probe.
func NewStore(prober Prober, logger *zap.Logger) *Store {
	logger = logger.With(logging.Component("store"))

	return &Store{
		logger:   logger,
		prober:   prober,
		system:   &system.System{},
		solver:   solver.NewLocal(nil, logger),
		config:   &storage.Config{},
		watchers: map[chan uint64]struct{}{},
	}
}

// Probe reloads the system inventory.
func (s *Store) Probe(ctx context.Context) (*system.System, error) {
	sys, err := s.prober(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to probe system: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.system = sys
	s.solver = solver.NewLocal(sys, s.logger)

	s.logger.Info("system probed", zap.Int("devices", len(sys.Devices)), zap.Int("volume_templates", len(sys.VolumeTemplates)))

	s.bump()

	return sys, nil
}

// System returns the system inventory.
func (s *Store) System() *system.System {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.system
}

// Generation returns the number of accepted changes.
func (s *Store) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.generation
}

// Watch returns a channel receiving the generation after every change.
//
// Notifications are coalesced: a slow watcher only sees the latest generation. The channel
// is closed when ctx is canceled.
func (s *Store) Watch(ctx context.Context) <-chan uint64 {
	ch := make(chan uint64, 1)

	s.mu.Lock()
	s.watchers[ch] = struct{}{}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()

		s.mu.Lock()
		delete(s.watchers, ch)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// bump must be called with the lock held.
func (s *Store) bump() {
	s.generation++

	for ch := range s.watchers {
		select {
		case <-ch:
		default:
		}

		ch <- s.generation
	}
}

// Config returns a copy of the storage config.
func (s *Store) Config() *storage.Config {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.config.Clone()
}

// SetConfig replaces the storage config, it returns the validation warnings.
func (s *Store) SetConfig(cfg *storage.Config) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.setConfig(cfg)
}

func (s *Store) setConfig(cfg *storage.Config) ([]string, error) {
	if cfg == nil {
		cfg = &storage.Config{}
	}

	warnings, err := cfg.Validate()
	if err != nil {
		return nil, tagError(err)
	}

	s.config = cfg.Clone()
	s.bump()

	s.logger.Info("storage config updated", zap.Uint64("generation", s.generation), zap.Strings("warnings", warnings))

	return warnings, nil
}

// ConfigModel returns the API model of the storage config.
func (s *Store) ConfigModel(ctx context.Context) (*apimodel.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.configModel(ctx, s.config)
}

func (s *Store) configModel(ctx context.Context, cfg *storage.Config) (*apimodel.Config, error) {
	solved, err := s.solver.Solve(ctx, cfg)
	if err != nil {
		return nil, tagError(fmt.Errorf("failed to solve storage config: %w", err))
	}

	return modelconfig.Generate(cfg, solved), nil
}

// SetConfigModel replaces the storage config by the one derived from the API model.
func (s *Store) SetConfigModel(m *apimodel.Config) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.setConfigModel(m)
}

func (s *Store) setConfigModel(m *apimodel.Config) ([]string, error) {
	if m == nil {
		m = &apimodel.Config{}
	}

	modelWarnings, err := apimodel.Validate(m)
	if err != nil {
		return nil, tagError(err)
	}

	warnings, err := s.setConfig(modelconfig.ToConfig(m))
	if err != nil {
		return nil, err
	}

	return append(modelWarnings, warnings...), nil
}

// SolveConfigModel returns the API model completed with the solved values, the store is not changed.
func (s *Store) SolveConfigModel(ctx context.Context, m *apimodel.Config) (*apimodel.Config, error) {
	if m == nil {
		m = &apimodel.Config{}
	}

	if _, err := apimodel.Validate(m); err != nil {
		return nil, tagError(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.configModel(ctx, modelconfig.ToConfig(m))
}

// Model returns the model view of the storage config.
func (s *Store) Model(ctx context.Context) (*model.Model, error) {
	m, err := s.ConfigModel(ctx)
	if err != nil {
		return nil, err
	}

	return model.Build(m), nil
}

// UpdateConfigModel applies an API model helper to the current API model and stores the result.
//
// It returns the API model of the new storage config.
func (s *Store) UpdateConfigModel(ctx context.Context, update func(*apimodel.Config) (*apimodel.Config, error)) (*apimodel.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.configModel(ctx, s.config)
	if err != nil {
		return nil, err
	}

	updated, err := update(current)
	if err != nil {
		return nil, tagError(err)
	}

	if _, err = apimodel.Validate(updated); err != nil {
		return nil, tagError(err)
	}

	// the new config must be solvable before it replaces the current one
	result, err := s.configModel(ctx, modelconfig.ToConfig(updated))
	if err != nil {
		return nil, err
	}

	if _, err = s.setConfigModel(updated); err != nil {
		return nil, err
	}

	return result, nil
}
