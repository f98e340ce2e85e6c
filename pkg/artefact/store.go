package artefact

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"

	cerr "github.com/govlegible/civitas/pkg/errors"
)

// Artefact file names within a service directory.
const (
	manifestFile   = "manifest.yaml"
	policyFile     = "policy.yaml"
	stateModelFile = "state-model.yaml"
	consentFile    = "consent.yaml"
)

// Store loads and indexes service artefacts from a directory. Loading is
// lazy and memoized: concurrent callers share one in-flight load, and no
// service is parsed twice. Once loaded, reads take a read lock only and
// the index is replaced wholesale on reload, never partially mutated.
type Store struct {
	dir    string
	logger *slog.Logger
	group  singleflight.Group

	mu     sync.RWMutex
	loaded bool
	index  map[string]*Service
	order  []string
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the store's logger.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore creates a store reading from dir. Nothing is loaded until
// Load is called.
func NewStore(dir string, opts ...StoreOption) *Store {
	s := &Store{
		dir:    dir,
		logger: slog.Default(),
		index:  make(map[string]*Service),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load reads every service under the store's directory. It is idempotent:
// once a load has succeeded, further calls return immediately, and
// concurrent callers before the first completes share a single read.
func (s *Store) Load(ctx context.Context) error {
	s.mu.RLock()
	loaded := s.loaded
	s.mu.RUnlock()
	if loaded {
		return nil
	}
	_, err, _ := s.group.Do("load", func() (any, error) {
		s.mu.RLock()
		done := s.loaded
		s.mu.RUnlock()
		if done {
			return nil, nil
		}
		return nil, s.readAll(ctx)
	})
	return err
}

// Reload re-reads the source unconditionally and swaps the index in one
// step. Used when artefacts change on disk.
func (s *Store) Reload(ctx context.Context) error {
	_, err, _ := s.group.Do("reload", func() (any, error) {
		return nil, s.readAll(ctx)
	})
	return err
}

func (s *Store) readAll(ctx context.Context) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return cerr.New(cerr.CodeConfiguration, fmt.Sprintf("read services directory %s", s.dir), err)
	}

	index := make(map[string]*Service)
	var order []string
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !entry.IsDir() {
			continue
		}
		svc, err := s.readService(entry.Name())
		if err != nil {
			return err
		}
		if err := validateService(svc); err != nil {
			return err
		}
		index[svc.ID] = svc
		order = append(order, svc.ID)
	}
	sort.Strings(order)

	s.mu.Lock()
	s.index = index
	s.order = order
	s.loaded = true
	s.mu.Unlock()

	s.logger.Info("artefacts loaded", "services", len(order), "dir", s.dir)
	return nil
}

func (s *Store) readService(name string) (*Service, error) {
	dir := filepath.Join(s.dir, name)
	svc := &Service{ID: name}

	if err := readYAML(filepath.Join(dir, manifestFile), &svc.Manifest); err != nil {
		if os.IsNotExist(err) {
			return nil, cerr.Newf(cerr.CodeConfiguration, "service %q has no manifest", name)
		}
		return nil, cerr.New(cerr.CodeConfiguration, fmt.Sprintf("service %q: parse manifest", name), err)
	}

	var policy PolicyRuleset
	switch present, err := readIfExists(filepath.Join(dir, policyFile), &policy); {
	case err != nil:
		return nil, cerr.New(cerr.CodeConfiguration, fmt.Sprintf("service %q: parse policy", name), err)
	case present:
		svc.Policy = &policy
	}

	var stateModel StateModelDefinition
	switch present, err := readIfExists(filepath.Join(dir, stateModelFile), &stateModel); {
	case err != nil:
		return nil, cerr.New(cerr.CodeConfiguration, fmt.Sprintf("service %q: parse state model", name), err)
	case present:
		svc.StateModel = &stateModel
	}

	var consent ConsentModel
	switch present, err := readIfExists(filepath.Join(dir, consentFile), &consent); {
	case err != nil:
		return nil, cerr.New(cerr.CodeConfiguration, fmt.Sprintf("service %q: parse consent model", name), err)
	case present:
		svc.Consent = &consent
	}
	return svc, nil
}

func readYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, out)
}

// readIfExists reads path into out. Absent files are not an error: each
// non-manifest artefact is independently optional.
func readIfExists(path string, out any) (bool, error) {
	err := readYAML(path, out)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Get returns the artefact set for a service id.
func (s *Store) Get(id string) (*Service, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	svc, ok := s.index[id]
	return svc, ok
}

// ListServices returns the loaded service ids in sorted order.
func (s *Store) ListServices() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Loaded reports whether a load has completed.
func (s *Store) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}
