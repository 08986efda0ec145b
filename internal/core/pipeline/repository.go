package pipeline

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	coreerrors "github.com/aevon-lab/cohort/internal/core/errors"
)

// Repository defines the interface for loading pipeline definitions.
type Repository interface {
	// Get returns the pipeline with the given name or ErrPipelineNotFound.
	Get(ctx context.Context, name string) (*Definition, error)

	// List returns all loaded pipelines sorted by name.
	List(ctx context.Context) ([]Definition, error)
}

// FileSystemRepository loads pipelines from *.yaml files in a directory. Each
// file holds exactly one pipeline. Definitions are loaded once at startup.
type FileSystemRepository struct {
	dir       string
	pipelines map[string]Definition
}

// NewFileSystemRepository eagerly loads every pipeline in dir. A missing
// directory yields an empty repository; a malformed file is an error.
func NewFileSystemRepository(dir string) (*FileSystemRepository, error) {
	repo := &FileSystemRepository{
		dir:       dir,
		pipelines: make(map[string]Definition),
	}
	if err := repo.load(); err != nil {
		return nil, err
	}
	return repo, nil
}

// NewStaticRepository serves the given definitions, e.g. for tests or
// embedded use.
func NewStaticRepository(defs ...Definition) (*FileSystemRepository, error) {
	repo := &FileSystemRepository{pipelines: make(map[string]Definition, len(defs))}
	for _, d := range defs {
		if err := repo.add(d); err != nil {
			return nil, err
		}
	}
	return repo, nil
}

func (r *FileSystemRepository) load() error {
	info, err := os.Stat(r.dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("pipeline dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("pipeline path %q is not a directory", r.dir)
	}

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return fmt.Errorf("reading pipeline dir: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() || (!strings.HasSuffix(e.Name(), ".yaml") && !strings.HasSuffix(e.Name(), ".yml")) {
			continue
		}

		path := filepath.Join(r.dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading pipeline file %s: %w", path, err)
		}
		if strings.TrimSpace(string(data)) == "" {
			continue
		}

		def, err := Parse(data)
		if err != nil {
			return fmt.Errorf("pipeline file %s: %w", path, err)
		}
		def.Path = path
		def.Fingerprint = fmt.Sprintf("%x", sha256.Sum256(data))

		if err := r.add(def); err != nil {
			return err
		}
	}
	return nil
}

func (r *FileSystemRepository) add(def Definition) error {
	if _, exists := r.pipelines[def.Name]; exists {
		return &coreerrors.SpecError{
			Pipeline: def.Name,
			Field:    "name",
			Reason:   "duplicate pipeline name (check multiple YAML files)",
		}
	}
	r.pipelines[def.Name] = def
	return nil
}

// Get returns the pipeline with the given name.
func (r *FileSystemRepository) Get(_ context.Context, name string) (*Definition, error) {
	def, ok := r.pipelines[name]
	if !ok {
		return nil, fmt.Errorf("pipeline %q: %w", name, coreerrors.ErrPipelineNotFound)
	}
	return &def, nil
}

// List returns all loaded pipelines sorted by name.
func (r *FileSystemRepository) List(_ context.Context) ([]Definition, error) {
	return r.Definitions(), nil
}

// Definitions returns all pipelines sorted by name.
func (r *FileSystemRepository) Definitions() []Definition {
	out := make([]Definition, 0, len(r.pipelines))
	for _, d := range r.pipelines {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len reports how many pipelines are loaded.
func (r *FileSystemRepository) Len() int { return len(r.pipelines) }
