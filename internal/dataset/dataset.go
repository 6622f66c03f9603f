// Package dataset manages the data directory: one SQLite file per named
// dataset, built atomically from an extract.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wegman-software/osmpoi-go/internal/logger"
	"github.com/wegman-software/osmpoi-go/internal/pipeline"
	"github.com/wegman-software/osmpoi-go/internal/poi"
	"github.com/wegman-software/osmpoi-go/internal/source"
	"github.com/wegman-software/osmpoi-go/internal/store"
)

// Ext is the file suffix of dataset files.
const Ext = ".poi.db"

var (
	ErrNotFound    = errors.New("dataset not found")
	ErrExists      = errors.New("dataset already exists")
	ErrInvalidName = errors.New("invalid dataset name")
)

// Info describes one dataset on disk.
type Info struct {
	Name     string    `json:"name"`
	Path     string    `json:"-"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// Dir is a data directory.
type Dir struct {
	root string
}

// Open returns the data directory at root, creating it if needed.
func Open(root string) (*Dir, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}
	return &Dir{root: root}, nil
}

// Root returns the directory path.
func (d *Dir) Root() string { return d.root }

// ValidateName rejects names that are empty, hidden, or not plain file names.
func ValidateName(name string) error {
	if name == "" || strings.HasPrefix(name, ".") || strings.ContainsAny(name, `/\:`) || name != filepath.Base(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// NameFromInput derives a dataset name from an extract path, e.g.
// "monaco-latest.osm.pbf" -> "monaco-latest".
func NameFromInput(path string) string {
	name := filepath.Base(path)
	for _, ext := range []string{Ext, ".osm.pbf", ".osm", ".pbf", ".xml"} {
		if strings.HasSuffix(name, ext) {
			return strings.TrimSuffix(name, ext)
		}
	}
	return name
}

// Path returns the file path of the named dataset whether or not it exists.
func (d *Dir) Path(name string) string {
	return filepath.Join(d.root, name+Ext)
}

// Exists reports whether the named dataset is present.
func (d *Dir) Exists(name string) bool {
	info, err := os.Stat(d.Path(name))
	return err == nil && info.Mode().IsRegular()
}

// List returns all datasets sorted by name.
func (d *Dir) List() ([]Info, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil, fmt.Errorf("listing data dir: %w", err)
	}
	var out []Info
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), Ext) {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, Info{
			Name:     strings.TrimSuffix(e.Name(), Ext),
			Path:     filepath.Join(d.root, e.Name()),
			Size:     fi.Size(),
			Modified: fi.ModTime(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// AddOptions configures Add.
type AddOptions struct {
	Build     pipeline.Options
	Workers   int  // decoder parallelism
	Overwrite bool // replace an existing dataset of the same name
}

// Add creates dataset name from input. Extracts (.osm.pbf, .osm) are built
// into a temporary file that is renamed into place only after the build
// commits; an existing dataset file (.poi.db) is copied in.
func (d *Dir) Add(ctx context.Context, input, name string, opts AddOptions) (*pipeline.BuildStats, error) {
	log := logger.Get()
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if d.Exists(name) && !opts.Overwrite {
		return nil, fmt.Errorf("%w: %s", ErrExists, name)
	}
	if _, err := os.Stat(input); err != nil {
		return nil, err
	}

	final := d.Path(name)
	if strings.HasSuffix(input, Ext) {
		tmp := final + ".tmp"
		if err := copyFile(input, tmp); err != nil {
			os.Remove(tmp)
			return nil, err
		}
		if err := checkDataset(ctx, tmp); err != nil {
			os.Remove(tmp)
			return nil, err
		}
		if err := os.Rename(tmp, final); err != nil {
			os.Remove(tmp)
			return nil, fmt.Errorf("installing dataset: %w", err)
		}
		log.Info("Dataset imported", zap.String("name", name), zap.String("from", input))
		return nil, nil
	}

	stats, err := BuildFile(ctx, input, final, opts)
	if err != nil {
		return nil, err
	}
	log.Info("Dataset added",
		zap.String("name", name),
		zap.Int64("pois", stats.POIs.Total()),
		zap.Duration("duration", stats.Duration.Round(time.Millisecond)))
	return stats, nil
}

// BuildFile builds the extract at input into a SQLite dataset at out. The
// build writes out+".tmp" and renames it over out only after it commits.
func BuildFile(ctx context.Context, input, out string, opts AddOptions) (*pipeline.BuildStats, error) {
	tmp := out + ".tmp"
	if err := os.Remove(tmp); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("removing stale temp file: %w", err)
	}
	stats, err := build(ctx, input, tmp, opts)
	if err != nil {
		os.Remove(tmp)
		return nil, err
	}
	if err := os.Rename(tmp, out); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("installing dataset: %w", err)
	}
	return stats, nil
}

func build(ctx context.Context, input, out string, opts AddOptions) (*pipeline.BuildStats, error) {
	r, err := source.Open(ctx, input, opts.Workers)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	s, err := store.OpenSQLite(out)
	if err != nil {
		return nil, err
	}
	stats, err := pipeline.Build(ctx, s, r, opts.Build)
	if cerr := s.Close(); err == nil && cerr != nil {
		err = cerr
	}
	return stats, err
}

// checkDataset verifies that path holds a refined poi table.
func checkDataset(ctx context.Context, path string) error {
	s, err := store.OpenSQLiteReadOnly(path)
	if err != nil {
		return err
	}
	defer s.Close()
	ok, err := s.TableExists(ctx, poi.Table)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s is not a dataset: no %s table", path, poi.Table)
	}
	return nil
}

// OpenStore opens the named dataset read-only.
func (d *Dir) OpenStore(name string) (*store.Store, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if !d.Exists(name) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return store.OpenSQLiteReadOnly(d.Path(name))
}

// Export copies the named dataset file to dest.
func (d *Dir) Export(name, dest string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if !d.Exists(name) {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return copyFile(d.Path(name), dest)
}

// Remove deletes the named dataset.
func (d *Dir) Remove(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := os.Remove(d.Path(name)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return err
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copying %s: %w", src, err)
	}
	return out.Close()
}
