package tablewriter

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"spextract/infrastructure/serialization"
	"spextract/logging"
)

const (
	csvExt      = ".csv"
	manifestExt = ".csv.manifest"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.-]*$`)

// ValidTableName reports whether name is safe to use as an output file name.
func ValidTableName(name string) bool {
	return tableNamePattern.MatchString(name)
}

// TableDef is the schema of one output table.
type TableDef struct {
	Name        string
	Columns     []string
	PrimaryKey  []string
	Incremental bool
}

// Directory opens tables under a single output directory.
type Directory struct {
	path       string
	serializer *serialization.ManifestSerializer
	logger     *logging.Logger
}

// NewDirectory uses dataDir/out/tables as the output location.
func NewDirectory(dataDir string) *Directory {
	return &Directory{
		path:       filepath.Join(dataDir, "out", "tables"),
		serializer: serialization.NewManifestSerializer(),
		logger:     logging.Default().WithComponent("table_writer"),
	}
}

// Path returns the output directory.
func (d *Directory) Path() string { return d.path }

// Open creates (or truncates) the table's CSV file.
func (d *Directory) Open(def TableDef) (*Writer, error) {
	if !ValidTableName(def.Name) {
		return nil, fmt.Errorf("invalid table name %q", def.Name)
	}
	if len(def.Columns) == 0 {
		return nil, fmt.Errorf("table %s has no columns", def.Name)
	}

	index := make(map[string]int, len(def.Columns))
	for i, c := range def.Columns {
		if _, dup := index[c]; dup {
			return nil, fmt.Errorf("table %s: duplicate column %q", def.Name, c)
		}
		index[c] = i
	}
	for _, k := range def.PrimaryKey {
		if _, ok := index[k]; !ok {
			return nil, fmt.Errorf("table %s: primary key column %q is not a column", def.Name, k)
		}
	}

	if err := os.MkdirAll(d.path, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	file, err := os.Create(filepath.Join(d.path, def.Name+csvExt))
	if err != nil {
		return nil, fmt.Errorf("create table file: %w", err)
	}
	// A stale manifest from an earlier run must not describe the new file.
	if err := os.Remove(filepath.Join(d.path, def.Name+manifestExt)); err != nil && !errors.Is(err, os.ErrNotExist) {
		file.Close()
		return nil, fmt.Errorf("remove stale manifest: %w", err)
	}

	d.logger.Debug("Opened table", "table", def.Name, "columns", len(def.Columns))
	return &Writer{
		dir:    d,
		def:    def,
		index:  index,
		file:   file,
		csv:    csv.NewWriter(file),
		record: make([]string, len(def.Columns)),
	}, nil
}

// Writer appends headerless CSV rows to one table. The manifest is written
// only by Close; Abort leaves the rows without one.
type Writer struct {
	dir    *Directory
	def    TableDef
	index  map[string]int
	file   *os.File
	csv    *csv.Writer
	record []string
	rows   int
	done   bool
}

// Write appends one row keyed by column name. Missing columns are written
// empty; keys outside the schema are rejected.
func (w *Writer) Write(row map[string]string) error {
	if w.done {
		return fmt.Errorf("table %s is already closed", w.def.Name)
	}
	clear(w.record)
	for k, v := range row {
		i, ok := w.index[k]
		if !ok {
			return fmt.Errorf("table %s: unknown column %q", w.def.Name, k)
		}
		w.record[i] = v
	}
	if err := w.csv.Write(w.record); err != nil {
		return fmt.Errorf("write row to %s: %w", w.def.Name, err)
	}
	w.rows++
	return nil
}

// Rows returns the number of rows written so far.
func (w *Writer) Rows() int { return w.rows }

// Close flushes the rows and writes the manifest.
func (w *Writer) Close() error {
	if err := w.finish(); err != nil {
		return err
	}

	data, err := w.dir.serializer.SerializeManifest(serialization.TableManifest{
		Columns:     w.def.Columns,
		PrimaryKey:  w.def.PrimaryKey,
		Incremental: w.def.Incremental,
	})
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(w.dir.path, w.def.Name+manifestExt), data, 0o644); err != nil {
		return fmt.Errorf("write manifest for %s: %w", w.def.Name, err)
	}

	w.dir.logger.Info("Table written", "table", w.def.Name, "rows", w.rows)
	return nil
}

// Abort flushes what was written and closes the file without a manifest.
func (w *Writer) Abort() error {
	if w.done {
		return nil
	}
	err := w.finish()
	w.dir.logger.Warn("Table aborted without manifest", "table", w.def.Name, "rows", w.rows)
	return err
}

func (w *Writer) finish() error {
	if w.done {
		return fmt.Errorf("table %s is already closed", w.def.Name)
	}
	w.done = true

	w.csv.Flush()
	flushErr := w.csv.Error()
	closeErr := w.file.Close()
	if flushErr != nil {
		return fmt.Errorf("flush %s: %w", w.def.Name, flushErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close %s: %w", w.def.Name, closeErr)
	}
	return nil
}
