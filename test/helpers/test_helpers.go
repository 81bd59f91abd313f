package helpers

import (
	"errors"
	"fmt"
	"iter"
	"slices"
	"sync"

	"github.com/stretchr/testify/mock"

	"spextract/domain/extraction"
	"spextract/domain/sharepoint"
	"spextract/infrastructure/tablewriter"
	"spextract/test/mocks"
)

// ItemPages yields the given pages in order.
func ItemPages(pages ...[]sharepoint.ItemFields) iter.Seq2[[]sharepoint.ItemFields, error] {
	return func(yield func([]sharepoint.ItemFields, error) bool) {
		for _, p := range pages {
			if !yield(p, nil) {
				return
			}
		}
	}
}

// FailingItemPages yields the given pages and then err.
func FailingItemPages(err error, pages ...[]sharepoint.ItemFields) iter.Seq2[[]sharepoint.ItemFields, error] {
	return func(yield func([]sharepoint.ItemFields, error) bool) {
		for _, p := range pages {
			if !yield(p, nil) {
				return
			}
		}
		yield(nil, err)
	}
}

// NewListSpec builds a list spec with display names on.
func NewListSpec(relPath, name, table string) extraction.ListSpec {
	return extraction.ListSpec{
		SiteRelPath: relPath,
		ListName:    name,
		LoadSetup:   extraction.LoadSetup{ResultTableName: table},
	}
}

// ExpectSite sets up a successful site lookup.
func ExpectSite(g *mocks.MockGraphReader, hostname, relPath string, site *sharepoint.Site) {
	g.On("GetSiteByRelativeURL", mock.Anything, hostname, relPath).Return(site, nil)
}

// ExpectList sets up a successful list lookup with columns and item pages.
func ExpectList(g *mocks.MockGraphReader, siteID string, list *sharepoint.List, cols []sharepoint.Column, pages ...[]sharepoint.ItemFields) {
	g.On("GetSiteListByName", mock.Anything, siteID, list.Name).Return(list, nil)
	g.On("GetListColumns", mock.Anything, siteID, list.ID).Return(cols, nil)
	g.On("ListItemPages", mock.Anything, siteID, list.ID).Return(ItemPages(pages...))
}

// MemoryTable is an in-memory table recorded by MemorySink.
type MemoryTable struct {
	Def     tablewriter.TableDef
	Rows    []map[string]string
	Closed  bool
	Aborted bool

	mu sync.Mutex
}

// Write records a row.
func (t *MemoryTable) Write(row map[string]string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Closed || t.Aborted {
		return errors.New("table is finished")
	}
	for k := range row {
		if !slices.Contains(t.Def.Columns, k) {
			return fmt.Errorf("unknown column %q", k)
		}
	}
	t.Rows = append(t.Rows, row)
	return nil
}

// Close marks the table committed.
func (t *MemoryTable) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Closed || t.Aborted {
		return errors.New("table is finished")
	}
	t.Closed = true
	return nil
}

// Abort marks the table abandoned.
func (t *MemoryTable) Abort() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.Closed {
		t.Aborted = true
	}
	return nil
}

// MemorySink collects tables in memory, keyed by name.
type MemorySink struct {
	mu     sync.Mutex
	Tables map[string]*MemoryTable
	// FailOn makes Open fail for the named table.
	FailOn string
}

// NewMemorySink creates an empty sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{Tables: map[string]*MemoryTable{}}
}

// Open records a new table. It returns the concrete table so callers can
// adapt it to their own writer interface.
func (s *MemorySink) Open(def tablewriter.TableDef) (*MemoryTable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if def.Name == s.FailOn {
		return nil, fmt.Errorf("cannot open table %s", def.Name)
	}
	t := &MemoryTable{Def: def}
	s.Tables[def.Name] = t
	return t, nil
}
