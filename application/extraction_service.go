package application

import (
	"context"
	"fmt"
	"iter"

	"spextract/domain/extraction"
	"spextract/domain/sharepoint"
	"spextract/infrastructure/tablewriter"
	"spextract/logging"
)

// GraphReader is the slice of the Graph client the extraction needs.
type GraphReader interface {
	GetSiteByRelativeURL(ctx context.Context, hostname, relPath string) (*sharepoint.Site, error)
	GetSiteListByName(ctx context.Context, siteID, name string) (*sharepoint.List, error)
	GetListColumns(ctx context.Context, siteID, listID string) ([]sharepoint.Column, error)
	ListItemPages(ctx context.Context, siteID, listID string) iter.Seq2[[]sharepoint.ItemFields, error]
	Calls() int64
}

// TableWriter receives the rows of one output table.
type TableWriter interface {
	Write(row map[string]string) error
	Close() error
	Abort() error
}

// TableSink opens output tables.
type TableSink interface {
	Open(def tablewriter.TableDef) (TableWriter, error)
}

// metadataColumns is the fixed schema of the list metadata table.
var metadataColumns = []string{
	"createdDateTime",
	"description",
	"eTag",
	"id",
	"lastModifiedDateTime",
	"name",
	"webUrl",
	"displayName",
	"createdBy_user",
	"site_id",
	"result_table_name",
}

// MetadataTable is the definition of the list metadata table.
func MetadataTable() tablewriter.TableDef {
	return tablewriter.TableDef{
		Name:        extraction.MetadataTableName,
		Columns:     metadataColumns,
		PrimaryKey:  []string{"id", "webUrl"},
		Incremental: true,
	}
}

// ExtractionService runs the configured lists one after another. Any failure
// aborts the whole run: tables already open are closed without a manifest
// and the metadata table is never committed.
type ExtractionService struct {
	graph  GraphReader
	sink   TableSink
	logger *logging.Logger
}

// NewExtractionService creates the orchestrator.
func NewExtractionService(graph GraphReader, sink TableSink) *ExtractionService {
	return &ExtractionService{
		graph:  graph,
		sink:   sink,
		logger: logging.Default().WithComponent("extraction_service"),
	}
}

// Run extracts every list in params and returns the run metrics, also when
// the run failed part way.
func (s *ExtractionService) Run(ctx context.Context, params extraction.Parameters) (metrics *ExtractionMetrics, err error) {
	metrics = NewExtractionMetrics(len(params.Lists))
	start := metrics.StartTiming()
	defer func() {
		metrics.APICalls = s.graph.Calls()
		metrics.CalculateTotalDuration(start)
	}()

	meta, err := s.sink.Open(MetadataTable())
	if err != nil {
		return metrics, fmt.Errorf("open metadata table: %w", err)
	}
	defer func() {
		if err != nil {
			abort(s.logger, meta)
		}
	}()

	s.logger.Extraction("Extraction started", "base_host_name", params.BaseHostName, "lists", len(params.Lists))

	for _, spec := range params.Lists {
		row, err := s.extractList(ctx, params.BaseHostName, spec, metrics)
		if err != nil {
			s.logger.WithList(spec.SiteRelPath, spec.ListName).ExtractionError("List extraction failed", err)
			return metrics, err
		}
		if err := meta.Write(row); err != nil {
			return metrics, fmt.Errorf("write metadata for list %q: %w", spec.ListName, err)
		}
		metrics.RecordListDone()
	}

	if err := meta.Close(); err != nil {
		return metrics, fmt.Errorf("close metadata table: %w", err)
	}

	s.logger.Extraction("Extraction finished", "lists", metrics.ListsProcessed, "rows", metrics.RowsWritten)
	return metrics, nil
}

// extractList writes one list's item table and returns its metadata row.
func (s *ExtractionService) extractList(ctx context.Context, hostname string, spec extraction.ListSpec, metrics *ExtractionMetrics) (map[string]string, error) {
	logger := s.logger.WithList(spec.SiteRelPath, spec.ListName)

	t := metrics.StartTiming()
	site, err := s.graph.GetSiteByRelativeURL(ctx, hostname, spec.SiteRelPath)
	if err != nil {
		return nil, err
	}
	if site.ID == "" {
		return nil, &extraction.ResourceNotFoundError{
			Kind:     extraction.ResourceSite,
			Location: sharepoint.JoinLocation(hostname, spec.SiteRelPath),
		}
	}
	metrics.RecordSiteResolution(t)
	logger.Debug("Site resolved", "site_id", site.ID)

	t = metrics.StartTiming()
	list, err := s.graph.GetSiteListByName(ctx, site.ID, spec.ListName)
	if err != nil {
		return nil, err
	}
	if list == nil {
		return nil, &extraction.ResourceNotFoundError{
			Kind:     extraction.ResourceList,
			Name:     spec.ListName,
			Location: site.Location(),
		}
	}
	metrics.RecordListResolution(t)

	t = metrics.StartTiming()
	raw, err := s.graph.GetListColumns(ctx, site.ID, list.ID)
	if err != nil {
		return nil, err
	}
	table := sharepoint.NewItemTable(sharepoint.ResolveColumns(raw, spec.IncludeAdditionalCols, spec.DisplayNames()))
	metrics.RecordColumnResolution(t)
	logger.Debug("Columns resolved", "list_id", list.ID, "raw", len(raw), "resolved", len(table.Columns))

	tableName := spec.LoadSetup.DataTableName()
	w, err := s.sink.Open(tablewriter.TableDef{
		Name:        tableName,
		Columns:     table.Columns,
		PrimaryKey:  table.PrimaryKey,
		Incremental: spec.LoadSetup.Incremental,
	})
	if err != nil {
		return nil, fmt.Errorf("open table %s: %w", tableName, err)
	}

	t = metrics.StartTiming()
	pages, rows, err := s.copyItems(ctx, site.ID, list.ID, table, w)
	metrics.RecordItemStreaming(t, pages, rows)
	if err != nil {
		abort(logger, w)
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close table %s: %w", tableName, err)
	}

	logger.Extraction("List extracted", "list_id", list.ID, "pages", pages, "rows", rows,
		"table", tableName)

	return map[string]string{
		"createdDateTime":      list.CreatedDateTime,
		"description":          list.Description,
		"eTag":                 list.ETag,
		"id":                   list.ID,
		"lastModifiedDateTime": list.LastModifiedDateTime,
		"name":                 list.Name,
		"webUrl":               list.WebURL,
		"displayName":          list.DisplayName,
		"createdBy_user":       list.CreatorDisplayName(),
		"site_id":              site.ID,
		"result_table_name":    spec.LoadSetup.ResultTableName,
	}, nil
}

// copyItems streams item pages into w, one page in memory at a time.
func (s *ExtractionService) copyItems(ctx context.Context, siteID, listID string, table *sharepoint.ItemTable, w TableWriter) (pages, rows int, err error) {
	for items, err := range s.graph.ListItemPages(ctx, siteID, listID) {
		if err != nil {
			return pages, rows, err
		}
		pages++
		for _, fields := range items {
			row, err := table.Row(fields, listID)
			if err != nil {
				return pages, rows, err
			}
			if err := w.Write(row); err != nil {
				return pages, rows, err
			}
			rows++
		}
	}
	return pages, rows, nil
}

func abort(logger *logging.Logger, w TableWriter) {
	if err := w.Abort(); err != nil {
		logger.Warn("Failed to abort table", "error", err.Error())
	}
}

// directorySink adapts a tablewriter.Directory to TableSink.
type directorySink struct {
	dir *tablewriter.Directory
}

// NewDirectorySink writes tables as CSV files with manifests under dir.
func NewDirectorySink(dir *tablewriter.Directory) TableSink {
	return directorySink{dir: dir}
}

func (s directorySink) Open(def tablewriter.TableDef) (TableWriter, error) {
	w, err := s.dir.Open(def)
	if err != nil {
		return nil, err
	}
	return w, nil
}
