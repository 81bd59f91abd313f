package application

import (
	"time"

	"spextract/domain/extraction"
	"spextract/logging"
)

// ExtractionMetrics tracks timing and throughput for one run. Durations
// accumulate across lists.
type ExtractionMetrics struct {
	// Timing metrics
	SiteResolutionDuration   time.Duration
	ListResolutionDuration   time.Duration
	ColumnResolutionDuration time.Duration
	ItemStreamingDuration    time.Duration
	TotalDuration            time.Duration

	// Throughput metrics
	ListsTotal           int
	ListsProcessed       int
	PagesFetched         int
	RowsWritten          int
	AverageRowsPerSecond float64

	// API call metrics
	APICalls       int64
	TokenRefreshes int
}

// NewExtractionMetrics creates a metrics collector for listsTotal lists.
func NewExtractionMetrics(listsTotal int) *ExtractionMetrics {
	return &ExtractionMetrics{ListsTotal: listsTotal}
}

// StartTiming begins timing for a specific operation
func (m *ExtractionMetrics) StartTiming() time.Time {
	return time.Now()
}

// RecordSiteResolution adds site lookup time.
func (m *ExtractionMetrics) RecordSiteResolution(start time.Time) {
	m.SiteResolutionDuration += time.Since(start)
}

// RecordListResolution adds list lookup time.
func (m *ExtractionMetrics) RecordListResolution(start time.Time) {
	m.ListResolutionDuration += time.Since(start)
}

// RecordColumnResolution adds column fetch and resolution time.
func (m *ExtractionMetrics) RecordColumnResolution(start time.Time) {
	m.ColumnResolutionDuration += time.Since(start)
}

// RecordItemStreaming adds item paging time and counts.
func (m *ExtractionMetrics) RecordItemStreaming(start time.Time, pages, rows int) {
	m.ItemStreamingDuration += time.Since(start)
	m.PagesFetched += pages
	m.RowsWritten += rows
}

// RecordListDone counts a list whose table and metadata row were written.
func (m *ExtractionMetrics) RecordListDone() {
	m.ListsProcessed++
}

// CalculateTotalDuration calculates and stores the total duration
func (m *ExtractionMetrics) CalculateTotalDuration(start time.Time) {
	m.TotalDuration = time.Since(start)
	if m.TotalDuration > 0 && m.RowsWritten > 0 {
		m.AverageRowsPerSecond = float64(m.RowsWritten) / m.TotalDuration.Seconds()
	}
}

// Stats converts the counters into the run log's form.
func (m *ExtractionMetrics) Stats() extraction.RunStats {
	return extraction.RunStats{
		ListsTotal:     m.ListsTotal,
		ListsDone:      m.ListsProcessed,
		PagesFetched:   m.PagesFetched,
		RowsWritten:    m.RowsWritten,
		APICalls:       m.APICalls,
		TokenRefreshes: m.TokenRefreshes,
	}
}

// LogPerformanceMetrics outputs the run summary.
func (m *ExtractionMetrics) LogPerformanceMetrics(logger *logging.Logger, hostname string) {
	logger.Performance("extraction", m.TotalDuration,
		"base_host_name", hostname,
		"total_duration_human", m.TotalDuration.Round(time.Millisecond).String())

	logger.Info("Timing Breakdown",
		"site_resolution_ms", m.SiteResolutionDuration.Milliseconds(),
		"list_resolution_ms", m.ListResolutionDuration.Milliseconds(),
		"column_resolution_ms", m.ColumnResolutionDuration.Milliseconds(),
		"item_streaming_ms", m.ItemStreamingDuration.Milliseconds())

	logger.Info("Throughput Metrics",
		"lists_total", m.ListsTotal,
		"lists_processed", m.ListsProcessed,
		"pages_fetched", m.PagesFetched,
		"rows_written", m.RowsWritten,
		"rows_per_sec", m.AverageRowsPerSecond)

	logger.Info("Operation Counts",
		"graph_api_calls", m.APICalls,
		"token_refreshes", m.TokenRefreshes)
}
