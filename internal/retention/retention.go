// Package retention implements the partition-granularity retention
// enforcer described in §4.8: no row-level TTL, just dropping entire
// partitions older than a computed YYYYMM cutoff.
package retention

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/overwatch/ingestion-gateway/internal/logger"
)

// RetentionTables lists every table partitioned by toYYYYMM(timestamp)
// that the enforcer sweeps, mirroring the full table set of the
// engine this gateway replaces.
var RetentionTables = []string{
	"overwatch.events",
	"overwatch.sessions",
	"overwatch.pageviews",
	"overwatch.clicks",
	"overwatch.scroll_events",
	"overwatch.mouse_moves",
	"overwatch.form_events",
	"overwatch.errors",
	"overwatch.performance_metrics",
	"overwatch.visibility_events",
	"overwatch.resource_loads",
	"overwatch.geographic",
	"overwatch.custom_events",
}

// MetricsTable has its own, shorter retention class.
const MetricsTable = "overwatch.internal_metrics"

// DefaultDataMonths and DefaultMetricsMonths are the two retention
// classes named in §4.8.
const (
	DefaultDataMonths    = 3
	DefaultMetricsMonths = 1
)

// PartitionInfo describes one partition eligible for dropping.
type PartitionInfo struct {
	Partition   string
	PartitionID string
	Rows        uint64
	BytesOnDisk uint64
}

// Enforcer drops partitions older than the configured retention
// cutoff.
type Enforcer struct {
	db              *sql.DB
	dataMonths      int
	metricsMonths   int
}

// New builds an Enforcer against the analytics store's SQL connection.
func New(db *sql.DB, dataMonths, metricsMonths int) *Enforcer {
	if dataMonths <= 0 {
		dataMonths = DefaultDataMonths
	}
	if metricsMonths <= 0 {
		metricsMonths = DefaultMetricsMonths
	}
	return &Enforcer{db: db, dataMonths: dataMonths, metricsMonths: metricsMonths}
}

// Run enforces retention across all data tables and the metrics
// table. now is injected for testability.
func (e *Enforcer) Run(ctx context.Context, now time.Time) error {
	log := logger.Retention()
	log.Info().Msg("running retention worker - partition-based deletion")

	dataCutoff := CalculateCutoffPartition(now, e.dataMonths)
	log.Info().Str("cutoff", dataCutoff).Int("months", e.dataMonths).Msg("enforcing data table retention")

	for _, table := range RetentionTables {
		if err := e.dropOldPartitions(ctx, table, dataCutoff); err != nil {
			log.Warn().Str("table", table).Err(err).Msg("failed to enforce retention")
		}
	}

	metricsCutoff := CalculateCutoffPartition(now, e.metricsMonths)
	log.Info().Str("cutoff", metricsCutoff).Int("months", e.metricsMonths).Msg("enforcing metrics table retention")
	if err := e.dropOldPartitions(ctx, MetricsTable, metricsCutoff); err != nil {
		log.Warn().Str("table", MetricsTable).Err(err).Msg("failed to enforce metrics retention")
	}

	log.Info().Msg("retention check complete")
	return nil
}

// dropOldPartitions is idempotent (P8): a second run against the same
// cutoff finds no matching partitions and is a no-op. Partitions are
// retired in two steps, the idiomatic Postgres declarative-partitioning
// sequence: DETACH PARTITION (atomically removes the child from the
// parent's partition set) followed by DROP TABLE (reclaims the data).
func (e *Enforcer) dropOldPartitions(ctx context.Context, table, cutoffPartition string) error {
	partitions, err := e.oldPartitions(ctx, table, cutoffPartition)
	if err != nil {
		return err
	}
	if len(partitions) == 0 {
		return nil
	}

	schema, _ := splitTable(table)
	var droppedCount int
	var droppedRows, droppedBytes uint64

	for _, p := range partitions {
		logger.Retention().Info().
			Str("table", table).Str("partition", p.Partition).
			Uint64("rows", p.Rows).Uint64("bytes", p.BytesOnDisk).
			Msg("dropping partition")

		qualifiedChild := fmt.Sprintf("%s.%s", schema, p.Partition)
		detach := fmt.Sprintf("ALTER TABLE %s DETACH PARTITION %s", table, qualifiedChild)
		if _, err := e.db.ExecContext(ctx, detach); err != nil {
			logger.Retention().Error().Str("table", table).Str("partition", p.Partition).Err(err).Msg("failed to detach partition")
			continue
		}
		drop := fmt.Sprintf("DROP TABLE IF EXISTS %s", qualifiedChild)
		if _, err := e.db.ExecContext(ctx, drop); err != nil {
			logger.Retention().Error().Str("table", table).Str("partition", p.Partition).Err(err).Msg("failed to drop detached partition")
			continue
		}
		droppedCount++
		droppedRows += p.Rows
		droppedBytes += p.BytesOnDisk
	}

	if droppedCount > 0 {
		logger.Retention().Info().
			Str("table", table).Int("dropped_partitions", droppedCount).
			Uint64("dropped_rows", droppedRows).
			Str("dropped_bytes_human", formatBytes(droppedBytes)).
			Msg("partition cleanup complete")
	}
	return nil
}

// oldPartitions lists table's child partitions via the catalog views
// pg_inherits/pg_class expose for declarative partitioning, filtering
// to partitions whose YYYYMM suffix sorts before cutoffPartition.
// Partitions follow the naming convention "<table>_p<YYYYMM>".
func (e *Enforcer) oldPartitions(ctx context.Context, table, cutoffPartition string) ([]PartitionInfo, error) {
	schema, relname := splitTable(table)

	query := `
		SELECT child.relname,
		       GREATEST(child.reltuples, 0)::bigint AS rows,
		       pg_total_relation_size(child.oid) AS bytes
		FROM pg_inherits
		JOIN pg_class parent ON pg_inherits.inhparent = parent.oid
		JOIN pg_class child ON pg_inherits.inhrelid = child.oid
		JOIN pg_namespace parent_ns ON parent_ns.oid = parent.relnamespace
		WHERE parent.relname = $1 AND parent_ns.nspname = $2
		ORDER BY child.relname`

	rows, err := e.db.QueryContext(ctx, query, relname, schema)
	if err != nil {
		return nil, fmt.Errorf("query old partitions: %w", err)
	}
	defer rows.Close()

	var out []PartitionInfo
	for rows.Next() {
		var partName string
		var rowCount, bytesOnDisk uint64
		if err := rows.Scan(&partName, &rowCount, &bytesOnDisk); err != nil {
			return nil, fmt.Errorf("scan partition row: %w", err)
		}
		suffix := partitionSuffix(partName)
		if suffix == "" || suffix >= cutoffPartition {
			continue
		}
		out = append(out, PartitionInfo{Partition: partName, PartitionID: suffix, Rows: rowCount, BytesOnDisk: bytesOnDisk})
	}
	return out, rows.Err()
}

// splitTable splits a "schema.table" identifier, defaulting to the
// "public" schema when table carries no qualifier.
func splitTable(table string) (schema, name string) {
	if i := strings.IndexByte(table, '.'); i >= 0 {
		return table[:i], table[i+1:]
	}
	return "public", table
}

// partitionSuffix extracts the trailing YYYYMM id from a partition
// table name of the form "<table>_p<YYYYMM>", or "" if the name
// doesn't match that convention.
func partitionSuffix(partitionName string) string {
	idx := strings.LastIndex(partitionName, "_p")
	if idx == -1 || len(partitionName)-idx-2 != 6 {
		return ""
	}
	suffix := partitionName[idx+2:]
	if _, err := strconv.Atoi(suffix); err != nil {
		return ""
	}
	return suffix
}

// CalculateCutoffPartition computes the YYYYMM cutoff: partitions with
// an id sorting less than this value should be dropped.
func CalculateCutoffPartition(now time.Time, monthsToKeep int) string {
	year, month := now.Year(), int(now.Month())

	totalMonths := year*12 + month - monthsToKeep
	targetYear := (totalMonths - 1) / 12
	targetMonth := ((totalMonths - 1) % 12) + 1

	return fmt.Sprintf("%04d%02d", targetYear, targetMonth)
}

// formatBytes renders a human-readable byte count for log lines only;
// it never appears in the wire response.
func formatBytes(b uint64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
	)
	switch {
	case b >= gb:
		return fmt.Sprintf("%.2f GB", float64(b)/float64(gb))
	case b >= mb:
		return fmt.Sprintf("%.2f MB", float64(b)/float64(mb))
	case b >= kb:
		return fmt.Sprintf("%.2f KB", float64(b)/float64(kb))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
