// Package repository implements the persistence ports over ClickHouse
// and Kafka.
package repository

import (
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"PulseScan/internal/domain/models"
	drepo "PulseScan/internal/domain/repository"
	pkgch "PulseScan/pkg/clickhouse"
	"PulseScan/pkg/logger"
)

const database = "pulsescan"

// metaColumns precede the feature columns in signal_features.
var metaColumns = []string{
	"signal_id", "symbol", "ts",
	"confidence", "entry_price",
	"outcome", "exit_price", "pnl_percent", "evaluated_at",
	"version",
}

// SignalStore persists signals, alerts and model metrics in ClickHouse.
// signal_features is a ReplacingMergeTree keyed by signal_id; outcome
// updates land as a higher-version row and collapse on merge.
type SignalStore struct {
	db  *sql.DB
	ch  *pkgch.Client
	log *logger.Logger
}

func NewSignalStore(ch *pkgch.Client, log *logger.Logger) drepo.SignalStore {
	return &SignalStore{db: ch.DB(), ch: ch, log: log}
}

// Init creates the database and tables. Idempotent.
func (s *SignalStore) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE DATABASE IF NOT EXISTS ` + database,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.opportunities (
			id String,
			session_id String,
			ts DateTime64(3),
			symbol String,
			kind LowCardinality(String),
			score Float64,
			direction LowCardinality(String),
			last_price Float64,
			is_new UInt8
		) ENGINE = MergeTree ORDER BY (ts, symbol)`, database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.alerts (
			id String,
			ts DateTime64(3),
			symbol String,
			kind LowCardinality(String),
			message String,
			level LowCardinality(String)
		) ENGINE = MergeTree ORDER BY (ts, symbol)`, database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.sessions (
			id String,
			started_at DateTime64(3),
			ended_at DateTime64(3),
			opportunities UInt32,
			alerts UInt32
		) ENGINE = ReplacingMergeTree(ended_at) ORDER BY id`, database),
		s.signalFeaturesDDL(),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.ml_model_metrics (
			model_version String,
			training_date String,
			training_samples UInt32,
			validation_auc Float64,
			validation_accuracy Float64,
			win_rate_predicted Float64,
			win_rate_actual Float64,
			feature_importance_json String,
			created_at DateTime64(3)
		) ENGINE = MergeTree ORDER BY created_at`, database),
	}
	return s.ch.InitSchema(ctx, stmts)
}

func (s *SignalStore) signalFeaturesDDL() string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s.signal_features (\n", database)
	b.WriteString(`	signal_id String,
	symbol String,
	ts DateTime64(3),
	confidence Float64,
	entry_price Float64,
	outcome LowCardinality(String),
	exit_price Float64,
	pnl_percent Float64,
	evaluated_at DateTime64(3),
	version UInt64`)
	for _, name := range models.FeatureNames {
		fmt.Fprintf(&b, ",\n	%s Float64", name)
	}
	b.WriteString("\n) ENGINE = ReplacingMergeTree(version) ORDER BY signal_id")
	return b.String()
}

func (s *SignalStore) SaveOpportunity(ctx context.Context, sessionID, symbol, kind string, score float64, dir models.Direction, lastPrice float64, isNew bool) error {
	q := fmt.Sprintf(`INSERT INTO %s.opportunities
		(id, session_id, ts, symbol, kind, score, direction, last_price, is_new)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, database)
	var newFlag uint8
	if isNew {
		newFlag = 1
	}
	_, err := s.db.ExecContext(ctx, q,
		uuid.NewString(), sessionID, time.Now().UTC(), symbol, kind, score, string(dir), lastPrice, newFlag)
	if err != nil {
		return fmt.Errorf("save opportunity: %w", err)
	}
	return nil
}

func (s *SignalStore) SaveAlert(ctx context.Context, symbol, kind, message, level string) error {
	q := fmt.Sprintf(`INSERT INTO %s.alerts (id, ts, symbol, kind, message, level)
		VALUES (?, ?, ?, ?, ?, ?)`, database)
	_, err := s.db.ExecContext(ctx, q, uuid.NewString(), time.Now().UTC(), symbol, kind, message, level)
	if err != nil {
		return fmt.Errorf("save alert: %w", err)
	}
	return nil
}

func (s *SignalStore) OpenSession(ctx context.Context) (string, error) {
	id := uuid.NewString()
	q := fmt.Sprintf(`INSERT INTO %s.sessions (id, started_at, ended_at, opportunities, alerts)
		VALUES (?, ?, ?, 0, 0)`, database)
	if _, err := s.db.ExecContext(ctx, q, id, time.Now().UTC(), time.Time{}); err != nil {
		return "", fmt.Errorf("open session: %w", err)
	}
	return id, nil
}

func (s *SignalStore) CloseSession(ctx context.Context, id string, opportunities, alerts int) error {
	var started time.Time
	q := fmt.Sprintf(`SELECT started_at FROM %s.sessions FINAL WHERE id = ?`, database)
	if err := s.db.QueryRowContext(ctx, q, id).Scan(&started); err != nil {
		return fmt.Errorf("close session %s: %w", id, err)
	}
	ins := fmt.Sprintf(`INSERT INTO %s.sessions (id, started_at, ended_at, opportunities, alerts)
		VALUES (?, ?, ?, ?, ?)`, database)
	if _, err := s.db.ExecContext(ctx, ins, id, started, time.Now().UTC(), opportunities, alerts); err != nil {
		return fmt.Errorf("close session %s: %w", id, err)
	}
	return nil
}

// UpsertSignalFeatures writes one full signal row. The version column
// makes the latest write win after merges.
func (s *SignalStore) UpsertSignalFeatures(ctx context.Context, rec *models.SignalRecord) error {
	if rec.Features == nil {
		return fmt.Errorf("upsert signal %s: features missing", rec.ID)
	}
	args := make([]any, 0, len(metaColumns)+len(models.FeatureNames))
	args = append(args,
		rec.ID, rec.Symbol, rec.Timestamp.UTC(),
		rec.Confidence, rec.EntryPrice,
		string(rec.Outcome), rec.ExitPrice, rec.PnLPercent, rec.EvaluatedAt.UTC(),
		uint64(time.Now().UnixNano()),
	)
	for _, v := range rec.Features.Vector() {
		args = append(args, v)
	}
	if _, err := s.db.ExecContext(ctx, s.insertSignalQuery(), args...); err != nil {
		return fmt.Errorf("upsert signal %s: %w", rec.ID, err)
	}
	return nil
}

func (s *SignalStore) insertSignalQuery() string {
	cols := append(append([]string{}, metaColumns...), models.FeatureNames...)
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	return fmt.Sprintf("INSERT INTO %s.signal_features (%s) VALUES (%s)",
		database, strings.Join(cols, ", "), marks)
}

// UpdateOutcome rewrites the signal row with the settled outcome at a
// higher version.
func (s *SignalStore) UpdateOutcome(ctx context.Context, signalID string, outcome models.Outcome, exitPrice, pnlPct float64) error {
	rec, err := s.readSignal(ctx, signalID)
	if err != nil {
		return fmt.Errorf("update outcome %s: %w", signalID, err)
	}
	rec.Outcome = outcome
	rec.ExitPrice = exitPrice
	rec.PnLPercent = pnlPct
	rec.EvaluatedAt = time.Now().UTC()
	return s.UpsertSignalFeatures(ctx, rec)
}

func (s *SignalStore) PendingSignals(ctx context.Context) ([]*models.SignalRecord, error) {
	q := s.selectSignalQuery() + " WHERE outcome = ? ORDER BY ts ASC"
	return s.querySignals(ctx, q, string(models.OutcomePending))
}

func (s *SignalStore) CompletedSignals(ctx context.Context, limit int) ([]*models.SignalRecord, error) {
	if limit <= 0 {
		limit = 500
	}
	q := s.selectSignalQuery() + " WHERE outcome IN (?, ?) ORDER BY evaluated_at DESC LIMIT " + strconv.Itoa(limit)
	return s.querySignals(ctx, q, string(models.OutcomeWin), string(models.OutcomeLoss))
}

func (s *SignalStore) readSignal(ctx context.Context, signalID string) (*models.SignalRecord, error) {
	q := s.selectSignalQuery() + " WHERE signal_id = ? LIMIT 1"
	recs, err := s.querySignals(ctx, q, signalID)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("signal %s not found", signalID)
	}
	return recs[0], nil
}

func (s *SignalStore) selectSignalQuery() string {
	cols := append(append([]string{}, metaColumns...), models.FeatureNames...)
	return fmt.Sprintf("SELECT %s FROM %s.signal_features FINAL",
		strings.Join(cols, ", "), database)
}

func (s *SignalStore) querySignals(ctx context.Context, q string, args ...any) ([]*models.SignalRecord, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query signals: %w", err)
	}
	defer rows.Close()

	var out []*models.SignalRecord
	for rows.Next() {
		rec, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("signal rows: %w", err)
	}
	return out, nil
}

func scanSignal(rows *sql.Rows) (*models.SignalRecord, error) {
	var (
		rec     models.SignalRecord
		outcome string
		version uint64
		vector  = make([]float64, len(models.FeatureNames))
	)
	dest := []any{
		&rec.ID, &rec.Symbol, &rec.Timestamp,
		&rec.Confidence, &rec.EntryPrice,
		&outcome, &rec.ExitPrice, &rec.PnLPercent, &rec.EvaluatedAt,
		&version,
	}
	for i := range vector {
		dest = append(dest, &vector[i])
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, fmt.Errorf("scan signal: %w", err)
	}

	features, err := models.FromVector(vector)
	if err != nil {
		return nil, err
	}
	features.SignalID = rec.ID
	features.Symbol = rec.Symbol

	rec.Outcome = models.Outcome(outcome)
	rec.Features = features
	rec.Direction = directionFromEncoding(features.Direction)
	rec.EntryType = entryTypeFromEncoding(features.EntryType)
	return &rec, nil
}

// ExportCSV streams completed signals as training rows in ascending ts
// order: the feature schema plus a final outcome column (1 WIN, 0 LOSS).
func (s *SignalStore) ExportCSV(ctx context.Context, w io.Writer) error {
	q := s.selectSignalQuery() + " WHERE outcome IN (?, ?) ORDER BY ts ASC"
	recs, err := s.querySignals(ctx, q, string(models.OutcomeWin), string(models.OutcomeLoss))
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	header := append(append([]string{}, models.FeatureNames...), "outcome")
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("export csv: %w", err)
	}
	for _, rec := range recs {
		label := "0"
		if rec.Outcome == models.OutcomeWin {
			label = "1"
		}
		row := append(rec.Features.CSVRow(), label)
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("export csv: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func (s *SignalStore) SaveModelMetrics(ctx context.Context, m map[string]any) error {
	row, err := newModelMetricsRow(m)
	if err != nil {
		return fmt.Errorf("model metrics: %w", err)
	}
	q := fmt.Sprintf(`INSERT INTO %s.ml_model_metrics
		(model_version, training_date, training_samples, validation_auc, validation_accuracy,
		win_rate_predicted, win_rate_actual, feature_importance_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, database)
	_, err = s.db.ExecContext(ctx, q,
		row.modelVersion, row.trainingDate, row.trainingSamples,
		row.validationAUC, row.validationAccuracy,
		row.winRatePredicted, row.winRateActual,
		row.featureImportance, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("model metrics: %w", err)
	}
	return nil
}

type modelMetricsRow struct {
	modelVersion       string
	trainingDate       string
	trainingSamples    uint32
	validationAUC      float64
	validationAccuracy float64
	winRatePredicted   float64
	winRateActual      float64
	featureImportance  string
}

// newModelMetricsRow maps the predictor's stats document onto the table
// columns. Absent fields stay at their zero values; feature_importance
// is kept as a JSON string.
func newModelMetricsRow(m map[string]any) (modelMetricsRow, error) {
	row := modelMetricsRow{
		modelVersion:       metricString(m, "model_version"),
		trainingDate:       metricString(m, "training_date"),
		trainingSamples:    uint32(metricFloat(m, "training_samples")),
		validationAUC:      metricFloat(m, "validation_auc"),
		validationAccuracy: metricFloat(m, "validation_accuracy"),
		winRatePredicted:   metricFloat(m, "win_rate_predicted"),
		winRateActual:      metricFloat(m, "win_rate_actual"),
	}
	if imp, ok := m["feature_importance"]; ok && imp != nil {
		b, err := json.Marshal(imp)
		if err != nil {
			return row, fmt.Errorf("feature importance: %w", err)
		}
		row.featureImportance = string(b)
	}
	return row, nil
}

func metricString(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func metricFloat(m map[string]any, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

func (s *SignalStore) Health(ctx context.Context) error {
	return s.ch.Health(ctx)
}

func (s *SignalStore) Close() error {
	return s.ch.Close()
}

func directionFromEncoding(v int) models.Direction {
	switch {
	case v > 0:
		return models.DirectionLong
	case v < 0:
		return models.DirectionShort
	default:
		return models.DirectionNeutral
	}
}

func entryTypeFromEncoding(v int) models.EntryType {
	for _, et := range []models.EntryType{models.EntryMomentum, models.EntryEarly, models.EntryBreakout, models.EntryReversal} {
		if et.Encode() == v {
			return et
		}
	}
	return models.EntryMomentum
}
