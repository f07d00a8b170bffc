package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/rcliao/agent-council/internal/config"
	"github.com/rcliao/agent-council/internal/keylock"
	"github.com/rcliao/agent-council/internal/logging"
	"github.com/rcliao/agent-council/internal/metrics"
	"github.com/rcliao/agent-council/internal/model"
	"github.com/rcliao/agent-council/internal/redact"
)

// timeFormat is fixed-width so stored timestamps compare lexicographically.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements Memory using SQLite.
type SQLiteStore struct {
	db       *sql.DB
	cfg      config.MemoryConfig
	redactor *redact.Redactor
	logger   *zap.Logger
	now      func() time.Time
	keys     keylock.Map

	idMu    sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *SQLiteStore) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *SQLiteStore) { s.logger = logging.OrNop(l).Named("store") }
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string, cfg config.MemoryConfig, opts ...Option) (*SQLiteStore, error) {
	redactor, err := redact.New(cfg.Redaction)
	if err != nil {
		return nil, fmt.Errorf("build redactor: %w", err)
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One connection serializes writers; per-key locks order merges on top of it.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{
		db:       db,
		cfg:      cfg,
		redactor: redactor,
		logger:   zap.NewNop(),
		now:      time.Now,
		entropy:  ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) newID(t time.Time) string {
	s.idMu.Lock()
	defer s.idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), s.entropy).String()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		id            TEXT PRIMARY KEY,
		scope         TEXT NOT NULL,
		scope_id      TEXT NOT NULL,
		key           TEXT NOT NULL,
		value         TEXT NOT NULL,
		confidence    REAL NOT NULL,
		ttl_class     TEXT NOT NULL,
		expires_at    TEXT,
		first_seen_at TEXT NOT NULL,
		last_seen_at  TEXT NOT NULL,
		last_used_at  TEXT,
		usage_count   INTEGER NOT NULL DEFAULT 0,
		provenance    TEXT,
		deleted_at    TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_records_scope_key ON records(scope, scope_id, key);
	CREATE INDEX IF NOT EXISTS idx_records_expires ON records(expires_at);
	CREATE INDEX IF NOT EXISTS idx_records_deleted ON records(deleted_at);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_records_active
		ON records(scope, scope_id, key) WHERE deleted_at IS NULL;

	CREATE TABLE IF NOT EXISTS record_links (
		from_id    TEXT NOT NULL REFERENCES records(id),
		to_id      TEXT NOT NULL REFERENCES records(id),
		rel        TEXT NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (from_id, to_id, rel)
	);
	CREATE INDEX IF NOT EXISTS idx_links_to ON record_links(to_id);

	CREATE TABLE IF NOT EXISTS agents (
		id          TEXT PRIMARY KEY,
		profile     TEXT NOT NULL,
		reliability REAL NOT NULL,
		samples     INTEGER NOT NULL,
		updated_at  TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// WriteGate persists a fact if it passes policy, merging into an existing
// active record for the same (scope, scope id, key).
func (s *SQLiteStore) WriteGate(ctx context.Context, p WriteParams) (*model.Record, error) {
	if reason := s.rejectReason(p); reason != "" {
		return s.reject(p, reason), nil
	}

	value, err := normalizeValue(p.Value)
	if err != nil {
		return s.reject(p, "value not encodable"), nil
	}
	value = s.redactor.Value(value)
	if s.redactor.Empty(value) {
		return s.reject(p, "empty after redaction"), nil
	}

	unlock := s.keys.Lock(string(p.Scope) + "\x00" + p.ScopeID + "\x00" + p.Key)
	defer unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := s.now().UTC()
	expiresAt := s.expiry(p.TTLClass, now)

	existing, err := scanRecord(tx.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM records
		 WHERE scope = ? AND scope_id = ? AND key = ? AND deleted_at IS NULL`,
		p.Scope, p.ScopeID, p.Key))
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load existing: %w", err)
	}

	var rec model.Record
	result := "created"

	switch {
	case err == nil && existing.Active(now):
		rec = existing
		rec.Confidence = mergeConfidence(existing.Confidence, p.Confidence)
		if featureCount(value) >= featureCount(existing.Value) {
			rec.Value = value
		}
		rec.TTLClass = p.TTLClass
		rec.ExpiresAt = expiresAt
		rec.LastSeenAt = now
		rec.UsageCount++
		rec.Provenance = mergeProvenance(existing.Provenance, p.Provenance)

		valueJSON, err := json.Marshal(rec.Value)
		if err != nil {
			return nil, fmt.Errorf("encode value: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE records SET value = ?, confidence = ?, ttl_class = ?, expires_at = ?,
			        last_seen_at = ?, usage_count = usage_count + 1, provenance = ?
			 WHERE id = ?`,
			string(valueJSON), rec.Confidence, rec.TTLClass, formatTimePtr(rec.ExpiresAt),
			formatTime(now), nullString(rec.Provenance), rec.ID)
		if err != nil {
			return nil, fmt.Errorf("merge record: %w", err)
		}
		result = "merged"

	default:
		if err == nil {
			// Expired: retire it so the new record owns the key.
			if _, err := tx.ExecContext(ctx,
				`UPDATE records SET deleted_at = ? WHERE id = ?`, formatTime(now), existing.ID); err != nil {
				return nil, fmt.Errorf("retire expired record: %w", err)
			}
		}

		rec = model.Record{
			ID:          s.newID(now),
			Scope:       p.Scope,
			ScopeID:     p.ScopeID,
			Key:         p.Key,
			Value:       value,
			Confidence:  clamp01(p.Confidence),
			TTLClass:    p.TTLClass,
			ExpiresAt:   expiresAt,
			FirstSeenAt: now,
			LastSeenAt:  now,
			Provenance:  mergeProvenance("", p.Provenance),
		}
		valueJSON, err := json.Marshal(rec.Value)
		if err != nil {
			return nil, fmt.Errorf("encode value: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO records (id, scope, scope_id, key, value, confidence, ttl_class, expires_at,
			                      first_seen_at, last_seen_at, usage_count, provenance)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
			rec.ID, rec.Scope, rec.ScopeID, rec.Key, string(valueJSON), rec.Confidence, rec.TTLClass,
			formatTimePtr(rec.ExpiresAt), formatTime(now), formatTime(now), nullString(rec.Provenance))
		if err != nil {
			return nil, fmt.Errorf("insert record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	metrics.GateDecisions.WithLabelValues(result).Inc()
	s.logger.Debug("memory written",
		zap.String("result", result),
		zap.String("id", rec.ID),
		zap.String("scope", string(rec.Scope)),
		zap.String("key", rec.Key),
		zap.Float64("confidence", rec.Confidence))

	return &rec, nil
}

func (s *SQLiteStore) rejectReason(p WriteParams) string {
	switch {
	case !model.ValidScopes[p.Scope]:
		return "unknown scope"
	case !model.ValidTTLClasses[p.TTLClass]:
		return "unknown ttl class"
	case strings.TrimSpace(p.ScopeID) == "" || strings.TrimSpace(p.Key) == "":
		return "missing scope id or key"
	case math.IsNaN(p.Confidence) || p.Confidence < s.cfg.PersistThreshold:
		return "confidence below threshold"
	}
	return ""
}

func (s *SQLiteStore) reject(p WriteParams, reason string) *model.Record {
	metrics.GateDecisions.WithLabelValues("rejected").Inc()
	s.logger.Debug("memory write rejected",
		zap.String("reason", reason),
		zap.String("scope", string(p.Scope)),
		zap.String("key", p.Key),
		zap.Float64("confidence", p.Confidence))
	return nil
}

func (s *SQLiteStore) expiry(class model.TTLClass, now time.Time) *time.Time {
	days, ok := s.cfg.TTLDaysFor(class)
	if !ok {
		return nil
	}
	t := now.Add(time.Duration(days * 24 * float64(time.Hour)))
	return &t
}

// Retrieve returns active records for a scope ordered by relevance, and
// marks each returned record as used. A malformed scope or an empty scope id
// yields no records.
func (s *SQLiteStore) Retrieve(ctx context.Context, p RetrieveParams) ([]model.Record, error) {
	start := time.Now()
	defer func() { metrics.RetrieveDuration.Observe(time.Since(start).Seconds()) }()

	if !model.ValidScopes[p.Scope] || strings.TrimSpace(p.ScopeID) == "" {
		return nil, nil
	}
	limit := p.Limit
	if limit <= 0 {
		limit = s.cfg.DefaultLimit
	}
	if limit <= 0 {
		limit = 20
	}

	now := s.now().UTC()
	where := []string{"deleted_at IS NULL", "(expires_at IS NULL OR expires_at > ?)", "scope = ?", "scope_id = ?"}
	args := []interface{}{formatTime(now), p.Scope, p.ScopeID}
	if p.Key != "" {
		where = append(where, "key = ?")
		args = append(args, p.Key)
	}

	records, err := s.queryRecords(ctx,
		`SELECT `+recordColumns+` FROM records WHERE `+strings.Join(where, " AND "), args...)
	if err != nil {
		return nil, err
	}

	scored := records[:0]
	for _, r := range records {
		r.Score = Relevance(r, s.cfg, now)
		if r.Score < s.cfg.InclusionThreshold {
			continue
		}
		scored = append(scored, r)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		if !scored[i].LastSeenAt.Equal(scored[j].LastSeenAt) {
			return scored[i].LastSeenAt.After(scored[j].LastSeenAt)
		}
		return scored[i].ID < scored[j].ID
	})
	if len(scored) > limit {
		scored = scored[:limit]
	}

	if err := s.markUsed(ctx, scored, now); err != nil {
		return nil, err
	}
	return scored, nil
}

func (s *SQLiteStore) markUsed(ctx context.Context, records []model.Record, now time.Time) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	ts := formatTime(now)
	for i := range records {
		if _, err := tx.ExecContext(ctx,
			`UPDATE records SET usage_count = usage_count + 1, last_used_at = ? WHERE id = ?`,
			ts, records[i].ID); err != nil {
			return fmt.Errorf("mark used: %w", err)
		}
		records[i].UsageCount++
		used := now
		records[i].LastUsedAt = &used
	}
	return tx.Commit()
}

// Get returns a record by ID. Expired records are returned; deleted ones are not.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*model.Record, error) {
	rec, err := scanRecord(s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE id = ? AND deleted_at IS NULL`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// List returns active records, newest first.
func (s *SQLiteStore) List(ctx context.Context, p ListParams) ([]model.Record, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}

	now := formatTime(s.now().UTC())
	where := []string{"deleted_at IS NULL", "(expires_at IS NULL OR expires_at > ?)"}
	args := []interface{}{now}

	if p.Scope != "" {
		where = append(where, "scope = ?")
		args = append(args, p.Scope)
	}
	if p.ScopeID != "" {
		where = append(where, "scope_id = ?")
		args = append(args, p.ScopeID)
	}
	if p.TTLClass != "" {
		where = append(where, "ttl_class = ?")
		args = append(args, p.TTLClass)
	}
	args = append(args, limit)

	return s.queryRecords(ctx,
		`SELECT `+recordColumns+` FROM records WHERE `+strings.Join(where, " AND ")+`
		 ORDER BY last_seen_at DESC, id DESC LIMIT ?`, args...)
}

// Forget soft-deletes (or hard-deletes) the active record for a key.
func (s *SQLiteStore) Forget(ctx context.Context, p ForgetParams) error {
	unlock := s.keys.Lock(string(p.Scope) + "\x00" + p.ScopeID + "\x00" + p.Key)
	defer unlock()

	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM records WHERE scope = ? AND scope_id = ? AND key = ? AND deleted_at IS NULL`,
		p.Scope, p.ScopeID, p.Key).Scan(&id)
	if err != nil {
		return fmt.Errorf("%w: %s/%s/%s", ErrNotFound, p.Scope, p.ScopeID, p.Key)
	}

	if p.Hard {
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM record_links WHERE from_id = ? OR to_id = ?`, id, id); err != nil {
			return err
		}
		_, err = s.db.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id)
		return err
	}

	_, err = s.db.ExecContext(ctx, `UPDATE records SET deleted_at = ? WHERE id = ?`,
		formatTime(s.now().UTC()), id)
	return err
}

// PurgeExpired soft-deletes records whose expiry has passed.
func (s *SQLiteStore) PurgeExpired(ctx context.Context) (int, error) {
	now := formatTime(s.now().UTC())
	res, err := s.db.ExecContext(ctx,
		`UPDATE records SET deleted_at = ?
		 WHERE deleted_at IS NULL AND expires_at IS NOT NULL AND expires_at <= ?`, now, now)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const recordColumns = `id, scope, scope_id, key, value, confidence, ttl_class, expires_at,
	first_seen_at, last_seen_at, last_used_at, usage_count, provenance, deleted_at`

func (s *SQLiteStore) queryRecords(ctx context.Context, query string, args ...interface{}) ([]model.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []model.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scanner) (model.Record, error) {
	var r model.Record
	var scope, ttl, valueJSON, firstSeen, lastSeen string
	var expiresAt, lastUsed, provenance, deletedAt sql.NullString

	err := row.Scan(
		&r.ID, &scope, &r.ScopeID, &r.Key, &valueJSON, &r.Confidence, &ttl, &expiresAt,
		&firstSeen, &lastSeen, &lastUsed, &r.UsageCount, &provenance, &deletedAt,
	)
	if err != nil {
		return r, err
	}

	r.Scope = model.Scope(scope)
	r.TTLClass = model.TTLClass(ttl)
	if err := json.Unmarshal([]byte(valueJSON), &r.Value); err != nil {
		return r, fmt.Errorf("decode value of %s: %w", r.ID, err)
	}
	r.FirstSeenAt = parseTime(firstSeen)
	r.LastSeenAt = parseTime(lastSeen)
	r.ExpiresAt = parseTimePtr(expiresAt)
	r.LastUsedAt = parseTimePtr(lastUsed)
	r.DeletedAt = parseTimePtr(deletedAt)
	if provenance.Valid {
		r.Provenance = provenance.String
	}
	return r, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeFormat, s)
	return t
}

func parseTimePtr(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// normalizeValue round-trips v through JSON so stored and returned values
// share one shape (map[string]any, []any, string, float64, bool).
func normalizeValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// mergeConfidence combines two confidences by probabilistic OR.
func mergeConfidence(old, new float64) float64 {
	return clamp01(1 - (1-clamp01(old))*(1-clamp01(new)))
}

// featureCount counts the leaf fields of a value.
func featureCount(v any) int {
	switch t := v.(type) {
	case nil:
		return 0
	case map[string]any:
		n := 0
		for _, val := range t {
			n += featureCount(val)
		}
		return n
	case []any:
		n := 0
		for _, val := range t {
			n += featureCount(val)
		}
		return n
	default:
		return 1
	}
}

// mergeProvenance unions comma-separated provenance lists.
func mergeProvenance(a, b string) string {
	seen := map[string]bool{}
	var out []string
	for _, part := range strings.Split(a+","+b, ",") {
		part = strings.TrimSpace(part)
		if part == "" || seen[part] {
			continue
		}
		seen[part] = true
		out = append(out, part)
	}
	sort.Strings(out)
	return strings.Join(out, ",")
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
