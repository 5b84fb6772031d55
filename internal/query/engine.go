package query

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/BradenHooton/consensus/internal/database"
	"github.com/BradenHooton/consensus/internal/models"
	"github.com/jackc/pgx/v5"
)

// Result holds either the matching rows or, in count mode, their number
type Result struct {
	Rows    []map[string]any
	Count   int64
	counted bool
}

// CountResult wraps a bare count
func CountResult(n int64) *Result {
	return &Result{Count: n, counted: true}
}

// RowsResult wraps a page of rows
func RowsResult(rows []map[string]any) *Result {
	if rows == nil {
		rows = []map[string]any{}
	}
	return &Result{Rows: rows}
}

// IsCount reports whether the result came from a count-only search
func (r *Result) IsCount() bool {
	return r.counted
}

// MarshalJSON renders a count result as a number and a row result as an array
func (r *Result) MarshalJSON() ([]byte, error) {
	if r.counted {
		return json.Marshal(r.Count)
	}
	if r.Rows == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(r.Rows)
}

type Engine struct {
	db       database.Querier
	registry *Registry
	logger   *slog.Logger
}

func NewEngine(db database.Querier, registry *Registry, logger *slog.Logger) *Engine {
	return &Engine{
		db:       db,
		registry: registry,
		logger:   logger,
	}
}

// Search runs filter against the named entity. Unknown entities, fields and
// relations fail with a ValidationError before any SQL is sent.
func (e *Engine) Search(ctx context.Context, entity string, filter SearchFilter) (*Result, error) {
	ent, ok := e.registry.Entity(entity)
	if !ok {
		return nil, models.NewValidationError("entity", "unknown entity "+strconv.Quote(entity))
	}

	p, err := newPlan(ent, filter)
	if err != nil {
		return nil, err
	}

	if filter.Count {
		sql, args := p.countSQL()
		var n int64
		if err := e.db.QueryRow(ctx, sql, args...).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", ent.Name, err)
		}
		return CountResult(n), nil
	}

	sql, args := p.selectSQL()
	rows, err := e.fetch(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", ent.Name, err)
	}

	for _, r := range p.relations {
		if err := e.attach(ctx, ent, r, rows); err != nil {
			return nil, fmt.Errorf("load %s.%s: %w", ent.Name, r.Name, err)
		}
	}

	for field := range p.internal {
		for _, row := range rows {
			delete(row, field)
		}
	}

	e.logger.Debug("search executed",
		slog.String("entity", ent.Name),
		slog.Int("rows", len(rows)),
		slog.Int("relations", len(p.relations)),
	)

	return RowsResult(rows), nil
}

func (e *Engine) fetch(ctx context.Context, sql string, args ...any) ([]map[string]any, error) {
	rows, err := e.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, rowToMap)
}

// rowToMap keys each value by its column alias, which is the API field name
func rowToMap(row pgx.CollectableRow) (map[string]any, error) {
	values, err := row.Values()
	if err != nil {
		return nil, err
	}
	fields := row.FieldDescriptions()
	m := make(map[string]any, len(values))
	for i, v := range values {
		m[fields[i].Name] = v
	}
	return m, nil
}

// attach loads relation r for every row in one query and stores it under the
// relation name: a list for Many relations, otherwise an object or nil
func (e *Engine) attach(ctx context.Context, ent *Entity, r Relation, rows []map[string]any) error {
	target, _ := e.registry.Entity(r.Entity)
	local, _ := ent.Column(r.LocalField)

	keys, err := collectKeys(local.Kind, r.LocalField, rows)
	if err != nil {
		return err
	}

	grouped := make(map[any][]map[string]any)
	if keys != nil {
		args := []any{keys}
		if r.Many {
			args = append(args, RelatedRowsPerParent)
		}
		related, err := e.fetch(ctx, relationSQL(target, r), args...)
		if err != nil {
			return err
		}
		for _, rel := range related {
			k, ok := keyOf(local.Kind, rel[r.ForeignField])
			if !ok {
				continue
			}
			grouped[k] = append(grouped[k], rel)
		}
	}

	for _, row := range rows {
		k, ok := keyOf(local.Kind, row[r.LocalField])
		matches := grouped[k]
		switch {
		case r.Many:
			if !ok || matches == nil {
				matches = []map[string]any{}
			}
			row[r.Name] = matches
		case ok && len(matches) > 0:
			row[r.Name] = matches[0]
		default:
			row[r.Name] = nil
		}
	}
	return nil
}

// collectKeys returns the distinct join keys as a typed slice pgx can encode
// as an array, or nil when no row has one
func collectKeys(kind Kind, field string, rows []map[string]any) (any, error) {
	switch kind {
	case KindInt:
		seen := make(map[int64]bool)
		var keys []int64
		for _, row := range rows {
			k, ok := keyOf(kind, row[field])
			if !ok {
				continue
			}
			n := k.(int64)
			if !seen[n] {
				seen[n] = true
				keys = append(keys, n)
			}
		}
		if keys == nil {
			return nil, nil
		}
		return keys, nil
	case KindText:
		seen := make(map[string]bool)
		var keys []string
		for _, row := range rows {
			k, ok := keyOf(kind, row[field])
			if !ok {
				continue
			}
			s := k.(string)
			if !seen[s] {
				seen[s] = true
				keys = append(keys, s)
			}
		}
		if keys == nil {
			return nil, nil
		}
		return keys, nil
	default:
		return nil, fmt.Errorf("cannot join on %s column %q", kind, field)
	}
}

func keyOf(kind Kind, v any) (any, bool) {
	if v == nil {
		return nil, false
	}
	switch kind {
	case KindInt:
		switch n := v.(type) {
		case int16:
			return int64(n), true
		case int32:
			return int64(n), true
		}
		n, err := toInt64(v)
		if err != nil {
			return nil, false
		}
		return n, true
	case KindText:
		s, ok := v.(string)
		return s, ok
	default:
		return nil, false
	}
}
