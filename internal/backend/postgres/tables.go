package postgres

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"

	"globalchat/internal/backend"
	"globalchat/internal/pkg/errs"
	"globalchat/internal/pkg/logx"
)

// Tables reads and writes rows as column maps. Table and column names are quoted
// identifiers, values are always bound parameters.
type Tables struct {
	db DBTX
}

var _ backend.Tables = (*Tables)(nil)

// NewTables creates a table store on db.
func NewTables(db DBTX) *Tables {
	return &Tables{db: db}
}

func whereClause(filters []backend.Filter, args []any) (string, []any) {
	if len(filters) == 0 {
		return "", args
	}

	conds := make([]string, 0, len(filters))
	for _, f := range filters {
		args = append(args, f.Value)
		conds = append(conds, fmt.Sprintf("%s = $%d", pgx.Identifier{f.Column}.Sanitize(), len(args)))
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// buildSelect renders a query returning each matching row as one jsonb object.
func buildSelect(table string, filters []backend.Filter) (string, []any) {
	where, args := whereClause(filters, nil)
	query := fmt.Sprintf("SELECT to_jsonb(t) FROM %s AS t%s", pgx.Identifier{table}.Sanitize(), where)
	return query, args
}

// buildInsert renders an INSERT with columns in sorted order.
func buildInsert(table string, row backend.Row) (string, []any) {
	if len(row) == 0 {
		return fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", pgx.Identifier{table}.Sanitize()), nil
	}

	columns := sortedColumns(row)
	names := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	args := make([]any, len(columns))
	for i, col := range columns {
		names[i] = pgx.Identifier{col}.Sanitize()
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = row[col]
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		pgx.Identifier{table}.Sanitize(),
		strings.Join(names, ", "),
		strings.Join(placeholders, ", "),
	)
	return query, args
}

// buildUpdate renders an UPDATE setting the patch columns in sorted order.
func buildUpdate(table string, filter backend.Filter, patch backend.Row) (string, []any) {
	columns := sortedColumns(patch)
	sets := make([]string, len(columns))
	args := make([]any, 0, len(columns)+1)
	for i, col := range columns {
		args = append(args, patch[col])
		sets[i] = fmt.Sprintf("%s = $%d", pgx.Identifier{col}.Sanitize(), len(args))
	}

	where, args := whereClause([]backend.Filter{filter}, args)
	query := fmt.Sprintf("UPDATE %s SET %s%s", pgx.Identifier{table}.Sanitize(), strings.Join(sets, ", "), where)
	return query, args
}

func sortedColumns(row backend.Row) []string {
	columns := make([]string, 0, len(row))
	for col := range row {
		columns = append(columns, col)
	}
	slices.Sort(columns)
	return columns
}

func (t *Tables) SelectOne(ctx context.Context, table string, filter backend.Filter) (backend.Row, error) {
	rows, err := t.SelectAll(ctx, table, filter)
	if err != nil {
		return nil, err
	}

	switch len(rows) {
	case 0:
		return nil, errs.NewError(errs.ErrNotFound, "row")
	case 1:
		return rows[0], nil
	default:
		return nil, errs.Wrap(errs.ErrStore, fmt.Errorf("expected one row in %s, got %d", table, len(rows)))
	}
}

func (t *Tables) SelectAll(ctx context.Context, table string, filters ...backend.Filter) ([]backend.Row, error) {
	query, args := buildSelect(table, filters)

	rows, err := t.db.Query(ctx, query, args...)
	if err != nil {
		logx.Error(err, "select failed", "table", table)
		return nil, errs.Wrap(errs.ErrStore, err)
	}

	result, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (backend.Row, error) {
		var r map[string]any
		if err := row.Scan(&r); err != nil {
			return nil, err
		}
		return backend.Row(r), nil
	})
	if err != nil {
		logx.Error(err, "select scan failed", "table", table)
		return nil, errs.Wrap(errs.ErrStore, err)
	}

	return result, nil
}

func (t *Tables) Insert(ctx context.Context, table string, row backend.Row) error {
	query, args := buildInsert(table, row)

	if _, err := t.db.Exec(ctx, query, args...); err != nil {
		if IsUniqueViolation(err) || IsForeignKeyViolation(err) {
			logx.Warn("insert rejected by constraint", "table", table, "error", err.Error())
		} else {
			logx.Error(err, "insert failed", "table", table)
		}
		return errs.Wrap(errs.ErrStore, err)
	}
	return nil
}

func (t *Tables) Update(ctx context.Context, table string, filter backend.Filter, patch backend.Row) error {
	if len(patch) == 0 {
		return nil
	}
	if filter.Column == "" {
		return errs.Wrap(errs.ErrStore, errors.New("update without filter"))
	}

	query, args := buildUpdate(table, filter, patch)

	if _, err := t.db.Exec(ctx, query, args...); err != nil {
		logx.Error(err, "update failed", "table", table)
		return errs.Wrap(errs.ErrStore, err)
	}
	return nil
}
