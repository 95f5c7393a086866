package postgres_test

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// assign copies canned row values into scan destinations by position.
// Value types must line up with the repo's scan targets.
func assign(dest []any, vals []any) error {
	if len(dest) != len(vals) {
		return fmt.Errorf("scan: %d destinations for %d values", len(dest), len(vals))
	}
	for i, d := range dest {
		dv := reflect.ValueOf(d)
		if dv.Kind() != reflect.Pointer || dv.IsNil() {
			return fmt.Errorf("scan: destination %d is not a pointer", i)
		}
		if vals[i] == nil {
			dv.Elem().Set(reflect.Zero(dv.Elem().Type()))
			continue
		}
		sv := reflect.ValueOf(vals[i])
		if !sv.Type().AssignableTo(dv.Elem().Type()) {
			return fmt.Errorf("scan: destination %d wants %s, value is %T", i, dv.Elem().Type(), vals[i])
		}
		dv.Elem().Set(sv)
	}
	return nil
}

// rowStub implements pgx.Row
type rowStub struct{ scan func(dest ...any) error }

func (r rowStub) Scan(dest ...any) error { return r.scan(dest...) }

// scanRow builds a rowStub serving one canned row.
func scanRow(vals ...any) rowStub {
	return rowStub{scan: func(dest ...any) error { return assign(dest, vals) }}
}

// errRow builds a rowStub whose Scan fails.
func errRow(err error) rowStub {
	return rowStub{scan: func(_ ...any) error { return err }}
}

// rowsStub implements pgx.Rows over a fixed result set.
type rowsStub struct {
	rows    [][]any
	idx     int
	scanErr error
	rowsErr error
	closed  bool
}

func (r *rowsStub) Next() bool {
	r.idx++
	return r.idx <= len(r.rows)
}

func (r *rowsStub) Scan(dest ...any) error {
	if r.scanErr != nil {
		return r.scanErr
	}
	if r.idx < 1 || r.idx > len(r.rows) {
		return errors.New("scan: no current row")
	}
	return assign(dest, r.rows[r.idx-1])
}

func (r *rowsStub) Close()                                       { r.closed = true }
func (r *rowsStub) Err() error                                   { return r.rowsErr }
func (r *rowsStub) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *rowsStub) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *rowsStub) Values() ([]any, error)                       { return nil, nil }
func (r *rowsStub) RawValues() [][]byte                          { return nil }
func (r *rowsStub) Conn() *pgx.Conn                              { return nil }

// txStub implements pgx.Tx and records every statement.
type txStub struct {
	sql       []string
	args      [][]any
	execTags  []pgconn.CommandTag
	execErrs  []error
	execIdx   int
	commits   int
	rollbacks int
	commitErr error
}

func (t *txStub) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	t.sql = append(t.sql, sql)
	t.args = append(t.args, args)
	i := t.execIdx
	t.execIdx++
	var tag pgconn.CommandTag
	if i < len(t.execTags) {
		tag = t.execTags[i]
	}
	var err error
	if i < len(t.execErrs) {
		err = t.execErrs[i]
	}
	return tag, err
}

func (t *txStub) Commit(context.Context) error          { t.commits++; return t.commitErr }
func (t *txStub) Rollback(context.Context) error        { t.rollbacks++; return nil }
func (t *txStub) Begin(context.Context) (pgx.Tx, error) { return t, nil }
func (t *txStub) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *txStub) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (t *txStub) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (t *txStub) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *txStub) Query(context.Context, string, ...any) (pgx.Rows, error) { return &rowsStub{}, nil }
func (t *txStub) QueryRow(context.Context, string, ...any) pgx.Row        { return errRow(pgx.ErrNoRows) }
func (t *txStub) Conn() *pgx.Conn                                         { return nil }

// poolStub implements postgres.PgxPool for tests.
// It records every statement and its args so tests can assert on the
// generated SQL. Define in a shared helper so multiple *_test.go files
// can reuse it without redefs.
type poolStub struct {
	execTag  pgconn.CommandTag
	execErr  error
	row      rowStub
	rows     *rowsStub
	queryErr error
	tx       *txStub
	beginErr error

	sql  []string
	args [][]any
}

func (p *poolStub) record(sql string, args []any) {
	p.sql = append(p.sql, sql)
	p.args = append(p.args, args)
}

func (p *poolStub) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	p.record(sql, args)
	return p.execTag, p.execErr
}

func (p *poolStub) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	p.record(sql, args)
	if p.row.scan == nil {
		return errRow(errors.New("no row configured"))
	}
	return p.row
}

func (p *poolStub) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	p.record(sql, args)
	if p.queryErr != nil {
		return nil, p.queryErr
	}
	if p.rows == nil {
		p.rows = &rowsStub{}
	}
	return p.rows, nil
}

func (p *poolStub) BeginTx(context.Context, pgx.TxOptions) (pgx.Tx, error) {
	if p.beginErr != nil {
		return nil, p.beginErr
	}
	if p.tx == nil {
		p.tx = &txStub{}
	}
	return p.tx, nil
}

func ptr[T any](v T) *T { return &v }
