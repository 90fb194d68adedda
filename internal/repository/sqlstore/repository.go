package sqlstore

import (
	"context"
	"fmt"
	"iter"
	"strconv"
	"sync/atomic"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/clinic-records/internal/codegen"
	"github.com/jwalitptl/clinic-records/internal/repository"
	apperrors "github.com/jwalitptl/clinic-records/pkg/errors"
)

// repo is the generic repository shared by every entity kind.
type repo[T any, P entity[T]] struct {
	u *UnitOfWork
	t *table[T]
}

// selectSQL builds a filtered read over the table. The soft-delete filter is
// always applied.
func (r *repo[T, P]) selectSQL(p repository.Predicate, orderBy string, limit int) (string, []interface{}, error) {
	cond, args, err := p.SQL()
	if err != nil {
		return "", nil, apperrors.NewBadRequest("invalid filter", err)
	}
	query := "SELECT " + r.t.selectList("", "") + " FROM " + r.t.name + " WHERE " + visible("")
	if cond != "" {
		query += " AND (" + cond + ")"
	}
	if orderBy != "" {
		query += " ORDER BY " + orderBy
	}
	if limit > 0 {
		query += " LIMIT " + strconv.Itoa(limit)
	}
	return r.u.store.rebind(query), args, nil
}

// list runs a filtered read and materializes the rows.
func (r *repo[T, P]) list(ctx context.Context, p repository.Predicate, orderBy string) ([]*T, error) {
	query, args, err := r.selectSQL(p, orderBy, 0)
	if err != nil {
		return nil, err
	}
	return r.selectRows(ctx, query, args...)
}

func (r *repo[T, P]) selectRows(ctx context.Context, query string, args ...interface{}) ([]*T, error) {
	q, err := r.u.session()
	if err != nil {
		return nil, err
	}
	rows := []*T{}
	err = r.u.store.observe("select", func() error {
		return sqlx.SelectContext(ctx, q, &rows, query, args...)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s rows: %w", r.t.entity, err)
	}
	return rows, nil
}

// one returns the first row matching p or a NotFound error.
func (r *repo[T, P]) one(ctx context.Context, p repository.Predicate) (*T, error) {
	query, args, err := r.selectSQL(p, "id", 1)
	if err != nil {
		return nil, err
	}
	q, err := r.u.session()
	if err != nil {
		return nil, err
	}
	var e T
	err = r.u.store.observe("get", func() error {
		return sqlx.GetContext(ctx, q, &e, query, args...)
	})
	if err != nil {
		return nil, notFound(r.t.entity, err)
	}
	return &e, nil
}

func (r *repo[T, P]) GetByID(ctx context.Context, id int64) (*T, error) {
	return r.one(ctx, repository.Eq("id", id))
}

func (r *repo[T, P]) GetAll(ctx context.Context) ([]*T, error) {
	return r.list(ctx, repository.Predicate{}, "id")
}

// Find streams matching rows in id order. The query runs when iteration
// starts; the sequence can be ranged over only once.
func (r *repo[T, P]) Find(ctx context.Context, p repository.Predicate) iter.Seq2[*T, error] {
	var used atomic.Bool
	return func(yield func(*T, error) bool) {
		if used.Swap(true) {
			yield(nil, repository.ErrSequenceConsumed)
			return
		}

		query, args, err := r.selectSQL(p, "id", 0)
		if err != nil {
			yield(nil, err)
			return
		}
		q, err := r.u.session()
		if err != nil {
			yield(nil, err)
			return
		}
		rows, err := q.QueryxContext(ctx, query, args...)
		if err != nil {
			yield(nil, fmt.Errorf("failed to query %s rows: %w", r.t.entity, err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			e := new(T)
			if err := rows.StructScan(e); err != nil {
				yield(nil, fmt.Errorf("failed to scan %s: %w", r.t.entity, err))
				return
			}
			if !yield(e, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, fmt.Errorf("failed to read %s rows: %w", r.t.entity, err))
		}
	}
}

func (r *repo[T, P]) FirstOrDefault(ctx context.Context, p repository.Predicate) (*T, error) {
	e, err := r.one(ctx, p)
	if apperrors.CodeOf(err) == apperrors.ErrNotFound {
		return nil, nil
	}
	return e, err
}

func (r *repo[T, P]) Exists(ctx context.Context, p repository.Predicate) (bool, error) {
	cond, args, err := p.SQL()
	if err != nil {
		return false, apperrors.NewBadRequest("invalid filter", err)
	}
	inner := "SELECT 1 FROM " + r.t.name + " WHERE " + visible("")
	if cond != "" {
		inner += " AND (" + cond + ")"
	}
	q, err := r.u.session()
	if err != nil {
		return false, err
	}

	var exists bool
	err = r.u.store.observe("exists", func() error {
		return sqlx.GetContext(ctx, q, &exists, r.u.store.rebind("SELECT EXISTS ("+inner+")"), args...)
	})
	if err != nil {
		return false, fmt.Errorf("failed to check %s existence: %w", r.t.entity, err)
	}
	return exists, nil
}

// Count returns the number of non-deleted rows matching every predicate.
func (r *repo[T, P]) Count(ctx context.Context, p ...repository.Predicate) (int64, error) {
	cond, args, err := repository.And(p...).SQL()
	if err != nil {
		return 0, apperrors.NewBadRequest("invalid filter", err)
	}
	query := "SELECT COUNT(*) FROM " + r.t.name + " WHERE " + visible("")
	if cond != "" {
		query += " AND (" + cond + ")"
	}
	q, err := r.u.session()
	if err != nil {
		return 0, err
	}

	var n int64
	err = r.u.store.observe("count", func() error {
		return sqlx.GetContext(ctx, q, &n, r.u.store.rebind(query), args...)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count %s rows: %w", r.t.entity, err)
	}
	return n, nil
}

func (r *repo[T, P]) change(kind changeKind, e *T) (*change, error) {
	if e == nil {
		return nil, apperrors.NewBadRequest(r.t.entity+" is nil", nil)
	}
	c := &change{
		kind:   kind,
		target: e,
		base:   P(e).Meta(),
		table:  r.t.name,
		entity: r.t.entity,
	}
	if r.t.codeOf != nil {
		c.code = r.t.codeOf(e)
	}
	switch kind {
	case changeInsert:
		if r.t.prepare != nil {
			r.t.prepare(e)
		}
		c.flush = r.insert(e)
	case changeUpdate:
		c.flush = r.update(e)
	case changeDelete:
		c.flush = r.delete(e)
	}
	return c, nil
}

func (r *repo[T, P]) stage(kind changeKind, entities ...*T) error {
	for _, e := range entities {
		c, err := r.change(kind, e)
		if err != nil {
			return err
		}
		if err := r.u.stage(c); err != nil {
			return err
		}
	}
	return nil
}

func (r *repo[T, P]) Add(e *T) error {
	return r.stage(changeInsert, e)
}

func (r *repo[T, P]) AddRange(entities []*T) error {
	return r.stage(changeInsert, entities...)
}

func (r *repo[T, P]) Update(e *T) error {
	return r.stage(changeUpdate, e)
}

// Delete marks e deleted and stages the soft delete.
func (r *repo[T, P]) Delete(e *T) error {
	return r.stage(changeDelete, e)
}

func (r *repo[T, P]) DeleteRange(entities []*T) error {
	return r.stage(changeDelete, entities...)
}

func (r *repo[T, P]) DeleteByID(ctx context.Context, id int64) error {
	e, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return r.Delete(e)
}

func (r *repo[T, P]) insert(e *T) flushFunc {
	return func(ctx context.Context, tx *sqlx.Tx) (int64, error) {
		if err := r.checkParents(ctx, tx, e); err != nil {
			return 0, err
		}
		if r.t.code == nil || *r.t.codeOf(e) != "" {
			return r.insertRow(ctx, tx, e)
		}

		kind := *r.t.code
		if r.u.store.strategy == codegen.StrategyCount {
			code, err := countCode(ctx, r.u.store, tx, kind)
			if err != nil {
				return 0, err
			}
			*r.t.codeOf(e) = code
			return r.insertRow(ctx, tx, e)
		}
		return r.u.store.insertWithCode(ctx, tx, kind, r.t.codeOf(e), func() (int64, error) {
			return r.insertRow(ctx, tx, e)
		})
	}
}

func (r *repo[T, P]) insertRow(ctx context.Context, tx *sqlx.Tx, e *T) (int64, error) {
	query, args, err := sqlx.Named(r.t.insertSQL(), e)
	if err != nil {
		return 0, fmt.Errorf("failed to bind %s: %w", r.t.entity, err)
	}

	var id int64
	err = r.u.store.observe("insert", func() error {
		return tx.QueryRowxContext(ctx, r.u.store.rebind(query), repository.NormalizeTimes(args)...).Scan(&id)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to insert %s: %w", r.t.entity, constraintError(err))
	}
	P(e).Meta().ID = id
	return 1, nil
}

func (r *repo[T, P]) update(e *T) flushFunc {
	return func(ctx context.Context, tx *sqlx.Tx) (int64, error) {
		if err := r.checkParents(ctx, tx, e); err != nil {
			return 0, err
		}
		query, args, err := sqlx.Named(r.t.updateSQL(), e)
		if err != nil {
			return 0, fmt.Errorf("failed to bind %s: %w", r.t.entity, err)
		}

		var n int64
		err = r.u.store.observe("update", func() error {
			res, err := tx.ExecContext(ctx, r.u.store.rebind(query), repository.NormalizeTimes(args)...)
			if err != nil {
				return err
			}
			n, err = res.RowsAffected()
			return err
		})
		if err != nil {
			return 0, fmt.Errorf("failed to update %s: %w", r.t.entity, constraintError(err))
		}
		if n == 0 {
			return 0, r.missing(ctx, tx, P(e).Meta().ID)
		}
		return n, nil
	}
}

// checkParents rejects a row that points at a missing or soft-deleted
// parent. The foreign key alone would accept a deleted one.
func (r *repo[T, P]) checkParents(ctx context.Context, tx *sqlx.Tx, e *T) error {
	if r.t.parents == nil {
		return nil
	}
	for _, ref := range r.t.parents(e) {
		if ref.id == nil {
			continue
		}
		var exists bool
		query := r.u.store.rebind("SELECT EXISTS (SELECT 1 FROM " + ref.table + " WHERE id = ? AND " + visible("") + ")")
		if err := tx.QueryRowxContext(ctx, query, *ref.id).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check %s %d: %w", ref.table, *ref.id, err)
		}
		if !exists {
			return apperrors.NewConstraintViolation(r.t.name+"."+ref.column,
				fmt.Sprintf("%s references missing %s %d", r.t.entity, ref.table, *ref.id), nil)
		}
	}
	return nil
}

// missing explains a write that matched no row. A row that is gone or
// soft-deleted since it was read is a conflict, reported as not found.
func (r *repo[T, P]) missing(ctx context.Context, tx *sqlx.Tx, id int64) error {
	var exists bool
	query := r.u.store.rebind("SELECT EXISTS (SELECT 1 FROM " + r.t.name + " WHERE id = ? AND " + visible("") + ")")
	if err := tx.QueryRowxContext(ctx, query, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check %s %d: %w", r.t.entity, id, err)
	}
	if !exists {
		return apperrors.NewConflict(fmt.Sprintf("%s %d", r.t.entity, id), nil)
	}
	return apperrors.NewInternal(fmt.Errorf("%s %d matched no rows", r.t.entity, id))
}

// delete soft-deletes the row after applying the table's delete rules.
func (r *repo[T, P]) delete(e *T) flushFunc {
	return func(ctx context.Context, tx *sqlx.Tx) (int64, error) {
		base := P(e).Meta()
		id := base.ID
		var updatedAt interface{} = r.u.store.now()
		if base.UpdatedAt != nil {
			updatedAt = base.UpdatedAt.UTC()
		}

		for _, ref := range r.t.deletes.restrict {
			var referenced bool
			query := r.u.store.rebind("SELECT EXISTS (SELECT 1 FROM " + ref.table +
				" WHERE " + ref.column + " = ? AND " + visible("") + ")")
			if err := tx.QueryRowxContext(ctx, query, id).Scan(&referenced); err != nil {
				return 0, fmt.Errorf("failed to check references from %s: %w", ref.table, err)
			}
			if referenced {
				return 0, apperrors.NewConstraintViolation(ref.table+"."+ref.column,
					fmt.Sprintf("%s %d is referenced by %s", r.t.entity, id, ref.table), nil)
			}
		}

		var total int64
		for _, ref := range r.t.deletes.cascade {
			where := ref.column + " = ? AND " + visible("")
			ids, err := r.referencing(ctx, tx, ref.table, where, id)
			if err != nil {
				return 0, err
			}
			n, err := r.exec(ctx, tx, "UPDATE "+ref.table+" SET is_deleted = TRUE, updated_at = ? WHERE "+where, updatedAt, id)
			if err != nil {
				return 0, fmt.Errorf("failed to cascade delete to %s: %w", ref.table, err)
			}
			total += n
			if err := r.referenceEvents(ctx, tx, ref, "deleted", ids, id); err != nil {
				return 0, err
			}
		}
		for _, ref := range r.t.deletes.setNull {
			where := ref.column + " = ?"
			ids, err := r.referencing(ctx, tx, ref.table, where, id)
			if err != nil {
				return 0, err
			}
			n, err := r.exec(ctx, tx, "UPDATE "+ref.table+" SET "+ref.column+" = NULL, updated_at = ? WHERE "+where, updatedAt, id)
			if err != nil {
				return 0, fmt.Errorf("failed to clear %s.%s: %w", ref.table, ref.column, err)
			}
			total += n
			if err := r.referenceEvents(ctx, tx, ref, "updated", ids, id); err != nil {
				return 0, err
			}
		}

		n, err := r.exec(ctx, tx, "UPDATE "+r.t.name+" SET is_deleted = TRUE, updated_at = ? WHERE id = ? AND "+
			visible(""), updatedAt, id)
		if err != nil {
			return 0, fmt.Errorf("failed to delete %s: %w", r.t.entity, err)
		}
		if n == 0 {
			return 0, r.missing(ctx, tx, id)
		}
		return total + n, nil
	}
}

// referencing lists the ids of rows in table matching where, before a delete
// rule rewrites them.
func (r *repo[T, P]) referencing(ctx context.Context, tx *sqlx.Tx, table, where string, id int64) ([]int64, error) {
	if !r.u.store.outbox {
		return nil, nil
	}
	var ids []int64
	query := r.u.store.rebind("SELECT id FROM " + table + " WHERE " + where + " ORDER BY id")
	if err := sqlx.SelectContext(ctx, tx, &ids, query, id); err != nil {
		return nil, fmt.Errorf("failed to list rows in %s: %w", table, err)
	}
	return ids, nil
}

// referenceEvents records the rows a delete rule touched. The payload names
// the row and the parent whose delete caused it.
func (r *repo[T, P]) referenceEvents(ctx context.Context, tx *sqlx.Tx, ref reference, action string, ids []int64, parentID int64) error {
	if !r.u.store.outbox {
		return nil
	}
	now := r.u.store.now()
	for _, childID := range ids {
		payload := map[string]interface{}{
			"id":         childID,
			ref.column:   parentID,
			"cause":      EventType(r.t.entity, "deleted"),
			"is_deleted": action == "deleted",
		}
		if err := r.u.store.writeEvent(ctx, tx, ref.entity, action, childID, payload, now); err != nil {
			return err
		}
	}
	return nil
}

func (r *repo[T, P]) exec(ctx context.Context, tx *sqlx.Tx, query string, args ...interface{}) (int64, error) {
	var n int64
	err := r.u.store.observe("exec", func() error {
		res, err := tx.ExecContext(ctx, r.u.store.rebind(query), args...)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, constraintError(err)
}
