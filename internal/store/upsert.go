package store

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"tweetnorm/internal/logging"
	"tweetnorm/internal/merge"
	"tweetnorm/internal/model"
)

// entity is a row keyed by a natural id whose first column is the key.
type entity interface {
	Key() int64
	Values() []any
}

type entitySpec[T entity] struct {
	kind    model.Kind
	table   string
	key     string
	columns []string
	merge   func(stored *T, cand T) (T, merge.Decision, []merge.Conflict, error)
}

var userEntity = entitySpec[model.User]{
	kind:    model.KindUser,
	table:   "users",
	key:     "id_users",
	columns: model.UserColumns,
	merge: func(stored *model.User, cand model.User) (model.User, merge.Decision, []merge.Conflict, error) {
		u, d, c := merge.User(stored, cand)
		return u, d, c, nil
	},
}

var tweetEntity = entitySpec[model.Tweet]{
	kind:    model.KindTweet,
	table:   "tweets",
	key:     "id_tweets",
	columns: model.TweetColumns,
	merge:   merge.Tweet,
}

// upsert folds the candidates per key in order, merges each result with the
// stored row and writes inserts and changed rows. It returns the keys that
// are stored once the transaction commits.
func upsert[T entity](ctx context.Context, w *batchWriter, spec entitySpec[T], cands []T) (idSet, error) {
	folded := make(map[int64]T, len(cands))
	order := make([]int64, 0, len(cands))
	for _, c := range cands {
		acc, ok := folded[c.Key()]
		if !ok {
			folded[c.Key()] = c
			order = append(order, c.Key())
			continue
		}
		merged, _, conflicts, err := spec.merge(&acc, c)
		if err != nil {
			return nil, err
		}
		w.conflicts(conflicts)
		folded[c.Key()] = merged
	}

	counts := w.res.Rows[spec.kind]
	present := make(idSet, len(order))
	for _, keys := range chunks(order, chunkSize) {
		stored, err := load(ctx, w, spec, keys)
		if err != nil {
			return nil, err
		}
		var inserts []T
		for _, k := range keys {
			st, ok := stored[k]
			if !ok {
				inserts = append(inserts, folded[k])
				continue
			}
			if err := mergeInto(ctx, w, spec, st, folded[k]); err != nil {
				return nil, err
			}
			present[k] = struct{}{}
		}

		inserted, err := insert(ctx, w, spec, inserts)
		if err != nil {
			return nil, err
		}
		// rows inserted by someone else since the read are merged instead
		var lost []int64
		for _, c := range inserts {
			if inserted.has(c.Key()) {
				counts.Inserted++
				present[c.Key()] = struct{}{}
			} else {
				lost = append(lost, c.Key())
			}
		}
		if len(lost) == 0 {
			continue
		}
		stored, err = load(ctx, w, spec, lost)
		if err != nil {
			return nil, err
		}
		for _, k := range lost {
			st, ok := stored[k]
			if !ok {
				return nil, errors.Wrapf(model.ErrConstraintViolation, "%s %d: insert skipped but row is missing", spec.table, k)
			}
			if err := mergeInto(ctx, w, spec, st, folded[k]); err != nil {
				return nil, err
			}
			present[k] = struct{}{}
		}
	}
	return present, nil
}

func load[T entity](ctx context.Context, w *batchWriter, spec entitySpec[T], keys []int64) (map[int64]T, error) {
	q, args, err := sqlx.In(
		`SELECT `+strings.Join(spec.columns, ", ")+` FROM `+spec.table+` WHERE `+spec.key+` IN (?)`+w.dialect.LockRows,
		keys)
	if err != nil {
		return nil, errors.Wrapf(err, "select %s", spec.table)
	}
	var rows []T
	if err := w.tx.SelectContext(ctx, &rows, w.tx.Rebind(q), args...); err != nil {
		return nil, classify(err, "select "+spec.table)
	}
	out := make(map[int64]T, len(rows))
	for _, r := range rows {
		out[r.Key()] = r
	}
	return out, nil
}

func insert[T entity](ctx context.Context, w *batchWriter, spec entitySpec[T], rows []T) (idSet, error) {
	inserted := idSet{}
	for _, chunk := range chunks(rows, chunkSize) {
		args := make([]any, 0, len(chunk)*len(spec.columns))
		for _, r := range chunk {
			args = append(args, r.Values()...)
		}
		q := insertSQL(spec.table, spec.columns, len(chunk),
			"ON CONFLICT ("+spec.key+") DO NOTHING RETURNING "+spec.key)
		var ids []int64
		if err := w.tx.SelectContext(ctx, &ids, w.tx.Rebind(q), args...); err != nil {
			return nil, classify(err, "insert "+spec.table)
		}
		for _, id := range ids {
			inserted[id] = struct{}{}
		}
	}
	return inserted, nil
}

func mergeInto[T entity](ctx context.Context, w *batchWriter, spec entitySpec[T], stored, cand T) error {
	merged, d, conflicts, err := spec.merge(&stored, cand)
	if err != nil {
		return err
	}
	w.conflicts(conflicts)
	counts := w.res.Rows[spec.kind]
	if d != merge.Update {
		counts.Unchanged++
		return nil
	}
	vals := merged.Values()
	args := append(vals[1:len(vals):len(vals)], vals[0])
	if _, err := w.tx.ExecContext(ctx, w.tx.Rebind(updateSQL(spec.table, spec.columns, spec.key)), args...); err != nil {
		return classify(err, "update "+spec.table)
	}
	counts.Changed++
	return nil
}

func (w *batchWriter) conflicts(cs []merge.Conflict) {
	for _, c := range cs {
		if c.Stable {
			logging.Debug("merge_conflict", map[string]any{
				"kind": c.Kind.String(), "key": c.Key, "field": c.Field,
			})
		}
	}
	w.res.Conflicts = append(w.res.Conflicts, cs...)
}
