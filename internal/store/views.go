package store

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// TagTotal is a row of tweet_tags_total.
type TagTotal struct {
	Rank  int64  `db:"tag_rank" json:"rank"`
	Tag   string `db:"tag" json:"tag"`
	Total int64  `db:"total" json:"total"`
}

// TagPair is a row of tweet_tags_cooccurrence.
type TagPair struct {
	Tag1  string `db:"tag1" json:"tag1"`
	Tag2  string `db:"tag2" json:"tag2"`
	Total int64  `db:"total" json:"total"`
}

// RefreshViews recomputes the tag aggregates. Plain views need no refresh.
func (s *Store) RefreshViews(ctx context.Context) error {
	if !s.dialect.Materialized {
		return nil
	}
	return WithRetry(ctx, s.retry, "refresh_views", func(ctx context.Context) error {
		return s.inTx(ctx, func(tx *sqlx.Tx) error {
			for _, v := range []string{"tweet_tags_total", "tweet_tags_cooccurrence"} {
				if _, err := tx.ExecContext(ctx, `REFRESH MATERIALIZED VIEW `+v); err != nil {
					return classify(err, "refresh "+v)
				}
			}
			return nil
		})
	})
}

// TopTags returns the most used tags, most frequent first.
func (s *Store) TopTags(ctx context.Context, limit int) ([]TagTotal, error) {
	var out []TagTotal
	err := s.db.SelectContext(ctx, &out,
		s.db.Rebind(`SELECT tag_rank, tag, total FROM tweet_tags_total ORDER BY total DESC, tag LIMIT ?`), limit)
	return out, classify(err, "top tags")
}

// Cooccurring returns the tags seen on the same posts as tag, most frequent
// first. The pair (tag, tag) counts the posts carrying tag.
func (s *Store) Cooccurring(ctx context.Context, tag string, limit int) ([]TagPair, error) {
	var out []TagPair
	err := s.db.SelectContext(ctx, &out,
		s.db.Rebind(`SELECT tag1, tag2, total FROM tweet_tags_cooccurrence WHERE tag1 = ? ORDER BY total DESC, tag2 LIMIT ?`),
		tag, limit)
	return out, classify(err, "cooccurring tags")
}

// TableCounts returns the row count of every normalized table.
func (s *Store) TableCounts(ctx context.Context) (map[string]int64, error) {
	out := make(map[string]int64, len(Tables))
	for _, t := range Tables {
		var n int64
		if err := s.db.GetContext(ctx, &n, `SELECT count(*) FROM `+t); err != nil {
			return nil, classify(err, "count "+t)
		}
		out[t] = n
	}
	return out, nil
}
