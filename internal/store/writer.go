package store

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"tweetnorm/internal/merge"
	"tweetnorm/internal/model"
)

// RowCounts tallies what happened to the candidate rows of one kind.
type RowCounts struct {
	Inserted  int `json:"inserted"`
	Changed   int `json:"changed"`
	Unchanged int `json:"unchanged"`
	Rejected  int `json:"rejected"`
}

// Add accumulates o into c.
func (c *RowCounts) Add(o RowCounts) {
	c.Inserted += o.Inserted
	c.Changed += o.Changed
	c.Unchanged += o.Unchanged
	c.Rejected += o.Rejected
}

// RejectedRow is a candidate row that could not be written.
type RejectedRow struct {
	Kind    model.Kind
	TweetID int64
	Key     string
	Reason  string
	// Record is the batch index of the first record that carried TweetID,
	// or -1 when no record did.
	Record int
}

// WriteResult describes one committed batch.
type WriteResult struct {
	Rows      map[model.Kind]*RowCounts
	Rejected  []RejectedRow
	Conflicts []merge.Conflict
}

func newWriteResult() *WriteResult {
	res := &WriteResult{Rows: make(map[model.Kind]*RowCounts, len(model.WriteOrder))}
	for _, k := range model.WriteOrder {
		res.Rows[k] = &RowCounts{}
	}
	return res
}

// WriteBatch stores every row of batch in one transaction, in dependency
// order. On any error nothing is committed; connection failures are retried
// with backoff before giving up.
func (s *Store) WriteBatch(ctx context.Context, batch []model.Rows) (*WriteResult, error) {
	var res *WriteResult
	err := WithRetry(ctx, s.retry, "write_batch", func(ctx context.Context) error {
		return s.inTx(ctx, func(tx *sqlx.Tx) error {
			w := &batchWriter{tx: tx, dialect: s.dialect, res: newWriteResult()}
			if err := w.write(ctx, batch); err != nil {
				return err
			}
			res = w.res
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// batchWriter holds the state of one transaction. Every statement goes
// through tx: SQLite runs on a single connection.
type batchWriter struct {
	tx      *sqlx.Tx
	dialect Dialect
	res     *WriteResult
	// origin maps a post id to the batch index of its first record.
	origin map[int64]int
}

type idSet map[int64]struct{}

func (s idSet) has(id int64) bool {
	_, ok := s[id]
	return ok
}

func (w *batchWriter) write(ctx context.Context, batch []model.Rows) error {
	var all model.Rows
	w.origin = make(map[int64]int, len(batch))
	for i, rows := range batch {
		all.Append(rows)
		w.claim(i, rows.Key)
		for _, t := range rows.Tweets {
			w.claim(i, t.ID)
		}
		for _, l := range rows.TweetURLs {
			w.claim(i, l.TweetID)
		}
		for _, t := range rows.Tags {
			w.claim(i, t.TweetID)
		}
		for _, m := range rows.Mentions {
			w.claim(i, m.TweetID)
		}
		for _, m := range rows.Media {
			w.claim(i, m.TweetID)
		}
	}

	urlIDs, err := w.writeURLs(ctx, &all)
	if err != nil {
		return err
	}
	for i := range all.Users {
		if u := all.Users[i].URL; u != nil {
			if id, ok := urlIDs[*u]; ok {
				all.Users[i].URLID = &id
			}
		}
	}
	users, err := upsert(ctx, w, userEntity, all.Users)
	if err != nil {
		return err
	}
	tweets, err := w.writeTweets(ctx, all.Tweets, users)
	if err != nil {
		return err
	}
	if err := w.writeTweetURLs(ctx, all.TweetURLs, tweets, urlIDs); err != nil {
		return err
	}
	if err := w.writeTags(ctx, all.Tags, tweets); err != nil {
		return err
	}
	if err := w.writeMentions(ctx, all.Mentions, tweets, users); err != nil {
		return err
	}
	return w.writeMedia(ctx, all.Media, tweets, urlIDs)
}

func (w *batchWriter) claim(record int, tweetID int64) {
	if _, ok := w.origin[tweetID]; !ok && tweetID != 0 {
		w.origin[tweetID] = record
	}
}

func (w *batchWriter) reject(kind model.Kind, tweetID int64, key, reason string) {
	w.res.Rows[kind].Rejected++
	rec, ok := w.origin[tweetID]
	if !ok {
		rec = -1
	}
	w.res.Rejected = append(w.res.Rejected, RejectedRow{Kind: kind, TweetID: tweetID, Key: key, Reason: reason, Record: rec})
}

// writeURLs inserts every referenced URL once and returns the surrogate ids.
func (w *batchWriter) writeURLs(ctx context.Context, all *model.Rows) (map[string]int64, error) {
	texts := append([]string{}, all.URLs...)
	for _, u := range all.Users {
		if u.URL != nil {
			texts = append(texts, *u.URL)
		}
	}
	for _, l := range all.TweetURLs {
		texts = append(texts, l.URL)
	}
	for _, m := range all.Media {
		texts = append(texts, m.URL)
	}
	texts = uniqueStrings(texts)

	counts := w.res.Rows[model.KindURL]
	ids := make(map[string]int64, len(texts))
	for _, chunk := range chunks(texts, chunkSize) {
		args := make([]any, len(chunk))
		for i, t := range chunk {
			args[i] = t
		}
		q := insertSQL("urls", []string{"url"}, len(chunk), "ON CONFLICT (url) DO NOTHING")
		res, err := w.tx.ExecContext(ctx, w.tx.Rebind(q), args...)
		if err != nil {
			return nil, classify(err, "insert urls")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, classify(err, "insert urls")
		}
		counts.Inserted += int(n)
		counts.Unchanged += len(chunk) - int(n)

		q, inArgs, err := sqlx.In(`SELECT id_urls, url FROM urls WHERE url IN (?)`, chunk)
		if err != nil {
			return nil, errors.Wrap(err, "select urls")
		}
		var found []struct {
			ID  int64  `db:"id_urls"`
			URL string `db:"url"`
		}
		if err := w.tx.SelectContext(ctx, &found, w.tx.Rebind(q), inArgs...); err != nil {
			return nil, classify(err, "select urls")
		}
		for _, f := range found {
			ids[f.URL] = f.ID
		}
	}
	return ids, nil
}

func (w *batchWriter) writeTweets(ctx context.Context, cands []model.Tweet, users idSet) (idSet, error) {
	var refs []int64
	for _, t := range cands {
		refs = append(refs, t.UserID)
		if t.InReplyToUserID != nil {
			refs = append(refs, *t.InReplyToUserID)
		}
	}
	if err := w.addExisting(ctx, "users", "id_users", users, refs); err != nil {
		return nil, err
	}
	writable := cands[:0:0]
	for _, t := range cands {
		switch {
		case !users.has(t.UserID):
			w.reject(model.KindTweet, t.ID, "", "author not written")
		case t.InReplyToUserID != nil && !users.has(*t.InReplyToUserID):
			w.reject(model.KindTweet, t.ID, "", "replied-to user not written")
		default:
			writable = append(writable, t)
		}
	}
	return upsert(ctx, w, tweetEntity, writable)
}

// addExisting adds to set those ids that are already stored in table.
func (w *batchWriter) addExisting(ctx context.Context, table, key string, set idSet, ids []int64) error {
	var missing []int64
	seen := idSet{}
	for _, id := range ids {
		if set.has(id) || seen.has(id) {
			continue
		}
		seen[id] = struct{}{}
		missing = append(missing, id)
	}
	for _, chunk := range chunks(missing, chunkSize) {
		q, args, err := sqlx.In(`SELECT `+key+` FROM `+table+` WHERE `+key+` IN (?)`, chunk)
		if err != nil {
			return errors.Wrapf(err, "select %s", table)
		}
		var found []int64
		if err := w.tx.SelectContext(ctx, &found, w.tx.Rebind(q), args...); err != nil {
			return classify(err, "select "+table)
		}
		for _, id := range found {
			set[id] = struct{}{}
		}
	}
	return nil
}

func (w *batchWriter) tweetRefs(ctx context.Context, tweets idSet, ids []int64) error {
	return w.addExisting(ctx, "tweets", "id_tweets", tweets, ids)
}

func (w *batchWriter) writeTweetURLs(ctx context.Context, links []model.TweetURL, tweets idSet, urlIDs map[string]int64) error {
	ids := make([]int64, len(links))
	for i, l := range links {
		ids[i] = l.TweetID
	}
	if err := w.tweetRefs(ctx, tweets, ids); err != nil {
		return err
	}
	seen := map[[2]int64]struct{}{}
	var rows [][]any
	for _, l := range links {
		uid, ok := urlIDs[l.URL]
		switch {
		case !tweets.has(l.TweetID):
			w.reject(model.KindTweetURL, l.TweetID, l.URL, "post not written")
			continue
		case !ok:
			w.reject(model.KindTweetURL, l.TweetID, l.URL, "url not written")
			continue
		}
		k := [2]int64{l.TweetID, uid}
		_, dup := seen[k]
		if merge.Association(dup) == merge.Keep {
			w.res.Rows[model.KindTweetURL].Unchanged++
			continue
		}
		seen[k] = struct{}{}
		rows = append(rows, []any{l.TweetID, uid})
	}
	return w.insertLinks(ctx, model.KindTweetURL, []string{"id_tweets", "id_urls"}, rows)
}

func (w *batchWriter) writeTags(ctx context.Context, tags []model.TweetTag, tweets idSet) error {
	ids := make([]int64, len(tags))
	for i, t := range tags {
		ids[i] = t.TweetID
	}
	if err := w.tweetRefs(ctx, tweets, ids); err != nil {
		return err
	}
	seen := map[model.TweetTag]struct{}{}
	var rows [][]any
	for _, t := range tags {
		if !tweets.has(t.TweetID) {
			w.reject(model.KindTag, t.TweetID, t.Tag, "post not written")
			continue
		}
		_, dup := seen[t]
		if merge.Association(dup) == merge.Keep {
			w.res.Rows[model.KindTag].Unchanged++
			continue
		}
		seen[t] = struct{}{}
		rows = append(rows, []any{t.TweetID, t.Tag})
	}
	return w.insertLinks(ctx, model.KindTag, []string{"id_tweets", "tag"}, rows)
}

func (w *batchWriter) writeMentions(ctx context.Context, mentions []model.TweetMention, tweets, users idSet) error {
	tids := make([]int64, len(mentions))
	uids := make([]int64, len(mentions))
	for i, m := range mentions {
		tids[i], uids[i] = m.TweetID, m.UserID
	}
	if err := w.tweetRefs(ctx, tweets, tids); err != nil {
		return err
	}
	if err := w.addExisting(ctx, "users", "id_users", users, uids); err != nil {
		return err
	}
	seen := map[model.TweetMention]struct{}{}
	var rows [][]any
	for _, m := range mentions {
		switch {
		case !tweets.has(m.TweetID):
			w.reject(model.KindMention, m.TweetID, "", "post not written")
			continue
		case !users.has(m.UserID):
			w.reject(model.KindMention, m.TweetID, "", "mentioned user not written")
			continue
		}
		_, dup := seen[m]
		if merge.Association(dup) == merge.Keep {
			w.res.Rows[model.KindMention].Unchanged++
			continue
		}
		seen[m] = struct{}{}
		rows = append(rows, []any{m.TweetID, m.UserID})
	}
	return w.insertLinks(ctx, model.KindMention, []string{"id_tweets", "id_users"}, rows)
}

func (w *batchWriter) writeMedia(ctx context.Context, media []model.TweetMedia, tweets idSet, urlIDs map[string]int64) error {
	ids := make([]int64, len(media))
	for i, m := range media {
		ids[i] = m.TweetID
	}
	if err := w.tweetRefs(ctx, tweets, ids); err != nil {
		return err
	}
	type key struct {
		tweet, url int64
		typ        string
	}
	seen := map[key]struct{}{}
	var rows [][]any
	for _, m := range media {
		uid, ok := urlIDs[m.URL]
		switch {
		case !tweets.has(m.TweetID):
			w.reject(model.KindMedia, m.TweetID, m.URL, "post not written")
			continue
		case !ok:
			w.reject(model.KindMedia, m.TweetID, m.URL, "url not written")
			continue
		}
		k := key{m.TweetID, uid, m.Type}
		_, dup := seen[k]
		if merge.Association(dup) == merge.Keep {
			w.res.Rows[model.KindMedia].Unchanged++
			continue
		}
		seen[k] = struct{}{}
		rows = append(rows, []any{m.TweetID, uid, m.Type})
	}
	return w.insertLinks(ctx, model.KindMedia, []string{"id_tweets", "id_urls", "type"}, rows)
}

// insertLinks writes association rows if absent; existing rows are counted
// as unchanged.
func (w *batchWriter) insertLinks(ctx context.Context, kind model.Kind, columns []string, rows [][]any) error {
	counts := w.res.Rows[kind]
	for _, chunk := range chunks(rows, chunkSize) {
		args := make([]any, 0, len(chunk)*len(columns))
		for _, r := range chunk {
			args = append(args, r...)
		}
		q := insertSQL(kind.String(), columns, len(chunk), "ON CONFLICT ("+strings.Join(columns, ", ")+") DO NOTHING")
		res, err := w.tx.ExecContext(ctx, w.tx.Rebind(q), args...)
		if err != nil {
			return classify(err, "insert "+kind.String())
		}
		n, err := res.RowsAffected()
		if err != nil {
			return classify(err, "insert "+kind.String())
		}
		counts.Inserted += int(n)
		counts.Unchanged += len(chunk) - int(n)
	}
	return nil
}
