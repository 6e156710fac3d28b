package store

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tweetnorm/internal/model"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	s, err := Open(ctx, "sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(ctx))
	return s
}

var ts = time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)

func sampleRows(tweetID, userID int64) model.Rows {
	return model.Rows{
		Key:  tweetID,
		URLs: []string{"http://example.com/a"},
		Users: []model.User{
			{
				ID: userID, CreatedAt: &ts, UpdatedAt: &ts,
				ScreenName: model.Ptr("alice"), Name: model.Ptr("Alice"),
				URL: model.Ptr("http://alice.example"), FriendsCount: model.Ptr[int64](5), Verified: model.Ptr(false),
			},
			{ID: 900, ScreenName: model.Ptr("bob")},
		},
		Tweets: []model.Tweet{{
			ID: tweetID, UserID: userID, CreatedAt: &ts,
			Text: model.Ptr("hello #Go"), Lang: model.Ptr("en"), Geo: model.Ptr("POINT(1 2)"),
		}},
		TweetURLs: []model.TweetURL{{TweetID: tweetID, URL: "http://example.com/a"}},
		Tags:      []model.TweetTag{{TweetID: tweetID, Tag: "#go"}, {TweetID: tweetID, Tag: "$aapl"}},
		Mentions:  []model.TweetMention{{TweetID: tweetID, UserID: 900}},
		Media:     []model.TweetMedia{{TweetID: tweetID, URL: "http://pbs.example/1.jpg", Type: "photo"}},
	}
}

func snapshot(t *testing.T, s *Store) map[string][]string {
	t.Helper()
	out := map[string][]string{}
	for _, table := range Tables {
		rows, err := s.db.Queryx(`SELECT * FROM ` + table + ` ORDER BY 1, 2`)
		require.NoError(t, err)
		for rows.Next() {
			vals, err := rows.SliceScan()
			require.NoError(t, err)
			out[table] = append(out[table], fmt.Sprintf("%v", vals))
		}
		require.NoError(t, rows.Err())
		require.NoError(t, rows.Close())
	}
	return out
}

func getUser(t *testing.T, s *Store, id int64) model.User {
	t.Helper()
	var u model.User
	require.NoError(t, s.db.Get(&u, `SELECT `+strings.Join(model.UserColumns, ", ")+` FROM users WHERE id_users = ?`, id))
	return u
}

func TestWriteBatchInsertsEveryKind(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	res, err := s.WriteBatch(ctx, []model.Rows{sampleRows(1, 10)})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Rows[model.KindURL].Inserted)
	assert.Equal(t, 2, res.Rows[model.KindUser].Inserted)
	assert.Equal(t, 1, res.Rows[model.KindTweet].Inserted)
	assert.Equal(t, 1, res.Rows[model.KindTweetURL].Inserted)
	assert.Equal(t, 2, res.Rows[model.KindTag].Inserted)
	assert.Equal(t, 1, res.Rows[model.KindMention].Inserted)
	assert.Equal(t, 1, res.Rows[model.KindMedia].Inserted)
	assert.Empty(t, res.Rejected)

	counts, err := s.TableCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{
		"urls": 3, "users": 2, "tweets": 1, "tweet_urls": 1,
		"tweet_tags": 2, "tweet_mentions": 1, "tweet_media": 1,
	}, counts)

	u := getUser(t, s, 10)
	require.NotNil(t, u.URLID)
	require.NotNil(t, u.CreatedAt)
	assert.True(t, u.CreatedAt.Equal(ts))
	assert.Equal(t, "alice", *u.ScreenName)
	assert.False(t, *u.Verified)
}

func TestWriteBatchIsIdempotent(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	batch := []model.Rows{sampleRows(1, 10), sampleRows(2, 10)}

	_, err := s.WriteBatch(ctx, batch)
	require.NoError(t, err)
	first := snapshot(t, s)

	res, err := s.WriteBatch(ctx, batch)
	require.NoError(t, err)
	if diff := cmp.Diff(first, snapshot(t, s)); diff != "" {
		t.Fatalf("second load changed the database (-first +second):\n%s", diff)
	}
	for _, k := range model.WriteOrder {
		c := res.Rows[k]
		assert.Zero(t, c.Inserted, k.String())
		assert.Zero(t, c.Changed, k.String())
	}
	assert.Equal(t, 2, res.Rows[model.KindUser].Unchanged)
}

func TestPartialThenFullUser(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	partial := model.Rows{Users: []model.User{{ID: 5, ScreenName: model.Ptr("carol")}}}
	res, err := s.WriteBatch(ctx, []model.Rows{partial})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Rows[model.KindUser].Inserted)

	full := model.Rows{Users: []model.User{{
		ID: 5, ScreenName: model.Ptr("carol"), Name: model.Ptr("Carol"),
		CreatedAt: &ts, FriendsCount: model.Ptr[int64](7),
	}}}
	res, err = s.WriteBatch(ctx, []model.Rows{full})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Rows[model.KindUser].Changed)

	again := model.Rows{Users: []model.User{{ID: 5, ScreenName: model.Ptr("carol2"), Name: model.Ptr("Other")}}}
	res, err = s.WriteBatch(ctx, []model.Rows{again})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Rows[model.KindUser].Unchanged)
	assert.Len(t, res.Conflicts, 2)

	u := getUser(t, s, 5)
	assert.Equal(t, "carol", *u.ScreenName)
	assert.Equal(t, "Carol", *u.Name)
	assert.Equal(t, int64(7), *u.FriendsCount)
}

func TestFullThenPartialKeepsAttributes(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	_, err := s.WriteBatch(ctx, []model.Rows{sampleRows(1, 10)})
	require.NoError(t, err)
	before := getUser(t, s, 10)

	mention := model.Rows{Users: []model.User{{ID: 10, ScreenName: model.Ptr("alice"), Name: model.Ptr("Alice")}}}
	res, err := s.WriteBatch(ctx, []model.Rows{mention})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Rows[model.KindUser].Unchanged)
	if diff := cmp.Diff(before, getUser(t, s, 10)); diff != "" {
		t.Fatalf("partial observation changed the user (-want +got):\n%s", diff)
	}
}

func TestInBatchCandidatesFoldInOrder(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	batch := []model.Rows{
		{Users: []model.User{{ID: 3, ScreenName: model.Ptr("first")}}},
		{Users: []model.User{{ID: 3, ScreenName: model.Ptr("second"), Location: model.Ptr("here")}}},
	}
	res, err := s.WriteBatch(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Rows[model.KindUser].Inserted)
	u := getUser(t, s, 3)
	assert.Equal(t, "first", *u.ScreenName)
	assert.Equal(t, "here", *u.Location)
}

func TestAuthorConflictRollsBackBatch(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	_, err := s.WriteBatch(ctx, []model.Rows{sampleRows(1, 10)})
	require.NoError(t, err)

	bad := sampleRows(1, 11)
	other := sampleRows(2, 12)
	_, err = s.WriteBatch(ctx, []model.Rows{other, bad})
	require.Error(t, err)
	assert.True(t, IsConstraintViolation(err))
	assert.False(t, IsConnectionFailure(err))

	var n int
	require.NoError(t, s.db.Get(&n, `SELECT count(*) FROM tweets WHERE id_tweets = 2`))
	assert.Zero(t, n, "a failed batch commits nothing")
}

func TestDanglingAssociationsAreRejected(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	orphan := model.Rows{
		Key:      99,
		Tags:     []model.TweetTag{{TweetID: 99, Tag: "#lost"}},
		Mentions: []model.TweetMention{{TweetID: 99, UserID: 1}},
	}
	res, err := s.WriteBatch(ctx, []model.Rows{orphan})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Rows[model.KindTag].Rejected)
	assert.Equal(t, 1, res.Rows[model.KindMention].Rejected)
	require.Len(t, res.Rejected, 2)
	assert.Equal(t, int64(99), res.Rejected[0].TweetID)
	assert.Equal(t, 0, res.Rejected[0].Record)

	counts, err := s.TableCounts(ctx)
	require.NoError(t, err)
	assert.Zero(t, counts["tweet_tags"])
}

func TestRejectedEmbeddedPostPointsAtItsRecord(t *testing.T) {
	s := openTest(t)
	quoting := model.Rows{
		Key:   20,
		Users: []model.User{{ID: 11}},
		Tweets: []model.Tweet{
			{ID: 20, UserID: 11},
			{ID: 21, UserID: 77},
		},
		Tags: []model.TweetTag{{TweetID: 21, Tag: "#quoted"}},
	}
	res, err := s.WriteBatch(context.Background(), []model.Rows{sampleRows(1, 10), quoting})
	require.NoError(t, err)
	require.Len(t, res.Rejected, 2)
	for _, rr := range res.Rejected {
		assert.Equal(t, int64(21), rr.TweetID)
		assert.Equal(t, 1, rr.Record)
	}
	assert.Equal(t, 1, res.Rows[model.KindTweet].Rejected)
	assert.Equal(t, 1, res.Rows[model.KindTag].Rejected)
}

func TestAssociationsAttachToStoredPosts(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	_, err := s.WriteBatch(ctx, []model.Rows{sampleRows(1, 10)})
	require.NoError(t, err)
	res, err := s.WriteBatch(ctx, []model.Rows{{Tags: []model.TweetTag{{TweetID: 1, Tag: "#later"}}}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Rows[model.KindTag].Inserted)
}

func TestNoDanglingReferences(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	reply := sampleRows(3, 20)
	reply.Users = append(reply.Users, model.User{ID: 21, ScreenName: model.Ptr("parent")})
	reply.Tweets[0].InReplyToUserID = model.Ptr[int64](21)
	_, err := s.WriteBatch(ctx, []model.Rows{sampleRows(1, 10), sampleRows(2, 11), reply})
	require.NoError(t, err)

	checks := []string{
		`SELECT count(*) FROM tweets t LEFT JOIN users u ON u.id_users = t.id_users WHERE u.id_users IS NULL`,
		`SELECT count(*) FROM tweets t LEFT JOIN users u ON u.id_users = t.in_reply_to_user_id WHERE t.in_reply_to_user_id IS NOT NULL AND u.id_users IS NULL`,
		`SELECT count(*) FROM users u LEFT JOIN urls l ON l.id_urls = u.id_urls WHERE u.id_urls IS NOT NULL AND l.id_urls IS NULL`,
		`SELECT count(*) FROM tweet_urls a LEFT JOIN tweets t ON t.id_tweets = a.id_tweets WHERE t.id_tweets IS NULL`,
		`SELECT count(*) FROM tweet_urls a LEFT JOIN urls l ON l.id_urls = a.id_urls WHERE l.id_urls IS NULL`,
		`SELECT count(*) FROM tweet_mentions a LEFT JOIN users u ON u.id_users = a.id_users WHERE u.id_users IS NULL`,
		`SELECT count(*) FROM tweet_tags a LEFT JOIN tweets t ON t.id_tweets = a.id_tweets WHERE t.id_tweets IS NULL`,
		`SELECT count(*) FROM tweet_media a LEFT JOIN urls l ON l.id_urls = a.id_urls WHERE l.id_urls IS NULL`,
	}
	for _, q := range checks {
		var n int
		require.NoError(t, s.db.Get(&n, q))
		assert.Zero(t, n, q)
	}
}

func TestDialectFor(t *testing.T) {
	for _, name := range []string{"pgx", "postgres", "PostgreSQL"} {
		d, err := DialectFor(name)
		require.NoError(t, err)
		assert.Equal(t, Postgres.Name, d.Name)
	}
	d, err := DialectFor("sqlite")
	require.NoError(t, err)
	assert.False(t, d.Materialized)
	_, err = DialectFor("mysql")
	assert.Error(t, err)
}
