package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tweetnorm/internal/model"
)

func taggedPost(id int64, tags ...string) model.Rows {
	rows := model.Rows{
		Key:    id,
		Users:  []model.User{{ID: 1, ScreenName: model.Ptr("tagger")}},
		Tweets: []model.Tweet{{ID: id, UserID: 1}},
	}
	for _, tag := range tags {
		rows.Tags = append(rows.Tags, model.TweetTag{TweetID: id, Tag: tag})
	}
	return rows
}

func TestTagViews(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	_, err := s.WriteBatch(ctx, []model.Rows{
		taggedPost(1, "#go", "#db"),
		taggedPost(2, "#go"),
		taggedPost(3, "#go", "#db", "$aapl"),
	})
	require.NoError(t, err)
	require.NoError(t, s.RefreshViews(ctx))

	top, err := s.TopTags(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []TagTotal{
		{Rank: 1, Tag: "#go", Total: 3},
		{Rank: 2, Tag: "#db", Total: 2},
		{Rank: 3, Tag: "$aapl", Total: 1},
	}, top)

	limited, err := s.TopTags(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	goPairs, err := s.Cooccurring(ctx, "#go", 10)
	require.NoError(t, err)
	assert.Equal(t, []TagPair{
		{Tag1: "#go", Tag2: "#go", Total: 3},
		{Tag1: "#go", Tag2: "#db", Total: 2},
		{Tag1: "#go", Tag2: "$aapl", Total: 1},
	}, goPairs)
}

func TestCooccurrenceIsSymmetric(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	_, err := s.WriteBatch(ctx, []model.Rows{
		taggedPost(1, "#a", "#b", "#c"),
		taggedPost(2, "#b", "#c"),
		taggedPost(3, "#c"),
	})
	require.NoError(t, err)

	var pairs []TagPair
	require.NoError(t, s.db.Select(&pairs, `SELECT tag1, tag2, total FROM tweet_tags_cooccurrence`))
	index := map[[2]string]int64{}
	for _, p := range pairs {
		index[[2]string{p.Tag1, p.Tag2}] = p.Total
	}
	require.NotEmpty(t, index)
	for k, v := range index {
		assert.Equal(t, v, index[[2]string{k[1], k[0]}], "pair %v", k)
	}
	assert.Equal(t, int64(2), index[[2]string{"#b", "#c"}])
}

func TestRefreshIsNoopOnPlainViews(t *testing.T) {
	s := openTest(t)
	assert.NoError(t, s.RefreshViews(context.Background()))
}
