package ingest

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tweetnorm/internal/model"
)

func TestDecode(t *testing.T) {
	rows, err := Decode([]byte(post(7, 70, "x", "Tag")))
	require.NoError(t, err)
	assert.Equal(t, int64(7), rows.Key)
	assert.Equal(t, []model.TweetTag{{TweetID: 7, Tag: "#tag"}}, rows.Tags)
}

func TestDecodeMalformed(t *testing.T) {
	for _, in := range []string{`{`, `[]`, `{"id": "seven", "user": {"id": 1}}`, `{"id": 1, "created_at": "soon", "user": {"id": 1}}`} {
		_, err := Decode([]byte(in))
		require.Error(t, err, in)
		assert.True(t, errors.Is(err, model.ErrMalformedRecord), in)
	}
}
