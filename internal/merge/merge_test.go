package merge

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tweetnorm/internal/model"
)

func TestUserAbsentInserts(t *testing.T) {
	cand := model.User{ID: 1, ScreenName: model.Ptr("a")}
	got, d, conflicts := User(nil, cand)
	assert.Equal(t, Insert, d)
	assert.Empty(t, conflicts)
	assert.Equal(t, cand, got)
}

func TestUserFillsMissingOnly(t *testing.T) {
	stored := model.User{ID: 1, ScreenName: model.Ptr("alice")}
	cand := model.User{ID: 1, ScreenName: model.Ptr("alice2"), Name: model.Ptr("Alice"), FriendsCount: model.Ptr[int64](10)}

	got, d, conflicts := User(&stored, cand)
	assert.Equal(t, Update, d)
	assert.Equal(t, "alice", *got.ScreenName, "first-seen value wins")
	assert.Equal(t, "Alice", *got.Name)
	assert.Equal(t, int64(10), *got.FriendsCount)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "screen_name", conflicts[0].Field)
	assert.True(t, conflicts[0].Stable)
	assert.Equal(t, 1, StableCount(conflicts))
}

func TestUserNothingNewKeeps(t *testing.T) {
	ts := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	stored := model.User{ID: 1, CreatedAt: &ts, FriendsCount: model.Ptr[int64](3)}
	other := ts.In(time.FixedZone("x", 3600))
	cand := model.User{ID: 1, CreatedAt: &other, FriendsCount: model.Ptr[int64](4)}

	_, d, conflicts := User(&stored, cand)
	assert.Equal(t, Keep, d)
	require.Len(t, conflicts, 1, "equal instants in different zones do not conflict")
	assert.Equal(t, "friends_count", conflicts[0].Field)
	assert.False(t, conflicts[0].Stable)
}

func TestTweetAuthorMismatchIsConstraintViolation(t *testing.T) {
	stored := model.Tweet{ID: 1, UserID: 10}
	_, _, _, err := Tweet(&stored, model.Tweet{ID: 1, UserID: 11})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrConstraintViolation))
}

func TestTweetFillsMissing(t *testing.T) {
	stored := model.Tweet{ID: 1, UserID: 10, Text: model.Ptr("hi")}
	cand := model.Tweet{ID: 1, UserID: 10, Text: model.Ptr("hi"), Lang: model.Ptr("en")}
	got, d, conflicts, err := Tweet(&stored, cand)
	require.NoError(t, err)
	assert.Equal(t, Update, d)
	assert.Empty(t, conflicts)
	assert.Equal(t, "en", *got.Lang)
}

func TestAssociation(t *testing.T) {
	assert.Equal(t, Insert, Association(false))
	assert.Equal(t, Keep, Association(true))
}

func randomUser(r *rand.Rand) model.User {
	u := model.User{ID: 1}
	maybe := func() bool { return r.IntN(2) == 0 }
	if maybe() {
		u.ScreenName = model.Ptr([]string{"a", "b"}[r.IntN(2)])
	}
	if maybe() {
		u.Name = model.Ptr([]string{"A", "B"}[r.IntN(2)])
	}
	if maybe() {
		u.FriendsCount = model.Ptr(int64(r.IntN(3)))
	}
	if maybe() {
		u.Verified = model.Ptr(maybe())
	}
	if maybe() {
		ts := time.Unix(int64(r.IntN(3)), 0).UTC()
		u.CreatedAt = &ts
	}
	if maybe() {
		u.Location = model.Ptr("somewhere")
	}
	return u
}

func known(u model.User) map[string]any {
	out := map[string]any{}
	for i, v := range u.Values() {
		if v != nil {
			out[model.UserColumns[i]] = v
		}
	}
	return out
}

// Merging never loses or rewrites a known field, and is idempotent.
func TestUserMergeMonotone(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 2000; i++ {
		stored := randomUser(r)
		cand := randomUser(r)

		merged, d, _ := User(&stored, cand)
		before := known(stored)
		after := known(merged)
		for k, v := range before {
			assert.Equal(t, v, after[k], "field %s changed", k)
		}
		if d == Keep {
			assert.Len(t, after, len(before))
		} else {
			assert.Greater(t, len(after), len(before))
		}

		again, d2, _ := User(&merged, cand)
		assert.Equal(t, Keep, d2)
		if diff := cmp.Diff(merged, again); diff != "" {
			t.Fatalf("second merge changed state (-want +got):\n%s", diff)
		}
	}
}

// Folding non-conflicting candidates gives the same state in any order.
func TestUserMergeOrderFreeWithoutConflicts(t *testing.T) {
	a := model.User{ID: 1, ScreenName: model.Ptr("a")}
	b := model.User{ID: 1, Name: model.Ptr("A"), FriendsCount: model.Ptr[int64](2)}
	c := model.User{ID: 1, ScreenName: model.Ptr("a"), Location: model.Ptr("x")}

	fold := func(us ...model.User) model.User {
		acc, _, _ := User(nil, us[0])
		for _, u := range us[1:] {
			acc, _, _ = User(&acc, u)
		}
		return acc
	}
	want := fold(a, b, c)
	for _, order := range [][]model.User{{b, c, a}, {c, a, b}, {c, b, a}} {
		if diff := cmp.Diff(want, fold(order...)); diff != "" {
			t.Fatalf("order-dependent merge (-want +got):\n%s", diff)
		}
	}
}
