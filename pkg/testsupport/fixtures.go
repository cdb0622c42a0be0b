package testsupport

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goliatone/go-repository-pager/query"
	"github.com/google/uuid"
)

// FeedItem is the row shape shared by the adapter, engine and integration
// tests.
type FeedItem struct {
	ID        int64     `bun:"id,pk" bson:"id" json:"id"`
	FeedID    string    `bun:"feed_id" bson:"feed_id" json:"feed_id"`
	Title     string    `bun:"title" bson:"title" json:"title"`
	Score     int64     `bun:"score" bson:"score" json:"score"`
	CreatedAt time.Time `bun:"created_at" bson:"created_at" json:"created_at"`
}

// Epoch is the creation time of the first generated item.
var Epoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// FeedItems generates n items of feedID with ids 1..n, one minute apart,
// and scores cycling through 0..2.
func FeedItems(feedID string, n int) []FeedItem {
	items := make([]FeedItem, n)
	for i := range items {
		id := int64(i + 1)
		items[i] = FeedItem{
			ID:        id,
			FeedID:    feedID,
			Title:     fmt.Sprintf("%s item %d", feedID, id),
			Score:     id % 3,
			CreatedAt: Epoch.Add(time.Duration(i) * time.Minute),
		}
	}
	return items
}

// ByIDSpec sorts a feed by id ascending only.
func ByIDSpec(backend query.Backend, feedID string) query.Spec {
	return query.Spec{
		Backend:    backend,
		Collection: "feed_items",
		Filters:    []query.Filter{{Field: "feed_id", Op: query.OpEq, Value: feedID}},
	}
}

// TimelineSpec sorts a feed newest first with id as tie breaker.
func TimelineSpec(backend query.Backend, feedID string) query.Spec {
	spec := ByIDSpec(backend, feedID)
	spec.Sort = []query.SortField{{Field: "created_at", Order: query.Desc, Kind: query.KindTime}}
	return spec
}

// RandomFeedID returns a feed id unique to the calling test.
func RandomFeedID() string {
	return "feed-" + uuid.NewString()[:8]
}

// LoadFixtureJSON reads a JSON fixture into dest.
func LoadFixtureJSON(t testing.TB, path string, dest any) {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to load fixture from %s: %v", path, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		t.Fatalf("failed to unmarshal JSON fixture from %s: %v", path, err)
	}
}

// FixturePath constructs a path to a fixture file relative to the testdata directory.
func FixturePath(filename string) string {
	return filepath.Join("testdata", filename)
}
