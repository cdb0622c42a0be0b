package testsupport

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goliatone/go-repository-pager/query"
)

func TestFeedItems(t *testing.T) {
	items := FeedItems("news", 4)
	if len(items) != 4 {
		t.Fatalf("expected 4 items, got %d", len(items))
	}
	if items[0].ID != 1 || items[3].ID != 4 {
		t.Errorf("unexpected ids %d..%d", items[0].ID, items[3].ID)
	}
	if !items[1].CreatedAt.Equal(Epoch.Add(time.Minute)) {
		t.Errorf("unexpected created_at %v", items[1].CreatedAt)
	}
	if items[2].Score != 0 {
		t.Errorf("expected score 0 for id 3, got %d", items[2].Score)
	}
}

func TestMemoryAdapter_ForwardAndBackward(t *testing.T) {
	adapter := NewMemoryAdapter(query.BackendRelational, FeedItems("news", 25))
	spec := ByIDSpec(query.BackendRelational, "news")

	res, err := adapter.FetchPage(context.Background(), query.FetchRequest{Spec: spec, Limit: 10, Direction: query.Forward})
	if err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}
	if len(res.Items) != 10 || res.Items[0].ID != 1 || !res.HasMore {
		t.Fatalf("unexpected first page: %d items, first %d, hasMore %v", len(res.Items), res.Items[0].ID, res.HasMore)
	}

	res, err = adapter.FetchPage(context.Background(), query.FetchRequest{
		Spec:      spec,
		After:     []any{int64(11)},
		Limit:     5,
		Direction: query.Backward,
	})
	if err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}
	if len(res.Items) != 5 || res.Items[0].ID != 6 || res.Items[4].ID != 10 {
		t.Fatalf("unexpected backward page %+v", res.Items)
	}
	if !res.HasMore {
		t.Error("expected more items before id 6")
	}
}

func TestMemoryAdapter_Filters(t *testing.T) {
	items := append(FeedItems("news", 5), FeedItems("sport", 5)...)
	adapter := NewMemoryAdapter(query.BackendRelational, items)

	tests := []struct {
		name    string
		filters []query.Filter
		want    int
	}{
		{"eq", []query.Filter{{Field: "feed_id", Op: query.OpEq, Value: "sport"}}, 5},
		{"in", []query.Filter{{Field: "feed_id", Op: query.OpIn, Value: []string{"news", "sport"}}}, 10},
		{"gte", []query.Filter{{Field: "score", Op: query.OpGte, Value: 2}}, 4},
		{"ne", []query.Filter{{Field: "feed_id", Op: query.OpNe, Value: "news"}}, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := query.Spec{Backend: query.BackendRelational, Collection: "feed_items", Filters: tt.filters}
			res, err := adapter.FetchPage(context.Background(), query.FetchRequest{Spec: spec, Limit: 50, Direction: query.Forward})
			if err != nil {
				t.Fatalf("FetchPage() error = %v", err)
			}
			if len(res.Items) != tt.want {
				t.Errorf("expected %d items, got %d", tt.want, len(res.Items))
			}
		})
	}
}

func TestMemoryAdapter_FailNext(t *testing.T) {
	adapter := NewMemoryAdapter(query.BackendRelational, FeedItems("news", 3))
	adapter.FailNext(1, nil)
	req := query.FetchRequest{Spec: ByIDSpec(query.BackendRelational, "news"), Limit: 10, Direction: query.Forward}

	if _, err := adapter.FetchPage(context.Background(), req); !errors.Is(err, ErrInjected) {
		t.Fatalf("expected ErrInjected, got %v", err)
	}
	if _, err := adapter.FetchPage(context.Background(), req); err != nil {
		t.Fatalf("expected recovery, got %v", err)
	}
	if adapter.Calls() != 2 {
		t.Errorf("expected 2 calls, got %d", adapter.Calls())
	}
}

func TestMemoryAdapter_DelayHonoursContext(t *testing.T) {
	adapter := NewMemoryAdapter(query.BackendRelational, FeedItems("news", 3))
	adapter.SetDelay(time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := adapter.FetchPage(ctx, query.FetchRequest{Spec: ByIDSpec(query.BackendRelational, "news"), Limit: 1, Direction: query.Forward})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestLoadFixtureJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "items.json")
	if err := os.WriteFile(path, []byte(`[{"id":7,"feed_id":"news","title":"x"}]`), 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	var items []FeedItem
	LoadFixtureJSON(t, path, &items)
	if len(items) != 1 || items[0].ID != 7 || items[0].FeedID != "news" {
		t.Errorf("unexpected items %+v", items)
	}
}

func TestFixturePath(t *testing.T) {
	if got := FixturePath("a.json"); got != filepath.Join("testdata", "a.json") {
		t.Errorf("unexpected path %q", got)
	}
}
