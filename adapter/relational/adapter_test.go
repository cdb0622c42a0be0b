package relational

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"testing"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-repository-pager/query"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

type post struct {
	bun.BaseModel `bun:"table:posts"`

	ID       int64  `bun:"id,pk"`
	AuthorID int64  `bun:"author_id"`
	Score    int64  `bun:"score"`
	Title    string `bun:"title"`
}

func newTestDB(t *testing.T, n int) *bun.DB {
	t.Helper()
	sqldb, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqldb.SetMaxOpenConns(1)
	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	if _, err := db.NewCreateTable().Model((*post)(nil)).Exec(ctx); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if n == 0 {
		return db
	}

	rows := make([]post, n)
	for i := range rows {
		id := int64(i + 1)
		rows[i] = post{ID: id, AuthorID: id%2 + 1, Score: id % 3, Title: "post"}
	}
	if _, err := db.NewInsert().Model(&rows).Exec(ctx); err != nil {
		t.Fatalf("insert: %v", err)
	}
	return db
}

func postsSpec() query.Spec {
	return query.Spec{Backend: query.BackendRelational, Collection: "posts"}
}

func ids(rows []post) []int64 {
	out := make([]int64, len(rows))
	for i, r := range rows {
		out[i] = r.ID
	}
	return out
}

func equalIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func seq(from, to int64) []int64 {
	var out []int64
	for i := from; i <= to; i++ {
		out = append(out, i)
	}
	return out
}

func TestAdapter_ForwardPages(t *testing.T) {
	ctx := context.Background()
	adapter := New[post](NewBunLister[post](newTestDB(t, 25)))

	tests := []struct {
		name     string
		after    []any
		want     []int64
		wantMore bool
	}{
		{"first page", nil, seq(1, 10), true},
		{"second page", []any{int64(10)}, seq(11, 20), true},
		{"last page", []any{int64(20)}, seq(21, 25), false},
		{"past the end", []any{int64(25)}, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := adapter.FetchPage(ctx, query.FetchRequest{
				Spec:      postsSpec(),
				After:     tt.after,
				Limit:     10,
				Direction: query.Forward,
			})
			if err != nil {
				t.Fatalf("FetchPage() error = %v", err)
			}
			if !equalIDs(ids(res.Items), tt.want) {
				t.Errorf("FetchPage() ids = %v, want %v", ids(res.Items), tt.want)
			}
			if res.HasMore != tt.wantMore {
				t.Errorf("FetchPage() HasMore = %v, want %v", res.HasMore, tt.wantMore)
			}
		})
	}
}

func TestAdapter_BackwardPages(t *testing.T) {
	ctx := context.Background()
	adapter := New[post](NewBunLister[post](newTestDB(t, 25)))

	tests := []struct {
		name     string
		after    []any
		limit    int
		want     []int64
		wantMore bool
	}{
		{"before 21", []any{int64(21)}, 5, seq(16, 20), true},
		{"before 11", []any{int64(11)}, 10, seq(1, 10), false},
		{"tail", nil, 10, seq(16, 25), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := adapter.FetchPage(ctx, query.FetchRequest{
				Spec:      postsSpec(),
				After:     tt.after,
				Limit:     tt.limit,
				Direction: query.Backward,
			})
			if err != nil {
				t.Fatalf("FetchPage() error = %v", err)
			}
			if !equalIDs(ids(res.Items), tt.want) {
				t.Errorf("FetchPage() ids = %v, want %v", ids(res.Items), tt.want)
			}
			if res.HasMore != tt.wantMore {
				t.Errorf("FetchPage() HasMore = %v, want %v", res.HasMore, tt.wantMore)
			}
			if len(res.Items) > 0 && res.FirstKey[0] != tt.want[0] {
				t.Errorf("FirstKey = %v, want %v", res.FirstKey, tt.want[0])
			}
		})
	}
}

func TestAdapter_TraversalMatchesUnpaginated(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t, 37)
	adapter := New[post](NewBunLister[post](db))

	spec := postsSpec()
	spec.Sort = []query.SortField{{Field: "score", Order: query.Desc, Kind: query.KindInt}}
	spec.Filters = []query.Filter{{Field: "author_id", Op: query.OpIn, Value: []int64{1, 2}}}

	var all []post
	if err := db.NewSelect().Model(&all).Scan(ctx); err != nil {
		t.Fatalf("select all: %v", err)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Score != all[j].Score {
			return all[i].Score > all[j].Score
		}
		return all[i].ID < all[j].ID
	})

	for _, limit := range []int{1, 4, 7, 37, 50} {
		var got []post
		var after []any
		for {
			res, err := adapter.FetchPage(ctx, query.FetchRequest{Spec: spec, After: after, Limit: limit, Direction: query.Forward})
			if err != nil {
				t.Fatalf("FetchPage() error = %v", err)
			}
			got = append(got, res.Items...)
			if !res.HasMore {
				break
			}
			after = res.LastKey
		}
		if !equalIDs(ids(got), ids(all)) {
			t.Errorf("limit %d: traversal = %v, want %v", limit, ids(got), ids(all))
		}
	}
}

func TestAdapter_Filters(t *testing.T) {
	ctx := context.Background()
	adapter := New[post](NewBunLister[post](newTestDB(t, 10)))

	tests := []struct {
		name   string
		filter query.Filter
		want   []int64
	}{
		{"eq", query.Filter{Field: "author_id", Op: query.OpEq, Value: 1}, []int64{2, 4, 6, 8, 10}},
		{"ne", query.Filter{Field: "author_id", Op: query.OpNe, Value: 1}, []int64{1, 3, 5, 7, 9}},
		{"gt", query.Filter{Field: "id", Op: query.OpGt, Value: 8}, []int64{9, 10}},
		{"lte", query.Filter{Field: "id", Op: query.OpLte, Value: 2}, []int64{1, 2}},
		{"in", query.Filter{Field: "id", Op: query.OpIn, Value: []int64{3, 7}}, []int64{3, 7}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := postsSpec()
			spec.Filters = []query.Filter{tt.filter}
			res, err := adapter.FetchPage(ctx, query.FetchRequest{Spec: spec, Limit: 20, Direction: query.Forward})
			if err != nil {
				t.Fatalf("FetchPage() error = %v", err)
			}
			if !equalIDs(ids(res.Items), tt.want) {
				t.Errorf("ids = %v, want %v", ids(res.Items), tt.want)
			}
		})
	}
}

func TestAdapter_ColumnMapping(t *testing.T) {
	ctx := context.Background()
	adapter := New[post](NewBunLister[post](newTestDB(t, 5)), WithColumn[post]("author", "author_id"))

	spec := postsSpec()
	spec.Filters = []query.Filter{{Field: "author", Op: query.OpEq, Value: 2}}
	res, err := adapter.FetchPage(ctx, query.FetchRequest{Spec: spec, Limit: 10, Direction: query.Forward})
	if err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}
	if !equalIDs(ids(res.Items), []int64{1, 3, 5}) {
		t.Errorf("ids = %v", ids(res.Items))
	}
}

func TestAdapter_Unsupported(t *testing.T) {
	adapter := New[post](NewBunLister[post](newTestDB(t, 0)))

	tests := []struct {
		name string
		req  query.FetchRequest
	}{
		{"zero limit", query.FetchRequest{Spec: postsSpec(), Limit: 0}},
		{"bad operator", query.FetchRequest{Spec: query.Spec{
			Backend: query.BackendRelational, Collection: "posts",
			Filters: []query.Filter{{Field: "title", Op: "like", Value: "x"}},
		}, Limit: 1}},
		{"arity", query.FetchRequest{Spec: postsSpec(), After: []any{int64(1), int64(2)}, Limit: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := adapter.FetchPage(context.Background(), tt.req)
			if !errors.Is(err, query.ErrUnsupported) {
				t.Errorf("FetchPage() error = %v, want ErrUnsupported", err)
			}
		})
	}
}

type failingLister struct{ err error }

func (f failingLister) List(context.Context, ...repository.SelectCriteria) ([]post, int, error) {
	return nil, 0, f.err
}

func TestAdapter_ListerError(t *testing.T) {
	boom := errors.New("connection reset")
	adapter := New[post](failingLister{err: boom})

	_, err := adapter.FetchPage(context.Background(), query.FetchRequest{Spec: postsSpec(), Limit: 5, Direction: query.Forward})
	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped lister error, got %v", err)
	}
	if errors.Is(err, query.ErrUnsupported) {
		t.Error("backend failures must not be classified as unsupported")
	}
}
