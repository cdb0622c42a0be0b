package query

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func timelineSpec() Spec {
	return Spec{
		Backend:    BackendRelational,
		Collection: "posts",
		Filters: []Filter{
			{Field: "author_id", Op: OpEq, Value: int64(42)},
			{Field: "is_deleted", Op: OpEq, Value: false},
		},
		Sort: []SortField{{Field: "created_at", Order: Desc, Kind: KindTime}},
	}
}

func TestFingerprint_Deterministic(t *testing.T) {
	a := timelineSpec()
	b := timelineSpec()

	if a.Fingerprint() != b.Fingerprint() {
		t.Fatalf("expected equal fingerprints, got %s and %s", a.Fingerprint(), b.Fingerprint())
	}
	if len(a.Fingerprint()) != 16 {
		t.Errorf("expected 16 hex chars, got %q", a.Fingerprint())
	}
}

func TestFingerprint_FilterOrderIndependent(t *testing.T) {
	a := timelineSpec()
	b := timelineSpec()
	b.Filters[0], b.Filters[1] = b.Filters[1], b.Filters[0]

	if a.Fingerprint() != b.Fingerprint() {
		t.Error("filter declaration order must not change the fingerprint")
	}
}

func TestFingerprint_Differences(t *testing.T) {
	base := timelineSpec()

	tests := []struct {
		name   string
		mutate func(*Spec)
	}{
		{"backend", func(s *Spec) { s.Backend = BackendDocument }},
		{"collection", func(s *Spec) { s.Collection = "comments" }},
		{"filter value", func(s *Spec) { s.Filters[0].Value = int64(43) }},
		{"filter op", func(s *Spec) { s.Filters[0].Op = OpNe }},
		{"sort order", func(s *Spec) { s.Sort[0].Order = Asc }},
		{"sort field", func(s *Spec) { s.Sort[0].Field = "updated_at" }},
		{"tie breaker", func(s *Spec) { s.TieBreaker = SortField{Field: "uuid", Kind: KindString} }},
		{"time filter", func(s *Spec) {
			s.Filters = append(s.Filters, Filter{Field: "created_at", Op: OpGte, Value: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := timelineSpec()
			tt.mutate(&s)
			if s.Fingerprint() == base.Fingerprint() {
				t.Errorf("expected fingerprint to change when %s changes", tt.name)
			}
		})
	}
}

func TestFingerprint_TimeValuesAreCompared(t *testing.T) {
	a := timelineSpec()
	a.Filters = append(a.Filters, Filter{Field: "created_at", Op: OpGte, Value: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)})
	b := timelineSpec()
	b.Filters = append(b.Filters, Filter{Field: "created_at", Op: OpGte, Value: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)})

	if a.Fingerprint() == b.Fingerprint() {
		t.Error("different time filters must produce different fingerprints")
	}
}

func TestFingerprint_ExplicitTieBreakerMatchesDefault(t *testing.T) {
	a := timelineSpec()
	b := timelineSpec()
	b.Sort = append(b.Sort, DefaultTieBreaker)

	if a.Fingerprint() != b.Fingerprint() {
		t.Error("an explicit default tie breaker should normalize to the same sort")
	}
}

func TestCanonical(t *testing.T) {
	tests := []struct {
		name string
		v    any
		want string
	}{
		{"nil", nil, "nil"},
		{"int", 42, "int:42"},
		{"string", "a:b", "string:a:b"},
		{"bool", true, "bool:true"},
		{"nil slice", []int(nil), "slice:nil"},
		{"slice", []int{1, 2}, "slice[2]:{int:1,int:2}"},
		{"map sorted", map[string]int{"b": 2, "a": 1}, "map[2]:{string:a=int:1,string:b=int:2}"},
		{"time utc", time.Date(2025, 1, 2, 3, 4, 5, 0, time.FixedZone("x", 3600)), "time:2025-01-02T02:04:05Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := canonical(tt.v); got != tt.want {
				t.Errorf("canonical() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCanonical_StructSkipsUnexported(t *testing.T) {
	type sample struct {
		Name   string
		hidden int
	}
	got := canonical(sample{Name: "x", hidden: 1})
	if strings.Contains(got, "hidden") {
		t.Errorf("unexported fields must be skipped, got %q", got)
	}
	if got != "struct:{Name:string:x}" {
		t.Errorf("unexpected canonical form %q", got)
	}
}

func TestSpec_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Spec)
		wantErr bool
	}{
		{"valid", func(s *Spec) {}, false},
		{"missing backend", func(s *Spec) { s.Backend = "" }, true},
		{"missing collection", func(s *Spec) { s.Collection = "" }, true},
		{"bad order", func(s *Spec) { s.Sort[0].Order = "sideways" }, true},
		{"missing kind", func(s *Spec) { s.Sort[0].Kind = "" }, true},
		{"bad operator", func(s *Spec) { s.Filters[0].Op = "like" }, true},
		{"bad tie breaker", func(s *Spec) { s.TieBreaker = SortField{Field: "uuid"} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := timelineSpec()
			tt.mutate(&s)
			err := s.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if !errors.Is(err, ErrUnsupported) {
					t.Errorf("expected ErrUnsupported, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestSpec_Normalized(t *testing.T) {
	s := Spec{Sort: []SortField{{Field: "created_at", Kind: KindTime}}}
	got := s.Normalized()

	if len(got) != 2 {
		t.Fatalf("expected tie breaker to be appended, got %v", got)
	}
	if got[0].Order != Asc {
		t.Errorf("expected empty order to default to asc, got %q", got[0].Order)
	}
	if got[1] != DefaultTieBreaker {
		t.Errorf("expected default tie breaker, got %+v", got[1])
	}

	s.Sort = append(s.Sort, SortField{Field: "id", Order: Desc, Kind: KindInt})
	got = s.Normalized()
	if len(got) != 2 || got[1].Order != Desc {
		t.Errorf("explicit tie breaker must be kept as declared, got %v", got)
	}
}
