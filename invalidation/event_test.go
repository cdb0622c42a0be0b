package invalidation

import (
	"errors"
	"testing"
	"time"
)

func TestDecodeEvent(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
		wantFps int
	}{
		{
			name:    "explicit fingerprints",
			raw:     `{"eventId":"e1","feedId":"post:1","mutationKind":"created","affectedQueryFingerprints":["00ab12cd34ef5678"],"occurredAt":"2024-03-01T12:00:00Z"}`,
			wantFps: 1,
		},
		{
			name: "feed only",
			raw:  `{"feedId":"post:1","mutationKind":"deleted"}`,
		},
		{name: "not json", raw: `{feedId`, wantErr: true},
		{name: "missing feed", raw: `{"mutationKind":"created"}`, wantErr: true},
		{name: "unknown kind", raw: `{"feedId":"post:1","mutationKind":"archived"}`, wantErr: true},
		{name: "bad fingerprint", raw: `{"feedId":"post:1","mutationKind":"updated","affectedQueryFingerprints":["not-hex"]}`, wantErr: true},
		{name: "empty fingerprint", raw: `{"feedId":"post:1","mutationKind":"updated","affectedQueryFingerprints":[""]}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := DecodeEvent([]byte(tt.raw))
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedEvent) {
					t.Fatalf("expected ErrMalformedEvent, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeEvent() error = %v", err)
			}
			if len(e.AffectedQueryFingerprints) != tt.wantFps {
				t.Errorf("expected %d fingerprints, got %d", tt.wantFps, len(e.AffectedQueryFingerprints))
			}
		})
	}
}

func TestEncodeEvent(t *testing.T) {
	e := NewEvent("post:7", Updated, "00000000000000ff")
	if e.EventID == "" {
		t.Error("expected generated event id")
	}
	if time.Since(e.OccurredAt) > time.Minute {
		t.Errorf("unexpected OccurredAt %v", e.OccurredAt)
	}

	raw, err := EncodeEvent(e)
	if err != nil {
		t.Fatalf("EncodeEvent() error = %v", err)
	}
	got, err := DecodeEvent(raw)
	if err != nil {
		t.Fatalf("DecodeEvent() error = %v", err)
	}
	if got.FeedID != e.FeedID || got.MutationKind != Updated || got.AffectedQueryFingerprints[0] != "00000000000000ff" {
		t.Errorf("unexpected event %+v", got)
	}

	if _, err := EncodeEvent(FeedMutationEvent{MutationKind: Created}); !errors.Is(err, ErrMalformedEvent) {
		t.Errorf("expected ErrMalformedEvent for missing feed id, got %v", err)
	}
}
