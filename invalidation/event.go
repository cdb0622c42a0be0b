package invalidation

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/google/uuid"
)

// ErrMalformedEvent wraps every decode or validation failure of an event.
var ErrMalformedEvent = errors.New("invalidation: malformed event")

// MutationKind is the change that happened to a feed.
type MutationKind string

const (
	Created MutationKind = "created"
	Updated MutationKind = "updated"
	Deleted MutationKind = "deleted"
)

// FeedMutationEvent announces that the content of a feed changed.
// AffectedQueryFingerprints may be empty, in which case the listener asks the
// feed index which cached queries serve FeedID.
type FeedMutationEvent struct {
	EventID                   string       `json:"eventId,omitempty"`
	FeedID                    string       `json:"feedId"`
	MutationKind              MutationKind `json:"mutationKind"`
	AffectedQueryFingerprints []string     `json:"affectedQueryFingerprints,omitempty"`
	OccurredAt                time.Time    `json:"occurredAt"`
}

// NewEvent returns an event with a fresh id stamped at now.
func NewEvent(feedID string, kind MutationKind, fingerprints ...string) FeedMutationEvent {
	return FeedMutationEvent{
		EventID:                   uuid.NewString(),
		FeedID:                    feedID,
		MutationKind:              kind,
		AffectedQueryFingerprints: fingerprints,
		OccurredAt:                time.Now().UTC(),
	}
}

// Validate implements validation.Validatable.
func (e FeedMutationEvent) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.FeedID, validation.Required),
		validation.Field(&e.MutationKind, validation.Required, validation.In(Created, Updated, Deleted)),
		validation.Field(&e.AffectedQueryFingerprints, validation.Each(validation.Required, is.Hexadecimal)),
	)
}

// EncodeEvent serializes e for the wire.
func EncodeEvent(e FeedMutationEvent) ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return json.Marshal(e)
}

// DecodeEvent parses and validates a wire event.
func DecodeEvent(b []byte) (FeedMutationEvent, error) {
	var e FeedMutationEvent
	if err := json.Unmarshal(b, &e); err != nil {
		return FeedMutationEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if err := e.Validate(); err != nil {
		return FeedMutationEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return e, nil
}
