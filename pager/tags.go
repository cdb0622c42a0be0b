package pager

import (
	"context"
)

type feedTagsContextKey struct{}

// WithFeedTags attaches feed ids to the context. A page stored while serving
// a request with this context is registered under every tag in the feed
// index, so a mutation event that only names the feed can still evict it.
func WithFeedTags(ctx context.Context, feedIDs ...string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(feedIDs) == 0 {
		return ctx
	}

	existing := feedTagsFromContext(ctx)
	combined := append(existing, feedIDs...)
	combined = dedupeStrings(combined)
	if len(combined) == 0 {
		return ctx
	}

	return context.WithValue(ctx, feedTagsContextKey{}, combined)
}

func feedTagsFromContext(ctx context.Context) []string {
	if ctx == nil {
		return nil
	}
	if tags, ok := ctx.Value(feedTagsContextKey{}).([]string); ok {
		return append([]string(nil), tags...)
	}
	return nil
}

// dedupeStrings drops empty and repeated values, keeping first occurrences.
func dedupeStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := values[:0]
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
