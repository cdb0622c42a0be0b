// Package repositorycache announces repository writes to the page cache.
//
// Notifier decorates a go-repository-bun repository. Reads pass through to
// the base unchanged. Every successful write publishes one
// invalidation.FeedMutationEvent per touched feed:
//
//   - the collection feed, the snake_case name of the model ("blog_post");
//   - the record feed, "<collection>:<id>";
//   - any feed returned by a FeedResolver.
//
// Criteria based deletes only announce the collection feed since the deleted
// records are unknown.
//
// # Usage
//
//	pub, _ := invalidation.NewKafkaPublisher(kafkaCfg)
//	posts := repositorycache.New[*Post](baseRepo, pub,
//		repositorycache.WithFeedResolver(func(p *Post) []string {
//			return []string{"author:" + p.AuthorID}
//		}),
//	)
//
// Paginated reads opt into those feeds with pager.WithFeedTags so the
// listener can map a feed back to the cached queries serving it:
//
//	ctx = pager.WithFeedTags(ctx, "post", "author:"+authorID)
//	page, err := engine.Paginate(ctx, req)
//
// A failed publish is logged and the write still succeeds. Cached pages
// carry a TTL, which bounds how long a missed event can leave them stale.
package repositorycache
