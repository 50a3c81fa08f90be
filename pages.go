package ifunny

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/jamesprial/go-ifunny-api-wrapper/internal"
	"github.com/jamesprial/go-ifunny-api-wrapper/pkg/types"
)

// fetcher builds a PageFunc that fetches ep through gw and wraps each raw item.
func fetcher[T any](c *Client, gw *internal.Client, ep internal.Endpoint, wrap func(types.Object) T) PageFunc[T] {
	return func(ctx context.Context, params types.PageParams) (*Page[T], error) {
		if err := c.validator.ValidatePageParams(params); err != nil {
			return nil, err
		}
		if params.Limit == 0 {
			params.Limit = c.config.PageSize
		}

		raw, err := gw.FetchPage(ctx, ep, params)
		if err != nil {
			return nil, err
		}

		items := make([]T, 0, len(raw.Items))
		for _, item := range raw.Items {
			items = append(items, wrap(item))
		}
		return &Page[T]{Items: items, Next: raw.Next}, nil
	}
}

func contentEndpoint(method, path string) internal.Endpoint {
	return internal.Endpoint{Method: method, Path: path, Key: "content", Shape: internal.ShapeCursors}
}

func searchEndpoint(path, key, query string) internal.Endpoint {
	return internal.Endpoint{
		Path:  path,
		Key:   key,
		Shape: internal.ShapeCursors,
		Query: url.Values{"q": {query}},
	}
}

// Notifications fetches one page of the logged in user's activity feed.
func (c *Client) Notifications(ctx context.Context, params types.PageParams) (*Page[*Notification], error) {
	return c.notificationsPage()(ctx, params)
}

// NewNotificationsIterator iterates over the logged in user's activity feed.
func (c *Client) NewNotificationsIterator(ctx context.Context) *Iterator[*Notification] {
	return Produce(ctx, c.notificationsPage(), types.PageParams{})
}

func (c *Client) notificationsPage() PageFunc[*Notification] {
	ep := internal.Endpoint{Path: "news/my", Key: "news", Shape: internal.ShapeCursors}
	return fetcher(c, c.api, ep, c.wrapNotification)
}

// FeaturedFeed fetches one page of the featured feed.
func (c *Client) FeaturedFeed(ctx context.Context, params types.PageParams) (*Page[*Post], error) {
	return c.featuredPage()(ctx, params)
}

// NewFeaturedIterator iterates over the featured feed.
func (c *Client) NewFeaturedIterator(ctx context.Context) *Iterator[*Post] {
	return Produce(ctx, c.featuredPage(), types.PageParams{})
}

func (c *Client) featuredPage() PageFunc[*Post] {
	return fetcher(c, c.api, contentEndpoint(http.MethodGet, "feeds/featured"), c.wrapPost)
}

// CollectiveFeed fetches one page of the collective feed.
func (c *Client) CollectiveFeed(ctx context.Context, params types.PageParams) (*Page[*Post], error) {
	return c.collectivePage()(ctx, params)
}

// NewCollectiveIterator iterates over the collective feed.
func (c *Client) NewCollectiveIterator(ctx context.Context) *Iterator[*Post] {
	return Produce(ctx, c.collectivePage(), types.PageParams{})
}

func (c *Client) collectivePage() PageFunc[*Post] {
	return fetcher(c, c.api, contentEndpoint(http.MethodPost, "feeds/collective"), c.wrapPost)
}

// Reads fetches one page of the posts the logged in user has read.
func (c *Client) Reads(ctx context.Context, params types.PageParams) (*Page[*Post], error) {
	return c.readsPage()(ctx, params)
}

// NewReadsIterator iterates over the posts the logged in user has read.
func (c *Client) NewReadsIterator(ctx context.Context) *Iterator[*Post] {
	return Produce(ctx, c.readsPage(), types.PageParams{})
}

func (c *Client) readsPage() PageFunc[*Post] {
	return fetcher(c, c.api, contentEndpoint(http.MethodGet, "feeds/reads"), c.wrapPost)
}

// ChannelFeed fetches one page of an explore channel.
func (c *Client) ChannelFeed(ctx context.Context, channelID string, params types.PageParams) (*Page[*Post], error) {
	return c.channelPage(channelID)(ctx, params)
}

// NewChannelFeedIterator iterates over an explore channel.
func (c *Client) NewChannelFeedIterator(ctx context.Context, channelID string) *Iterator[*Post] {
	return Produce(ctx, c.channelPage(channelID), types.PageParams{})
}

func (c *Client) channelPage(channelID string) PageFunc[*Post] {
	ep := contentEndpoint(http.MethodGet, "channels/"+pathSegment(channelID)+"/items")
	return fetcher(c, c.api, ep, c.wrapPost)
}

// Timeline fetches one page of a user's posts.
func (c *Client) Timeline(ctx context.Context, userID string, params types.PageParams) (*Page[*Post], error) {
	return c.timelinePage(userID)(ctx, params)
}

// NewTimelineIterator iterates over a user's posts.
func (c *Client) NewTimelineIterator(ctx context.Context, userID string) *Iterator[*Post] {
	return Produce(ctx, c.timelinePage(userID), types.PageParams{})
}

func (c *Client) timelinePage(userID string) PageFunc[*Post] {
	ep := contentEndpoint(http.MethodGet, "timelines/users/"+pathSegment(userID))
	return fetcher(c, c.api, ep, c.wrapPost)
}

// Comments fetches one page of a post's top-level comments.
func (c *Client) Comments(ctx context.Context, postID string, params types.PageParams) (*Page[*Comment], error) {
	return c.commentsPage(postID)(ctx, params)
}

// NewCommentsIterator iterates over a post's top-level comments.
func (c *Client) NewCommentsIterator(ctx context.Context, postID string) *Iterator[*Comment] {
	return Produce(ctx, c.commentsPage(postID), types.PageParams{})
}

func (c *Client) commentsPage(postID string) PageFunc[*Comment] {
	ep := internal.Endpoint{
		Path:  "content/" + pathSegment(postID) + "/comments",
		Key:   "comments",
		Shape: internal.ShapeCursors,
	}
	return fetcher(c, c.api, ep, func(item types.Object) *Comment {
		return c.newComment(postID, idOf(item, "id"), item)
	})
}

// DigestOptions selects what each digest of a digest page embeds.
type DigestOptions struct {
	Comments bool
	Contents bool
}

// Digests fetches one page of weekly digests.
func (c *Client) Digests(ctx context.Context, opts DigestOptions, params types.PageParams) (*Page[*Digest], error) {
	return c.digestsPage(opts)(ctx, params)
}

// NewDigestsIterator iterates over the weekly digests.
func (c *Client) NewDigestsIterator(ctx context.Context, opts DigestOptions) *Iterator[*Digest] {
	return Produce(ctx, c.digestsPage(opts), types.PageParams{})
}

func (c *Client) digestsPage(opts DigestOptions) PageFunc[*Digest] {
	ep := internal.Endpoint{
		Path:  "digest_groups",
		Shape: internal.ShapeCursors,
		Query: url.Values{
			"comments": {flag(opts.Comments)},
			"contents": {flag(opts.Contents)},
		},
	}
	return fetcher(c, c.api, ep, func(item types.Object) *Digest {
		return c.newDigest(idOf(item, "id"), item)
	})
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// SearchContent fetches one page of posts tagged with query.
func (c *Client) SearchContent(ctx context.Context, query string, params types.PageParams) (*Page[*Post], error) {
	return c.searchContentPage(query)(ctx, params)
}

// NewSearchContentIterator iterates over posts tagged with query.
func (c *Client) NewSearchContentIterator(ctx context.Context, query string) *Iterator[*Post] {
	return Produce(ctx, c.searchContentPage(query), types.PageParams{})
}

func (c *Client) searchContentPage(query string) PageFunc[*Post] {
	return fetcher(c, c.api, searchEndpoint("search/content", "content", query), c.wrapPost)
}

// SearchUsers fetches one page of users matching query.
func (c *Client) SearchUsers(ctx context.Context, query string, params types.PageParams) (*Page[*User], error) {
	return c.searchUsersPage(query)(ctx, params)
}

// NewSearchUsersIterator iterates over users matching query.
func (c *Client) NewSearchUsersIterator(ctx context.Context, query string) *Iterator[*User] {
	return Produce(ctx, c.searchUsersPage(query), types.PageParams{})
}

func (c *Client) searchUsersPage(query string) PageFunc[*User] {
	return fetcher(c, c.api, searchEndpoint("search/users", "users", query), c.wrapUser)
}

// SearchChats fetches one page of public chats matching query.
func (c *Client) SearchChats(ctx context.Context, query string, params types.PageParams) (*Page[*Chat], error) {
	return c.searchChatsPage(query)(ctx, params)
}

// NewSearchChatsIterator iterates over public chats matching query.
func (c *Client) NewSearchChatsIterator(ctx context.Context, query string) *Iterator[*Chat] {
	return Produce(ctx, c.searchChatsPage(query), types.PageParams{})
}

func (c *Client) searchChatsPage(query string) PageFunc[*Chat] {
	return fetcher(c, c.api, searchEndpoint("search/chats/channels", "channels", query), c.wrapChat)
}

// Chats fetches one page of the logged in user's chats. Requires Login.
func (c *Client) Chats(ctx context.Context, params types.PageParams) (*Page[*Chat], error) {
	return c.chatsPage()(ctx, params)
}

// NewChatsIterator iterates over the logged in user's chats. Requires Login.
func (c *Client) NewChatsIterator(ctx context.Context) *Iterator[*Chat] {
	return Produce(ctx, c.chatsPage(), types.PageParams{})
}

func (c *Client) chatsPage() PageFunc[*Chat] {
	return func(ctx context.Context, params types.PageParams) (*Page[*Chat], error) {
		accountID, err := c.chatAccountID(ctx)
		if err != nil {
			return nil, err
		}

		ep := internal.Endpoint{
			Path:        "users/" + pathSegment(accountID) + "/my_group_channels",
			Key:         "channels",
			Shape:       internal.ShapeRawNext,
			CursorParam: "token",
			Query: url.Values{
				"show_empty":          {"true"},
				"show_read_receipt":   {"true"},
				"show_member":         {"true"},
				"public_mode":         {"all"},
				"super_mode":          {"all"},
				"distinct_mode":       {"all"},
				"member_state_filter": {"all"},
				"order":               {"latest_last_message"},
			},
		}
		return fetcher(c, c.chat, ep, c.wrapChat)(ctx, params)
	}
}

// ChatMembers fetches one page of a chat's members. Requires Login.
func (c *Client) ChatMembers(ctx context.Context, channelURL string, params types.PageParams) (*Page[*ChatMember], error) {
	return c.chatMembersPage(channelURL)(ctx, params)
}

// NewChatMembersIterator iterates over a chat's members. Requires Login.
func (c *Client) NewChatMembersIterator(ctx context.Context, channelURL string) *Iterator[*ChatMember] {
	return Produce(ctx, c.chatMembersPage(channelURL), types.PageParams{})
}

func (c *Client) chatMembersPage(channelURL string) PageFunc[*ChatMember] {
	ep := internal.Endpoint{
		Path:  "group_channels/" + pathSegment(channelURL) + "/members",
		Key:   "members",
		Shape: internal.ShapeRawNext,
	}
	return fetcher(c, c.chat, ep, func(item types.Object) *ChatMember {
		return c.newChatMember(channelURL, item)
	})
}

// ChatMessages fetches one page of a chat's messages, newest first. The
// first page ends at the current time. Requires Login.
func (c *Client) ChatMessages(ctx context.Context, channelURL string, params types.PageParams) (*Page[*Message], error) {
	return c.chatMessagesPage(channelURL)(ctx, params)
}

// NewChatMessagesIterator iterates over a chat's messages, newest first. Requires Login.
func (c *Client) NewChatMessagesIterator(ctx context.Context, channelURL string) *Iterator[*Message] {
	return Produce(ctx, c.chatMessagesPage(channelURL), types.PageParams{})
}

func (c *Client) chatMessagesPage(channelURL string) PageFunc[*Message] {
	ep := internal.Endpoint{
		Path:        "group_channels/" + pathSegment(channelURL) + "/messages",
		Key:         "messages",
		Shape:       internal.ShapeLastItem,
		LimitParam:  "prev_limit",
		CursorParam: "message_id",
		IDField:     "message_id",
		Query: url.Values{
			"next_limit": {"0"},
			"include":    {"false"},
			"is_sdk":     {"true"},
			"reverse":    {"true"},
		},
		// Later pages start at the cursor message, which the previous page already yielded.
		FirstPage: func(q url.Values) {
			q.Set("message_ts", strconv.FormatInt(time.Now().UnixMilli(), 10))
			q.Set("include", "true")
		},
	}
	return fetcher(c, c.chat, ep, func(item types.Object) *Message {
		return c.newMessage(channelURL, idOf(item, "message_id"), item)
	})
}
