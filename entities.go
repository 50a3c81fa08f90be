package ifunny

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jamesprial/go-ifunny-api-wrapper/pkg/types"
)

const accountPath = "account"

func (c *Client) apiResource(path, key string) Resource {
	return Resource{Fetcher: c.api, Path: path, Key: key}
}

func (c *Client) chatResource(path string) Resource {
	return Resource{Fetcher: c.chat, Path: path}
}

func (c *Client) freshable(id string, resource Resource, seed types.Object) *Freshable {
	return NewFreshable(id, resource, seed).WithLogger(c.config.Logger)
}

// pathSegment escapes id so it stays a single path segment, dot-segments included.
func pathSegment(id string) string {
	if id == "." || id == ".." {
		return strings.ReplaceAll(id, ".", "%2E")
	}
	return url.PathEscape(id)
}

// idOf renders an id member of a raw item, which may be a string or a number.
func idOf(obj map[string]any, field string) string {
	switch v := obj[field].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

func objectOf(v any) map[string]any {
	switch obj := v.(type) {
	case map[string]any:
		return obj
	case types.Object:
		return obj
	}
	return nil
}

func unixField(ctx context.Context, f *Freshable, key string, unit time.Duration) (time.Time, error) {
	n, err := Field[int64](ctx, f, key)
	if err != nil || n == 0 {
		return time.Time{}, err
	}
	return time.Unix(0, n*int64(unit)), nil
}

// Post is a piece of iFunny content: a picture, video, gif or meme.
type Post struct {
	*Freshable
	client *Client
}

// Post returns a handle on the post id. Nothing is fetched until a field is read.
func (c *Client) Post(id string) *Post {
	return c.newPost(id, nil)
}

func (c *Client) newPost(id string, seed types.Object) *Post {
	return &Post{
		Freshable: c.freshable(id, c.apiResource("content/"+pathSegment(id), ""), seed),
		client:    c,
	}
}

func (c *Client) wrapPost(item types.Object) *Post {
	return c.newPost(idOf(item, "id"), item)
}

// Fresh returns a handle on the same post whose next read refetches it.
func (p *Post) Fresh() *Post {
	return &Post{Freshable: p.Freshable.Fresh(), client: p.client}
}

// Author returns the post's creator.
func (p *Post) Author(ctx context.Context) (*User, error) {
	v, err := p.Get(ctx, "creator")
	if err != nil {
		return nil, err
	}
	creator := objectOf(v)
	if creator == nil {
		return nil, nil
	}
	return p.client.newUser(idOf(creator, "id"), creator), nil
}

// Type is the content type, for example "pic" or "video_clip".
func (p *Post) Type(ctx context.Context) (string, error) {
	return Field[string](ctx, p.Freshable, "type")
}

func (p *Post) Title(ctx context.Context) (string, error) {
	return Field[string](ctx, p.Freshable, "title")
}

// URL is the address of the content's media file.
func (p *Post) URL(ctx context.Context) (string, error) {
	return Field[string](ctx, p.Freshable, "url")
}

// Link is the shareable web page of the post.
func (p *Post) Link(ctx context.Context) (string, error) {
	return Field[string](ctx, p.Freshable, "link")
}

func (p *Post) Tags(ctx context.Context) ([]string, error) {
	return Field[[]string](ctx, p.Freshable, "tags")
}

func (p *Post) State(ctx context.Context) (string, error) {
	return Field[string](ctx, p.Freshable, "state")
}

func (p *Post) IsFeatured(ctx context.Context) (bool, error) {
	return Field[bool](ctx, p.Freshable, "is_featured")
}

func (p *Post) CreatedAt(ctx context.Context) (time.Time, error) {
	return unixField(ctx, p.Freshable, "date_create", time.Second)
}

func (p *Post) count(ctx context.Context, name string) (int, error) {
	return Field[int](ctx, p.Freshable, "num", WithTransform(pluck(name)))
}

func (p *Post) SmileCount(ctx context.Context) (int, error) {
	return p.count(ctx, "smiles")
}

func (p *Post) UnsmileCount(ctx context.Context) (int, error) {
	return p.count(ctx, "unsmiles")
}

func (p *Post) GuestSmileCount(ctx context.Context) (int, error) {
	return p.count(ctx, "guest_smiles")
}

func (p *Post) CommentCount(ctx context.Context) (int, error) {
	return p.count(ctx, "comments")
}

func (p *Post) ViewCount(ctx context.Context) (int, error) {
	return p.count(ctx, "views")
}

func (p *Post) RepublishCount(ctx context.Context) (int, error) {
	return p.count(ctx, "republished")
}

func (p *Post) ShareCount(ctx context.Context) (int, error) {
	return p.count(ctx, "shares")
}

// Comments iterates over the post's top-level comments.
func (p *Post) Comments(ctx context.Context) *Iterator[*Comment] {
	return p.client.NewCommentsIterator(ctx, p.ID())
}

// User is an iFunny user profile.
type User struct {
	*Freshable
	client *Client
}

// User returns a handle on the user id.
func (c *Client) User(id string) *User {
	return c.newUser(id, nil)
}

func (c *Client) newUser(id string, seed types.Object) *User {
	return &User{
		Freshable: c.freshable(id, c.apiResource("users/"+pathSegment(id), ""), seed),
		client:    c,
	}
}

func (c *Client) wrapUser(item types.Object) *User {
	return c.newUser(idOf(item, "id"), item)
}

// Fresh returns a handle on the same user whose next read refetches it.
func (u *User) Fresh() *User {
	return &User{Freshable: u.Freshable.Fresh(), client: u.client}
}

func (u *User) Nick(ctx context.Context) (string, error) {
	return Field[string](ctx, u.Freshable, "nick")
}

func (u *User) OriginalNick(ctx context.Context) (string, error) {
	return Field[string](ctx, u.Freshable, "original_nick")
}

func (u *User) About(ctx context.Context) (string, error) {
	return Field[string](ctx, u.Freshable, "about")
}

func (u *User) IsVerified(ctx context.Context) (bool, error) {
	return Field[bool](ctx, u.Freshable, "is_verified")
}

func (u *User) IsPrivate(ctx context.Context) (bool, error) {
	return Field[bool](ctx, u.Freshable, "is_private")
}

func (u *User) count(ctx context.Context, name string) (int, error) {
	return Field[int](ctx, u.Freshable, "num", WithTransform(pluck(name)))
}

func (u *User) SubscriberCount(ctx context.Context) (int, error) {
	return u.count(ctx, "subscribers")
}

func (u *User) SubscriptionCount(ctx context.Context) (int, error) {
	return u.count(ctx, "subscriptions")
}

func (u *User) PostCount(ctx context.Context) (int, error) {
	return u.count(ctx, "total_posts")
}

func (u *User) FeatureCount(ctx context.Context) (int, error) {
	return u.count(ctx, "featured")
}

// Timeline iterates over the user's posts, newest first.
func (u *User) Timeline(ctx context.Context) *Iterator[*Post] {
	return u.client.NewTimelineIterator(ctx, u.ID())
}

// Account is the logged in user's own profile.
type Account struct {
	*Freshable
	client *Client
}

func (c *Client) newAccount(seed types.Object) *Account {
	return &Account{
		Freshable: c.freshable(idOf(seed, "id"), c.apiResource(accountPath, ""), seed),
		client:    c,
	}
}

// Fresh returns a handle on the account whose next read refetches it.
func (a *Account) Fresh() *Account {
	return &Account{Freshable: a.Freshable.Fresh(), client: a.client}
}

func (a *Account) Nick(ctx context.Context) (string, error) {
	return Field[string](ctx, a.Freshable, "nick")
}

func (a *Account) Email(ctx context.Context) (string, error) {
	return Field[string](ctx, a.Freshable, "email")
}

// User returns the public profile of the account.
func (a *Account) User() *User {
	return a.client.newUser(a.ID(), a.Data())
}

// Comment is a comment or reply on a post.
type Comment struct {
	*Freshable
	client *Client
	postID string
}

// Comment returns a handle on comment id of post postID.
func (c *Client) Comment(postID, id string) *Comment {
	return c.newComment(postID, id, nil)
}

func (c *Client) newComment(postID, id string, seed types.Object) *Comment {
	path := "content/" + pathSegment(postID) + "/comments/" + pathSegment(id)
	return &Comment{
		Freshable: c.freshable(id, c.apiResource(path, "comment"), seed),
		client:    c,
		postID:    postID,
	}
}

// Fresh returns a handle on the same comment whose next read refetches it.
func (cm *Comment) Fresh() *Comment {
	return &Comment{Freshable: cm.Freshable.Fresh(), client: cm.client, postID: cm.postID}
}

// PostID is the id of the post the comment belongs to.
func (cm *Comment) PostID() string {
	return cm.postID
}

// Post returns the post the comment belongs to.
func (cm *Comment) Post() *Post {
	return cm.client.Post(cm.postID)
}

func (cm *Comment) Text(ctx context.Context) (string, error) {
	return Field[string](ctx, cm.Freshable, "text")
}

func (cm *Comment) Author(ctx context.Context) (*User, error) {
	v, err := cm.Get(ctx, "user")
	if err != nil {
		return nil, err
	}
	user := objectOf(v)
	if user == nil {
		return nil, nil
	}
	return cm.client.newUser(idOf(user, "id"), user), nil
}

func (cm *Comment) IsReply(ctx context.Context) (bool, error) {
	return Field[bool](ctx, cm.Freshable, "is_reply")
}

func (cm *Comment) CreatedAt(ctx context.Context) (time.Time, error) {
	return unixField(ctx, cm.Freshable, "date", time.Second)
}

func (cm *Comment) SmileCount(ctx context.Context) (int, error) {
	return Field[int](ctx, cm.Freshable, "num", WithTransform(pluck("smiles")))
}

func (cm *Comment) ReplyCount(ctx context.Context) (int, error) {
	return Field[int](ctx, cm.Freshable, "num", WithTransform(pluck("replies")))
}

// Digest is a weekly digest of featured posts.
type Digest struct {
	*Freshable
	client *Client
}

// Digest returns a handle on the digest id.
func (c *Client) Digest(id string) *Digest {
	return c.newDigest(id, nil)
}

func (c *Client) newDigest(id string, seed types.Object) *Digest {
	return &Digest{
		Freshable: c.freshable(id, c.apiResource("digests/"+pathSegment(id), ""), seed),
		client:    c,
	}
}

// Fresh returns a handle on the same digest whose next read refetches it.
func (d *Digest) Fresh() *Digest {
	return &Digest{Freshable: d.Freshable.Fresh(), client: d.client}
}

func (d *Digest) Title(ctx context.Context) (string, error) {
	return Field[string](ctx, d.Freshable, "title")
}

// Index is the digest's sequence number.
func (d *Digest) Index(ctx context.Context) (int, error) {
	return Field[int](ctx, d.Freshable, "count")
}

func (d *Digest) SmileCount(ctx context.Context) (int, error) {
	return Field[int](ctx, d.Freshable, "likes")
}

func (d *Digest) CommentCount(ctx context.Context) (int, error) {
	return Field[int](ctx, d.Freshable, "comments")
}

func (d *Digest) PostCount(ctx context.Context) (int, error) {
	return Field[int](ctx, d.Freshable, "item_count")
}

func (d *Digest) UnreadCount(ctx context.Context) (int, error) {
	return Field[int](ctx, d.Freshable, "unreads")
}

// Posts returns the posts collected in the digest.
func (d *Digest) Posts(ctx context.Context) ([]*Post, error) {
	v, err := d.Get(ctx, "items")
	if err != nil {
		return nil, err
	}
	raw, _ := v.([]any)
	posts := make([]*Post, 0, len(raw))
	for _, item := range raw {
		if obj := objectOf(item); obj != nil {
			posts = append(posts, d.client.newPost(idOf(obj, "id"), obj))
		}
	}
	return posts, nil
}

// Notification is an entry of the logged in user's activity feed.
// Notifications have no canonical path and are never refetched.
type Notification struct {
	*Freshable
	client *Client
}

func (c *Client) wrapNotification(item types.Object) *Notification {
	return &Notification{
		Freshable: c.freshable(idOf(item, "id"), Resource{}, item),
		client:    c,
	}
}

func (n *Notification) Type(ctx context.Context) (string, error) {
	return Field[string](ctx, n.Freshable, "type")
}

func (n *Notification) Title(ctx context.Context) (string, error) {
	return Field[string](ctx, n.Freshable, "title")
}

func (n *Notification) Text(ctx context.Context) (string, error) {
	return Field[string](ctx, n.Freshable, "text")
}

func (n *Notification) CreatedAt(ctx context.Context) (time.Time, error) {
	return unixField(ctx, n.Freshable, "date", time.Second)
}

func (n *Notification) SmileCount(ctx context.Context) (int, error) {
	return Field[int](ctx, n.Freshable, "smiles")
}

// User returns the user who triggered the notification, or nil.
func (n *Notification) User(ctx context.Context) (*User, error) {
	v, err := n.Get(ctx, "user")
	if err != nil {
		return nil, err
	}
	if obj := objectOf(v); obj != nil {
		return n.client.newUser(idOf(obj, "id"), obj), nil
	}
	return nil, nil
}

// Post returns the post the notification refers to, or nil.
func (n *Notification) Post(ctx context.Context) (*Post, error) {
	v, err := n.Get(ctx, "content")
	if err != nil {
		return nil, err
	}
	if obj := objectOf(v); obj != nil {
		return n.client.newPost(idOf(obj, "id"), obj), nil
	}
	return nil, nil
}

// Chat is a group channel on the chat API.
type Chat struct {
	*Freshable
	client *Client
}

// Chat returns a handle on the chat with the given channel URL.
func (c *Client) Chat(channelURL string) *Chat {
	return c.newChat(channelURL, nil)
}

func (c *Client) newChat(channelURL string, seed types.Object) *Chat {
	return &Chat{
		Freshable: c.freshable(channelURL, c.chatResource("group_channels/"+pathSegment(channelURL)), seed),
		client:    c,
	}
}

func (c *Client) wrapChat(item types.Object) *Chat {
	return c.newChat(idOf(item, "channel_url"), item)
}

// Fresh returns a handle on the same chat whose next read refetches it.
func (ch *Chat) Fresh() *Chat {
	return &Chat{Freshable: ch.Freshable.Fresh(), client: ch.client}
}

// ChannelURL is the chat's identifier on the chat API.
func (ch *Chat) ChannelURL() string {
	return ch.ID()
}

func (ch *Chat) Name(ctx context.Context) (string, error) {
	return Field[string](ctx, ch.Freshable, "name")
}

// Type is "opengroup", "group" or "chat".
func (ch *Chat) Type(ctx context.Context) (string, error) {
	return Field[string](ctx, ch.Freshable, "custom_type")
}

func (ch *Chat) IsPublic(ctx context.Context) (bool, error) {
	t, err := ch.Type(ctx)
	return t == "opengroup", err
}

func (ch *Chat) IsDirect(ctx context.Context) (bool, error) {
	t, err := ch.Type(ctx)
	return t == "chat", err
}

// State is the logged in user's membership state, "joined" or "invited".
func (ch *Chat) State(ctx context.Context) (string, error) {
	return Field[string](ctx, ch.Freshable, "member_state")
}

func (ch *Chat) MemberCount(ctx context.Context) (int, error) {
	return Field[int](ctx, ch.Freshable, "member_count")
}

func (ch *Chat) JoinedMemberCount(ctx context.Context) (int, error) {
	return Field[int](ctx, ch.Freshable, "joined_member_count")
}

func (ch *Chat) UnreadCount(ctx context.Context) (int, error) {
	return Field[int](ctx, ch.Freshable, "unread_message_count")
}

func (ch *Chat) IsFrozen(ctx context.Context) (bool, error) {
	return Field[bool](ctx, ch.Freshable, "freeze")
}

func (ch *Chat) CreatedAt(ctx context.Context) (time.Time, error) {
	return unixField(ctx, ch.Freshable, "created_at", time.Second)
}

// Members iterates over the chat's members.
func (ch *Chat) Members(ctx context.Context) *Iterator[*ChatMember] {
	return ch.client.NewChatMembersIterator(ctx, ch.ID())
}

// Messages iterates over the chat's messages, newest first.
func (ch *Chat) Messages(ctx context.Context) *Iterator[*Message] {
	return ch.client.NewChatMessagesIterator(ctx, ch.ID())
}

// ChatMember is a member of a chat as listed by the chat API. Members have
// no canonical path and are never refetched.
type ChatMember struct {
	*Freshable
	client     *Client
	channelURL string
}

func (c *Client) newChatMember(channelURL string, item types.Object) *ChatMember {
	return &ChatMember{
		Freshable:  c.freshable(idOf(item, "user_id"), Resource{}, item),
		client:     c,
		channelURL: channelURL,
	}
}

// Chat returns the chat the member was listed in.
func (m *ChatMember) Chat() *Chat {
	return m.client.Chat(m.channelURL)
}

// User returns the iFunny profile of the member.
func (m *ChatMember) User() *User {
	return m.client.User(m.ID())
}

func (m *ChatMember) Nick(ctx context.Context) (string, error) {
	return Field[string](ctx, m.Freshable, "nickname")
}

func (m *ChatMember) IsOnline(ctx context.Context) (bool, error) {
	return Field[bool](ctx, m.Freshable, "is_online")
}

func (m *ChatMember) State(ctx context.Context) (string, error) {
	return Field[string](ctx, m.Freshable, "state")
}

func (m *ChatMember) LastSeen(ctx context.Context) (time.Time, error) {
	return unixField(ctx, m.Freshable, "last_seen_at", time.Millisecond)
}

// Message is a message sent in a chat.
type Message struct {
	*Freshable
	client     *Client
	channelURL string
}

// Message returns a handle on message id of the chat at channelURL.
func (c *Client) Message(channelURL, id string) *Message {
	return c.newMessage(channelURL, id, nil)
}

func (c *Client) newMessage(channelURL, id string, seed types.Object) *Message {
	path := "group_channels/" + pathSegment(channelURL) + "/messages/" + pathSegment(id)
	return &Message{
		Freshable:  c.freshable(id, c.chatResource(path), seed),
		client:     c,
		channelURL: channelURL,
	}
}

// Fresh returns a handle on the same message whose next read refetches it.
func (m *Message) Fresh() *Message {
	return &Message{Freshable: m.Freshable.Fresh(), client: m.client, channelURL: m.channelURL}
}

// Chat returns the chat the message was sent in.
func (m *Message) Chat() *Chat {
	return m.client.Chat(m.channelURL)
}

func (m *Message) Text(ctx context.Context) (string, error) {
	return Field[string](ctx, m.Freshable, "message")
}

func (m *Message) Type(ctx context.Context) (string, error) {
	return Field[string](ctx, m.Freshable, "type")
}

// Author returns the member who sent the message.
func (m *Message) Author(ctx context.Context) (*ChatMember, error) {
	v, err := m.Get(ctx, "user")
	if err != nil {
		return nil, err
	}
	if obj := objectOf(v); obj != nil {
		return m.client.newChatMember(m.channelURL, obj), nil
	}
	return nil, nil
}

func (m *Message) SentAt(ctx context.Context) (time.Time, error) {
	return unixField(ctx, m.Freshable, "created_at", time.Millisecond)
}

func (m *Message) IsRemoved(ctx context.Context) (bool, error) {
	return Field[bool](ctx, m.Freshable, "is_removed")
}
