package ifunny

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesprial/go-ifunny-api-wrapper/pkg/types"
	"github.com/jamesprial/go-ifunny-api-wrapper/test_helpers"
)

// TestBrowsingWorkflow walks from the featured feed to a post's comments and
// on to its author's timeline, the way a reader browses the app
func TestBrowsingWorkflow(t *testing.T) {
	client, server := newTestClient(t)
	ctx := context.Background()

	server.SetupPages("feeds/featured", "content", [][]map[string]any{{
		{
			"id":      "p1",
			"title":   "cat",
			"num":     map[string]any{"smiles": 12, "comments": 3},
			"creator": map[string]any{"id": "u1", "nick": "kermit"},
		},
		{"id": "p2", "title": "dog"},
	}})
	server.SetupPages("content/p1/comments", "comments", [][]map[string]any{
		{
			{"id": "c1", "text": "first", "user": map[string]any{"id": "u2", "nick": "piggy"}},
			{"id": "c2", "text": "second", "user": map[string]any{"id": "u1", "nick": "kermit"}},
		},
		{
			{"id": "c3", "text": "third", "is_reply": true},
		},
	})
	server.SetupPages("timelines/users/u1", "content", test_helpers.Split(test_helpers.Items("id", 0, 5), 2))

	page, err := client.FeaturedFeed(ctx, types.PageParams{Limit: 10})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Empty(t, page.Next)

	post := page.Items[0]
	smiles, err := post.SmileCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 12, smiles)

	comments, err := post.Comments(ctx).Collect(0)
	require.NoError(t, err)
	require.Len(t, comments, 3)

	var texts []string
	authors := map[string]int{}
	for _, comment := range comments {
		text, err := comment.Text(ctx)
		require.NoError(t, err)
		texts = append(texts, text)

		author, err := comment.Author(ctx)
		require.NoError(t, err)
		if author != nil {
			nick, err := author.Nick(ctx)
			require.NoError(t, err)
			authors[nick]++
		}
	}
	assert.Equal(t, []string{"first", "second", "third"}, texts)
	assert.Equal(t, map[string]int{"piggy": 1, "kermit": 1}, authors)

	author, err := post.Author(ctx)
	require.NoError(t, err)
	require.NotNil(t, author)
	assert.Equal(t, "u1", author.ID())

	timeline, err := author.Timeline(ctx).Collect(0)
	require.NoError(t, err)
	assert.Len(t, timeline, 5)

	// Everything above was served from page items.
	assert.Equal(t, 0, server.GetCallCount(test_helpers.APIPrefix+"content/p1"))
	assert.Equal(t, 0, server.GetCallCount(test_helpers.APIPrefix+"users/u1"))
	assert.Equal(t, 2, server.GetCallCount(test_helpers.APIPrefix+"content/p1/comments"))
	assert.Equal(t, 3, server.GetCallCount(test_helpers.APIPrefix+"timelines/users/u1"))
}

// TestResumeWorkflow stops an iteration part way and resumes it later from
// the saved cursor
func TestResumeWorkflow(t *testing.T) {
	client, server := newTestClient(t)
	ctx := context.Background()
	items := test_helpers.Items("id", 0, 10)
	server.SetupPages("feeds/featured", "content", test_helpers.Split(items, 4))

	it := client.NewFeaturedIterator(ctx).WithLimit(4)
	first, err := it.Collect(4)
	require.NoError(t, err)
	require.Len(t, first, 4)

	saved := it.Cursor()
	require.NotEmpty(t, saved)

	var resumed []*Post
	next := saved
	for next != "" {
		page, err := client.FeaturedFeed(ctx, types.PageParams{Limit: 4, Next: next})
		require.NoError(t, err)
		resumed = append(resumed, page.Items...)
		next = page.Next
	}
	require.Len(t, resumed, 6)
	for i, post := range resumed {
		assert.Equal(t, items[4+i]["id"], post.ID())
	}
}

// TestChatWorkflow logs in, lists chats, then reads a chat's members and
// its whole message history
func TestChatWorkflow(t *testing.T) {
	client, server := newTestClient(t)
	ctx := context.Background()

	server.SetupAccount("acc-1", "tester", "messenger-token")
	server.SetupChatPages("users/acc-1/my_group_channels", "channels", "token", [][]map[string]any{
		{{"channel_url": "room", "name": "The Room", "unread_message_count": 2, "member_count": 3}},
	})
	server.SetupChatPages("group_channels/room/members", "members", "next", [][]map[string]any{
		{{"user_id": "acc-1", "nickname": "tester", "is_online": true}, {"user_id": "u2", "nickname": "piggy"}},
		{{"user_id": "u3", "nickname": "gonzo"}},
	})
	server.SetResponse(test_helpers.ChatPrefix+"group_channels/room/messages", &test_helpers.MockResponse{
		Handler: func(r *http.Request) (int, string) {
			switch r.URL.Query().Get("message_id") {
			case "":
				return http.StatusOK, `{"messages":[{"message_id":300,"message":"hi all"},{"message_id":200,"message":"welcome"}]}`
			case "200":
				return http.StatusOK, `{"messages":[{"message_id":100,"message":"room created"}]}`
			default:
				return http.StatusOK, `{"messages":[]}`
			}
		},
	})

	_, err := client.Login(ctx, randomEmail(), "pw", true)
	require.NoError(t, err)
	require.True(t, client.IsAuthenticated())

	chats, err := client.Chats(ctx, types.PageParams{})
	require.NoError(t, err)
	require.Len(t, chats.Items, 1)

	chat := chats.Items[0]
	assert.Equal(t, "room", chat.ChannelURL())
	name, err := chat.Name(ctx)
	require.NoError(t, err)
	assert.Equal(t, "The Room", name)
	unread, err := chat.UnreadCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, unread)

	members, err := chat.Members(ctx).Collect(0)
	require.NoError(t, err)
	assert.Len(t, members, 3)

	messages, err := chat.Messages(ctx).Collect(0)
	require.NoError(t, err)
	var texts []string
	for _, msg := range messages {
		text, err := msg.Text(ctx)
		require.NoError(t, err)
		texts = append(texts, text)
	}
	assert.Equal(t, []string{"hi all", "welcome", "room created"}, texts)

	for _, req := range server.GetRequestLog() {
		if req.Path == test_helpers.ChatPrefix+"group_channels/room/messages" {
			assert.Equal(t, "messenger-token", req.Headers.Get("Session-Key"))
		}
	}
	assert.Equal(t, 1, server.GetCallCount(test_helpers.APIPrefix+"account"))
}

// TestGuestToAccountWorkflow tests that reads made as a guest keep working
// after logging in and that the account switches credentials
func TestGuestToAccountWorkflow(t *testing.T) {
	client, server := newTestClient(t)
	ctx := context.Background()
	server.SetupPages("feeds/featured", "content", [][]map[string]any{test_helpers.Items("id", 0, 3)})

	guest, err := client.Credential(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.SchemeBasic, guest.Scheme)

	_, err = client.FeaturedFeed(ctx, types.PageParams{})
	require.NoError(t, err)

	_, err = client.Login(ctx, randomEmail(), "pw", true)
	require.NoError(t, err)

	_, err = client.FeaturedFeed(ctx, types.PageParams{})
	require.NoError(t, err)

	var schemes []string
	for _, req := range server.GetRequestLog() {
		if req.Path == test_helpers.APIPrefix+"feeds/featured" {
			schemes = append(schemes, req.Headers.Get("Authorization"))
		}
	}
	require.Len(t, schemes, 2)
	assert.Contains(t, schemes[0], "Basic ")
	assert.Equal(t, "Bearer mock_bearer", schemes[1])
}
