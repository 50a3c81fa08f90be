package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"

	ifunny "github.com/jamesprial/go-ifunny-api-wrapper"
	"github.com/jamesprial/go-ifunny-api-wrapper/pkg/types"
)

func main() {
	// Get credentials from environment variables
	email := os.Getenv("IFUNNY_EMAIL")
	password := os.Getenv("IFUNNY_PASSWORD")

	// Route structured logs to stdout; adjust the level as needed.
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	// Create the client. Credentials are kept under $HOME/.config/ifunny.
	client, err := ifunny.NewClient(&ifunny.Config{Logger: logger})
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}

	ctx := context.Background()

	// The first request derives a guest token, which takes a few seconds.
	cred, err := client.Credential(ctx)
	if err != nil {
		log.Fatalf("Failed to obtain a guest token: %v", err)
	}
	fmt.Printf("Using a %s token\n", cred.Scheme)

	// If we have account credentials, log in and show the account
	if email != "" {
		if _, err := client.Login(ctx, email, password, false); err != nil {
			log.Fatalf("Failed to log in: %v", err)
		}
		account, err := client.Account(ctx)
		if err != nil {
			log.Printf("Failed to get account: %v", err)
		} else {
			nick, _ := account.Nick(ctx)
			fmt.Printf("Logged in as: %s\n", nick)
		}
	}

	// Get one page of the featured feed
	page, err := client.FeaturedFeed(ctx, types.PageParams{Limit: 5})
	if err != nil {
		log.Printf("Failed to get featured posts: %v", err)
	} else {
		fmt.Println("\nFeatured posts:")
		for i, post := range page.Items {
			title, _ := post.Title(ctx)
			smiles, _ := post.SmileCount(ctx)
			comments, _ := post.CommentCount(ctx)
			fmt.Printf("%d. %s (smiles: %d, comments: %d)\n", i+1, title, smiles, comments)
		}
		if page.Next != "" {
			fmt.Printf("Next page: %s\n", page.Next)
		}
	}

	// Iterate over search results across pages
	fmt.Println("\nUsers matching \"meme\":")
	it := client.NewSearchUsersIterator(ctx, "meme").WithLimit(10)
	users, err := it.Collect(10)
	if err != nil {
		log.Printf("Search failed: %v", err)
	}
	for _, user := range users {
		nick, _ := user.Nick(ctx)
		subscribers, _ := user.SubscriberCount(ctx)
		fmt.Printf("  %s (%d subscribers)\n", nick, subscribers)
	}

	// Show the first comments of the first featured post
	if page != nil && len(page.Items) > 0 {
		post := page.Items[0]
		fmt.Printf("\nComments on %s:\n", post.ID())
		comments, err := post.Comments(ctx).Collect(5)
		if err != nil {
			log.Printf("Failed to get comments: %v", err)
		}
		for _, comment := range comments {
			text, _ := comment.Text(ctx)
			fmt.Printf("  - %s\n", text)
		}
	}

	// Chats need a logged in account
	if client.IsAuthenticated() {
		chats, err := client.Chats(ctx, types.PageParams{Limit: 5})
		if err != nil {
			log.Printf("Failed to list chats: %v", err)
		} else {
			fmt.Println("\nChats:")
			for _, chat := range chats.Items {
				name, _ := chat.Name(ctx)
				unread, _ := chat.UnreadCount(ctx)
				fmt.Printf("  %s (%d unread)\n", name, unread)
			}
		}
	}
}
