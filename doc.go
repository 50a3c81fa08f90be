// Package ifunny provides a Go client for the iFunny API and its companion chat API.
//
// # Overview
//
// The client hides the two authentication modes of the platform. Anonymous
// clients use a derived guest ("basic") token; after Login every request
// carries the account's bearer token instead. Both kinds of token are kept in
// a small credential document under a configuration root so later runs reuse
// them.
//
// # Features
//
//   - Guest token derivation, persistence and reuse
//   - Password login with stored bearer token reuse
//   - Lazy iteration over every paginated collection
//   - Entities that refetch themselves when a field is missing or stale
//   - Chat API access with the account's messenger token
//   - Content upload with optional wait for processing
//   - Built-in rate limiting and structured logging via Go's slog package
//
// # Quick Start
//
//	client, err := ifunny.NewClient(&ifunny.Config{})
//	if err != nil {
//		log.Fatal(err)
//	}
//
// NewClient makes no network call. The first request loads the stored guest
// token, or derives a new one. Deriving a token announces it to the server and
// then waits Config.GuestSettleDelay (10 seconds by default) for it to become
// usable; the wait ignores context cancellation.
//
// # Authentication
//
// Log in with an account email and password:
//
//	session, err := client.Login(ctx, "me@example.com", password, false)
//	if err != nil {
//		var authErr *errors.AuthError
//		if errors.As(err, &authErr) {
//			// rejected credentials; the wrapped *errors.APIError carries
//			// the platform code, e.g. "invalid_grant"
//		}
//		log.Fatal(err)
//	}
//
// When fresh is false a bearer token stored by an earlier login for the same
// email is adopted without contacting the server. Stored tokens are trusted;
// a revoked token surfaces as an *errors.APIError on the next request, after
// which Login with fresh set obtains a new one.
//
// ForceRefresh drops the guest token and the in-memory bearer token.
//
// # Pagination
//
// Every collection has a page method and an iterator constructor:
//
//	page, err := client.FeaturedFeed(ctx, types.PageParams{Limit: 10})
//	if err != nil {
//		log.Fatal(err)
//	}
//	next := page.Next // empty on the last page
//
//	it := client.NewFeaturedIterator(ctx).WithLimit(50)
//	for post, err := range it.All() {
//		if err != nil {
//			log.Fatal(err)
//		}
//		fmt.Println(post.ID())
//	}
//
// Iterators fetch one page at a time, only when the buffered items run out,
// and stop at the first page without a next cursor. Iterator.Cursor returns
// the cursor of the page after the buffered items; passing it as
// PageParams.Next resumes the collection there.
//
// Any paging function can be turned into an iterator with Produce.
//
// # Entities
//
// Posts, users, comments, digests, chats and messages wrap a Freshable
// payload. Getters read the cached payload and refetch the entity, at most
// once per read, when the field is missing:
//
//	post := client.Post("abc123")
//	smiles, err := post.SmileCount(ctx) // fetches content/abc123
//	title, err := post.Title(ctx)       // served from the cached payload
//
// MarkStale forces the next read to refetch. Fresh returns an independent
// handle whose first read refetches.
//
// # Chat
//
// Chat collections require Login. The account's messenger token and id are
// fetched from the account endpoint on first use and sent in the Session-Key
// header. An anonymous client gets an *errors.StateError.
//
//	for chat, err := range client.NewChatsIterator(ctx).All() {
//		...
//	}
//
// # Error Handling
//
// The library uses specific error types for different failure scenarios:
//
//	_, err := client.FeaturedFeed(ctx, types.PageParams{})
//	if err != nil {
//		switch e := err.(type) {
//		case *errors.ConfigError:
//			// Configuration error
//		case *errors.ValidationError:
//			// Invalid paging parameters or credential document
//		case *errors.AuthError:
//			// Login rejected
//		case *errors.RequestError:
//			// HTTP request failed
//		case *errors.ParseError:
//			// Response parsing failed
//		case *errors.APIError:
//			// The platform returned an error, e.g. e.Code == "invalid_grant"
//		case *errors.StateError:
//			// Chat use before Login
//		case *errors.TimeoutError:
//			// An awaited upload never finished
//		}
//	}
//
// Nothing in the client retries on its own.
//
// # Logging
//
// Enable debug logging by providing a logger in the config:
//
//	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//		Level: slog.LevelDebug,
//	}))
//
//	config := &ifunny.Config{
//		Logger: logger,
//	}
//
// Tokens are never logged.
//
// # Credential Storage
//
// The credential document is a flat JSON object stored at
// ConfigRoot/ConfigFile (by default $HOME/.config/ifunny/config.json) with
// owner-only permissions. Writes take an advisory file lock so processes
// sharing the document do not lose each other's updates. Set
// Config.UseKeyring to keep the document in the OS keyring instead.
package ifunny
