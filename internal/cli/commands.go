package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	ifunny "github.com/jamesprial/go-ifunny-api-wrapper"
	"github.com/jamesprial/go-ifunny-api-wrapper/internal"
)

func newTokenCmd(a *app) *cobra.Command {
	var fresh bool
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print the guest token, deriving one if none is stored",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			get := a.client.Credential
			if fresh {
				get = a.client.RefreshGuestToken
			}
			cred, err := get(ctx)
			if err != nil {
				return err
			}
			return a.out.Print(ctx, map[string]string{"scheme": string(cred.Scheme), "token": cred.Token})
		},
	}
	cmd.Flags().BoolVar(&fresh, "fresh", false, "Derive a new guest token even if one is stored")
	return cmd
}

func newLoginCmd(a *app) *cobra.Command {
	var fresh bool
	cmd := &cobra.Command{
		Use:   "login EMAIL",
		Short: "Log in and store the bearer token",
		Long: "Log in as EMAIL. The password is read from " + EnvPassword +
			" or prompted for. Without --fresh a stored token for EMAIL is reused.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			email := args[0]

			password := os.Getenv(EnvPassword)
			if password == "" {
				stored, err := hasStoredBearer(a, email)
				if err != nil {
					return err
				}
				if fresh || !stored {
					if password, err = readPassword(cmd); err != nil {
						return err
					}
				}
			}

			session, err := a.client.Login(ctx, email, password, fresh)
			if err != nil {
				return err
			}
			if err := a.client.Store().Set(lastLoginKey, email); err != nil {
				return err
			}
			return a.out.Print(ctx, map[string]any{
				"email":      session.AccountKey,
				"expires_in": session.ExpiresIn,
			})
		},
	}
	cmd.Flags().BoolVar(&fresh, "fresh", false, "Request a new token even if one is stored")
	return cmd
}

func hasStoredBearer(a *app, email string) (bool, error) {
	_, found, err := a.client.Store().Get(internal.BearerKey(email))
	return found, err
}

// readPassword prompts on a terminal and otherwise reads one line of stdin.
func readPassword(cmd *cobra.Command) (string, error) {
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
		pass, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		return string(pass), err
	}

	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Print the logged in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.authenticate(ctx); err != nil {
				return err
			}
			account, err := a.client.Account(ctx)
			if err != nil {
				return err
			}
			return a.out.Print(ctx, account.Data())
		},
	}
}

func newNotificationsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "notifications",
		Short: "List the account's notifications",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.authenticate(ctx); err != nil {
				return err
			}
			return emit(ctx, a, a.client.NewNotificationsIterator(ctx))
		},
	}
}

func newFeedCmd(a *app) *cobra.Command {
	feeds := map[string]func(context.Context) *ifunny.Iterator[*ifunny.Post]{
		"featured":   a.featured,
		"collective": a.collective,
		"reads":      a.reads,
	}
	return &cobra.Command{
		Use:       "feed featured|collective|reads",
		Short:     "List a content feed",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"featured", "collective", "reads"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if args[0] == "reads" {
				if err := a.authenticate(ctx); err != nil {
					return err
				}
			}
			return emit(ctx, a, feeds[args[0]](ctx))
		},
	}
}

func (a *app) featured(ctx context.Context) *ifunny.Iterator[*ifunny.Post] {
	return a.client.NewFeaturedIterator(ctx)
}

func (a *app) collective(ctx context.Context) *ifunny.Iterator[*ifunny.Post] {
	return a.client.NewCollectiveIterator(ctx)
}

func (a *app) reads(ctx context.Context) *ifunny.Iterator[*ifunny.Post] {
	return a.client.NewReadsIterator(ctx)
}

func newTimelineCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "timeline USER_ID",
		Short: "List a user's posts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return emit(ctx, a, a.client.NewTimelineIterator(ctx, args[0]))
		},
	}
}

func newCommentsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "comments POST_ID",
		Short: "List a post's comments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return emit(ctx, a, a.client.NewCommentsIterator(ctx, args[0]))
		},
	}
}

func newSearchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search content, users or chats",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "content QUERY",
			Short: "Search posts by tag",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx := cmd.Context()
				return emit(ctx, a, a.client.NewSearchContentIterator(ctx, args[0]))
			},
		},
		&cobra.Command{
			Use:   "users QUERY",
			Short: "Search users by nick",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx := cmd.Context()
				return emit(ctx, a, a.client.NewSearchUsersIterator(ctx, args[0]))
			},
		},
		&cobra.Command{
			Use:   "chats QUERY",
			Short: "Search public chats",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx := cmd.Context()
				return emit(ctx, a, a.client.NewSearchChatsIterator(ctx, args[0]))
			},
		},
	)
	return cmd
}

func newChatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "chats",
		Short: "List the account's chats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.authenticate(ctx); err != nil {
				return err
			}
			return emit(ctx, a, a.client.NewChatsIterator(ctx))
		},
	}
}

func newMembersCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "members CHANNEL",
		Short: "List the members of a chat",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.authenticate(ctx); err != nil {
				return err
			}
			return emit(ctx, a, a.client.NewChatMembersIterator(ctx, args[0]))
		},
	}
}

func newMessagesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "messages CHANNEL",
		Short: "List the messages of a chat, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.authenticate(ctx); err != nil {
				return err
			}
			return emit(ctx, a, a.client.NewChatMessagesIterator(ctx, args[0]))
		},
	}
}

func newUploadCmd(a *app) *cobra.Command {
	var opts ifunny.UploadOptions
	cmd := &cobra.Command{
		Use:   "upload FILE",
		Short: "Publish a picture or video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.authenticate(ctx); err != nil {
				return err
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			result, err := a.client.UploadContent(ctx, f, opts)
			if err != nil {
				return err
			}
			out := map[string]any{"task_id": result.TaskID}
			if result.Post != nil {
				out["post_id"] = result.Post.ID()
			}
			return a.out.Print(ctx, out)
		},
	}
	cmd.Flags().StringSliceVar(&opts.Tags, "tag", nil, "Tag to attach (repeatable)")
	cmd.Flags().StringVar(&opts.Type, "type", "", "Media type (default pic)")
	cmd.Flags().StringVar(&opts.Visibility, "visibility", "", "public or subscribers (default public)")
	cmd.Flags().BoolVar(&opts.Wait, "wait", false, "Wait until the post is published")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", ifunny.DefaultUploadTimeout, "How long --wait polls")
	return cmd
}
