// Package cli implements the ifunny command-line tool.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	ifunny "github.com/jamesprial/go-ifunny-api-wrapper"
	"github.com/jamesprial/go-ifunny-api-wrapper/pkg/types"
)

// lastLoginKey records in the credential store the email of the last login,
// so later invocations can reuse its bearer token.
const lastLoginKey = "cli_last_login"

// GlobalFlags are the flags shared by every command.
type GlobalFlags struct {
	Config  string
	Root    string
	Email   string
	Limit   int
	Max     int
	JQ      string
	Verbose int
}

// app carries what commands need once the persistent flags are parsed.
type app struct {
	flags  GlobalFlags
	file   *FileConfig
	logger *slog.Logger
	client *ifunny.Client
	out    *printer
}

// NewRootCmd builds the ifunny command tree.
func NewRootCmd(version string) *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:           "ifunny",
		Short:         "Command-line client for iFunny",
		Long:          "ifunny browses feeds, comments and chats of iFunny and uploads content.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" || cmd.Name() == "version" {
				return nil
			}
			return a.setup(cmd)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&a.flags.Config, "config", "", "YAML settings file (default <root>/cli.yaml)")
	pf.StringVar(&a.flags.Root, "root", "", "Configuration root holding credentials (default $HOME/.config/ifunny)")
	pf.StringVar(&a.flags.Email, "email", "", "Account email (default $IFUNNY_EMAIL or the last login)")
	pf.IntVar(&a.flags.Limit, "limit", 0, "Items per page request (1-100)")
	pf.IntVar(&a.flags.Max, "max", 0, "Stop after this many items (0 for all)")
	pf.StringVar(&a.flags.JQ, "jq", "", "jq filter applied to every item")
	pf.CountVarP(&a.flags.Verbose, "verbose", "v", "Log to stderr (-v for info, -vv for requests)")

	cmd.AddCommand(
		newTokenCmd(a),
		newLoginCmd(a),
		newWhoamiCmd(a),
		newNotificationsCmd(a),
		newFeedCmd(a),
		newTimelineCmd(a),
		newCommentsCmd(a),
		newSearchCmd(a),
		newChatsCmd(a),
		newMembersCmd(a),
		newMessagesCmd(a),
		newUploadCmd(a),
	)
	return cmd
}

// Execute runs the command tree and returns the process exit code.
func Execute(version string) int {
	if err := loadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, "ifunny: load .env:", err)
		return 1
	}

	if err := NewRootCmd(version).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ifunny:", err)
		return 1
	}
	return 0
}

func (a *app) setup(cmd *cobra.Command) error {
	root := firstNonEmpty(a.flags.Root, os.Getenv(EnvConfigRoot))
	if root == "" {
		var err error
		if root, err = ifunny.DefaultConfigRoot(); err != nil {
			return err
		}
	}

	configPath, explicit := a.flags.Config, a.flags.Config != ""
	if !explicit {
		configPath = defaultConfigPath(root)
	}
	file, err := LoadFileConfig(configPath, explicit)
	if err != nil {
		return err
	}
	a.file = file
	if a.flags.Root == "" && os.Getenv(EnvConfigRoot) == "" && file.Root != "" {
		root = file.Root
	}

	a.logger = newLogger(cmd.ErrOrStderr(), a.flags.Verbose)

	config := &ifunny.Config{
		ClientID:         file.ClientID,
		ClientSecret:     file.ClientSecret,
		UserAgent:        file.UserAgent,
		ProjectID:        file.ProjectID,
		BaseURL:          file.BaseURL,
		ChatURL:          file.ChatURL,
		ConfigRoot:       root,
		UseKeyring:       file.Keyring,
		PageSize:         file.PageSize,
		GuestSettleDelay: file.GuestSettleDelay,
		Logger:           a.logger,
	}
	if file.RequestsPerMinute > 0 || file.Burst > 0 {
		config.RateLimit = &ifunny.RateLimitConfig{RequestsPerMinute: file.RequestsPerMinute, Burst: file.Burst}
	}

	if a.client, err = ifunny.NewClient(config); err != nil {
		return err
	}
	if a.out, err = newPrinter(cmd.OutOrStdout(), a.flags.JQ); err != nil {
		return err
	}
	return nil
}

func newLogger(w io.Writer, verbose int) *slog.Logger {
	if verbose == 0 {
		return nil
	}
	level := slog.LevelInfo
	if verbose > 1 {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// email resolves the account the command acts for.
func (a *app) email() (string, error) {
	if e := firstNonEmpty(a.flags.Email, os.Getenv(EnvEmail), a.file.Email); e != "" {
		return e, nil
	}
	last, _, err := a.client.Store().Get(lastLoginKey)
	return last, err
}

// authenticate logs in with the stored bearer token of the resolved account.
// The password is only needed when no token was stored.
func (a *app) authenticate(ctx context.Context) error {
	email, err := a.email()
	if err != nil {
		return err
	}
	if email == "" {
		return errors.New("no account: run 'ifunny login EMAIL' or set " + EnvEmail)
	}
	_, err = a.client.Login(ctx, email, os.Getenv(EnvPassword), false)
	return err
}

// dataer is implemented by every entity.
type dataer interface {
	Data() types.Object
}

// emit prints the items of it, honoring --limit and --max.
func emit[T dataer](ctx context.Context, a *app, it *ifunny.Iterator[T]) error {
	if a.flags.Limit > 0 {
		it = it.WithLimit(a.flags.Limit)
	}

	count := 0
	for item, err := range it.All() {
		if err != nil {
			return err
		}
		if err := a.out.Print(ctx, item.Data()); err != nil {
			return err
		}
		count++
		if a.flags.Max > 0 && count >= a.flags.Max {
			break
		}
	}

	if a.logger != nil {
		a.logger.Info("listing done", "items", count, "cursor", it.Cursor())
	}
	return nil
}
