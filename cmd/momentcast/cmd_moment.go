package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/user/momentcast/internal/delivery"
	"github.com/user/momentcast/internal/state"
	"github.com/user/momentcast/internal/types"
)

var (
	momentSession string
	momentLimit   int
	momentRaw     bool

	postsTwitter     []string
	postsFacebook    string
	postsLinkedIn    string
	postsArticleFile string

	publishRemoteID string
)

func init() {
	rootCmd.AddCommand(momentCmd)
	momentCmd.AddCommand(momentListCmd, momentShowCmd, momentPostsCmd, momentPublishCmd, momentUnpublishCmd)

	momentListCmd.Flags().StringVarP(&momentSession, "session", "s", "", "only moments of this session")
	momentListCmd.Flags().IntVarP(&momentLimit, "limit", "n", 20, "number of moments (0 for all)")

	momentShowCmd.Flags().BoolVar(&momentRaw, "raw", false, "print the article as stored HTML")

	momentPostsCmd.Flags().StringArrayVar(&postsTwitter, "twitter", nil, "tweet of the thread (repeat for each tweet)")
	momentPostsCmd.Flags().StringVar(&postsFacebook, "facebook", "", "Facebook post")
	momentPostsCmd.Flags().StringVar(&postsLinkedIn, "linkedin", "", "LinkedIn post")
	momentPostsCmd.Flags().StringVar(&postsArticleFile, "article-file", "", "file with the article HTML")

	momentPublishCmd.Flags().StringVar(&publishRemoteID, "remote-id", "", "identifier of the published post")
}

var momentCmd = &cobra.Command{
	Use:   "moment",
	Short: "Inspect and edit finalized moments",
}

// withStore opens the moment database for one command.
func withStore(fn func(ctx context.Context, store *state.MomentStore) error) error {
	cfg := loadConfig()
	store, err := state.OpenMomentStore(momentDBPath(cfg))
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(context.Background(), store)
}

func oneLine(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) > n {
		return string(r[:n-1]) + "…"
	}
	return s
}

func printMoments(list []*types.Moment) error {
	if len(list) == 0 {
		fmt.Println("No moments found.")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSESSION\tCREATED\tMEDIA\tPUBLISHED\tTITLE")
	for _, m := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			m.ID,
			m.SessionID,
			stamp(&m.CreatedAt),
			len(m.Captures),
			publishedList(m),
			oneLine(m.Title, 50),
		)
	}
	return w.Flush()
}

func publishedList(m *types.Moment) string {
	var out []string
	for platform, st := range m.PublishedTo {
		if st.Published {
			out = append(out, platform)
		}
	}
	if len(out) == 0 {
		return "-"
	}
	sort.Strings(out)
	return strings.Join(out, ",")
}

var momentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent moments",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, store *state.MomentStore) error {
			var list []*types.Moment
			var err error
			if momentSession != "" {
				list, err = store.ListBySession(ctx, types.SessionID(momentSession), momentLimit)
			} else {
				list, err = store.ListRecent(ctx, momentLimit)
			}
			if err != nil {
				return err
			}
			return printMoments(list)
		})
	},
}

func getMoment(ctx context.Context, store *state.MomentStore, id string) (*types.Moment, error) {
	m, err := store.Get(ctx, types.MomentID(id))
	if errors.Is(err, state.ErrMomentNotFound) {
		return nil, fmt.Errorf("moment not found: %s", id)
	}
	return m, err
}

var momentShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a moment with its drafts and captures",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, store *state.MomentStore) error {
			m, err := getMoment(ctx, store, args[0])
			if err != nil {
				return err
			}

			fmt.Printf("# %s\n\n", m.Title)
			fmt.Printf("id: %s  session: %s  created: %s\n\n", m.ID, m.SessionID, stamp(&m.CreatedAt))
			fmt.Println(m.Text)

			if len(m.Posts.Twitter) > 0 {
				fmt.Println("\n## Twitter")
				for i, tw := range m.Posts.Twitter {
					fmt.Printf("%d/%d %s\n", i+1, len(m.Posts.Twitter), tw)
				}
			}
			if m.Posts.Facebook != "" {
				fmt.Printf("\n## Facebook\n%s\n", m.Posts.Facebook)
			}
			if m.Posts.LinkedIn != "" {
				fmt.Printf("\n## LinkedIn\n%s\n", m.Posts.LinkedIn)
			}
			if m.Posts.Article != "" {
				article := m.Posts.Article
				if !momentRaw {
					article = delivery.ArticleMarkdown(article)
				}
				fmt.Printf("\n## Article\n%s\n", article)
			}
			if len(m.Captures) > 0 {
				fmt.Println("\n## Captures")
				for _, c := range m.Captures {
					fmt.Printf("-%ds  still %s\n      clip  %s\n", c.OffsetSeconds, c.StillURL, c.ClipURL)
				}
			}
			if len(m.PublishedTo) > 0 {
				fmt.Println("\n## Published")
				for platform, st := range m.PublishedTo {
					if !st.Published {
						continue
					}
					line := platform
					if st.PublishedAt != nil {
						line += " at " + stamp(st.PublishedAt)
					}
					if st.RemoteID != "" {
						line += " (" + st.RemoteID + ")"
					}
					fmt.Println(line)
				}
			}
			return nil
		})
	},
}

var momentPostsCmd = &cobra.Command{
	Use:   "posts <id>",
	Short: "Replace social drafts of a moment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, store *state.MomentStore) error {
			m, err := getMoment(ctx, store, args[0])
			if err != nil {
				return err
			}
			posts := m.Posts
			flags := cmd.Flags()
			if flags.Changed("twitter") {
				posts.Twitter = postsTwitter
			}
			if flags.Changed("facebook") {
				posts.Facebook = postsFacebook
			}
			if flags.Changed("linkedin") {
				posts.LinkedIn = postsLinkedIn
			}
			if postsArticleFile != "" {
				data, err := os.ReadFile(postsArticleFile)
				if err != nil {
					return fmt.Errorf("read article: %w", err)
				}
				posts.Article = string(data)
			}
			if _, err := store.UpdatePosts(ctx, m.ID, posts); err != nil {
				return err
			}
			fmt.Printf("Updated posts of %s.\n", m.ID)
			return nil
		})
	},
}

var momentPublishCmd = &cobra.Command{
	Use:   "publish <id> <platform>",
	Short: "Mark a moment as published to a platform",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, store *state.MomentStore) error {
			m, err := store.MarkPublished(ctx, types.MomentID(args[0]), strings.ToLower(args[1]), publishRemoteID)
			if errors.Is(err, state.ErrAlreadyPublished) {
				return fmt.Errorf("%s is already published to %s", args[0], args[1])
			}
			if err != nil {
				return err
			}
			fmt.Printf("Marked %s published to %s.\n", m.ID, strings.ToLower(args[1]))
			return nil
		})
	},
}

var momentUnpublishCmd = &cobra.Command{
	Use:   "unpublish <id> <platform>",
	Short: "Clear the published mark of a platform",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, store *state.MomentStore) error {
			m, err := store.ClearPublished(ctx, types.MomentID(args[0]), strings.ToLower(args[1]))
			if err != nil {
				return err
			}
			fmt.Printf("Cleared %s on %s.\n", strings.ToLower(args[1]), m.ID)
			return nil
		})
	},
}
