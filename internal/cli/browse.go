package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/apresai/symposium/internal/discussion"
	"github.com/apresai/symposium/internal/realtime"
	"github.com/apresai/symposium/internal/storage"
)

var philosophersCmd = &cobra.Command{
	Use:     "philosophers",
	Aliases: []string{"list-philosophers"},
	Short:   "List the philosophers available for discussions",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := current.catalog
		ps := c.All()
		switch {
		case flagEra != "":
			ps = c.ByEra(flagEra)
		case flagSearch != "":
			ps = c.Search(flagSearch)
		}
		printPhilosophers(cmd.OutOrStdout(), ps)
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List stored conversations, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := storage.ParseStatus(flagStatus)
		if err != nil {
			return err
		}
		store, err := current.openStore(cmd.Context())
		if err != nil {
			return err
		}
		cs, err := store.ListConversations(cmd.Context(), storage.ListOptions{Status: status, Limit: flagLimit})
		if err != nil {
			return err
		}
		printHistory(cmd.OutOrStdout(), cs)
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a stored conversation, summary or video script",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := current.openStore(cmd.Context())
		if err != nil {
			return err
		}
		return show(cmd, store, args[0])
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <conversation-id>",
	Short: "Delete a stored conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := current.openStore(cmd.Context())
		if err != nil {
			return err
		}
		if err := store.DeleteConversation(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
		return nil
	},
}

var followCmd = &cobra.Command{
	Use:   "follow [conversation-id]",
	Short: "Print live state events published to Redis (all conversations when no id is given)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if current.cfg.RedisAddr == "" {
			return fmt.Errorf("follow requires REDIS_ADDR")
		}
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		pub, err := realtime.NewRedisPublisher(ctx, current.cfg.RedisAddr, current.log)
		if err != nil {
			return err
		}
		current.publisher = pub

		var id string
		if len(args) == 1 {
			id = args[0]
		}
		w := cmd.OutOrStdout()
		err = pub.Follow(ctx, id, func(ev realtime.StateEvent) bool {
			printEvent(w, ev)
			return id == "" || !terminalKind(ev.Kind)
		})
		if ctx.Err() != nil {
			return nil
		}
		return err
	},
}

var (
	flagEra    string
	flagSearch string
	flagStatus string
	flagLimit  int
	flagJSON   bool
)

func init() {
	rootCmd.AddCommand(philosophersCmd, historyCmd, showCmd, deleteCmd, followCmd)
	philosophersCmd.Flags().StringVar(&flagEra, "era", "", "Only philosophers from this era")
	philosophersCmd.Flags().StringVarP(&flagSearch, "search", "q", "", "Search names, descriptions, eras and nationalities")
	historyCmd.Flags().StringVar(&flagStatus, "status", "", "Filter by status: in_progress, completed or error")
	historyCmd.Flags().IntVarP(&flagLimit, "limit", "n", 20, "Maximum conversations to list (0 for all)")
	showCmd.Flags().BoolVar(&flagJSON, "json", false, "Print the stored record as JSON")
}

func show(cmd *cobra.Command, store storage.Store, id string) error {
	ctx := cmd.Context()
	w := cmd.OutOrStdout()

	var record any
	var render func()
	switch storage.RecordKind(id) {
	case "conversation":
		c, err := store.GetConversation(ctx, id)
		if err != nil {
			return err
		}
		sums, err := store.ListSummaries(ctx, id)
		if err != nil {
			return err
		}
		record = c
		render = func() {
			printConversation(w, c)
			for _, s := range sums {
				fmt.Fprintf(w, "  Summary %s (%s)\n", s.ID, s.Summary.CondensedTopic)
			}
		}
	case "summary":
		s, err := store.GetSummary(ctx, id)
		if err != nil {
			return err
		}
		vs, err := store.ListVideoScripts(ctx, id)
		if err != nil {
			return err
		}
		record = s
		render = func() {
			printSummary(w, s)
			for _, v := range vs {
				fmt.Fprintf(w, "  Video script %s (%s)\n", v.ID, v.Script.Title)
			}
		}
	case "video_script":
		v, err := store.GetVideoScript(ctx, id)
		if err != nil {
			return err
		}
		record = v
		render = func() { printVideoScript(w, v) }
	default:
		return fmt.Errorf("unrecognized id %q (expected a conv_, sum_ or vid_ prefix)", id)
	}

	if flagJSON {
		return writeJSON(w, record)
	}
	render()
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func terminalKind(kind string) bool {
	switch kind {
	case discussion.KindCompleted.String(), discussion.KindError.String():
		return true
	}
	return false
}

func printEvent(w io.Writer, ev realtime.StateEvent) {
	ts := ev.Timestamp.Local().Format("15:04:05")
	switch {
	case ev.Error != "":
		fmt.Fprintf(w, "[%s] %s %s: %s\n", ts, ev.ConversationID, ev.Kind, ev.Error)
	case ev.LastContribution != nil && ev.Kind == discussion.KindInProgress.String():
		fmt.Fprintf(w, "[%s] %s round %d, %s: %s\n", ts, ev.ConversationID,
			ev.LastContribution.Round, ev.LastContribution.Philosopher, truncate(ev.LastContribution.Response, 100))
	default:
		fmt.Fprintf(w, "[%s] %s %s %s\n", ts, ev.ConversationID, ev.Kind, ev.Topic)
	}
}
