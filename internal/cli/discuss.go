package cli

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/apresai/symposium/internal/discussion"
	"github.com/apresai/symposium/internal/pipeline"
	"github.com/apresai/symposium/internal/progress"
)

var discussCmd = &cobra.Command{
	Use:   "discuss [topic]",
	Short: "Run a round-robin discussion between philosophers",
	Example: `  symposium discuss "Is it ever right to lie?" -P socrates,kant -r 2
  symposium discuss -p "What is a good life?" -P aristotle,laoTzu --direct --watch`,
	RunE: runDiscuss,
}

var summarizeCmd = &cobra.Command{
	Use:   "summarize <conversation-id>",
	Short: "Condense a completed conversation into a short summary",
	Args:  cobra.ExactArgs(1),
	RunE:  runSummarize,
}

var directCmd = &cobra.Command{
	Use:   "direct <summary-id>",
	Short: "Turn a summary into a scene-by-scene video script",
	Args:  cobra.ExactArgs(1),
	RunE:  runDirect,
}

var (
	flagTopic           string
	flagPhilosophers    string
	flagRounds          int
	flagWords           int
	flagSummarize       bool
	flagDirect          bool
	flagWatch           bool
	flagTargetRounds    int
	flagSummaryWords    int
	flagNewParticipants bool
	flagTransition      string
	flagNoOpening       bool
	flagNoClosing       bool
)

func init() {
	rootCmd.AddCommand(discussCmd, summarizeCmd, directCmd)

	f := discussCmd.Flags()
	f.StringVarP(&flagTopic, "topic", "p", "", "Discussion topic (or pass it as the argument)")
	f.StringVarP(&flagPhilosophers, "philosophers", "P", "socrates,nietzsche", "Comma-separated philosopher ids, in speaking order")
	f.IntVarP(&flagRounds, "rounds", "r", discussion.DefaultMaxRounds, "Number of rounds")
	f.IntVarP(&flagWords, "words", "w", discussion.DefaultMaxWordsPerResponse, "Maximum words per response")
	f.BoolVarP(&flagSummarize, "summarize", "s", false, "Summarize the conversation when it completes")
	f.BoolVarP(&flagDirect, "direct", "d", false, "Summarize, then write a video script (implies --summarize)")
	f.BoolVarP(&flagWatch, "watch", "W", false, "Show a live transcript while the discussion runs")
	addSummaryFlags(discussCmd)
	addDirectorFlags(discussCmd)

	addSummaryFlags(summarizeCmd)
	addDirectorFlags(directCmd)
}

func addSummaryFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&flagTargetRounds, "target-rounds", discussion.DefaultTargetRounds, "Rounds to keep in the summary")
	cmd.Flags().IntVar(&flagSummaryWords, "summary-words", discussion.DefaultSummaryMaxWords, "Maximum words per summarized response")
	cmd.Flags().BoolVar(&flagNewParticipants, "allow-new-participants", false, "Let the summary drop or merge speakers")
}

func addDirectorFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagTransition, "transition-style", discussion.DefaultSceneTransitionStyle, "Visual style for transition scenes")
	cmd.Flags().BoolVar(&flagNoOpening, "no-opening", false, "Skip the opening establishing shot")
	cmd.Flags().BoolVar(&flagNoClosing, "no-closing", false, "Skip the closing shot")
}

func summarizeOptions() pipeline.SummarizeOptions {
	return pipeline.SummarizeOptions{
		TargetRounds:         flagTargetRounds,
		MaxWords:             flagSummaryWords,
		PreserveParticipants: !flagNewParticipants,
	}
}

func directOptions() pipeline.DirectOptions {
	return pipeline.DirectOptions{
		SkipOpening:     flagNoOpening,
		SkipClosing:     flagNoClosing,
		TransitionStyle: flagTransition,
	}
}

func splitIDs(s string) []string {
	var out []string
	for _, id := range strings.Split(s, ",") {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}

func runDiscuss(cmd *cobra.Command, args []string) error {
	topic := flagTopic
	if topic == "" {
		topic = strings.Join(args, " ")
	} else if len(args) > 0 {
		return fmt.Errorf("give the topic either as --topic or as the argument, not both")
	}
	if strings.TrimSpace(topic) == "" {
		return fmt.Errorf("a topic is required")
	}

	e := current
	if err := checkAPIKeys(e.cfg, e.profile()); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	opts := pipeline.RunOptions{
		Discuss: pipeline.DiscussOptions{
			Topic:          topic,
			PhilosopherIDs: splitIDs(flagPhilosophers),
			MaxRounds:      flagRounds,
			MaxWords:       flagWords,
		},
		Summarize:   summarizeOptions(),
		Direct:      directOptions(),
		SkipSummary: !flagSummarize && !flagDirect,
		SkipVideo:   !flagDirect,
	}

	if flagWatch && progress.IsTerminal(os.Stdout) {
		return runWatched(ctx, e, opts)
	}

	runner, err := e.runner(ctx)
	if err != nil {
		return err
	}
	res, err := runWithProgress(func(cb progress.Callback) (*pipeline.Result, error) {
		return runner.Run(ctx, opts, cb)
	})
	if res != nil {
		printResult(cmd.OutOrStdout(), res)
	}
	return err
}

func runSummarize(cmd *cobra.Command, args []string) error {
	e := current
	if err := checkAPIKeys(e.cfg, e.profile()); err != nil {
		return err
	}
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	runner, err := e.runner(ctx)
	if err != nil {
		return err
	}
	res, err := runWithProgress(func(cb progress.Callback) (*pipeline.Result, error) {
		sum, err := runner.Summarize(ctx, args[0], summarizeOptions(), cb)
		return &pipeline.Result{Summary: sum}, err
	})
	if err != nil {
		return err
	}
	printSummary(cmd.OutOrStdout(), res.Summary)
	return nil
}

func runDirect(cmd *cobra.Command, args []string) error {
	e := current
	if err := checkAPIKeys(e.cfg, e.profile()); err != nil {
		return err
	}
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	runner, err := e.runner(ctx)
	if err != nil {
		return err
	}
	res, err := runWithProgress(func(cb progress.Callback) (*pipeline.Result, error) {
		v, err := runner.Direct(ctx, args[0], directOptions(), cb)
		return &pipeline.Result{VideoScript: v}, err
	})
	if res != nil && res.VideoScript != nil {
		printVideoScript(cmd.OutOrStdout(), res.VideoScript)
	}
	return err
}

// runWithProgress draws the progress bar on stderr unless verbose logging owns it.
func runWithProgress(run func(progress.Callback) (*pipeline.Result, error)) (*pipeline.Result, error) {
	if flagVerbose {
		return run(progress.NopCallback)
	}
	r := progress.NewBarRenderer(os.Stderr)
	defer r.Finish()
	return run(r.Handle)
}
