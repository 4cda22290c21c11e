package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/apresai/symposium/internal/discussion"
	"github.com/apresai/symposium/internal/philosopher"
	"github.com/apresai/symposium/internal/pipeline"
	"github.com/apresai/symposium/internal/storage"
)

func printResult(w io.Writer, res *pipeline.Result) {
	if res.Conversation != nil {
		printConversation(w, res.Conversation)
	}
	if res.Summary != nil {
		printSummary(w, res.Summary)
	}
	if res.VideoScript != nil {
		printVideoScript(w, res.VideoScript)
	}
}

func printConversation(w io.Writer, c *storage.Conversation) {
	fmt.Fprintf(w, "\n  %s\n", c.Topic)
	fmt.Fprintf(w, "  %s\n", strings.Repeat("\u2500", 50))
	names := make([]string, len(c.Participants))
	for i, p := range c.Participants {
		names[i] = p.Name
	}
	fmt.Fprintf(w, "  %-14s %s\n", "ID", c.ID)
	fmt.Fprintf(w, "  %-14s %s\n", "Status", c.Status)
	fmt.Fprintf(w, "  %-14s %s\n", "Participants", strings.Join(names, ", "))
	fmt.Fprintf(w, "  %-14s %d x %d words\n", "Rounds", c.MaxRounds, c.MaxWordsPerResponse)
	if c.ErrorMessage != "" {
		fmt.Fprintf(w, "  %-14s %s\n", "Error", c.ErrorMessage)
	}

	round := 0
	for _, r := range c.Contributions {
		if r.RoundNumber != round {
			round = r.RoundNumber
			fmt.Fprintf(w, "\n  Round %d\n", round)
		}
		fmt.Fprintf(w, "\n  %s:\n%s\n", r.PhilosopherName, indent(r.Response, "    "))
	}
	fmt.Fprintln(w)
}

func printSummary(w io.Writer, s *storage.Summary) {
	sum := s.Summary
	fmt.Fprintf(w, "\n  Summary: %s\n", sum.CondensedTopic)
	fmt.Fprintf(w, "  %s\n", strings.Repeat("\u2500", 50))
	fmt.Fprintf(w, "  %-14s %s\n", "ID", s.ID)
	fmt.Fprintf(w, "  %-14s %s\n", "Conversation", s.ConversationID)
	fmt.Fprintf(w, "  %-14s %d\n", "Words", sum.TotalWordCount())
	fmt.Fprintf(w, "\n%s\n", indent(discussion.SummaryText(&sum), "  "))
	if sum.VideoNotes != "" {
		fmt.Fprintf(w, "\n  Video notes: %s\n", sum.VideoNotes)
	}
	fmt.Fprintln(w)
}

func printVideoScript(w io.Writer, v *storage.VideoScript) {
	fmt.Fprintf(w, "\n  %-14s %s\n", "Video script", v.ID)
	fmt.Fprintf(w, "  %-14s %s\n", "Summary", v.SummaryID)
	if v.ExportURL != "" {
		fmt.Fprintf(w, "  %-14s %s\n", "Exported to", v.ExportURL)
	}
	fmt.Fprintf(w, "\n%s\n", discussion.VideoScriptMarkdown(&v.Script))
}

func printPhilosophers(w io.Writer, ps []philosopher.Philosopher) {
	if len(ps) == 0 {
		fmt.Fprintln(w, "\n  No philosophers match.")
		return
	}
	fmt.Fprintf(w, "\n  %-16s %-22s %-20s %s\n", "ID", "NAME", "ERA", "DESCRIPTION")
	fmt.Fprintf(w, "  %s\n", strings.Repeat("\u2500", 80))
	for _, p := range ps {
		fmt.Fprintf(w, "  %-16s %-22s %-20s %s\n", p.ID, p.Name, p.Era, p.Description)
	}
	fmt.Fprintln(w)
}

func printHistory(w io.Writer, cs []storage.Conversation) {
	if len(cs) == 0 {
		fmt.Fprintln(w, "\n  No conversations yet.")
		return
	}
	fmt.Fprintf(w, "\n  %-32s %-12s %-17s %s\n", "ID", "STATUS", "CREATED", "TOPIC")
	fmt.Fprintf(w, "  %s\n", strings.Repeat("\u2500", 90))
	for _, c := range cs {
		fmt.Fprintf(w, "  %-32s %-12s %-17s %s\n",
			c.ID, c.Status, c.CreatedAt.Local().Format("2006-01-02 15:04"), truncate(c.Topic, 40))
	}
	fmt.Fprintln(w)
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = prefix + l
		}
	}
	return strings.Join(lines, "\n")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "\u2026"
}

func formatElapsed(d time.Duration) string {
	total := int(d.Seconds())
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
