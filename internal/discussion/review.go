package discussion

import (
	"fmt"
	"sort"
	"strings"
)

// ReviewIssue describes a quality problem found in a summary or video script.
type ReviewIssue struct {
	Category string `json:"category"` // "rounds", "word_limit", "participants", "filler", "scenes", "framing", "balance"
	Message  string `json:"message"`
	Severity string `json:"severity"` // "error" or "warning"
}

// HasErrors reports whether any issue is an error rather than a warning.
func HasErrors(issues []ReviewIssue) bool {
	for _, issue := range issues {
		if issue.Severity == "error" {
			return true
		}
	}
	return false
}

// ReviewSummary runs heuristic checks on a summary against the settings it was
// produced with. original lists the speaker names of the source conversation.
func ReviewSummary(s *ConversationSummary, cfg SummarizationConfig, original []string) []ReviewIssue {
	if len(s.Rounds) == 0 {
		return []ReviewIssue{{Category: "rounds", Message: "Summary has no rounds", Severity: "error"}}
	}

	var issues []ReviewIssue
	if len(s.Rounds) != cfg.TargetRounds {
		issues = append(issues, ReviewIssue{
			Category: "rounds",
			Message:  fmt.Sprintf("Summary has %d rounds, target is %d", len(s.Rounds), cfg.TargetRounds),
			Severity: "warning",
		})
	}

	known := map[string]bool{}
	for _, name := range original {
		known[name] = true
	}
	strangers := map[string]bool{}
	for _, r := range s.Rounds {
		for _, c := range r.Contributions {
			if c.WordCount > cfg.MaxWordsPerResponse {
				issues = append(issues, ReviewIssue{
					Category: "word_limit",
					Message:  fmt.Sprintf("Round %d: %s uses %d words, limit is %d", r.RoundNumber, c.PhilosopherName, c.WordCount, cfg.MaxWordsPerResponse),
					Severity: "warning",
				})
			}
			if cfg.PreserveOriginalParticipants && len(known) > 0 && !known[c.PhilosopherName] {
				strangers[c.PhilosopherName] = true
			}
			issues = append(issues, checkFiller(fmt.Sprintf("Round %d, %s", r.RoundNumber, c.PhilosopherName), c.Response)...)
		}
	}
	for _, name := range sortedKeys(strangers) {
		issues = append(issues, ReviewIssue{
			Category: "participants",
			Message:  fmt.Sprintf("%s did not take part in the original conversation", name),
			Severity: "warning",
		})
	}
	return issues
}

// ReviewVideoScript runs heuristic checks on a storyboard against the director
// settings it was produced with.
func ReviewVideoScript(v *VideoScript, cfg DirectorConfig) []ReviewIssue {
	if len(v.Scenes) == 0 {
		return []ReviewIssue{{Category: "scenes", Message: "Video script has no scenes", Severity: "error"}}
	}

	var issues []ReviewIssue
	for i, sc := range v.Scenes {
		if sc.SceneNumber != i+1 {
			issues = append(issues, ReviewIssue{
				Category: "scenes",
				Message:  fmt.Sprintf("Scene %d is numbered %d", i+1, sc.SceneNumber),
				Severity: "warning",
			})
		}
		if strings.TrimSpace(sc.ImagePrompt) == "" {
			issues = append(issues, ReviewIssue{
				Category: "scenes",
				Message:  fmt.Sprintf("Scene %d has no image prompt", i+1),
				Severity: "warning",
			})
		}
		if sc.Type == SceneDialogue && sc.Dialogue != "" && sc.PhilosopherName == "" {
			issues = append(issues, ReviewIssue{
				Category: "scenes",
				Message:  fmt.Sprintf("Scene %d has dialogue but no speaker", i+1),
				Severity: "warning",
			})
		}
	}

	issues = append(issues, checkFraming(v.Scenes, SceneOpening, cfg.IncludeOpeningShot, 0, "opening")...)
	issues = append(issues, checkFraming(v.Scenes, SceneClosing, cfg.IncludeClosingShot, len(v.Scenes)-1, "closing")...)
	issues = append(issues, checkSpeakerBalance(v.Scenes)...)
	return issues
}

func checkFraming(scenes []Scene, t SceneType, want bool, at int, label string) []ReviewIssue {
	count := 0
	for _, sc := range scenes {
		if sc.Type == t {
			count++
		}
	}
	switch {
	case want && scenes[at].Type != t:
		return []ReviewIssue{{Category: "framing", Message: fmt.Sprintf("Expected an %s shot at scene %d", label, at+1), Severity: "warning"}}
	case !want && count > 0:
		return []ReviewIssue{{Category: "framing", Message: fmt.Sprintf("Script has an %s shot but none was requested", label), Severity: "warning"}}
	}
	return nil
}

func checkSpeakerBalance(scenes []Scene) []ReviewIssue {
	counts := map[string]int{}
	total := 0
	for _, sc := range scenes {
		if sc.IsDialogueScene() && sc.PhilosopherName != "" {
			counts[sc.PhilosopherName]++
			total++
		}
	}
	if len(counts) < 2 {
		return nil
	}

	minPct := 0.30
	if len(counts) >= 3 {
		minPct = 0.20
	}
	var issues []ReviewIssue
	for _, speaker := range sortedKeys(counts) {
		pct := float64(counts[speaker]) / float64(total)
		if pct < minPct {
			issues = append(issues, ReviewIssue{
				Category: "balance",
				Message:  fmt.Sprintf("%s has only %.0f%% of dialogue scenes (%d/%d), minimum is %.0f%%", speaker, pct*100, counts[speaker], total, minPct*100),
				Severity: "warning",
			})
		}
	}
	return issues
}

// fillerPhrases are modern conversational tics that break a philosopher's voice.
var fillerPhrases = []string{
	"that's a great point",
	"great question",
	"i couldn't agree more",
	"you nailed it",
	"so true",
	"100 percent",
	"as an ai",
}

func checkFiller(where, text string) []ReviewIssue {
	lower := strings.ToLower(text)
	var issues []ReviewIssue
	for _, phrase := range fillerPhrases {
		if strings.Contains(lower, phrase) {
			issues = append(issues, ReviewIssue{
				Category: "filler",
				Message:  fmt.Sprintf("%s: filler phrase %q", where, phrase),
				Severity: "warning",
			})
		}
	}
	return issues
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
