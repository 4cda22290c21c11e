package discussion

import (
	"fmt"
	"strings"
)

const SummarizationSystemPrompt = `You are an expert editor who condenses long philosophical discussions into material for short-form video.
You keep each philosopher's distinct voice and their strongest, most quotable arguments, and you cut repetition and filler.
You respond with a single valid JSON object and nothing else: no commentary, no markdown.`

const DirectorSystemPrompt = `You are a film director who storyboards short cinematic videos of philosophical dialogues.
You think visually: every scene gets a concrete, richly detailed image-generation prompt describing setting, lighting, composition and mood.
You keep the philosophers' words intact as dialogue and pace the video so it feels contemplative but never slow.
You respond with a single valid JSON object and nothing else: no commentary, no markdown.`

const videoDurationTarget = "60 seconds"

// InitialPrompt is sent to the first speaker when nothing has been said yet.
func InitialPrompt(topic string, maxWords int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Topic for discussion: \"%s\"\n\n", topic)
	fmt.Fprintf(&b, "This is the start of a philosophical discussion on the topic: \"%s\"\n\n", topic)
	b.WriteString("You are opening the discussion. Share your initial perspective on the topic, drawing on your own philosophy and way of reasoning. Speak as you would in a live conversation with other philosophers.\n\n")
	fmt.Fprintf(&b, "Keep your response concise but substantive (around %d words).", maxWords)
	return b.String()
}

// FollowUpPrompt is sent once at least one contribution exists. transcript is the
// output of TurnContext.
func FollowUpPrompt(topic, transcript string, maxWords int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Topic for discussion: \"%s\"\n\n", topic)
	b.WriteString(transcript)
	b.WriteString("\n\n")
	b.WriteString("Respond to the points raised by the other philosophers. Agree, challenge or build on their ideas from your own perspective, and move the discussion forward instead of repeating what has already been said.\n\n")
	fmt.Fprintf(&b, "Keep your response concise but substantive (around %d words).", maxWords)
	return b.String()
}

// TurnContext renders every prior contribution grouped by round.
func TurnContext(topic string, rounds []Round, currentRound int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Previous contributions to this philosophical discussion on \"%s\":\n", topic)
	for _, r := range rounds {
		if len(r.Contributions) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n=== Round %d ===\n", r.Number)
		for _, c := range r.Contributions {
			fmt.Fprintf(&b, "%s: %s\n", c.Philosopher.Name, c.Response)
		}
	}
	if currentRound > 1 {
		fmt.Fprintf(&b, "\nNow beginning Round %d.", currentRound)
	}
	return strings.TrimRight(b.String(), "\n")
}

// TurnPrompt picks the opening or follow-up framing for the next speaker.
func TurnPrompt(s *InProgress) string {
	cfg := s.Config
	for _, r := range s.Rounds {
		if len(r.Contributions) > 0 {
			return FollowUpPrompt(cfg.Topic, TurnContext(cfg.Topic, s.Rounds, s.CurrentRound), cfg.MaxWordsPerResponse)
		}
	}
	return InitialPrompt(cfg.Topic, cfg.MaxWordsPerResponse)
}

// SummaryTranscript renders a completed conversation in round and speaking order.
func SummaryTranscript(c *Completed) string {
	var b strings.Builder
	for _, r := range c.Rounds {
		if len(r.Contributions) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n--- Round %d ---\n", r.Number)
		for _, con := range r.Contributions {
			fmt.Fprintf(&b, "%s: %s\n", con.Philosopher.Name, con.Response)
		}
	}
	return strings.TrimSpace(b.String())
}

func SummarizationPrompt(topic, transcript string, cfg SummarizationConfig) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Condense the following philosophical discussion on \"%s\" into a short-form video conversation.\n\n", topic)
	b.WriteString("Requirements:\n")
	fmt.Fprintf(&b, "- Produce exactly %d rounds.\n", cfg.TargetRounds)
	fmt.Fprintf(&b, "- Keep every contribution under %d words.\n", cfg.MaxWordsPerResponse)
	if cfg.PreserveOriginalParticipants {
		b.WriteString("- Keep every original participant, each speaking once per round in the original order, with their distinct voice.\n")
	} else {
		b.WriteString("- You may drop participants whose contributions add little, but never invent new ones.\n")
	}
	b.WriteString("- Keep the strongest arguments and the most memorable lines; cut repetition.\n")
	b.WriteString("- Write a shorter, punchier condensed topic suitable as a video hook.\n")
	b.WriteString("- Add brief notes for the video producer about tone and key moments.\n\n")
	b.WriteString("Original discussion:\n")
	b.WriteString(transcript)
	b.WriteString("\n\nRespond with JSON only, in exactly this shape:\n")
	b.WriteString(`{
  "summary": {
    "originalTopic": "the original topic",
    "condensedTopic": "a shorter version of the topic",
    "participants": ["Philosopher Name"],
    "rounds": [
      {
        "roundNumber": 1,
        "contributions": [
          {"philosopherName": "Philosopher Name", "response": "condensed response", "wordCount": 42}
        ]
      }
    ],
    "videoNotes": "notes for the video producer"
  }
}`)
	return b.String()
}

// SummaryText renders a summary for the director.
func SummaryText(s *ConversationSummary) string {
	var b strings.Builder
	b.WriteString("PHILOSOPHICAL DISCUSSION SUMMARY\n")
	fmt.Fprintf(&b, "Original Topic: %s\n", s.OriginalTopic)
	fmt.Fprintf(&b, "Condensed Topic: %s\n", s.CondensedTopic)
	fmt.Fprintf(&b, "Participants: %s\n", strings.Join(s.Participants, ", "))
	fmt.Fprintf(&b, "Total Word Count: %d\n", s.TotalWordCount())
	fmt.Fprintf(&b, "Video Notes: %s\n", s.VideoNotes)
	for _, r := range s.Rounds {
		fmt.Fprintf(&b, "\n--- Round %d (%d words) ---\n", r.RoundNumber, r.WordCount())
		for _, c := range r.Contributions {
			fmt.Fprintf(&b, "%s: %s\n", c.PhilosopherName, c.Response)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func DirectorPrompt(summaryText string, cfg DirectorConfig) string {
	style := strings.ReplaceAll(cfg.transitionStyle(), "_", " ")

	var b strings.Builder
	fmt.Fprintf(&b, "Create a scene-by-scene video script for the philosophical discussion summarized below. The finished video should run about %s.\n\n", videoDurationTarget)
	b.WriteString("Requirements:\n")
	if cfg.IncludeOpeningShot {
		b.WriteString("- Begin with one OPENING scene that establishes the setting and introduces the topic.\n")
	} else {
		b.WriteString("- Do not include an OPENING scene; start directly with dialogue.\n")
	}
	b.WriteString("- Give each contribution its own DIALOGUE scene: put the philosopher's words in \"dialogue\" and their name in \"philosopherName\".\n")
	fmt.Fprintf(&b, "- Place TRANSITION scenes between rounds in a \"%s\" style.\n", style)
	if cfg.IncludeClosingShot {
		b.WriteString("- End with one CLOSING scene that leaves the viewer with the central question.\n")
	} else {
		b.WriteString("- Do not include a CLOSING scene.\n")
	}
	b.WriteString("- Every scene must have an \"imagePrompt\": a detailed visual description for an image generator (setting, characters, lighting, camera angle, mood).\n")
	b.WriteString("- Give every scene a duration such as \"8 seconds\"; the durations should add up to the target length.\n")
	b.WriteString("- Add production notes about music, pacing and visual style.\n\n")
	b.WriteString(summaryText)
	b.WriteString("\n\nRespond with JSON only, in exactly this shape:\n")
	b.WriteString(`{
  "videoScript": {
    "title": "video title",
    "description": "one or two sentence description",
    "estimatedDuration": "60 seconds",
    "scenes": [
      {
        "sceneNumber": 1,
        "type": "OPENING | DIALOGUE | TRANSITION | CLOSING",
        "duration": "5 seconds",
        "imagePrompt": "detailed visual description",
        "dialogue": "spoken words, for DIALOGUE scenes",
        "philosopherName": "speaker, for DIALOGUE scenes",
        "directorNotes": "camera and performance notes"
      }
    ],
    "productionNotes": ["note"]
  }
}`)
	return b.String()
}
