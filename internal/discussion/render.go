package discussion

import (
	"fmt"
	"strings"
)

// VideoScriptMarkdown renders a script as a Markdown shooting document.
func VideoScriptMarkdown(v *VideoScript) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", v.Title)
	if v.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", v.Description)
	}
	fmt.Fprintf(&b, "**Estimated duration:** %s  \n", v.EstimatedDuration)
	fmt.Fprintf(&b, "**Scenes:** %d\n", v.TotalScenes())

	for _, s := range v.Scenes {
		fmt.Fprintf(&b, "\n## Scene %d: %s (%s)\n\n", s.SceneNumber, s.Type, s.Duration)
		fmt.Fprintf(&b, "**Image prompt:** %s\n", s.ImagePrompt)
		if s.Dialogue != "" {
			speaker := s.PhilosopherName
			if speaker == "" {
				speaker = "Narrator"
			}
			fmt.Fprintf(&b, "\n> **%s:** %s\n", speaker, s.Dialogue)
		}
		if s.DirectorNotes != "" {
			fmt.Fprintf(&b, "\n_Director's notes: %s_\n", s.DirectorNotes)
		}
	}

	if len(v.ProductionNotes) > 0 {
		b.WriteString("\n## Production notes\n\n")
		for _, n := range v.ProductionNotes {
			fmt.Fprintf(&b, "- %s\n", n)
		}
	}
	return b.String()
}
