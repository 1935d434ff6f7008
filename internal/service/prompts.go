package service

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/episodecast/api/internal/model"
)

// Number of options requested for every quiz and poll question.
const optionsPerQuestion = 4

// episodePrompt carries what the script prompt needs to know about one episode.
type episodePrompt struct {
	Category           string
	ChannelName        string
	ChannelDescription string
	EventName          string
	EventDescription   string
	EventTemplate      string
	EpisodeTitle       string
	EpisodeTopics      []string
	ActorCount         int
	PanelistCount      int
	Characters         []model.Character
	Duration           string
	UserPrompt         string
}

func formatCharacters(chars []model.Character) string {
	if len(chars) == 0 {
		return "(no characters configured)"
	}
	blocks := make([]string, 0, len(chars))
	for _, c := range chars {
		blocks = append(blocks, fmt.Sprintf("- **Name**: %s\n  **Role**: %s\n  **Persona**: %s\n  **Quirks**: %s\n  **Catchphrase**: %s",
			c.Name, orNA(c.Role), orNA(c.Persona), orNA(c.Quirks), orNA(c.CatchPhrase)))
	}
	return strings.Join(blocks, "\n\n")
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}

// Role players act out the scene; everyone else hosts or comments on it.
func splitCast(chars []model.Character) (actors, others []model.Character) {
	for _, c := range chars {
		switch c.Role {
		case "Panelist", "Moderator":
			others = append(others, c)
		default:
			actors = append(actors, c)
		}
	}
	return actors, others
}

func buildSimulationPrompt(in episodePrompt) string {
	template := "(no event template provided; use an introduction, topic-driven discussion and a closing summary)"
	if strings.TrimSpace(in.EventTemplate) != "" {
		template = in.EventTemplate
	}

	topics := "(no topics provided)"
	if len(in.EpisodeTopics) > 0 {
		lines := make([]string, len(in.EpisodeTopics))
		for i, t := range in.EpisodeTopics {
			lines[i] = "- " + t
		}
		topics = strings.Join(lines, "\n")
	}

	length := "at least 4,500 words"
	if in.Duration != "" {
		length = fmt.Sprintf("long enough to fill %s of audio, and at least 4,500 words", in.Duration)
	}

	actors, others := splitCast(in.Characters)

	var b strings.Builder
	fmt.Fprintf(&b, "Write a scripted audio episode in the category %q using the details below.\n\n", in.Category)
	fmt.Fprintf(&b, "### Channel\n- Name: %s\n- Description: %s\n\n", in.ChannelName, in.ChannelDescription)
	fmt.Fprintf(&b, "### Event\n- Name: %s\n- Description: %s\n- Template outline:\n%s\n\n", in.EventName, in.EventDescription, template)
	fmt.Fprintf(&b, "### Episode\n- Title: %s\n- Topics:\n%s\n\n", in.EpisodeTitle, topics)
	fmt.Fprintf(&b, "### Role-play cast (%d actors)\n%s\n\n", in.ActorCount, formatCharacters(actors))
	fmt.Fprintf(&b, "### Hosts and panel (%d panelists)\n%s\n\n", in.PanelistCount, formatCharacters(others))
	b.WriteString("### Requirements\n")
	b.WriteString("- Only spoken dialogue. No stage directions or descriptions of what a speaker is doing.\n")
	b.WriteString("- Start each spoken line with the speaker's name followed by a colon.\n")
	b.WriteString("- Follow the template outline when one is given. A moderator from the cast guides the session if there is one.\n")
	b.WriteString("- Keep every line true to the speaker's role, persona and quirks.\n")
	fmt.Fprintf(&b, "- The script must be %s.\n\n", length)
	b.WriteString("### Output\nThe script is markdown. Return only this JSON object, without code fences:\n{\"simulation\": \"<markdown script>\"}\n")
	if strings.TrimSpace(in.UserPrompt) != "" {
		fmt.Fprintf(&b, "\n### Additional instructions from the organizer\n%s\n", in.UserPrompt)
	}
	return b.String()
}

func multiChoicePrompt(topic string, count int) string {
	return fmt.Sprintf(`Generate %d multiple-choice questions about the topic discussed: %q.

- Each question has exactly %d unique options and exactly one correct answer.
- The answer must match one of the options word for word.
- Vary the position of the correct answer across questions.
- Do not repeat any question asked earlier in this conversation.

Return only this JSON object, without code fences:
{"description": "<short description>", "data": [{"question": "", "options": [""], "answer": "", "answer_details": "<detailed explanation>", "topic": %q}]}
`, count, topic, optionsPerQuestion, topic)
}

func openEndedPrompt(topic string, count int) string {
	return fmt.Sprintf(`Generate %d open-ended questions about the topic discussed: %q.

- Mix direct concept questions with scenario-based vignettes.
- Balance difficulty across beginner, intermediate and advanced levels.
- The answer lists the %d most likely answers; answer_details explains the reasoning in depth.
- Do not repeat any question asked earlier in this conversation.

Return only this JSON object, without code fences:
{"description": "<short description>", "data": [{"question": "", "options": [], "answer": "", "answer_details": "", "topic": %q}]}
`, count, topic, optionsPerQuestion, topic)
}

func pollPrompt(topic string, count int) string {
	return fmt.Sprintf(`Generate %d poll questions about the topic discussed: %q.

- Each poll is a single question with exactly %d unique options.
- Options reflect plausible, diverse opinions or choices.
- Do not repeat any poll asked earlier in this conversation.

Return only this JSON object, without code fences:
{"description": "<short description>", "data": [{"question": "", "options": [""], "topic": %q}]}
`, count, topic, optionsPerQuestion, topic)
}

// continuationPrompt asks for the next chunk of a conversion in progress.
const continuationPrompt = "next data"

type speakerRef struct {
	Name   string       `json:"name"`
	Image  string       `json:"image"`
	Gender model.Gender `json:"gender"`
}

func conversionPrompt(script string, cast []model.Character) string {
	speakers := make([]speakerRef, len(cast))
	for i, c := range cast {
		speakers[i] = speakerRef{Name: c.Name, Image: c.Image, Gender: c.Gender}
	}
	roster, _ := json.MarshalIndent(speakers, "", "  ")

	return fmt.Sprintf(`Convert the script below into a JSON array of items, one per heading or speaker line, in order. Do not skip or merge content.

- A heading (a line starting with #) becomes {"name": "", "image": "", "gender": "", "conversation": "<heading text>"}.
- A line starting with a speaker name becomes {"name": "<speaker name as written>", "image": "", "gender": "", "conversation": "<spoken words only>"}.
  Look the speaker up in this roster and copy their image and gender when found:
%s
- Return at most 5 items per reply. When I answer %q, continue where you stopped.
- Set "isLastData" to true only in the reply that contains the final item.

Return only this JSON object, without code fences:
{"data": [], "isLastData": false}

Script:
"""
%s
"""
`, roster, continuationPrompt, script)
}
