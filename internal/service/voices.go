package service

import (
	"math/rand"
	"regexp"
	"strings"

	"github.com/episodecast/api/internal/model"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// normalizeName makes speaker names written slightly differently compare equal.
func normalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = whitespaceRun.ReplaceAllString(name, " ")
	return strings.ReplaceAll(name, ".", "")
}

// VoiceAssigner picks a text-to-speech voice for every speaking turn.
type VoiceAssigner struct {
	male   []string
	female []string
	pick   func(n int) int
}

func NewVoiceAssigner(male, female []string) *VoiceAssigner {
	return &VoiceAssigner{male: male, female: female, pick: rand.Intn}
}

// Assign drops turns without a speaker and sets VoiceID on the rest. A turn
// that already carries a voice keeps it. Otherwise cast members get their
// configured voice, and anyone else reuses the first voice seen for them or
// gets a random one for their gender.
func (v *VoiceAssigner) Assign(turns []model.ConversationTurn, cast []model.Character) []model.ConversationTurn {
	roster := make(map[string]model.Character, len(cast))
	for _, c := range cast {
		if key := normalizeName(c.Name); key != "" {
			roster[key] = c
		}
	}

	fallback := make(map[string]string)
	voiced := make([]model.ConversationTurn, 0, len(turns))
	for _, turn := range turns {
		key := normalizeName(turn.Speaker)
		if key == "" {
			continue
		}

		character, known := roster[key]
		if known {
			if turn.Image == "" {
				turn.Image = character.Image
			}
			if turn.Gender == "" {
				turn.Gender = character.Gender
			}
		}

		switch {
		case turn.VoiceID != "":
			if fallback[key] == "" {
				fallback[key] = turn.VoiceID
			}
		case known && character.VoiceID != "":
			turn.VoiceID = character.VoiceID
		case fallback[key] != "":
			turn.VoiceID = fallback[key]
		default:
			turn.VoiceID = v.fallbackVoice(turn.Gender)
			fallback[key] = turn.VoiceID
		}
		voiced = append(voiced, turn)
	}
	return voiced
}

func (v *VoiceAssigner) fallbackVoice(gender model.Gender) string {
	voices := v.male
	if strings.EqualFold(string(gender), string(model.GenderFemale)) {
		voices = v.female
	}
	if len(voices) == 0 {
		return ""
	}
	return voices[v.pick(len(voices))]
}
