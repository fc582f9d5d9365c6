package expression

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/width"
)

var intensitySuffix = regexp.MustCompile(`[:_\(\[](\d+)[\)\]]?$`)

// aliases is the only place free-text emotion words are recognised.
var aliases = map[string]Expression{
	"happy": Happy, "joy": Happy, "smile": Happy, "cheerful": Happy,
	"delighted": Happy, "laugh": Happy, "laughing": Happy,

	"sad": Sad, "crying": Sad, "sorrowful": Sad, "grief": Sad,

	"angry": Angry, "mad": Angry, "furious": Angry, "rage": Angry,

	"surprised": Surprised, "shocked": Surprised, "amazed": Surprised, "wow": Surprised,

	"worried": Worried, "anxious": Worried, "concerned": Worried, "fear": Worried, "afraid": Worried,

	"disappointed": Disappointed, "let down": Disappointed,

	"annoyed": Annoyed, "irritated": Annoyed, "frustrated": Annoyed,

	"smug": Smug, "proud": Smug, "satisfied": Smug, "confident": Smug,

	"thoughtful": Thoughtful, "thinking": Thoughtful, "pondering": Thoughtful,
	"contemplative": Thoughtful, "vigilant": Thoughtful, "alert": Thoughtful, "focused": Thoughtful,

	"playful": Playful, "mischievous": Playful, "teasing": Playful, "joking": Playful,

	"shy": Shy, "bashful": Shy, "embarrassed": Shy, "blushing": Shy, "flustered": Shy,

	"confused": Confused, "puzzled": Confused, "bewildered": Confused, "questioning": Confused,

	"neutral": Neutral, "calm": Neutral, "normal": Neutral,
}

// ParseLabel normalizes a free-text emotion label such as "Happy:2",
// "joy(3)" or "ＳＨＹ" into an expression and an optional intensity.
// Unrecognised labels yield (Neutral, 0).
func ParseLabel(label string) (Expression, int) {
	s := width.Narrow.String(label)
	s = strings.TrimSpace(s)
	if s == "" {
		return Neutral, 0
	}

	intensity := 0
	if m := intensitySuffix.FindStringSubmatchIndex(s); m != nil {
		if n, err := strconv.Atoi(s[m[2]:m[3]]); err == nil {
			intensity = n
		}
		s = strings.TrimSpace(s[:m[0]])
	}

	key := cases.Fold().String(s)
	key = strings.Join(strings.Fields(key), " ")

	if e, ok := aliases[key]; ok {
		return e, intensity
	}
	if e, ok := Lookup(key); ok {
		return e, intensity
	}
	return Neutral, 0
}
