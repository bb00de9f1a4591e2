// Package emotion implements the keyword heuristic behind the
// emotion-adaptive UI: a message maps to a coarse emotion, and each emotion
// maps to a background color the interface can adopt.
package emotion

import "strings"

// Emotion is a coarse emotional category detected from message text.
type Emotion string

const (
	Happy   Emotion = "happy"
	Sad     Emotion = "sad"
	Angry   Emotion = "angry"
	Neutral Emotion = "neutral"
)

// Keyword tables checked in order; sad/anxious wins over happy/good.
var keywords = []struct {
	emotion Emotion
	words   []string
}{
	{Sad, []string{"sad", "anxious"}},
	{Happy, []string{"happy", "good"}},
	{Angry, []string{"angry"}},
}

var colors = map[Emotion]string{
	Happy:   "#e6f7f1",
	Sad:     "#eef2ff",
	Angry:   "#fff1f2",
	Neutral: "#f8f9fa",
}

// Detect returns the emotion suggested by the message text.
func Detect(text string) Emotion {
	t := strings.ToLower(text)
	for _, k := range keywords {
		for _, w := range k.words {
			if strings.Contains(t, w) {
				return k.emotion
			}
		}
	}
	return Neutral
}

// Color returns the background color for an emotion.
// Unknown emotions fall back to the neutral color.
func Color(e Emotion) string {
	if c, ok := colors[e]; ok {
		return c
	}
	return colors[Neutral]
}
