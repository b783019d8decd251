package transcript

import (
	"math"
	"regexp"
)

// WordsPerMinute is the assumed speaking rate used for duration estimates.
const WordsPerMinute = 150

var wordPattern = regexp.MustCompile(`\w+`)

// WordCount counts runs of word characters ([0-9A-Za-z_]) in text. Speaker
// labels are included when text is a serialized transcript.
func WordCount(text string) int {
	return len(wordPattern.FindAllStringIndex(text, -1))
}

// EstimatedDurationMinutes converts a word count into whole minutes of speech,
// rounding up. Zero words yields zero minutes.
func EstimatedDurationMinutes(words int) int {
	if words <= 0 {
		return 0
	}
	return int(math.Ceil(float64(words) / WordsPerMinute))
}

// Stats summarises a turn list for progress displays. The values are advisory
// and are not tied to the length of any generated audio.
type Stats struct {
	Turns   int
	Words   int
	Minutes int

	// PerSpeaker counts turns per speaker name.
	PerSpeaker map[string]int
}

// ComputeStats derives [Stats] from turns.
func ComputeStats(turns []Turn) Stats {
	words := WordCount(Serialize(turns))
	s := Stats{
		Turns:      len(turns),
		Words:      words,
		Minutes:    EstimatedDurationMinutes(words),
		PerSpeaker: make(map[string]int),
	}
	for _, t := range turns {
		s.PerSpeaker[t.Speaker]++
	}
	return s
}

// Progress returns the estimated duration as a percentage of target minutes,
// capped at 100. A non-positive target yields 0.
func (s Stats) Progress(targetMinutes int) int {
	if targetMinutes <= 0 {
		return 0
	}
	p := s.Words * 100 / (targetMinutes * WordsPerMinute)
	return min(p, 100)
}
