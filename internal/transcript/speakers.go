package transcript

// PhoneticMatcher finds the configured name closest in pronunciation to a
// possibly misspelled label. Implementations must be safe for concurrent use.
//
// When matched is false, corrected equals label and confidence is 0.
type PhoneticMatcher interface {
	Match(label string, names []string) (corrected string, confidence float64, matched bool)
}

// Correction records one speaker label rewritten by [ResolveSpeakers].
type Correction struct {
	// Original is the label as it appeared in the transcript.
	Original string

	// Corrected is the configured character name that replaced it.
	Corrected string

	// Confidence is the matcher's similarity score (0.0–1.0).
	Confidence float64

	// Turns is the number of turns that carried the label.
	Turns int
}

// ResolveSpeakers maps every speaker label in e that is not a configured
// character onto the closest character according to m. Labels that match
// exactly are left alone and unmatched labels are kept as they are. The
// returned corrections are ordered by first appearance.
func ResolveSpeakers(e *Editor, m PhoneticMatcher) []Correction {
	characters := e.Characters()
	if m == nil || len(characters) == 0 {
		return nil
	}

	turns := e.Turns()
	unknown := UnknownSpeakers(turns, characters)
	if len(unknown) == 0 {
		return nil
	}

	renames := make(map[string]string, len(unknown))
	var out []Correction
	for _, label := range unknown {
		name, conf, ok := m.Match(label, characters)
		if !ok {
			continue
		}
		renames[label] = name
		n := 0
		for _, t := range turns {
			if t.Speaker == label {
				n++
			}
		}
		out = append(out, Correction{Original: label, Corrected: name, Confidence: conf, Turns: n})
	}
	if len(renames) > 0 {
		e.ReplaceSpeakers(renames)
	}
	return out
}
