package generate

import (
	"fmt"
	"strings"

	"github.com/MrWong99/podwright/pkg/podcast"
)

var expertiseDescriptions = map[podcast.ExpertiseLevel]string{
	podcast.ExpertiseBeginner:     "using simple terms and basic concepts, making it accessible to newcomers",
	podcast.ExpertiseIntermediate: "balancing basic and advanced concepts, with some technical terminology",
	podcast.ExpertiseExpert:       "using advanced concepts and technical terminology for a knowledgeable audience",
	podcast.ExpertiseMixed:        "varying the complexity to accommodate different knowledge levels",
}

var formatDescriptions = map[podcast.FormatStyle]string{
	podcast.FormatCasual:       "a relaxed, conversational style with natural back-and-forth dialogue",
	podcast.FormatInterview:    "a structured interview format with clear questions and detailed responses",
	podcast.FormatDebate:       "a balanced debate with different viewpoints and respectful disagreements",
	podcast.FormatEducational:  "an informative discussion that breaks down complex topics clearly",
	podcast.FormatStorytelling: "an engaging narrative style that weaves information into a compelling story",
}

// Prompt renders the transcript-writing instructions for c. The wording
// matches the backend generator so local and remote transcripts follow the
// same "Speaker: text" rules.
func Prompt(c podcast.Concept) string {
	format := formatDescriptions[c.FormatStyle]
	if format == "" {
		format = formatDescriptions[podcast.FormatCasual]
	}
	expertise := expertiseDescriptions[c.ExpertiseLevel]
	if expertise == "" {
		expertise = expertiseDescriptions[podcast.ExpertiseMixed]
	}
	speakers := strings.Join(c.CharacterNames, ", ")

	var b strings.Builder
	fmt.Fprintf(&b, "Create a natural and engaging podcast transcript about %s.\n\n", c.Topic)
	b.WriteString("Context:\n")
	fmt.Fprintf(&b, "- Format: %s\n", format)
	fmt.Fprintf(&b, "- Expertise Level: %s\n", expertise)
	fmt.Fprintf(&b, "- Duration: Aim for %d minutes of spoken content\n", c.DurationMinutes)
	fmt.Fprintf(&b, "- Speakers: %s\n\n", speakers)

	b.WriteString("Requirements:\n")
	b.WriteString("1. Format Rules (STRICTLY FOLLOW THESE):\n")
	b.WriteString("   - Each line must follow the exact format: \"SpeakerName: Their dialogue text\"\n")
	b.WriteString("   - One line per speaker turn, no multi-line dialogues\n")
	b.WriteString("   - No empty lines between speakers\n")
	fmt.Fprintf(&b, "   - Speaker names must exactly match: %s\n", speakers)
	b.WriteString("   - Example format:\n")
	b.WriteString("     John: Hello everyone, welcome to the podcast.\n")
	b.WriteString("     Sarah: Thanks for having me here.\n")
	b.WriteString("     John: Let's dive into our topic.\n\n")

	b.WriteString("2. Structure:\n")
	b.WriteString("   - Start with a brief introduction of the speakers and topic\n")
	fmt.Fprintf(&b, "   - Develop the discussion naturally through %d minutes\n", c.DurationMinutes)
	b.WriteString("   - End with clear conclusions or takeaways\n\n")

	b.WriteString("3. Speaker Dynamics:\n")
	b.WriteString("   - Maintain distinct personalities for each speaker\n")
	b.WriteString("   - Include natural interactions and balanced dialogue\n")
	b.WriteString("   - Ensure each speaker gets roughly equal speaking time\n\n")

	b.WriteString("4. Content Flow:\n")
	b.WriteString("   - Progress logically through subtopics\n")
	b.WriteString("   - Include relevant examples and real-world applications\n")
	b.WriteString("   - Mix serious discussion with appropriate lighter moments\n\n")

	b.WriteString("Remember:\n")
	fmt.Fprintf(&b, "- Keep the expertise level consistent: %s\n", expertise)
	fmt.Fprintf(&b, "- Maintain the %s\n", format)
	b.WriteString("- IMPORTANT: Strictly follow the format \"SpeakerName: Text\" with one line per speaker\n\n")
	b.WriteString("Begin the transcript:")
	return b.String()
}
