package brief

import (
	"fmt"
	"strings"

	"github.com/thefalc/podcast-research-agent/pkg/domain"
)

// PassageDelimiter separates retrieved passages in the research material.
var PassageDelimiter = "\n" + strings.Repeat("=", 20) + "\n"

const querySystemPrompt = `You are an expert in research for a engineering podcast. Using the
guest name, company, topic, and context, create the best possible query to search a vector
database for relevant data mined from blog posts and existing podcasts.`

const briefInstructions = `Using the additional context, research material, and set of potential questions, create a
podcast research brief that contains relevant background about the guest and topic and a list
of 15 to 20 interesting questions that will help create a technical and interesting conversation.

For the questions, have a flow that begins with introductory type questions, then questions that lets
us get into technical details, wrapping up with questions about the future.

For each question, when relevant, add interesting points just below the question formatted as bullets
for you to make to help contribute to the conversation.

Make suggestions for additional context to weave into the conversation to
make the podcast engaging, interesting, and smart.

Make sure to format the response as HTML where sub headings use H tags, text is a <p>, and
numbered lists use <ol> so it can be rendered beautifully on a website`

// QueryPrompt returns the system and user messages that ask a model for a
// vector search query describing the bundle.
func QueryPrompt(b *domain.ResearchBundle) (system, user string) {
	var sb strings.Builder
	section(&sb, "Guest", b.GuestName)
	section(&sb, "Company", b.Company)
	section(&sb, "Topic", b.Topic)
	section(&sb, "Context", b.Context)
	sb.WriteString("Create a natural language search query given the data available.\n")
	return querySystemPrompt, sb.String()
}

// BriefPrompt returns the system and user messages for the research brief.
func BriefPrompt(b *domain.ResearchBundle, research, questions string) (system, user string) {
	system = fmt.Sprintf("You are a podcast host and expert in AI, databases, and data engineering.\n"+
		"You are interviewing %s from the company %s\nabout %s.\n\n%s",
		b.GuestName, b.Company, b.Topic, briefInstructions)

	var sb strings.Builder
	section(&sb, "Additional Context", b.Context)
	section(&sb, "Research Material", research)
	section(&sb, "Potential Questions", questions)
	sb.WriteString("Generate a podcast research brief and set of suggested questions based on the research available.\n")
	return system, sb.String()
}

// JoinPassages concatenates passage texts in the order given.
func JoinPassages(chunks []domain.ScoredChunk) string {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	return strings.Join(texts, PassageDelimiter)
}

// FlattenQuestions joins mined question blocks with newlines.
func FlattenQuestions(qs []domain.CandidateQuestion) string {
	parts := make([]string, 0, len(qs))
	for _, q := range qs {
		parts = append(parts, q.Questions)
	}
	return strings.Join(parts, "\n")
}

func section(sb *strings.Builder, title, body string) {
	sb.WriteString(title)
	sb.WriteString(":\n")
	sb.WriteString(body)
	sb.WriteString("\n\n")
}
