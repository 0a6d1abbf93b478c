package content

import "fmt"

const extractionPrompt = `Here is the content of a webpage:
%s%s

Instructions:
- If there is a blog post within this content, extract and return the main text of the blog post.
- If there is no blog post, summarize the most important information on the page.`

// ExtractionPrompt builds the instruction sent with normalized page text.
// An empty title is left out.
func ExtractionPrompt(title, pageText string) string {
	var heading string
	if title != "" {
		heading = "Title: " + title + "\n"
	}
	return fmt.Sprintf(extractionPrompt, heading, pageText)
}
