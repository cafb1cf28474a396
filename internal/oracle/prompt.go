package oracle

import (
	"fmt"
	"strings"
)

// classifyPromptTemplate asks the model to pick exactly one tag for a piece of
// feedback, or "unknown" when nothing fits. The <tag></tag> envelope is what
// ExtractTag parses.
const classifyPromptTemplate = `You are tasked with selecting an appropriate tag from the given list based on user feedback enclosed within the <feedback> XML tag.

Here is the list of potential tags:
<tags>
%s
</tags>

<title>
%s
</title>

<feedback>
%s
</feedback>

Please choose only one tag from the list and respond within <tag></tag> tags. If none of the tags above are suitable for the feedback or there is not enough information, return "unknown". No explanation is required. No need to echo the tag list or the feedback.`

// suggestPromptTemplate asks the model to name the most common issue across a
// set of feedback samples, or the NoNewTag sentinel when there is none.
const suggestPromptTemplate = `You are tasked with extracting the most common issue from a list of user feedback enclosed within the <feedback> XML tag.

Here is the list of user feedback:
<feedback>
%s
</feedback>

Please summarize the common issue, if there is any related to the software, in first person view in less than 15 words and respond within <tag></tag> tags. Otherwise respond "No New Tag" within <tag></tag> tags.`

// NoNewTag is the sentinel answer the suggest prompt instructs the model to
// give when the samples share no common issue. Compared case-insensitively.
const NoNewTag = "No New Tag"

// BuildClassifyPrompt renders the classification prompt for one feedback record.
func BuildClassifyPrompt(labels []string, title, feedback string) string {
	return fmt.Sprintf(classifyPromptTemplate, strings.Join(labels, "\n"), title, feedback)
}

// BuildSuggestPrompt renders the label-suggestion prompt for a cluster of samples.
func BuildSuggestPrompt(samples []string) string {
	lines := make([]string, len(samples))
	for i, s := range samples {
		lines[i] = "- " + s
	}

	return fmt.Sprintf(suggestPromptTemplate, strings.Join(lines, "\n"))
}
