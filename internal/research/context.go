// Package research implements the closed-loop research controller: a
// planner proposes actions, a search-and-summarize pipeline gathers
// evidence, and an answerer streams the final response. State for a single
// request lives in SystemContext and is never shared across requests.
package research

import (
	"fmt"
	"strings"

	"deepresearch/internal/llm"
)

// SearchSource is one search hit surfaced to the client before fetching.
type SearchSource struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
	Date    string `json:"date,omitempty"`
	Favicon string `json:"favicon,omitempty"`
}

// SearchEntry records one Search-and-Summarize pipeline run: the query that
// was issued, the sources it surfaced, and the per-source summary (or
// fallback text) produced for each.
type SearchEntry struct {
	Query     string
	Sources   []SearchSource
	Summaries []string
}

// UsageEntry is one reported LLM call's token accounting, labeled with a
// human-readable description of which stage made the call.
type UsageEntry struct {
	Description string
	Usage       llm.Usage
}

// UserLocation is the optional coarse location hint attached to a request.
type UserLocation struct {
	City    string
	Region  string
	Country string
}

// SystemContext holds all per-request state the pipeline stages read and
// write. It is not safe for concurrent use: the Agent Loop and its
// collaborators call it serially, and the Search-and-Summarize fan-out
// reports usage to it under its own mutex.
type SystemContext struct {
	messages     []llm.Message
	searches     []SearchEntry
	lastFeedback *string
	usage        []UsageEntry
	location     *UserLocation
	step         int
	maxSteps     int
}

// NewSystemContext builds a SystemContext seeded with the full conversation
// so far. maxSteps bounds the Agent Loop's iteration count.
func NewSystemContext(messages []llm.Message, location *UserLocation, maxSteps int) *SystemContext {
	if maxSteps <= 0 {
		maxSteps = 5
	}
	cp := make([]llm.Message, len(messages))
	copy(cp, messages)
	return &SystemContext{messages: cp, location: location, maxSteps: maxSteps}
}

// InitialQuestion returns the first user message in the conversation.
func (c *SystemContext) InitialQuestion() string {
	for _, m := range c.messages {
		if m.Role == llm.RoleUser {
			return m.Content
		}
	}
	return ""
}

// LatestUserMessage returns the last user message in the conversation.
func (c *SystemContext) LatestUserMessage() string {
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].Role == llm.RoleUser {
			return c.messages[i].Content
		}
	}
	return ""
}

// ConversationHistory renders the transcript as alternating "Human"/
// "Assistant" lines, suitable for prompt injection.
func (c *SystemContext) ConversationHistory() string {
	var b strings.Builder
	for _, m := range c.messages {
		switch m.Role {
		case llm.RoleUser:
			b.WriteString("Human: ")
		case llm.RoleAssistant:
			b.WriteString("Assistant: ")
		default:
			continue
		}
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return b.String()
}

// FullConversationMessages returns the ordered message list, unmodified.
func (c *SystemContext) FullConversationMessages() []llm.Message {
	out := make([]llm.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// ReportSearch appends a completed SearchEntry to the ledger.
func (c *SystemContext) ReportSearch(entry SearchEntry) {
	c.searches = append(c.searches, entry)
}

// SearchHistoryText deterministically renders every recorded search, grouped
// by query, for use verbatim in planner/answerer prompts.
func (c *SystemContext) SearchHistoryText() string {
	if len(c.searches) == 0 {
		return ""
	}
	var b strings.Builder
	for _, entry := range c.searches {
		fmt.Fprintf(&b, "Query: %s\n", entry.Query)
		for i, src := range entry.Sources {
			summary := ""
			if i < len(entry.Summaries) {
				summary = entry.Summaries[i]
			}
			fmt.Fprintf(&b, "- %s · %s · %s · <url_summary>%s</url_summary>\n", src.Title, src.URL, src.Snippet, summary)
		}
	}
	return b.String()
}

// SetLastFeedback records the planner's feedback for the next query
// rewrite, or clears it when nil.
func (c *SystemContext) SetLastFeedback(feedback *string) {
	c.lastFeedback = feedback
}

// LastFeedback returns the most recently recorded feedback, if any.
func (c *SystemContext) LastFeedback() *string {
	return c.lastFeedback
}

// ReportUsage appends one LLM call's token accounting to the ledger.
func (c *SystemContext) ReportUsage(description string, usage llm.Usage) {
	c.usage = append(c.usage, UsageEntry{Description: description, Usage: usage})
}

// UsageEntries returns every reported usage entry in report order.
func (c *SystemContext) UsageEntries() []UsageEntry {
	out := make([]UsageEntry, len(c.usage))
	copy(out, c.usage)
	return out
}

// TotalTokens sums TotalTokens across every reported usage entry.
func (c *SystemContext) TotalTokens() int {
	total := 0
	for _, u := range c.usage {
		total += u.Usage.TotalTokens
	}
	return total
}

// UserLocationContext returns a short preamble describing the user's
// location, or an empty string when no location was supplied.
func (c *SystemContext) UserLocationContext() string {
	if c.location == nil {
		return ""
	}
	parts := make([]string, 0, 3)
	if c.location.City != "" {
		parts = append(parts, c.location.City)
	}
	if c.location.Region != "" {
		parts = append(parts, c.location.Region)
	}
	if c.location.Country != "" {
		parts = append(parts, c.location.Country)
	}
	if len(parts) == 0 {
		return ""
	}
	return "About the origin of user's request: " + strings.Join(parts, ", ")
}

// CurrentStep returns the loop's current step counter.
func (c *SystemContext) CurrentStep() int {
	return c.step
}

// IncrementStep advances the step counter by one.
func (c *SystemContext) IncrementStep() {
	c.step++
}

// ShouldStop reports whether the loop has exhausted its step budget.
func (c *SystemContext) ShouldStop() bool {
	return c.step >= c.maxSteps
}
