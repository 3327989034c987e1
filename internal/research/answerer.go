package research

import (
	"context"
	"fmt"
	"strings"
	"time"

	"deepresearch/internal/llm"
)

// Answerer streams the final response for a request. Its raw LLM text
// stream is passed through a markdown-joiner (so multi-delta markdown
// tokens like "**bo" + "ld**" are never split across wire events) and a
// smoothing stage (small word-chunked deltas with a short inter-chunk
// delay, for a more natural typing cadence on the client).
type Answerer struct {
	Gateway     llm.Gateway
	SmoothDelay time.Duration
}

const answererStyleGuide = `Style guide: write markdown. Use footnote-style citations only: reference
sources as [^n] inline and define them at the end as [^n]: url. Never write an
inline [text](url) link in the final answer.`

// Answer streams the final answer for the current SystemContext. When
// isFinal is true, the prompt instructs the model to answer best-effort and
// acknowledge any gaps in the gathered evidence.
func (a *Answerer) Answer(ctx context.Context, sc *SystemContext, isFinal bool, w StreamWriter) error {
	finalNote := ""
	if isFinal {
		finalNote = "\nThe research budget is exhausted. Answer best-effort with the evidence gathered so far and acknowledge any gaps."
	}

	prompt := fmt.Sprintf(`Current date: %s
%s
%s

Initial question: %s
Conversation so far:
%s
Latest user message: %s

Search evidence:
%s
%s`,
		time.Now().UTC().Format("2006-01-02"),
		sc.UserLocationContext(),
		answererStyleGuide,
		sc.InitialQuestion(),
		sc.ConversationHistory(),
		sc.LatestUserMessage(),
		orNone(sc.SearchHistoryText()),
		finalNote,
	)

	msgs := []llm.Message{
		{Role: llm.RoleSystem, Content: "You are the final-answer stage of a research agent."},
		{Role: llm.RoleUser, Content: prompt},
	}

	deltas, err := a.Gateway.StreamText(ctx, msgs)
	if err != nil {
		return fmt.Errorf("answerer: stream text: %w", err)
	}

	delay := a.SmoothDelay
	if delay <= 0 {
		delay = 15 * time.Millisecond
	}

	joiner := &markdownJoiner{}
	var finalUsage llm.Usage
	for delta := range deltas {
		if delta.Text != "" {
			if flushed, ok := joiner.push(delta.Text); ok {
				if err := smoothEmit(ctx, w, flushed, delay); err != nil {
					return err
				}
			}
		}
		if delta.Done {
			finalUsage = delta.Usage
		}
	}
	if rest := joiner.flush(); rest != "" {
		if err := smoothEmit(ctx, w, rest, delay); err != nil {
			return err
		}
	}

	sc.ReportUsage("answerer", finalUsage)
	return nil
}

// markdownJoiner buffers text deltas until the accumulated buffer has no
// unterminated markdown emphasis/code-span marker or footnote-citation
// token ([, ](, [^, ]:), so a later flush never splits a token mid-syntax.
type markdownJoiner struct {
	buf strings.Builder
}

func (j *markdownJoiner) push(delta string) (string, bool) {
	j.buf.WriteString(delta)
	s := j.buf.String()
	if markdownBalanced(s) {
		j.buf.Reset()
		return s, true
	}
	return "", false
}

func (j *markdownJoiner) flush() string {
	s := j.buf.String()
	j.buf.Reset()
	return s
}

func markdownBalanced(s string) bool {
	return strings.Count(s, "**")%2 == 0 &&
		strings.Count(s, "`")%2 == 0 &&
		strings.Count(s, "__")%2 == 0 &&
		!endsWithOpenFootnoteToken(s)
}

// endsWithOpenFootnoteToken reports whether s ends mid-way through one of
// the footnote-citation tokens the answer format's style guide centers on:
// an unclosed "[" (covers "[" and "[^" alike), an unclosed "](" awaiting its
// closing ")", or a trailing "]:" awaiting the url that follows it.
func endsWithOpenFootnoteToken(s string) bool {
	if strings.HasSuffix(s, "]:") {
		return true
	}
	if lastOpen, lastClose := strings.LastIndex(s, "["), strings.LastIndex(s, "]"); lastOpen > lastClose {
		return true
	}
	if parenOpen := strings.LastIndex(s, "]("); parenOpen >= 0 {
		if lastClose := strings.LastIndex(s, ")"); lastClose < parenOpen {
			return true
		}
	}
	return false
}

// smoothEmit splits text into word-sized chunks (preserving the original
// spacing) and writes each as its own text-delta event, pausing delay
// between chunks.
func smoothEmit(ctx context.Context, w StreamWriter, text string, delay time.Duration) error {
	chunks := splitKeepingTrailingSpace(text)
	for _, chunk := range chunks {
		if err := w.Write(Part{Type: PartTextDelta, Text: chunk}); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil
}

func splitKeepingTrailingSpace(s string) []string {
	var chunks []string
	var cur strings.Builder
	for _, r := range s {
		cur.WriteRune(r)
		if r == ' ' || r == '\n' {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
	}
	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks
}
