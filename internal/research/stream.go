package research

// PartType identifies the kind of event a Part carries on the wire.
type PartType string

const (
	PartNewChatCreated PartType = "data-newChatCreated"
	PartNewAction      PartType = "data-newAction"
	PartSources        PartType = "data-sources"
	PartUsage          PartType = "data-usage"
	PartClarification  PartType = "data-clarification"
	PartTextDelta      PartType = "text-delta"
	PartFinish         PartType = "finish"
)

// Part is the discriminated union the client wire protocol transmits: a
// typed event, with only the fields relevant to Type populated. ID is
// present on events that need client-side dedup (data-usage reuses a
// stable ID across emissions; every other event gets a fresh one).
type Part struct {
	Type PartType `json:"type"`
	ID   string   `json:"id,omitempty"`

	ChatID string `json:"chatId,omitempty"`

	Action   *Action `json:"action,omitempty"`
	Step     int     `json:"step,omitempty"`
	MaxSteps int     `json:"maxSteps,omitempty"`

	Sources []SearchSource `json:"sources,omitempty"`

	TotalTokens int `json:"totalTokens,omitempty"`

	Reason string `json:"reason,omitempty"`

	Text string `json:"text,omitempty"`
}

// StreamWriter is the single-producer sink the Agent Loop writes typed
// events to. Calls are sequential: the loop never writes concurrently.
type StreamWriter interface {
	Write(part Part) error
}
