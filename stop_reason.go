package relay

// FinishReason indicates why a model step ended.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishLength        FinishReason = "length"
	FinishToolCalls     FinishReason = "tool-calls"
	FinishContentFilter FinishReason = "content-filter"
	FinishError         FinishReason = "error"
	FinishAborted       FinishReason = "aborted"
	FinishUnknown       FinishReason = "unknown"
)
