package json

import "github.com/fwojciec/relay"

type usageDTO struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

func marshalUsage(u relay.Usage) *usageDTO {
	if u == (relay.Usage{}) {
		return nil
	}
	return &usageDTO{InputTokens: u.InputTokens, OutputTokens: u.OutputTokens}
}

func unmarshalUsage(dto *usageDTO) relay.Usage {
	if dto == nil {
		return relay.Usage{}
	}
	return relay.Usage{InputTokens: dto.InputTokens, OutputTokens: dto.OutputTokens}
}
