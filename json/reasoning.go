package json

import (
	"encoding/json"
	"fmt"

	"github.com/fwojciec/relay"
)

type artifactDTO struct {
	Name     string `json:"name"`
	Content  string `json:"content"`
	Language string `json:"language,omitempty"`
}

type reasoningDTO struct {
	ID       string        `json:"id"`
	Type     string        `json:"type"`
	Title    string        `json:"title"`
	Body     string        `json:"body,omitempty"`
	Files    []artifactDTO `json:"files,omitempty"`
	Pills    []string      `json:"pills,omitempty"`
	Finished bool          `json:"finished,omitempty"`
	Status   string        `json:"status"`
	Elapsed  string        `json:"elapsed,omitempty"`
}

type responseDTO struct {
	ID       string `json:"id"`
	ToolName string `json:"tool_name"`
	Text     string `json:"text"`
}

func marshalReasoning(entries []relay.ReasoningEntry) []reasoningDTO {
	dtos := make([]reasoningDTO, len(entries))
	for i, e := range entries {
		dto := reasoningDTO{
			ID:       e.ID,
			Type:     string(e.Type),
			Title:    e.Title,
			Body:     e.Body,
			Pills:    e.Pills,
			Finished: e.Finished,
			Status:   string(e.Status),
			Elapsed:  e.Elapsed,
		}
		for _, f := range e.Files {
			dto.Files = append(dto.Files, artifactDTO(f))
		}
		dtos[i] = dto
	}
	return dtos
}

func unmarshalReasoning(dtos []reasoningDTO) []relay.ReasoningEntry {
	if dtos == nil {
		return nil
	}
	entries := make([]relay.ReasoningEntry, len(dtos))
	for i, dto := range dtos {
		e := relay.ReasoningEntry{
			ID:       dto.ID,
			Type:     relay.ReasoningType(dto.Type),
			Title:    dto.Title,
			Body:     dto.Body,
			Pills:    dto.Pills,
			Finished: dto.Finished,
			Status:   relay.ReasoningStatus(dto.Status),
			Elapsed:  dto.Elapsed,
		}
		for _, f := range dto.Files {
			e.Files = append(e.Files, relay.Artifact(f))
		}
		entries[i] = e
	}
	return entries
}

func marshalResponses(entries []relay.ResponseEntry) []responseDTO {
	if entries == nil {
		return nil
	}
	dtos := make([]responseDTO, len(entries))
	for i, e := range entries {
		dtos[i] = responseDTO(e)
	}
	return dtos
}

func unmarshalResponses(dtos []responseDTO) []relay.ResponseEntry {
	if dtos == nil {
		return nil
	}
	entries := make([]relay.ResponseEntry, len(dtos))
	for i, dto := range dtos {
		entries[i] = relay.ResponseEntry(dto)
	}
	return entries
}

// MarshalReasoning serializes reasoning entries to a JSON array.
func MarshalReasoning(entries []relay.ReasoningEntry) ([]byte, error) {
	return json.Marshal(marshalReasoning(entries))
}

// UnmarshalReasoning deserializes a JSON array of reasoning entries.
func UnmarshalReasoning(data []byte) ([]relay.ReasoningEntry, error) {
	var dtos []reasoningDTO
	if err := json.Unmarshal(data, &dtos); err != nil {
		return nil, fmt.Errorf("unmarshal reasoning: %w", err)
	}
	return unmarshalReasoning(dtos), nil
}

// MarshalResponses serializes response entries to a JSON array.
func MarshalResponses(entries []relay.ResponseEntry) ([]byte, error) {
	dtos := marshalResponses(entries)
	if dtos == nil {
		dtos = []responseDTO{}
	}
	return json.Marshal(dtos)
}

// UnmarshalResponses deserializes a JSON array of response entries.
func UnmarshalResponses(data []byte) ([]relay.ResponseEntry, error) {
	var dtos []responseDTO
	if err := json.Unmarshal(data, &dtos); err != nil {
		return nil, fmt.Errorf("unmarshal responses: %w", err)
	}
	return unmarshalResponses(dtos), nil
}
