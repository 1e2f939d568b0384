package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"guitargpt/internal/models"
)

type structuredReply struct {
	Message []models.Segment `json:"message"`
}

// parseSegments decodes the model's structured reply. Models occasionally
// wrap the JSON in markdown fences or prose despite instructions, so the
// object is extracted before decoding.
func parseSegments(content string) ([]models.Segment, error) {
	raw := extractJSON(content)
	if raw == "" {
		return nil, errors.New("no JSON object in response")
	}
	var reply structuredReply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(reply.Message) == 0 {
		return nil, errors.New("empty segment list")
	}
	for i, seg := range reply.Message {
		switch seg.Kind {
		case models.SegmentText:
			if seg.Message == "" {
				return nil, fmt.Errorf("segment %d: empty text segment", i)
			}
		case models.SegmentNotes:
			if len(seg.Notes) == 0 {
				return nil, fmt.Errorf("segment %d: empty note sequence", i)
			}
			for j, note := range seg.Notes {
				if err := note.Validate(); err != nil {
					return nil, fmt.Errorf("segment %d note %d: %w", i, j, err)
				}
			}
		default:
			return nil, fmt.Errorf("segment %d: unknown kind %q", i, seg.Kind)
		}
	}
	return reply.Message, nil
}

// extractJSON returns the outermost {...} object in the text.
func extractJSON(content string) string {
	content = strings.TrimSpace(content)
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return ""
	}
	return content[start : end+1]
}
