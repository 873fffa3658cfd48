package prompts

import (
	"encoding/json"
	"slices"
)

// Stage identifies the model call a prompt override targets.
type Stage string

const (
	// StageTranscribe reads a rendered PDF page into text.
	StageTranscribe Stage = "transcribe"
	// StageDraft populates Form 1120 from extracted financial data.
	StageDraft Stage = "draft"
	// StageAdjust suggests a correction for a flagged diagnostic issue.
	StageAdjust Stage = "adjust"
)

var stages = []Stage{
	StageTranscribe,
	StageDraft,
	StageAdjust,
}

// Stages returns the list of valid stages.
func Stages() []Stage {
	return slices.Clone(stages)
}

// UnmarshalJSON validates that the decoded string is a known stage value.
func (s *Stage) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	v, err := ParseStage(raw)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseStage validates s as a known stage.
func ParseStage(s string) (Stage, error) {
	v := Stage(s)
	if !slices.Contains(stages, v) {
		return "", ErrInvalidStage
	}
	return v, nil
}
