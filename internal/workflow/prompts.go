package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/JaimeStill/taxdraft/internal/prompts"
)

// ComposePrompt builds a prompt by combining the tunable instructions and
// the immutable response specification for stage, followed by sections
// separated by blank lines.
func ComposePrompt(
	ctx context.Context,
	resolver prompts.Resolver,
	stage prompts.Stage,
	sections ...string,
) (string, error) {
	instructions, err := resolver.Instructions(ctx, stage)
	if err != nil {
		return "", fmt.Errorf("load instructions for %s: %w", stage, err)
	}

	spec, err := resolver.Spec(ctx, stage)
	if err != nil {
		return "", fmt.Errorf("load spec for %s: %w", stage, err)
	}

	var sb strings.Builder
	sb.WriteString(instructions)
	sb.WriteString("\n\n")
	sb.WriteString(spec)

	for _, section := range sections {
		if section == "" {
			continue
		}
		sb.WriteString("\n\n")
		sb.WriteString(section)
	}

	return sb.String(), nil
}
