package prompts

import (
	"embed"
	"fmt"

	"github.com/goccy/go-yaml"
	"github.com/victhorio/sage/rag"
)

//go:embed sage.txt
var SageSysPrompt string

//go:embed tools/*.yaml
var toolSpecs embed.FS

// LoadToolSpec loads a tool specification from the embedded YAML files.
// The name should be the wire name of the tool (e.g., "search_course_content").
// Returns an error if the spec file is missing or malformed.
func LoadToolSpec(name string) (rag.ToolDefinition, error) {
	filename := fmt.Sprintf("tools/%s.yaml", name)
	data, err := toolSpecs.ReadFile(filename)
	if err != nil {
		return rag.ToolDefinition{}, fmt.Errorf("failed to read tool spec %s: %w", filename, err)
	}

	var spec rag.ToolDefinition
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return rag.ToolDefinition{}, fmt.Errorf("failed to unmarshal tool spec %s: %w", filename, err)
	}

	return spec, nil
}
