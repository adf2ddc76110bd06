package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// SearchTool searches course content with semantic course-name matching and
// lesson filtering.
type SearchTool struct {
	def   ToolDefinition
	index Index
}

func NewSearchTool(index Index, def ToolDefinition) *SearchTool {
	return &SearchTool{def: def, index: index}
}

func (t *SearchTool) Definition() ToolDefinition {
	return t.def
}

type searchArgs struct {
	Query        string `json:"query"`
	CourseName   string `json:"course_name"`
	LessonNumber *int   `json:"lesson_number"`
}

func (t *SearchTool) Execute(ctx context.Context, raw json.RawMessage) (string, []Source, error) {
	var args searchArgs
	if err := decodeArgs(raw, &args); err != nil {
		return "", nil, err
	}

	// The index resolves the fuzzy course name before filtering; the raw
	// string passes straight through.
	results := t.index.Search(ctx, args.Query, args.CourseName, args.LessonNumber)

	// A search error goes back as the tool's result text so the model can
	// report it to the user.
	if results.Err != "" {
		return results.Err, nil, nil
	}

	if results.IsEmpty() {
		var filters string
		if args.CourseName != "" {
			filters += fmt.Sprintf(" in course '%s'", args.CourseName)
		}
		if args.LessonNumber != nil {
			filters += fmt.Sprintf(" in lesson %d", *args.LessonNumber)
		}
		return fmt.Sprintf("No relevant content found%s.", filters), nil, nil
	}

	return t.formatResults(results)
}

// formatResults renders passages in rank order, each under a course/lesson
// header tag, and builds one citation per passage.
func (t *SearchTool) formatResults(results SearchResults) (string, []Source, error) {
	formatted := make([]string, 0, len(results.Passages))
	sources := make([]Source, 0, len(results.Passages))

	for _, p := range results.Passages {
		title := p.CourseTitle
		if title == "" {
			title = "unknown"
		}

		header := fmt.Sprintf("[%s", title)
		sourceText := title
		if p.LessonNumber != nil {
			header += fmt.Sprintf(" - Lesson %d", *p.LessonNumber)
			sourceText += fmt.Sprintf(" - Lesson %d", *p.LessonNumber)
		}
		header += "]"

		source := Source{Text: sourceText}
		if p.CourseTitle != "" && p.LessonNumber != nil {
			if link, ok := t.index.LessonLink(p.CourseTitle, *p.LessonNumber); ok {
				source.Link = &link
			}
		}
		sources = append(sources, source)

		formatted = append(formatted, fmt.Sprintf("%s\n%s", header, p.Content))
	}

	return strings.Join(formatted, "\n\n"), sources, nil
}

// decodeArgs unmarshals tool arguments strictly, catching malformed
// invocations before they reach the index.
func decodeArgs(raw json.RawMessage, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	if dec.More() {
		return fmt.Errorf("invalid arguments: extra JSON values: %s", raw)
	}
	return nil
}
