package rag

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// OutlineTool returns a course's full structure: title, instructor, link
// and the ordered lesson list.
type OutlineTool struct {
	def   ToolDefinition
	index Index
}

func NewOutlineTool(index Index, def ToolDefinition) *OutlineTool {
	return &OutlineTool{def: def, index: index}
}

func (t *OutlineTool) Definition() ToolDefinition {
	return t.def
}

type outlineArgs struct {
	CourseTitle string `json:"course_title"`
}

func (t *OutlineTool) Execute(ctx context.Context, raw json.RawMessage) (string, []Source, error) {
	var args outlineArgs
	if err := decodeArgs(raw, &args); err != nil {
		return "", nil, err
	}

	// A failed resolution is not exceptional, just an empty result.
	resolved, ok := t.index.ResolveCourseName(ctx, args.CourseTitle)
	if !ok {
		return fmt.Sprintf("No course found matching '%s'", args.CourseTitle), nil, nil
	}

	meta, ok := t.index.CourseMetadata(resolved)
	if !ok {
		// Internal inconsistency: the title resolved but carries no
		// metadata. Reported, not raised.
		return fmt.Sprintf("Course metadata not found for '%s'", resolved), nil, nil
	}

	return t.formatOutline(meta)
}

func (t *OutlineTool) formatOutline(meta CourseMetadata) (string, []Source, error) {
	parts := []string{
		fmt.Sprintf("**Course Title:** %s", meta.Title),
		fmt.Sprintf("**Course Instructor:** %s", meta.Instructor),
	}

	if meta.Link != "" {
		parts = append(parts, fmt.Sprintf("**Course Link:** %s", meta.Link))
	}

	if len(meta.Lessons) > 0 {
		lessons := slices.Clone(meta.Lessons)
		slices.SortFunc(lessons, func(a, b Lesson) int {
			return cmp.Compare(a.Number, b.Number)
		})

		parts = append(parts, fmt.Sprintf("**Total Lessons:** %d", len(lessons)))
		parts = append(parts, "\n**Course Outline:**")
		for _, lesson := range lessons {
			parts = append(parts, fmt.Sprintf("Lesson %d: %s", lesson.Number, lesson.Title))
		}
	} else {
		parts = append(parts, "**No lessons found for this course**")
	}

	source := Source{Text: meta.Title}
	if meta.Link != "" {
		link := meta.Link
		source.Link = &link
	}

	return strings.Join(parts, "\n"), []Source{source}, nil
}
