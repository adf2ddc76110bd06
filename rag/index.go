package rag

import "context"

// Chunk is one embeddable piece of course content produced by ingestion.
// LessonNumber is nil for course-level text that precedes any lesson.
type Chunk struct {
	Content      string
	LessonNumber *int
}

// Passage is one ranked chunk of course content returned by a search.
// LessonNumber is nil for course-level content that belongs to no lesson.
type Passage struct {
	Content      string
	CourseTitle  string
	LessonNumber *int
	Distance     float64
}

// SearchResults is the outcome of one index search. Err set means the
// search failed and Passages is empty; empty Passages with no Err is the
// valid "nothing matched" case.
type SearchResults struct {
	Passages []Passage
	Err      string
}

func (r SearchResults) IsEmpty() bool {
	return len(r.Passages) == 0
}

type Lesson struct {
	Number int    `json:"lesson_number" yaml:"number"`
	Title  string `json:"lesson_title" yaml:"title"`
	Link   string `json:"lesson_link,omitempty" yaml:"link"`
}

type CourseMetadata struct {
	Title      string
	Instructor string
	Link       string
	Lessons    []Lesson
}

// Index is the retrieval collaborator the tools narrow their searches
// through. Fuzzy course-name resolution is an index concern: Search
// receives the raw courseName string and resolves it itself.
type Index interface {
	Search(ctx context.Context, query, courseName string, lessonNumber *int) SearchResults
	ResolveCourseName(ctx context.Context, name string) (string, bool)
	CourseMetadata(title string) (CourseMetadata, bool)
	LessonLink(courseTitle string, lessonNumber int) (string, bool)
}
