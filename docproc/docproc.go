// Package docproc parses course transcript files and splits their content
// into overlapping, sentence-aligned chunks ready for embedding.
//
// A transcript starts with a header block:
//
//	Course Title: Building Towards Computer Use
//	Course Link: https://example.com/course
//	Course Instructor: Colt Steele
//
// followed by lesson sections introduced by "Lesson N: Title" lines, each
// optionally followed by a "Lesson Link:" line.
package docproc

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/victhorio/sage/rag"
)

const (
	DefaultChunkSize    = 800
	DefaultChunkOverlap = 100
)

// Processor turns transcripts into course metadata plus embeddable chunks.
type Processor struct {
	chunkSize    int
	chunkOverlap int
}

// NewProcessor creates a Processor. Non-positive size or overlap selects the
// defaults; overlap is clamped below size.
func NewProcessor(chunkSize, chunkOverlap int) *Processor {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap <= 0 {
		chunkOverlap = DefaultChunkOverlap
	}
	if chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 4
	}
	return &Processor{chunkSize: chunkSize, chunkOverlap: chunkOverlap}
}

var lessonHeaderRe = regexp.MustCompile(`^Lesson\s+(\d+):\s*(.*)$`)

// ParseFile parses the transcript at path.
func (p *Processor) ParseFile(path string) (rag.CourseMetadata, []rag.Chunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return rag.CourseMetadata{}, nil, fmt.Errorf("docproc: failed to open %s: %w", path, err)
	}
	defer f.Close()

	meta, chunks, err := p.Parse(f)
	if err != nil {
		return rag.CourseMetadata{}, nil, fmt.Errorf("docproc: failed to parse %s: %w", path, err)
	}
	return meta, chunks, nil
}

// Parse reads a complete transcript from r.
func (p *Processor) Parse(r io.Reader) (rag.CourseMetadata, []rag.Chunk, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var meta rag.CourseMetadata
	var chunks []rag.Chunk

	// Content accumulates per section; currentLesson is nil for the
	// course-level text that precedes the first lesson header.
	var currentLesson *int
	var section []string

	flush := func() {
		text := strings.TrimSpace(strings.Join(section, "\n"))
		section = section[:0]
		if text == "" {
			return
		}

		for _, piece := range p.ChunkText(text) {
			content := piece
			if currentLesson != nil {
				content = fmt.Sprintf("Lesson %d content: %s", *currentLesson, piece)
			}
			chunks = append(chunks, rag.Chunk{
				Content:      content,
				LessonNumber: currentLesson,
			})
		}
	}

	inHeader := true
	expectLessonLink := false

	for scanner.Scan() {
		line := scanner.Text()

		if inHeader {
			switch {
			case strings.HasPrefix(line, "Course Title:"):
				meta.Title = strings.TrimSpace(strings.TrimPrefix(line, "Course Title:"))
				continue
			case strings.HasPrefix(line, "Course Link:"):
				meta.Link = strings.TrimSpace(strings.TrimPrefix(line, "Course Link:"))
				continue
			case strings.HasPrefix(line, "Course Instructor:"):
				meta.Instructor = strings.TrimSpace(strings.TrimPrefix(line, "Course Instructor:"))
				continue
			case strings.TrimSpace(line) == "":
				continue
			}
			inHeader = false
		}

		if m := lessonHeaderRe.FindStringSubmatch(line); m != nil {
			flush()

			number, err := strconv.Atoi(m[1])
			if err != nil {
				return rag.CourseMetadata{}, nil, fmt.Errorf("invalid lesson number %q: %w", m[1], err)
			}

			meta.Lessons = append(meta.Lessons, rag.Lesson{
				Number: number,
				Title:  strings.TrimSpace(m[2]),
			})
			n := number
			currentLesson = &n
			expectLessonLink = true
			continue
		}

		if expectLessonLink {
			expectLessonLink = false
			if strings.HasPrefix(line, "Lesson Link:") {
				meta.Lessons[len(meta.Lessons)-1].Link = strings.TrimSpace(strings.TrimPrefix(line, "Lesson Link:"))
				continue
			}
		}

		section = append(section, line)
	}
	if err := scanner.Err(); err != nil {
		return rag.CourseMetadata{}, nil, fmt.Errorf("failed to read transcript: %w", err)
	}

	flush()

	if meta.Title == "" {
		return rag.CourseMetadata{}, nil, fmt.Errorf("transcript has no 'Course Title:' header")
	}

	return meta, chunks, nil
}

// ChunkText splits text into chunks of at most the configured size, breaking
// on sentence boundaries and carrying roughly chunkOverlap characters of
// trailing sentences into the next chunk.
func (p *Processor) ChunkText(text string) []string {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var chunks []string
	var current []string
	currentLen := 0

	emit := func() {
		if len(current) == 0 {
			return
		}
		chunks = append(chunks, strings.Join(current, " "))

		// Seed the next chunk with trailing sentences until the overlap
		// budget is covered.
		var carry []string
		carryLen := 0
		for i := len(current) - 1; i >= 0 && carryLen < p.chunkOverlap; i-- {
			carry = append([]string{current[i]}, carry...)
			carryLen += len(current[i]) + 1
		}
		// A single oversized sentence must not repeat forever.
		if len(carry) == len(current) {
			carry = nil
			carryLen = 0
		}
		current = carry
		currentLen = carryLen
	}

	for _, sentence := range sentences {
		if currentLen > 0 && currentLen+len(sentence)+1 > p.chunkSize {
			emit()
		}
		current = append(current, sentence)
		currentLen += len(sentence) + 1
	}

	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}

	return chunks
}

var sentenceEndRe = regexp.MustCompile(`[.!?]+["')\]]*\s+`)

// splitSentences performs a naive sentence split on terminal punctuation.
// Whitespace is normalized; abbreviations are not special-cased.
func splitSentences(text string) []string {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return nil
	}

	var sentences []string
	start := 0
	for _, loc := range sentenceEndRe.FindAllStringIndex(text, -1) {
		// loc[1] sits just past the whitespace that ends the sentence.
		sentence := strings.TrimSpace(text[start:loc[1]])
		if sentence != "" {
			sentences = append(sentences, sentence)
		}
		start = loc[1]
	}

	if rest := strings.TrimSpace(text[start:]); rest != "" {
		sentences = append(sentences, rest)
	}

	return sentences
}
