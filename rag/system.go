package rag

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/victhorio/sage/session"
)

// CourseStore is the full retrieval backend: the Index the tools search
// through plus the catalog operations ingestion and analytics need.
type CourseStore interface {
	Index
	AddCourse(ctx context.Context, meta CourseMetadata, chunks []Chunk) error
	CourseCount() int
	CourseTitles() []string
}

// CourseParser turns one transcript file into metadata plus chunks.
type CourseParser interface {
	ParseFile(path string) (CourseMetadata, []Chunk, error)
}

// Analytics summarizes the stored catalog.
type Analytics struct {
	TotalCourses int      `json:"total_courses"`
	CourseTitles []string `json:"course_titles"`
}

// System is the top-level façade: it owns the registry, the generator and
// the session history, and exposes query, ingestion and analytics
// operations. Queries are serialized: the registry's citation slots belong
// to exactly one in-flight query at a time.
type System struct {
	mu        sync.Mutex
	store     CourseStore
	parser    CourseParser
	generator *Generator
	registry  *Registry
	sessions  *session.Manager
	maxRounds int
}

func NewSystem(
	store CourseStore,
	parser CourseParser,
	generator *Generator,
	registry *Registry,
	sessions *session.Manager,
	maxRounds int,
) *System {
	return &System{
		store:     store,
		parser:    parser,
		generator: generator,
		registry:  registry,
		sessions:  sessions,
		maxRounds: maxRounds,
	}
}

// Query answers one user question, returning the answer text and the
// sources cited by whatever retrieval the model performed.
func (s *System) Query(ctx context.Context, query, sessionID string) (string, []Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Stale citations from the previous query must never leak into this
	// one, even if no tool runs at all.
	s.registry.ResetSources()

	prompt := fmt.Sprintf("Answer this question about course materials: %s", query)

	answer, err := s.generator.Generate(ctx, prompt, GenerateOpts{
		History:    s.sessions.History(sessionID),
		Tools:      s.registry.Definitions(),
		Dispatcher: s.registry,
		MaxRounds:  s.maxRounds,
	})
	if err != nil {
		return "", nil, fmt.Errorf("rag: query failed: %w", err)
	}

	sources := s.registry.LastSources()

	if err := s.sessions.AddExchange(sessionID, query, answer); err != nil {
		log.Error("failed to record exchange", "session", sessionID, "err", err)
	}

	return answer, sources, nil
}

// NewSessionID issues a session identifier for a new conversation.
func (s *System) NewSessionID() string {
	return s.sessions.NewSessionID()
}

// Analytics reports what the catalog currently holds.
func (s *System) Analytics() Analytics {
	return Analytics{
		TotalCourses: s.store.CourseCount(),
		CourseTitles: s.store.CourseTitles(),
	}
}

// AddCourseFile ingests a single transcript. A course whose title is
// already stored is skipped, reporting zero chunks.
func (s *System) AddCourseFile(ctx context.Context, path string) (CourseMetadata, int, error) {
	meta, chunks, err := s.parser.ParseFile(path)
	if err != nil {
		return CourseMetadata{}, 0, fmt.Errorf("rag: failed to process %s: %w", path, err)
	}

	if _, exists := s.store.CourseMetadata(meta.Title); exists {
		log.Debug("course already stored, skipping", "title", meta.Title)
		return meta, 0, nil
	}

	if err := s.store.AddCourse(ctx, meta, chunks); err != nil {
		return CourseMetadata{}, 0, fmt.Errorf("rag: failed to store %s: %w", meta.Title, err)
	}

	log.Info("added course", "title", meta.Title, "chunks", len(chunks))
	return meta, len(chunks), nil
}

// AddCourseFolder ingests every .txt transcript in dir, skipping courses
// already stored. Returns how many new courses and chunks were added. A
// file that fails to parse is logged and skipped, not fatal.
func (s *System) AddCourseFolder(ctx context.Context, dir string) (int, int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, 0, fmt.Errorf("rag: failed to read folder %s: %w", dir, err)
	}

	var courses, chunks int
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		_, added, err := s.AddCourseFile(ctx, path)
		if err != nil {
			log.Error("failed to ingest transcript", "path", path, "err", err)
			continue
		}
		if added > 0 {
			courses++
			chunks += added
		}
	}

	return courses, chunks, nil
}
