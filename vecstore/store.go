// Package vecstore persists the course catalog and content chunks in SQLite
// and serves semantic search over an in-memory embedding index.
package vecstore

import (
	"bytes"
	"cmp"
	"context"
	"database/sql"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/victhorio/sage/embeddings"
	"github.com/victhorio/sage/rag"
	_ "modernc.org/sqlite"
)

// DefaultMaxResults caps how many passages a search returns.
const DefaultMaxResults = 5

type chunkEntry struct {
	content      string
	courseTitle  string
	lessonNumber *int
	vec          []float64
}

// Store implements rag.Index. SQLite is the source of truth; the full
// catalog and every chunk embedding are mirrored in memory, so searches
// never touch the database.
//
// TODO(refactor): move to a proper vector DB once catalogs outgrow what an
// in-memory scan handles comfortably.
type Store struct {
	db         *sql.DB
	embedder   embeddings.Embedder
	maxResults int

	mu        sync.RWMutex
	order     []string // course titles in insertion order
	courses   map[string]rag.CourseMetadata
	titleVecs map[string][]float64
	chunks    []chunkEntry
}

// NewStore opens (or creates) the store at path, which can be ":memory:"
// for an in-memory database. maxResults <= 0 selects DefaultMaxResults.
func NewStore(path string, embedder embeddings.Embedder, maxResults int) (*Store, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("vecstore: failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("vecstore: failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("vecstore: failed to enable WAL mode: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("vecstore: failed to initialize schema: %w", err)
	}

	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	s := &Store{
		db:         db,
		embedder:   embedder,
		maxResults: maxResults,
		courses:    make(map[string]rag.CourseMetadata),
		titleVecs:  make(map[string][]float64),
	}

	if err := s.load(); err != nil {
		db.Close()
		return nil, fmt.Errorf("vecstore: failed to load index: %w", err)
	}

	return s, nil
}

func initSchema(db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS courses (
			title TEXT PRIMARY KEY,
			instructor TEXT NOT NULL DEFAULT '',
			link TEXT NOT NULL DEFAULT '',
			title_embedding BLOB NOT NULL,
			position INTEGER NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS lessons (
			course_title TEXT NOT NULL REFERENCES courses(title),
			number INTEGER NOT NULL,
			title TEXT NOT NULL,
			link TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (course_title, number)
		);

		CREATE TABLE IF NOT EXISTS chunks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			course_title TEXT NOT NULL REFERENCES courses(title),
			lesson_number INTEGER,
			content TEXT NOT NULL,
			embedding BLOB NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_chunks_course_title
			ON chunks(course_title);
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// load mirrors the full database contents into the in-memory index.
func (s *Store) load() error {
	rows, err := s.db.Query("SELECT title, instructor, link, title_embedding FROM courses ORDER BY position ASC")
	if err != nil {
		return fmt.Errorf("failed to query courses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var meta rag.CourseMetadata
		var blob []byte
		if err := rows.Scan(&meta.Title, &meta.Instructor, &meta.Link, &blob); err != nil {
			return fmt.Errorf("failed to scan course: %w", err)
		}

		vec, err := decodeVector(blob)
		if err != nil {
			return fmt.Errorf("failed to decode title embedding for %q: %w", meta.Title, err)
		}

		s.order = append(s.order, meta.Title)
		s.courses[meta.Title] = meta
		s.titleVecs[meta.Title] = vec
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating courses: %w", err)
	}

	lessonRows, err := s.db.Query("SELECT course_title, number, title, link FROM lessons ORDER BY course_title, number ASC")
	if err != nil {
		return fmt.Errorf("failed to query lessons: %w", err)
	}
	defer lessonRows.Close()

	for lessonRows.Next() {
		var courseTitle string
		var lesson rag.Lesson
		if err := lessonRows.Scan(&courseTitle, &lesson.Number, &lesson.Title, &lesson.Link); err != nil {
			return fmt.Errorf("failed to scan lesson: %w", err)
		}

		meta, ok := s.courses[courseTitle]
		if !ok {
			return fmt.Errorf("lesson references unknown course %q", courseTitle)
		}
		meta.Lessons = append(meta.Lessons, lesson)
		s.courses[courseTitle] = meta
	}
	if err := lessonRows.Err(); err != nil {
		return fmt.Errorf("error iterating lessons: %w", err)
	}

	chunkRows, err := s.db.Query("SELECT course_title, lesson_number, content, embedding FROM chunks ORDER BY id ASC")
	if err != nil {
		return fmt.Errorf("failed to query chunks: %w", err)
	}
	defer chunkRows.Close()

	for chunkRows.Next() {
		var entry chunkEntry
		var lessonNumber sql.NullInt64
		var blob []byte
		if err := chunkRows.Scan(&entry.courseTitle, &lessonNumber, &entry.content, &blob); err != nil {
			return fmt.Errorf("failed to scan chunk: %w", err)
		}

		if lessonNumber.Valid {
			n := int(lessonNumber.Int64)
			entry.lessonNumber = &n
		}

		vec, err := decodeVector(blob)
		if err != nil {
			return fmt.Errorf("failed to decode chunk embedding: %w", err)
		}
		entry.vec = vec

		s.chunks = append(s.chunks, entry)
	}
	if err := chunkRows.Err(); err != nil {
		return fmt.Errorf("error iterating chunks: %w", err)
	}

	return nil
}

// AddCourse embeds the course title and all chunks, persists everything in
// one transaction and then extends the in-memory index. Returns an error if
// a course with the same title already exists.
func (s *Store) AddCourse(ctx context.Context, meta rag.CourseMetadata, chunks []rag.Chunk) error {
	if meta.Title == "" {
		return fmt.Errorf("vecstore: course title must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.courses[meta.Title]; exists {
		return fmt.Errorf("vecstore: course %q already exists", meta.Title)
	}

	// One embedding call for the title plus every chunk.
	inputs := make([]string, 0, len(chunks)+1)
	inputs = append(inputs, meta.Title)
	for _, c := range chunks {
		inputs = append(inputs, c.Content)
	}

	result, err := s.embedder.Embed(ctx, inputs)
	if err != nil {
		return fmt.Errorf("vecstore: failed to embed course %q: %w", meta.Title, err)
	}
	titleVec := result.Vectors[0]
	chunkVecs := result.Vectors[1:]

	// Persist to SQLite first so the database stays the source of truth.
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("vecstore: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	titleBlob, err := encodeVector(titleVec)
	if err != nil {
		return fmt.Errorf("vecstore: failed to encode title embedding: %w", err)
	}

	_, err = tx.Exec(
		"INSERT INTO courses (title, instructor, link, title_embedding, position) VALUES (?, ?, ?, ?, ?)",
		meta.Title, meta.Instructor, meta.Link, titleBlob, len(s.order),
	)
	if err != nil {
		return fmt.Errorf("vecstore: failed to insert course: %w", err)
	}

	lessonStmt, err := tx.Prepare("INSERT INTO lessons (course_title, number, title, link) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("vecstore: failed to prepare lesson insert: %w", err)
	}
	defer lessonStmt.Close()

	for _, lesson := range meta.Lessons {
		if _, err := lessonStmt.Exec(meta.Title, lesson.Number, lesson.Title, lesson.Link); err != nil {
			return fmt.Errorf("vecstore: failed to insert lesson %d: %w", lesson.Number, err)
		}
	}

	chunkStmt, err := tx.Prepare("INSERT INTO chunks (course_title, lesson_number, content, embedding) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("vecstore: failed to prepare chunk insert: %w", err)
	}
	defer chunkStmt.Close()

	for i, c := range chunks {
		blob, err := encodeVector(chunkVecs[i])
		if err != nil {
			return fmt.Errorf("vecstore: failed to encode chunk embedding: %w", err)
		}

		var lessonNumber any
		if c.LessonNumber != nil {
			lessonNumber = *c.LessonNumber
		}

		if _, err := chunkStmt.Exec(meta.Title, lessonNumber, c.Content, blob); err != nil {
			return fmt.Errorf("vecstore: failed to insert chunk: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("vecstore: failed to commit transaction: %w", err)
	}

	// Only extend the in-memory index after successful persistence.
	s.order = append(s.order, meta.Title)
	s.courses[meta.Title] = meta
	s.titleVecs[meta.Title] = titleVec
	for i, c := range chunks {
		s.chunks = append(s.chunks, chunkEntry{
			content:      c.Content,
			courseTitle:  meta.Title,
			lessonNumber: c.LessonNumber,
			vec:          chunkVecs[i],
		})
	}

	return nil
}

// Search ranks stored chunks against the query by cosine similarity,
// optionally narrowed to one course (fuzzy-matched) and one lesson.
// Failures are reported in-band via SearchResults.Err.
func (s *Store) Search(ctx context.Context, query, courseName string, lessonNumber *int) rag.SearchResults {
	resolvedTitle := ""
	if courseName != "" {
		title, ok := s.ResolveCourseName(ctx, courseName)
		if !ok {
			return rag.SearchResults{Err: fmt.Sprintf("No course found matching '%s'", courseName)}
		}
		resolvedTitle = title
	}

	qResult, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return rag.SearchResults{Err: fmt.Sprintf("Search error: %v", err)}
	}
	qVec := qResult.Vectors[0]

	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		entry chunkEntry
		score float64
	}

	top := make([]scored, 0, s.maxResults)
	for _, entry := range s.chunks {
		if resolvedTitle != "" && entry.courseTitle != resolvedTitle {
			continue
		}
		if lessonNumber != nil && (entry.lessonNumber == nil || *entry.lessonNumber != *lessonNumber) {
			continue
		}

		// Embeddings are unit vectors (guaranteed by OpenAI), so the dot
		// product is already the cosine similarity.
		score := dotProduct(qVec, entry.vec)

		if len(top) < s.maxResults {
			top = append(top, scored{entry: entry, score: score})
		} else if score > top[len(top)-1].score {
			top[len(top)-1] = scored{entry: entry, score: score}
		} else {
			continue
		}

		slices.SortFunc(top, func(a, b scored) int {
			return cmp.Compare(b.score, a.score)
		})
	}

	passages := make([]rag.Passage, 0, len(top))
	for _, sc := range top {
		passages = append(passages, rag.Passage{
			Content:      sc.entry.content,
			CourseTitle:  sc.entry.courseTitle,
			LessonNumber: sc.entry.lessonNumber,
			Distance:     1 - sc.score,
		})
	}

	return rag.SearchResults{Passages: passages}
}

// ResolveCourseName finds the stored course title semantically closest to
// name. An exact title match short-circuits the embedding call.
func (s *Store) ResolveCourseName(ctx context.Context, name string) (string, bool) {
	s.mu.RLock()
	if _, ok := s.courses[name]; ok {
		s.mu.RUnlock()
		return name, true
	}
	empty := len(s.order) == 0
	s.mu.RUnlock()

	if empty {
		return "", false
	}

	result, err := s.embedder.Embed(ctx, []string{name})
	if err != nil {
		return "", false
	}
	nameVec := result.Vectors[0]

	s.mu.RLock()
	defer s.mu.RUnlock()

	best := ""
	bestScore := 0.0
	for _, title := range s.order {
		score := dotProduct(nameVec, s.titleVecs[title])
		if best == "" || score > bestScore {
			best = title
			bestScore = score
		}
	}

	return best, best != ""
}

// CourseMetadata returns the stored metadata for an exact course title.
func (s *Store) CourseMetadata(title string) (rag.CourseMetadata, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	meta, ok := s.courses[title]
	return meta, ok
}

// LessonLink returns the link for one lesson of a course, if known.
func (s *Store) LessonLink(courseTitle string, lessonNumber int) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	meta, ok := s.courses[courseTitle]
	if !ok {
		return "", false
	}

	for _, lesson := range meta.Lessons {
		if lesson.Number == lessonNumber && lesson.Link != "" {
			return lesson.Link, true
		}
	}

	return "", false
}

// CourseCount returns how many courses the store holds.
func (s *Store) CourseCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.order)
}

// CourseTitles returns all course titles in insertion order.
func (s *Store) CourseTitles() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.order)
}

func dotProduct(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func encodeVector(vec []float64) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(vec); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeVector(blob []byte) ([]float64, error) {
	var vec []float64
	if err := gob.NewDecoder(bytes.NewReader(blob)).Decode(&vec); err != nil {
		return nil, err
	}
	return vec, nil
}
