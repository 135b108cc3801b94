package pipeline

import (
	"log/slog"
	"strings"

	"github.com/IshaanNene/bookharvest/internal/types"
)

// Middleware transforms a record. Middleware never drops records; a row
// that reached the table stays in it.
type Middleware interface {
	// Name returns the middleware's identifier.
	Name() string

	// Process returns the transformed record.
	Process(rec types.BookRecord) (types.BookRecord, error)
}

// Pipeline chains middleware processors together.
type Pipeline struct {
	middlewares []Middleware
	logger      *slog.Logger
}

// New creates a new Pipeline.
func New(logger *slog.Logger) *Pipeline {
	return &Pipeline{
		logger: logger.With("component", "pipeline"),
	}
}

// Default returns the normalizing pipeline used by the scrape drivers.
func Default(logger *slog.Logger) *Pipeline {
	p := New(logger)
	p.Use(NewWhitespaceMiddleware())
	p.Use(&TrimMiddleware{})
	return p
}

// Use adds a middleware to the pipeline chain.
func (p *Pipeline) Use(mw Middleware) {
	p.middlewares = append(p.middlewares, mw)
	p.logger.Debug("middleware added", "name", mw.Name(), "position", len(p.middlewares))
}

// Process runs the record through all middleware in order. On error the
// input record is returned unchanged alongside a PipelineError.
func (p *Pipeline) Process(rec types.BookRecord) (types.BookRecord, error) {
	current := rec.Clone()

	for _, mw := range p.middlewares {
		result, err := mw.Process(current)
		if err != nil {
			failed := current
			return rec, &types.PipelineError{
				Stage:  mw.Name(),
				Record: &failed,
				Err:    err,
			}
		}
		current = result
	}

	return current, nil
}

// Len returns the number of middleware in the chain.
func (p *Pipeline) Len() int {
	return len(p.middlewares)
}

// --- Built-in Middleware ---

// TrimMiddleware trims whitespace from every field and drops blank author
// names. The author list is never nil afterwards.
type TrimMiddleware struct{}

func (m *TrimMiddleware) Name() string { return "trim" }

func (m *TrimMiddleware) Process(rec types.BookRecord) (types.BookRecord, error) {
	for _, field := range stringFields(&rec) {
		*field = strings.TrimSpace(*field)
	}

	authors := make([]string, 0, len(rec.Authors))
	for _, a := range rec.Authors {
		if a = strings.TrimSpace(a); a != "" {
			authors = append(authors, a)
		}
	}
	rec.Authors = authors
	return rec, nil
}

// stringFields returns pointers to every scalar field of rec.
func stringFields(rec *types.BookRecord) []*string {
	return []*string{
		&rec.Title,
		&rec.Website,
		&rec.Genre,
		&rec.Description,
		&rec.EPUB,
		&rec.PDF,
	}
}

