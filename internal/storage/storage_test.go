package storage

import (
	"bufio"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IshaanNene/bookharvest/internal/config"
	"github.com/IshaanNene/bookharvest/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func sampleRecords() []types.BookRecord {
	enriched := types.NewBookRecord([]string{"Terry Pratchett", "Neil Gaiman"}, `Buenos presagios, "edición" especial`, "https://www.lectulandia.co/book/buenos-presagios/")
	enriched.Genre = "Fantasía / Humor"
	enriched.Description = "Línea uno,\nlínea dos."
	enriched.EPUB = "https://www.lectulandia.co/download.php?d=epub"
	enriched.PDF = "https://www.lectulandia.co/download.php?d=pdf"

	return []types.BookRecord{
		enriched,
		types.NewBookRecord(nil, "Lazarillo de Tormes", "https://www.lectulandia.co/book/lazarillo/"),
		types.NewBookRecord([]string{"Ana"}, "Ñandú", "https://www.lectulandia.co/book/nandu/"),
	}
}

func TestCSVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "books.csv")

	s, err := NewCSVStorage(path, testLogger)
	require.NoError(t, err)
	require.NoError(t, s.Store(sampleRecords()))

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "file must not be visible before Close")

	require.NoError(t, s.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), "\ufeffauthor,title,website,genre,description,epub,pdf\n"))

	got, err := ReadCSV(path)
	require.NoError(t, err)
	want := types.NewTable(sampleRecords()).Records()
	assert.Equal(t, want, got)
	assert.Equal(t, []string{}, got[1].Authors)
}

func TestCSVAuthorCell(t *testing.T) {
	path := filepath.Join(t.TempDir(), "books.csv")
	s, err := NewCSVStorage(path, testLogger)
	require.NoError(t, err)
	require.NoError(t, s.Store(sampleRecords()[:2]))
	require.NoError(t, s.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	sc := bufio.NewScanner(f)
	require.True(t, sc.Scan()) // header
	require.True(t, sc.Scan())
	assert.True(t, strings.HasPrefix(sc.Text(), `"[""Terry Pratchett"",""Neil Gaiman""]"`), sc.Text())
}

func TestReadCSVWithoutBOM(t *testing.T) {
	input := "author,title,website,genre,description,epub,pdf\n" +
		"Jorge Luis Borges,Ficciones,https://example.com/f/,,,,\n"
	got, err := decodeCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []string{"Jorge Luis Borges"}, got[0].Authors)
	assert.Equal(t, "Ficciones", got[0].Title)
}

func TestReadCSVRejectsForeignHeader(t *testing.T) {
	input := "\ufefftitle,author,website,genre,description,epub,pdf\n"
	_, err := decodeCSV(strings.NewReader(input))
	assert.Error(t, err)
}

func TestReadCSVEmptyFile(t *testing.T) {
	got, err := decodeCSV(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestJSONLStorage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "books.jsonl")
	s, err := NewJSONLStorage(path, testLogger)
	require.NoError(t, err)
	require.NoError(t, s.Store(sampleRecords()))
	require.NoError(t, s.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		lines = append(lines, m)
	}
	require.Len(t, lines, 3)
	assert.Equal(t, []any{}, lines[1]["author"])
	assert.Equal(t, "Fantasía / Humor", lines[0]["genre"])
}

func TestCheckpointerSave(t *testing.T) {
	cfg := config.DefaultConfig().Storage
	cfg.OutputPath = filepath.Join(t.TempDir(), "data", "raw_data")
	cfg.Formats = []string{"csv", "jsonl"}

	c := NewCheckpointer(&cfg, testLogger)
	table := types.NewTable(sampleRecords())
	require.NoError(t, c.Save(CheckpointInitial, table))

	paths := c.Paths(CheckpointInitial)
	require.Len(t, paths, 2)
	assert.Equal(t, filepath.Join(cfg.OutputPath, "book_data_initial.csv"), paths[0])
	assert.Equal(t, filepath.Join(cfg.OutputPath, "book_data_initial.jsonl"), paths[1])
	for _, p := range paths {
		assert.FileExists(t, p)
	}

	got, err := ReadCSV(paths[0])
	require.NoError(t, err)
	assert.Len(t, got, table.Len())
}

type failingStorage struct{ closed bool }

func (f *failingStorage) Store([]types.BookRecord) error { return errors.New("disk full") }
func (f *failingStorage) Close() error                   { f.closed = true; return nil }
func (f *failingStorage) Name() string                   { return "failing" }

func TestCheckpointerBackendFailure(t *testing.T) {
	cfg := config.DefaultConfig().Storage
	cfg.OutputPath = t.TempDir()
	cfg.Formats = []string{"failing", "csv"}

	failing := &failingStorage{}
	c := NewCheckpointer(&cfg, testLogger)
	c.open = func(format, checkpoint string, cfg *config.StorageConfig, logger *slog.Logger) (Storage, error) {
		if format == "failing" {
			return failing, nil
		}
		return New(format, checkpoint, cfg, logger)
	}

	err := c.Save(CheckpointFinal, types.NewTable(sampleRecords()))
	var se *types.StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "failing", se.Backend)
	assert.True(t, failing.closed)
	assert.FileExists(t, filepath.Join(cfg.OutputPath, "book_data_final.csv"), "healthy backends still write")
}

func TestNewUnsupportedFormat(t *testing.T) {
	cfg := config.DefaultConfig().Storage
	_, err := New("xml", CheckpointInitial, &cfg, testLogger)
	assert.Error(t, err)
}

func TestMongoStorage(t *testing.T) {
	uri := os.Getenv("BOOKHARVEST_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("BOOKHARVEST_TEST_MONGO_URI not set")
	}

	cfg := config.DefaultConfig().Storage.Mongo
	cfg.URI = uri
	cfg.Database = "bookharvest_test"

	s, err := NewMongoStorage(cfg, CheckpointInitial, testLogger)
	require.NoError(t, err)
	require.NoError(t, s.Store(sampleRecords()))
	assert.Equal(t, 3, s.count)
	require.NoError(t, s.Close())
}
