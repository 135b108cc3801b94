package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Columns is the persisted column order.
var Columns = []string{"author", "title", "website", "genre", "description", "epub", "pdf"}

// BookRecord is one row of harvested book metadata.
// Empty strings stand for absent optional fields.
type BookRecord struct {
	ID          int      `json:"-"           bson:"row"`
	Authors     []string `json:"author"      bson:"author"`
	Title       string   `json:"title"       bson:"title"`
	Website     string   `json:"website"     bson:"website"`
	Genre       string   `json:"genre"       bson:"genre,omitempty"`
	Description string   `json:"description" bson:"description,omitempty"`
	EPUB        string   `json:"epub"        bson:"epub,omitempty"`
	PDF         string   `json:"pdf"         bson:"pdf,omitempty"`
}

// NewBookRecord creates a record with the listing fields set.
func NewBookRecord(authors []string, title, website string) BookRecord {
	if authors == nil {
		authors = []string{}
	}
	return BookRecord{
		Authors: authors,
		Title:   title,
		Website: website,
	}
}

// IsEnriched reports whether any detail field has been populated.
func (b BookRecord) IsEnriched() bool {
	return b.Genre != "" || b.Description != "" || b.EPUB != "" || b.PDF != ""
}

// Clone returns a copy that shares no slices with b.
func (b BookRecord) Clone() BookRecord {
	c := b
	c.Authors = append([]string{}, b.Authors...)
	return c
}

// ToRow flattens the record into Columns order.
func (b BookRecord) ToRow() []string {
	return []string{
		EncodeAuthors(b.Authors),
		b.Title,
		b.Website,
		b.Genre,
		b.Description,
		b.EPUB,
		b.PDF,
	}
}

// BookRecordFromRow is the inverse of ToRow.
func BookRecordFromRow(row []string) (BookRecord, error) {
	if len(row) != len(Columns) {
		return BookRecord{}, fmt.Errorf("expected %d columns, got %d", len(Columns), len(row))
	}
	authors, err := DecodeAuthors(row[0])
	if err != nil {
		return BookRecord{}, err
	}
	return BookRecord{
		Authors:     authors,
		Title:       row[1],
		Website:     row[2],
		Genre:       row[3],
		Description: row[4],
		EPUB:        row[5],
		PDF:         row[6],
	}, nil
}

// EncodeAuthors renders an author list as a JSON array, or "" when empty.
func EncodeAuthors(authors []string) string {
	if len(authors) == 0 {
		return ""
	}
	b, _ := json.Marshal(authors)
	return string(b)
}

// DecodeAuthors parses a cell written by EncodeAuthors. A bare name that is
// not a JSON array is accepted as a single author.
func DecodeAuthors(cell string) ([]string, error) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return []string{}, nil
	}
	if !strings.HasPrefix(cell, "[") {
		return []string{cell}, nil
	}
	var authors []string
	if err := json.Unmarshal([]byte(cell), &authors); err != nil {
		return nil, fmt.Errorf("decode author cell %q: %w", cell, err)
	}
	if authors == nil {
		authors = []string{}
	}
	return authors, nil
}

// Table is an ordered collection of records. Record IDs equal their index.
type Table struct {
	records []BookRecord
}

// NewTable builds a table from records, renumbering IDs by position.
func NewTable(records []BookRecord) Table {
	t := Table{records: make([]BookRecord, 0, len(records))}
	t = t.Append(records...)
	return t
}

// Append returns a table with records added at the end.
func (t Table) Append(records ...BookRecord) Table {
	out := make([]BookRecord, len(t.records), len(t.records)+len(records))
	copy(out, t.records)
	for _, r := range records {
		r = r.Clone()
		r.ID = len(out)
		out = append(out, r)
	}
	return Table{records: out}
}

// Len returns the number of rows.
func (t Table) Len() int { return len(t.records) }

// Records returns a copy of the rows in order.
func (t Table) Records() []BookRecord {
	out := make([]BookRecord, len(t.records))
	for i, r := range t.records {
		out[i] = r.Clone()
	}
	return out
}

// Get returns the record with the given row ID.
func (t Table) Get(id int) (BookRecord, bool) {
	if id < 0 || id >= len(t.records) {
		return BookRecord{}, false
	}
	return t.records[id].Clone(), true
}

// Apply returns a new table where each row present in updates is replaced.
// Rows without an update keep their prior values; IDs outside the table are ignored.
func (t Table) Apply(updates map[int]BookRecord) Table {
	out := make([]BookRecord, len(t.records))
	for i, r := range t.records {
		if u, ok := updates[i]; ok {
			r = u.Clone()
			r.ID = i
		} else {
			r = r.Clone()
		}
		out[i] = r
	}
	return Table{records: out}
}

// EnrichedCount returns how many rows carry detail fields.
func (t Table) EnrichedCount() int {
	n := 0
	for _, r := range t.records {
		if r.IsEnriched() {
			n++
		}
	}
	return n
}
