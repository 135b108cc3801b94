package types

import (
	"errors"
	"fmt"
	"testing"
)

func TestAuthorsCell(t *testing.T) {
	tests := []struct {
		name    string
		authors []string
		cell    string
	}{
		{"none", []string{}, ""},
		{"one", []string{"Isabel Allende"}, `["Isabel Allende"]`},
		{"several", []string{"Terry Pratchett", "Neil Gaiman"}, `["Terry Pratchett","Neil Gaiman"]`},
		{"quotes", []string{`Juan "el" Autor`}, `["Juan \"el\" Autor"]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EncodeAuthors(tt.authors); got != tt.cell {
				t.Errorf("EncodeAuthors = %q, want %q", got, tt.cell)
			}
			back, err := DecodeAuthors(tt.cell)
			if err != nil {
				t.Fatalf("DecodeAuthors: %v", err)
			}
			if fmt.Sprint(back) != fmt.Sprint(tt.authors) || back == nil {
				t.Errorf("DecodeAuthors = %#v, want %#v", back, tt.authors)
			}
		})
	}
}

func TestDecodeAuthorsBareName(t *testing.T) {
	got, err := DecodeAuthors("Jorge Luis Borges")
	if err != nil || len(got) != 1 || got[0] != "Jorge Luis Borges" {
		t.Errorf("got %v, %v", got, err)
	}
	if _, err := DecodeAuthors("[broken"); err == nil {
		t.Error("expected error for malformed array")
	}
}

func TestBookRecordFromRow(t *testing.T) {
	rec := NewBookRecord([]string{"A"}, "T", "https://example.com/t/")
	rec.PDF = "https://example.com/t.pdf"

	back, err := BookRecordFromRow(rec.ToRow())
	if err != nil {
		t.Fatal(err)
	}
	if back.Title != "T" || back.PDF != rec.PDF || back.Authors[0] != "A" {
		t.Errorf("unexpected record %+v", back)
	}
	if _, err := BookRecordFromRow([]string{"a", "b"}); err == nil {
		t.Error("expected column count error")
	}
}

func TestTableApply(t *testing.T) {
	table := NewTable([]BookRecord{
		NewBookRecord(nil, "uno", "https://example.com/1/"),
		NewBookRecord(nil, "dos", "https://example.com/2/"),
		NewBookRecord(nil, "tres", "https://example.com/3/"),
	})

	upd, _ := table.Get(1)
	upd.Genre = "Poesía"
	out := table.Apply(map[int]BookRecord{1: upd, 9: upd})

	if out.Len() != 3 {
		t.Fatalf("expected 3 rows, got %d", out.Len())
	}
	if r, _ := out.Get(1); r.Genre != "Poesía" || r.ID != 1 {
		t.Errorf("row 1 not updated: %+v", r)
	}
	if out.EnrichedCount() != 1 {
		t.Errorf("expected 1 enriched row, got %d", out.EnrichedCount())
	}
	if table.EnrichedCount() != 0 {
		t.Error("Apply must not modify the original table")
	}
}

func TestTableAppendNumbersRows(t *testing.T) {
	table := NewTable(nil).Append(NewBookRecord(nil, "a", "u")).Append(NewBookRecord(nil, "b", "u"))
	for i, r := range table.Records() {
		if r.ID != i {
			t.Errorf("row %d has ID %d", i, r.ID)
		}
	}
	if _, ok := table.Get(2); ok {
		t.Error("Get out of range should report false")
	}
}

func TestNewRequest(t *testing.T) {
	req, err := NewRequest("https://www.lectulandia.co/book/page/2/")
	if err != nil {
		t.Fatal(err)
	}
	if req.Method != "GET" || req.RowID != -1 || req.Domain() != "www.lectulandia.co" {
		t.Errorf("unexpected request %+v", req)
	}
	clone := req.Clone()
	clone.URL.Path = "/changed/"
	if req.URL.Path == "/changed/" {
		t.Error("Clone must copy the URL")
	}

	if _, err := NewRequest("/book/"); !errors.Is(err, ErrInvalidURL) {
		t.Errorf("expected ErrInvalidURL, got %v", err)
	}
}

func TestIsTimeout(t *testing.T) {
	timeout := &FetchError{URL: "u", Err: errors.New("deadline"), Timeout: true}
	if !IsTimeout(fmt.Errorf("wrapped: %w", timeout)) {
		t.Error("wrapped timeout not detected")
	}
	if IsTimeout(&FetchError{URL: "u", Err: errors.New("reset"), Retryable: true}) {
		t.Error("non-timeout reported as timeout")
	}
	if !IsTimeout(ErrTimeout) {
		t.Error("ErrTimeout should count as timeout")
	}
}
