package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Field is one extra column of a FAQ row, kept in header order.
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// FAQEntry is a single row of the FAQ source. Row is the zero-based data row index.
type FAQEntry struct {
	Row      int     `json:"row"`
	Prompt   string  `json:"prompt"`
	Response string  `json:"response"`
	Extra    []Field `json:"extra,omitempty"`
	// Columns records the header order so Text can serialize the row as it appeared.
	Columns []string `json:"-"`
}

// Document is a loaded FAQ entry together with its serialized text.
type Document struct {
	ID      string   `json:"id"`
	Entry   FAQEntry `json:"entry"`
	Content string   `json:"content"`
}

// DocumentID returns the stable identifier of a row.
func DocumentID(row int) string {
	return fmt.Sprintf("row-%d", row)
}

// NewDocument builds the document for an entry.
func NewDocument(entry FAQEntry) Document {
	return Document{
		ID:      DocumentID(entry.Row),
		Entry:   entry,
		Content: entry.Text(),
	}
}

// Text serializes the entry as "<column>: <value>" lines in header order.
func (e FAQEntry) Text() string {
	columns := e.Columns
	if len(columns) == 0 {
		columns = []string{SourceColumn, ResponseColumn}
		for _, f := range e.Extra {
			columns = append(columns, f.Name)
		}
	}

	lines := make([]string, 0, len(columns))
	for _, col := range columns {
		lines = append(lines, col+": "+e.Value(col))
	}
	return strings.Join(lines, "\n")
}

// Value returns the value of a column, or "" when absent.
func (e FAQEntry) Value(column string) string {
	switch column {
	case SourceColumn:
		return e.Prompt
	case ResponseColumn:
		return e.Response
	}
	for _, f := range e.Extra {
		if f.Name == column {
			return f.Value
		}
	}
	return ""
}

// Metadata flattens the document into string metadata for vector stores.
func (d Document) Metadata() map[string]string {
	meta := map[string]string{
		"source":   d.Entry.Prompt,
		"row":      strconv.Itoa(d.Entry.Row),
		"prompt":   d.Entry.Prompt,
		"response": d.Entry.Response,
		"columns":  strings.Join(d.Entry.Columns, "\n"),
	}
	for _, f := range d.Entry.Extra {
		meta[extraKeyPrefix+f.Name] = f.Value
	}
	return meta
}

const extraKeyPrefix = "extra:"

// DocumentFromMetadata rebuilds a document stored with Metadata.
func DocumentFromMetadata(id, content string, meta map[string]string) (Document, error) {
	row, err := strconv.Atoi(meta["row"])
	if err != nil {
		return Document{}, fmt.Errorf("invalid row metadata for %s: %w", id, err)
	}
	entry := FAQEntry{
		Row:      row,
		Prompt:   meta["prompt"],
		Response: meta["response"],
	}
	if cols := meta["columns"]; cols != "" {
		entry.Columns = strings.Split(cols, "\n")
		for _, col := range entry.Columns {
			if col == SourceColumn || col == ResponseColumn {
				continue
			}
			entry.Extra = append(entry.Extra, Field{Name: col, Value: meta[extraKeyPrefix+col]})
		}
	}
	return Document{ID: id, Entry: entry, Content: content}, nil
}
