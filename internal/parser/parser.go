package parser

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"

	"faq-rag/internal/apperror"
	"faq-rag/internal/models"
)

// Loader turns a tabular FAQ source into documents.
type Loader interface {
	Load(filePath string) ([]models.Document, error)
}

// FAQLoader is the default Loader.
type FAQLoader struct{}

func (FAQLoader) Load(filePath string) ([]models.Document, error) {
	return LoadFAQ(filePath)
}

// SupportedExtensions lists the source formats LoadFAQ understands.
var SupportedExtensions = []string{".csv", ".xlsx", ".xlsm", ".xltx", ".xltm"}

// LoadFAQ reads every data row of the source. The first row is the header and
// must name the prompt and response columns.
func LoadFAQ(filePath string) ([]models.Document, error) {
	var (
		rows [][]string
		err  error
	)

	ext := strings.ToLower(filepath.Ext(filePath))
	if !IsSupported(filePath) {
		return nil, apperror.Wrap(apperror.CodeSourceLoad,
			fmt.Sprintf("unsupported file format: %q, expected one of %s", ext, strings.Join(SupportedExtensions, ", ")), nil)
	}
	switch ext {
	case ".csv":
		rows, err = readCSV(filePath)
	case ".xlsx":
		rows, err = readXLSX(filePath)
	default:
		rows, err = readExcelize(filePath)
	}
	if err != nil {
		return nil, apperror.Wrap(apperror.CodeSourceLoad, "failed to read "+filePath, err)
	}

	docs, err := rowsToDocuments(rows)
	if err != nil {
		return nil, apperror.Wrap(apperror.CodeSourceLoad, "invalid FAQ source "+filePath, err)
	}
	log.Debug().Str("file", filePath).Int("documents", len(docs)).Msg("Loaded FAQ source")
	return docs, nil
}

func readCSV(filePath string) ([][]string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var rows [][]string
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, record)
	}
	return rows, nil
}

// readXLSX reads the first worksheet.
func readXLSX(filePath string) ([][]string, error) {
	f, err := xlsx.OpenFile(filePath)
	if err != nil {
		return nil, err
	}
	if len(f.Sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}

	sheet := f.Sheets[0]
	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		if row == nil {
			rows = append(rows, nil)
			continue
		}
		cells := make([]string, 0, len(row.Cells))
		for _, cell := range row.Cells {
			if cell == nil {
				cells = append(cells, "")
				continue
			}
			cells = append(cells, cell.String())
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

// readExcelize reads the first worksheet of macro-enabled workbooks and templates.
func readExcelize(filePath string) ([][]string, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	return f.GetRows(sheets[0])
}

func rowsToDocuments(rows [][]string) ([]models.Document, error) {
	if len(rows) == 0 {
		return nil, errors.New("source is empty")
	}

	header := make([]string, len(rows[0]))
	seen := map[string]bool{}
	for i, name := range rows[0] {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		header[i] = name
	}
	if !seen[models.SourceColumn] || !seen[models.ResponseColumn] {
		return nil, fmt.Errorf("header must contain %q and %q columns, got %v", models.SourceColumn, models.ResponseColumn, rows[0])
	}

	columns := make([]string, 0, len(header))
	for _, name := range header {
		if name != "" {
			columns = append(columns, name)
		}
	}

	var docs []models.Document
	for _, record := range rows[1:] {
		if isBlank(record) {
			continue
		}
		entry := models.FAQEntry{Row: len(docs), Columns: columns}
		for i, name := range header {
			if name == "" {
				continue
			}
			value := ""
			if i < len(record) {
				value = strings.TrimSpace(record[i])
			}
			switch name {
			case models.SourceColumn:
				entry.Prompt = value
			case models.ResponseColumn:
				entry.Response = value
			default:
				entry.Extra = append(entry.Extra, models.Field{Name: name, Value: value})
			}
		}
		docs = append(docs, models.NewDocument(entry))
	}
	if len(docs) == 0 {
		return nil, errors.New("source has no data rows")
	}
	return docs, nil
}

func isBlank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// IsSupported reports whether the file extension is a known FAQ source format.
func IsSupported(filePath string) bool {
	ext := strings.ToLower(filepath.Ext(filePath))
	for _, s := range SupportedExtensions {
		if s == ext {
			return true
		}
	}
	return false
}
