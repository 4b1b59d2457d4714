package importer

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/mkaneda/lotimport/internal/domain"
	"github.com/mkaneda/lotimport/internal/schema"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

// stagingBatchSize bounds how many staged rows are buffered in memory
// before being flushed to storage.
const stagingBatchSize = 1000

var byteOrderMark = []byte{0xEF, 0xBB, 0xBF}

// parseJob parses every file of the job into staging rows and returns the
// total row count across files (headers excluded).
func (s *Service) parseJob(ctx context.Context, job domain.ImportJob, def schema.Definition) (int, error) {
	files, err := s.store.Files().ListByJob(ctx, job.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to list job files: %w", err)
	}

	total := 0
	for _, file := range files {
		count, err := s.parseFile(ctx, job, def, file)
		if err != nil {
			return 0, fmt.Errorf("file %s: %w", file.FileName, err)
		}
		if err := s.store.Files().SetRowCount(ctx, file.ID, count); err != nil {
			return 0, err
		}
		total += count
	}
	return total, nil
}

func (s *Service) parseFile(ctx context.Context, job domain.ImportJob, def schema.Definition, file domain.ImportFile) (int, error) {
	payload, err := s.files.Read(file.StoragePath)
	if err != nil {
		return 0, err
	}
	if len(payload) == 0 {
		return 0, errors.New("file is empty")
	}

	records, err := readTable(file.FileName, payload)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, errors.New("no header row detected")
	}

	// Headers are rewritten to their canonical column names so alias-labeled
	// exports validate and derive keys like canonical ones.
	headers := make([]string, len(records[0]))
	for i, h := range records[0] {
		headers[i] = def.Canonical(strings.TrimSpace(h))
	}

	batch := make([]domain.StagingRow, 0, stagingBatchSize)
	count := 0
	for _, record := range records[1:] {
		if emptyRow(record) {
			continue
		}
		count++

		fields := make(domain.RowFields, 0, len(headers))
		for i, header := range headers {
			if header == "" {
				continue
			}
			value := ""
			if i < len(record) {
				value = strings.TrimSpace(record[i])
			}
			fields = append(fields, domain.FieldValue{Name: header, Value: value})
		}

		batch = append(batch, domain.NewStagingRow(job.ID, file.ID, count, fields))
		if len(batch) >= stagingBatchSize {
			if err := s.store.Staging().InsertBatch(ctx, batch); err != nil {
				return 0, err
			}
			batch = batch[:0]
		}
	}

	if err := s.store.Staging().InsertBatch(ctx, batch); err != nil {
		return 0, err
	}
	return count, nil
}

func readTable(fileName string, payload []byte) ([][]string, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".csv":
		return readDelimited(payload, ',')
	case ".tsv":
		return readDelimited(payload, '\t')
	case ".xlsx":
		return readExcel(payload)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}

func readDelimited(payload []byte, comma rune) ([][]string, error) {
	text, err := decodeText(payload)
	if err != nil {
		return nil, err
	}

	reader := bufio.NewReader(bytes.NewReader(text))
	if prefix, err := reader.Peek(len(byteOrderMark)); err == nil && bytes.Equal(prefix, byteOrderMark) {
		_, _ = reader.Discard(len(byteOrderMark))
	}

	csvReader := csv.NewReader(reader)
	csvReader.Comma = comma
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	records, err := csvReader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read delimited text: %w", err)
	}
	return records, nil
}

// decodeText accepts UTF-8 input as-is and falls back to Shift_JIS for
// files exported from legacy shop-floor systems.
func decodeText(payload []byte) ([]byte, error) {
	if utf8.Valid(payload) {
		return payload, nil
	}

	decoded, err := io.ReadAll(transform.NewReader(bytes.NewReader(payload), japanese.ShiftJIS.NewDecoder()))
	if err != nil {
		return nil, fmt.Errorf("failed to decode text as Shift_JIS: %w", err)
	}
	return decoded, nil
}

func readExcel(payload []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("excel file has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read rows from xlsx: %w", err)
	}
	return rows, nil
}

func emptyRow(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
