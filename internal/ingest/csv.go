// Package ingest parses source record sets for classification runs.
//
// A record set is a CSV file with the header
// product_name,store,id,stars,title,feedback,date (any column order). The id
// column becomes the record's ref_id. Empty files, missing header columns,
// empty feedback bodies, and unparseable dates are validation failures and
// surface as InvalidInputError with per-row detail.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/autotaghq/autotag/internal/autotagerrors"
	"github.com/autotaghq/autotag/internal/models"
)

// requiredColumns are the header names a record set must carry.
var requiredColumns = []string{"product_name", "store", "id", "stars", "title", "feedback", "date"}

// dateLayouts are tried in order when parsing the date column.
// Source systems deliver timestamps like 2024-01-22T23:31:48 without a zone.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// maxRowErrorDetails caps how many per-row failures a validation error reports.
const maxRowErrorDetails = 10

// ParseCSV reads a record set and returns its rows in file order.
func ParseCSV(r io.Reader) ([]models.SourceRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // Allow variable field counts
	reader.LazyQuotes = true    // Handle quotes more leniently

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, autotagerrors.NewInvalidInputError("record set is empty")
	}

	if err != nil {
		return nil, autotagerrors.NewInvalidInputError(fmt.Sprintf("failed to read record set header: %v", err))
	}

	columns, err := mapColumns(header)
	if err != nil {
		return nil, err
	}

	var (
		records   []models.SourceRecord
		rowErrors []string
	)

	line := 1
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		line++
		if err != nil {
			rowErrors = append(rowErrors, fmt.Sprintf("row %d: %v", line, err))

			continue
		}

		record, err := parseRow(row, columns)
		if err != nil {
			rowErrors = append(rowErrors, fmt.Sprintf("row %d: %v", line, err))

			continue
		}

		records = append(records, record)
	}

	if len(rowErrors) > 0 {
		return nil, rowValidationError(rowErrors)
	}

	if len(records) == 0 {
		return nil, autotagerrors.NewInvalidInputError("record set contains no data rows")
	}

	return records, nil
}

// mapColumns resolves the index of every required column, tolerating extra
// columns and any column order.
func mapColumns(header []string) (map[string]int, error) {
	columns := make(map[string]int, len(header))
	for i, name := range header {
		if i == 0 {
			name = strings.TrimPrefix(name, "\uFEFF")
		}

		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}

	var missing []string
	for _, name := range requiredColumns {
		if _, ok := columns[name]; !ok {
			missing = append(missing, name)
		}
	}

	if len(missing) > 0 {
		return nil, autotagerrors.NewInvalidInputError(
			fmt.Sprintf("record set header is missing required columns: %s", strings.Join(missing, ", ")))
	}

	return columns, nil
}

func parseRow(row []string, columns map[string]int) (models.SourceRecord, error) {
	feedback := strings.TrimSpace(fieldAt(row, columns["feedback"]))
	if feedback == "" {
		return models.SourceRecord{}, errors.New("empty feedback")
	}

	record := models.SourceRecord{
		ProductName: strings.TrimSpace(fieldAt(row, columns["product_name"])),
		Store:       strings.TrimSpace(fieldAt(row, columns["store"])),
		RefID:       strings.TrimSpace(fieldAt(row, columns["id"])),
		Stars:       strings.TrimSpace(fieldAt(row, columns["stars"])),
		Title:       strings.TrimSpace(fieldAt(row, columns["title"])),
		Feedback:    feedback,
	}

	if raw := strings.TrimSpace(fieldAt(row, columns["date"])); raw != "" {
		date, err := parseDate(raw)
		if err != nil {
			return models.SourceRecord{}, fmt.Errorf("unparseable date %q", raw)
		}

		record.Date = &date
	}

	return record, nil
}

func parseDate(raw string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("no layout matches %q", raw)
}

func rowValidationError(rowErrors []string) error {
	details := rowErrors
	if len(details) > maxRowErrorDetails {
		details = append(details[:maxRowErrorDetails:maxRowErrorDetails],
			fmt.Sprintf("and %d more rows", len(rowErrors)-maxRowErrorDetails))
	}

	return autotagerrors.NewInvalidInputError(
		fmt.Sprintf("record set failed validation on %d rows", len(rowErrors)), details...)
}

func fieldAt(row []string, index int) string {
	if index >= 0 && index < len(row) {
		return row[index]
	}

	return ""
}
