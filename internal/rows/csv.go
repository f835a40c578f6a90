package rows

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	carbonpilot "github.com/carbondriven/carbon-pilot"
)

// ReadCSV parses an uploaded product list. The first row is the header and
// maps cells to record fields by column name. Header cells are trimmed;
// data cells are passed through untouched so that incidental whitespace in a
// material name keeps failing the lookup, as the calculator specifies.
func ReadCSV(r io.Reader) ([]carbonpilot.ProductRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("csv input has no header row")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}

	header[0] = strings.TrimPrefix(header[0], "\ufeff")
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	records := make([]carbonpilot.ProductRecord, 0)
	for line := 2; ; line++ {
		cells, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv line %d: %w", line, err)
		}

		raw := make(map[string]any, len(cells))
		for i, cell := range cells {
			if i < len(header) {
				raw[header[i]] = cell
			}
		}

		record, err := Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}

		records = append(records, record)
	}

	return records, nil
}
