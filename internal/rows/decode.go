// Package rows turns loosely typed upload rows, from parsed JSON bodies or
// CSV files, into typed product records for the calculator.
package rows

import (
	"fmt"

	carbonpilot "github.com/carbondriven/carbon-pilot"
	"github.com/mitchellh/mapstructure"
)

type looseRow struct {
	ProductName        string `mapstructure:"Product Name"`
	MaterialType       string `mapstructure:"Material Type"`
	Weight             string `mapstructure:"Weight (kg)"`
	Quantity           string `mapstructure:"Quantity"`
	SupplierLocation   string `mapstructure:"Supplier Location"`
	Destination        string `mapstructure:"Destination"`
	TransportationMode string `mapstructure:"Transportation Mode"`
}

// Decode turns one raw row into a ProductRecord. Decoding is weakly typed
// so weight and quantity may arrive as JSON numbers or strings; numbers are
// normalized to their textual form and all numeric validation stays in the
// calculator. Unknown keys are ignored.
func Decode(raw map[string]any) (carbonpilot.ProductRecord, error) {
	var row looseRow

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &row,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return carbonpilot.ProductRecord{}, fmt.Errorf("failed to build row decoder: %w", err)
	}

	if err := decoder.Decode(raw); err != nil {
		return carbonpilot.ProductRecord{}, fmt.Errorf("failed to decode product row: %w", err)
	}

	return carbonpilot.ProductRecord{
		ProductName:        row.ProductName,
		MaterialType:       row.MaterialType,
		Weight:             row.Weight,
		Quantity:           row.Quantity,
		SupplierLocation:   row.SupplierLocation,
		Destination:        row.Destination,
		TransportationMode: row.TransportationMode,
	}, nil
}

// DecodeAll decodes a sequence of raw rows, preserving order. A row that
// fails to decode aborts with an error naming its 1-based position.
func DecodeAll(raws []map[string]any) ([]carbonpilot.ProductRecord, error) {
	records := make([]carbonpilot.ProductRecord, 0, len(raws))
	for i, raw := range raws {
		record, err := Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		records = append(records, record)
	}
	return records, nil
}
