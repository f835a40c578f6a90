package carbonpilot

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/carbondriven/carbon-pilot/factors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// EmissionsUnit is the unit of every emission figure produced by the
// calculator.
const EmissionsUnit = "kg CO2e"

// ProductRecord is one row of an uploaded product list. Weight and Quantity
// are kept textual: the boundary decoders normalize JSON numbers into their
// string form so that the calculator owns all numeric parsing. The transport
// fields are accepted from uploads but no computation consumes them.
type ProductRecord struct {
	ProductName        string
	MaterialType       string
	Weight             string
	Quantity           string
	SupplierLocation   string
	Destination        string
	TransportationMode string
}

// FootprintResult is the per-product outcome of a footprint calculation.
// Error is non-empty if and only if the record could not be fully computed,
// in which case the emission figures are zero.
type FootprintResult struct {
	ProductName       string  `json:"productName"`
	MaterialType      string  `json:"materialType"`
	Weight            float64 `json:"weight"`
	Quantity          int     `json:"quantity"`
	TotalWeight       float64 `json:"totalWeight"`
	MaterialEmissions float64 `json:"materialEmissions"`
	EmissionFactor    float64 `json:"emissionFactor"`
	Unit              string  `json:"unit"`
	Error             string  `json:"error,omitempty"`
}

// RecordError names a failed record and the reason it failed.
type RecordError struct {
	ProductName string `json:"productName"`
	Error       string `json:"error"`
}

// BatchSummary aggregates the successful subset of a batch. TotalEmissions
// and TotalWeight sum over successful records only.
type BatchSummary struct {
	TotalProducts              int     `json:"totalProducts"`
	SuccessfulCalculations     int     `json:"successfulCalculations"`
	FailedCalculations         int     `json:"failedCalculations"`
	TotalEmissions             float64 `json:"totalEmissions"`
	TotalWeight                float64 `json:"totalWeight"`
	AverageEmissionsPerProduct float64 `json:"averageEmissionsPerProduct"`
}

// BatchResult is the outcome of a batch calculation. Results holds the
// successful records and Errors the failed ones, both in input order.
type BatchResult struct {
	Summary BatchSummary      `json:"summary"`
	Results []FootprintResult `json:"results"`
	Errors  []RecordError     `json:"errors"`
}

type CalculatorOption func(c *Calculator)

// WithTable sets the emission factor reference table used for lookups.
func WithTable(table *factors.Table) CalculatorOption {
	return func(c *Calculator) {
		c.table = table
	}
}

// Calculator computes carbon footprint figures for product records against
// an injected emission factor table. It is stateless and safe for
// concurrent use.
type Calculator struct {
	table *factors.Table
}

// NewCalculator returns a calculator configured by opts. Without a WithTable
// option the embedded default dataset is used.
func NewCalculator(opts ...CalculatorOption) *Calculator {
	calculator := &Calculator{
		table: factors.Default(),
	}

	for _, option := range opts {
		option(calculator)
	}

	return calculator
}

// ComputeSingle computes the footprint of one product record. Failures are
// data, not errors: an unparseable weight or quantity or an unknown material
// yields a result whose Error field is set and whose emission figures are
// zero. The material lookup is exact and case sensitive.
func (c *Calculator) ComputeSingle(record ProductRecord) FootprintResult {
	result := FootprintResult{
		ProductName:  record.ProductName,
		MaterialType: record.MaterialType,
		Unit:         EmissionsUnit,
	}

	weight, weightOK := parseLeadingFloat(record.Weight)
	quantity, quantityOK := parseLeadingInt(record.Quantity)
	if !weightOK || !quantityOK {
		result.Error = "Invalid weight or quantity values"
		return result
	}

	result.Weight = weight
	result.Quantity = quantity

	factor, found := c.table.Lookup(record.MaterialType)
	if !found {
		result.Error = fmt.Sprintf("Material type %q not found in database", record.MaterialType)
		return result
	}

	result.EmissionFactor = factor
	result.TotalWeight = round2(weight * float64(quantity))
	result.MaterialEmissions = round2(result.TotalWeight * factor)

	// extreme inputs can overflow the arithmetic; a result never carries
	// Inf or NaN without an error
	if !isFinite(result.TotalWeight) || !isFinite(result.MaterialEmissions) {
		return FootprintResult{
			ProductName:  record.ProductName,
			MaterialType: record.MaterialType,
			Unit:         EmissionsUnit,
			Error:        "Invalid weight or quantity values",
		}
	}

	return result
}

func isFinite(v float64) bool {
	return !math.IsInf(v, 0) && !math.IsNaN(v)
}

// ComputeBatch applies ComputeSingle to every record in input order and
// partitions the outcomes into successful results and per-record errors.
// A malformed record never aborts the batch. The summary figures sum over
// the successful subset only.
func (c *Calculator) ComputeBatch(records []ProductRecord) BatchResult {
	batch := BatchResult{
		Results: make([]FootprintResult, 0, len(records)),
		Errors:  make([]RecordError, 0),
	}

	emissions := make([]float64, 0, len(records))
	for _, record := range records {
		result := c.ComputeSingle(record)
		if result.Error != "" {
			batch.Errors = append(batch.Errors, RecordError{
				ProductName: result.ProductName,
				Error:       result.Error,
			})
			continue
		}

		batch.Results = append(batch.Results, result)
		emissions = append(emissions, result.MaterialEmissions)
		batch.Summary.TotalWeight += result.TotalWeight
	}

	batch.Summary.TotalProducts = len(records)
	batch.Summary.SuccessfulCalculations = len(batch.Results)
	batch.Summary.FailedCalculations = len(batch.Errors)
	batch.Summary.TotalWeight = round2(batch.Summary.TotalWeight)
	batch.Summary.TotalEmissions = round2(floats.Sum(emissions))
	if len(emissions) > 0 {
		batch.Summary.AverageEmissionsPerProduct = round2(stat.Mean(emissions, nil))
	}

	return batch
}

// round2 rounds to two decimal places, halves away from zero.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// parseLeadingFloat parses the longest numeric prefix of s as a float,
// tolerating trailing non-numeric content ("15kg" parses as 15).
func parseLeadingFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)

	end := 0
	digits := false
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	for end < len(s) && isDigit(s[end]) {
		end++
		digits = true
	}
	if end < len(s) && s[end] == '.' {
		end++
		for end < len(s) && isDigit(s[end]) {
			end++
			digits = true
		}
	}
	if !digits {
		return 0, false
	}

	// exponent part, only kept when complete
	if end < len(s) && (s[end] == 'e' || s[end] == 'E') {
		mark := end
		end++
		if end < len(s) && (s[end] == '+' || s[end] == '-') {
			end++
		}
		expDigits := false
		for end < len(s) && isDigit(s[end]) {
			end++
			expDigits = true
		}
		if !expDigits {
			end = mark
		}
	}

	v, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		return 0, false
	}

	return v, true
}

// parseLeadingInt parses the longest base-10 integer prefix of s, so
// "12.9" parses as 12.
func parseLeadingInt(s string) (int, bool) {
	s = strings.TrimSpace(s)

	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	start := end
	for end < len(s) && isDigit(s[end]) {
		end++
	}
	if end == start {
		return 0, false
	}

	v, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}

	return v, true
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
