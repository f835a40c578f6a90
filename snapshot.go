package carbonpilot

import (
	"fmt"
	"strconv"
	"strings"
)

// Snapshot renders the textual representation of a batch result that is
// forwarded to the analysis pipeline: one block per successful product
// followed by the batch summary. Failed records are not part of a snapshot.
func Snapshot(batch BatchResult) string {
	var b strings.Builder

	b.WriteString("Please analyze the following carbon footprint data:\n")
	b.WriteString("\nPRODUCTS DATA:\n")

	total := batch.Summary.TotalEmissions
	for _, result := range batch.Results {
		fmt.Fprintf(&b, "\nProduct: %s\n", result.ProductName)
		fmt.Fprintf(&b, "- Material Type: %s\n", result.MaterialType)
		fmt.Fprintf(&b, "- Weight: %s kg\n", formatNumber(result.TotalWeight))
		fmt.Fprintf(&b, "- Emission Factor: %s kg CO2e/kg\n", formatNumber(result.EmissionFactor))
		fmt.Fprintf(&b, "- Total Emissions: %s kg CO2e\n", formatNumber(result.MaterialEmissions))
		if total > 0 {
			fmt.Fprintf(&b, "- Percentage of Total: %.2f%%\n", result.MaterialEmissions/total*100)
		}
	}

	b.WriteString("\nSUMMARY:\n")
	fmt.Fprintf(&b, "- Total Emissions: %s kg CO2e (%.2f tCO2e)\n", formatNumber(total), Emissions(total).TCO2eq())
	fmt.Fprintf(&b, "- Total Products: %d\n", batch.Summary.TotalProducts)
	fmt.Fprintf(&b, "- Average Emissions per Product: %.2f kg CO2e\n", batch.Summary.AverageEmissionsPerProduct)

	b.WriteString("\nPlease provide your analysis in the exact JSON structure specified in your instructions.\n")

	return b.String()
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
