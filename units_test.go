package carbonpilot_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	carbonpilot "github.com/carbondriven/carbon-pilot"
)

func TestEmissionsConversions(t *testing.T) {
	e := carbonpilot.Emissions(8110)

	assert.Equal(t, 8110000.0, e.GCO2eq())
	assert.Equal(t, 8.11, e.TCO2eq())
}
