package api

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	carbonpilot "github.com/carbondriven/carbon-pilot"
	"github.com/carbondriven/carbon-pilot/factors"
	"github.com/carbondriven/carbon-pilot/internal/agent"
)

const testDataset = `{
	"materials": {
		"Steel":   {"co2_per_kg": 1.85, "unit": "kg CO2e/kg", "description": "primary steel"},
		"Plastic": {"co2_per_kg": 6.0,  "unit": "kg CO2e/kg", "description": "virgin plastic"},
		"Cotton":  {"co2_per_kg": 5.3,  "unit": "kg CO2e/kg", "description": "cotton fabric"}
	}
}`

func testRouter(t *testing.T, agentClient *agent.Client) *gin.Engine {
	t.Helper()

	table, err := factors.Load(strings.NewReader(testDataset))
	require.NoError(t, err)

	calculator := carbonpilot.NewCalculator(carbonpilot.WithTable(table))

	return NewServer(calculator, table, agentClient).Router()
}

func postJSON(t *testing.T, router *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func footprintRequestBody() map[string]any {
	return map[string]any{
		"products": []map[string]any{
			{"Product Name": "Steel Frame", "Material Type": "Steel", "Weight (kg)": "15", "Quantity": "200"},
			{"Product Name": "Plastic Case", "Material Type": "Plastic", "Weight (kg)": 0.5, "Quantity": 500},
			{"Product Name": "Cotton T-Shirt", "Material Type": "Cotton", "Weight (kg)": "0.2", "Quantity": "1000"},
			{"Product Name": "Unknown Material Item", "Material Type": "Vibranium", "Weight (kg)": "10", "Quantity": "50"},
		},
	}
}

func TestHandleFootprint(t *testing.T) {
	router := testRouter(t, nil)

	w := postJSON(t, router, "/api/footprint", footprintRequestBody())
	require.Equal(t, http.StatusOK, w.Code)

	var batch carbonpilot.BatchResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &batch))

	assert.Equal(t, 4, batch.Summary.TotalProducts)
	assert.Equal(t, 3, batch.Summary.SuccessfulCalculations)
	assert.Equal(t, 1, batch.Summary.FailedCalculations)
	assert.Equal(t, 8110.0, batch.Summary.TotalEmissions)
	assert.Equal(t, 3450.0, batch.Summary.TotalWeight)
	assert.Equal(t, 2703.33, batch.Summary.AverageEmissionsPerProduct)

	require.Len(t, batch.Errors, 1)
	assert.Equal(t, `Material type "Vibranium" not found in database`, batch.Errors[0].Error)
}

func TestHandleFootprintRejectsEmptyBatch(t *testing.T) {
	router := testRouter(t, nil)

	w := postJSON(t, router, "/api/footprint", map[string]any{"products": []map[string]any{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "no products provided")

	w = postJSON(t, router, "/api/footprint", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleFootprintRejectsMalformedBody(t *testing.T) {
	router := testRouter(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/footprint", strings.NewReader("not json"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleFootprintUpload(t *testing.T) {
	router := testRouter(t, nil)

	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "products.csv")
	require.NoError(t, err)
	part.Write([]byte("Product Name,Material Type,Weight (kg),Quantity\nSteel Frame,Steel,15,200\n"))
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/footprint/upload", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var batch carbonpilot.BatchResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &batch))
	require.Len(t, batch.Results, 1)
	assert.Equal(t, 5550.0, batch.Results[0].MaterialEmissions)
}

func TestHandleFootprintUploadWithoutFile(t *testing.T) {
	router := testRouter(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/footprint/upload", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleListMaterials(t *testing.T) {
	router := testRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/materials", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Materials []struct {
			Name     string  `json:"name"`
			CO2PerKg float64 `json:"co2_per_kg"`
		} `json:"materials"`
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.Equal(t, 3, resp.Count)
	// dataset order, not sorted
	assert.Equal(t, "Steel", resp.Materials[0].Name)
	assert.Equal(t, "Plastic", resp.Materials[1].Name)
	assert.Equal(t, "Cotton", resp.Materials[2].Name)
}

func TestHandleGetMaterial(t *testing.T) {
	router := testRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/materials/Steel", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "1.85")

	req = httptest.NewRequest(http.MethodGet, "/api/materials/Stel", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), `not found in database`)
	assert.Contains(t, w.Body.String(), `"Steel"`)
}

func TestHandleAnalysis(t *testing.T) {
	pipeline := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/apps/") {
			w.Write([]byte("{}"))
			return
		}
		json.NewEncoder(w).Encode([]map[string]any{
			{
				"author": "analyzer_agent",
				"content": map[string]any{
					"parts": []map[string]any{{"text": `{"impact_categories": {}}`}},
				},
			},
			{
				"author": "optimizer_agent",
				"content": map[string]any{
					"parts": []map[string]any{{"text": `{"optimization_strategies": {}}`}},
				},
			},
		})
	}))
	defer pipeline.Close()

	agentClient := agent.NewClient(t.Context(), agent.WithBaseURL(pipeline.URL))
	router := testRouter(t, agentClient)

	w := postJSON(t, router, "/api/analysis", footprintRequestBody())
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data     carbonpilot.BatchResult `json:"data"`
		Analysis agent.Analysis          `json:"analysis"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.Equal(t, 8110.0, resp.Data.Summary.TotalEmissions)
	assert.Contains(t, resp.Analysis.Analysis, "impact_categories")
	assert.Contains(t, resp.Analysis.Optimization, "optimization_strategies")
}

func TestHandleAnalysisPipelineDown(t *testing.T) {
	agentClient := agent.NewClient(t.Context(), agent.WithBaseURL("http://127.0.0.1:1"))
	router := testRouter(t, agentClient)

	w := postJSON(t, router, "/api/analysis", footprintRequestBody())
	require.Equal(t, http.StatusBadGateway, w.Code)

	// the computed batch is still returned alongside the error
	var resp struct {
		Data carbonpilot.BatchResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 4, resp.Data.Summary.TotalProducts)
}

func TestHandleAnalysisWithoutAgent(t *testing.T) {
	router := testRouter(t, nil)

	w := postJSON(t, router, "/api/analysis", footprintRequestBody())
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHandleAnalysisNothingComputable(t *testing.T) {
	agentClient := agent.NewClient(t.Context(), agent.WithBaseURL("http://127.0.0.1:1"))
	router := testRouter(t, agentClient)

	w := postJSON(t, router, "/api/analysis", map[string]any{
		"products": []map[string]any{
			{"Product Name": "Bad", "Material Type": "Steel", "Weight (kg)": "abc", "Quantity": "1"},
		},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleHealth(t *testing.T) {
	router := testRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
	assert.Contains(t, w.Body.String(), `"agent":"disabled"`)
}
