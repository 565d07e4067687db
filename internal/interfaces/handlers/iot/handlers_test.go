package iot

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"greencoin-backend/internal/application/ingestion"
	"greencoin-backend/internal/domain"
	"greencoin-backend/internal/infrastructure/database/dbtest"
	"greencoin-backend/internal/infrastructure/external"
	"greencoin-backend/internal/pkg/constants"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupIoTApp(t *testing.T) (*fiber.App, domain.Actor) {
	db := dbtest.Open(t)
	producer := domain.Actor{Username: "plant1", PasswordHash: "x", Name: "Plant One", Role: constants.Producer}
	require.NoError(t, db.Create(&producer).Error)

	h := &Handlers{Service: &ingestion.Service{
		DB:          db,
		Accumulator: &ingestion.GormAccumulator{DB: db},
		Store:       external.NewHashContentStore(),
		Chain:       external.NewLocalChain(),
	}}
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user", map[string]interface{}{
			"actor_id": producer.ActorID.String(),
			"name":     producer.Name,
			"role":     producer.Role,
		})
		return c.Next()
	})
	app.Post("/iot/readings", h.RecordReading)
	app.Get("/iot/readings/latest", h.Latest)
	app.Post("/producer/batches", h.SubmitBatch)
	app.Get("/producer/stats", h.Stats)
	return app, producer
}

func send(t *testing.T, app *fiber.App, method, path string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	var req *http.Request
	if body != nil {
		b, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	var out map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestLatest_NoData(t *testing.T) {
	app, _ := setupIoTApp(t)
	resp, out := send(t, app, "GET", "/iot/readings/latest", nil)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	details := out["error"].(map[string]interface{})["details"].(map[string]interface{})
	assert.Equal(t, "NO_DATA_AVAILABLE", details["code"])
}

func TestRecordReading_Invalid(t *testing.T) {
	app, _ := setupIoTApp(t)
	resp, _ := send(t, app, "POST", "/iot/readings", map[string]float64{"hydrogen_kg": -1})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestReadingsToBatchToStats(t *testing.T) {
	app, _ := setupIoTApp(t)
	for _, kg := range []float64{1000, 3000} {
		resp, _ := send(t, app, "POST", "/iot/readings", map[string]float64{
			"hydrogen_kg": kg, "purity_pct": 99.9, "renewable_share_pct": 97,
			"power_consumption_kwh": 50, "renewable_power_kwh": 48,
		})
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
	}

	resp, out := send(t, app, "GET", "/iot/readings/latest", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(2000), out["data"].(map[string]interface{})["hydrogen_kg"])

	resp, out = send(t, app, "POST", "/producer/batches", nil)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	batch := out["data"].(map[string]interface{})
	assert.Equal(t, float64(2010), batch["score"])
	assert.NotEmpty(t, batch["mint_tx_id"])

	resp, _ = send(t, app, "POST", "/producer/batches", nil)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	resp, out = send(t, app, "GET", "/producer/stats", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	stats := out["data"].(map[string]interface{})
	assert.Equal(t, float64(1), stats["total_batches"])
	assert.Equal(t, float64(2010), stats["total_score"])
}
