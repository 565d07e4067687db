package credits

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	creditsvc "greencoin-backend/internal/application/credits"
	"greencoin-backend/internal/domain"
	"greencoin-backend/internal/infrastructure/database/dbtest"
	"greencoin-backend/internal/infrastructure/external"
	"greencoin-backend/internal/pkg/constants"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupCreditsTest(t *testing.T) (*Handlers, *gorm.DB) {
	db := dbtest.Open(t)
	return &Handlers{Service: &creditsvc.Service{
		DB:           db,
		Store:        external.NewHashContentStore(),
		Chain:        external.NewLocalChain(),
		SensorSecret: "test-sensor-secret",
	}}, db
}

func actorApp(t *testing.T, db *gorm.DB, role string) (*fiber.App, domain.Actor) {
	a := domain.Actor{Username: "u-" + uuid.NewString()[:8], PasswordHash: "x", Name: role, Role: role}
	require.NoError(t, db.Create(&a).Error)
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user", map[string]interface{}{"actor_id": a.ActorID.String(), "role": a.Role})
		return c.Next()
	})
	return app, a
}

func postJSON(t *testing.T, app *fiber.App, path string, body interface{}) int {
	t.Helper()
	b, _ := json.Marshal(body)
	req := httptest.NewRequest("POST", path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp.StatusCode
}

func mintedCredit(t *testing.T, db *gorm.DB, producer domain.Actor) domain.Credit {
	credit := domain.Credit{
		BatchRef: uuid.NewString(), PartID: "P-1", ProducerID: producer.ActorID, ContentID: "bafk",
		TokenID: "tok", HydrogenKg: 2000, Amount: 2, Status: domain.CreditMinted,
		OwnerType: domain.OwnerProducer, OwnerID: &producer.ActorID, MintTxID: "0xmint",
	}
	require.NoError(t, db.Create(&credit).Error)
	return credit
}

func TestMint_UnapprovedSensor(t *testing.T) {
	h, db := setupCreditsTest(t)
	app, _ := actorApp(t, db, constants.Producer)
	app.Post("/credits/mint", h.Mint)

	status := postJSON(t, app, "/credits/mint", map[string]interface{}{
		"partId": "ELX-404", "batchId": "B-1", "hydrogenKg": 2000, "purity": 99, "renewableShare": 90,
	})
	assert.Equal(t, fiber.StatusForbidden, status)
}

func TestRevoke_RequiresRegulator(t *testing.T) {
	h, db := setupCreditsTest(t)
	producerApp, producer := actorApp(t, db, constants.Producer)
	producerApp.Post("/credits/revoke", h.Revoke)
	regulatorApp, _ := actorApp(t, db, constants.Regulator)
	regulatorApp.Post("/credits/revoke", h.Revoke)
	credit := mintedCredit(t, db, producer)

	body := map[string]string{"creditId": credit.CreditID.String(), "reason": "falsified readings"}
	assert.Equal(t, fiber.StatusForbidden, postJSON(t, producerApp, "/credits/revoke", body))
	assert.Equal(t, fiber.StatusOK, postJSON(t, regulatorApp, "/credits/revoke", body))
	assert.Equal(t, fiber.StatusConflict, postJSON(t, regulatorApp, "/credits/revoke", body))
	assert.Equal(t, fiber.StatusBadRequest, postJSON(t, regulatorApp, "/credits/revoke", map[string]string{"creditId": "x"}))
}

func TestRetire_NotSold(t *testing.T) {
	h, db := setupCreditsTest(t)
	app, buyer := actorApp(t, db, constants.Buyer)
	app.Post("/credits/retire", h.Retire)
	credit := mintedCredit(t, db, buyer)

	assert.Equal(t, fiber.StatusConflict, postJSON(t, app, "/credits/retire", map[string]string{"creditId": credit.CreditID.String()}))
}

func TestGetAndOwned(t *testing.T) {
	h, db := setupCreditsTest(t)
	app, producer := actorApp(t, db, constants.Producer)
	app.Get("/credits/owned", h.Owned)
	app.Get("/credits/:id", h.Get)
	credit := mintedCredit(t, db, producer)

	resp, err := app.Test(httptest.NewRequest("GET", "/credits/owned", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Len(t, out["data"], 1)

	resp, err = app.Test(httptest.NewRequest("GET", "/credits/"+credit.CreditID.String(), nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/credits/"+uuid.NewString(), nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}
