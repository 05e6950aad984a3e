package campaigncontacts

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/spacearena/lead-pipeline/charges"
	"github.com/spacearena/lead-pipeline/middlewares"
	"github.com/spacearena/lead-pipeline/pipeline"
	"github.com/spacearena/lead-pipeline/schemas"
	"github.com/spacearena/lead-pipeline/testkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

type envelope struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type fixture struct {
	funnel  *testkit.Funnel
	gateway *charges.Static
	bulk    *pipeline.BulkProcessor
	mux     *http.ServeMux
}

func newFixture(t *testing.T, gateway *charges.Static) *fixture {
	t.Helper()
	f := testkit.NewFunnel()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	engine := pipeline.NewEngine(pipeline.NewRegistry(f.Store), f.Store, f.Store, gateway,
		pipeline.WithClock(f.Clock.Now), pipeline.WithLogger(logger))
	bulk := pipeline.NewBulkProcessor(engine, pipeline.WithBulkLogger(logger))
	h := &Handler{
		Engine:  engine,
		Bulk:    bulk,
		History: pipeline.NewHistoryReader(f.Store, f.Store, f.Store),
		Logger:  logger,
	}

	withUser := func(next http.HandlerFunc) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := middlewares.LaravelUser{ID: 17, Name: "Bia", Email: "bia@spacearena.net"}
			next(w, r.WithContext(context.WithValue(r.Context(), middlewares.UserContextKey, user)))
		})
	}

	mux := http.NewServeMux()
	mux.Handle("PATCH /v1/campaigns/{campaignId}/contacts/{contactId}/stage", withUser(h.UpdateOneStage))
	mux.Handle("POST /v1/campaigns/{campaignId}/contacts/bulk-stage-update", withUser(h.BulkUpdateStage))
	mux.Handle("DELETE /v1/campaigns/{campaignId}/bulk-jobs/{jobId}", withUser(h.CancelBulkJob))
	mux.Handle("GET /v1/campaigns/{campaignId}/contacts/{contactId}/stage-history", withUser(h.GetStageHistory))

	return &fixture{funnel: f, gateway: gateway, bulk: bulk, mux: mux}
}

func (fx *fixture) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	rec := httptest.NewRecorder()
	fx.mux.ServeHTTP(rec, httptest.NewRequest(method, path, reader))

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func stagePath(campaignID, contactID bson.ObjectID) string {
	return "/v1/campaigns/" + campaignID.Hex() + "/contacts/" + contactID.Hex() + "/stage"
}

func TestUpdateOneStage(t *testing.T) {
	fx := newFixture(t, charges.Approving())
	f := fx.funnel
	contact := f.AddContact(&f.Novo)
	f.Clock.Advance(90 * time.Minute)

	rec, env := fx.do(t, http.MethodPatch, stagePath(f.CampaignID, contact.ID), map[string]any{
		"stageId": f.Negociacao.ID.Hex(),
		"reason":  "cliente pediu proposta",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp updateStageResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Equal(t, contact.ID, resp.ContactID)
	assert.Equal(t, f.Novo.ID, *resp.PreviousStageID)
	assert.Equal(t, f.Negociacao.ID, resp.CurrentStageID)
	require.NotNil(t, resp.StageChangedBy)
	assert.Equal(t, "17", *resp.StageChangedBy)
	require.NotNil(t, resp.DurationHours)
	assert.Equal(t, 1.5, *resp.DurationHours)
	assert.Empty(t, resp.Warnings)
}

func TestUpdateOneStageReportsChargeAndBackwardWarnings(t *testing.T) {
	fx := newFixture(t, charges.Declining("saldo insuficiente"))
	f := fx.funnel
	contact := f.AddContact(&f.Negociacao)

	rec, env := fx.do(t, http.MethodPatch, stagePath(f.CampaignID, contact.ID), map[string]any{
		"stageId":   f.Qualificacao.ID.Hex(),
		"automatic": true,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp updateStageResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Nil(t, resp.StageChangedBy)
	require.Len(t, resp.Warnings, 2)
	assert.Equal(t, stageWarning{Type: schemas.WARNING_TYPE_CHARGE_FAILED, Message: "saldo insuficiente"}, resp.Warnings[0])
	assert.Equal(t, schemas.WARNING_TYPE_VALIDATION_WARNING, resp.Warnings[1].Type)
}

func TestUpdateOneStageErrors(t *testing.T) {
	fx := newFixture(t, charges.Approving())
	f := fx.funnel
	won := f.AddContact(&f.Ganho)

	tests := []struct {
		name   string
		path   string
		body   any
		status int
	}{
		{name: "bad campaign id", path: "/v1/campaigns/xyz/contacts/" + won.ID.Hex() + "/stage", body: map[string]any{"stageId": f.Perdido.ID.Hex()}, status: http.StatusBadRequest},
		{name: "bad stage id", path: stagePath(f.CampaignID, won.ID), body: map[string]any{"stageId": "nope"}, status: http.StatusBadRequest},
		{name: "bad body", path: stagePath(f.CampaignID, won.ID), body: "[", status: http.StatusBadRequest},
		{name: "unknown contact", path: stagePath(f.CampaignID, bson.NewObjectID()), body: map[string]any{"stageId": f.Perdido.ID.Hex()}, status: http.StatusNotFound},
		{name: "unknown stage", path: stagePath(f.CampaignID, won.ID), body: map[string]any{"stageId": bson.NewObjectID().Hex()}, status: http.StatusNotFound},
		{name: "leaving final stage", path: stagePath(f.CampaignID, won.ID), body: map[string]any{"stageId": f.Perdido.ID.Hex()}, status: http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := fx.do(t, http.MethodPatch, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.NotEmpty(t, env.Message)
		})
	}
	assert.Equal(t, 0, f.Store.TransitionCount(won.ID))
}

func TestBulkUpdateStage(t *testing.T) {
	fx := newFixture(t, charges.Approving())
	f := fx.funnel
	contacts := f.AddContacts(4, &f.Novo)
	ids := append(testkit.IDs(contacts), bson.NewObjectID().Hex())

	rec, env := fx.do(t, http.MethodPost, "/v1/campaigns/"+f.CampaignID.Hex()+"/contacts/bulk-stage-update", map[string]any{
		"contactIds": ids,
		"stageId":    f.Qualificacao.ID.Hex(),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result schemas.BulkTransitionResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, 4, result.SuccessCount)
	assert.Equal(t, 1, result.FailedCount)
	assert.Equal(t, 5, result.TotalRequested)
	assert.Len(t, fx.gateway.Requests(), 4)

	records, err := f.Store.ListTransitions(context.Background(), f.CampaignID, contacts[0].ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "17", records[0].ActorID)
}

func TestBulkUpdateStageRejectsBatch(t *testing.T) {
	fx := newFixture(t, charges.Approving())
	f := fx.funnel
	path := "/v1/campaigns/" + f.CampaignID.Hex() + "/contacts/bulk-stage-update"
	ids := testkit.IDs(f.AddContacts(2, &f.Novo))

	rec, _ := fx.do(t, http.MethodPost, path, map[string]any{"contactIds": ids, "stageId": bson.NewObjectID().Hex()})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = fx.do(t, http.MethodPost, path, map[string]any{"contactIds": []string{}, "stageId": f.Novo.ID.Hex()})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = fx.do(t, http.MethodPost, path, map[string]any{"contactIds": ids, "stageId": "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelUnknownBulkJob(t *testing.T) {
	fx := newFixture(t, charges.Approving())

	rec, _ := fx.do(t, http.MethodDelete, "/v1/campaigns/"+fx.funnel.CampaignID.Hex()+"/bulk-jobs/missing", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetStageHistory(t *testing.T) {
	fx := newFixture(t, charges.Approving())
	f := fx.funnel
	contact := f.AddContact(nil)
	path := "/v1/campaigns/" + f.CampaignID.Hex() + "/contacts/" + contact.ID.Hex()

	rec, _ := fx.do(t, http.MethodPatch, path+"/stage", map[string]any{"stageId": f.Novo.ID.Hex(), "automatic": true})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env := fx.do(t, http.MethodGet, path+"/stage-history", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var entries []schemas.StageHistoryEntry
	require.NoError(t, json.Unmarshal(env.Data, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "Novo", entries[0].ToStageName)
	assert.True(t, entries[0].Automatic)

	rec, _ = fx.do(t, http.MethodGet, "/v1/campaigns/"+f.CampaignID.Hex()+"/contacts/"+bson.NewObjectID().Hex()+"/stage-history", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
