package campaigncontacts

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/spacearena/lead-pipeline/middlewares"
	"github.com/spacearena/lead-pipeline/schemas"
	"github.com/spacearena/lead-pipeline/utils"
	"go.mongodb.org/mongo-driver/v2/bson"
)

type updateStageRequest struct {
	StageID   string `json:"stageId"`
	Reason    string `json:"reason,omitempty"`
	Automatic bool   `json:"automatic,omitempty"`
}

type stageWarning struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type updateStageResponse struct {
	ContactID       bson.ObjectID  `json:"contactId"`
	PreviousStageID *bson.ObjectID `json:"previousStageId"`
	CurrentStageID  bson.ObjectID  `json:"currentStageId"`
	StageChangedAt  time.Time      `json:"stageChangedAt"`
	StageChangedBy  *string        `json:"stageChangedBy"`
	DurationHours   *float64       `json:"durationHours"`
	Warnings        []stageWarning `json:"warnings,omitempty"`
}

func (h *Handler) UpdateOneStage(w http.ResponseWriter, r *http.Request) {
	campaignID, ok := pathObjectID(w, r, "campaignId", utils.INVALID_CAMPAIGN_ID_FORMAT)
	if !ok {
		return
	}
	contactID, ok := pathObjectID(w, r, "contactId", utils.INVALID_CONTACT_ID_FORMAT)
	if !ok {
		return
	}

	input := updateStageRequest{}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		utils.SendResponse(w, http.StatusBadRequest, "", nil, utils.CONTACTS_INVALID_REQUEST_DATA)
		return
	}

	stageID, err := bson.ObjectIDFromHex(input.StageID)
	if err != nil {
		utils.SendResponse(w, http.StatusBadRequest, "", nil, utils.INVALID_STAGE_ID_FORMAT)
		return
	}

	opts := schemas.TransitionOptions{Reason: input.Reason, Automatic: input.Automatic}
	if user, ok := middlewares.UserFromContext(r.Context()); ok && !input.Automatic {
		opts.ActorID = user.ActorID()
	}

	outcome, err := h.Engine.TransitionByID(r.Context(), campaignID, contactID, stageID, opts)
	if err != nil {
		h.logger().Info("stage update rejected", "contact_id", contactID.Hex(), "error", err)
		utils.SendPipelineError(w, err, utils.CANNOT_UPDATE_CONTACT_STAGE)
		return
	}

	response := updateStageResponse{
		ContactID:       outcome.ContactID,
		PreviousStageID: outcome.PreviousStageID,
		CurrentStageID:  outcome.NewStageID,
		StageChangedAt:  outcome.OccurredAt,
		DurationHours:   outcome.DurationHours,
	}
	if outcome.ActorID != "" {
		actor := outcome.ActorID
		response.StageChangedBy = &actor
	}
	if outcome.ChargeWarning != nil {
		response.Warnings = append(response.Warnings, stageWarning{
			Type:    schemas.WARNING_TYPE_CHARGE_FAILED,
			Message: outcome.ChargeWarning.Message,
		})
	}
	if h.movedBackwards(r.Context(), outcome) {
		response.Warnings = append(response.Warnings, stageWarning{
			Type:    schemas.WARNING_TYPE_VALIDATION_WARNING,
			Message: "O contato voltou para um estágio anterior do funil",
		})
	}

	utils.SendResponse(w, http.StatusOK, "", response, 0)
}

func (h *Handler) movedBackwards(ctx context.Context, outcome schemas.TransitionOutcome) bool {
	if outcome.PreviousStageID == nil {
		return false
	}
	stages, err := h.Engine.Registry().ListStages(ctx, outcome.CampaignID)
	if err != nil {
		return false
	}

	var previous, current *schemas.Stage
	for i := range stages {
		switch stages[i].ID {
		case *outcome.PreviousStageID:
			previous = &stages[i]
		case outcome.NewStageID:
			current = &stages[i]
		}
	}
	return previous != nil && current != nil && current.Order < previous.Order
}
