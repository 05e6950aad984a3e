package campaigncontacts

import (
	"encoding/json"
	"net/http"

	"github.com/spacearena/lead-pipeline/middlewares"
	"github.com/spacearena/lead-pipeline/pipeline"
	"github.com/spacearena/lead-pipeline/utils"
	"go.mongodb.org/mongo-driver/v2/bson"
)

type bulkUpdateStageRequest struct {
	JobID      string   `json:"jobId,omitempty"`
	ContactIDs []string `json:"contactIds"`
	StageID    string   `json:"stageId"`
	Reason     string   `json:"reason,omitempty"`
	Automatic  bool     `json:"automatic,omitempty"`
}

// BulkUpdateStage answers 200 whenever the batch is accepted; per-contact
// failures are part of the payload.
func (h *Handler) BulkUpdateStage(w http.ResponseWriter, r *http.Request) {
	campaignID, ok := pathObjectID(w, r, "campaignId", utils.INVALID_CAMPAIGN_ID_FORMAT)
	if !ok {
		return
	}

	input := bulkUpdateStageRequest{}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		utils.SendResponse(w, http.StatusBadRequest, "", nil, utils.CONTACTS_INVALID_REQUEST_DATA)
		return
	}

	stageID, err := bson.ObjectIDFromHex(input.StageID)
	if err != nil {
		utils.SendResponse(w, http.StatusBadRequest, "", nil, utils.INVALID_STAGE_ID_FORMAT)
		return
	}

	if _, err := h.Engine.Registry().GetStage(r.Context(), campaignID, stageID); err != nil {
		utils.SendPipelineError(w, err, utils.CANNOT_RUN_BULK_STAGE_UPDATE)
		return
	}

	req := pipeline.BulkRequest{
		JobID:         input.JobID,
		CampaignID:    campaignID,
		ContactIDs:    input.ContactIDs,
		TargetStageID: stageID,
		Reason:        input.Reason,
		Automatic:     input.Automatic,
	}
	if user, ok := middlewares.UserFromContext(r.Context()); ok && !input.Automatic {
		req.ActorID = user.ActorID()
	}

	result, err := h.Bulk.Run(r.Context(), req)
	if err != nil {
		utils.SendPipelineError(w, err, utils.CANNOT_RUN_BULK_STAGE_UPDATE)
		return
	}

	utils.SendResponse(w, http.StatusOK, "", result, 0)
}
