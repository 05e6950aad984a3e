package funnels

import (
	"net/http"

	"github.com/spacearena/lead-pipeline/utils"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// GetAllStages lists the campaign's active stages in funnel order.
func (h *Handler) GetAllStages(w http.ResponseWriter, r *http.Request) {
	campaignID, err := bson.ObjectIDFromHex(r.PathValue("campaignId"))
	if err != nil {
		utils.SendResponse(w, http.StatusBadRequest, "", nil, utils.INVALID_CAMPAIGN_ID_FORMAT)
		return
	}

	stages, err := h.Stages.ListStages(r.Context(), campaignID)
	if err != nil {
		utils.SendPipelineError(w, err, utils.CANNOT_LIST_STAGES)
		return
	}

	utils.SendResponse(w, http.StatusOK, "", stages, 0)
}
