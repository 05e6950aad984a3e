package funnels

import (
	"net/http"

	"github.com/spacearena/lead-pipeline/utils"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func (h *Handler) GetFunnel(w http.ResponseWriter, r *http.Request) {
	campaignID, err := bson.ObjectIDFromHex(r.PathValue("campaignId"))
	if err != nil {
		utils.SendResponse(w, http.StatusBadRequest, "", nil, utils.INVALID_CAMPAIGN_ID_FORMAT)
		return
	}

	snapshot, err := h.Funnel.ComputeFunnel(r.Context(), campaignID)
	if err != nil {
		utils.SendPipelineError(w, err, utils.CANNOT_COMPUTE_FUNNEL)
		return
	}

	utils.SendResponse(w, http.StatusOK, "", snapshot, 0)
}
