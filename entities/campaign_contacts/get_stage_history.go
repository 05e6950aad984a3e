package campaigncontacts

import (
	"net/http"

	"github.com/spacearena/lead-pipeline/utils"
)

func (h *Handler) GetStageHistory(w http.ResponseWriter, r *http.Request) {
	campaignID, ok := pathObjectID(w, r, "campaignId", utils.INVALID_CAMPAIGN_ID_FORMAT)
	if !ok {
		return
	}
	contactID, ok := pathObjectID(w, r, "contactId", utils.INVALID_CONTACT_ID_FORMAT)
	if !ok {
		return
	}

	entries, err := h.History.StageHistory(r.Context(), campaignID, contactID)
	if err != nil {
		utils.SendPipelineError(w, err, utils.CANNOT_LIST_STAGE_HISTORY)
		return
	}

	utils.SendResponse(w, http.StatusOK, "", entries, 0)
}
