package campaigncontacts

import (
	"net/http"

	"github.com/spacearena/lead-pipeline/utils"
)

func (h *Handler) CancelBulkJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("jobId")
	if jobID == "" {
		utils.SendResponse(w, http.StatusBadRequest, "Job não informado", nil, 0)
		return
	}

	if !h.Bulk.Cancel(jobID) {
		utils.SendResponse(w, http.StatusNotFound, "Job não encontrado ou já finalizado", nil, 0)
		return
	}

	h.logger().Info("bulk job cancelled", "job_id", jobID)
	utils.SendResponse(w, http.StatusAccepted, "Cancelamento solicitado", nil, 0)
}
