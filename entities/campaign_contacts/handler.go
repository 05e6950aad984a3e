package campaigncontacts

import (
	"log/slog"
	"net/http"

	"github.com/spacearena/lead-pipeline/pipeline"
	"github.com/spacearena/lead-pipeline/utils"
	"go.mongodb.org/mongo-driver/v2/bson"
)

type Handler struct {
	Engine  *pipeline.Engine
	Bulk    *pipeline.BulkProcessor
	History *pipeline.HistoryReader
	Logger  *slog.Logger
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}

// pathObjectID parses a path value, answering 400 when it is not a valid id.
func pathObjectID(w http.ResponseWriter, r *http.Request, name string, internalErrorCode int) (bson.ObjectID, bool) {
	id, err := bson.ObjectIDFromHex(r.PathValue(name))
	if err != nil {
		utils.SendResponse(w, http.StatusBadRequest, "", nil, internalErrorCode)
		return bson.ObjectID{}, false
	}
	return id, true
}
