package utils

import (
	"encoding/json"
	"net/http"

	"github.com/spacearena/lead-pipeline/pipeline"
	"github.com/spacearena/lead-pipeline/schemas"
)

func SendResponse(w http.ResponseWriter, statusCode int, message string, data any, internalErrorCode int) {
	if internalErrorCode != 0 {
		writeJSON(w, statusCode, schemas.ApiResponse{
			Message: SendInternalError(internalErrorCode),
		})
		return
	}

	if (message == "") && (data == nil) {
		w.WriteHeader(statusCode)
		return
	}

	writeJSON(w, statusCode, schemas.ApiResponse{
		Data:    data,
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}

// SendPipelineError maps a pipeline failure to an HTTP status. Unknown errors
// become a 500 with the numbered internal error message.
func SendPipelineError(w http.ResponseWriter, err error, internalErrorCode int) {
	switch pipeline.CodeOf(err) {
	case pipeline.CodeNotFound:
		SendResponse(w, http.StatusNotFound, pipeline.MessageOf(err), nil, 0)
	case pipeline.CodeIllegalTransition:
		SendResponse(w, http.StatusUnprocessableEntity, pipeline.MessageOf(err), nil, 0)
	case pipeline.CodeConcurrencyConflict:
		SendResponse(w, http.StatusConflict, pipeline.MessageOf(err), nil, 0)
	case pipeline.CodeInvalidArgument:
		SendResponse(w, http.StatusBadRequest, pipeline.MessageOf(err), nil, 0)
	case pipeline.CodeCancelled:
		SendResponse(w, http.StatusServiceUnavailable, pipeline.MessageOf(err), nil, 0)
	default:
		SendResponse(w, http.StatusInternalServerError, "", nil, internalErrorCode)
	}
}
