package utils

import "fmt"

const (
	CONTACTS_INVALID_REQUEST_DATA = iota + 1
	INVALID_CAMPAIGN_ID_FORMAT
	INVALID_CONTACT_ID_FORMAT
	INVALID_STAGE_ID_FORMAT
	CANNOT_UPDATE_CONTACT_STAGE
	CANNOT_RUN_BULK_STAGE_UPDATE
	CANNOT_COMPUTE_FUNNEL
	CANNOT_LIST_STAGE_HISTORY
	CANNOT_REACH_STORAGE
	CANNOT_LIST_STAGES
)

func SendInternalError(internalErrorCode int) string {
	return fmt.Sprintf("Ocorreu um erro interno no servidor. Por favor, tente novamente mais tarde (Cod: %d)", internalErrorCode)
}
