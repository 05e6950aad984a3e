package schemas

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

type ContactType string

const (
	CONTACT_TYPE_LEAD            ContactType = "lead"
	CONTACT_TYPE_COMPANY_CONTACT ContactType = "company_contact"
)

func (t ContactType) Valid() bool {
	return t == CONTACT_TYPE_LEAD || t == CONTACT_TYPE_COMPANY_CONTACT
}

func (t *ContactType) UnmarshalText(text []byte) error {
	parsed := ContactType(text)
	if !parsed.Valid() {
		return fmt.Errorf("unknown contact type %q", text)
	}
	*t = parsed
	return nil
}

type EnrollmentStatus string

const (
	ENROLLMENT_STATUS_ENROLLED     EnrollmentStatus = "enrolled"
	ENROLLMENT_STATUS_ACTIVE       EnrollmentStatus = "active"
	ENROLLMENT_STATUS_COMPLETED    EnrollmentStatus = "completed"
	ENROLLMENT_STATUS_PAUSED       EnrollmentStatus = "paused"
	ENROLLMENT_STATUS_FAILED       EnrollmentStatus = "failed"
	ENROLLMENT_STATUS_UNSUBSCRIBED EnrollmentStatus = "unsubscribed"
)

func (s EnrollmentStatus) Valid() bool {
	switch s {
	case ENROLLMENT_STATUS_ENROLLED, ENROLLMENT_STATUS_ACTIVE, ENROLLMENT_STATUS_COMPLETED,
		ENROLLMENT_STATUS_PAUSED, ENROLLMENT_STATUS_FAILED, ENROLLMENT_STATUS_UNSUBSCRIBED:
		return true
	}
	return false
}

func (s *EnrollmentStatus) UnmarshalText(text []byte) error {
	parsed := EnrollmentStatus(text)
	if !parsed.Valid() {
		return fmt.Errorf("unknown enrollment status %q", text)
	}
	*s = parsed
	return nil
}

type EngagementMetrics struct {
	Sent    int `json:"sent" bson:"sent"`
	Opened  int `json:"opened" bson:"opened"`
	Clicked int `json:"clicked" bson:"clicked"`
	Replied int `json:"replied" bson:"replied"`
}

// EnrolledContact is a contact's membership in a campaign. CurrentStageID is
// nil until the first transition.
type EnrolledContact struct {
	ID                bson.ObjectID     `json:"id" bson:"_id,omitempty"`
	CampaignID        bson.ObjectID     `json:"campaignId" bson:"campaign_id"`
	ContactID         bson.ObjectID     `json:"contactId" bson:"contact_id"`
	ContactType       ContactType       `json:"contactType" bson:"contact_type"`
	CurrentStageID    *bson.ObjectID    `json:"currentStageId" bson:"current_stage_id"`
	EnrollmentStatus  EnrollmentStatus  `json:"enrollmentStatus" bson:"enrollment_status"`
	EngagementMetrics EngagementMetrics `json:"engagementMetrics" bson:"engagement_metrics"`
	EnrolledAt        time.Time         `json:"enrolledAt" bson:"enrolled_at"`
	LastTransitionAt  *time.Time        `json:"lastTransitionAt" bson:"last_transition_at"`
}

// StageEnteredAt is the instant the contact's current stay began.
func (c EnrolledContact) StageEnteredAt() time.Time {
	if c.LastTransitionAt != nil {
		return *c.LastTransitionAt
	}
	return c.EnrolledAt
}
