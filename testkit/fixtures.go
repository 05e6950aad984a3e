// Package testkit builds seeded in-memory campaigns for tests.
package testkit

import (
	"sync"
	"time"

	"github.com/spacearena/lead-pipeline/database"
	"github.com/spacearena/lead-pipeline/schemas"
	"go.mongodb.org/mongo-driver/v2/bson"
)

const QUALIFICATION_CHARGE_CENTS = 500

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Funnel is a campaign with the five standard stages:
// novo (initial), qualificacao (charges on entry), negociacao, ganho (final), perdido (final).
type Funnel struct {
	Store      *database.MemoryStore
	Clock      *Clock
	CampaignID bson.ObjectID

	Novo         schemas.Stage
	Qualificacao schemas.Stage
	Negociacao   schemas.Stage
	Ganho        schemas.Stage
	Perdido      schemas.Stage
}

func NewFunnel() *Funnel {
	f := &Funnel{
		Store:      database.NewMemoryStore(),
		Clock:      NewClock(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)),
		CampaignID: bson.NewObjectID(),
	}

	f.Novo = f.stage("Novo", schemas.STAGE_CATEGORY_NOVO, 1, func(s *schemas.Stage) { s.IsInitial = true })
	f.Qualificacao = f.stage("Qualificação", schemas.STAGE_CATEGORY_QUALIFICACAO, 2, func(s *schemas.Stage) {
		s.ChargeOnEntry = true
		s.ChargeAmountCents = QUALIFICATION_CHARGE_CENTS
		s.ChargeDescription = "Lead qualificado"
	})
	f.Negociacao = f.stage("Negociação", schemas.STAGE_CATEGORY_NEGOCIACAO, 3, nil)
	f.Ganho = f.stage("Ganho", schemas.STAGE_CATEGORY_GANHO, 4, func(s *schemas.Stage) { s.IsFinal = true })
	f.Perdido = f.stage("Perdido", schemas.STAGE_CATEGORY_PERDIDO, 5, func(s *schemas.Stage) { s.IsFinal = true })

	return f
}

func (f *Funnel) stage(name string, category schemas.StageCategory, order int, edit func(*schemas.Stage)) schemas.Stage {
	stage := schemas.Stage{
		ID:         bson.NewObjectID(),
		CampaignID: f.CampaignID,
		Name:       name,
		Category:   category,
		Order:      order,
		Active:     true,
	}
	if edit != nil {
		edit(&stage)
	}
	f.Store.PutStage(stage)
	return stage
}

// AddContact enrolls a contact, optionally already sitting on a stage.
func (f *Funnel) AddContact(stage *schemas.Stage) schemas.EnrolledContact {
	contact := schemas.EnrolledContact{
		ID:               bson.NewObjectID(),
		CampaignID:       f.CampaignID,
		ContactID:        bson.NewObjectID(),
		ContactType:      schemas.CONTACT_TYPE_LEAD,
		EnrollmentStatus: schemas.ENROLLMENT_STATUS_ACTIVE,
		EnrolledAt:       f.Clock.Now(),
	}
	if stage != nil {
		stageID := stage.ID
		enteredAt := f.Clock.Now()
		contact.CurrentStageID = &stageID
		contact.LastTransitionAt = &enteredAt
	}
	f.Store.PutContact(contact)
	return contact
}

func (f *Funnel) AddContacts(n int, stage *schemas.Stage) []schemas.EnrolledContact {
	contacts := make([]schemas.EnrolledContact, 0, n)
	for i := 0; i < n; i++ {
		contacts = append(contacts, f.AddContact(stage))
	}
	return contacts
}

func IDs(contacts []schemas.EnrolledContact) []string {
	ids := make([]string, 0, len(contacts))
	for _, c := range contacts {
		ids = append(ids, c.ID.Hex())
	}
	return ids
}
