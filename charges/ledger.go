package charges

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/spacearena/lead-pipeline/schemas"
)

const (
	queryLockBalance = "SELECT balance_cents FROM campaign_credits WHERE campaign_id = ? FOR UPDATE"
	queryDebit       = "UPDATE campaign_credits SET balance_cents = balance_cents - ?, updated_at = ? WHERE campaign_id = ?"
	queryInsertEntry = "INSERT INTO credit_transactions (campaign_id, contact_id, stage_id, amount_cents, description, created_at) VALUES (?, ?, ?, ?, ?, ?)"
)

// LedgerGateway debits the campaign's credit wallet kept in the legacy
// Laravel MySQL database.
type LedgerGateway struct {
	db  *sql.DB
	now func() time.Time
}

func NewLedgerGateway(db *sql.DB) *LedgerGateway {
	return &LedgerGateway{db: db, now: time.Now}
}

func (g *LedgerGateway) Charge(ctx context.Context, req schemas.ChargeRequest) (schemas.ChargeResult, error) {
	if req.AmountCents <= 0 {
		return schemas.ChargeResult{Success: false, Message: "valor de cobrança inválido"}, nil
	}

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return schemas.ChargeResult{}, fmt.Errorf("failed to begin charge transaction: %w", err)
	}
	defer tx.Rollback()

	campaignID := req.CampaignID.Hex()

	var balance int64
	err = tx.QueryRowContext(ctx, queryLockBalance, campaignID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return schemas.ChargeResult{Success: false, Message: "campanha sem carteira de créditos"}, nil
	}
	if err != nil {
		return schemas.ChargeResult{}, fmt.Errorf("failed to read credit balance: %w", err)
	}

	if balance < req.AmountCents {
		return schemas.ChargeResult{
			Success: false,
			Message: fmt.Sprintf("saldo insuficiente: disponível %d, necessário %d", balance, req.AmountCents),
		}, nil
	}

	now := g.now().UTC()
	if _, err := tx.ExecContext(ctx, queryDebit, req.AmountCents, now, campaignID); err != nil {
		return schemas.ChargeResult{}, fmt.Errorf("failed to debit credits: %w", err)
	}
	if _, err := tx.ExecContext(ctx, queryInsertEntry, campaignID, req.ContactID.Hex(), req.StageID.Hex(), req.AmountCents, req.Description, now); err != nil {
		return schemas.ChargeResult{}, fmt.Errorf("failed to insert credit transaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return schemas.ChargeResult{}, fmt.Errorf("failed to commit charge: %w", err)
	}
	return schemas.ChargeResult{Success: true}, nil
}
