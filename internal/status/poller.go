package status

import (
	"context"
	"log/slog"
	"time"

	"splitrails/internal/escrow"
)

// Poller periodically re-projects one bill's ledger state. Consumers start
// it explicitly with Run and stop it by cancelling the context; it also
// stops itself once the bill reaches a terminal state, since no useful state
// changes remain after that.
type Poller struct {
	ledger   escrow.Ledger
	id       escrow.BillID
	interval time.Duration
	now      func() time.Time

	// OnUpdate receives every successful observation, including the final
	// terminal one.
	OnUpdate func(Snapshot)
}

func NewPoller(ledger escrow.Ledger, id escrow.BillID, interval time.Duration, onUpdate func(Snapshot)) *Poller {
	return &Poller{
		ledger:   ledger,
		id:       id,
		interval: interval,
		now:      time.Now,
		OnUpdate: onUpdate,
	}
}

// Run polls until the context is cancelled or the bill is terminal. Each
// iteration re-checks both stop conditions before touching the ledger, so a
// cancelled consumer never triggers another read. Observations may lag the
// ledger by up to one interval.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		info, err := p.ledger.GetBillInfo(ctx, p.id)
		if err != nil {
			slog.Warn("status poll failed", "escrow_id", p.id.Hex(), "error", err)
		} else {
			snapshot := Project(info, p.now())
			if p.OnUpdate != nil {
				p.OnUpdate(snapshot)
			}
			if info.Terminal() {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
