package hedge

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/ethereum/go-ethereum/common"

	"github.com/harshkas4na/VolatilityProtection/internal/orderstore"
)

const DefaultMaxAttempts = 3

// PendingStore is the part of the order store a sweep uses.
type PendingStore interface {
	List(ctx context.Context, f orderstore.Filter) ([]orderstore.Record, error)
	RecordAttempt(ctx context.Context, hash common.Hash, reason string) (int, error)
	MarkFailed(ctx context.Context, hash common.Hash, reason string) error
}

type SweepOptions struct {
	MaxAttempts int
	// Limit caps the orders checked per sweep. It applies after the chain,
	// router and maker filters.
	Limit int
	// Makers restricts the sweep to these makers when non-empty.
	Makers []common.Address
}

type SweepStats struct {
	Checked int
	Filled  int
	Waiting int
	Retired int
	Errors  int
}

func (s SweepStats) String() string {
	return fmt.Sprintf("checked=%d filled=%d waiting=%d retired=%d errors=%d", s.Checked, s.Filled, s.Waiting, s.Retired, s.Errors)
}

// Sweep tries to fill every pending order signed for the flow's chain and
// router whose predicate currently holds.
// Orders the router reports as filled, cancelled or expired are retired;
// fill failures count toward MaxAttempts. Running out of the taker asset
// stops the sweep with ErrInsufficientBalance.
func (f *Flow) Sweep(ctx context.Context, store PendingStore, opts SweepOptions) (SweepStats, error) {
	var stats SweepStats
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}

	recs, err := store.List(ctx, orderstore.Filter{
		Status:  orderstore.StatusPending,
		ChainID: f.ChainID,
		Router:  f.Router,
		Makers:  opts.Makers,
		Limit:   opts.Limit,
	})
	if err != nil {
		return stats, err
	}
	for _, rec := range recs {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		so := rec.Order
		stats.Checked++

		err := f.CheckFillable(ctx, so)
		switch {
		case errors.Is(err, ErrPredicateFalse):
			stats.Waiting++
			continue
		case errors.Is(err, ErrNotFillable):
			log.Printf("[keeper] retire %s: %v", rec.Hash.Hex(), err)
			if merr := store.MarkFailed(ctx, rec.Hash, err.Error()); merr != nil {
				log.Printf("[warn] mark failed %s: %v", rec.Hash.Hex(), merr)
			}
			stats.Retired++
			continue
		case err != nil:
			log.Printf("[warn] check %s: %v", rec.Hash.Hex(), err)
			stats.Errors++
			continue
		}

		log.Printf("[keeper] predicate holds for %s, filling", rec.Hash.Hex())
		if err := f.PrepareTaker(ctx, so); err != nil {
			if errors.Is(err, ErrInsufficientBalance) {
				return stats, err
			}
			log.Printf("[warn] prepare %s: %v", rec.Hash.Hex(), err)
			stats.Errors++
			continue
		}
		// CheckFillable above already ran the preflight.
		res, err := f.fill(ctx, so, false)
		if err != nil {
			stats.Errors++
			attempts, aerr := store.RecordAttempt(ctx, rec.Hash, err.Error())
			if aerr != nil {
				log.Printf("[warn] record attempt %s: %v", rec.Hash.Hex(), aerr)
				continue
			}
			log.Printf("[warn] fill %s failed (attempt %d/%d): %v", rec.Hash.Hex(), attempts, opts.MaxAttempts, err)
			if attempts >= opts.MaxAttempts {
				if merr := store.MarkFailed(ctx, rec.Hash, err.Error()); merr != nil {
					log.Printf("[warn] mark failed %s: %v", rec.Hash.Hex(), merr)
				}
				stats.Retired++
			}
			continue
		}
		if res.Tx != nil {
			stats.Filled++
		}
	}
	return stats, nil
}
