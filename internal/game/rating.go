package game

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// aggregateRating recomputes the player's rating from all of its answers and
// moves the owning user's lifetime rating by the difference. It must run in
// the same transaction as the answer write that triggered it.
func aggregateRating(ctx context.Context, r Repo, playerID int64) (decimal.Decimal, error) {
	player, err := r.PlayerForUpdate(ctx, playerID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("lock player: %w", err)
	}
	total, err := r.PlayerPoints(ctx, playerID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum points: %w", err)
	}
	delta := total.Sub(player.Rating)
	if delta.IsZero() {
		return total, nil
	}
	if err := r.SetPlayerRating(ctx, playerID, total); err != nil {
		return decimal.Zero, fmt.Errorf("set player rating: %w", err)
	}
	if err := r.AddUserRating(ctx, player.UserID, delta); err != nil {
		return decimal.Zero, fmt.Errorf("apply user rating: %w", err)
	}
	return total, nil
}
