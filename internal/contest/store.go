package contest

import (
	"context"

	"github.com/holiman/uint256"
)

// Store persists the event journal and draw requests.
type Store interface {
	// Journal operations. Seq is assigned by the contest and is strictly
	// increasing from 1.
	AppendEvent(ctx context.Context, event Event) error
	ListEvents(ctx context.Context, afterSeq int64, limit int) ([]Event, error)

	// Draw operations
	CreateDraw(ctx context.Context, draw DrawRequest) error
	UpdateDraw(ctx context.Context, draw DrawRequest) error
	GetDraw(ctx context.Context, id string) (DrawRequest, error)
	ListDrawsByStatus(ctx context.Context, status DrawStatus) ([]DrawRequest, error)
}

// Asset is the fee-on-transfer token the contest holds deposits in.
// Implementations must pass ctx through to any callback into the contest.
type Asset interface {
	BalanceOf(ctx context.Context, account ParticipantID) (*uint256.Int, error)
	Transfer(ctx context.Context, from, to ParticipantID, amount *uint256.Int) error
	// UnitsFromAmount and AmountFromUnits convert between redeemable amounts
	// and the asset's internal accounting units at the current rate.
	UnitsFromAmount(ctx context.Context, amount *uint256.Int) (*uint256.Int, error)
	AmountFromUnits(ctx context.Context, units *uint256.Int) (*uint256.Int, error)
}

// RandomnessOracle supplies random values asynchronously. The value arrives
// later through Fulfiller.FulfillRandomness with the returned request id.
type RandomnessOracle interface {
	Balance(ctx context.Context, consumer string) (int64, error)
	RequestRandomness(ctx context.Context, consumer string, seed []byte, fee int64) (string, error)
}

// Fulfiller receives oracle callbacks.
type Fulfiller interface {
	FulfillRandomness(ctx context.Context, requestID string, value *uint256.Int) error
}
