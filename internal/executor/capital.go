package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/dextra-labs/dextra/internal/safemath"
)

var (
	ErrBorrowDenied = errors.New("capital provider denied borrow")
	ErrUnknownLoan  = errors.New("unknown loan")
)

// Loan is an outstanding flash borrow.
type Loan struct {
	ID     string
	Amount uint64
}

// CapitalProvider supplies the transient capital for flash-funded
// arbitrages. Implementations must tolerate Repay being called with the
// bare principal when an execution aborts mid-flight.
type CapitalProvider interface {
	Borrow(ctx context.Context, amount uint64) (*Loan, error)
	Repay(ctx context.Context, loan *Loan, amount uint64) error
}

// SimulatedCapitalProvider is an in-memory liquidity pool used for local
// execution and tests.
type SimulatedCapitalProvider struct {
	mu          sync.Mutex
	liquidity   uint64
	outstanding map[string]uint64
}

// NewSimulatedCapitalProvider creates a pool with the given liquidity in
// token base units.
func NewSimulatedCapitalProvider(liquidity uint64) *SimulatedCapitalProvider {
	return &SimulatedCapitalProvider{
		liquidity:   liquidity,
		outstanding: make(map[string]uint64),
	}
}

func (p *SimulatedCapitalProvider) Borrow(_ context.Context, amount uint64) (*Loan, error) {
	if amount == 0 {
		return nil, ErrInvalidAmount
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if amount > p.liquidity {
		return nil, fmt.Errorf("%w: requested %d, available %d", ErrBorrowDenied, amount, p.liquidity)
	}
	p.liquidity -= amount

	loan := &Loan{ID: uuid.New().String(), Amount: amount}
	p.outstanding[loan.ID] = amount
	return loan, nil
}

func (p *SimulatedCapitalProvider) Repay(_ context.Context, loan *Loan, amount uint64) error {
	if loan == nil {
		return ErrUnknownLoan
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.outstanding[loan.ID]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownLoan, loan.ID)
	}

	liquidity, err := safemath.Add(p.liquidity, amount)
	if err != nil {
		return err
	}
	p.liquidity = liquidity
	delete(p.outstanding, loan.ID)
	return nil
}

// Liquidity returns the currently available pool balance.
func (p *SimulatedCapitalProvider) Liquidity() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.liquidity
}

// Outstanding reports the number of unrepaid loans.
func (p *SimulatedCapitalProvider) Outstanding() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.outstanding)
}
