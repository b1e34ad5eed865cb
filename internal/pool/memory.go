package pool

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"floorVault/internal/fixedpoint"
)

type rangeKey struct {
	owner common.Address
	lower int32
	upper int32
}

type tokenPair struct {
	amount0 *uint256.Int
	amount1 *uint256.Int
}

func (p tokenPair) clone() tokenPair {
	return tokenPair{
		amount0: new(uint256.Int).Set(fixedpoint.OrZero(p.amount0)),
		amount1: new(uint256.Int).Set(fixedpoint.OrZero(p.amount1)),
	}
}

type memoryState struct {
	sqrtPrice *uint256.Int
	tick      int32
	liquidity map[rangeKey]*uint256.Int
	owed      map[rangeKey]tokenPair
	balances  map[common.Address]tokenPair
}

func (s memoryState) clone() memoryState {
	out := memoryState{
		sqrtPrice: new(uint256.Int).Set(s.sqrtPrice),
		tick:      s.tick,
		liquidity: make(map[rangeKey]*uint256.Int, len(s.liquidity)),
		owed:      make(map[rangeKey]tokenPair, len(s.owed)),
		balances:  make(map[common.Address]tokenPair, len(s.balances)),
	}
	for k, v := range s.liquidity {
		out.liquidity[k] = new(uint256.Int).Set(v)
	}
	for k, v := range s.owed {
		out.owed[k] = v.clone()
	}
	for k, v := range s.balances {
		out.balances[k] = v.clone()
	}
	return out
}

// MemoryPool is an in-process pool: positions hold the amounts implied by
// their liquidity at the current price, and the price is moved externally.
// It also acts as the token ledger for its owners.
type MemoryPool struct {
	mu          sync.RWMutex
	state       memoryState
	prev        *memoryState
	totalSupply *uint256.Int
}

// NewMemoryPool creates a pool priced at tick.
func NewMemoryPool(tick int32) (*MemoryPool, error) {
	sqrt, err := fixedpoint.SqrtRatioAtTick(tick)
	if err != nil {
		return nil, err
	}
	return &MemoryPool{
		state: memoryState{
			sqrtPrice: sqrt,
			tick:      tick,
			liquidity: make(map[rangeKey]*uint256.Int),
			owed:      make(map[rangeKey]tokenPair),
			balances:  make(map[common.Address]tokenPair),
		},
		totalSupply: new(uint256.Int),
	}, nil
}

// SetTick moves the spot price to the given tick.
func (p *MemoryPool) SetTick(tick int32) error {
	sqrt, err := fixedpoint.SqrtRatioAtTick(tick)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.state.sqrtPrice = sqrt
	p.state.tick = tick
	p.mu.Unlock()
	return nil
}

// SetPrice moves the spot price to the tick at a WAD price.
func (p *MemoryPool) SetPrice(price *uint256.Int) error {
	sqrt, err := fixedpoint.SqrtX96FromPrice(price)
	if err != nil {
		return err
	}
	tick, err := fixedpoint.TickAtSqrtRatio(sqrt)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.state.sqrtPrice = sqrt
	p.state.tick = tick
	p.mu.Unlock()
	return nil
}

// Credit adds token balances to an owner.
func (p *MemoryPool) Credit(owner common.Address, amount0, amount1 *uint256.Int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	bal := p.state.balances[owner].clone()
	bal.amount0.Add(bal.amount0, fixedpoint.OrZero(amount0))
	bal.amount1.Add(bal.amount1, fixedpoint.OrZero(amount1))
	p.state.balances[owner] = bal
}

// SetTotalSupply sets token0 total supply reported by the ledger view.
func (p *MemoryPool) SetTotalSupply(supply *uint256.Int) {
	p.mu.Lock()
	p.totalSupply = new(uint256.Int).Set(supply)
	p.mu.Unlock()
}

// Slot0 returns the current price state.
func (p *MemoryPool) Slot0(_ context.Context) (Slot0, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Slot0{SqrtPriceX96: new(uint256.Int).Set(p.state.sqrtPrice), Tick: p.state.tick}, nil
}

// PositionLiquidity returns the liquidity owner holds in [lower, upper].
func (p *MemoryPool) PositionLiquidity(_ context.Context, owner common.Address, lower, upper int32) (*uint256.Int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if l, ok := p.state.liquidity[rangeKey{owner: owner, lower: lower, upper: upper}]; ok {
		return new(uint256.Int).Set(l), nil
	}
	return new(uint256.Int), nil
}

// TotalSupply returns token0 total supply.
func (p *MemoryPool) TotalSupply(_ context.Context) (*uint256.Int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return new(uint256.Int).Set(p.totalSupply), nil
}

// Balance0 returns an account's token0 balance.
func (p *MemoryPool) Balance0(_ context.Context, account common.Address) (*uint256.Int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state.balances[account].clone().amount0, nil
}

// Balance1 returns an account's token1 balance.
func (p *MemoryPool) Balance1(_ context.Context, account common.Address) (*uint256.Int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state.balances[account].clone().amount1, nil
}

// Apply executes the batch on a copy of the state and swaps it in on success.
func (p *MemoryPool) Apply(ctx context.Context, owner common.Address, batch []Instruction) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	next := p.state.clone()
	for i, ins := range batch {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := next.apply(owner, ins); err != nil {
			return fmt.Errorf("instruction %d (%s): %w", i, ins, err)
		}
	}

	prev := p.state
	p.prev = &prev
	p.state = next
	return nil
}

// RevertLast restores the state from before the last applied batch.
func (p *MemoryPool) RevertLast(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.prev == nil {
		return ErrNothingToRevert
	}
	// Keep the current price: only the batch is undone.
	restored := *p.prev
	restored.sqrtPrice = p.state.sqrtPrice
	restored.tick = p.state.tick
	p.state = restored
	p.prev = nil
	return nil
}

func (s *memoryState) apply(owner common.Address, ins Instruction) error {
	key := rangeKey{owner: owner, lower: ins.LowerTick, upper: ins.UpperTick}
	sqrtA, err := fixedpoint.SqrtRatioAtTick(ins.LowerTick)
	if err != nil {
		return err
	}
	sqrtB, err := fixedpoint.SqrtRatioAtTick(ins.UpperTick)
	if err != nil {
		return err
	}

	switch ins.Op {
	case OpMint:
		liquidity := fixedpoint.OrZero(ins.Liquidity)
		if liquidity.IsZero() {
			return nil
		}
		amount0, amount1 := fixedpoint.AmountsForLiquidity(s.sqrtPrice, sqrtA, sqrtB, liquidity)
		bal := s.balances[owner].clone()
		if bal.amount0.Lt(amount0) || bal.amount1.Lt(amount1) {
			return fmt.Errorf("%w: need %s/%s have %s/%s", ErrInsufficientBalance,
				amount0.Dec(), amount1.Dec(), bal.amount0.Dec(), bal.amount1.Dec())
		}
		bal.amount0.Sub(bal.amount0, amount0)
		bal.amount1.Sub(bal.amount1, amount1)
		s.balances[owner] = bal

		current := fixedpoint.OrZero(s.liquidity[key])
		total, err := fixedpoint.Add(current, liquidity)
		if err != nil {
			return err
		}
		if total.Gt(fixedpoint.MaxLiquidity()) {
			return fixedpoint.ErrLiquidityOverflow
		}
		s.liquidity[key] = total
	case OpBurn:
		liquidity := fixedpoint.OrZero(ins.Liquidity)
		if liquidity.IsZero() {
			return nil
		}
		current := fixedpoint.OrZero(s.liquidity[key])
		if current.Lt(liquidity) {
			return fmt.Errorf("%w: have %s burn %s", ErrInsufficientLiquidity, current.Dec(), liquidity.Dec())
		}
		amount0, amount1 := fixedpoint.AmountsForLiquidity(s.sqrtPrice, sqrtA, sqrtB, liquidity)
		remaining := new(uint256.Int).Sub(current, liquidity)
		if remaining.IsZero() {
			delete(s.liquidity, key)
		} else {
			s.liquidity[key] = remaining
		}
		owed := s.owed[key].clone()
		owed.amount0.Add(owed.amount0, amount0)
		owed.amount1.Add(owed.amount1, amount1)
		s.owed[key] = owed
	case OpCollect:
		owed, ok := s.owed[key]
		if !ok {
			return nil
		}
		bal := s.balances[owner].clone()
		bal.amount0.Add(bal.amount0, owed.amount0)
		bal.amount1.Add(bal.amount1, owed.amount1)
		s.balances[owner] = bal
		delete(s.owed, key)
	default:
		return fmt.Errorf("unknown op %d", ins.Op)
	}
	return nil
}
