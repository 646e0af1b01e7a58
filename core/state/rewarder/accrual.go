package rewarder

import (
	"math/big"

	"github.com/tilemint/tilemint-node/fixed"
)

func min64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

// applicable is the last instant the pool releases reward at.
func (p *Pool) applicable(now uint64) uint64 {
	return min64(now, p.PeriodFinish)
}

// settled returns a copy of p advanced to now. Released reward goes to the
// accumulator, or to Unallocated while nobody holds weight.
func (p *Pool) settled(totalWeight *big.Int, now uint64) (*Pool, error) {
	result := p.copy()

	until := p.applicable(now)
	if until <= p.LastUpdate {
		return result, nil
	}

	released, err := fixed.Mul(p.Rate, new(big.Int).SetUint64(until-p.LastUpdate))
	if err != nil {
		return nil, err
	}

	if totalWeight.Sign() == 0 {
		if result.Unallocated, err = fixed.Add(p.Unallocated, released); err != nil {
			return nil, err
		}
	} else {
		// released * 1e18 / totalWeight
		delta, err := fixed.MulDiv(released, fixed.One, totalWeight)
		if err != nil {
			return nil, err
		}
		if result.RewardPerWeight, err = fixed.Add(p.RewardPerWeight, delta); err != nil {
			return nil, err
		}
	}

	result.LastUpdate = until
	return result, nil
}

// earned = weight * (rewardPerWeight - paid) / 1e18
func earned(weight, rewardPerWeight, paid *big.Int) (*big.Int, error) {
	diff, err := fixed.Sub(rewardPerWeight, paid)
	if err != nil {
		return nil, err
	}

	return fixed.MulDiv(weight, diff, fixed.One)
}

// notified returns a copy of the settled pool p restarted with amount over
// duration. Leftovers of a running period and unallocated accrual roll in.
func (p *Pool) notified(amount *big.Int, duration, now uint64) (*Pool, error) {
	result := p.copy()

	total, err := fixed.Add(amount, p.Unallocated)
	if err != nil {
		return nil, err
	}

	if now < p.PeriodFinish {
		remaining, err := fixed.Mul(p.Rate, new(big.Int).SetUint64(p.PeriodFinish-now))
		if err != nil {
			return nil, err
		}
		if total, err = fixed.Add(total, remaining); err != nil {
			return nil, err
		}
	}

	if result.Rate, err = fixed.Div(total, new(big.Int).SetUint64(duration)); err != nil {
		return nil, err
	}
	if result.Balance, err = fixed.Add(p.Balance, amount); err != nil {
		return nil, err
	}
	if result.Notified, err = fixed.Add(p.Notified, amount); err != nil {
		return nil, err
	}

	result.Unallocated = big.NewInt(0)
	result.LastUpdate = now
	result.PeriodFinish = now + duration

	return result, nil
}
