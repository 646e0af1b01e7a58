package types

import (
	"fmt"
	"math/big"

	"github.com/pkg/errors"
)

// AppState is the JSON genesis and export format of the whole state.
type AppState struct {
	Owner     Address      `json:"owner"`
	Params    Params       `json:"params"`
	Accounts  []Account    `json:"accounts"`
	Coins     []Coin       `json:"coins"`
	Token     Token        `json:"token"`
	Fees      []Balance    `json:"fees,omitempty"`
	Rewarders []Rewarder   `json:"rewarders,omitempty"`
	Grids     Grids        `json:"grids"`
	Emission  EmissionInfo `json:"emission"`
}

type Params struct {
	FeeBps            uint32 `json:"fee_bps"`
	ReserveVirtual    string `json:"reserve_virtual"`
	MaxSupply         string `json:"max_supply"`
	TileCost          string `json:"tile_cost"`
	GridWidth         uint32 `json:"grid_width"`
	GridHeight        uint32 `json:"grid_height"`
	EpochDuration     uint64 `json:"epoch_duration"`
	InitialEmission   string `json:"initial_emission"`
	TailEmission      string `json:"tail_emission"`
	DecayBps          uint32 `json:"decay_bps"`
	GridShareBps      uint32 `json:"grid_share_bps"`
	FeeRewardDuration uint64 `json:"fee_reward_duration"`
}

type Account struct {
	Address    Address     `json:"address"`
	Balance    []Balance   `json:"balance"`
	Allowances []Allowance `json:"allowances,omitempty"`
	Nonce      uint64      `json:"nonce"`
}

type Balance struct {
	Asset AssetID `json:"asset"`
	Value string  `json:"value"`
}

type Allowance struct {
	Spender Address `json:"spender"`
	Asset   AssetID `json:"asset"`
	Value   string  `json:"value"`
}

type Coin struct {
	Asset  AssetID `json:"asset"`
	Symbol string  `json:"symbol"`
	Volume string  `json:"volume"`
}

type Token struct {
	TotalSupply  string  `json:"total_supply"`
	ReserveReal  string  `json:"reserve_real"`
	TotalStaked  string  `json:"total_staked"`
	Exercised    string  `json:"exercised,omitempty"`
	FloorReserve string  `json:"floor_reserve,omitempty"`
	TotalDebt    string  `json:"total_debt,omitempty"`
	Stakes       []Stake `json:"stakes,omitempty"`
	Debts        []Stake `json:"debts,omitempty"`
}

type Stake struct {
	Owner Address `json:"owner"`
	Value string  `json:"value"`
}

type Rewarder struct {
	ID          RewarderID       `json:"id"`
	TotalWeight string           `json:"total_weight"`
	Pools       []RewardPool     `json:"pools"`
	Positions   []RewardPosition `json:"positions,omitempty"`
}

type RewardPool struct {
	Asset           AssetID `json:"asset"`
	Rate            string  `json:"rate"`
	PeriodFinish    uint64  `json:"period_finish"`
	LastUpdate      uint64  `json:"last_update"`
	RewardPerWeight string  `json:"reward_per_weight"`
	Balance         string  `json:"balance"`
	Unallocated     string  `json:"unallocated"`
}

type RewardPosition struct {
	Account Address          `json:"account"`
	Weight  string           `json:"weight"`
	Rewards []PositionReward `json:"rewards,omitempty"`
}

type PositionReward struct {
	Asset   AssetID `json:"asset"`
	Paid    string  `json:"paid"`
	Pending string  `json:"pending"`
}

type Grids struct {
	NextID     GridID      `json:"next_id"`
	Colors     []string    `json:"colors"`
	List       []Grid      `json:"list,omitempty"`
	Placements []Placement `json:"placements,omitempty"`
}

type Grid struct {
	ID    GridID  `json:"id"`
	Owner Address `json:"owner"`
	Tiles []Tile  `json:"tiles,omitempty"`
}

type Tile struct {
	X     uint32  `json:"x"`
	Y     uint32  `json:"y"`
	Owner Address `json:"owner"`
	Color uint32  `json:"color"`
}

type Placement struct {
	Grid    GridID  `json:"grid"`
	Account Address `json:"account"`
	Count   uint64  `json:"count"`
}

type EmissionInfo struct {
	Initialized  bool   `json:"initialized"`
	ActivePeriod uint64 `json:"active_period"`
	Weekly       string `json:"weekly"`
	EpochCount   uint64 `json:"epoch_count"`
}

// Verify checks the structural consistency of a genesis state.
func (s *AppState) Verify() error {
	if s.Owner.IsZero() {
		return errors.New("owner is not set")
	}
	if err := s.Params.Verify(); err != nil {
		return errors.Wrap(err, "params")
	}

	seen := map[Address]struct{}{}
	for _, acc := range s.Accounts {
		if _, ok := seen[acc.Address]; ok {
			return fmt.Errorf("duplicate account %s", acc.Address)
		}
		seen[acc.Address] = struct{}{}
		for _, b := range acc.Balance {
			if !b.Asset.IsValid() {
				return fmt.Errorf("account %s: unknown asset %d", acc.Address, b.Asset)
			}
			if !isAmount(b.Value) {
				return fmt.Errorf("account %s: wrong balance %q", acc.Address, b.Value)
			}
		}
		for _, a := range acc.Allowances {
			if !isAmount(a.Value) {
				return fmt.Errorf("account %s: wrong allowance %q", acc.Address, a.Value)
			}
		}
	}

	for _, c := range s.Coins {
		if !c.Asset.IsValid() {
			return fmt.Errorf("unknown coin asset %d", c.Asset)
		}
		if !isAmount(c.Volume) {
			return fmt.Errorf("coin %s: wrong volume %q", c.Asset.Symbol(), c.Volume)
		}
	}

	for _, c := range s.Grids.Colors {
		if !IsColor(c) {
			return fmt.Errorf("wrong color %q", c)
		}
	}
	grids := map[GridID]struct{}{}
	for _, g := range s.Grids.List {
		if _, ok := grids[g.ID]; ok {
			return fmt.Errorf("duplicate grid %d", g.ID)
		}
		grids[g.ID] = struct{}{}
		if g.ID >= s.Grids.NextID {
			return fmt.Errorf("grid %d is not below next id %d", g.ID, s.Grids.NextID)
		}
		for _, t := range g.Tiles {
			if t.X >= s.Params.GridWidth || t.Y >= s.Params.GridHeight {
				return fmt.Errorf("grid %d: tile (%d,%d) out of bounds", g.ID, t.X, t.Y)
			}
			if int(t.Color) >= len(s.Grids.Colors) {
				return fmt.Errorf("grid %d: tile (%d,%d) has unknown color %d", g.ID, t.X, t.Y, t.Color)
			}
		}
	}

	rewarders := map[RewarderID]struct{}{}
	for _, r := range s.Rewarders {
		if !r.ID.IsValid() {
			return fmt.Errorf("unknown rewarder %d", r.ID)
		}
		if _, ok := rewarders[r.ID]; ok {
			return fmt.Errorf("duplicate rewarder %s", r.ID)
		}
		rewarders[r.ID] = struct{}{}
		for _, p := range r.Pools {
			if !isAmount(p.Balance) {
				return fmt.Errorf("rewarder %s: wrong %s pool balance %q", r.ID, p.Asset.Symbol(), p.Balance)
			}
		}
	}

	return nil
}

// Verify checks that every economic parameter is usable.
func (p Params) Verify() error {
	if p.FeeBps >= MaxBps {
		return fmt.Errorf("fee_bps must be below %d", MaxBps)
	}
	if !isPositive(p.ReserveVirtual) {
		return errors.New("reserve_virtual must be positive")
	}
	if !isPositive(p.MaxSupply) {
		return errors.New("max_supply must be positive")
	}
	if !isPositive(p.TileCost) {
		return errors.New("tile_cost must be positive")
	}
	if p.GridWidth == 0 || p.GridHeight == 0 || p.GridWidth > MaxGridSide || p.GridHeight > MaxGridSide {
		return fmt.Errorf("grid size must be within 1..%d", MaxGridSide)
	}
	if p.EpochDuration == 0 {
		return errors.New("epoch_duration must be positive")
	}
	if p.FeeRewardDuration == 0 {
		return errors.New("fee_reward_duration must be positive")
	}
	if !isAmount(p.InitialEmission) || !isAmount(p.TailEmission) {
		return errors.New("wrong emission amounts")
	}
	if p.DecayBps > MaxBps || p.GridShareBps > MaxBps {
		return fmt.Errorf("decay_bps and grid_share_bps must not exceed %d", MaxBps)
	}
	return nil
}

func isAmount(s string) bool {
	v, ok := big.NewInt(0).SetString(s, 10)
	return ok && v.Sign() >= 0
}

func isPositive(s string) bool {
	v, ok := big.NewInt(0).SetString(s, 10)
	return ok && v.Sign() > 0
}
