package token

import (
	"bytes"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/cosmos/iavl"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"
	"github.com/tilemint/tilemint-node/core/code"
	eventsdb "github.com/tilemint/tilemint-node/core/events"
	"github.com/tilemint/tilemint-node/core/state/bus"
	"github.com/tilemint/tilemint-node/core/state/rewarder"
	"github.com/tilemint/tilemint-node/core/types"
	"github.com/tilemint/tilemint-node/fixed"
	"github.com/tilemint/tilemint-node/formula"
	"github.com/tilemint/tilemint-node/helpers"
)

const mainPrefix = byte('t')
const stakePrefix = byte('s')
const debtPrefix = byte('d')

const secondsPerYear = 365 * 24 * 60 * 60

// 100% with 18 decimals
var percent = new(big.Int).Mul(big.NewInt(100), fixed.One)

type RToken interface {
	Export(state *types.AppState)
	Curve() formula.Curve
	TotalSupply() *big.Int
	ReserveReal() *big.Int
	TotalStaked() *big.Int
	Staked(account types.Address) *big.Int
	QuoteMint(baseIn *big.Int) (*Quote, error)
	QuoteBurn(tokenIn *big.Int) (*Quote, error)
	SpotPrice() (*big.Int, error)
	FloorPrice() (*big.Int, error)
	MarketCap() (*big.Int, error)
	ReserveBase() (*big.Int, error)
	CheckMint(sender types.Address, baseIn, minOut *big.Int) (*Quote, error)
	CheckBurn(sender types.Address, tokenIn, minOut *big.Int) (*Quote, error)
	CheckStake(account types.Address, amount *big.Int) error
	CheckUnstake(account types.Address, amount *big.Int) error

	Circulating() *big.Int
	Exercised() *big.Int
	FloorReserve() *big.Int
	TotalDebt() *big.Int
	Debt(account types.Address) *big.Int
	BorrowCredit(account types.Address) (*big.Int, error)
	MaxWithdraw(account types.Address) (*big.Int, error)
	QuoteExercise(options *big.Int) (*big.Int, error)
	CheckBorrow(account types.Address, amount *big.Int) error
	CheckRepay(account types.Address, amount *big.Int) error
	CheckExercise(sender types.Address, options *big.Int) (*big.Int, error)
	PriceOTOKEN() (*big.Int, error)
	LTV() (*big.Int, error)
	TVL() (*big.Int, error)
	APR(now uint64) (*big.Int, error)
}

// Quote is the outcome of a trade against the curve. For a mint In is BASE
// and Out is TOKEN, for a burn the other way round. Fee is always BASE.
type Quote struct {
	In      *big.Int
	Out     *big.Int
	Fee     *big.Int
	Reserve *big.Int // change of the real reserve

	// A burn of more TOKEN than the curve supply sells the rest at the
	// floor price out of the floor reserve.
	Redeemed *big.Int
	Floor    *big.Int
}

// Token is the bonding-curve market of TOKEN against BASE together with
// its staking ledger.
type Token struct {
	model *Model

	stakes      map[types.Address]*big.Int
	dirtyStakes map[types.Address]struct{}
	debts       map[types.Address]*big.Int
	dirtyDebts  map[types.Address]struct{}
	isDirty     bool

	bus *bus.Bus
	db  atomic.Value

	lock sync.RWMutex
}

func NewToken(stateBus *bus.Bus, db *iavl.ImmutableTree) *Token {
	immutableTree := atomic.Value{}
	if db != nil {
		immutableTree.Store(db)
	}
	return &Token{
		bus:         stateBus,
		db:          immutableTree,
		stakes:      map[types.Address]*big.Int{},
		dirtyStakes: map[types.Address]struct{}{},
		debts:       map[types.Address]*big.Int{},
		dirtyDebts:  map[types.Address]struct{}{},
	}
}

func (t *Token) immutableTree() *iavl.ImmutableTree {
	db := t.db.Load()
	if db == nil {
		return nil
	}
	return db.(*iavl.ImmutableTree)
}

func (t *Token) SetImmutableTree(immutableTree *iavl.ImmutableTree) {
	t.db.Store(immutableTree)
}

func stakePath(account types.Address) []byte {
	return append([]byte{mainPrefix, stakePrefix}, account[:]...)
}

func debtPath(account types.Address) []byte {
	return append([]byte{mainPrefix, debtPrefix}, account[:]...)
}

func sortAddresses(set map[types.Address]struct{}) []types.Address {
	accounts := make([]types.Address, 0, len(set))
	for account := range set {
		accounts = append(accounts, account)
	}
	sort.SliceStable(accounts, func(i, j int) bool {
		return bytes.Compare(accounts[i].Bytes(), accounts[j].Bytes()) == -1
	})
	return accounts
}

func (t *Token) Commit(db *iavl.MutableTree, version int64) error {
	t.lock.Lock()
	defer t.lock.Unlock()

	if t.isDirty {
		t.isDirty = false
		data, err := rlp.EncodeToBytes(t.model)
		if err != nil {
			return fmt.Errorf("can't encode token model: %s", err)
		}
		db.Set([]byte{mainPrefix}, data)
	}

	for _, account := range sortAddresses(t.dirtyStakes) {
		stake := t.stakes[account]
		if stake.Sign() == 0 {
			db.Remove(stakePath(account))
			continue
		}
		db.Set(stakePath(account), stake.Bytes())
	}
	t.dirtyStakes = map[types.Address]struct{}{}

	for _, account := range sortAddresses(t.dirtyDebts) {
		debt := t.debts[account]
		if debt.Sign() == 0 {
			db.Remove(debtPath(account))
			continue
		}
		db.Set(debtPath(account), debt.Bytes())
	}
	t.dirtyDebts = map[types.Address]struct{}{}

	return nil
}

func (t *Token) markDirty() {
	t.isDirty = true
}

func (t *Token) get() *Model {
	t.lock.Lock()
	defer t.lock.Unlock()

	if t.model != nil {
		return t.model
	}

	model := newModel()
	if tree := t.immutableTree(); tree != nil {
		_, enc := tree.Get([]byte{mainPrefix})
		if len(enc) != 0 {
			if err := rlp.DecodeBytes(enc, model); err != nil {
				panic(fmt.Sprintf("failed to decode token model: %s", err))
			}
		}
	}
	model.markDirty = t.markDirty

	t.model = model
	return t.model
}

func (t *Token) stake(account types.Address) *big.Int {
	t.lock.RLock()
	stake, ok := t.stakes[account]
	t.lock.RUnlock()
	if ok {
		return stake
	}

	stake = big.NewInt(0)
	if tree := t.immutableTree(); tree != nil {
		_, enc := tree.Get(stakePath(account))
		if len(enc) != 0 {
			stake.SetBytes(enc)
		}
	}

	t.lock.Lock()
	t.stakes[account] = stake
	t.lock.Unlock()

	return stake
}

func (t *Token) setStake(account types.Address, stake *big.Int) {
	t.lock.Lock()
	t.stakes[account] = stake
	t.dirtyStakes[account] = struct{}{}
	t.lock.Unlock()
}

func (t *Token) debt(account types.Address) *big.Int {
	t.lock.RLock()
	debt, ok := t.debts[account]
	t.lock.RUnlock()
	if ok {
		return debt
	}

	debt = big.NewInt(0)
	if tree := t.immutableTree(); tree != nil {
		_, enc := tree.Get(debtPath(account))
		debt.SetBytes(enc)
	}

	t.lock.Lock()
	t.debts[account] = debt
	t.lock.Unlock()

	return debt
}

func (t *Token) setDebt(account types.Address, debt *big.Int) {
	t.lock.Lock()
	t.debts[account] = debt
	t.dirtyDebts[account] = struct{}{}
	t.lock.Unlock()
}

// Curve is a snapshot of the curve reserves.
func (t *Token) Curve() formula.Curve {
	model := t.get()
	params := t.bus.App().Params()
	return formula.Curve{
		Supply:    new(big.Int).Set(model.TotalSupply),
		Reserve:   new(big.Int).Set(model.ReserveReal),
		Virtual:   params.ReserveVirtual,
		MaxSupply: params.MaxSupply,
	}
}

func (t *Token) TotalSupply() *big.Int {
	return new(big.Int).Set(t.get().TotalSupply)
}

func (t *Token) ReserveReal() *big.Int {
	return new(big.Int).Set(t.get().ReserveReal)
}

func (t *Token) TotalStaked() *big.Int {
	return new(big.Int).Set(t.get().TotalStaked)
}

// Circulating is every TOKEN in existence: the curve supply plus what was
// exercised from OTOKEN.
func (t *Token) Circulating() *big.Int {
	return t.get().circulating()
}

func (t *Token) Exercised() *big.Int {
	return new(big.Int).Set(t.get().Exercised)
}

func (t *Token) FloorReserve() *big.Int {
	return new(big.Int).Set(t.get().FloorReserve)
}

func (t *Token) TotalDebt() *big.Int {
	return new(big.Int).Set(t.get().TotalDebt)
}

// Debt returns a copy of the BASE account owes.
func (t *Token) Debt(account types.Address) *big.Int {
	return new(big.Int).Set(t.debt(account))
}

// Staked returns a copy of the staked balance of account.
func (t *Token) Staked(account types.Address) *big.Int {
	return new(big.Int).Set(t.stake(account))
}

// Weight makes the staking ledger the weight source of the staking rewarder.
func (t *Token) Weight(account types.Address) *big.Int {
	return t.Staked(account)
}

func (t *Token) SpotPrice() (*big.Int, error) {
	return formula.SpotPrice(t.Curve())
}

func (t *Token) FloorPrice() (*big.Int, error) {
	return formula.FloorPrice(t.Curve())
}

func (t *Token) MarketCap() (*big.Int, error) {
	return formula.MarketCap(t.Curve())
}

func (t *Token) ReserveBase() (*big.Int, error) {
	return t.Curve().ReserveBase()
}

// QuoteMint prices a purchase of TOKEN with baseIn BASE, fee included.
func (t *Token) QuoteMint(baseIn *big.Int) (*Quote, error) {
	if baseIn.Sign() <= 0 {
		return nil, code.ErrZeroAmount
	}
	if err := fixed.Check(baseIn); err != nil {
		return nil, code.FromMath(err)
	}

	fee, err := fixed.Bps(baseIn, t.bus.App().Params().FeeBps)
	if err != nil {
		return nil, code.FromMath(err)
	}
	net, err := fixed.Sub(baseIn, fee)
	if err != nil {
		return nil, err
	}

	out, err := formula.CalculatePurchaseReturn(t.Curve(), net)
	if err != nil {
		return nil, code.FromMath(err)
	}

	return &Quote{In: new(big.Int).Set(baseIn), Out: out, Fee: fee, Reserve: net, Redeemed: big.NewInt(0), Floor: big.NewInt(0)}, nil
}

// QuoteBurn prices a sale of tokenIn TOKEN. The curve buys up to its own
// supply; anything beyond is redeemed at the floor price.
func (t *Token) QuoteBurn(tokenIn *big.Int) (*Quote, error) {
	if tokenIn.Sign() <= 0 {
		return nil, code.ErrZeroAmount
	}
	model := t.get()
	if circulating := model.circulating(); tokenIn.Cmp(circulating) > 0 {
		return nil, errors.Wrapf(code.ErrInsufficientSupply, "selling %s of %s", tokenIn, circulating)
	}

	curve := t.Curve()
	sold := fixed.Min(tokenIn, curve.Supply)
	reserve, err := formula.CalculateSaleReturn(curve, sold)
	if err != nil {
		return nil, code.FromMath(err)
	}

	redeemed, err := fixed.Sub(tokenIn, sold)
	if err != nil {
		return nil, err
	}
	floor := big.NewInt(0)
	if redeemed.Sign() > 0 {
		price, err := t.FloorPrice()
		if err != nil {
			return nil, code.FromMath(err)
		}
		if floor, err = fixed.MulWad(redeemed, price); err != nil {
			return nil, code.FromMath(err)
		}
		floor = fixed.Min(floor, model.FloorReserve)
	}

	gross, err := fixed.Add(reserve, floor)
	if err != nil {
		return nil, code.FromMath(err)
	}
	fee, err := fixed.Bps(gross, t.bus.App().Params().FeeBps)
	if err != nil {
		return nil, code.FromMath(err)
	}
	out, err := fixed.Sub(gross, fee)
	if err != nil {
		return nil, err
	}

	return &Quote{
		In:       new(big.Int).Set(tokenIn),
		Out:      out,
		Fee:      fee,
		Reserve:  reserve,
		Redeemed: redeemed,
		Floor:    floor,
	}, nil
}

func checkSlippage(q *Quote, minOut *big.Int) error {
	if q.Out.Sign() == 0 {
		return errors.Wrap(code.ErrZeroAmount, "output rounds to zero")
	}
	if minOut != nil && q.Out.Cmp(minOut) < 0 {
		return errors.Wrapf(code.ErrSlippageExceeded, "got %s, want at least %s", q.Out, minOut)
	}
	return nil
}

// CheckMint validates a purchase and returns its quote.
func (t *Token) CheckMint(sender types.Address, baseIn, minOut *big.Int) (*Quote, error) {
	q, err := t.QuoteMint(baseIn)
	if err != nil {
		return nil, err
	}
	if err := checkSlippage(q, minOut); err != nil {
		return nil, err
	}
	if balance := t.bus.Accounts().GetBalance(sender, types.AssetBase); balance.Cmp(baseIn) < 0 {
		return nil, errors.Wrapf(code.ErrInsufficientBalance, "%s has %s %s, needs %s", sender, balance, types.AssetBase.Symbol(), baseIn)
	}
	if _, err := fixed.Add(t.bus.Coins().GetVolume(types.AssetToken), q.Out); err != nil {
		return nil, code.FromMath(err)
	}

	return q, nil
}

// Mint buys TOKEN for to with baseIn BASE of sender.
func (t *Token) Mint(sender types.Address, baseIn, minOut *big.Int, to types.Address) (*Quote, error) {
	q, err := t.CheckMint(sender, baseIn, minOut)
	if err != nil {
		return nil, err
	}

	if err := t.bus.Fees().ReceiveFee(sender, types.AssetBase, q.Fee); err != nil {
		return nil, err
	}
	if err := t.bus.Accounts().Transfer(sender, types.TokenReserveAddress, types.AssetBase, q.Reserve); err != nil {
		return nil, err
	}
	if err := t.bus.Coins().Mint(to, types.AssetToken, q.Out); err != nil {
		return nil, err
	}
	t.get().mint(q.Out, q.Reserve)

	t.bus.AddEvent(&eventsdb.TokenMintEvent{
		Address:   to,
		BaseIn:    q.In.String(),
		TokensOut: q.Out.String(),
		Fee:       q.Fee.String(),
	})

	return q, nil
}

// CheckBurn validates a sale and returns its quote.
func (t *Token) CheckBurn(sender types.Address, tokenIn, minOut *big.Int) (*Quote, error) {
	q, err := t.QuoteBurn(tokenIn)
	if err != nil {
		return nil, err
	}
	if err := checkSlippage(q, minOut); err != nil {
		return nil, err
	}
	if balance := t.bus.Accounts().GetBalance(sender, types.AssetToken); balance.Cmp(tokenIn) < 0 {
		return nil, errors.Wrapf(code.ErrInsufficientBalance, "%s has %s %s, needs %s", sender, balance, types.AssetToken.Symbol(), tokenIn)
	}
	paid := new(big.Int).Add(q.Reserve, q.Floor)
	if held := t.bus.Accounts().GetBalance(types.TokenReserveAddress, types.AssetBase); held.Cmp(paid) < 0 {
		return nil, errors.Wrapf(code.ErrInvariant, "reserve account holds %s, sale pays %s", held, paid)
	}

	return q, nil
}

// Burn sells tokenIn TOKEN of sender and pays the BASE out to to.
func (t *Token) Burn(sender types.Address, tokenIn, minOut *big.Int, to types.Address) (*Quote, error) {
	q, err := t.CheckBurn(sender, tokenIn, minOut)
	if err != nil {
		return nil, err
	}

	if err := t.bus.Coins().Burn(sender, types.AssetToken, q.In); err != nil {
		return nil, err
	}
	if err := t.bus.Accounts().Transfer(types.TokenReserveAddress, to, types.AssetBase, q.Out); err != nil {
		return nil, err
	}
	if err := t.bus.Fees().ReceiveFee(types.TokenReserveAddress, types.AssetBase, q.Fee); err != nil {
		return nil, err
	}
	model := t.get()
	model.burn(new(big.Int).Sub(q.In, q.Redeemed), q.Reserve)
	if q.Redeemed.Sign() > 0 {
		model.redeem(q.Redeemed, q.Floor)
	}

	t.bus.AddEvent(&eventsdb.TokenBurnEvent{
		Address:  sender,
		TokensIn: q.In.String(),
		BaseOut:  q.Out.String(),
		Fee:      q.Fee.String(),
	})

	return q, nil
}

func (t *Token) CheckStake(account types.Address, amount *big.Int) error {
	if amount.Sign() <= 0 {
		return code.ErrZeroAmount
	}
	if balance := t.bus.Accounts().GetBalance(account, types.AssetToken); balance.Cmp(amount) < 0 {
		return errors.Wrapf(code.ErrInsufficientBalance, "%s has %s %s, needs %s", account, balance, types.AssetToken.Symbol(), amount)
	}
	return nil
}

// Stake locks amount of liquid TOKEN and raises the staking weight.
func (t *Token) Stake(account types.Address, amount *big.Int, now uint64) error {
	if err := t.CheckStake(account, amount); err != nil {
		return err
	}

	staked := new(big.Int).Add(t.stake(account), amount)
	if err := t.bus.Rewarders().SetWeight(types.RewarderTokenStaking, account, staked, now); err != nil {
		return err
	}
	if err := t.bus.Accounts().Transfer(account, types.TokenStakeAddress, types.AssetToken, amount); err != nil {
		return err
	}

	t.setStake(account, staked)
	model := t.get()
	model.setTotalStaked(new(big.Int).Add(model.TotalStaked, amount))

	return nil
}

func (t *Token) CheckUnstake(account types.Address, amount *big.Int) error {
	if amount.Sign() <= 0 {
		return code.ErrZeroAmount
	}
	if staked := t.stake(account); staked.Cmp(amount) < 0 {
		return errors.Wrapf(code.ErrInsufficientBalance, "%s has %s staked, needs %s", account, staked, amount)
	}
	withdrawable, err := t.MaxWithdraw(account)
	if err != nil {
		return err
	}
	if withdrawable.Cmp(amount) < 0 {
		return errors.Wrapf(code.ErrCollateralLocked, "%s can withdraw %s while owing %s", account, withdrawable, t.debt(account))
	}
	return nil
}

// Unstake returns amount of staked TOKEN to the liquid balance.
func (t *Token) Unstake(account types.Address, amount *big.Int, now uint64) error {
	if err := t.CheckUnstake(account, amount); err != nil {
		return err
	}

	staked := new(big.Int).Sub(t.stake(account), amount)
	if err := t.bus.Rewarders().SetWeight(types.RewarderTokenStaking, account, staked, now); err != nil {
		return err
	}
	if err := t.bus.Accounts().Transfer(types.TokenStakeAddress, account, types.AssetToken, amount); err != nil {
		return errors.Wrapf(code.ErrInvariant, "stake account: %s", err)
	}

	t.setStake(account, staked)
	model := t.get()
	model.setTotalStaked(new(big.Int).Sub(model.TotalStaked, amount))

	return nil
}

// BorrowCredit is the BASE account can still borrow: its stake valued at
// the floor price less what it already owes.
func (t *Token) BorrowCredit(account types.Address) (*big.Int, error) {
	price, err := t.FloorPrice()
	if err != nil {
		return nil, code.FromMath(err)
	}
	limit, err := fixed.MulWad(t.stake(account), price)
	if err != nil {
		return nil, code.FromMath(err)
	}

	debt := t.debt(account)
	if limit.Cmp(debt) <= 0 {
		return big.NewInt(0), nil
	}
	return new(big.Int).Sub(limit, debt), nil
}

// MaxWithdraw is the part of the stake of account that does not secure its
// debt at the floor price.
func (t *Token) MaxWithdraw(account types.Address) (*big.Int, error) {
	staked := t.stake(account)
	debt := t.debt(account)
	if debt.Sign() == 0 {
		return new(big.Int).Set(staked), nil
	}

	price, err := t.FloorPrice()
	if err != nil {
		return nil, code.FromMath(err)
	}
	// ceil(debt * 1e18 / floor)
	locked, err := fixed.MulDivUp(debt, fixed.One, price)
	if err != nil {
		return nil, code.FromMath(err)
	}
	if locked.Cmp(staked) >= 0 {
		return big.NewInt(0), nil
	}
	return new(big.Int).Sub(staked, locked), nil
}

func (t *Token) CheckBorrow(account types.Address, amount *big.Int) error {
	if amount.Sign() <= 0 {
		return code.ErrZeroAmount
	}
	credit, err := t.BorrowCredit(account)
	if err != nil {
		return err
	}
	if credit.Cmp(amount) < 0 {
		return errors.Wrapf(code.ErrInsufficientCredit, "%s can borrow %s, wants %s", account, credit, amount)
	}
	if held := t.bus.Accounts().GetBalance(types.TokenReserveAddress, types.AssetBase); held.Cmp(amount) < 0 {
		return errors.Wrapf(code.ErrInvariant, "reserve account holds %s, loan takes %s", held, amount)
	}
	return nil
}

// Borrow lends amount BASE out of the reserve to account against its stake.
func (t *Token) Borrow(account types.Address, amount *big.Int) error {
	if err := t.CheckBorrow(account, amount); err != nil {
		return err
	}

	if err := t.bus.Accounts().Transfer(types.TokenReserveAddress, account, types.AssetBase, amount); err != nil {
		return errors.Wrapf(code.ErrInvariant, "reserve account: %s", err)
	}

	debt := new(big.Int).Add(t.debt(account), amount)
	t.setDebt(account, debt)
	model := t.get()
	model.setTotalDebt(new(big.Int).Add(model.TotalDebt, amount))

	t.bus.AddEvent(&eventsdb.TokenLoanEvent{
		Address: account,
		Action:  eventsdb.LoanBorrow,
		Amount:  amount.String(),
		Debt:    debt.String(),
	})

	return nil
}

func (t *Token) CheckRepay(account types.Address, amount *big.Int) error {
	if amount.Sign() <= 0 {
		return code.ErrZeroAmount
	}
	if debt := t.debt(account); debt.Cmp(amount) < 0 {
		return errors.Wrapf(code.ErrRepayExceedsDebt, "%s owes %s, repays %s", account, debt, amount)
	}
	if balance := t.bus.Accounts().GetBalance(account, types.AssetBase); balance.Cmp(amount) < 0 {
		return errors.Wrapf(code.ErrInsufficientBalance, "%s has %s %s, needs %s", account, balance, types.AssetBase.Symbol(), amount)
	}
	return nil
}

// Repay returns amount BASE of the debt of account to the reserve.
func (t *Token) Repay(account types.Address, amount *big.Int) error {
	if err := t.CheckRepay(account, amount); err != nil {
		return err
	}

	if err := t.bus.Accounts().Transfer(account, types.TokenReserveAddress, types.AssetBase, amount); err != nil {
		return err
	}

	debt := new(big.Int).Sub(t.debt(account), amount)
	t.setDebt(account, debt)
	model := t.get()
	model.setTotalDebt(new(big.Int).Sub(model.TotalDebt, amount))

	t.bus.AddEvent(&eventsdb.TokenLoanEvent{
		Address: account,
		Action:  eventsdb.LoanRepay,
		Amount:  amount.String(),
		Debt:    debt.String(),
	})

	return nil
}

// QuoteExercise is the BASE owed for turning options OTOKEN into as much
// TOKEN, rounded up.
func (t *Token) QuoteExercise(options *big.Int) (*big.Int, error) {
	if options.Sign() <= 0 {
		return nil, code.ErrZeroAmount
	}
	price, err := t.FloorPrice()
	if err != nil {
		return nil, code.FromMath(err)
	}
	base, err := fixed.MulDivUp(options, price, fixed.One)
	if err != nil {
		return nil, code.FromMath(err)
	}
	return base, nil
}

// CheckExercise validates an exercise and returns the BASE it costs.
func (t *Token) CheckExercise(sender types.Address, options *big.Int) (*big.Int, error) {
	base, err := t.QuoteExercise(options)
	if err != nil {
		return nil, err
	}

	accounts := t.bus.Accounts()
	if balance := accounts.GetBalance(sender, types.AssetOption); balance.Cmp(options) < 0 {
		return nil, errors.Wrapf(code.ErrInsufficientBalance, "%s has %s %s, needs %s", sender, balance, types.AssetOption.Symbol(), options)
	}
	if balance := accounts.GetBalance(sender, types.AssetBase); balance.Cmp(base) < 0 {
		return nil, errors.Wrapf(code.ErrInsufficientBalance, "%s has %s %s, needs %s", sender, balance, types.AssetBase.Symbol(), base)
	}
	if _, err := fixed.Add(t.bus.Coins().GetVolume(types.AssetToken), options); err != nil {
		return nil, code.FromMath(err)
	}

	return base, nil
}

// Exercise burns options OTOKEN of sender, takes their price at the floor
// in BASE and mints as much TOKEN to to. The curve is not moved.
func (t *Token) Exercise(sender types.Address, options *big.Int, to types.Address) (*big.Int, error) {
	base, err := t.CheckExercise(sender, options)
	if err != nil {
		return nil, err
	}

	if err := t.bus.Coins().Burn(sender, types.AssetOption, options); err != nil {
		return nil, err
	}
	if err := t.bus.Accounts().Transfer(sender, types.TokenReserveAddress, types.AssetBase, base); err != nil {
		return nil, err
	}
	if err := t.bus.Coins().Mint(to, types.AssetToken, options); err != nil {
		return nil, err
	}
	t.get().exercise(options, base)

	t.bus.AddEvent(&eventsdb.TokenExerciseEvent{
		Address: to,
		Options: options.String(),
		BaseIn:  base.String(),
	})

	return base, nil
}

// PriceOTOKEN is what an option is worth in BASE: spot less floor.
func (t *Token) PriceOTOKEN() (*big.Int, error) {
	spot, err := t.SpotPrice()
	if err != nil {
		return nil, code.FromMath(err)
	}
	floor, err := t.FloorPrice()
	if err != nil {
		return nil, code.FromMath(err)
	}
	if spot.Cmp(floor) <= 0 {
		return big.NewInt(0), nil
	}
	return new(big.Int).Sub(spot, floor), nil
}

// LTV is the floor price as a percentage of the spot price, 18 decimals.
// It is how much of the market value of staked TOKEN can be borrowed.
func (t *Token) LTV() (*big.Int, error) {
	spot, err := t.SpotPrice()
	if err != nil {
		return nil, code.FromMath(err)
	}
	if spot.Sign() == 0 {
		return big.NewInt(0), nil
	}
	floor, err := t.FloorPrice()
	if err != nil {
		return nil, code.FromMath(err)
	}
	ltv, err := fixed.MulDiv(floor, percent, spot)
	if err != nil {
		return nil, code.FromMath(err)
	}
	return ltv, nil
}

// TVL is the BASE held by the reserve plus staked TOKEN at the spot price.
func (t *Token) TVL() (*big.Int, error) {
	model := t.get()
	spot, err := t.SpotPrice()
	if err != nil {
		return nil, code.FromMath(err)
	}
	staked, err := fixed.MulWad(model.TotalStaked, spot)
	if err != nil {
		return nil, code.FromMath(err)
	}

	held := new(big.Int).Add(model.ReserveReal, model.FloorReserve)
	held.Sub(held, model.TotalDebt)
	return new(big.Int).Add(held, staked), nil
}

// APR is the yearly value of what the staking rewarder releases at now over
// the value of staked TOKEN, a percentage with 18 decimals. Rewards are
// priced in BASE: TOKEN at spot, OTOKEN at PriceOTOKEN.
func (t *Token) APR(now uint64) (*big.Int, error) {
	spot, err := t.SpotPrice()
	if err != nil {
		return nil, code.FromMath(err)
	}
	stakedValue, err := fixed.MulWad(t.get().TotalStaked, spot)
	if err != nil {
		return nil, code.FromMath(err)
	}
	if stakedValue.Sign() == 0 {
		return big.NewInt(0), nil
	}
	option, err := t.PriceOTOKEN()
	if err != nil {
		return nil, err
	}
	prices := map[types.AssetID]*big.Int{
		types.AssetBase:   fixed.One,
		types.AssetToken:  spot,
		types.AssetOption: option,
	}

	yearly := big.NewInt(0)
	for _, asset := range rewarder.RewardAssets(types.RewarderTokenStaking) {
		rate := t.bus.Rewarders().RewardRate(types.RewarderTokenStaking, asset, now)
		if rate.Sign() == 0 {
			continue
		}
		released, err := fixed.Mul(rate, big.NewInt(secondsPerYear))
		if err != nil {
			return nil, code.FromMath(err)
		}
		value, err := fixed.MulWad(released, prices[asset])
		if err != nil {
			return nil, code.FromMath(err)
		}
		if yearly, err = fixed.Add(yearly, value); err != nil {
			return nil, code.FromMath(err)
		}
	}

	apr, err := fixed.MulDiv(yearly, percent, stakedValue)
	if err != nil {
		return nil, code.FromMath(err)
	}
	return apr, nil
}

// Import loads the curve, the stakes and the debts from genesis. Stake
// weights are imported with the rewarders. Every debt must be covered by its
// stake at the floor price.
func (t *Token) Import(state *types.AppState) error {
	model := t.get()
	model.TotalSupply = helpers.StringToBigIntOrZero(state.Token.TotalSupply)
	model.ReserveReal = helpers.StringToBigIntOrZero(state.Token.ReserveReal)
	model.TotalStaked = helpers.StringToBigIntOrZero(state.Token.TotalStaked)
	model.Exercised = helpers.StringToBigIntOrZero(state.Token.Exercised)
	model.FloorReserve = helpers.StringToBigIntOrZero(state.Token.FloorReserve)
	model.TotalDebt = helpers.StringToBigIntOrZero(state.Token.TotalDebt)
	model.markDirty()

	for _, stake := range state.Token.Stakes {
		t.setStake(stake.Owner, helpers.StringToBigIntOrZero(stake.Value))
	}

	total := big.NewInt(0)
	for _, debt := range state.Token.Debts {
		t.setDebt(debt.Owner, helpers.StringToBigIntOrZero(debt.Value))
		total.Add(total, t.debt(debt.Owner))
	}
	if total.Cmp(model.TotalDebt) != 0 {
		return errors.Errorf("debts add up to %s, total debt is %s", total, model.TotalDebt)
	}
	if len(state.Token.Debts) == 0 {
		return nil
	}
	price, err := t.FloorPrice()
	if err != nil {
		return code.FromMath(err)
	}
	for _, debt := range state.Token.Debts {
		limit, err := fixed.MulWad(t.stake(debt.Owner), price)
		if err != nil {
			return code.FromMath(err)
		}
		if t.debt(debt.Owner).Cmp(limit) > 0 {
			return errors.Wrapf(code.ErrInsufficientCredit, "debt of %s is above its stake at the floor price", debt.Owner)
		}
	}

	return nil
}

func (t *Token) Export(state *types.AppState) {
	model := t.get()
	state.Token = types.Token{
		TotalSupply:  model.TotalSupply.String(),
		ReserveReal:  model.ReserveReal.String(),
		TotalStaked:  model.TotalStaked.String(),
		Exercised:    model.Exercised.String(),
		FloorReserve: model.FloorReserve.String(),
		TotalDebt:    model.TotalDebt.String(),
	}

	if tree := t.immutableTree(); tree != nil {
		tree.IterateRange([]byte{mainPrefix, stakePrefix}, []byte{mainPrefix, stakePrefix + 1}, true, func(key []byte, value []byte) bool {
			t.stake(types.BytesToAddress(key[2:]))
			return false
		})
		tree.IterateRange([]byte{mainPrefix, debtPrefix}, []byte{mainPrefix, debtPrefix + 1}, true, func(key []byte, value []byte) bool {
			t.debt(types.BytesToAddress(key[2:]))
			return false
		})
	}

	t.lock.RLock()
	stakers := map[types.Address]struct{}{}
	for account, stake := range t.stakes {
		if stake.Sign() > 0 {
			stakers[account] = struct{}{}
		}
	}
	debtors := map[types.Address]struct{}{}
	for account, debt := range t.debts {
		if debt.Sign() > 0 {
			debtors[account] = struct{}{}
		}
	}
	t.lock.RUnlock()

	for _, account := range sortAddresses(stakers) {
		state.Token.Stakes = append(state.Token.Stakes, types.Stake{Owner: account, Value: t.Staked(account).String()})
	}
	for _, account := range sortAddresses(debtors) {
		state.Token.Debts = append(state.Token.Debts, types.Stake{Owner: account, Value: t.Debt(account).String()})
	}
}
