package types

// ChainID is the network identifier that signed transactions are bound to.
type ChainID byte

const (
	ChainMainnet ChainID = 0x01
	ChainTestnet ChainID = 0x02
)

// CurrentChainID is set once on node start.
var CurrentChainID = ChainTestnet

func (c ChainID) String() string {
	switch c {
	case ChainMainnet:
		return "mainnet"
	case ChainTestnet:
		return "testnet"
	}
	return "unknown"
}

// Accounts owned by state modules.
var (
	TokenReserveAddress = ModuleAddress("token/reserve")
	TokenStakeAddress   = ModuleAddress("token/stake")
	FeesAddress         = ModuleAddress("fees")
	GridAddress         = ModuleAddress("grid")
	EmissionAddress     = ModuleAddress("emission")
)

const (
	// Decimals of every asset amount.
	Decimals = 18
	// MaxBps is 100% expressed in basis points.
	MaxBps = 10000
	// MaxGridSide bounds grid width and height.
	MaxGridSide = 256
)
