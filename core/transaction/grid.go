package transaction

import (
	"encoding/hex"
	"fmt"
	"strings"

	abcTypes "github.com/tendermint/tendermint/abci/types"
	"github.com/tilemint/tilemint-node/core/code"
	"github.com/tilemint/tilemint-node/core/state"
	"github.com/tilemint/tilemint-node/core/types"
)

// PlaceTilesData colors the tiles at (Xs[i], Ys[i]) of Grid. The tiles and
// the placement weight go to OnBehalfOf, or to the sender when it is zero.
type PlaceTilesData struct {
	Grid       types.GridID
	OnBehalfOf types.Address
	Xs         []uint32
	Ys         []uint32
	Color      uint32
}

func (data PlaceTilesData) TxType() TxType {
	return TypePlaceTiles
}

func (data PlaceTilesData) Gas() int64 {
	return gasPlaceTilesBase + int64(len(data.Xs))
}

func (data PlaceTilesData) String() string {
	return fmt.Sprintf("PLACE TILES grid:%s tiles:%d color:%d for:%s",
		data.Grid, len(data.Xs), data.Color, data.OnBehalfOf)
}

func (data PlaceTilesData) Run(tx *Transaction, context state.Interface, block Block) Response {
	sender, _ := tx.Sender()
	checkState, _ := checkContext(context)

	beneficiary := data.OnBehalfOf
	if beneficiary.IsZero() {
		beneficiary = sender
	}

	cost, err := checkState.Grids().CheckPlace(data.Grid, sender, data.Xs, data.Ys, data.Color)
	if err != nil {
		return errorResponse(err)
	}

	var tags []abcTypes.EventAttribute
	if deliverState := deliverContext(context); deliverState != nil {
		cost, err = deliverState.Grids.Place(data.Grid, sender, beneficiary, data.Xs, data.Ys, data.Color, block.Time)
		if err != nil {
			return errorResponse(err)
		}
		deliverState.Accounts.SetNonce(sender, tx.Nonce)

		tags = []abcTypes.EventAttribute{
			{Key: []byte("tx.grid"), Value: []byte(data.Grid.String()), Index: true},
			{Key: []byte("tx.beneficiary"), Value: []byte(hex.EncodeToString(beneficiary[:])), Index: true},
			{Key: []byte("tx.cost"), Value: []byte(cost.String())},
		}
	}

	return Response{
		Code: code.OK,
		Data: []byte(cost.String()),
		Tags: tags,
	}
}

// SetColorsData overwrites the palette from index zero, appending past its end.
type SetColorsData struct {
	Colors []string
}

func (data SetColorsData) TxType() TxType {
	return TypeSetColors
}

func (data SetColorsData) Gas() int64 {
	return gasSetColors
}

func (data SetColorsData) String() string {
	return fmt.Sprintf("SET COLORS %s", strings.Join(data.Colors, ","))
}

func (data SetColorsData) Run(tx *Transaction, context state.Interface, block Block) Response {
	sender, _ := tx.Sender()
	checkState, _ := checkContext(context)

	if err := checkState.Grids().CheckSetColors(sender, data.Colors); err != nil {
		return errorResponse(err)
	}

	if deliverState := deliverContext(context); deliverState != nil {
		if err := deliverState.Grids.SetColors(sender, data.Colors); err != nil {
			return errorResponse(err)
		}
		deliverState.Accounts.SetNonce(sender, tx.Nonce)
	}

	return Response{Code: code.OK}
}

type SetColorData struct {
	Index uint32
	Color string
}

func (data SetColorData) TxType() TxType {
	return TypeSetColor
}

func (data SetColorData) Gas() int64 {
	return gasSetColor
}

func (data SetColorData) String() string {
	return fmt.Sprintf("SET COLOR %d:%s", data.Index, data.Color)
}

func (data SetColorData) Run(tx *Transaction, context state.Interface, block Block) Response {
	sender, _ := tx.Sender()
	checkState, _ := checkContext(context)

	if err := checkState.Grids().CheckSetColor(sender, data.Index, data.Color); err != nil {
		return errorResponse(err)
	}

	if deliverState := deliverContext(context); deliverState != nil {
		if err := deliverState.Grids.SetColor(sender, data.Index, data.Color); err != nil {
			return errorResponse(err)
		}
		deliverState.Accounts.SetNonce(sender, tx.Nonce)
	}

	return Response{Code: code.OK}
}

// MintGridData adds an empty grid to the collection, owned by To.
type MintGridData struct {
	To types.Address
}

func (data MintGridData) TxType() TxType {
	return TypeMintGrid
}

func (data MintGridData) Gas() int64 {
	return gasMintGrid
}

func (data MintGridData) String() string {
	return fmt.Sprintf("MINT GRID to:%s", data.To)
}

func (data MintGridData) Run(tx *Transaction, context state.Interface, block Block) Response {
	sender, _ := tx.Sender()
	checkState, _ := checkContext(context)

	if err := checkState.Grids().CheckMintGrid(sender); err != nil {
		return errorResponse(err)
	}

	id := checkState.Grids().NextID()
	var tags []abcTypes.EventAttribute
	if deliverState := deliverContext(context); deliverState != nil {
		to := data.To
		if to.IsZero() {
			to = sender
		}

		var err error
		id, err = deliverState.Grids.MintGrid(sender, to)
		if err != nil {
			return errorResponse(err)
		}
		deliverState.Accounts.SetNonce(sender, tx.Nonce)

		tags = []abcTypes.EventAttribute{
			{Key: []byte("tx.grid"), Value: []byte(id.String()), Index: true},
		}
	}

	return Response{
		Code: code.OK,
		Data: []byte(id.String()),
		Tags: tags,
	}
}

type TransferGridData struct {
	Grid types.GridID
	To   types.Address
}

func (data TransferGridData) TxType() TxType {
	return TypeTransferGrid
}

func (data TransferGridData) Gas() int64 {
	return gasTransferGrid
}

func (data TransferGridData) String() string {
	return fmt.Sprintf("TRANSFER GRID %s to:%s", data.Grid, data.To)
}

func (data TransferGridData) Run(tx *Transaction, context state.Interface, block Block) Response {
	sender, _ := tx.Sender()
	checkState, _ := checkContext(context)

	if err := checkState.Grids().CheckTransferGrid(sender, data.Grid); err != nil {
		return errorResponse(err)
	}

	var tags []abcTypes.EventAttribute
	if deliverState := deliverContext(context); deliverState != nil {
		if err := deliverState.Grids.TransferGrid(sender, data.Grid, data.To); err != nil {
			return errorResponse(err)
		}
		deliverState.Accounts.SetNonce(sender, tx.Nonce)

		tags = []abcTypes.EventAttribute{
			{Key: []byte("tx.grid"), Value: []byte(data.Grid.String()), Index: true},
			{Key: []byte("tx.to"), Value: []byte(hex.EncodeToString(data.To[:])), Index: true},
		}
	}

	return Response{
		Code: code.OK,
		Tags: tags,
	}
}
