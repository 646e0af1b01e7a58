package events

import (
	"testing"

	db "github.com/tendermint/tm-db"
	"github.com/tilemint/tilemint-node/core/types"
)

func TestIEventsDB(t *testing.T) {
	memDB := db.NewMemDB()
	store := NewEventsStore(memDB)

	alice := types.HexToAddress("0x04bea23efb744dc93b4fda4c20bf4a21c6e195f1")
	bob := types.HexToAddress("0x18467bbb64a8edf890201d526c35957d82be3d95")

	store.AddEvent(12, &RewardClaimEvent{
		Address:  alice,
		Rewarder: types.RewarderGridPlacement.String(),
		Asset:    types.AssetOption.Symbol(),
		Amount:   "111497225000000000000",
	})
	store.AddEvent(12, &TilePlaceEvent{
		Address: bob,
		Grid:    3,
		Tiles:   4,
		Color:   2,
		Cost:    "4000000000000000000",
	})
	if err := store.CommitEvents(); err != nil {
		t.Fatal(err)
	}

	store.AddEvent(14, &TokenMintEvent{
		Address:   bob,
		BaseIn:    "1000",
		TokensOut: "500",
		Fee:       "3",
	})
	if err := store.CommitEvents(); err != nil {
		t.Fatal(err)
	}

	loadEvents := store.LoadEvents(12)

	if len(loadEvents) != 2 {
		t.Fatalf("count of events not equal 2, got %d", len(loadEvents))
	}

	if loadEvents[0].Type() != TypeRewardClaimEvent {
		t.Fatal("invalid event type")
	}
	claim := loadEvents[0].(*RewardClaimEvent)
	if claim.Amount != "111497225000000000000" {
		t.Fatal("invalid Amount")
	}
	if claim.Address != alice {
		t.Fatal("invalid Address")
	}
	if claim.Rewarder != "grid" || claim.Asset != "OTOKEN" {
		t.Fatalf("invalid rewarder or asset: %s %s", claim.Rewarder, claim.Asset)
	}

	if loadEvents[1].Type() != TypeTilePlaceEvent {
		t.Fatal("invalid event type")
	}
	place := loadEvents[1].(*TilePlaceEvent)
	if place.Grid != 3 || place.Tiles != 4 || place.Color != 2 || place.Cost != "4000000000000000000" {
		t.Fatalf("invalid placement %+v", place)
	}
	if place.AddressString() != bob.String() {
		t.Fatal("invalid Address")
	}

	loadEvents = store.LoadEvents(14)
	if len(loadEvents) != 1 {
		t.Fatal("count of events not equal 1")
	}
	if loadEvents[0].(*TokenMintEvent).TokensOut != "500" {
		t.Fatal("invalid TokensOut")
	}

	if len(store.LoadEvents(13)) != 0 {
		t.Fatal("unexpected events at empty height")
	}

	// a fresh store over the same db resolves addresses from disk
	reopened := NewEventsStore(memDB)
	if reopened.LoadEvents(14)[0].(*TokenMintEvent).Address != bob {
		t.Fatal("address cache was not restored")
	}
}
