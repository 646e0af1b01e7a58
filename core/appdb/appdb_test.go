package appdb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	db "github.com/tendermint/tm-db"
)

func TestAppDB_CommitSurvivesReopen(t *testing.T) {
	memDB := db.NewMemDB()
	appDB := NewAppDBWithDB(memDB)

	assert.Equal(t, uint64(0), appDB.LastHeight())
	assert.Nil(t, appDB.LastHash())
	assert.Equal(t, uint64(0), appDB.StartHeight())

	appDB.SetStartHeight(10)
	appDB.AddBlockTime(time.Unix(1000, 0))
	require.NoError(t, appDB.SaveCommit(11, []byte{1, 2, 3}))

	reopened := NewAppDBWithDB(memDB)
	assert.Equal(t, uint64(11), reopened.LastHeight())
	assert.Equal(t, []byte{1, 2, 3}, reopened.LastHash())
	assert.Equal(t, uint64(10), reopened.StartHeight())
	assert.Equal(t, []uint64{1000}, reopened.BlockTimes())
}

func TestAppDB_BlockTimes(t *testing.T) {
	memDB := db.NewMemDB()
	appDB := NewAppDBWithDB(memDB)

	start := time.Unix(1000, 0)
	for i := 0; i < 6; i++ {
		appDB.AddBlockTime(start.Add(time.Duration(i*5) * time.Second))
		require.NoError(t, appDB.SaveCommit(uint64(i+1), []byte{byte(i)}))
	}
	assert.Equal(t, []uint64{1010, 1015, 1020, 1025}, appDB.BlockTimes())

	// a block that never commits is not on disk
	appDB.AddBlockTime(start.Add(time.Minute))
	assert.Len(t, appDB.BlockTimes(), BlockTimesKept)

	reopened := NewAppDBWithDB(memDB)
	assert.Equal(t, []uint64{1010, 1015, 1020, 1025}, reopened.BlockTimes())
	assert.Equal(t, uint64(6), reopened.LastHeight())
}
