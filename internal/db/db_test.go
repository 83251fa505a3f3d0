package db

import (
	"encoding/hex"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNew_AppliesMigrations(t *testing.T) {
	db := newTestDB(t)

	for _, table := range []string{"packets", "nodes"} {
		var name string
		err := db.QueryRow(
			`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`,
			table).Scan(&name)
		require.NoError(t, err, "table %s missing", table)
	}
}

func TestNew_IdempotentReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	db, err := New(path)
	require.NoError(t, err)
	require.NoError(t, db.RecordPacket(DirectionInbound, []byte{1, 2}, 1, 5))
	require.NoError(t, db.Close())

	// reopening must not re-run migrations or lose data
	db, err = New(path)
	require.NoError(t, err)
	defer db.Close()

	records, err := db.Packets(10)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestRecordPacket(t *testing.T) {
	db := newTestDB(t)

	raw := []byte{0x00, 0x01, 0x01, 0x05, 0x00}
	require.NoError(t, db.RecordPacket(DirectionOutbound, raw, 0x01, 5))

	records, err := db.Packets(10)
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, DirectionOutbound, rec.Direction)
	assert.Equal(t, hex.EncodeToString(raw), rec.RawHex)
	assert.Equal(t, 1, rec.MessageType)
	assert.Equal(t, 5, rec.Sender)
	assert.False(t, rec.Timestamp.IsZero())
}

func TestPackets_Limit(t *testing.T) {
	db := newTestDB(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, db.RecordPacket(DirectionInbound, []byte{byte(i)}, 1, 1))
	}

	records, err := db.Packets(3)
	require.NoError(t, err)
	assert.Len(t, records, 3)

	records, err = db.Packets(0)
	require.NoError(t, err)
	assert.Len(t, records, 5, "non-positive limit falls back to the default")
}

func TestUpsertNode(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, db.UpsertNode(7, false, ""))
	require.NoError(t, db.UpsertNode(9, true, "172.16.0.5"))

	nodes, err := db.Nodes()
	require.NoError(t, err)
	require.Len(t, nodes, 2)

	byID := map[int]Node{}
	for _, n := range nodes {
		byID[n.NodeID] = n
	}
	assert.False(t, byID[7].IsGateway)
	assert.Empty(t, byID[7].IPAddr)
	assert.True(t, byID[9].IsGateway)
	assert.Equal(t, "172.16.0.5", byID[9].IPAddr)
}

func TestUpsertNode_RefreshesExisting(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, db.UpsertNode(7, false, ""))
	require.NoError(t, db.UpsertNode(7, true, "10.0.0.1"))

	nodes, err := db.Nodes()
	require.NoError(t, err)
	require.Len(t, nodes, 1, "announcement must update in place, not duplicate")
	assert.True(t, nodes[0].IsGateway)
	assert.Equal(t, "10.0.0.1", nodes[0].IPAddr)
}
