// Package db persists the link layer's traffic history: a log of every frame
// that crossed the radio and a presence table for mesh nodes heard in
// broadcast announcements.
package db

import (
	"database/sql"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Packet directions as stored in the log.
const (
	DirectionInbound  = "rx"
	DirectionOutbound = "tx"
)

type DB struct {
	*sql.DB
}

// New opens (or creates) the database at path and applies any pending
// migrations.
func New(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	db := &DB{sqlDB}
	if err := db.migrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}

	return db, nil
}

// PacketRecord is one logged frame.
type PacketRecord struct {
	ID          string    `json:"id"`
	Direction   string    `json:"direction"`
	RawHex      string    `json:"raw_hex"`
	MessageType int       `json:"message_type"`
	Sender      int       `json:"sender"`
	Timestamp   time.Time `json:"timestamp"`
}

// RecordPacket logs a frame that was transmitted or received.
func (db *DB) RecordPacket(direction string, raw []byte, messageType, sender byte) error {
	_, err := db.Exec(
		`INSERT INTO packets (packet_id, direction, raw_hex, message_type, sender, received_unix)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), direction, hex.EncodeToString(raw),
		int(messageType), int(sender), time.Now().Unix(),
	)
	return err
}

// Packets returns the most recent log entries, newest first.
func (db *DB) Packets(limit int) ([]PacketRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := db.Query(
		`SELECT packet_id, direction, raw_hex, message_type, sender, received_unix
		 FROM packets ORDER BY received_unix DESC, packet_id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []PacketRecord
	for rows.Next() {
		var rec PacketRecord
		var unix int64
		if err := rows.Scan(&rec.ID, &rec.Direction, &rec.RawHex, &rec.MessageType, &rec.Sender, &unix); err != nil {
			return nil, err
		}
		rec.Timestamp = time.Unix(unix, 0).UTC()
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Node is one mesh neighbor known from its broadcast announcements.
type Node struct {
	NodeID    int       `json:"node_id"`
	IsGateway bool      `json:"is_gateway"`
	IPAddr    string    `json:"ip_addr,omitempty"`
	LastSeen  time.Time `json:"last_seen"`
}

// UpsertNode records a broadcast announcement, refreshing the node's gateway
// flag, address, and last-seen time.
func (db *DB) UpsertNode(nodeID byte, isGateway bool, ipAddr string) error {
	_, err := db.Exec(
		`INSERT INTO nodes (node_id, is_gateway, ip_addr, last_seen_unix)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(node_id) DO UPDATE SET
		   is_gateway = excluded.is_gateway,
		   ip_addr = excluded.ip_addr,
		   last_seen_unix = excluded.last_seen_unix`,
		int(nodeID), isGateway, ipAddr, time.Now().Unix(),
	)
	return err
}

// Nodes returns every known neighbor, most recently heard first.
func (db *DB) Nodes() ([]Node, error) {
	rows, err := db.Query(
		`SELECT node_id, is_gateway, ip_addr, last_seen_unix
		 FROM nodes ORDER BY last_seen_unix DESC, node_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var nodes []Node
	for rows.Next() {
		var n Node
		var unix int64
		var ip sql.NullString
		if err := rows.Scan(&n.NodeID, &n.IsGateway, &ip, &unix); err != nil {
			return nil, err
		}
		n.IPAddr = ip.String
		n.LastSeen = time.Unix(unix, 0).UTC()
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}
