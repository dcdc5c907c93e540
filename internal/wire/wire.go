// Package wire encodes a published snapshot for the read-surface
// transport, in both JSON and a compact binary form, grounded on the
// teacher's internal/itch package: JSON is a human-readable mirror,
// binary is a fixed-layout, length-prefixed frame (itch/binary.go's
// 2-byte SoupBinTCP-style length prefix, fixed-width BigEndian numeric
// fields, fixed-point prices). Reason codes, the one variable-length
// field a snapshot carries, are mapped to single-byte codes the same way
// itch/messages.go maps event/trading-state codes to a single byte.
package wire

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/kestrelquant/silentobserver/internal/gate"
	"github.com/kestrelquant/silentobserver/internal/snapshot"
)

// reasonCodes fixes the wire encoding of every reason code the gate
// package can produce, in the order gate.Evaluate checks them. Index 0 is
// reserved (never emitted) so a decoder can treat 0 as "no more reasons"
// if it ever needs a fixed-width reason array instead of a length-prefixed
// one.
var reasonCodes = []string{
	"", // reserved
	gate.ReasonArmOff,
	gate.ReasonIntentFlat,
	gate.ReasonOutsideOperatingWindow,
	gate.ReasonSessionBreak,
	gate.ReasonFeedDisconnected,
	gate.ReasonMDNotRealtime,
	gate.ReasonNoContract,
	gate.ReasonStaleData,
	gate.ReasonSpreadUnavailable,
	gate.ReasonSpreadWide,
	gate.ReasonEngineDegraded,
}

var reasonCodeToByte = func() map[string]byte {
	m := make(map[string]byte, len(reasonCodes))
	for i, r := range reasonCodes {
		if r != "" {
			m[r] = byte(i)
		}
	}
	return m
}()

// Price4 converts a float64 price to 4-decimal fixed point, matching the
// teacher's itch.Price4 convention.
func Price4(price float64) int64 {
	return int64(price * 10000)
}

// Price4ToFloat converts a 4-decimal fixed-point value back to float64.
func Price4ToFloat(p int64) float64 {
	return float64(p) / 10000
}

// EncodeJSON returns a human-readable JSON encoding of a snapshot.
func EncodeJSON(s snapshot.Snapshot) ([]byte, error) {
	return json.Marshal(s)
}

// mdModeByte packs event.MDMode for the wire; keep in lockstep with
// event.MDMode's iota order.
func mdModeByte(m int) byte { return byte(m) }

// EncodeBinary returns a length-prefixed, fixed-layout binary encoding of
// a snapshot's gate-relevant fields: enough for a thin client to render
// the allowed/blocked banner and the top-of-book without parsing JSON.
// Unknown reason codes are silently dropped rather than failing the whole
// encode — a newer server talking to an older client should degrade, not
// break the frame.
func EncodeBinary(s snapshot.Snapshot) []byte {
	var body bytes.Buffer

	writeU64 := func(v uint64) { binary.Write(&body, binary.BigEndian, v) }
	writeI64 := func(v int64) { binary.Write(&body, binary.BigEndian, v) }
	writeBool := func(v bool) {
		if v {
			body.WriteByte(1)
		} else {
			body.WriteByte(0)
		}
	}

	writeU64(s.SnapshotID)
	writeU64(s.TSUnixMS)
	writeBool(s.Ready)
	writeBool(s.Feed.Connected)
	body.WriteByte(mdModeByte(int(s.Feed.MDMode)))
	writeBool(s.Quote.Present)
	writeI64(Price4(s.Quote.Bid))
	writeI64(Price4(s.Quote.Ask))
	writeI64(s.Quote.SpreadTicks)
	writeI64(s.Quote.StalenessMS)

	codes := make([]byte, 0, len(s.ReadyReasons))
	for _, r := range s.ReadyReasons {
		if b, ok := reasonCodeToByte[r]; ok {
			codes = append(codes, b)
		}
	}
	body.WriteByte(byte(len(codes)))
	body.Write(codes)

	frame := make([]byte, 2+body.Len())
	binary.BigEndian.PutUint16(frame[0:2], uint16(body.Len()))
	copy(frame[2:], body.Bytes())
	return frame
}

// DecodeBinary is the EncodeBinary inverse, exercised by this package's
// tests; a real thin client would implement its own decoder in its own
// language.
type Decoded struct {
	SnapshotID  uint64
	TSUnixMS    uint64
	Ready       bool
	Connected   bool
	MDMode      byte
	Present     bool
	Bid, Ask    float64
	SpreadTicks int64
	StalenessMS int64
	ReasonCodes []string
}

func DecodeBinary(frame []byte) (Decoded, error) {
	if len(frame) < 2 {
		return Decoded{}, fmt.Errorf("wire: frame too short")
	}
	n := binary.BigEndian.Uint16(frame[0:2])
	body := frame[2:]
	if len(body) < int(n) {
		return Decoded{}, fmt.Errorf("wire: truncated frame: want %d have %d", n, len(body))
	}
	r := bytes.NewReader(body)

	var d Decoded
	var snapshotID, tsUnixMS uint64
	if err := binary.Read(r, binary.BigEndian, &snapshotID); err != nil {
		return Decoded{}, err
	}
	if err := binary.Read(r, binary.BigEndian, &tsUnixMS); err != nil {
		return Decoded{}, err
	}
	d.SnapshotID, d.TSUnixMS = snapshotID, tsUnixMS

	readByte := func() (byte, error) {
		b := make([]byte, 1)
		_, err := r.Read(b)
		return b[0], err
	}

	rb, err := readByte()
	if err != nil {
		return Decoded{}, err
	}
	d.Ready = rb == 1

	cb, err := readByte()
	if err != nil {
		return Decoded{}, err
	}
	d.Connected = cb == 1

	mm, err := readByte()
	if err != nil {
		return Decoded{}, err
	}
	d.MDMode = mm

	pb, err := readByte()
	if err != nil {
		return Decoded{}, err
	}
	d.Present = pb == 1

	var bid4, ask4, spread, staleness int64
	if err := binary.Read(r, binary.BigEndian, &bid4); err != nil {
		return Decoded{}, err
	}
	if err := binary.Read(r, binary.BigEndian, &ask4); err != nil {
		return Decoded{}, err
	}
	if err := binary.Read(r, binary.BigEndian, &spread); err != nil {
		return Decoded{}, err
	}
	if err := binary.Read(r, binary.BigEndian, &staleness); err != nil {
		return Decoded{}, err
	}
	d.Bid = Price4ToFloat(bid4)
	d.Ask = Price4ToFloat(ask4)
	d.SpreadTicks = spread
	d.StalenessMS = staleness

	count, err := readByte()
	if err != nil {
		return Decoded{}, err
	}
	for i := byte(0); i < count; i++ {
		b, err := readByte()
		if err != nil {
			return Decoded{}, err
		}
		if int(b) < len(reasonCodes) {
			d.ReasonCodes = append(d.ReasonCodes, reasonCodes[b])
		}
	}

	return d, nil
}
