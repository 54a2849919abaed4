package tape

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// PrefixTape prefixes every tape record key
const PrefixTape = "tape:"

const uuidStrLen = 36

// encodeTapePrefix returns the scan prefix of one tape
// Format: tape:{id}:
func encodeTapePrefix(id uuid.UUID) []byte {
	return []byte(PrefixTape + id.String() + ":")
}

// encodeRecordKey encodes one batch key. seq is big-endian so keys sort in
// recording order.
// Format: tape:{id}:{seq}
func encodeRecordKey(id uuid.UUID, seq uint64) []byte {
	key := encodeTapePrefix(id)
	return binary.BigEndian.AppendUint64(key, seq)
}

// decodeRecordKey splits a record key into tape id and sequence number
func decodeRecordKey(key []byte) (uuid.UUID, uint64, bool) {
	if len(key) != len(PrefixTape)+uuidStrLen+1+8 || string(key[:len(PrefixTape)]) != PrefixTape {
		return uuid.UUID{}, 0, false
	}
	rest := key[len(PrefixTape):]
	id, err := uuid.ParseBytes(rest[:uuidStrLen])
	if err != nil || rest[uuidStrLen] != ':' {
		return uuid.UUID{}, 0, false
	}
	return id, binary.BigEndian.Uint64(rest[uuidStrLen+1:]), true
}
