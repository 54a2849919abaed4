package tape

import (
	"encoding/json"
	"fmt"

	"github.com/kasuganosora/qevo/pkg/entropy"
)

// Record is one recorded source batch. Integer batches keep their bounds
// in IntLow/IntHigh so ranges beyond 2^53 stay exact; float batches use
// Low/High.
type Record struct {
	Kind    string    `json:"kind"`
	IntLow  int64     `json:"int_low,omitempty"`
	IntHigh int64     `json:"int_high,omitempty"`
	Low     float64   `json:"low,omitempty"`
	High    float64   `json:"high,omitempty"`
	Ints    []int64   `json:"ints,omitempty"`
	Floats  []float64 `json:"floats,omitempty"`
}

// Count returns the number of values in the batch
func (r Record) Count() int {
	if r.Kind == entropy.KindInteger.String() {
		return len(r.Ints)
	}
	return len(r.Floats)
}

// matchesIntegers reports whether an integer request is the one this
// record answered
func (r Record) matchesIntegers(low, high int64, count int) bool {
	return r.Kind == entropy.KindInteger.String() && r.IntLow == low && r.IntHigh == high && r.Count() == count
}

// matchesFloats reports whether a float request is the one this record
// answered
func (r Record) matchesFloats(low, high float64, count int) bool {
	return r.Kind == entropy.KindFloat.String() && r.Low == low && r.High == high && r.Count() == count
}

// bounds formats the recorded range
func (r Record) bounds() string {
	if r.Kind == entropy.KindInteger.String() {
		return fmt.Sprintf("[%d, %d)", r.IntLow, r.IntHigh)
	}
	return fmt.Sprintf("[%g, %g)", r.Low, r.High)
}

// Encode serializes the record
func (r Record) Encode() ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tape record: %w", err)
	}
	return data, nil
}

// DecodeRecord deserializes a record
func DecodeRecord(data []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, fmt.Errorf("failed to decode tape record: %w", err)
	}
	return r, nil
}
