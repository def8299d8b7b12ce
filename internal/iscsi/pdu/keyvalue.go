package pdu

import (
	"bytes"
	"fmt"
)

// KeyValue is a single negotiated login/text parameter in declaration
// order. Order matters for CHAP exchanges (CHAP_A before CHAP_I before
// CHAP_C) so this is a slice, not a map.
type KeyValue struct {
	Key   string
	Value string
}

// KeyValueList is an ordered set of login/text parameters with convenience
// lookup. Duplicate keys are legal on the wire (rare, but some initiators
// send them); Get returns the first match.
type KeyValueList []KeyValue

// Get returns the value for key and whether it was present.
func (l KeyValueList) Get(key string) (string, bool) {
	for _, kv := range l {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return "", false
}

// Add appends a key=value pair.
func (l *KeyValueList) Add(key, value string) {
	*l = append(*l, KeyValue{Key: key, Value: value})
}

// ParseKeyValues decodes a login/text data segment: a sequence of
// NUL-terminated "Key=Value" strings, US-ASCII, keys case-sensitive. A
// trailing partial record (no terminating NUL, as happens when a PDU is
// deliberately split with the Continue bit) is returned as the final
// element with no error as long as it already contains '=' (one cut off
// before its '=' is reported as malformed) -- the caller reassembles it once the Continue bit
// is clear.
func ParseKeyValues(data []byte) (KeyValueList, error) {
	var out KeyValueList
	for len(data) > 0 {
		nul := bytes.IndexByte(data, 0)
		var record []byte
		if nul == -1 {
			record = data
			data = nil
		} else {
			record = data[:nul]
			data = data[nul+1:]
		}
		if len(record) == 0 {
			continue
		}
		eq := bytes.IndexByte(record, '=')
		if eq == -1 {
			return nil, fmt.Errorf("pdu: malformed key=value record %q: missing '='", record)
		}
		out.Add(string(record[:eq]), string(record[eq+1:]))
	}
	return out, nil
}

// EncodeKeyValues serializes a KeyValueList into an unpadded data segment:
// each value is followed by a single NUL (no trailing record separator).
// The result is the logical data segment content; (*PDU).Serialize pads it
// to a 4-byte boundary and records the unpadded length in the BHS.
func EncodeKeyValues(kvs KeyValueList) []byte {
	var buf bytes.Buffer
	for _, kv := range kvs {
		buf.WriteString(kv.Key)
		buf.WriteByte('=')
		buf.WriteString(kv.Value)
		buf.WriteByte(0)
	}
	return buf.Bytes()
}
