package cassandra

import (
	"encoding/base64"
	"fmt"

	"github.com/sharedcode/cascade"
	"github.com/sharedcode/cascade/encoding"
)

// encodeCursor packages a paging position as an opaque URL-safe string.
func encodeCursor(v interface{}) string {
	ba, err := encoding.DefaultMarshaler.Marshal(v)
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(ba)
}

// decodeCursor unpacks a cursor produced by encodeCursor.
func decodeCursor(cursor string, target interface{}) error {
	ba, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return cascade.Error{Code: cascade.MalformedRequest, Err: fmt.Errorf("bad cursor, details: %v", err)}
	}
	if err := encoding.DefaultMarshaler.Unmarshal(ba, target); err != nil {
		return cascade.Error{Code: cascade.MalformedRequest, Err: fmt.Errorf("bad cursor, details: %v", err)}
	}
	return nil
}
