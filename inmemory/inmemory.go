// Package inmemory provides mutex-guarded, map-backed implementations of the
// cascade store contracts. They serve unit tests and single-process trials;
// production deployments use the cassandra, fs, aws_s3 and redis packages.
package inmemory

import (
	"encoding/base64"
	"fmt"

	"github.com/sharedcode/cascade"
	"github.com/sharedcode/cascade/encoding"
)

func encodeCursor(v interface{}) string {
	ba, err := encoding.DefaultMarshaler.Marshal(v)
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(ba)
}

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
