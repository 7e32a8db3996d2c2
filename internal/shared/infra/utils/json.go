package utils

import (
	"bytes"
	"encoding/json"
	"errors"
)

var ErrEmptyPayload = errors.New("empty payload")

// UnmarshalAs decodifica data en un T nuevo. Los campos desconocidos se ignoran;
// un payload vacío o null devuelve ErrEmptyPayload.
func UnmarshalAs[T any](data json.RawMessage) (T, error) {
	var v T
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return v, ErrEmptyPayload
	}
	err := json.Unmarshal(trimmed, &v)
	return v, err
}
