package store

import (
	"encoding/binary"
	"strings"
)

// chatKey is the bucket name of the conversation between a and b, independent of order.
func chatKey(a, b string) []byte {
	if b < a {
		a, b = b, a
	}
	return []byte(a + "\x00" + b)
}

// splitChatKey is the inverse of chatKey.
func splitChatKey(k []byte) (string, string) {
	parts := strings.SplitN(string(k), "\x00", 2)
	if len(parts) != 2 {
		return parts[0], ""
	}
	return parts[0], parts[1]
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

// indexValue is chat key + 8 bytes sequence.
func indexValue(chat []byte, seq []byte) []byte {
	out := make([]byte, 0, len(chat)+len(seq))
	out = append(out, chat...)
	return append(out, seq...)
}

func splitIndexValue(v []byte) (chat []byte, seq []byte) {
	if len(v) < 8 {
		return nil, nil
	}
	n := len(v) - 8
	return v[:n], v[n:]
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}
