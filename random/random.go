package random

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	mrand "math/rand"
	"time"
)

const charset = "0123456789ABCDEFGHJKLMNPQRSTUVWXYZ"

func init() {
	var b [8]byte
	_, err := crand.Read(b[:])
	if err != nil {
		mrand.Seed(time.Now().UnixNano())
		return
	}
	mrand.Seed(int64(binary.LittleEndian.Uint64(b[:])))
}

func String(length int) string {
	b := make([]byte, length)
	for i := range b {
		b[i] = charset[mrand.Intn(len(charset))]
	}
	return string(b)
}

// OrderNumber builds a human-facing order identifier like "AK-7GQ2M4ZXTB".
func OrderNumber() string {
	return fmt.Sprintf("AK-%s", String(10))
}
