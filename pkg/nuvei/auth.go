package nuvei

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"
)

// generateAuthToken builds the processor's Auth-Token header value:
// base64(application_code;unix_timestamp;sha256_hex(key+timestamp)).
func generateAuthToken(code, key string, now time.Time) string {
	ts := fmt.Sprintf("%d", now.Unix())
	sum := sha256.Sum256([]byte(key + ts))
	raw := fmt.Sprintf("%s;%s;%s", code, ts, hex.EncodeToString(sum[:]))
	return base64.StdEncoding.EncodeToString([]byte(raw))
}
