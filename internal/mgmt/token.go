package mgmt

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"hash/fnv"
)

// ValidationError reports a malformed request the caller can fix, as
// opposed to a backend failure.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid request: " + e.Reason
}

func validationErrorf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// continuation is the decoded form of a page token. The checksum guards
// against tokens forged or corrupted in transit; it carries no secrecy.
type continuation struct {
	Owner    string `json:"owner"`
	Name     string `json:"name"`
	Checksum uint64 `json:"checksum"`
}

func tokenChecksum(owner, name string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(owner))
	_, _ = h.Write([]byte{'|'})
	_, _ = h.Write([]byte(name))
	return h.Sum64()
}

// encodeToken builds the opaque continuation token for the row after
// (owner, name).
func encodeToken(owner, name string) string {
	c := continuation{Owner: owner, Name: name, Checksum: tokenChecksum(owner, name)}
	raw, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(raw)
}

// decodeToken parses a client-supplied token. An empty token means the
// first page.
func decodeToken(token string) (*continuation, error) {
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, validationErrorf("malformed continuation token")
	}
	var c continuation
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, validationErrorf("malformed continuation token")
	}
	if c.Checksum != tokenChecksum(c.Owner, c.Name) {
		return nil, validationErrorf("continuation token checksum mismatch")
	}
	return &c, nil
}
