package discovery

import (
	"fmt"
	"strconv"
	"strings"
)

// TXT record keys.
const (
	// TXTKeyProtocolID carries the 64-bit protocol id in lowercase hex.
	TXTKeyProtocolID = "pid"

	// TXTKeyVersion carries the discovery record version.
	TXTKeyVersion = "v"
)

// TXTVersion is the current discovery record version.
const TXTVersion = 1

// BuildTXT constructs the TXT record for an advertised endpoint.
func BuildTXT(protocolID uint64) []string {
	return []string{
		fmt.Sprintf("%s=%x", TXTKeyProtocolID, protocolID),
		fmt.Sprintf("%s=%d", TXTKeyVersion, TXTVersion),
	}
}

// ParseTXT extracts the protocol id from a TXT record.
// Returns ErrMissingProtocolID when the pid key is absent and
// ErrInvalidTXT when it does not parse.
func ParseTXT(txt []string) (uint64, error) {
	for _, item := range txt {
		key, value, found := strings.Cut(item, "=")
		if !found || key != TXTKeyProtocolID {
			continue
		}
		id, err := strconv.ParseUint(value, 16, 64)
		if err != nil {
			return 0, ErrInvalidTXT
		}
		return id, nil
	}
	return 0, ErrMissingProtocolID
}
