package steam

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// id64Base is the offset of account universe 1 / instance 1 / type
// "individual" in the 64-bit SteamID space. Every community profile id
// is id64Base + accountNumber*2 + authBit.
const id64Base uint64 = 76561197960265728

var (
	legacyIDPattern = regexp.MustCompile(`^STEAM_[0-5]:[01]:\d+$`)
	id64Pattern     = regexp.MustCompile(`^76561[12]\d{11}$`)
)

// IsLegacyID reports whether s is a canonical STEAM_X:Y:Z identifier.
func IsLegacyID(s string) bool {
	return legacyIDPattern.MatchString(s)
}

// IsID64 reports whether s looks like a 64-bit community id.
func IsID64(s string) bool {
	return id64Pattern.MatchString(s)
}

// LegacyToID64 converts STEAM_X:Y:Z to the 64-bit community id. The
// math stays in uint64 the whole way so account numbers near 2^31 do
// not lose precision.
func LegacyToID64(legacy string) (string, error) {
	if !IsLegacyID(legacy) {
		return "", fmt.Errorf("%w: %q", ErrInvalidFormat, legacy)
	}
	parts := strings.Split(strings.TrimPrefix(legacy, "STEAM_"), ":")
	authBit, err := strconv.ParseUint(parts[1], 10, 1)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidFormat, legacy)
	}
	accountNumber, err := strconv.ParseUint(parts[2], 10, 32)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidFormat, legacy)
	}
	return strconv.FormatUint(id64Base+accountNumber*2+authBit, 10), nil
}

// ID64ToLegacy converts a 64-bit community id back to STEAM_0:Y:Z.
// The auth bit is the lowest bit of the low-32 account part; the
// account number is the rest shifted right by one.
func ID64ToLegacy(id64 string) (string, error) {
	n, err := strconv.ParseUint(id64, 10, 64)
	if err != nil || n < id64Base {
		return "", fmt.Errorf("%w: %q", ErrInvalidFormat, id64)
	}
	account := n - id64Base
	return fmt.Sprintf("STEAM_0:%d:%d", account&1, account>>1), nil
}
