package utils

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// GenerateID generates a random ID for runs and submissions
func GenerateID() string {
	return uuid.NewString()
}

// IsValidAddress checks if a string is a valid Ethereum address
func IsValidAddress(address string) bool {
	return common.IsHexAddress(address)
}

// NormalizeAddress normalizes an address to lowercase with 0x prefix
func NormalizeAddress(address string) string {
	if !strings.HasPrefix(address, "0x") {
		address = "0x" + address
	}
	return strings.ToLower(address)
}

// ParseAddress parses a hex address, rejecting malformed input
func ParseAddress(address string) (common.Address, error) {
	address = strings.TrimSpace(address)
	if !common.IsHexAddress(address) {
		return common.Address{}, NewAppError(ErrCodeValidation, "Invalid address", address)
	}
	return common.HexToAddress(address), nil
}

// ParseAddressList parses a comma separated list of hex addresses
func ParseAddressList(list string) ([]common.Address, error) {
	if strings.TrimSpace(list) == "" {
		return nil, nil
	}

	parts := strings.Split(list, ",")
	addrs := make([]common.Address, 0, len(parts))
	for _, part := range parts {
		addr, err := ParseAddress(part)
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, addr)
	}
	return addrs, nil
}

// ParseBigInt parses a decimal or 0x-prefixed hex integer
func ParseBigInt(value string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(strings.TrimSpace(value), 0)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", value)
	}
	return n, nil
}
