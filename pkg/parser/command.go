package parser

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"swapdash/pkg/types"
)

var (
	// Amount is kept loose here; strict validation happens against the
	// token's decimals in pkg/tokens.
	swapPattern  = regexp.MustCompile(`^(\S+)\s+([A-Z0-9]+)\s+(?:TO|FOR)\s+([A-Z0-9]+)$`)
	clabePattern = regexp.MustCompile(`^[0-9]{18}$`)
	hexAddress   = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
)

// ParseSwapCommand parses a natural language swap command
// Examples:
//   - "swap 10 USDT to ETH"
//   - "1.5 ETH to USDC"
//   - "100 USDC for DAI"
func ParseSwapCommand(command string) (*types.SwapRequest, error) {
	command = strings.TrimSpace(strings.ToUpper(command))
	command = strings.TrimPrefix(command, "SWAP ")

	matches := swapPattern.FindStringSubmatch(command)
	if matches == nil {
		return nil, fmt.Errorf("invalid swap command format. Expected: 'swap <amount> <token> to <token>' (e.g., 'swap 10 USDT to ETH')")
	}

	return &types.SwapRequest{
		Amount:      matches[1],
		SourceToken: matches[2],
		DestToken:   matches[3],
	}, nil
}

// ValidateSwapRequest validates that a swap request has all required fields
func ValidateSwapRequest(req *types.SwapRequest) error {
	if req.Amount == "" {
		return types.NewValidationError("amount is required")
	}
	if req.SourceToken == "" {
		return types.NewValidationError("source token is required")
	}
	if req.DestToken == "" {
		return types.NewValidationError("destination token is required")
	}
	if NormalizeTokenSymbol(req.SourceToken) == NormalizeTokenSymbol(req.DestToken) {
		return types.NewValidationError("cannot swap %s to itself", req.SourceToken)
	}
	return nil
}

// NormalizeTokenSymbol normalizes token symbols to standard format
func NormalizeTokenSymbol(symbol string) string {
	return strings.TrimSpace(strings.ToUpper(symbol))
}

// ParseAddress validates a 0x-prefixed 20-byte hex address. Mixed-case
// input must carry a valid EIP-55 checksum.
func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !hexAddress.MatchString(s) {
		return common.Address{}, types.NewValidationError("invalid address: %q", s)
	}
	if body := s[2:]; body != strings.ToLower(body) && body != strings.ToUpper(body) {
		mixed, err := common.NewMixedcaseAddressFromString(s)
		if err != nil || !mixed.ValidChecksum() {
			return common.Address{}, types.NewValidationError("address checksum mismatch: %q", s)
		}
	}
	addr := common.HexToAddress(s)
	if addr == (common.Address{}) {
		return common.Address{}, types.NewValidationError("zero address is not a valid recipient")
	}
	return addr, nil
}

// ValidateCLABE checks an 18-digit interbank account number
func ValidateCLABE(clabe string) error {
	if !clabePattern.MatchString(strings.TrimSpace(clabe)) {
		return types.NewValidationError("account number must be exactly 18 digits")
	}
	return nil
}

// Recipient is one line of a disperse file
type Recipient struct {
	Address common.Address
	Amount  string
}

// ParseRecipients reads "address,amount" lines; blank lines and lines
// starting with '#' are skipped
func ParseRecipients(r io.Reader) ([]Recipient, error) {
	var recipients []Recipient

	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		fields := strings.FieldsFunc(text, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t' || r == '='
		})
		if len(fields) != 2 {
			return nil, types.NewValidationError("line %d: expected 'address,amount'", line)
		}

		addr, err := ParseAddress(fields[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		recipients = append(recipients, Recipient{Address: addr, Amount: fields[1]})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read recipients: %w", err)
	}
	if len(recipients) == 0 {
		return nil, types.NewValidationError("no recipients found")
	}
	return recipients, nil
}
