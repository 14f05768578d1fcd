package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

const inviteAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// InviteCodeLength is the number of characters in a join code
const InviteCodeLength = 6

// GenerateInviteCode returns a random uppercase alphanumeric join code
func GenerateInviteCode() (string, error) {
	var b strings.Builder
	b.Grow(InviteCodeLength)
	max := big.NewInt(int64(len(inviteAlphabet)))
	for i := 0; i < InviteCodeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate invite code: %w", err)
		}
		b.WriteByte(inviteAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// NormalizeInviteCode trims and uppercases a user-typed code
func NormalizeInviteCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// FormatCurrency renders an amount in whole FCFA with space-grouped thousands,
// e.g. 25000 -> "25 000 FCFA"
func FormatCurrency(amount decimal.Decimal) string {
	rounded := amount.Round(0)
	digits := rounded.Abs().String()

	var grouped strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			grouped.WriteByte(' ')
		}
		grouped.WriteRune(r)
	}

	sign := ""
	if rounded.IsNegative() {
		sign = "-"
	}
	return sign + grouped.String() + " FCFA"
}

// DecimalFromString converts string to decimal.Decimal
func DecimalFromString(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}
