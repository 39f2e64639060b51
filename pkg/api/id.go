package api

import (
	"crypto/rand"
	"math/big"
	"regexp"

	"github.com/google/uuid"
)

const (
	idLength = 24
	charset  = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	conversationIDPrefix = "conv_"
	runIDPrefix          = "run_"
	callIDPrefix         = "call_"
)

var (
	conversationIDPattern = regexp.MustCompile(`^conv_[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
	callIDPattern         = regexp.MustCompile(`^call_[a-zA-Z0-9]{24}$`)
)

// NewConversationID generates a conversation ID: "conv_" followed by a
// random UUID.
func NewConversationID() string {
	return conversationIDPrefix + uuid.NewString()
}

// NewRunID generates an ID for a single loop run.
func NewRunID() string {
	return runIDPrefix + uuid.NewString()
}

// NewCallID generates a tool call ID for directives the provider sent
// without one.
func NewCallID() string {
	return callIDPrefix + randomAlphanumeric(idLength)
}

// ValidateConversationID checks whether id was produced by NewConversationID.
func ValidateConversationID(id string) bool {
	return conversationIDPattern.MatchString(id)
}

// ValidateCallID checks whether id was produced by NewCallID.
func ValidateCallID(id string) bool {
	return callIDPattern.MatchString(id)
}

func randomAlphanumeric(n int) string {
	max := big.NewInt(int64(len(charset)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic("crypto/rand failed: " + err.Error())
		}
		b[i] = charset[idx.Int64()]
	}
	return string(b)
}
