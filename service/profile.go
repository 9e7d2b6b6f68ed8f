package service

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"insightquest/models"
	"insightquest/progression"
)

const (
	avatarBaseURL     = "https://api.dicebear.com/6.x/avataaars/svg"
	MaxUsernameLength = 32
)

// NormalizeAddress returns the canonical lowercase form of a wallet address
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// addressSlice returns n hex characters following the 0x prefix, or fewer if the address is short
func addressSlice(address string, n int) string {
	hex := strings.TrimPrefix(address, "0x")
	if len(hex) > n {
		hex = hex[:n]
	}
	return hex
}

// DefaultUsername is the username given to a freshly created record
func DefaultUsername(address string) string {
	return "user_" + addressSlice(address, 6)
}

// AvatarURL is the generated avatar for an address
func AvatarURL(address string) string {
	return fmt.Sprintf("%s?seed=%s", avatarBaseURL, addressSlice(address, 8))
}

// NewDefaultUser builds the record for an address seen for the first time
func NewDefaultUser(address string, now time.Time) models.User {
	user := models.User{
		ID:        address,
		Address:   address,
		Username:  DefaultUsername(address),
		AvatarURL: AvatarURL(address),
		CreatedAt: now,
		UpdatedAt: now,
	}
	return progression.Normalize(user)
}

// ValidateUsername trims name and checks it is non-empty and not too long
func ValidateUsername(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: username is empty", ErrInvalidUsername)
	}
	if utf8.RuneCountInString(name) > MaxUsernameLength {
		return "", fmt.Errorf("%w: username exceeds %d characters", ErrInvalidUsername, MaxUsernameLength)
	}
	return name, nil
}
