package validation

import (
	"fmt"
	"strings"
)

// maxLoginLength is the longest Twitch login name
const maxLoginLength = 25

// ValidateBotConfig validates the connection settings a bot needs before dialing
func ValidateBotConfig(address string, port int, nickname, token string, channels []string) error {
	if err := ValidateServerAddress(address, port); err != nil {
		return err
	}
	if err := ValidateNickname(nickname); err != nil {
		return err
	}
	if err := ValidateToken(token); err != nil {
		return err
	}
	if len(channels) == 0 {
		return fmt.Errorf("at least one channel is required")
	}
	for i, ch := range channels {
		if err := ValidateChannelName(ch); err != nil {
			return fmt.Errorf("channel %d: %w", i+1, err)
		}
	}
	return nil
}

// ValidateNickname validates a Twitch login name
func ValidateNickname(nickname string) error {
	if strings.TrimSpace(nickname) == "" {
		return fmt.Errorf("nickname is required")
	}
	if err := validateLogin(nickname); err != nil {
		return fmt.Errorf("nickname %w", err)
	}
	return nil
}

// ValidateChannelName validates a Twitch channel name, with or without a leading '#'
func ValidateChannelName(channel string) error {
	channel = strings.TrimPrefix(strings.TrimSpace(channel), "#")
	if channel == "" {
		return fmt.Errorf("channel name is required")
	}
	if err := validateLogin(channel); err != nil {
		return fmt.Errorf("channel name %w", err)
	}
	return nil
}

// ValidateToken validates an OAuth token (the "oauth:" prefix is optional)
func ValidateToken(token string) error {
	token = strings.TrimPrefix(token, "oauth:")
	if token == "" {
		return fmt.Errorf("oauth token is required")
	}
	if strings.ContainsAny(token, " \t\r\n\x00") {
		return fmt.Errorf("oauth token contains invalid characters")
	}
	return nil
}

// ValidateServerAddress validates a server address and port
func ValidateServerAddress(address string, port int) error {
	address = strings.TrimSpace(address)
	if address == "" {
		return fmt.Errorf("server address is required")
	}
	if strings.ContainsAny(address, " /") {
		return fmt.Errorf("server address must be a host name or IP")
	}
	if port <= 0 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	return nil
}

func validateLogin(name string) error {
	if len(name) > maxLoginLength {
		return fmt.Errorf("too long (max %d characters)", maxLoginLength)
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		default:
			return fmt.Errorf("contains invalid character %q", r)
		}
	}
	return nil
}
