package twitch

import (
	"fmt"
	"strings"
)

// Capability is a Twitch IRC extension requested with CAP REQ.
type Capability int

const (
	CapTags Capability = iota
	CapCommands
	CapMembership
)

// String returns the capability name without the twitch.tv/ namespace.
func (c Capability) String() string {
	switch c {
	case CapTags:
		return "tags"
	case CapCommands:
		return "commands"
	case CapMembership:
		return "membership"
	}
	return fmt.Sprintf("Capability(%d)", int(c))
}

// Request returns the protocol line requesting the capability.
func (c Capability) Request() string {
	return "CAP REQ :twitch.tv/" + c.String()
}

// ParseCapability maps "tags", "commands" or "membership" (optionally
// prefixed with twitch.tv/) to a Capability.
func ParseCapability(name string) (Capability, error) {
	name = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(name)), "twitch.tv/")
	for _, c := range AllCapabilities() {
		if c.String() == name {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown capability %q", name)
}

// AllCapabilities lists every capability in request order.
func AllCapabilities() []Capability {
	return []Capability{CapTags, CapCommands, CapMembership}
}
