package discord

import (
	"slices"

	"github.com/bwmarrin/discordgo"
)

// PermissionChecker decides whether a message author may run commands.
type PermissionChecker struct {
	roleID string
}

// NewPermissionChecker creates a PermissionChecker that requires roleID.
func NewPermissionChecker(roleID string) *PermissionChecker {
	return &PermissionChecker{roleID: roleID}
}

// Allowed reports whether member holds the configured command role.
// If roleID is empty, everyone is allowed. Returns false for a nil member
// (e.g. direct messages) when a role is required.
func (p *PermissionChecker) Allowed(member *discordgo.Member) bool {
	if p == nil || p.roleID == "" {
		return true
	}
	if member == nil {
		return false
	}
	return slices.Contains(member.Roles, p.roleID)
}
