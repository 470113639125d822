package domain

import (
	"fmt"
	"time"

	"github.com/containerd/errdefs"
)

var (
	ErrGroupLockExists   = fmt.Errorf("group lock already exists: %w", errdefs.ErrAlreadyExists)
	ErrGroupLockNotFound = fmt.Errorf("group lock not found: %w", errdefs.ErrNotFound)
)

// LockAction is what a group lock does to a member it turns away.
type LockAction string

const (
	LockKick LockAction = "kick"
	LockDM   LockAction = "dm"
)

// ParseLockAction parses an action name. The empty string is a kick.
func ParseLockAction(s string) (LockAction, bool) {
	switch LockAction(s) {
	case "", LockKick:
		return LockKick, true
	case LockDM:
		return LockDM, true
	}
	return "", false
}

// Label returns the action as shown to users.
func (a LockAction) Label() string {
	if a == LockDM {
		return "DM"
	}
	return "Kick"
}

// GroupLock restricts a guild to members of a Roblox group, optionally to
// some of its ranks.
type GroupLock struct {
	GuildID   string
	GroupID   int64
	GroupName string
	DMMessage string
	Rolesets  []int

	// VerifiedAction applies to linked accounts outside the group,
	// UnverifiedAction to members with no linked account.
	VerifiedAction   LockAction
	UnverifiedAction LockAction
	CreatedAt        time.Time
}

// Validate checks the lock is well formed.
func (l *GroupLock) Validate() error {
	if l.GuildID == "" {
		return fmt.Errorf("group lock needs a guild")
	}
	if l.GroupID <= 0 {
		return fmt.Errorf("group id must be positive")
	}
	for _, a := range []LockAction{l.VerifiedAction, l.UnverifiedAction} {
		if _, ok := ParseLockAction(string(a)); !ok {
			return fmt.Errorf("unknown lock action %q", a)
		}
	}
	return nil
}
