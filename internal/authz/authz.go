// Package authz decides who may act where. Channels resolve to a
// {client, scope} context via the configured channel map; user emails are
// checked against two independent allow-lists.
package authz

import (
	"strings"

	"pulse/bot/internal/config"
)

type Scope string

const (
	ScopeInternal Scope = "internal"
	ScopeExternal Scope = "external"
)

// Context is the resolved authorization context for one channel. Client is
// empty for internal channels that are not bound to a single client.
type Context struct {
	Client string
	Scope  Scope
}

// ResolveContext maps a channel to its context. Unmapped channels
// (including DMs) default to internal with no client. This fail-open
// default is a trust-boundary assumption: the chat platform controls who
// can reach unmapped channels.
func ResolveContext(snap *config.Snapshot, channelID string) Context {
	if entry, ok := snap.ChannelMap[channelID]; ok {
		scope := ScopeInternal
		if entry.Role == string(ScopeExternal) {
			scope = ScopeExternal
		}
		return Context{Client: entry.Client, Scope: scope}
	}
	return Context{Scope: ScopeInternal}
}

// Authorize reports whether the user may act in the given context.
//
// External channels fail closed: an empty external allow-list denies
// everyone until it is explicitly configured. Internal channels fail open
// on an empty list for backward compatibility. internalOnly operations are
// denied in external channels regardless of any list.
func Authorize(snap *config.Snapshot, userEmail string, ctx Context, internalOnly bool) bool {
	if userEmail == "" {
		return false
	}
	if internalOnly && ctx.Scope == ScopeExternal {
		return false
	}
	if ctx.Scope == ScopeExternal {
		return contains(snap.ExternalAuthorizedUsers, userEmail)
	}
	if len(snap.AuthorizedUsers) == 0 {
		return true
	}
	return contains(snap.AuthorizedUsers, userEmail)
}

func contains(list []string, email string) bool {
	for _, entry := range list {
		if strings.EqualFold(entry, email) {
			return true
		}
	}
	return false
}
