package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"pulse/bot/internal/authz"
	"pulse/bot/internal/config"
)

// AdminAddUser allow-lists an email for the internal or external list.
// Emails are stored lowercase and never duplicated.
func (s *Service) AdminAddUser(ctx context.Context, actor Actor, channelID, email string, external bool) (string, error) {
	if _, derr := s.authorize(actor, channelID, true); derr != nil {
		return "", derr
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return "", domainError(http.StatusBadRequest, "invalid", "a valid email address is required", nil)
	}

	snap := s.snapshots.Current().Clone()
	list := &snap.AuthorizedUsers
	label := "internal"
	if external {
		list = &snap.ExternalAuthorizedUsers
		label = "external"
	}
	for _, existing := range *list {
		if strings.EqualFold(existing, email) {
			return fmt.Sprintf("%s is already on the %s list.", email, label), nil
		}
	}
	*list = append(*list, email)
	if err := s.snapshots.Save(snap); err != nil {
		return "", domainError(http.StatusInternalServerError, "config", "saving the configuration failed", nil)
	}
	return fmt.Sprintf("Added %s to the %s list.", email, label), nil
}

// AdminRemoveUser drops an email from the internal or external list.
func (s *Service) AdminRemoveUser(ctx context.Context, actor Actor, channelID, email string, external bool) (string, error) {
	if _, derr := s.authorize(actor, channelID, true); derr != nil {
		return "", derr
	}
	email = strings.ToLower(strings.TrimSpace(email))

	snap := s.snapshots.Current().Clone()
	list := &snap.AuthorizedUsers
	label := "internal"
	if external {
		list = &snap.ExternalAuthorizedUsers
		label = "external"
	}
	kept := (*list)[:0]
	removed := false
	for _, existing := range *list {
		if strings.EqualFold(existing, email) {
			removed = true
			continue
		}
		kept = append(kept, existing)
	}
	if !removed {
		return "", domainError(http.StatusNotFound, "not_found", fmt.Sprintf("%s is not on the %s list", email, label), nil)
	}
	*list = kept
	if err := s.snapshots.Save(snap); err != nil {
		return "", domainError(http.StatusInternalServerError, "config", "saving the configuration failed", nil)
	}
	return fmt.Sprintf("Removed %s from the %s list.", email, label), nil
}

// AdminMapChannel binds a channel to a client and role.
func (s *Service) AdminMapChannel(ctx context.Context, actor Actor, channelID, targetChannel, client string, scope authz.Scope) (string, error) {
	if _, derr := s.authorize(actor, channelID, true); derr != nil {
		return "", derr
	}
	targetChannel = strings.TrimSpace(targetChannel)
	if targetChannel == "" {
		return "", domainError(http.StatusBadRequest, "invalid", "a channel id is required", nil)
	}
	if scope == authz.ScopeExternal && strings.TrimSpace(client) == "" {
		return "", domainError(http.StatusBadRequest, "invalid", "external channels must be mapped to a client", nil)
	}

	snap := s.snapshots.Current().Clone()
	snap.ChannelMap[targetChannel] = config.ChannelContext{Client: strings.TrimSpace(client), Role: string(scope)}
	if err := s.snapshots.Save(snap); err != nil {
		return "", domainError(http.StatusInternalServerError, "config", "saving the configuration failed", nil)
	}
	return fmt.Sprintf("Mapped <#%s> as %s for %q.", targetChannel, scope, client), nil
}

// AdminSetMailbox designates the channel whose messages feed extraction.
func (s *Service) AdminSetMailbox(ctx context.Context, actor Actor, channelID, mailboxChannel string) (string, error) {
	if _, derr := s.authorize(actor, channelID, true); derr != nil {
		return "", derr
	}
	snap := s.snapshots.Current().Clone()
	snap.MailboxChannelID = strings.TrimSpace(mailboxChannel)
	if err := s.snapshots.Save(snap); err != nil {
		return "", domainError(http.StatusInternalServerError, "config", "saving the configuration failed", nil)
	}
	if snap.MailboxChannelID == "" {
		return "Mailbox intake disabled.", nil
	}
	return fmt.Sprintf("Mailbox channel set to <#%s>.", snap.MailboxChannelID), nil
}
