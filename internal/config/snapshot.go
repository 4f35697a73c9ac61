package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync/atomic"
)

// ChannelContext maps one channel to a client and a role on the wire.
type ChannelContext struct {
	Client string `json:"client"`
	Role   string `json:"role"`
}

// Snapshot is the reloadable part of the configuration: the channel map
// and the two allow-lists. It is immutable once published; readers take
// one snapshot per operation and never see a half-updated mix.
type Snapshot struct {
	MailboxChannelID        string                    `json:"mailbox_channel_id"`
	ChannelMap              map[string]ChannelContext `json:"channel_map"`
	AuthorizedUsers         []string                  `json:"authorized_users"`
	ExternalAuthorizedUsers []string                  `json:"external_authorized_users"`
}

func emptySnapshot() *Snapshot {
	return &Snapshot{ChannelMap: map[string]ChannelContext{}}
}

// Manager holds the current snapshot behind an atomic pointer. Load and
// Save swap the whole snapshot; Current never blocks.
type Manager struct {
	path    string
	current atomic.Pointer[Snapshot]
}

func NewManager(path string) *Manager {
	m := &Manager{path: path}
	m.current.Store(emptySnapshot())
	return m
}

// Current returns the live snapshot. Callers must not mutate it; to change
// configuration, copy, edit, and Save.
func (m *Manager) Current() *Snapshot {
	return m.current.Load()
}

// Load reads the snapshot from the PULSE_CONFIG_JSON environment variable
// if set, otherwise from the config file, and publishes it. A missing or
// unparsable source leaves an empty snapshot in place (logged, not fatal).
func (m *Manager) Load() error {
	if raw := os.Getenv("PULSE_CONFIG_JSON"); raw != "" {
		snap := emptySnapshot()
		if err := json.Unmarshal([]byte(raw), snap); err != nil {
			log.Printf("config: parse PULSE_CONFIG_JSON: %v, trying %s", err, m.path)
		} else {
			m.publish(snap)
			log.Printf("config: loaded snapshot from PULSE_CONFIG_JSON")
			return nil
		}
	}

	data, err := os.ReadFile(m.path)
	if err != nil {
		log.Printf("config: %s not readable, using empty configuration: %v", m.path, err)
		m.publish(emptySnapshot())
		return nil
	}
	snap := emptySnapshot()
	if err := json.Unmarshal(data, snap); err != nil {
		log.Printf("config: parse %s: %v, using empty configuration", m.path, err)
		m.publish(emptySnapshot())
		return nil
	}
	m.publish(snap)
	log.Printf("config: loaded snapshot from %s", m.path)
	return nil
}

// Save writes the snapshot to the config file and publishes it atomically.
// Deployments driven by PULSE_CONFIG_JSON must update the variable out of
// band; the in-memory swap still takes effect immediately.
func (m *Manager) Save(snap *Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("config: encode snapshot: %w", err)
	}
	if err := os.WriteFile(m.path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", m.path, err)
	}
	m.publish(snap)
	return nil
}

func (m *Manager) publish(snap *Snapshot) {
	if snap.ChannelMap == nil {
		snap.ChannelMap = map[string]ChannelContext{}
	}
	m.current.Store(snap)
}

// Clone copies a snapshot for editing before Save.
func (s *Snapshot) Clone() *Snapshot {
	out := &Snapshot{
		MailboxChannelID:        s.MailboxChannelID,
		ChannelMap:              make(map[string]ChannelContext, len(s.ChannelMap)),
		AuthorizedUsers:         append([]string(nil), s.AuthorizedUsers...),
		ExternalAuthorizedUsers: append([]string(nil), s.ExternalAuthorizedUsers...),
	}
	for id, c := range s.ChannelMap {
		out.ChannelMap[id] = c
	}
	return out
}
