package store

// Category values a project can be filed under. Free text is tolerated on
// read; the modal and reports only offer these.
const (
	CategoryLaunched   = "Launched"
	CategoryReady      = "Ready / Scheduled"
	CategoryAlmost     = "Almost Ready"
	CategoryInProgress = "New / In Progress"
	CategoryStuck      = "Stuck / On Hold"
	CategoryOther      = "Other"
)

// Sentinel marks an unset free-text field. Empty string and Sentinel are
// interchangeable on read; Sentinel is what gets written.
const Sentinel = "-"

const (
	// MaxHistory bounds the change-history log per record. Oldest entries
	// are dropped on overflow.
	MaxHistory = 50
	// MaxEmailHistory bounds the email-history log per record.
	MaxEmailHistory = 10
)

// ProjectRecord is one client's engagement state. It maps 1:1 to the blob
// "{client}.json" in the remote gist.
type ProjectRecord struct {
	Client            string        `json:"client"`
	Owner             string        `json:"owner,omitempty"`
	Developer         string        `json:"developer,omitempty"`
	Category          string        `json:"category,omitempty"`
	Status            string        `json:"status,omitempty"`
	Blocker           string        `json:"blocker,omitempty"`
	LastContactDate   string        `json:"last_contact_date,omitempty"`
	Call              string        `json:"call,omitempty"`
	CommChannel       string        `json:"comm_channel,omitempty"`
	LastUpdated       string        `json:"last_updated,omitempty"`
	LastEmailReceived string        `json:"last_email_received,omitempty"`
	History           []ChangeEntry `json:"history,omitempty"`
	EmailHistory      []EmailEntry  `json:"email_history,omitempty"`
}

// FieldChange is one field's before/after pair inside a ChangeEntry.
type FieldChange struct {
	Old string `json:"old"`
	New string `json:"new"`
}

// ChangeEntry is one audit entry: every tracked field that changed in a
// single mutation, plus a full snapshot of the tracked state before it.
// Written only by human-form-driven updates, never by email extraction.
type ChangeEntry struct {
	Timestamp     string                 `json:"timestamp"`
	User          string                 `json:"user"`
	Changes       map[string]FieldChange `json:"changes"`
	PreviousState map[string]string      `json:"previous_state"`
}

// EmailEntry is one AI-extracted update with raw-text provenance. Written
// only by the extraction pipeline.
type EmailEntry struct {
	Timestamp       string `json:"timestamp"`
	Summary         string `json:"summary"`
	StatusExtracted string `json:"status_extracted"`
	RawTextPreview  string `json:"raw_text_preview"`
	SlackTS         string `json:"slack_ts"`
}

// HasBlocker reports whether the record carries a real blocker, treating
// the sentinel and "None" as empty.
func (r *ProjectRecord) HasBlocker() bool {
	return r.Blocker != "" && r.Blocker != Sentinel && r.Blocker != "None"
}
