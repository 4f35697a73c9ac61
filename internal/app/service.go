// Package app ties the record store, authorization rules and model
// clients together behind the operations the bot exposes.
package app

import (
	"context"
	"net/http"
	"strings"

	"pulse/bot/internal/authz"
	"pulse/bot/internal/config"
	"pulse/bot/internal/export"
	"pulse/bot/internal/store"
)

// Actor identifies who triggered an operation.
type Actor struct {
	UserID string
	Email  string
}

// auditIdentity is what the change history records for an actor. The
// email is the stable identity; transport user IDs stay out of records.
func (a Actor) auditIdentity() string {
	if strings.TrimSpace(a.Email) == "" {
		return "unknown"
	}
	return a.Email
}

type recordStore interface {
	Get(ctx context.Context, client string) (*store.ProjectRecord, error)
	ListAll(ctx context.Context) ([]*store.ProjectRecord, error)
	Put(ctx context.Context, rec *store.ProjectRecord) error
	Delete(ctx context.Context, client string) error
}

type extractor interface {
	ExtractAndApply(ctx context.Context, rawText, correlationID string) (*store.ProjectRecord, error)
}

type answerer interface {
	Answer(ctx context.Context, question string, scope authz.Context, background bool) (string, error)
}

type knowledgeSyncer interface {
	Enabled() bool
	SyncRecord(ctx context.Context, rec *store.ProjectRecord)
	SyncAll(ctx context.Context, records []*store.ProjectRecord)
}

type deduper interface {
	FirstSeen(ctx context.Context, eventID string) (bool, error)
}

type exporter interface {
	Render(records []*store.ProjectRecord, title string, kind export.Kind) (*export.Result, error)
}

// Messenger posts text and files back to chat channels.
type Messenger interface {
	Post(ctx context.Context, channelID, text string) error
	Upload(ctx context.Context, channelID string, res *export.Result) error
}

// Service implements the bot's operations.
type Service struct {
	records   recordStore
	snapshots *config.Manager
	extract   extractor
	answer    answerer
	kb        knowledgeSyncer
	dedup     deduper // nil when redis is not configured
	exporter  exporter
	messenger Messenger

	reportChannelID string
	pool            *workerPool
	locks           *store.Locker
}

// Options collects the service dependencies.
type Options struct {
	Records         recordStore
	Snapshots       *config.Manager
	Extractor       extractor
	Answerer        answerer
	KB              knowledgeSyncer
	Dedup           deduper
	Exporter        exporter
	Messenger       Messenger
	ReportChannelID string
	AskWorkers      int
	Locks           *store.Locker // shared with the extractor; created when nil
}

func NewService(opts Options) *Service {
	workers := opts.AskWorkers
	if workers <= 0 {
		workers = 4
	}
	locks := opts.Locks
	if locks == nil {
		locks = store.NewLocker()
	}
	return &Service{
		records:         opts.Records,
		snapshots:       opts.Snapshots,
		extract:         opts.Extractor,
		answer:          opts.Answerer,
		kb:              opts.KB,
		dedup:           opts.Dedup,
		exporter:        opts.Exporter,
		messenger:       opts.Messenger,
		reportChannelID: opts.ReportChannelID,
		pool:            newWorkerPool(workers),
		locks:           locks,
	}
}

// lockClient serializes read-modify-write cycles on one record.
func (s *Service) lockClient(client string) func() {
	return s.locks.Lock(client)
}

// authorize resolves the channel context and checks the actor against
// it. Every user-triggered operation calls this first.
func (s *Service) authorize(actor Actor, channelID string, internalOnly bool) (authz.Context, *DomainError) {
	snap := s.snapshots.Current()
	cctx := authz.ResolveContext(snap, channelID)
	if !authz.Authorize(snap, actor.Email, cctx, internalOnly) {
		return cctx, domainError(http.StatusForbidden, "unauthorized", "you are not authorized for this action here", nil)
	}
	return cctx, nil
}

// Shutdown drains the background ask workers.
func (s *Service) Shutdown() {
	s.pool.close()
}
