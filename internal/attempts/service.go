package attempts

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for attempt history.
//
// It MUST be append-only. No Update/Delete methods are provided.
type Repository interface {
	Append(ctx context.Context, rec Record) error
	ListByCampaign(ctx context.Context, workspaceID, campaignID string) ([]Record, error)
}

// Options tunes the asynchronous writer.
type Options struct {
	// QueueSize bounds buffered records; when full, new records are dropped.
	QueueSize int
	// WriteTimeout bounds a single repository append.
	WriteTimeout time.Duration
}

func (o Options) withDefaults() Options {
	out := o
	if out.QueueSize <= 0 {
		out.QueueSize = 1024
	}
	if out.WriteTimeout <= 0 {
		out.WriteTimeout = 5 * time.Second
	}
	return out
}

// Service records call attempts and their outcomes.
//
// LogAttempt and LogOutcome are fire-and-forget: they never block on the
// repository and never return an error to the call flow. A single worker
// appends records in submission order.
type Service struct {
	repo  Repository
	log   *slog.Logger
	opts  Options
	clock func() time.Time

	mu      sync.RWMutex
	stopped bool
	queue   chan Record
	done    chan struct{}
}

var (
	ErrInvalidRequest = errors.New("attempts: invalid request")
	ErrNotFound       = errors.New("attempts: campaign not found")
)

func NewService(repo Repository, log *slog.Logger, opts Options) *Service {
	if log == nil {
		log = slog.Default()
	}
	opts = opts.withDefaults()
	s := &Service{
		repo:  repo,
		log:   log,
		opts:  opts,
		clock: time.Now,
		queue: make(chan Record, opts.QueueSize),
		done:  make(chan struct{}),
	}
	go s.run()
	return s
}

// LogAttempt records that a leg is about to be originated.
func (s *Service) LogAttempt(ctx context.Context, e Entry) {
	e.Outcome = ""
	s.enqueue(s.record(KindAttempt, e))
}

// LogOutcome records how a leg, a bridge, or a whole campaign ended.
func (s *Service) LogOutcome(ctx context.Context, e Entry) {
	s.enqueue(s.record(KindOutcome, e))
}

func (s *Service) record(kind Kind, e Entry) Record {
	return Record{
		ID:          uuid.NewString(),
		WorkspaceID: e.WorkspaceID,
		CampaignID:  e.CampaignID,
		Kind:        kind,
		Round:       e.Round,
		Role:        e.Role,
		Destination: e.Destination,
		LegID:       e.LegID,
		PeerLegID:   e.PeerLegID,
		Outcome:     e.Outcome,
		Reason:      e.Reason,
		CreatedAt:   s.clock().UTC(),
	}
}

func (s *Service) enqueue(rec Record) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		s.log.Warn("attempt record dropped", "reason", "recorder closed", "campaign_id", rec.CampaignID, "kind", rec.Kind)
		return
	}
	select {
	case s.queue <- rec:
	default:
		s.log.Warn("attempt record dropped", "reason", "queue full", "campaign_id", rec.CampaignID, "kind", rec.Kind)
	}
}

func (s *Service) run() {
	defer close(s.done)
	for rec := range s.queue {
		if s.repo == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.WriteTimeout)
		if err := s.repo.Append(ctx, rec); err != nil {
			s.log.Warn("attempt record write failed", "campaign_id", rec.CampaignID, "kind", rec.Kind, "err", err)
		}
		cancel()
	}
}

// Close stops accepting records and waits for the queue to drain or ctx to
// expire.
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		close(s.queue)
	}
	s.mu.Unlock()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// History returns the ordered records of one campaign attempt.
func (s *Service) History(ctx context.Context, workspaceID, campaignID string) ([]Record, error) {
	if campaignID == "" {
		return nil, ErrInvalidRequest
	}
	if s.repo == nil {
		return nil, errors.New("attempts: repository not configured")
	}
	return s.repo.ListByCampaign(ctx, workspaceID, campaignID)
}

// Summary aggregates the history of one campaign attempt. A campaign with no
// records in the workspace is ErrNotFound.
func (s *Service) Summary(ctx context.Context, workspaceID, campaignID string) (Summary, error) {
	rows, err := s.History(ctx, workspaceID, campaignID)
	if err != nil {
		return Summary{}, err
	}
	if len(rows) == 0 {
		return Summary{}, ErrNotFound
	}
	return Summarize(workspaceID, campaignID, rows), nil
}

// Summarize folds records into a Summary. It is pure so callers holding
// records already can reuse it.
func Summarize(workspaceID, campaignID string, rows []Record) Summary {
	out := Summary{WorkspaceID: workspaceID, CampaignID: campaignID, Disposition: "in-progress"}
	for _, r := range rows {
		if r.Round > out.RoundsTried {
			out.RoundsTried = r.Round
		}
		if r.Kind == KindAttempt {
			switch r.Role {
			case RoleAgent:
				out.AgentAttempts++
			case RoleLead:
				out.LeadAttempts++
			}
			continue
		}
		switch r.Outcome {
		case OutcomeNoAnswer:
			out.NoAnswer++
		case OutcomeOriginationFailed:
			out.OriginationFailed++
		case OutcomeBridgeFailed:
			out.BridgeFailed++
		case OutcomeBridged:
			out.Bridged++
			out.Disposition = "bridged"
		case OutcomeUnanswered:
			out.Disposition = "unanswered"
		case OutcomeError:
			if r.Role == RoleCampaign {
				out.Disposition = "error"
			}
		}
	}
	return out
}
