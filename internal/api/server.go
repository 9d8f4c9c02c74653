package api

import (
	"os"
	"strings"
	"sync"

	redis "github.com/redis/go-redis/v9"

	"kribdispatch/internal/auth"
	"kribdispatch/internal/model"
	"kribdispatch/internal/sched"
	"kribdispatch/internal/store"
	"kribdispatch/internal/travel"
	"kribdispatch/internal/webhooks"
)

type Server struct {
	Store       store.Store
	Pub         *webhooks.Publisher
	Auth        *auth.Verifier
	Broker      EventBroker
	Locations   *LocationCache
	Eval        *sched.Evaluator
	Finder      *sched.Finder
	Optimizer   *sched.Optimizer
	Disruptions *sched.Handler

	// proposals awaiting apply; instance-local, so a proposal must be
	// applied through the node that computed it
	mu        sync.Mutex
	proposals map[string]*model.ScheduleProposal
}

func (s *Server) saveProposal(p *model.ScheduleProposal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proposals == nil {
		s.proposals = map[string]*model.ScheduleProposal{}
	}
	s.proposals[p.ID] = p
}

func (s *Server) getProposal(id string) *model.ScheduleProposal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proposals[id]
}

func (s *Server) dropProposal(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.proposals, id)
}

// NewServer wires the server from the environment. With no
// DATABASE_URL it runs fully in memory; with no ROUTING_URL travel
// estimates come from straight-line distance.
func NewServer() (*Server, error) {
	dsn := os.Getenv("DATABASE_URL")
	var s store.Store
	if strings.TrimSpace(dsn) == "" {
		s = store.NewMemory()
	} else {
		sp, err := store.NewPostgres(dsn)
		if err != nil {
			return nil, err
		}
		if os.Getenv("DB_MIGRATE") != "false" {
			_ = sp.MigrateDir("db/migrations")
		}
		s = sp
	}

	var broker EventBroker
	if os.Getenv("REDIS_URL") != "" {
		if rb, err := NewRedisBroker(); err == nil {
			broker = rb
		} else {
			broker = NewBroker()
		}
	} else {
		broker = NewBroker()
	}

	est := newEstimatorFromEnv()
	eval := sched.NewEvaluator(sched.WeightsFromEnv(), est)
	finder := sched.NewFinder(eval)
	return &Server{
		Store:       s,
		Pub:         webhooks.NewPublisher(s),
		Auth:        auth.NewVerifierFromEnv(),
		Broker:      broker,
		Locations:   NewLocationCache(),
		Eval:        eval,
		Finder:      finder,
		Optimizer:   sched.NewOptimizer(eval),
		Disruptions: sched.NewHandler(finder),
	}, nil
}

// newEstimatorFromEnv layers the travel stack: routing service when
// configured, cached in Redis when available, haversine fallback
// always underneath.
func newEstimatorFromEnv() travel.Estimator {
	var est travel.Estimator = travel.Fallback{}
	if base := os.Getenv("ROUTING_URL"); base != "" {
		est = travel.NewRouted(base)
	}
	if url := os.Getenv("REDIS_URL"); url != "" {
		if opt, err := redis.ParseURL(url); err == nil {
			est = travel.NewCached(est, redis.NewClient(opt))
		}
	}
	return est
}

// NewWebhookWorker creates the background delivery worker.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
	return webhooks.NewWorker(s.Store)
}
