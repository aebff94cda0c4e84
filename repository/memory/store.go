// Package memory implements the repository interfaces on process memory.
// It backs tests and single-node development deployments.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xQBCx/biz-dev-app-firebase-sub001/domain"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/repository"
)

type summaryKey struct {
	dealID       string
	ingredientID string
	usageType    string
}

type state struct {
	deals        map[string]domain.Deal
	ingredients  map[string]domain.Ingredient
	formulations map[string]domain.Formulation
	rules        map[string]domain.AttributionRule
	proposals    map[string]domain.ChangeProposal
	usage        map[string]domain.UsageEvent
	summaries    map[summaryKey]domain.UsageSummary
	credits      map[string]domain.Credit
	contracts    map[string]domain.SettlementContract
	executions   map[string]domain.SettlementExecution
	payouts      map[string]domain.SettlementPayout
	events       []domain.Event
	seq          map[string]int64
	next         int64
}

func newState() state {
	return state{
		deals:        map[string]domain.Deal{},
		ingredients:  map[string]domain.Ingredient{},
		formulations: map[string]domain.Formulation{},
		rules:        map[string]domain.AttributionRule{},
		proposals:    map[string]domain.ChangeProposal{},
		usage:        map[string]domain.UsageEvent{},
		summaries:    map[summaryKey]domain.UsageSummary{},
		credits:      map[string]domain.Credit{},
		contracts:    map[string]domain.SettlementContract{},
		executions:   map[string]domain.SettlementExecution{},
		payouts:      map[string]domain.SettlementPayout{},
		seq:          map[string]int64{},
	}
}

// Store is the shared backing state of every memory repository.
type Store struct {
	mu    sync.RWMutex
	txMu  sync.Mutex
	state state
	now   func() time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		state: newState(),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

type txKey struct{}

// journal holds the undo steps of one transaction, newest last.
type journal struct {
	undo []func(st *state)
}

// WithinTx serializes transactions and, when fn fails, undoes the writes
// made through the transaction's context. Writes of other callers that
// landed meanwhile are kept. Nested calls join the running transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	j := &journal{}
	if err := fn(context.WithValue(ctx, txKey{}, j)); err != nil {
		s.mu.Lock()
		for i := len(j.undo) - 1; i >= 0; i-- {
			j.undo[i](&s.state)
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

// onRollback registers undo with the transaction of ctx. Callers hold mu.
func onRollback(ctx context.Context, undo func(st *state)) {
	if j, ok := ctx.Value(txKey{}).(*journal); ok {
		j.undo = append(j.undo, undo)
	}
}

// put stores v under k and journals the previous value.
func put[K comparable, V any](ctx context.Context, m map[K]V, k K, v V) {
	old, existed := m[k]
	onRollback(ctx, func(*state) {
		if existed {
			m[k] = old
		} else {
			delete(m, k)
		}
	})
	m[k] = v
}

// stamp records the insertion order of a new record. Callers hold mu.
func (s *Store) stamp(ctx context.Context, kind, id string) {
	s.state.next++
	put(ctx, s.state.seq, kind+":"+id, s.state.next)
}

func (s *Store) sorted(kind string, ids []string, desc bool) []string {
	sort.SliceStable(ids, func(i, j int) bool {
		a, b := s.state.seq[kind+":"+ids[i]], s.state.seq[kind+":"+ids[j]]
		if desc {
			return a > b
		}
		return a < b
	})
	return ids
}

func page[T any](items []T, limit, offset int) []T {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

// NewRepositories wires all memory repositories to s.
func NewRepositories(s *Store) repository.Registry {
	return repository.Registry{
		Deals:        NewDealRepository(s),
		Ingredients:  NewIngredientRepository(s),
		Formulations: NewFormulationRepository(s),
		Rules:        NewRuleRepository(s),
		Proposals:    NewProposalRepository(s),
		Usage:        NewUsageRepository(s),
		Credits:      NewCreditRepository(s),
		Contracts:    NewContractRepository(s),
		Executions:   NewExecutionRepository(s),
		Payouts:      NewPayoutRepository(s),
		Events:       NewEventRepository(s),
		Tx:           s,
	}
}
