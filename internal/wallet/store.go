package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"fanpay/internal/chain"
	"fanpay/internal/verify"
)

// StateKey is the canonical persistence key for the connection snapshot.
const StateKey = "wallet_connection"

// legacyStateKeys are earlier persistence keys. They are never written, only
// cleared on disconnect so stale snapshots cannot resurrect a session.
var legacyStateKeys = []string{"walletConnection", "walletConnectionState"}

// ErrNoWalletConnected is returned by operations that need a connected wallet.
var ErrNoWalletConnected = errors.New("no wallet connected")

// State is the shared wallet connection state. IsLoading and ConnectionError
// describe the in-flight connect attempt; IsVerified carries the eligibility
// verdict for the connected address.
type State struct {
	IsConnected         bool     `json:"is_connected"`
	Address             string   `json:"address"`
	IsVerified          bool     `json:"is_verified"`
	VerificationDetails []string `json:"verification_details,omitempty"`
	IsLoading           bool     `json:"is_loading"`
	ConnectionError     string   `json:"connection_error,omitempty"`
}

// persistedState is the subset of State worth surviving a restart.
type persistedState struct {
	IsConnected         bool     `json:"is_connected"`
	Address             string   `json:"address"`
	IsVerified          bool     `json:"is_verified"`
	VerificationDetails []string `json:"verification_details,omitempty"`
}

// EligibilityChecker verifies an address. *verify.WalletService satisfies it.
type EligibilityChecker interface {
	Check(ctx context.Context, address string) verify.EligibilityResult
}

// Store is the single owner of wallet connection state. All mutations go
// through setState, which persists the snapshot and notifies every
// subscriber synchronously before the mutating call returns.
type Store struct {
	adapter   chain.Adapter
	persister Persister
	logger    *slog.Logger

	mu      sync.Mutex
	state   State
	subs    map[int]func(State)
	nextSub int
}

// NewStore creates a wallet connection store.
func NewStore(adapter chain.Adapter, persister Persister, logger *slog.Logger) *Store {
	return &Store{
		adapter:   adapter,
		persister: persister,
		logger:    logger,
		subs:      make(map[int]func(State)),
	}
}

// State returns a copy of the current state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe registers a listener for every state change and returns its
// unsubscribe function. Listeners are invoked synchronously.
func (s *Store) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// setState applies a mutation, persists the new snapshot and notifies all
// subscribers before returning.
func (s *Store) setState(mutate func(*State)) {
	s.mu.Lock()
	mutate(&s.state)
	snapshot := s.state
	listeners := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	s.persist(snapshot)
	for _, fn := range listeners {
		fn(snapshot)
	}
}

func (s *Store) persist(state State) {
	data, err := json.Marshal(persistedState{
		IsConnected:         state.IsConnected,
		Address:             state.Address,
		IsVerified:          state.IsVerified,
		VerificationDetails: state.VerificationDetails,
	})
	if err != nil {
		s.logger.Error("failed to encode wallet state", "error", err)
		return
	}
	if err := s.persister.Save(StateKey, data); err != nil {
		s.logger.Error("failed to persist wallet state", "error", err)
	}
}

// Initialize restores the persisted snapshot and reconciles it with the
// chain adapter. A corrupt or missing snapshot yields defaults; an address
// change since the snapshot resets the verification verdict.
func (s *Store) Initialize(ctx context.Context) {
	restored := persistedState{}
	if data, err := s.persister.Load(StateKey); err == nil {
		if err := json.Unmarshal(data, &restored); err != nil {
			s.logger.Warn("corrupt wallet state snapshot, starting fresh", "error", err)
			restored = persistedState{}
		}
	} else if !errors.Is(err, ErrNoSnapshot) {
		s.logger.Warn("failed to load wallet state snapshot", "error", err)
	}

	addr, err := s.adapter.ConnectedAddress()

	s.setState(func(st *State) {
		st.IsConnected = restored.IsConnected
		st.Address = restored.Address
		st.IsVerified = restored.IsVerified
		st.VerificationDetails = restored.VerificationDetails
		st.IsLoading = false
		st.ConnectionError = ""

		switch {
		case errors.Is(err, chain.ErrNoWallet):
			st.IsConnected = false
		case err != nil:
			s.logger.Warn("failed to read connected address", "error", err)
			st.IsConnected = false
		case addr != st.Address:
			// The signer changed since the snapshot; the old verdict does
			// not carry over.
			st.Address = addr
			st.IsConnected = true
			st.IsVerified = false
			st.VerificationDetails = nil
		default:
			st.IsConnected = true
		}
	})
}

// Connect establishes the wallet session through the chain adapter.
func (s *Store) Connect(ctx context.Context) error {
	s.setState(func(st *State) {
		st.IsLoading = true
		st.ConnectionError = ""
	})

	addr, err := s.adapter.Connect(ctx)
	if err != nil {
		s.setState(func(st *State) {
			st.IsLoading = false
			st.IsConnected = false
			st.ConnectionError = err.Error()
		})
		return err
	}

	s.setState(func(st *State) {
		if st.Address != addr {
			st.IsVerified = false
			st.VerificationDetails = nil
		}
		st.Address = addr
		st.IsConnected = true
		st.IsLoading = false
		st.ConnectionError = ""
	})
	return nil
}

// Verify runs the eligibility check for the connected address and records
// the verdict. Fails fast when no wallet is connected.
func (s *Store) Verify(ctx context.Context, checker EligibilityChecker) (verify.EligibilityResult, error) {
	s.mu.Lock()
	connected := s.state.IsConnected
	addr := s.state.Address
	s.mu.Unlock()

	if !connected || addr == "" {
		return verify.EligibilityResult{}, ErrNoWalletConnected
	}

	s.setState(func(st *State) { st.IsLoading = true })

	result := checker.Check(ctx, addr)

	s.setState(func(st *State) {
		st.IsLoading = false
		st.IsVerified = result.IsEligible
		st.VerificationDetails = result.Details
	})
	return result, nil
}

// Disconnect tears down the wallet session and clears every persisted
// snapshot, including legacy keys. Adapter errors are logged, not returned;
// local state is cleared regardless.
func (s *Store) Disconnect() {
	if err := s.adapter.Disconnect(); err != nil {
		s.logger.Warn("adapter disconnect failed", "error", err)
	}

	s.setState(func(st *State) {
		*st = State{}
	})

	for _, key := range append([]string{StateKey}, legacyStateKeys...) {
		if err := s.persister.Delete(key); err != nil {
			s.logger.Warn("failed to clear persisted wallet state", "key", key, "error", err)
		}
	}
}
