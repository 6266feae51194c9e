package wallet

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fanpay/internal/chain"
	"fanpay/internal/verify"
)

const testAddress = "0x742d35Cc6661C0532c26013575AD7c6ba8d87158"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestStore(t *testing.T) (*Store, *chain.SimAdapter, *MemPersister) {
	t.Helper()
	adapter := chain.NewSimAdapter(testAddress, decimal.NewFromInt(1000))
	persister := NewMemPersister()
	return NewStore(adapter, persister, testLogger()), adapter, persister
}

type staticChecker struct {
	result verify.EligibilityResult
}

func (c staticChecker) Check(ctx context.Context, address string) verify.EligibilityResult {
	return c.result
}

func TestStoreConnectNotifiesSubscribersSynchronously(t *testing.T) {
	s, _, _ := newTestStore(t)

	var seen []State
	unsubscribe := s.Subscribe(func(st State) {
		seen = append(seen, st)
	})
	defer unsubscribe()

	require.NoError(t, s.Connect(context.Background()))

	// The mutation is fully observable the moment Connect returns.
	require.NotEmpty(t, seen)
	last := seen[len(seen)-1]
	assert.True(t, last.IsConnected)
	assert.Equal(t, testAddress, last.Address)
	assert.False(t, last.IsLoading)

	state := s.State()
	assert.Equal(t, last, state)
}

func TestStoreSubscribeUnsubscribe(t *testing.T) {
	s, _, _ := newTestStore(t)

	calls := 0
	unsubscribe := s.Subscribe(func(State) { calls++ })

	require.NoError(t, s.Connect(context.Background()))
	after := calls
	require.Greater(t, after, 0)

	unsubscribe()
	s.Disconnect()
	assert.Equal(t, after, calls, "no notifications after unsubscribe")
}

func TestStoreVerifyRequiresConnection(t *testing.T) {
	s, _, _ := newTestStore(t)

	_, err := s.Verify(context.Background(), staticChecker{})
	assert.ErrorIs(t, err, ErrNoWalletConnected)
}

func TestStoreVerifyRecordsVerdict(t *testing.T) {
	s, _, _ := newTestStore(t)
	require.NoError(t, s.Connect(context.Background()))

	checker := staticChecker{result: verify.EligibilityResult{
		IsEligible: true,
		Details:    []string{"Wallet meets all eligibility requirements"},
	}}

	result, err := s.Verify(context.Background(), checker)
	require.NoError(t, err)
	assert.True(t, result.IsEligible)

	state := s.State()
	assert.True(t, state.IsVerified)
	assert.Equal(t, checker.result.Details, state.VerificationDetails)
	assert.False(t, state.IsLoading)
}

func TestStoreInitializeRestoresSnapshot(t *testing.T) {
	s, adapter, persister := newTestStore(t)
	require.NoError(t, s.Connect(context.Background()))
	_, err := s.Verify(context.Background(), staticChecker{result: verify.EligibilityResult{IsEligible: true}})
	require.NoError(t, err)

	// A fresh store over the same persister and adapter sees the old session.
	restored := NewStore(adapter, persister, testLogger())
	restored.Initialize(context.Background())

	state := restored.State()
	assert.True(t, state.IsConnected)
	assert.Equal(t, testAddress, state.Address)
	assert.True(t, state.IsVerified)
}

func TestStoreInitializeResetsVerificationOnAddressChange(t *testing.T) {
	_, _, persister := newTestStore(t)

	// Snapshot written for a different signer.
	require.NoError(t, persister.Save(StateKey, []byte(`{"is_connected":true,"address":"0x1111111111111111111111111111111111111111","is_verified":true}`)))

	adapter := chain.NewSimAdapter(testAddress, decimal.NewFromInt(1000))
	_, err := adapter.Connect(context.Background())
	require.NoError(t, err)

	s := NewStore(adapter, persister, testLogger())
	s.Initialize(context.Background())

	state := s.State()
	assert.Equal(t, testAddress, state.Address)
	assert.True(t, state.IsConnected)
	assert.False(t, state.IsVerified, "verification does not carry over to a new address")
}

func TestStoreInitializeCorruptSnapshot(t *testing.T) {
	s, _, persister := newTestStore(t)
	require.NoError(t, persister.Save(StateKey, []byte("{not json")))

	s.Initialize(context.Background())

	state := s.State()
	assert.False(t, state.IsConnected)
	assert.Empty(t, state.Address)
	assert.False(t, state.IsVerified)
}

func TestStoreDisconnectClearsAllPersistedKeys(t *testing.T) {
	s, _, persister := newTestStore(t)
	require.NoError(t, s.Connect(context.Background()))

	// Simulate stale snapshots under the legacy keys.
	for _, key := range legacyStateKeys {
		require.NoError(t, persister.Save(key, []byte(`{"is_connected":true}`)))
	}

	s.Disconnect()

	state := s.State()
	assert.False(t, state.IsConnected)
	assert.Empty(t, state.Address)

	assert.Empty(t, persister.Keys(), "canonical and legacy keys are all cleared")
}

func TestStoreConnectFailureSetsError(t *testing.T) {
	adapter := failingAdapter{}
	s := NewStore(adapter, NewMemPersister(), testLogger())

	err := s.Connect(context.Background())
	require.Error(t, err)

	state := s.State()
	assert.False(t, state.IsConnected)
	assert.False(t, state.IsLoading)
	assert.NotEmpty(t, state.ConnectionError)
}

type failingAdapter struct {
	chain.Adapter
}

func (failingAdapter) Connect(ctx context.Context) (string, error) {
	return "", chain.ErrNoWallet
}

func (failingAdapter) ConnectedAddress() (string, error) {
	return "", chain.ErrNoWallet
}

func (failingAdapter) Disconnect() error { return nil }

func TestFilePersisterRoundTrip(t *testing.T) {
	dir := t.TempDir()
	p, err := NewFilePersister(dir)
	require.NoError(t, err)

	require.NoError(t, p.Save("k", []byte(`{"a":1}`)))
	data, err := p.Load("k")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(data))

	require.NoError(t, p.Delete("k"))
	_, err = p.Load("k")
	assert.ErrorIs(t, err, ErrNoSnapshot)

	// Deleting a missing key is fine.
	require.NoError(t, p.Delete("k"))
}
