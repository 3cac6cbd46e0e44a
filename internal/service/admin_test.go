package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ezac101/chainmail/internal/storage/memory"
)

func newTestAdmin(t *testing.T) (*AdminService, *LedgerService, *RelayService) {
	t.Helper()

	store := memory.NewStore()
	ledger, err := NewLedgerService(store, ownerAddr, relayAddr)
	require.NoError(t, err)

	relay := NewRelayService(ledger, store, defaultRelayConfig(), zap.NewNop())
	require.NoError(t, relay.Bootstrap())

	admin := NewAdminService(ledger, relay, store, "memory", "filesystem")
	return admin, ledger, relay
}

func TestAdminService_Statistics(t *testing.T) {
	admin, ledger, relay := newTestAdmin(t)

	_, err := ledger.LogSend(alice, bob, "ptr")
	require.NoError(t, err)
	require.NoError(t, ledger.RegisterPublicKey(alice, "key"))

	_, err = relay.SubmitEmail(alice, bob, "ptr")
	require.NoError(t, err)

	stats, err := admin.Statistics()
	require.NoError(t, err)

	assert.Equal(t, uint64(2), stats.TotalEmails)
	assert.Equal(t, uint64(3), stats.TotalEvents)
	assert.Equal(t, uint64(1), stats.RegisteredKeys)
	assert.NotZero(t, stats.RelayBalance)
	assert.NotZero(t, stats.RelayGasSpent)
	assert.Equal(t, ownerAddr, stats.Owner)
	assert.Equal(t, relayAddr, stats.RelayAddress)
	assert.Equal(t, "memory", stats.StorageBackend)
	assert.Equal(t, "filesystem", stats.ContentBackend)
}

func TestAdminService_CreditRelay(t *testing.T) {
	admin, _, relay := newTestAdmin(t)

	balance, err := admin.CreditRelay(500)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000500), balance)

	current, err := relay.Balance()
	require.NoError(t, err)
	assert.Equal(t, balance, current)
}

func TestAdminService_RoleChanges(t *testing.T) {
	admin, ledger, _ := newTestAdmin(t)

	assert.ErrorIs(t, admin.SetRelayAddress(alice, carol), ErrNotOwner)
	require.NoError(t, admin.SetRelayAddress(ownerAddr, carol))

	assert.ErrorIs(t, admin.TransferOwnership(alice, carol), ErrNotOwner)
	require.NoError(t, admin.TransferOwnership(ownerAddr, alice))

	roles, err := ledger.Roles()
	require.NoError(t, err)
	assert.Equal(t, alice, roles.Owner)
	assert.Equal(t, carol, roles.RelayAddress)
}
