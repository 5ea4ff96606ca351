package memory

import (
	"context"
	"testing"
	"time"

	"atm-ledger/internal/core/domain"
	"atm-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedAccount(t *testing.T, s *Store, balance domain.Money) uuid.UUID {
	t.Helper()
	acct := &domain.Account{ID: uuid.New(), Username: "user-" + uuid.NewString()[:8], Balance: balance}
	require.NoError(t, s.Create(context.Background(), acct))
	return acct.ID
}

func TestBeginSection_AccountNotFound(t *testing.T) {
	s := NewStore()
	_, err := s.BeginSection(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestBeginSection_LockTimeout(t *testing.T) {
	s := NewStore(WithLockTimeout(30 * time.Millisecond))
	id := seedAccount(t, s, 1000)
	ctx := context.Background()

	held, err := s.BeginSection(ctx, id)
	require.NoError(t, err)
	defer held.Abort(ctx) //nolint:errcheck

	start := time.Now()
	_, err = s.BeginSection(ctx, id)
	assert.ErrorIs(t, err, domain.ErrLockTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestBeginSection_CallerCanceledWhileWaiting(t *testing.T) {
	s := NewStore(WithLockTimeout(time.Second))
	id := seedAccount(t, s, 1000)

	held, err := s.BeginSection(context.Background(), id)
	require.NoError(t, err)
	defer held.Abort(context.Background()) //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = s.BeginSection(ctx, id)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, domain.ErrLockTimeout)
}

func TestBeginSection_DifferentAccountsIndependent(t *testing.T) {
	s := NewStore(WithLockTimeout(20 * time.Millisecond))
	a := seedAccount(t, s, 100)
	b := seedAccount(t, s, 100)
	ctx := context.Background()

	secA, err := s.BeginSection(ctx, a)
	require.NoError(t, err)
	defer secA.Abort(ctx) //nolint:errcheck

	secB, err := s.BeginSection(ctx, b)
	require.NoError(t, err)
	require.NoError(t, secB.Abort(ctx))
}

func TestSection_ReadBalanceRepeatable(t *testing.T) {
	s := NewStore()
	id := seedAccount(t, s, 100000)
	ctx := context.Background()

	sec, err := s.BeginSection(ctx, id)
	require.NoError(t, err)
	defer sec.Abort(ctx) //nolint:errcheck

	first, err := sec.ReadBalance(ctx)
	require.NoError(t, err)
	second, err := sec.ReadBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Money(100000), first)
	assert.Equal(t, first, second)
}

func TestSection_CommitPublishesBalanceAndRecord(t *testing.T) {
	s := NewStore()
	id := seedAccount(t, s, 100000)
	ctx := context.Background()

	sec, err := s.BeginSection(ctx, id)
	require.NoError(t, err)

	require.NoError(t, sec.WriteBalance(ctx, 125000))
	rec, err := sec.AppendRecord(ctx, domain.TransactionKindDeposit, 25000, time.Now())
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, rec.ID)
	assert.Zero(t, rec.Sequence, "sequence is assigned at commit")

	acct, _ := s.GetByID(ctx, id)
	assert.Equal(t, domain.Money(100000), acct.Balance, "staged balance must not be visible")

	require.NoError(t, sec.Commit(ctx))
	assert.Equal(t, int64(1), rec.Sequence)

	acct, _ = s.GetByID(ctx, id)
	assert.Equal(t, domain.Money(125000), acct.Balance)

	txs, total, err := s.List(ctx, ports.TransactionListParams{AccountID: id, Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, rec.ID, txs[0].ID)

	assert.NoError(t, sec.Abort(ctx), "abort after commit is a no-op")
	assert.Equal(t, 0, s.locks.Len())
}

func TestSection_AbortDiscardsAndReleases(t *testing.T) {
	s := NewStore(WithLockTimeout(20 * time.Millisecond))
	id := seedAccount(t, s, 5000)
	ctx := context.Background()

	sec, err := s.BeginSection(ctx, id)
	require.NoError(t, err)
	require.NoError(t, sec.WriteBalance(ctx, 0))
	_, err = sec.AppendRecord(ctx, domain.TransactionKindWithdraw, 5000, time.Now())
	require.NoError(t, err)

	require.NoError(t, sec.Abort(ctx))
	require.NoError(t, sec.Abort(ctx))

	acct, _ := s.GetByID(ctx, id)
	assert.Equal(t, domain.Money(5000), acct.Balance)
	_, total, _ := s.List(ctx, ports.TransactionListParams{AccountID: id})
	assert.Zero(t, total)

	again, err := s.BeginSection(ctx, id)
	require.NoError(t, err, "lock must be free after abort")
	require.NoError(t, again.Abort(ctx))
}

func TestSection_InvariantGuards(t *testing.T) {
	s := NewStore()
	id := seedAccount(t, s, 100)
	ctx := context.Background()

	sec, err := s.BeginSection(ctx, id)
	require.NoError(t, err)
	defer sec.Abort(ctx) //nolint:errcheck

	assert.ErrorIs(t, sec.WriteBalance(ctx, -1), domain.ErrInvariantViolation)

	_, err = sec.AppendRecord(ctx, domain.TransactionKindDeposit, 0, time.Now())
	assert.ErrorIs(t, err, domain.ErrInvariantViolation)

	_, err = sec.AppendRecord(ctx, "TRANSFER", 100, time.Now())
	assert.ErrorIs(t, err, domain.ErrInvariantViolation)
}

func TestSection_CommitRequiresBothStaged(t *testing.T) {
	s := NewStore(WithLockTimeout(20 * time.Millisecond))
	id := seedAccount(t, s, 100)
	ctx := context.Background()

	sec, err := s.BeginSection(ctx, id)
	require.NoError(t, err)
	require.NoError(t, sec.WriteBalance(ctx, 200))

	assert.ErrorIs(t, sec.Commit(ctx), domain.ErrInvariantViolation)

	acct, _ := s.GetByID(ctx, id)
	assert.Equal(t, domain.Money(100), acct.Balance)

	_, err = sec.ReadBalance(ctx)
	assert.ErrorIs(t, err, domain.ErrInvariantViolation, "section is closed after commit")

	again, err := s.BeginSection(ctx, id)
	require.NoError(t, err, "failed commit still releases the lock")
	require.NoError(t, again.Abort(ctx))
}

func TestCreate_DuplicateUsername(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, &domain.Account{ID: uuid.New(), Username: "alice"}))

	err := s.Create(ctx, &domain.Account{ID: uuid.New(), Username: "Alice"})
	assert.ErrorIs(t, err, domain.ErrAccountExists)

	got, err := s.GetByUsername(ctx, "ALICE")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "alice", got.Username)

	missing, err := s.GetByUsername(ctx, "bob")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestList_OrderFilterAndPagination(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewStore()
	id := seedAccount(t, s, 0)
	other := seedAccount(t, s, 0)
	ctx := context.Background()

	apply := func(acct uuid.UUID, kind domain.TransactionKind, amount domain.Money, at time.Time) {
		sec, err := s.BeginSection(ctx, acct)
		require.NoError(t, err)
		bal, _ := sec.ReadBalance(ctx)
		next, _ := kind.Apply(bal, amount)
		require.NoError(t, sec.WriteBalance(ctx, next))
		_, err = sec.AppendRecord(ctx, kind, amount, at)
		require.NoError(t, err)
		require.NoError(t, sec.Commit(ctx))
	}

	apply(id, domain.TransactionKindDeposit, 1000, base)
	apply(id, domain.TransactionKindWithdraw, 100, base.Add(time.Minute))
	apply(id, domain.TransactionKindDeposit, 500, base.Add(time.Minute)) // same timestamp, higher sequence
	apply(id, domain.TransactionKindDeposit, 200, base.Add(2*time.Minute))
	apply(other, domain.TransactionKindDeposit, 999, base.Add(3*time.Minute))

	all, total, err := s.List(ctx, ports.TransactionListParams{AccountID: id, Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
	require.Len(t, all, 4)
	assert.Equal(t, []domain.Money{200, 500, 100, 1000}, []domain.Money{all[0].Amount, all[1].Amount, all[2].Amount, all[3].Amount})

	page2, _, err := s.List(ctx, ports.TransactionListParams{AccountID: id, Page: 2, PageSize: 3})
	require.NoError(t, err)
	require.Len(t, page2, 1)
	assert.Equal(t, domain.Money(1000), page2[0].Amount)

	withdraw := domain.TransactionKindWithdraw
	onlyWithdraws, total, err := s.List(ctx, ports.TransactionListParams{AccountID: id, Kind: &withdraw, Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, domain.Money(100), onlyWithdraws[0].Amount)

	from := base.Add(90 * time.Second)
	recent, _, err := s.List(ctx, ports.TransactionListParams{AccountID: id, From: &from, Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Len(t, recent, 1)

	stats, err := s.GetStats(ctx, id, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.TotalTransactions)
	assert.Equal(t, int64(3), stats.Deposits)
	assert.Equal(t, domain.Money(1700), stats.TotalDeposited)
	assert.Equal(t, domain.Money(100), stats.TotalWithdrawn)

	acct, _ := s.GetByID(ctx, id)
	assert.Equal(t, stats.TotalDeposited-stats.TotalWithdrawn, acct.Balance)
}
