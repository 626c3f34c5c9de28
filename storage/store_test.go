package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"payward/native/loyalty"
	"payward/native/payments"
	"payward/native/subscription"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "payward.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedAccount(t *testing.T, store *Store, ownerID, code string) *loyalty.Account {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Second)
	account, err := store.InsertLoyaltyAccount(context.Background(), &loyalty.Account{
		OwnerID:      ownerID,
		Tier:         loyalty.TierBronze,
		ReferralCode: code,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	require.NoError(t, err)
	return account
}

func entry(owner string, delta int64, reason string) *loyalty.PointsEntry {
	return &loyalty.PointsEntry{
		ID:        owner + "-" + reason + "-" + time.Now().Format("150405.000000000"),
		OwnerID:   owner,
		Delta:     delta,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	}
}

func TestInsertLoyaltyAccountIdempotent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first := seedAccount(t, store, "owner-1", "OWNE-AAAAAA")
	// A second insert for the same owner yields the stored row, not an error.
	again, err := store.InsertLoyaltyAccount(ctx, &loyalty.Account{
		OwnerID:      "owner-1",
		Tier:         loyalty.TierBronze,
		ReferralCode: "OWNE-BBBBBB",
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	})
	require.NoError(t, err)
	require.Equal(t, first.ReferralCode, again.ReferralCode)

	byCode, err := store.AccountByReferralCode(ctx, "OWNE-AAAAAA")
	require.NoError(t, err)
	require.NotNil(t, byCode)
	require.Equal(t, "owner-1", byCode.OwnerID)

	missing, err := store.LoyaltyAccount(ctx, "nobody")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestApplyPointsDeltaEnforcesNonNegative(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	seedAccount(t, store, "owner-1", "OWNE-AAAAAA")

	account, applied, err := store.ApplyPointsDelta(ctx, "owner-1", 100, false, entry("owner-1", 100, "purchase"))
	require.NoError(t, err)
	require.EqualValues(t, 100, applied)
	require.EqualValues(t, 100, account.PointsBalance)
	require.EqualValues(t, 100, account.LifetimePoints)

	_, _, err = store.ApplyPointsDelta(ctx, "owner-1", -150, false, entry("owner-1", -150, "spend"))
	require.ErrorIs(t, err, loyalty.ErrInsufficientPoints)

	// The rejected delta must leave no history entry behind.
	history, err := store.PointsHistory(ctx, "owner-1", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)

	// Clamped reversals truncate at zero.
	account, applied, err = store.ApplyPointsDelta(ctx, "owner-1", -150, true, entry("owner-1", -150, "refund_reversal"))
	require.NoError(t, err)
	require.EqualValues(t, -100, applied)
	require.EqualValues(t, 0, account.PointsBalance)
	require.EqualValues(t, 100, account.LifetimePoints)
}

func TestInsertRedemptionAtomic(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	seedAccount(t, store, "owner-1", "OWNE-AAAAAA")
	_, _, err := store.ApplyPointsDelta(ctx, "owner-1", 600, false, entry("owner-1", 600, "purchase"))
	require.NoError(t, err)

	account, err := store.InsertRedemption(ctx, &loyalty.Redemption{
		ID:         "red-1",
		OwnerID:    "owner-1",
		RewardID:   "discount-5",
		CouponCode: "DISCOUNT-5-X",
		PointsCost: 500,
		CreatedAt:  time.Now().UTC(),
	})
	require.NoError(t, err)
	require.EqualValues(t, 100, account.PointsBalance)

	_, err = store.InsertRedemption(ctx, &loyalty.Redemption{
		ID:         "red-2",
		OwnerID:    "owner-1",
		RewardID:   "discount-5",
		CouponCode: "DISCOUNT-5-Y",
		PointsCost: 500,
		CreatedAt:  time.Now().UTC(),
	})
	require.ErrorIs(t, err, loyalty.ErrInsufficientPoints)

	recs, err := store.Redemptions(ctx, "owner-1", 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
}

func TestInsertReferralPairOnce(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	ref := &loyalty.Referral{ReferrerID: "a", RefereeID: "b", CreatedAt: time.Now().UTC()}
	first, err := store.InsertReferral(ctx, ref)
	require.NoError(t, err)
	require.True(t, first)

	second, err := store.InsertReferral(ctx, ref)
	require.NoError(t, err)
	require.False(t, second)

	// A different referee is a new pair.
	third, err := store.InsertReferral(ctx, &loyalty.Referral{ReferrerID: "a", RefereeID: "c", CreatedAt: time.Now().UTC()})
	require.NoError(t, err)
	require.True(t, third)
}

func sampleTransaction(id string) *payments.Transaction {
	now := time.Now().UTC().Truncate(time.Second)
	return &payments.Transaction{
		ID:            id,
		PayerID:       "payer-1",
		RecipientID:   "merchant-1",
		GrossCents:    10_000,
		Currency:      "USD",
		PaymentType:   "product",
		Method:        "card",
		CommissionBps: 2000,
		FeeCents:      2_000,
		NetCents:      8_000,
		Status:        payments.StatusCompleted,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestTransactionRoundTripWithDispute(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	tx := sampleTransaction("tx-1")
	require.NoError(t, store.InsertTransaction(ctx, tx))

	tx.Dispute = &payments.Dispute{
		ID:        "disp-1",
		Reason:    "not as described",
		Status:    payments.DisputePending,
		CreatedAt: tx.CreatedAt,
	}
	tx.Status = payments.StatusDisputed
	require.NoError(t, store.UpdateTransaction(ctx, tx))

	loaded, err := store.Transaction(ctx, "tx-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Equal(t, payments.StatusDisputed, loaded.Status)
	require.NotNil(t, loaded.Dispute)
	require.Equal(t, "disp-1", loaded.Dispute.ID)

	missing, err := store.Transaction(ctx, "tx-404")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestTransitionStatusCAS(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.InsertTransaction(ctx, sampleTransaction("tx-1")))

	refundable := []payments.Status{payments.StatusCompleted, payments.StatusCaptured}
	ok, err := store.TransitionStatus(ctx, "tx-1", refundable, payments.StatusRefunded)
	require.NoError(t, err)
	require.True(t, ok)

	// The second claim loses: the status already left the accepted set.
	ok, err = store.TransitionStatus(ctx, "tx-1", refundable, payments.StatusRefunded)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMarkLoyaltyProcessedFirstWriterWins(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.InsertTransaction(ctx, sampleTransaction("tx-1")))

	first, err := store.MarkLoyaltyProcessed(ctx, "tx-1", 100)
	require.NoError(t, err)
	require.True(t, first)

	second, err := store.MarkLoyaltyProcessed(ctx, "tx-1", 250)
	require.NoError(t, err)
	require.False(t, second)

	loaded, err := store.Transaction(ctx, "tx-1")
	require.NoError(t, err)
	require.True(t, loaded.LoyaltyProcessed)
	require.EqualValues(t, 100, loaded.AwardedPoints)
}

func sampleSubscription(id string) *subscription.Subscription {
	now := time.Now().UTC().Truncate(time.Second)
	return &subscription.Subscription{
		ID:                 id,
		OwnerID:            "owner-1",
		PlanID:             "plan-pro",
		PlanName:           "Pro",
		AmountCents:        2_999,
		Currency:           "USD",
		Interval:           subscription.IntervalMonth,
		Status:             subscription.StatusActive,
		ProcessorName:      "stripe",
		PaymentMethodID:    "pm-1",
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   now.AddDate(0, 1, 0),
		NextBillingDate:    now.AddDate(0, 2, 0),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

func TestInvoiceIdempotence(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.InsertSubscription(ctx, sampleSubscription("sub-1")))

	invoice := &subscription.Invoice{
		ID:             "row-1",
		SubscriptionID: "sub-1",
		ExternalID:     "inv-1",
		AmountCents:    2_999,
		Status:         subscription.InvoicePaid,
		CreatedAt:      time.Now().UTC(),
	}
	first, err := store.InsertInvoice(ctx, invoice)
	require.NoError(t, err)
	require.True(t, first)

	replay := *invoice
	replay.ID = "row-2"
	second, err := store.InsertInvoice(ctx, &replay)
	require.NoError(t, err)
	require.False(t, second)

	require.NoError(t, store.AttachInvoiceTransaction(ctx, "row-1", "tx-9"))
	invoices, err := store.Invoices(ctx, "sub-1")
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	require.Equal(t, "tx-9", invoices[0].TransactionID)
}

func TestPendingCancellations(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	due := sampleSubscription("sub-due")
	due.CancelAtPeriodEnd = true
	due.CurrentPeriodEnd = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, store.InsertSubscription(ctx, due))

	notYet := sampleSubscription("sub-later")
	notYet.CancelAtPeriodEnd = true
	require.NoError(t, store.InsertSubscription(ctx, notYet))

	active := sampleSubscription("sub-active")
	require.NoError(t, store.InsertSubscription(ctx, active))

	pending, err := store.PendingCancellations(ctx, time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "sub-due", pending[0].ID)
}

func TestIdempotencyKeys(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, _, found, err := store.IdempotentResponse(ctx, "key-1", "hash-a")
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, store.SaveIdempotentResponse(ctx, "key-1", "hash-a", 201, []byte(`{"ok":true}`)))
	status, body, found, err := store.IdempotentResponse(ctx, "key-1", "hash-a")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 201, status)
	require.JSONEq(t, `{"ok":true}`, string(body))

	_, _, _, err = store.IdempotentResponse(ctx, "key-1", "hash-b")
	require.ErrorIs(t, err, ErrIdempotencyConflict)
}
