package db

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"barter/internal/models"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()

	database, err := Open(filepath.Join(t.TempDir(), "barter.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func createAccount(t *testing.T, database *DB, email string) (*models.Account, *models.Profile) {
	t.Helper()

	account, profile, err := NewAccountRepository(database).CreateWithProfile(context.Background(), email, "hash", "name", "")
	if err != nil {
		t.Fatalf("CreateWithProfile(%q) error = %v", email, err)
	}
	return account, profile
}

func TestCreateWithProfileRejectsDuplicateEmailIgnoringCase(t *testing.T) {
	database := openTestDB(t)
	createAccount(t, database, "alice@example.com")

	_, _, err := NewAccountRepository(database).CreateWithProfile(context.Background(), "Alice@Example.COM", "hash", "other", "")
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("CreateWithProfile() error = %v, want ErrDuplicate", err)
	}

	found, err := NewAccountRepository(database).FindByEmail(context.Background(), "ALICE@example.com")
	if err != nil {
		t.Fatalf("FindByEmail() error = %v", err)
	}
	if found.Email != "alice@example.com" {
		t.Fatalf("email = %q, want lower-cased", found.Email)
	}
}

func TestRefreshTokenRotateSucceedsOnce(t *testing.T) {
	database := openTestDB(t)
	account, _ := createAccount(t, database, "alice@example.com")
	repo := NewRefreshTokenRepository(database)
	ctx := context.Background()

	token, err := repo.Create(ctx, account.ID, "hash-0", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	const attempts = 8
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results <- repo.Rotate(ctx, token.ID, account.ID, "hash-next-"+string(rune('a'+i)), time.Now().Add(time.Hour))
		}(i)
	}
	wg.Wait()
	close(results)

	successes := 0
	for err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrNotFound):
		default:
			t.Fatalf("Rotate() unexpected error = %v", err)
		}
	}
	if successes != 1 {
		t.Fatalf("successful rotations = %d, want 1", successes)
	}

	consumed, err := repo.FindByHash(ctx, "hash-0")
	if err != nil {
		t.Fatalf("FindByHash() error = %v", err)
	}
	if !consumed.Revoked {
		t.Fatal("consumed token not revoked")
	}
}

func TestRefreshTokenRotateRejectsExpired(t *testing.T) {
	database := openTestDB(t)
	account, _ := createAccount(t, database, "alice@example.com")
	repo := NewRefreshTokenRepository(database)
	ctx := context.Background()

	token, err := repo.Create(ctx, account.ID, "hash-0", time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := repo.Rotate(ctx, token.ID, account.ID, "hash-1", time.Now().Add(time.Hour)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Rotate() error = %v, want ErrNotFound", err)
	}
	if _, err := repo.FindByHash(ctx, "hash-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("replacement token stored after failed rotation, err = %v", err)
	}
}

func TestCleanupRemovesRevokedAndExpiredTokens(t *testing.T) {
	database := openTestDB(t)
	account, _ := createAccount(t, database, "alice@example.com")
	refresh := NewRefreshTokenRepository(database)
	reset := NewResetTokenRepository(database)
	ctx := context.Background()

	if _, err := refresh.Create(ctx, account.ID, "live", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Create(live) error = %v", err)
	}
	if _, err := refresh.Create(ctx, account.ID, "expired", time.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("Create(expired) error = %v", err)
	}
	if _, err := reset.Replace(ctx, account.ID, "reset-expired", time.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}

	NewCleanupService(refresh, reset, time.Hour).RunOnce(ctx)

	if _, err := refresh.FindByHash(ctx, "live"); err != nil {
		t.Fatalf("live token removed: %v", err)
	}
	if _, err := refresh.FindByHash(ctx, "expired"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired token kept, err = %v", err)
	}
	if _, err := reset.FindByHash(ctx, "reset-expired"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired reset token kept, err = %v", err)
	}
}

func TestResetTokenConsumeIsSingleUse(t *testing.T) {
	database := openTestDB(t)
	account, _ := createAccount(t, database, "alice@example.com")
	reset := NewResetTokenRepository(database)
	ctx := context.Background()

	first, err := reset.Replace(ctx, account.ID, "first", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("Replace(first) error = %v", err)
	}
	second, err := reset.Replace(ctx, account.ID, "second", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("Replace(second) error = %v", err)
	}
	if _, err := reset.FindByHash(ctx, first.TokenHash); !errors.Is(err, ErrNotFound) {
		t.Fatalf("previous reset token survived Replace, err = %v", err)
	}

	if err := reset.Consume(ctx, second.ID, account.ID, "new-hash"); err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if err := reset.Consume(ctx, second.ID, account.ID, "other-hash"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second Consume() error = %v, want ErrNotFound", err)
	}

	updated, err := NewAccountRepository(database).FindByID(ctx, account.ID)
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if updated.PasswordHash != "new-hash" {
		t.Fatalf("password hash = %q, want %q", updated.PasswordHash, "new-hash")
	}
}

func TestTradeUpdateStatusIsCompareAndSet(t *testing.T) {
	database := openTestDB(t)
	_, owner := createAccount(t, database, "owner@example.com")
	_, requester := createAccount(t, database, "requester@example.com")
	ctx := context.Background()

	item, err := NewItemRepository(database).Create(ctx, owner.ID, "Bike")
	if err != nil {
		t.Fatalf("Create item error = %v", err)
	}

	trades := NewTradeRepository(database)
	trade := &models.Trade{OwnerID: owner.ID, RequesterID: requester.ID, OwnerItemID: item.ID}
	msg, err := trades.Create(ctx, trade, "hi")
	if err != nil {
		t.Fatalf("Create trade error = %v", err)
	}
	if msg == nil || msg.SenderID != requester.ID {
		t.Fatalf("opening message = %+v, want sender %q", msg, requester.ID)
	}

	updated, err := trades.UpdateStatus(ctx, trade.ID, models.TradePending, models.TradeAccepted)
	if err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}
	if updated.Status != models.TradeAccepted || updated.OwnerItemTitle != "Bike" {
		t.Fatalf("updated = %+v", updated)
	}

	if _, err := trades.UpdateStatus(ctx, trade.ID, models.TradePending, models.TradeRejected); !errors.Is(err, ErrStale) {
		t.Fatalf("stale UpdateStatus() error = %v, want ErrStale", err)
	}
}

func TestTradeListForProfileFiltersAndOrders(t *testing.T) {
	database := openTestDB(t)
	_, owner := createAccount(t, database, "owner@example.com")
	_, requester := createAccount(t, database, "requester@example.com")
	_, stranger := createAccount(t, database, "stranger@example.com")
	ctx := context.Background()

	item, err := NewItemRepository(database).Create(ctx, owner.ID, "Bike")
	if err != nil {
		t.Fatalf("Create item error = %v", err)
	}

	trades := NewTradeRepository(database)
	var ids []string
	for i := 0; i < 3; i++ {
		trade := &models.Trade{OwnerID: owner.ID, RequesterID: requester.ID, OwnerItemID: item.ID}
		if _, err := trades.Create(ctx, trade, ""); err != nil {
			t.Fatalf("Create trade error = %v", err)
		}
		ids = append(ids, trade.ID)
	}
	if _, err := trades.UpdateStatus(ctx, ids[0], models.TradePending, models.TradeRejected); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}

	all, err := trades.ListForProfile(ctx, requester.ID, nil)
	if err != nil {
		t.Fatalf("ListForProfile() error = %v", err)
	}
	if len(all) != 3 || all[0].ID != ids[2] || all[2].ID != ids[0] {
		t.Fatalf("ListForProfile() order = %v, want newest first of %v", tradeIDs(all), ids)
	}

	pending, err := trades.ListForProfile(ctx, owner.ID, []models.TradeStatus{models.TradePending})
	if err != nil {
		t.Fatalf("ListForProfile(pending) error = %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("pending trades = %d, want 2", len(pending))
	}

	none, err := trades.ListForProfile(ctx, stranger.ID, nil)
	if err != nil {
		t.Fatalf("ListForProfile(stranger) error = %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("stranger sees %d trades, want 0", len(none))
	}
}

func TestNotificationMarkAllReadIsIdempotent(t *testing.T) {
	database := openTestDB(t)
	_, alice := createAccount(t, database, "alice@example.com")
	_, bob := createAccount(t, database, "bob@example.com")
	repo := NewNotificationRepository(database)
	ctx := context.Background()

	for _, recipient := range []string{alice.ID, alice.ID, bob.ID} {
		n := &models.Notification{RecipientID: recipient, Type: models.NotificationTrade, Title: "t", Body: "b"}
		if err := repo.Create(ctx, n); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	first, err := repo.MarkAllRead(ctx, alice.ID)
	if err != nil {
		t.Fatalf("MarkAllRead() error = %v", err)
	}
	second, err := repo.MarkAllRead(ctx, alice.ID)
	if err != nil {
		t.Fatalf("second MarkAllRead() error = %v", err)
	}
	if first != 2 || second != 0 {
		t.Fatalf("MarkAllRead() affected = %d then %d, want 2 then 0", first, second)
	}

	bobs, err := repo.ListByRecipient(ctx, bob.ID)
	if err != nil {
		t.Fatalf("ListByRecipient() error = %v", err)
	}
	if len(bobs) != 1 || bobs[0].Read {
		t.Fatalf("bob notifications = %+v, want one unread", bobs)
	}
}

func TestNotificationMarkReadIgnoresOtherRecipients(t *testing.T) {
	database := openTestDB(t)
	_, alice := createAccount(t, database, "alice@example.com")
	_, bob := createAccount(t, database, "bob@example.com")
	repo := NewNotificationRepository(database)
	ctx := context.Background()

	n := &models.Notification{RecipientID: bob.ID, Type: models.NotificationMessage, Title: "t", Body: "b"}
	if err := repo.Create(ctx, n); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	affected, err := repo.MarkRead(ctx, alice.ID, []string{n.ID})
	if err != nil {
		t.Fatalf("MarkRead() error = %v", err)
	}
	if affected != 0 {
		t.Fatalf("MarkRead() affected = %d, want 0", affected)
	}
}

func tradeIDs(trades []models.Trade) []string {
	ids := make([]string, len(trades))
	for i, t := range trades {
		ids[i] = t.ID
	}
	return ids
}

func TestSeedDemoDataPopulatesEmptyDatabaseOnce(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	result, err := SeedDemoData(ctx, database, "hash")
	if err != nil {
		t.Fatalf("SeedDemoData() error = %v", err)
	}
	if result.Skipped || result.Profiles != len(demoMembers) || result.Items == 0 {
		t.Fatalf("first seed = %+v, want %d profiles with items", result, len(demoMembers))
	}

	var items int
	if err := database.QueryRowContext(ctx, `SELECT COUNT(*) FROM items`).Scan(&items); err != nil {
		t.Fatalf("counting items: %v", err)
	}
	if items != result.Items {
		t.Fatalf("items in table = %d, want %d", items, result.Items)
	}

	account, err := NewAccountRepository(database).FindByEmail(ctx, demoMembers[0].email)
	if err != nil {
		t.Fatalf("FindByEmail() error = %v", err)
	}
	if account.PasswordHash != "hash" {
		t.Fatalf("password hash = %q, want the supplied hash", account.PasswordHash)
	}

	again, err := SeedDemoData(ctx, database, "hash")
	if err != nil {
		t.Fatalf("second SeedDemoData() error = %v", err)
	}
	if !again.Skipped {
		t.Fatalf("second seed = %+v, want skipped", again)
	}
}

func TestSeedDemoDataSkipsDatabaseWithMembers(t *testing.T) {
	database := openTestDB(t)
	createAccount(t, database, "alice@example.com")

	result, err := SeedDemoData(context.Background(), database, "hash")
	if err != nil {
		t.Fatalf("SeedDemoData() error = %v", err)
	}
	if !result.Skipped {
		t.Fatalf("SeedDemoData() = %+v, want skipped", result)
	}
}
