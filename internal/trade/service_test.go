package trade

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"barter/internal/apperr"
	"barter/internal/constants"
	"barter/internal/db"
	"barter/internal/events"
	"barter/internal/models"
)

type recordingBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *recordingBus) Publish(_ context.Context, e events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
}

func (b *recordingBus) statusChanges() []events.TradeStatusChanged {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []events.TradeStatusChanged
	for _, e := range b.events {
		if ev, ok := e.(events.TradeStatusChanged); ok {
			out = append(out, ev)
		}
	}
	return out
}

type fixture struct {
	svc       *Service
	bus       *recordingBus
	items     *db.ItemRepository
	owner     string
	requester string
	stranger  string
	bike      *models.Item
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	database, err := db.Open(filepath.Join(t.TempDir(), "trade.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	accounts := db.NewAccountRepository(database)
	profileID := func(email string) string {
		_, p, err := accounts.CreateWithProfile(context.Background(), email, "hash", email, "")
		require.NoError(t, err)
		return p.ID
	}

	f := &fixture{
		bus:       &recordingBus{},
		items:     db.NewItemRepository(database),
		owner:     profileID("owner@example.com"),
		requester: profileID("requester@example.com"),
		stranger:  profileID("stranger@example.com"),
	}
	f.svc = NewService(
		db.NewTradeRepository(database),
		f.items,
		db.NewProfileRepository(database),
		db.NewMessageRepository(database),
		f.bus,
	)

	f.bike, err = f.items.Create(context.Background(), f.owner, "Bike")
	require.NoError(t, err)
	return f
}

func (f *fixture) propose(t *testing.T) *models.Trade {
	t.Helper()
	tr, err := f.svc.Create(context.Background(), CreateInput{OwnerItemID: f.bike.ID}, f.requester)
	require.NoError(t, err)
	return tr
}

func TestTransitionTable(t *testing.T) {
	allowed := map[models.TradeStatus][]models.TradeStatus{
		models.TradePending:  {models.TradeAccepted, models.TradeRejected, models.TradeCancelled},
		models.TradeAccepted: {models.TradeCancelled, models.TradeCompleted},
	}

	for _, from := range models.TradeStatuses {
		for _, to := range models.TradeStatuses {
			want := false
			for _, s := range allowed[from] {
				if s == to {
					want = true
				}
			}
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)
			if from.Terminal() {
				assert.False(t, CanTransition(from, to), "terminal %s -> %s", from, to)
			}
		}
	}
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	strangerItem, err := f.items.Create(ctx, f.stranger, "Lamp")
	require.NoError(t, err)
	requesterItem, err := f.items.Create(ctx, f.requester, "Guitar")
	require.NoError(t, err)
	missing := "itm_missing"

	tests := []struct {
		name      string
		in        CreateInput
		requester string
		kind      apperr.Kind
	}{
		{"unknown_item", CreateInput{OwnerItemID: "itm_missing"}, f.requester, apperr.NotFound},
		{"unknown_requester", CreateInput{OwnerItemID: f.bike.ID}, "prf_missing", apperr.NotFound},
		{"own_item", CreateInput{OwnerItemID: f.bike.ID}, f.owner, apperr.InvalidArgument},
		{"unknown_offered_item", CreateInput{OwnerItemID: f.bike.ID, RequesterItemID: &missing}, f.requester, apperr.NotFound},
		{"offered_item_not_owned", CreateInput{OwnerItemID: f.bike.ID, RequesterItemID: &strangerItem.ID}, f.requester, apperr.InvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, tt.in, tt.requester)
			assert.Equal(t, tt.kind, apperr.KindOf(err), "err = %v", err)
		})
	}

	tr, err := f.svc.Create(ctx, CreateInput{OwnerItemID: f.bike.ID, RequesterItemID: &requesterItem.ID, Message: "  <b>Swap?</b> "}, f.requester)
	require.NoError(t, err)
	assert.Equal(t, models.TradePending, tr.Status)
	assert.Equal(t, f.owner, tr.OwnerID)
	assert.Equal(t, "Bike", tr.OwnerItemTitle)

	require.Len(t, f.bus.events, 1)
	created, ok := f.bus.events[0].(events.MessageCreated)
	require.True(t, ok)
	assert.Equal(t, "Swap?", created.Message.Content)
	assert.Equal(t, f.requester, created.Message.SenderID)
}

func TestUpdateStatusCheckOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tr := f.propose(t)

	_, err := f.svc.UpdateStatus(ctx, "trd_missing", models.TradeAccepted, f.owner)
	assert.True(t, apperr.Is(err, apperr.NotFound))

	for _, actor := range []string{f.requester, f.stranger} {
		_, err = f.svc.Accept(ctx, tr.ID, actor)
		assert.True(t, apperr.Is(err, apperr.Forbidden), "actor %s err = %v", actor, err)
	}

	_, err = f.svc.Complete(ctx, tr.ID, f.owner)
	assert.True(t, apperr.Is(err, apperr.InvalidTransition))
	assert.Empty(t, f.bus.statusChanges())

	accepted, err := f.svc.Accept(ctx, tr.ID, f.owner)
	require.NoError(t, err)
	assert.Equal(t, models.TradeAccepted, accepted.Status)

	changes := f.bus.statusChanges()
	require.Len(t, changes, 1)
	assert.Equal(t, f.owner, changes[0].ActorProfileID)
	assert.Equal(t, models.TradePending, changes[0].From)
	assert.Equal(t, models.TradeAccepted, changes[0].Trade.Status)
}

func TestTerminalStatusesRejectEveryTransition(t *testing.T) {
	for _, terminal := range []models.TradeStatus{models.TradeRejected, models.TradeCancelled, models.TradeCompleted} {
		t.Run(string(terminal), func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			tr := f.propose(t)

			if terminal == models.TradeCompleted {
				_, err := f.svc.Accept(ctx, tr.ID, f.owner)
				require.NoError(t, err)
			}
			_, err := f.svc.UpdateStatus(ctx, tr.ID, terminal, f.owner)
			require.NoError(t, err)

			for _, next := range models.TradeStatuses {
				_, err := f.svc.UpdateStatus(ctx, tr.ID, next, f.owner)
				assert.True(t, apperr.Is(err, apperr.InvalidTransition), "%s -> %s err = %v", terminal, next, err)
			}
		})
	}
}

func TestConcurrentStatusUpdatesPublishOnce(t *testing.T) {
	f := newFixture(t)
	tr := f.propose(t)

	var wg sync.WaitGroup
	for _, status := range []models.TradeStatus{models.TradeAccepted, models.TradeRejected, models.TradeCancelled, models.TradeAccepted} {
		wg.Add(1)
		go func(s models.TradeStatus) {
			defer wg.Done()
			_, _ = f.svc.UpdateStatus(context.Background(), tr.ID, s, f.owner)
		}(status)
	}
	wg.Wait()

	fromPending := 0
	for _, c := range f.bus.statusChanges() {
		if c.From == models.TradePending {
			fromPending++
		}
	}
	assert.Equal(t, 1, fromPending, "exactly one writer may move the trade out of PENDING")
}

func TestListTradesDeduplicatesStatuses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.propose(t)
	second := f.propose(t)
	_, err := f.svc.Reject(ctx, first.ID, f.owner)
	require.NoError(t, err)

	pending, err := f.svc.ListTrades(ctx, f.requester, []models.TradeStatus{models.TradePending, models.TradePending})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second.ID, pending[0].ID)

	all, err := f.svc.ListTrades(ctx, f.owner, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	none, err := f.svc.ListTrades(ctx, f.stranger, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMessagesRequireParticipation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tr := f.propose(t)

	_, err := f.svc.PostMessage(ctx, tr.ID, f.stranger, "hello")
	assert.True(t, apperr.Is(err, apperr.Forbidden))

	_, err = f.svc.PostMessage(ctx, tr.ID, f.owner, "  <script></script> ")
	assert.True(t, apperr.Is(err, apperr.InvalidArgument))

	_, err = f.svc.PostMessage(ctx, tr.ID, f.owner, strings.Repeat("x", constants.MessageMaxLength+1))
	assert.True(t, apperr.Is(err, apperr.InvalidArgument))

	_, err = f.svc.PostMessage(ctx, "trd_missing", f.owner, "hello")
	assert.True(t, apperr.Is(err, apperr.NotFound))

	msg, err := f.svc.PostMessage(ctx, tr.ID, f.owner, "Tom & Jerry <i>welcome</i>")
	require.NoError(t, err)
	assert.Equal(t, "Tom & Jerry welcome", msg.Content)

	_, err = f.svc.ListMessages(ctx, tr.ID, f.stranger)
	assert.True(t, apperr.Is(err, apperr.Forbidden))

	messages, err := f.svc.ListMessages(ctx, tr.ID, f.requester)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, msg.ID, messages[0].ID)
}
