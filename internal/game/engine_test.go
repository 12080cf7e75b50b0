// internal/game/engine_test.go
package game

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jason-s-yu/coup/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockTransport collects events instead of sending them over WS.
type mockTransport struct {
	mu        sync.Mutex
	broadcast []Event
	private   map[string][]Event
	panicOn   EventType
}

func newMockTransport() *mockTransport {
	return &mockTransport{private: make(map[string][]Event)}
}

func (m *mockTransport) SendTo(connID string, ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.private[connID] = append(m.private[connID], ev)
}

func (m *mockTransport) BroadcastToRoom(_ string, ev Event) {
	if m.panicOn != "" && ev.Type == m.panicOn {
		panic("transport exploded")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.broadcast = append(m.broadcast, ev)
}

func (m *mockTransport) clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.broadcast = nil
	m.private = make(map[string][]Event)
}

func (m *mockTransport) broadcastTypes() []EventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EventType, len(m.broadcast))
	for i, ev := range m.broadcast {
		out[i] = ev.Type
	}
	return out
}

func (m *mockTransport) privateTo(connID string) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.private[connID]...)
}

func (m *mockTransport) broadcasts() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.broadcast...)
}

// lastPayload returns the most recent payload of type T in evs.
func lastPayload[T Payload](evs []Event) (T, bool) {
	var zero T
	for i := len(evs) - 1; i >= 0; i-- {
		if p, ok := evs[i].Payload.(T); ok {
			return p, true
		}
	}
	return zero, false
}

// fakeRepo is an in-memory Repository.
type fakeRepo struct {
	mu      sync.Mutex
	rooms   map[uuid.UUID]*models.Room
	players []*models.PlayerRecord
	loads   int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{rooms: make(map[uuid.UUID]*models.Room)}
}

func (r *fakeRepo) addRoom(room models.Room) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rooms[room.ID] = &room
}

func (r *fakeRepo) addPlayer(rec models.PlayerRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.players = append(r.players, &rec)
}

func (r *fakeRepo) player(id uuid.UUID) *models.PlayerRecord {
	for _, p := range r.players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (r *fakeRepo) record(id uuid.UUID) models.PlayerRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p := r.player(id); p != nil {
		return *p
	}
	return models.PlayerRecord{}
}

func (r *fakeRepo) room(id uuid.UUID) models.Room {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.rooms[id]
}

func (r *fakeRepo) LoadRoom(_ context.Context, code string) (*models.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, room := range r.rooms {
		if room.Code == code {
			cp := *room
			return &cp, nil
		}
	}
	return nil, ErrRoomNotFound
}

func (r *fakeRepo) LoadRoomByID(_ context.Context, roomID uuid.UUID) (*models.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loads++
	room, ok := r.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	cp := *room
	return &cp, nil
}

func (r *fakeRepo) LoadPlayers(_ context.Context, roomID uuid.UUID) ([]models.PlayerRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.PlayerRecord
	for _, p := range r.players {
		if p.RoomID == roomID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *fakeRepo) update(id uuid.UUID, fn func(p *models.PlayerRecord)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.player(id)
	if p == nil {
		return ErrPlayerNotFound
	}
	fn(p)
	return nil
}

func (r *fakeRepo) SavePlayerCoins(_ context.Context, id uuid.UUID, coins int) error {
	return r.update(id, func(p *models.PlayerRecord) { p.Coins = coins })
}

func (r *fakeRepo) SavePlayerCards(_ context.Context, id uuid.UUID, cards []string) error {
	return r.update(id, func(p *models.PlayerRecord) { p.Cards = cards })
}

func (r *fakeRepo) SavePlayerAlive(_ context.Context, id uuid.UUID, alive bool) error {
	return r.update(id, func(p *models.PlayerRecord) { p.IsAlive = alive })
}

func (r *fakeRepo) SavePlayerRevealed(_ context.Context, id uuid.UUID, revealed []string) error {
	return r.update(id, func(p *models.PlayerRecord) { p.RevealedCards = revealed })
}

func (r *fakeRepo) SetRoomStatus(_ context.Context, roomID uuid.UUID, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	room.Status = status
	return nil
}

func (r *fakeRepo) SaveCurrentTurn(_ context.Context, roomID, playerID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	room.CurrentTurn = playerID
	return nil
}

type fakeJournal struct {
	mu      sync.Mutex
	records []models.ActionRecord
}

func (j *fakeJournal) Publish(_ context.Context, rec models.ActionRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.records = append(j.records, rec)
	return nil
}

// seat describes one test player.
type seat struct {
	name     string
	coins    int
	cards    []Card
	revealed []Card
}

func s(name string, coins int, cards ...Card) seat {
	return seat{name: name, coins: coins, cards: cards}
}

type testEnv struct {
	e       *Engine
	g       *Game
	tr      *mockTransport
	repo    *fakeRepo
	journal *fakeJournal
	players []*Player
	ctx     context.Context
}

func newTestEngine(t *testing.T) (*Engine, *mockTransport, *fakeRepo, *fakeJournal) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	tr := newMockTransport()
	repo := newFakeRepo()
	journal := &fakeJournal{}
	e := NewEngine(NewGameStore(), repo, tr, journal, logger)
	e.runAsync = func(job func()) { job() }
	t.Cleanup(e.Close)
	return e, tr, repo, journal
}

// setupTestGame seats players with fixed hands, mirrors them into the fake repo, and builds
// the deck from whatever the census leaves.
func setupTestGame(t *testing.T, seats ...seat) *testEnv {
	t.Helper()
	e, tr, repo, journal := newTestEngine(t)

	room := models.Room{ID: uuid.New(), Code: "ABC123", Status: models.RoomStatusPlaying}
	repo.addRoom(room)
	g := NewGame(room.ID, room.Code)

	remaining := map[Card]int{}
	for _, c := range AllCards {
		remaining[c] = CopiesPerCard
	}
	var players []*Player
	for _, st := range seats {
		p := &Player{
			ID:        uuid.New(),
			Name:      st.name,
			ConnID:    "conn-" + st.name,
			Cards:     append([]Card{}, st.cards...),
			Coins:     st.coins,
			Alive:     len(st.cards) > 0,
			Connected: true,
		}
		g.AddPlayer(p)
		if len(st.revealed) > 0 {
			g.Revealed[p.ID] = append([]Card{}, st.revealed...)
		}
		for _, c := range st.cards {
			remaining[c]--
		}
		for _, c := range st.revealed {
			remaining[c]--
		}
		repo.addPlayer(models.PlayerRecord{
			ID:            p.ID,
			RoomID:        room.ID,
			Name:          p.Name,
			Cards:         CardStrings(p.Cards),
			RevealedCards: CardStrings(st.revealed),
			Coins:         p.Coins,
			IsAlive:       p.Alive,
		})
		players = append(players, p)
	}
	for _, c := range AllCards {
		require.GreaterOrEqual(t, remaining[c], 0, "test hands use too many %s", c)
		for i := 0; i < remaining[c]; i++ {
			g.Deck = append(g.Deck, c)
		}
	}
	shuffleCards(g.Deck)
	require.True(t, CensusValid(Census(g)))
	e.Store.AddGame(g)

	return &testEnv{e: e, g: g, tr: tr, repo: repo, journal: journal, players: players, ctx: context.Background()}
}

func (env *testEnv) requireCensus(t *testing.T) {
	t.Helper()
	require.True(t, CensusValid(Census(env.g)), "census broken: %v", Census(env.g))
}

func TestTaxUnchallengedResolves(t *testing.T) {
	env := setupTestGame(t,
		s("alice", 2, CardDuke, CardContessa),
		s("bob", 2, CardCaptain, CardAssassin),
		s("carol", 2, CardAmbassador, CardContessa),
	)
	a, b, c := env.players[0], env.players[1], env.players[2]

	require.NoError(t, env.e.DeclareAction(env.ctx, env.g.RoomID, a.ID, ActionTax, uuid.Nil, CardDuke))
	require.NotNil(t, env.g.Pending)
	assert.Equal(t, []uuid.UUID{b.ID, c.ID}, env.g.Pending.WaitingFor)
	assert.Equal(t, PhaseAwaitingResponses, env.g.Phase())

	require.NoError(t, env.e.Pass(env.ctx, env.g.RoomID, b.ID))
	require.NoError(t, env.e.Pass(env.ctx, env.g.RoomID, b.ID), "second pass is a no-op")
	assert.Equal(t, []uuid.UUID{c.ID}, env.g.Pending.WaitingFor)
	require.NoError(t, env.e.Pass(env.ctx, env.g.RoomID, c.ID))

	assert.Equal(t, 5, a.Coins)
	assert.Nil(t, env.g.Pending)
	assert.Equal(t, b.ID, env.g.CurrentPlayer().ID)
	assert.Equal(t, []EventType{
		EventActionDeclared, EventPlayerPassed, EventPlayerPassed, EventActionResolved, EventNextTurn,
	}, env.tr.broadcastTypes())

	assert.Equal(t, 5, env.repo.record(a.ID).Coins)
	assert.Equal(t, b.ID, env.repo.room(env.g.RoomID).CurrentTurn)
	env.requireCensus(t)
}

func TestTaxChallengedTruthfulClaim(t *testing.T) {
	env := setupTestGame(t,
		s("alice", 2, CardDuke, CardContessa),
		s("bob", 2, CardCaptain, CardAssassin),
		s("carol", 2, CardAmbassador, CardContessa),
	)
	a, b, c := env.players[0], env.players[1], env.players[2]

	require.NoError(t, env.e.DeclareAction(env.ctx, env.g.RoomID, a.ID, ActionTax, uuid.Nil, CardDuke))
	require.NoError(t, env.e.Challenge(env.ctx, env.g.RoomID, b.ID))

	res, ok := lastPayload[ChallengeResult](env.tr.broadcasts())
	require.True(t, ok)
	assert.False(t, res.Success)
	assert.Equal(t, CardDuke, res.RevealedCard)

	// Proven card is replaced, so alice still holds two.
	assert.Len(t, a.Cards, 2)
	_, ok = lastPayload[CardsUpdated](env.tr.privateTo("conn-alice"))
	assert.True(t, ok, "alice gets her new hand privately")
	env.requireCensus(t)

	require.NotNil(t, env.g.InfluenceWait)
	assert.Equal(t, b.ID, env.g.InfluenceWait.PlayerID)
	assert.Equal(t, ReasonChallengeFailed, env.g.InfluenceWait.Reason)
	assert.Equal(t, ResumeResolve, env.g.InfluenceWait.Resume)
	choose, ok := lastPayload[ChooseCardToLose](env.tr.privateTo("conn-bob"))
	require.True(t, ok)
	assert.ElementsMatch(t, []Card{CardCaptain, CardAssassin}, choose.Cards)

	err := env.e.Pass(env.ctx, env.g.RoomID, c.ID)
	assert.ErrorIs(t, err, ErrAwaitingInfluenceLoss)
	err = env.e.ChooseCardToLose(env.ctx, env.g.RoomID, c.ID, CardContessa)
	assert.ErrorIs(t, err, ErrNotYourInfluenceLoss)
	err = env.e.ChooseCardToLose(env.ctx, env.g.RoomID, b.ID, CardDuke)
	assert.ErrorIs(t, err, ErrCardNotHeld)

	require.NoError(t, env.e.ChooseCardToLose(env.ctx, env.g.RoomID, b.ID, CardCaptain))
	assert.Equal(t, []Card{CardCaptain}, env.g.Revealed[b.ID])
	assert.Equal(t, []Card{CardAssassin}, b.Cards)
	assert.True(t, b.Alive)
	assert.Equal(t, 5, a.Coins, "tax resolves after the failed challenge")
	assert.Equal(t, b.ID, env.g.CurrentPlayer().ID)
	assert.Nil(t, env.g.InfluenceWait)
	assert.Equal(t, []string{"captain"}, env.repo.record(b.ID).RevealedCards)
	env.requireCensus(t)
}

func TestTaxChallengedBluff(t *testing.T) {
	env := setupTestGame(t,
		s("alice", 2, CardCaptain, CardContessa),
		s("bob", 2, CardDuke, CardAssassin),
	)
	a, b := env.players[0], env.players[1]

	require.NoError(t, env.e.DeclareAction(env.ctx, env.g.RoomID, a.ID, ActionTax, uuid.Nil, CardDuke))
	require.NoError(t, env.e.Challenge(env.ctx, env.g.RoomID, b.ID))

	res, ok := lastPayload[ChallengeResult](env.tr.broadcasts())
	require.True(t, ok)
	assert.True(t, res.Success)
	require.NotNil(t, env.g.InfluenceWait)
	assert.Equal(t, a.ID, env.g.InfluenceWait.PlayerID)
	assert.Equal(t, ReasonChallengeSucceeded, env.g.InfluenceWait.Reason)

	require.NoError(t, env.e.ChooseCardToLose(env.ctx, env.g.RoomID, a.ID, CardContessa))
	assert.Equal(t, 2, a.Coins, "voided tax pays nothing")
	assert.Nil(t, env.g.Pending)
	assert.Equal(t, b.ID, env.g.CurrentPlayer().ID)
	env.requireCensus(t)
}

func TestClaimsAreAdvisory(t *testing.T) {
	env := setupTestGame(t,
		s("alice", 2, CardCaptain, CardContessa),
		s("bob", 2, CardDuke, CardAssassin),
	)
	a, b := env.players[0], env.players[1]
	roomID := env.g.RoomID

	// A claim that does not match the action is taken at face value and checked only if challenged.
	require.NoError(t, env.e.DeclareAction(env.ctx, roomID, a.ID, ActionTax, uuid.Nil, CardCaptain))
	require.NotNil(t, env.g.Pending)
	assert.Equal(t, CardCaptain, env.g.Pending.ClaimedCard)
	decl, ok := lastPayload[ActionDeclared](env.tr.broadcasts())
	require.True(t, ok)
	assert.True(t, decl.CanChallenge)

	require.NoError(t, env.e.Challenge(env.ctx, roomID, b.ID))
	res, ok := lastPayload[ChallengeResult](env.tr.broadcasts())
	require.True(t, ok)
	assert.False(t, res.Success, "alice does hold the card she claimed")
	require.NoError(t, env.e.ChooseCardToLose(env.ctx, roomID, b.ID, CardAssassin))
	assert.Equal(t, 5, a.Coins)
	env.requireCensus(t)

	// Without a claim there is nothing to dispute and the action resolves at once.
	require.NoError(t, env.e.DeclareAction(env.ctx, roomID, b.ID, ActionTax, uuid.Nil, ""))
	assert.Equal(t, 5, b.Coins)
	assert.Nil(t, env.g.Pending)
}

func TestMustCoupAtTenCoins(t *testing.T) {
	env := setupTestGame(t,
		s("alice", 10, CardDuke, CardContessa),
		s("bob", 2, CardCaptain, CardAssassin),
		s("carol", 2, CardAmbassador, CardContessa),
	)
	a, b := env.players[0], env.players[1]

	err := env.e.DeclareAction(env.ctx, env.g.RoomID, a.ID, ActionIncome, uuid.Nil, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMustCoup)
	assert.True(t, IsValidation(err))
	assert.Nil(t, env.g.Pending)
	assert.Equal(t, 10, a.Coins)
	assert.Empty(t, env.tr.broadcastTypes())

	require.NoError(t, env.e.DeclareAction(env.ctx, env.g.RoomID, a.ID, ActionCoup, b.ID, ""))
	assert.Equal(t, 3, a.Coins)
	assert.Equal(t, 3, env.repo.record(a.ID).Coins, "actor coins persisted before the loss is requested")
	require.NotNil(t, env.g.InfluenceWait)
	assert.Equal(t, b.ID, env.g.InfluenceWait.PlayerID)
	assert.Equal(t, ReasonCoup, env.g.InfluenceWait.Reason)
	assert.Equal(t, ResumeAfterResolved, env.g.InfluenceWait.Resume)
	assert.Equal(t, PhaseAwaitingInfluenceChoice, env.g.Phase())

	require.NoError(t, env.e.ChooseCardToLose(env.ctx, env.g.RoomID, b.ID, CardAssassin))
	assert.Equal(t, b.ID, env.g.CurrentPlayer().ID)
	assert.Nil(t, env.g.Pending)
	env.requireCensus(t)
}

func TestDeclareValidation(t *testing.T) {
	env := setupTestGame(t,
		s("alice", 2, CardDuke, CardContessa),
		s("bob", 2, CardCaptain, CardAssassin),
	)
	a, b := env.players[0], env.players[1]
	roomID := env.g.RoomID

	tests := []struct {
		name   string
		actor  uuid.UUID
		action Action
		target uuid.UUID
		claim  Card
		want   error
	}{
		{"not your turn", b.ID, ActionIncome, uuid.Nil, "", ErrNotYourTurn},
		{"unknown action", a.ID, Action("embezzle"), uuid.Nil, "", ErrUnknownAction},
		{"cannot afford coup", a.ID, ActionCoup, b.ID, "", ErrCannotAfford},
		{"cannot afford assassinate", a.ID, ActionAssassinate, b.ID, CardAssassin, ErrCannotAfford},
		{"missing target", a.ID, ActionSteal, uuid.Nil, CardCaptain, ErrInvalidTarget},
		{"self target", a.ID, ActionSteal, a.ID, CardCaptain, ErrInvalidTarget},
		{"bogus card", a.ID, ActionTax, uuid.Nil, Card("jester"), ErrInvalidCard},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := env.e.DeclareAction(env.ctx, roomID, tc.actor, tc.action, tc.target, tc.claim)
			assert.ErrorIs(t, err, tc.want)
			assert.Nil(t, env.g.Pending)
		})
	}

	err := env.e.DeclareAction(env.ctx, roomID, uuid.New(), ActionIncome, uuid.Nil, "")
	assert.ErrorIs(t, err, ErrPlayerNotFound)

	require.NoError(t, env.e.DeclareAction(env.ctx, roomID, a.ID, ActionTax, uuid.Nil, CardDuke))
	err = env.e.DeclareAction(env.ctx, roomID, a.ID, ActionIncome, uuid.Nil, "")
	assert.ErrorIs(t, err, ErrActionInProgress)
	assert.Equal(t, 2, a.Coins)
}

func TestIncomeResolvesImmediately(t *testing.T) {
	env := setupTestGame(t,
		s("alice", 2, CardDuke, CardContessa),
		s("bob", 2, CardCaptain, CardAssassin),
	)
	a, b := env.players[0], env.players[1]

	require.NoError(t, env.e.DeclareAction(env.ctx, env.g.RoomID, a.ID, ActionIncome, uuid.Nil, ""))
	assert.Equal(t, 3, a.Coins)
	assert.Equal(t, b.ID, env.g.CurrentPlayer().ID)

	err := env.e.Pass(env.ctx, env.g.RoomID, a.ID)
	assert.ErrorIs(t, err, ErrNoPendingAction)

	env.journal.mu.Lock()
	defer env.journal.mu.Unlock()
	require.Len(t, env.journal.records, 2)
	assert.Equal(t, "declare", env.journal.records[0].ActionType)
	assert.Equal(t, "resolve", env.journal.records[1].ActionType)
	assert.Equal(t, 1, env.journal.records[0].ActionIndex)
	assert.Equal(t, 2, env.journal.records[1].ActionIndex)
	assert.Equal(t, "income", env.journal.records[0].ActionPayload["action"])
}

func TestExchangeRoundTrip(t *testing.T) {
	env := setupTestGame(t,
		s("alice", 2, CardAmbassador, CardDuke),
		s("bob", 2, CardAssassin, CardAssassin),
		s("carol", 2, CardAssassin, CardCaptain),
	)
	a, b, c := env.players[0], env.players[1], env.players[2]
	roomID := env.g.RoomID
	deckBefore := len(env.g.Deck)

	require.NoError(t, env.e.DeclareAction(env.ctx, roomID, a.ID, ActionExchange, uuid.Nil, CardAmbassador))
	require.NoError(t, env.e.Pass(env.ctx, roomID, b.ID))
	require.NoError(t, env.e.Pass(env.ctx, roomID, c.ID))

	require.Equal(t, PhaseAwaitingExchange, env.g.Phase())
	drawn := append([]Card{}, env.g.Pending.DrawnCards...)
	require.Len(t, drawn, 2)
	assert.Equal(t, deckBefore-2, len(env.g.Deck))
	offer, ok := lastPayload[ExchangeCards](env.tr.privateTo("conn-alice"))
	require.True(t, ok)
	assert.Equal(t, drawn, offer.DrawnCards)
	env.requireCensus(t)

	handBefore := append([]Card{}, a.Cards...)
	deckMid := append([]Card{}, env.g.Deck...)

	err := env.e.CompleteExchange(env.ctx, roomID, a.ID, []Card{CardAssassin, CardDuke})
	assert.ErrorIs(t, err, ErrInvalidExchange, "no assassin is available to alice")
	err = env.e.CompleteExchange(env.ctx, roomID, a.ID, []Card{CardDuke})
	assert.ErrorIs(t, err, ErrInvalidExchange)
	err = env.e.CompleteExchange(env.ctx, roomID, b.ID, []Card{CardAssassin, CardAssassin})
	assert.ErrorIs(t, err, ErrNoExchange)
	err = env.e.Pass(env.ctx, roomID, b.ID)
	assert.Error(t, err)

	assert.Equal(t, handBefore, a.Cards)
	assert.Equal(t, drawn, env.g.Pending.DrawnCards)
	assert.Equal(t, deckMid, env.g.Deck)

	kept := []Card{drawn[0], CardDuke}
	require.NoError(t, env.e.CompleteExchange(env.ctx, roomID, a.ID, kept))
	assert.Equal(t, kept, a.Cards)
	assert.Equal(t, deckBefore, len(env.g.Deck))
	assert.Nil(t, env.g.Pending)
	assert.Equal(t, b.ID, env.g.CurrentPlayer().ID)
	assert.Equal(t, CardStrings(kept), env.repo.record(a.ID).Cards)
	env.requireCensus(t)

	err = env.e.CompleteExchange(env.ctx, roomID, a.ID, kept)
	assert.ErrorIs(t, err, ErrNoExchange)
}

func TestForeignAidBlockStands(t *testing.T) {
	env := setupTestGame(t,
		s("alice", 2, CardCaptain, CardContessa),
		s("bob", 2, CardDuke, CardAssassin),
		s("carol", 2, CardAmbassador, CardContessa),
	)
	a, b, c := env.players[0], env.players[1], env.players[2]
	roomID := env.g.RoomID

	require.NoError(t, env.e.DeclareAction(env.ctx, roomID, a.ID, ActionForeignAid, uuid.Nil, ""))
	err := env.e.Challenge(env.ctx, roomID, b.ID)
	assert.ErrorIs(t, err, ErrNothingToChallenge, "foreign aid claims no card")

	err = env.e.Block(env.ctx, roomID, b.ID, CardContessa)
	assert.ErrorIs(t, err, ErrCannotBlock)
	require.NoError(t, env.e.Block(env.ctx, roomID, b.ID, CardDuke))
	assert.Equal(t, PhaseAwaitingBlockResponses, env.g.Phase())
	assert.Equal(t, []uuid.UUID{a.ID, c.ID}, env.g.Pending.WaitingFor)
	assert.Empty(t, env.g.Pending.Passed)

	err = env.e.Block(env.ctx, roomID, c.ID, CardDuke)
	assert.ErrorIs(t, err, ErrAlreadyBlocked)
	err = env.e.Challenge(env.ctx, roomID, c.ID)
	assert.ErrorIs(t, err, ErrNothingToChallenge, "a blocked action is contested through challenge_block")

	require.NoError(t, env.e.Pass(env.ctx, roomID, a.ID))
	require.NoError(t, env.e.Pass(env.ctx, roomID, c.ID))

	types := env.tr.broadcastTypes()
	assert.Contains(t, types, EventActionBlockedSuccess)
	assert.NotContains(t, types, EventActionResolved)
	assert.Equal(t, 2, a.Coins)
	assert.Nil(t, env.g.Pending)
	assert.Equal(t, b.ID, env.g.CurrentPlayer().ID)
}

func TestChallengeBlockBluffResolvesAction(t *testing.T) {
	env := setupTestGame(t,
		s("alice", 2, CardCaptain, CardContessa),
		s("bob", 2, CardCaptain, CardAssassin),
		s("carol", 2, CardAmbassador, CardContessa),
	)
	a, b := env.players[0], env.players[1]
	roomID := env.g.RoomID

	require.NoError(t, env.e.DeclareAction(env.ctx, roomID, a.ID, ActionForeignAid, uuid.Nil, ""))
	require.NoError(t, env.e.Block(env.ctx, roomID, b.ID, CardDuke))
	require.NoError(t, env.e.ChallengeBlock(env.ctx, roomID, a.ID))

	res, ok := lastPayload[ChallengeBlockResult](env.tr.broadcasts())
	require.True(t, ok)
	assert.True(t, res.Success)
	assert.Nil(t, env.g.Pending.Block, "failed block is retracted")
	require.NotNil(t, env.g.InfluenceWait)
	assert.Equal(t, b.ID, env.g.InfluenceWait.PlayerID)
	assert.Equal(t, ResumeResolve, env.g.InfluenceWait.Resume)

	require.NoError(t, env.e.ChooseCardToLose(env.ctx, roomID, b.ID, CardAssassin))
	assert.Equal(t, 4, a.Coins)
	assert.Equal(t, b.ID, env.g.CurrentPlayer().ID)
	env.requireCensus(t)
}

func TestChallengeBlockTruthfulBlockStands(t *testing.T) {
	env := setupTestGame(t,
		s("alice", 2, CardCaptain, CardContessa),
		s("bob", 2, CardDuke, CardAssassin),
		s("carol", 2, CardAmbassador, CardContessa),
	)
	a, b, c := env.players[0], env.players[1], env.players[2]
	roomID := env.g.RoomID

	require.NoError(t, env.e.DeclareAction(env.ctx, roomID, a.ID, ActionForeignAid, uuid.Nil, ""))
	require.NoError(t, env.e.Block(env.ctx, roomID, b.ID, CardDuke))
	require.NoError(t, env.e.ChallengeBlock(env.ctx, roomID, c.ID))

	res, ok := lastPayload[ChallengeBlockResult](env.tr.broadcasts())
	require.True(t, ok)
	assert.False(t, res.Success)
	assert.Len(t, b.Cards, 2)
	require.NotNil(t, env.g.InfluenceWait)
	assert.Equal(t, c.ID, env.g.InfluenceWait.PlayerID)
	assert.Equal(t, ResumeNextTurn, env.g.InfluenceWait.Resume)

	require.NoError(t, env.e.ChooseCardToLose(env.ctx, roomID, c.ID, CardContessa))
	assert.Equal(t, 2, a.Coins, "block stands")
	assert.Nil(t, env.g.Pending)
	assert.Equal(t, b.ID, env.g.CurrentPlayer().ID)
	env.requireCensus(t)
}

func TestStealBlockedOnlyByTarget(t *testing.T) {
	env := setupTestGame(t,
		s("alice", 2, CardCaptain, CardContessa),
		s("bob", 1, CardDuke, CardAssassin),
		s("carol", 2, CardAmbassador, CardCaptain),
	)
	a, b, c := env.players[0], env.players[1], env.players[2]
	roomID := env.g.RoomID

	require.NoError(t, env.e.DeclareAction(env.ctx, roomID, a.ID, ActionSteal, b.ID, CardCaptain))
	err := env.e.Block(env.ctx, roomID, c.ID, CardCaptain)
	assert.ErrorIs(t, err, ErrCannotBlock)
	err = env.e.Block(env.ctx, roomID, b.ID, CardDuke)
	assert.ErrorIs(t, err, ErrCannotBlock)
	assert.Nil(t, env.g.Pending.Block)

	require.NoError(t, env.e.Pass(env.ctx, roomID, b.ID))
	require.NoError(t, env.e.Pass(env.ctx, roomID, c.ID))
	assert.Equal(t, 3, a.Coins, "steal takes what the target has")
	assert.Equal(t, 0, b.Coins)
	assert.Equal(t, 0, env.repo.record(b.ID).Coins)
}

func TestNextTurnSkipsDeadSeats(t *testing.T) {
	env := setupTestGame(t,
		s("alice", 7, CardDuke, CardContessa),
		seat{name: "bob", coins: 2, cards: []Card{CardCaptain}, revealed: []Card{CardAssassin}},
		s("carol", 2, CardAmbassador, CardContessa),
	)
	a, b, c := env.players[0], env.players[1], env.players[2]
	roomID := env.g.RoomID

	require.NoError(t, env.e.DeclareAction(env.ctx, roomID, a.ID, ActionCoup, b.ID, ""))
	require.NoError(t, env.e.ChooseCardToLose(env.ctx, roomID, b.ID, CardCaptain))

	assert.False(t, b.Alive)
	assert.False(t, env.repo.record(b.ID).IsAlive)
	assert.Equal(t, c.ID, env.g.CurrentPlayer().ID)

	require.NoError(t, env.e.DeclareAction(env.ctx, roomID, c.ID, ActionIncome, uuid.Nil, ""))
	assert.Equal(t, a.ID, env.g.CurrentPlayer().ID)

	require.NoError(t, env.e.DeclareAction(env.ctx, roomID, a.ID, ActionTax, uuid.Nil, CardDuke))
	assert.Equal(t, []uuid.UUID{c.ID}, env.g.Pending.WaitingFor, "dead players are not asked to respond")
	err := env.e.Pass(env.ctx, roomID, b.ID)
	assert.ErrorIs(t, err, ErrNotWaitingForYou)
	env.requireCensus(t)
}

func TestGameOverEvictsGame(t *testing.T) {
	env := setupTestGame(t,
		s("alice", 7, CardDuke, CardContessa),
		seat{name: "bob", coins: 2, cards: []Card{CardCaptain}, revealed: []Card{CardAssassin}},
	)
	a, b := env.players[0], env.players[1]
	roomID := env.g.RoomID

	require.NoError(t, env.e.DeclareAction(env.ctx, roomID, a.ID, ActionCoup, b.ID, ""))
	require.NoError(t, env.e.ChooseCardToLose(env.ctx, roomID, b.ID, CardCaptain))

	over, ok := lastPayload[GameOver](env.tr.broadcasts())
	require.True(t, ok)
	assert.Equal(t, a.ID, over.WinnerID)
	assert.Equal(t, "alice", over.Winner)
	assert.True(t, env.g.Over)
	assert.Equal(t, PhaseGameOver, env.g.Phase())
	assert.NotContains(t, env.tr.broadcastTypes(), EventNextTurn)

	_, live := env.e.Store.GetGame(roomID)
	assert.False(t, live)
	assert.Equal(t, models.RoomStatusFinished, env.repo.room(roomID).Status)

	err := env.e.DeclareAction(env.ctx, roomID, a.ID, ActionIncome, uuid.Nil, "")
	assert.ErrorIs(t, err, ErrGameOver, "finished rooms are not restored")
}

// statusFailRepo loses every room status write.
type statusFailRepo struct {
	*fakeRepo
}

func (r *statusFailRepo) SetRoomStatus(context.Context, uuid.UUID, string) error {
	return errors.New("connection reset")
}

func TestGameOverHoldsWhenStatusWriteFails(t *testing.T) {
	env := setupTestGame(t,
		s("alice", 7, CardDuke, CardContessa),
		seat{name: "bob", coins: 2, cards: []Card{CardCaptain}, revealed: []Card{CardAssassin}},
	)
	env.e.Repo = &statusFailRepo{env.repo}
	a, b := env.players[0], env.players[1]
	roomID := env.g.RoomID

	require.NoError(t, env.e.DeclareAction(env.ctx, roomID, a.ID, ActionCoup, b.ID, ""))
	require.NoError(t, env.e.ChooseCardToLose(env.ctx, roomID, b.ID, CardCaptain))
	require.Equal(t, models.RoomStatusPlaying, env.repo.room(roomID).Status)
	env.tr.clear()

	err := env.e.DeclareAction(env.ctx, roomID, a.ID, ActionIncome, uuid.Nil, "")
	assert.ErrorIs(t, err, ErrGameOver)
	assert.Empty(t, env.tr.broadcastTypes(), "no second game_over")
	_, live := env.e.Store.GetGame(roomID)
	assert.False(t, live)

	// A restarted process sees only the stale "playing" row and still refuses.
	restarted := NewEngine(NewGameStore(), env.repo, env.tr, nil, env.e.Logger)
	restarted.runAsync = func(job func()) { job() }
	t.Cleanup(restarted.Close)
	err = restarted.DeclareAction(env.ctx, roomID, a.ID, ActionIncome, uuid.Nil, "")
	assert.ErrorIs(t, err, ErrGameOver)
	assert.Equal(t, 7-CoupCost, a.Coins)
	assert.Equal(t, models.RoomStatusFinished, env.repo.room(roomID).Status)
	assert.Empty(t, env.tr.broadcastTypes())
}

func TestAssassinationTargetFallsToChallenge(t *testing.T) {
	env := setupTestGame(t,
		s("alice", 3, CardAssassin, CardDuke),
		seat{name: "bob", coins: 2, cards: []Card{CardContessa}, revealed: []Card{CardCaptain}},
		s("carol", 2, CardAmbassador, CardContessa),
	)
	a, b, c := env.players[0], env.players[1], env.players[2]
	roomID := env.g.RoomID

	require.NoError(t, env.e.DeclareAction(env.ctx, roomID, a.ID, ActionAssassinate, b.ID, CardAssassin))
	require.NoError(t, env.e.Challenge(env.ctx, roomID, b.ID))
	require.NoError(t, env.e.ChooseCardToLose(env.ctx, roomID, b.ID, CardContessa))

	assert.False(t, b.Alive)
	assert.Equal(t, 0, a.Coins, "assassination is still paid for")
	assert.Nil(t, env.g.InfluenceWait, "a dead target owes nothing")
	assert.Equal(t, c.ID, env.g.CurrentPlayer().ID)
	env.requireCensus(t)
}

func TestAssassinationBlockedByContessa(t *testing.T) {
	env := setupTestGame(t,
		s("alice", 3, CardAssassin, CardDuke),
		s("bob", 2, CardContessa, CardCaptain),
	)
	a, b := env.players[0], env.players[1]
	roomID := env.g.RoomID

	require.NoError(t, env.e.DeclareAction(env.ctx, roomID, a.ID, ActionAssassinate, b.ID, CardAssassin))
	require.NoError(t, env.e.Block(env.ctx, roomID, b.ID, CardContessa))
	assert.Equal(t, []uuid.UUID{a.ID}, env.g.Pending.WaitingFor)
	require.NoError(t, env.e.Pass(env.ctx, roomID, a.ID))

	assert.Equal(t, 3, a.Coins, "blocked assassination costs nothing")
	assert.Len(t, b.Cards, 2)
	assert.Equal(t, b.ID, env.g.CurrentPlayer().ID)
}

func TestHandleDispatchesCommands(t *testing.T) {
	env := setupTestGame(t,
		s("alice", 2, CardDuke, CardContessa),
		s("bob", 2, CardCaptain, CardAssassin),
	)
	a, b := env.players[0], env.players[1]
	roomID := env.g.RoomID

	cmd, err := DecodeCommand([]byte(`{"type":"declare_action","action":"tax","claimedCard":"duke"}`))
	require.NoError(t, err)
	require.NoError(t, env.e.Handle(env.ctx, roomID, a.ID, cmd))
	cmd, err = DecodeCommand([]byte(`{"type":"pass"}`))
	require.NoError(t, err)
	require.NoError(t, env.e.Handle(env.ctx, roomID, b.ID, cmd))
	assert.Equal(t, 5, a.Coins)

	require.NoError(t, env.e.Handle(env.ctx, roomID, b.ID, PingCommand{}))
}

func TestPanicIsContainedToOperation(t *testing.T) {
	env := setupTestGame(t,
		s("alice", 2, CardDuke, CardContessa),
		s("bob", 2, CardCaptain, CardAssassin),
	)
	a := env.players[0]
	env.tr.panicOn = EventActionDeclared

	err := env.e.DeclareAction(env.ctx, env.g.RoomID, a.ID, ActionTax, uuid.Nil, CardDuke)
	assert.True(t, errors.Is(err, ErrInternal))

	// The room lock was released.
	env.tr.panicOn = ""
	env.g.Pending = nil
	require.NoError(t, env.e.DeclareAction(env.ctx, env.g.RoomID, a.ID, ActionIncome, uuid.Nil, ""))
}
