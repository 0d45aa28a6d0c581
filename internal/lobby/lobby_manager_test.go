package lobby

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jason-s-yu/arcade/internal/auth"
	"github.com/jason-s-yu/arcade/internal/database"
	"github.com/jason-s-yu/arcade/internal/errs"
	"github.com/jason-s-yu/arcade/internal/models"
	"github.com/jason-s-yu/arcade/internal/portpool"
	"github.com/jason-s-yu/arcade/internal/protocol"
	"github.com/jason-s-yu/arcade/internal/supervisor"
)

type fakePeer struct {
	name string
	mu   sync.Mutex
	msgs []any
}

func (p *fakePeer) Send(v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, v)
	return nil
}

func (p *fakePeer) received() []any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]any(nil), p.msgs...)
}

func (p *fakePeer) last() any {
	msgs := p.received()
	if len(msgs) == 0 {
		return nil
	}
	return msgs[len(msgs)-1]
}

type fakeHandle struct {
	pid        int
	done       chan struct{}
	once       sync.Once
	terminated bool
	mu         sync.Mutex
	// stubborn handles ignore Terminate and fail Kill until exit is called
	stubborn bool
}

func newFakeHandle(pid int) *fakeHandle {
	return &fakeHandle{pid: pid, done: make(chan struct{})}
}

func (h *fakeHandle) Pid() int { return h.pid }

func (h *fakeHandle) Terminate(time.Duration) bool {
	h.mu.Lock()
	h.terminated = true
	h.mu.Unlock()
	if h.stubborn {
		return false
	}
	h.exit()
	return true
}

func (h *fakeHandle) Kill() error {
	if h.stubborn {
		return errors.New("operation not permitted")
	}
	h.exit()
	return nil
}

func (h *fakeHandle) exit() { h.once.Do(func() { close(h.done) }) }

func (h *fakeHandle) Done() <-chan struct{} { return h.done }

func (h *fakeHandle) wasTerminated() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.terminated
}

type launchCall struct {
	dir  string
	port int
}

type fakeLauncher struct {
	mu       sync.Mutex
	calls    []launchCall
	handles  []*fakeHandle
	err      error
	stubborn bool
}

func (l *fakeLauncher) LaunchGame(dir string, port int) (supervisor.Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, launchCall{dir: dir, port: port})
	if l.err != nil {
		return nil, l.err
	}
	h := newFakeHandle(1000 + len(l.calls))
	h.stubborn = l.stubborn
	l.handles = append(l.handles, h)
	return h, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.RoomEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev models.RoomEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) types() []models.RoomEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.RoomEventType, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

type fixture struct {
	m        *Manager
	store    *database.Memory
	launcher *fakeLauncher
	events   *recordingPublisher
	pool     *portpool.Pool
}

func newFixture(t *testing.T, first, last int) *fixture {
	t.Helper()
	logger, _ := test.NewNullLogger()
	store := database.NewMemory(auth.LightParams)
	ctx := context.Background()
	require.NoError(t, store.CreateGame(ctx, &models.Game{ID: 7, Name: "gomoku", Version: "1.2.0", MinPlayers: 2, MaxPlayers: 4, FilePath: "7_gomoku"}))
	require.NoError(t, store.CreateGame(ctx, &models.Game{ID: 8, Name: "retired", Version: "1.0", MinPlayers: 1, MaxPlayers: 2, FilePath: "8", Status: models.GameInactive}))
	require.NoError(t, store.CreateGame(ctx, &models.Game{ID: 9, Name: "duel", Version: "2.0", MinPlayers: 1, MaxPlayers: 2, FilePath: "9_duel"}))

	pool, err := portpool.New(first, last, logger)
	require.NoError(t, err)

	opts := DefaultOptions()
	opts.StorageDir = "/games"
	opts.AdvertiseHost = "10.0.0.5"
	opts.LaunchGrace = 0

	f := &fixture{store: store, launcher: &fakeLauncher{}, events: &recordingPublisher{}, pool: pool}
	f.m = NewManager(store, f.launcher, pool, opts, logger).WithEvents(f.events)
	return f
}

func (f *fixture) create(t *testing.T, gameID int, host *fakePeer, version string) string {
	t.Helper()
	id, out, err := f.m.CreateRoom(context.Background(), gameID, host.name, host, version)
	require.NoError(t, err)
	out.Flush(context.Background())
	return id
}

func (f *fixture) join(t *testing.T, roomID string, p *fakePeer, version string) {
	t.Helper()
	_, out, err := f.m.JoinRoom(roomID, p.name, p, version)
	require.NoError(t, err)
	out.Flush(context.Background())
}

func TestCreateAndJoinRoom(t *testing.T) {
	f := newFixture(t, 9000, 9099)
	alice, bob := &fakePeer{name: "alice"}, &fakePeer{name: "bob"}

	roomID := f.create(t, 7, alice, "1.2.0")
	assert.Regexp(t, `^\d{6}$`, roomID)

	rooms := f.m.ListRooms()
	require.Len(t, rooms, 1)
	assert.Equal(t, protocol.RoomSummary{RoomID: roomID, GameName: "gomoku", Version: "1.2.0", Host: "alice", Players: "1/4"}, rooms[0])

	info, out, err := f.m.JoinRoom(roomID, "bob", bob, "1.2.0")
	require.NoError(t, err)
	assert.Equal(t, JoinInfo{RoomID: roomID, GameName: "gomoku", HostName: "alice"}, info)
	assert.Equal(t, 2, out.Len())

	// nothing is pushed before the caller flushes
	assert.Empty(t, alice.received())
	out.Flush(context.Background())

	want := protocol.RoomUpdate{Cmd: protocol.PushRoomUpdate, Players: []string{"alice", "bob"}, CurrCount: 2, MaxCount: 4}
	assert.Equal(t, want, alice.last())
	assert.Equal(t, want, bob.last())
	assert.Equal(t, "2/4", f.m.ListRooms()[0].Players)

	assert.Equal(t, []models.RoomEventType{models.RoomCreated, models.RoomJoined}, f.events.types())
}

func TestCreateRoom_Refusals(t *testing.T) {
	f := newFixture(t, 9000, 9099)
	alice := &fakePeer{name: "alice"}
	ctx := context.Background()

	tests := []struct {
		name    string
		gameID  int
		version string
		kind    errs.Kind
	}{
		{"older client", 7, "1.1.0", errs.KindVersion},
		{"missing version", 7, "", errs.KindVersion},
		{"unknown game", 42, "1.0", errs.KindNotFound},
		{"inactive game", 8, "1.0", errs.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := f.m.CreateRoom(ctx, tt.gameID, "alice", alice, tt.version)
			require.Error(t, err)
			assert.Equal(t, tt.kind, errs.KindOf(err))
		})
	}
	assert.Empty(t, f.m.ListRooms())

	t.Run("newer client is accepted and room pins catalog version", func(t *testing.T) {
		id := f.create(t, 7, alice, "1.3.0")
		assert.Equal(t, "1.2.0", f.m.ListRooms()[0].Version)

		bob := &fakePeer{name: "bob"}
		_, _, err := f.m.JoinRoom(id, "bob", bob, "1.3.0")
		assert.True(t, errs.Is(err, errs.KindVersion))
	})
}

func TestCreateRoom_ReadsCurrentCatalogRow(t *testing.T) {
	f := newFixture(t, 9000, 9099)
	alice, bob, carol := &fakePeer{name: "alice"}, &fakePeer{name: "bob"}, &fakePeer{name: "carol"}
	ctx := context.Background()
	f.create(t, 7, alice, "1.2.0")

	game, err := f.store.GetGame(ctx, 7)
	require.NoError(t, err)
	game.Version = "1.3.0"
	f.store.PutGame(*game)

	_, _, err = f.m.CreateRoom(ctx, 7, "bob", bob, "1.2.0")
	assert.True(t, errs.Is(err, errs.KindVersion), "outdated client must be refused after a publish")

	roomID := f.create(t, 7, bob, "1.3.0")
	for _, r := range f.m.ListRooms() {
		if r.RoomID == roomID {
			assert.Equal(t, "1.3.0", r.Version)
		}
	}
	f.join(t, roomID, carol, "1.3.0")

	game.Status = models.GameInactive
	f.store.PutGame(*game)
	_, _, err = f.m.CreateRoom(ctx, 7, "carol", carol, "1.3.0")
	assert.True(t, errs.Is(err, errs.KindNotFound), "delisted games cannot host new rooms")
}

func TestJoinRoom_Refusals(t *testing.T) {
	f := newFixture(t, 9000, 9099)
	alice := &fakePeer{name: "alice"}
	roomID := f.create(t, 9, alice, "2.0")

	_, _, err := f.m.JoinRoom("000000", "bob", &fakePeer{name: "bob"}, "2.0")
	assert.True(t, errs.Is(err, errs.KindNotFound))

	_, _, err = f.m.JoinRoom(roomID, "bob", &fakePeer{name: "bob"}, "2.0.0")
	assert.True(t, errs.Is(err, errs.KindVersion), "version must match exactly")
	assert.Equal(t, "1/2", f.m.ListRooms()[0].Players, "refused join leaves the roster alone")

	_, _, err = f.m.JoinRoom(roomID, "alice", alice, "2.0")
	assert.True(t, errs.Is(err, errs.KindInvalid))

	f.join(t, roomID, &fakePeer{name: "bob"}, "2.0")
	_, _, err = f.m.JoinRoom(roomID, "carol", &fakePeer{name: "carol"}, "2.0")
	assert.True(t, errs.Is(err, errs.KindCapacity))
	assert.Equal(t, "Room is full", errs.Reason(err))

	out, err := f.m.StartGame(context.Background(), roomID, alice)
	require.NoError(t, err)
	out.Flush(context.Background())

	_, _, err = f.m.JoinRoom(roomID, "dave", &fakePeer{name: "dave"}, "2.0")
	assert.True(t, errs.Is(err, errs.KindInvalid))
}

func TestStartGame_NotEnoughPlayers(t *testing.T) {
	f := newFixture(t, 9000, 9099)
	alice := &fakePeer{name: "alice"}
	roomID := f.create(t, 7, alice, "1.2.0")

	_, err := f.m.StartGame(context.Background(), roomID, alice)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindCapacity))

	assert.Len(t, f.m.ListRooms(), 1, "room stays waiting")
	assert.Zero(t, f.pool.Allocated())
	assert.Empty(t, f.launcher.calls)
}

func TestStartGame_OnlyHost(t *testing.T) {
	f := newFixture(t, 9000, 9099)
	alice, bob := &fakePeer{name: "alice"}, &fakePeer{name: "bob"}
	roomID := f.create(t, 7, alice, "1.2.0")
	f.join(t, roomID, bob, "1.2.0")

	_, err := f.m.StartGame(context.Background(), roomID, bob)
	assert.True(t, errs.Is(err, errs.KindPermission))

	_, err = f.m.StartGame(context.Background(), "999999", alice)
	assert.True(t, errs.Is(err, errs.KindNotFound))
}

func TestStartGame_Success(t *testing.T) {
	f := newFixture(t, 9000, 9099)
	alice, bob := &fakePeer{name: "alice"}, &fakePeer{name: "bob"}
	roomID := f.create(t, 7, alice, "1.2.0")
	f.join(t, roomID, bob, "1.2.0")

	out, err := f.m.StartGame(context.Background(), roomID, alice)
	require.NoError(t, err)
	out.Flush(context.Background())

	require.Len(t, f.launcher.calls, 1)
	assert.Equal(t, launchCall{dir: filepath.Join("/games", "7_gomoku"), port: 9000}, f.launcher.calls[0])

	want := protocol.GameStarted{Cmd: protocol.PushGameStarted, GameServerIP: "10.0.0.5", GameServerPort: 9000, GameID: 7, GameName: "gomoku"}
	assert.Equal(t, want, alice.last())
	assert.Equal(t, want, bob.last())

	assert.Empty(t, f.m.ListRooms(), "playing rooms are not listed")
	assert.Equal(t, Stats{Playing: 1, PortsUsed: 1, PortsFree: 99}, f.m.Stats())
	assert.Equal(t, 1, f.store.Plays(7, "alice"))
	assert.Equal(t, 1, f.store.Plays(7, "bob"))

	_, err = f.m.StartGame(context.Background(), roomID, alice)
	assert.True(t, errs.Is(err, errs.KindInvalid), "playing rooms cannot start again")
}

func TestStartGame_LaunchFailureRollsBack(t *testing.T) {
	f := newFixture(t, 9000, 9099)
	f.launcher.err = errs.New(errs.KindLaunch, "Server entry missing")
	alice, bob := &fakePeer{name: "alice"}, &fakePeer{name: "bob"}
	roomID := f.create(t, 7, alice, "1.2.0")
	f.join(t, roomID, bob, "1.2.0")

	_, err := f.m.StartGame(context.Background(), roomID, alice)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindLaunch))
	assert.Equal(t, "Failed to launch game server", errs.Reason(err))

	assert.Zero(t, f.pool.Allocated())
	require.Len(t, f.m.ListRooms(), 1)
	assert.Zero(t, f.store.Plays(7, "alice"))

	// the room stays usable
	f.launcher.err = nil
	out, err := f.m.StartGame(context.Background(), roomID, alice)
	require.NoError(t, err)
	out.Flush(context.Background())
	assert.Equal(t, 9000, f.launcher.calls[1].port)
}

func TestStartGame_PortExhaustion(t *testing.T) {
	f := newFixture(t, 9000, 9000)
	a, b := &fakePeer{name: "a"}, &fakePeer{name: "b"}
	r1 := f.create(t, 9, a, "2.0")
	r2 := f.create(t, 9, b, "2.0")

	out, err := f.m.StartGame(context.Background(), r1, a)
	require.NoError(t, err)
	out.Flush(context.Background())

	_, err = f.m.StartGame(context.Background(), r2, b)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindCapacity))
	assert.Equal(t, "No server ports available", errs.Reason(err))
	assert.Len(t, f.m.ListRooms(), 1)

	// closing the first room frees the port for the second
	f.m.LeaveRoom(r1, a).Flush(context.Background())
	out, err = f.m.StartGame(context.Background(), r2, b)
	require.NoError(t, err)
	out.Flush(context.Background())
	assert.Equal(t, 9000, f.launcher.calls[1].port)
}

func TestHostDisconnectClosesPlayingRoom(t *testing.T) {
	f := newFixture(t, 9000, 9099)
	alice, bob, dave := &fakePeer{name: "alice"}, &fakePeer{name: "bob"}, &fakePeer{name: "dave"}
	roomID := f.create(t, 7, alice, "1.2.0")
	f.join(t, roomID, bob, "1.2.0")
	f.join(t, roomID, dave, "1.2.0")
	out, err := f.m.StartGame(context.Background(), roomID, alice)
	require.NoError(t, err)
	out.Flush(context.Background())

	out = f.m.Disconnect(alice)
	// the port is held until the payload is stopped
	assert.Equal(t, 1, f.pool.Allocated())
	out.Flush(context.Background())

	assert.Equal(t, protocol.NewErrorPush(ReasonHostLeft), bob.last())
	assert.Equal(t, protocol.NewErrorPush(ReasonHostLeft), dave.last())
	assert.True(t, f.launcher.handles[0].wasTerminated())
	assert.Zero(t, f.pool.Allocated())
	assert.Equal(t, Stats{PortsFree: 100}, f.m.Stats())

	_, _, err = f.m.JoinRoom(roomID, "carol", &fakePeer{name: "carol"}, "1.2.0")
	assert.True(t, errs.Is(err, errs.KindNotFound))
}

func TestStubbornPayloadKeepsPortUntilExit(t *testing.T) {
	f := newFixture(t, 9000, 9000)
	f.launcher.stubborn = true
	alice, bob := &fakePeer{name: "alice"}, &fakePeer{name: "bob"}
	roomID := f.create(t, 9, alice, "2.0")
	f.join(t, roomID, bob, "2.0")
	out, err := f.m.StartGame(context.Background(), roomID, alice)
	require.NoError(t, err)
	out.Flush(context.Background())

	f.m.LeaveRoom(roomID, alice).Flush(context.Background())
	assert.Equal(t, protocol.NewErrorPush(ReasonHostLeft), bob.last())
	assert.Equal(t, Stats{PortsUsed: 1}, f.m.Stats(), "port stays allocated while the payload runs")

	// nothing else can take the port
	r2 := f.create(t, 9, bob, "2.0")
	_, err = f.m.StartGame(context.Background(), r2, bob)
	assert.True(t, errs.Is(err, errs.KindCapacity))

	f.launcher.handles[0].exit()
	assert.Eventually(t, func() bool {
		return f.m.Stats().PortsFree == 1
	}, time.Second, 5*time.Millisecond)
}

func TestHostLeaveClosesWaitingRoom(t *testing.T) {
	f := newFixture(t, 9000, 9099)
	alice, bob, carol := &fakePeer{name: "alice"}, &fakePeer{name: "bob"}, &fakePeer{name: "carol"}
	roomID := f.create(t, 7, alice, "1.2.0")
	f.join(t, roomID, bob, "1.2.0")
	f.join(t, roomID, carol, "1.2.0")

	f.m.LeaveRoom(roomID, alice).Flush(context.Background())

	assert.Equal(t, protocol.NewErrorPush(ReasonHostLeft), bob.last())
	assert.Equal(t, protocol.NewErrorPush(ReasonHostLeft), carol.last())
	assert.Empty(t, f.m.ListRooms())
	assert.Contains(t, f.events.types(), models.RoomClosed)
}

func TestMemberLeaveBroadcastsRoster(t *testing.T) {
	f := newFixture(t, 9000, 9099)
	alice, bob, carol := &fakePeer{name: "alice"}, &fakePeer{name: "bob"}, &fakePeer{name: "carol"}
	roomID := f.create(t, 7, alice, "1.2.0")
	f.join(t, roomID, bob, "1.2.0")
	f.join(t, roomID, carol, "1.2.0")
	before := len(bob.received())

	out := f.m.LeaveRoom(roomID, bob)
	assert.Equal(t, 2, out.Len(), "only remaining members are notified")
	out.Flush(context.Background())

	want := protocol.RoomUpdate{Cmd: protocol.PushRoomUpdate, Players: []string{"alice", "carol"}, CurrCount: 2, MaxCount: 4}
	assert.Equal(t, want, alice.last())
	assert.Equal(t, want, carol.last())
	assert.Len(t, bob.received(), before)
	assert.Equal(t, "2/4", f.m.ListRooms()[0].Players)
}

func TestLeaveRoom_Noops(t *testing.T) {
	f := newFixture(t, 9000, 9099)
	alice := &fakePeer{name: "alice"}
	roomID := f.create(t, 7, alice, "1.2.0")

	assert.Zero(t, f.m.LeaveRoom("nope", alice).Len())
	assert.Zero(t, f.m.LeaveRoom(roomID, &fakePeer{name: "stranger"}).Len())
	assert.Len(t, f.m.ListRooms(), 1)
}

func TestDisconnect_AllRooms(t *testing.T) {
	f := newFixture(t, 9000, 9099)
	alice, bob, carol := &fakePeer{name: "alice"}, &fakePeer{name: "bob"}, &fakePeer{name: "carol"}
	r1 := f.create(t, 7, alice, "1.2.0")
	r2 := f.create(t, 7, carol, "1.2.0")
	f.join(t, r1, bob, "1.2.0")
	f.join(t, r2, bob, "1.2.0")

	f.m.Disconnect(bob).Flush(context.Background())

	rooms := f.m.ListRooms()
	require.Len(t, rooms, 2)
	for _, r := range rooms {
		assert.Equal(t, "1/4", r.Players)
	}
}

func TestStartGame_RoomClosedDuringGrace(t *testing.T) {
	f := newFixture(t, 9000, 9099)
	f.m.opts.LaunchGrace = 200 * time.Millisecond
	alice, bob := &fakePeer{name: "alice"}, &fakePeer{name: "bob"}
	roomID := f.create(t, 7, alice, "1.2.0")
	f.join(t, roomID, bob, "1.2.0")

	go func() {
		time.Sleep(50 * time.Millisecond)
		f.m.Disconnect(alice).Flush(context.Background())
	}()

	out, err := f.m.StartGame(context.Background(), roomID, alice)
	require.NoError(t, err)
	assert.Zero(t, out.Len(), "no game_started for a closed room")
	out.Flush(context.Background())

	assert.Equal(t, protocol.NewErrorPush(ReasonHostLeft), bob.last())
	assert.Zero(t, f.pool.Allocated())
}

func TestRoomIDCollisionsAreCapped(t *testing.T) {
	f := newFixture(t, 9000, 9099)
	f.m.newRoomID = func() string { return "123456" }
	f.m.opts.RoomIDAttempts = 3

	f.create(t, 7, &fakePeer{name: "a"}, "1.2.0")
	_, _, err := f.m.CreateRoom(context.Background(), 7, "b", &fakePeer{name: "b"}, "1.2.0")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindCapacity))
}

func TestConcurrentCreatesGetUniqueIDs(t *testing.T) {
	f := newFixture(t, 9000, 9099)
	const n = 200

	ids := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := &fakePeer{name: fmt.Sprintf("p%d", i)}
			id, _, err := f.m.CreateRoom(context.Background(), 7, p.name, p, "1.2.0")
			if assert.NoError(t, err) {
				ids <- id
			}
		}(i)
	}
	wg.Wait()
	close(ids)

	seen := map[string]bool{}
	for id := range ids {
		assert.False(t, seen[id], "duplicate room id %s", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)
	assert.Len(t, f.m.ListRooms(), n)
}

func TestConcurrentStartsNeverShareAPort(t *testing.T) {
	f := newFixture(t, 9000, 9004)
	const n = 10

	hosts := make([]*fakePeer, n)
	rooms := make([]string, n)
	for i := range hosts {
		hosts[i] = &fakePeer{name: fmt.Sprintf("h%d", i)}
		rooms[i] = f.create(t, 9, hosts[i], "2.0")
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		started int
		refused int
	)
	for i := range hosts {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := f.m.StartGame(context.Background(), rooms[i], hosts[i])
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				assert.True(t, errs.Is(err, errs.KindCapacity))
				refused++
				return
			}
			started++
			out.Flush(context.Background())
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 5, started)
	assert.Equal(t, 5, refused)

	ports := map[int]bool{}
	for _, c := range f.launcher.calls {
		assert.False(t, ports[c.port], "port %d handed out twice", c.port)
		ports[c.port] = true
	}
}

func TestClose_StopsEverything(t *testing.T) {
	f := newFixture(t, 9000, 9099)
	alice, bob := &fakePeer{name: "alice"}, &fakePeer{name: "bob"}
	r1 := f.create(t, 9, alice, "2.0")
	f.create(t, 7, bob, "1.2.0")
	out, err := f.m.StartGame(context.Background(), r1, alice)
	require.NoError(t, err)
	out.Flush(context.Background())

	f.m.Close(context.Background())

	assert.Empty(t, f.m.ListRooms())
	assert.Zero(t, f.pool.Allocated())
	assert.True(t, f.launcher.handles[0].wasTerminated())
	assert.Equal(t, protocol.NewErrorPush(ReasonShutdown), alice.last())
	assert.Equal(t, protocol.NewErrorPush(ReasonShutdown), bob.last())

	_, _, err = f.m.CreateRoom(context.Background(), 7, "carol", &fakePeer{name: "carol"}, "1.2.0")
	assert.Error(t, err)
}

type failingCatalog struct{ Catalog }

func (failingCatalog) GetGame(context.Context, int) (*models.Game, error) {
	return nil, errors.New("connection refused")
}

func TestCreateRoom_StoreFailureIsInternal(t *testing.T) {
	logger, _ := test.NewNullLogger()
	pool, err := portpool.New(9000, 9001, logger)
	require.NoError(t, err)
	m := NewManager(failingCatalog{}, &fakeLauncher{}, pool, DefaultOptions(), logger)

	_, _, err = m.CreateRoom(context.Background(), 7, "alice", &fakePeer{}, "1.0")
	assert.True(t, errs.Is(err, errs.KindInternal))
	assert.Equal(t, "internal server error", errs.Reason(err))
}
