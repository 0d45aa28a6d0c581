// internal/lobby/lobby_manager.go
package lobby

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/arcade/internal/database"
	"github.com/jason-s-yu/arcade/internal/errs"
	"github.com/jason-s-yu/arcade/internal/models"
	"github.com/jason-s-yu/arcade/internal/portpool"
	"github.com/jason-s-yu/arcade/internal/protocol"
	"github.com/jason-s-yu/arcade/internal/supervisor"
)

// ReasonHostLeft is pushed to the remaining members of a room whose host left.
const ReasonHostLeft = "host left, room closed"

// ReasonShutdown is pushed to every member when the lobby stops.
const ReasonShutdown = "server shutting down, room closed"

// Catalog is the part of the store the manager reads and writes.
type Catalog interface {
	GetGame(ctx context.Context, id int) (*models.Game, error)
	RecordPlays(ctx context.Context, gameID int, players []string) error
}

// Launcher starts the payload server of the game folder dir on port.
type Launcher interface {
	LaunchGame(dir string, port int) (supervisor.Handle, error)
}

// EventPublisher receives room lifecycle events.
type EventPublisher interface {
	Publish(ctx context.Context, ev models.RoomEvent) error
}

// Options tunes a Manager.
type Options struct {
	// StorageDir holds one folder per catalog game.
	StorageDir string
	// AdvertiseHost is sent to players as game_server_ip.
	AdvertiseHost string
	// LaunchGrace is how long a freshly started payload gets to bind its
	// port before players are told about it.
	LaunchGrace time.Duration
	// TerminateGrace is how long a payload gets to exit before it is killed.
	TerminateGrace time.Duration
	// RoomIDAttempts caps the random id retries on collision.
	RoomIDAttempts int
}

// DefaultOptions mirrors the historical lobby behaviour.
func DefaultOptions() Options {
	return Options{
		StorageDir:     "storage",
		AdvertiseHost:  "127.0.0.1",
		LaunchGrace:    time.Second,
		TerminateGrace: time.Second,
		RoomIDAttempts: 32,
	}
}

// Manager owns every room and the port pool. One mutex serializes all room
// and port mutations; pushes, store writes and payload teardown happen after
// it is released, through the Outbox each operation returns.
type Manager struct {
	mu     sync.Mutex
	rooms  map[string]*Room
	ports  *portpool.Pool
	closed bool

	catalog  Catalog
	launcher Launcher
	events   EventPublisher
	opts     Options
	logger   *logrus.Logger

	newRoomID func() string
}

// NewManager creates a Manager. The pool must not be shared. catalog is read
// on every CreateRoom and must not serve stale rows, so pass the store itself
// rather than a cache in front of it.
func NewManager(catalog Catalog, launcher Launcher, ports *portpool.Pool, opts Options, logger *logrus.Logger) *Manager {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if opts.RoomIDAttempts <= 0 {
		opts.RoomIDAttempts = DefaultOptions().RoomIDAttempts
	}
	return &Manager{
		rooms:     make(map[string]*Room),
		ports:     ports,
		catalog:   catalog,
		launcher:  launcher,
		opts:      opts,
		logger:    logger,
		newRoomID: randomRoomID,
	}
}

// WithEvents sets the journal publisher. Nil disables publishing.
func (m *Manager) WithEvents(p EventPublisher) *Manager {
	m.events = p
	return m
}

func randomRoomID() string {
	return fmt.Sprintf("%06d", 100000+rand.IntN(900000))
}

func (m *Manager) roomLogger(r *Room) *logrus.Entry {
	return m.logger.WithFields(logrus.Fields{
		"room_id": r.ID,
		"game_id": r.GameID,
	})
}

// CreateRoom opens a waiting room for gameID hosted by host. The client's
// payload version must be at least the catalog version; the room is pinned to
// the catalog version.
func (m *Manager) CreateRoom(ctx context.Context, gameID int, host string, conn Peer, clientVersion string) (string, *Outbox, error) {
	game, err := m.catalog.GetGame(ctx, gameID)
	if errors.Is(err, database.ErrNotFound) {
		return "", nil, errs.NotFound("Game not available")
	}
	if err != nil {
		return "", nil, errs.Internal(fmt.Errorf("load game %d: %w", gameID, err))
	}
	if !game.Active() {
		return "", nil, errs.NotFound("Game not available")
	}
	if clientVersion == "" || CompareVersions(clientVersion, game.Version) < 0 {
		return "", nil, errs.Newf(errs.KindVersion, "Client version is outdated (requires v%s), please download again", game.Version)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", nil, errs.New(errs.KindInternal, "server is shutting down")
	}

	roomID := ""
	for i := 0; i < m.opts.RoomIDAttempts; i++ {
		candidate := m.newRoomID()
		if _, taken := m.rooms[candidate]; !taken {
			roomID = candidate
			break
		}
	}
	if roomID == "" {
		return "", nil, errs.New(errs.KindCapacity, "No room id available, try again later")
	}

	room := &Room{
		ID:         roomID,
		GameID:     game.ID,
		GameName:   game.Name,
		Version:    game.Version,
		GamePath:   game.FilePath,
		HostName:   host,
		HostConn:   conn,
		Members:    []Member{{Name: host, Conn: conn}},
		Status:     StatusWaiting,
		MinPlayers: game.MinPlayers,
		MaxPlayers: game.MaxPlayers,
	}
	m.rooms[roomID] = room
	m.roomLogger(room).WithField("user", host).Infof("room created for %s v%s", game.Name, game.Version)

	out := m.newOutbox()
	out.event(models.NewRoomEvent(models.RoomCreated, roomID, game.ID, []string{host}))
	return roomID, out, nil
}

// JoinInfo is returned to a player who joined a room.
type JoinInfo struct {
	RoomID   string
	GameName string
	HostName string
}

// JoinRoom seats identity in a waiting room. The client's payload version
// must equal the room's pinned version exactly. Every member, the new one
// included, receives the updated roster.
func (m *Manager) JoinRoom(roomID, identity string, conn Peer, clientVersion string) (JoinInfo, *Outbox, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.rooms[roomID]
	if !ok {
		return JoinInfo{}, nil, errs.NotFound("Room not found")
	}
	if room.Status != StatusWaiting {
		return JoinInfo{}, nil, errs.Invalid("Game already started")
	}
	if room.hasConnUnsafe(conn) {
		return JoinInfo{}, nil, errs.Invalid("Already in this room")
	}
	if len(room.Members) >= room.MaxPlayers {
		return JoinInfo{}, nil, errs.New(errs.KindCapacity, "Room is full")
	}
	if clientVersion == "" || clientVersion != room.Version {
		return JoinInfo{}, nil, errs.Newf(errs.KindVersion, "Version mismatch (room v%s, yours v%s), please update", room.Version, clientVersion)
	}

	room.Members = append(room.Members, Member{Name: identity, Conn: conn})
	m.roomLogger(room).WithField("user", identity).Infof("player joined (%d/%d)", len(room.Members), room.MaxPlayers)

	out := m.newOutbox()
	out.push(protocol.NewRoomUpdate(room.namesUnsafe(), room.MaxPlayers), room.peersUnsafe()...)
	out.event(models.NewRoomEvent(models.RoomJoined, room.ID, room.GameID, []string{identity}))
	return JoinInfo{RoomID: room.ID, GameName: room.GameName, HostName: room.HostName}, out, nil
}

// LeaveRoom removes conn's seat from roomID. Leaving an unknown room, or one
// conn has no seat in, is not an error.
func (m *Manager) LeaveRoom(roomID string, conn Peer) *Outbox {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := m.newOutbox()
	room, ok := m.rooms[roomID]
	if !ok {
		return out
	}
	m.leaveUnsafe(room, conn, out)
	return out
}

// Disconnect vacates every seat held by conn, as if it left each room.
func (m *Manager) Disconnect(conn Peer) *Outbox {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := m.newOutbox()
	for _, room := range m.rooms {
		if room.hasConnUnsafe(conn) {
			m.leaveUnsafe(room, conn, out)
		}
	}
	return out
}

func (m *Manager) leaveUnsafe(room *Room, conn Peer, out *Outbox) {
	var names []string
	for _, mem := range room.Members {
		if mem.Conn == conn {
			names = append(names, mem.Name)
		}
	}
	if !room.removeConnUnsafe(conn) {
		return
	}
	m.roomLogger(room).WithField("user", names).Info("player left")
	out.event(models.NewRoomEvent(models.RoomLeft, room.ID, room.GameID, names))
	m.cleanupUnsafe(room, out)
}

// cleanupUnsafe closes room if its host is gone or it is empty, otherwise
// broadcasts the current roster.
func (m *Manager) cleanupUnsafe(room *Room, out *Outbox) {
	if room.shouldCloseUnsafe() {
		m.closeRoomUnsafe(room, ReasonHostLeft, out)
		return
	}
	out.push(protocol.NewRoomUpdate(room.namesUnsafe(), room.MaxPlayers), room.peersUnsafe()...)
}

// closeRoomUnsafe removes room and schedules its payload teardown. The port
// stays allocated until the payload has stopped.
func (m *Manager) closeRoomUnsafe(room *Room, reason string, out *Outbox) {
	delete(m.rooms, room.ID)

	if room.Process != nil {
		out.teardowns = append(out.teardowns, teardown{roomID: room.ID, port: room.Port, process: room.Process})
	} else if room.Port != 0 {
		m.ports.Release(room.Port)
	}
	out.push(protocol.NewErrorPush(reason), room.peersUnsafe()...)

	ev := models.NewRoomEvent(models.RoomClosed, room.ID, room.GameID, room.namesUnsafe())
	ev.Port = room.Port
	out.event(ev)
	m.roomLogger(room).WithField("port", room.Port).Infof("room closed: %s", reason)
}

// stopAndRelease terminates a closed room's payload and only then returns its
// port to the pool. A payload that survives the kill keeps its port until it
// exits.
func (m *Manager) stopAndRelease(td teardown) {
	log := m.logger.WithFields(logrus.Fields{"room_id": td.roomID, "port": td.port})
	if err := supervisor.Stop(td.process, m.opts.TerminateGrace); err != nil {
		log.WithError(err).Warn("payload did not stop, port held until it exits")
		go func() {
			<-td.process.Done()
			m.releasePort(td.port)
			log.Info("payload exited, port released")
		}()
		return
	}
	m.releasePort(td.port)
	log.Debug("payload stopped, port released")
}

func (m *Manager) releasePort(port int) {
	m.mu.Lock()
	m.ports.Release(port)
	m.mu.Unlock()
}

// StartGame launches the payload for a waiting room. Only the host may start,
// and only with at least MinPlayers seated. The port is acquired and the
// payload spawned under the lock; a launch failure returns the port and
// leaves the room waiting. On success every member is told where to connect
// once the launch grace has passed.
func (m *Manager) StartGame(ctx context.Context, roomID string, conn Peer) (*Outbox, error) {
	m.mu.Lock()
	room, ok := m.rooms[roomID]
	if !ok {
		m.mu.Unlock()
		return nil, errs.NotFound("Room not found")
	}
	if room.HostConn != conn {
		m.mu.Unlock()
		return nil, errs.New(errs.KindPermission, "Only host can start game")
	}
	if room.Status != StatusWaiting {
		m.mu.Unlock()
		return nil, errs.Invalid("Game already started")
	}
	if len(room.Members) < room.MinPlayers {
		m.mu.Unlock()
		return nil, errs.Newf(errs.KindCapacity, "Not enough players (need %d)", room.MinPlayers)
	}
	port, ok := m.ports.Acquire()
	if !ok {
		m.mu.Unlock()
		return nil, errs.New(errs.KindCapacity, "No server ports available")
	}

	log := m.roomLogger(room).WithField("port", port)
	proc, err := m.launcher.LaunchGame(filepath.Join(m.opts.StorageDir, room.GamePath), port)
	if err != nil {
		m.ports.Release(port)
		m.mu.Unlock()
		log.WithError(err).Error("payload launch failed, room stays waiting")
		return nil, errs.Wrap(errs.KindLaunch, "Failed to launch game server", err)
	}

	room.Status = StatusPlaying
	room.Port = port
	room.Process = proc
	players := room.namesUnsafe()
	gameID, gameName := room.GameID, room.GameName
	m.mu.Unlock()

	log.WithField("pid", proc.Pid()).Infof("game started with %d players", len(players))

	if err := m.catalog.RecordPlays(ctx, gameID, players); err != nil {
		log.WithError(err).Warn("failed to record play history")
	}

	if m.opts.LaunchGrace > 0 {
		timer := time.NewTimer(m.opts.LaunchGrace)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
		}
	}

	out := m.newOutbox()
	ev := models.NewRoomEvent(models.RoomStarted, roomID, gameID, players)
	ev.Port = port
	out.event(ev)

	m.mu.Lock()
	defer m.mu.Unlock()
	// the room may have closed during the grace period
	if cur, ok := m.rooms[roomID]; ok && cur == room && room.Status == StatusPlaying {
		out.push(protocol.GameStarted{
			Cmd:            protocol.PushGameStarted,
			GameServerIP:   m.opts.AdvertiseHost,
			GameServerPort: port,
			GameID:         gameID,
			GameName:       gameName,
		}, room.peersUnsafe()...)
	}
	return out, nil
}

// ListRooms returns the waiting rooms ordered by id.
func (m *Manager) ListRooms() []protocol.RoomSummary {
	m.mu.Lock()
	defer m.mu.Unlock()

	rooms := make([]protocol.RoomSummary, 0, len(m.rooms))
	for _, r := range m.rooms {
		if r.Status == StatusWaiting {
			rooms = append(rooms, r.summaryUnsafe())
		}
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].RoomID < rooms[j].RoomID })
	return rooms
}

// Stats is a point-in-time count of rooms and ports.
type Stats struct {
	Waiting   int
	Playing   int
	PortsUsed int
	PortsFree int
}

// Stats counts rooms by status and ports by allocation.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	var s Stats
	for _, r := range m.rooms {
		if r.Status == StatusPlaying {
			s.Playing++
		} else {
			s.Waiting++
		}
	}
	s.PortsUsed = m.ports.Allocated()
	s.PortsFree = m.ports.Available()
	return s
}

// Close closes every room, stops every payload and releases every port.
// Later CreateRoom calls fail.
func (m *Manager) Close(ctx context.Context) {
	m.mu.Lock()
	m.closed = true
	out := m.newOutbox()
	for _, room := range m.rooms {
		m.closeRoomUnsafe(room, ReasonShutdown, out)
	}
	m.mu.Unlock()

	out.Flush(ctx)
	m.logger.Info("room manager closed")
}
