// internal/handlers/dispatcher.go
package handlers

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/jason-s-yu/arcade/internal/auth"
	"github.com/jason-s-yu/arcade/internal/database"
	"github.com/jason-s-yu/arcade/internal/errs"
	"github.com/jason-s-yu/arcade/internal/lobby"
	"github.com/jason-s-yu/arcade/internal/protocol"
	"github.com/jason-s-yu/arcade/internal/session"
	"github.com/sirupsen/logrus"
)

// Dispatcher runs the request loop for every lobby connection, whichever
// transport it arrived on.
type Dispatcher struct {
	store    database.Store
	rooms    *lobby.Manager
	sessions *session.Registry[*protocol.Conn]
	tokens   *auth.Issuer

	storageDir string
	tempDir    string

	readTimeout  time.Duration
	writeTimeout time.Duration

	logger *logrus.Logger
}

// NewDispatcher wires the catalog store and room manager. Game folders are
// resolved under storageDir.
func NewDispatcher(store database.Store, rooms *lobby.Manager, storageDir string, logger *logrus.Logger) *Dispatcher {
	return &Dispatcher{
		store:      store,
		rooms:      rooms,
		sessions:   session.NewRegistry[*protocol.Conn](),
		storageDir: storageDir,
		logger:     logger,
	}
}

// WithTokens enables token login and hands a fresh token to every player
// who logs in.
func (d *Dispatcher) WithTokens(issuer *auth.Issuer) *Dispatcher {
	d.tokens = issuer
	return d
}

// WithTimeouts sets the per-connection read and write timeouts. Zero disables
// either one.
func (d *Dispatcher) WithTimeouts(read, write time.Duration) *Dispatcher {
	d.readTimeout = read
	d.writeTimeout = write
	return d
}

// WithTempDir sets where download archives are spooled.
func (d *Dispatcher) WithTempDir(dir string) *Dispatcher {
	d.tempDir = dir
	return d
}

// Online reports how many players are logged in.
func (d *Dispatcher) Online() int {
	return d.sessions.Online()
}

// client is the per-connection state owned by one Serve loop.
type client struct {
	conn *protocol.Conn
	user string
	log  *logrus.Entry
}

// ServeConn wraps a raw stream and serves it until it closes.
func (d *Dispatcher) ServeConn(ctx context.Context, nc net.Conn) {
	d.Serve(ctx, protocol.NewConn(nc, d.readTimeout, d.writeTimeout))
}

// Serve reads requests from conn and answers them in order until the peer
// goes away or the stream breaks. On exit the player's session and every
// room seat it held are released, and conn is closed.
func (d *Dispatcher) Serve(ctx context.Context, conn *protocol.Conn) {
	d.serve(ctx, d.newClient(conn))
}

func (d *Dispatcher) newClient(conn *protocol.Conn) *client {
	return &client{
		conn: conn,
		log: d.logger.WithFields(logrus.Fields{
			"conn_id": conn.ID,
			"remote":  conn.RemoteAddr(),
		}),
	}
}

func (d *Dispatcher) serve(ctx context.Context, c *client) {
	c.log.Info("client connected")
	defer d.teardown(ctx, c)

	for ctx.Err() == nil {
		req, err := c.conn.ReadRequest()
		if err != nil {
			if errs.Is(err, errs.KindProtocol) {
				c.log.WithError(err).Debug("rejected malformed request")
				if err := c.conn.Send(protocol.Fail(errs.Reason(err))); err != nil {
					return
				}
				continue
			}
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) && !c.conn.Dead() {
				c.log.WithError(err).Warn("read failed, dropping client")
			}
			return
		}
		if err := d.handle(ctx, c, req); err != nil {
			c.log.WithError(err).Debug("reply failed, dropping client")
			return
		}
	}
}

func (d *Dispatcher) teardown(ctx context.Context, c *client) {
	if c.user != "" {
		d.sessions.Unbind(c.user, c.conn)
	}
	d.rooms.Disconnect(c.conn).Flush(context.WithoutCancel(ctx))
	_ = c.conn.Close()
	c.log.WithField("user", c.user).Info("client disconnected")
}

// handle answers one request. The reply is written before any pushes the
// request produced. The returned error is a write failure on the client's
// own stream.
func (d *Dispatcher) handle(ctx context.Context, c *client, req protocol.Request) error {
	log := c.log.WithField("cmd", req.Command())
	if c.user != "" {
		log = log.WithField("user", c.user)
	}

	if c.user == "" && !allowedBeforeLogin(req) {
		log.Debug("request before login")
		return c.conn.Send(protocol.Fail("please login first"))
	}

	reply, out, err := d.route(ctx, c, req)
	if err != nil {
		logFailure(log, err)
		reply = protocol.Fail(errs.Reason(err))
	}

	var sendErr error
	if reply != nil {
		sendErr = c.conn.Send(reply)
	}
	out.Flush(ctx)
	return sendErr
}

func allowedBeforeLogin(req protocol.Request) bool {
	switch req.(type) {
	case protocol.LoginRequest, protocol.RegisterRequest:
		return true
	}
	return false
}

// route returns the reply to send, or nil when the handler already wrote
// everything the client should see.
func (d *Dispatcher) route(ctx context.Context, c *client, req protocol.Request) (any, *lobby.Outbox, error) {
	switch r := req.(type) {
	case protocol.LoginRequest:
		reply, err := d.login(ctx, c, r)
		return reply, nil, err
	case protocol.RegisterRequest:
		reply, err := d.register(ctx, r)
		return reply, nil, err
	case protocol.ListGamesRequest:
		reply, err := d.listGames(ctx)
		return reply, nil, err
	case protocol.GameDetailRequest:
		reply, err := d.gameDetail(ctx, r)
		return reply, nil, err
	case protocol.RateGameRequest:
		reply, err := d.rateGame(ctx, c, r)
		return reply, nil, err
	case protocol.DownloadGameRequest:
		return nil, nil, d.downloadGame(ctx, c, r)
	case protocol.CreateRoomRequest:
		return d.createRoom(ctx, c, r)
	case protocol.ListRoomsRequest:
		return protocol.ListRoomsReply{Reply: protocol.OK(), Rooms: d.rooms.ListRooms()}, nil, nil
	case protocol.JoinRoomRequest:
		return d.joinRoom(c, r)
	case protocol.StartGameRequest:
		return d.startGame(ctx, c, r)
	case protocol.LeaveRoomRequest:
		return protocol.OK(), d.rooms.LeaveRoom(r.RoomID, c.conn), nil
	default:
		return nil, nil, errs.Protocol("unsupported command", nil)
	}
}

func logFailure(log *logrus.Entry, err error) {
	switch errs.KindOf(err) {
	case errs.KindInternal, errs.KindUnknown, errs.KindLaunch:
		log.WithError(err).Error("request failed")
	default:
		log.WithField("reason", errs.Reason(err)).Debug("request refused")
	}
}
