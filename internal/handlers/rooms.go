// internal/handlers/rooms.go
package handlers

import (
	"context"

	"github.com/jason-s-yu/arcade/internal/lobby"
	"github.com/jason-s-yu/arcade/internal/protocol"
)

func (d *Dispatcher) createRoom(ctx context.Context, c *client, r protocol.CreateRoomRequest) (any, *lobby.Outbox, error) {
	roomID, out, err := d.rooms.CreateRoom(ctx, r.GameID, c.user, c.conn, r.Version)
	if err != nil {
		return nil, nil, err
	}
	return protocol.CreateRoomReply{Reply: protocol.OK(), RoomID: roomID}, out, nil
}

func (d *Dispatcher) joinRoom(c *client, r protocol.JoinRoomRequest) (any, *lobby.Outbox, error) {
	info, out, err := d.rooms.JoinRoom(r.RoomID, c.user, c.conn, r.Version)
	if err != nil {
		return nil, nil, err
	}
	return protocol.JoinRoomReply{
		Reply:    protocol.OK(),
		RoomID:   info.RoomID,
		GameName: info.GameName,
		HostName: info.HostName,
	}, out, nil
}

// startGame has no reply of its own on success; the game_started push that
// follows is the host's answer.
func (d *Dispatcher) startGame(ctx context.Context, c *client, r protocol.StartGameRequest) (any, *lobby.Outbox, error) {
	out, err := d.rooms.StartGame(ctx, r.RoomID, c.conn)
	if err != nil {
		return nil, nil, err
	}
	return nil, out, nil
}
