// internal/lobby/room.go
package lobby

import (
	"fmt"

	"github.com/jason-s-yu/arcade/internal/protocol"
	"github.com/jason-s-yu/arcade/internal/supervisor"
)

// Peer is the room's handle on a member connection. Rooms compare peers by
// identity and never copy them.
type Peer interface {
	Send(v any) error
}

// RoomStatus is the room lifecycle state.
type RoomStatus string

const (
	StatusWaiting RoomStatus = "waiting"
	StatusPlaying RoomStatus = "playing"
)

// Member is one seat in a room.
type Member struct {
	Name string
	Conn Peer
}

// Room is a matchmaking group for one game. All fields are guarded by the
// Manager lock.
type Room struct {
	ID       string
	GameID   int
	GameName string
	// Version is pinned at creation to the catalog version of the time.
	Version  string
	GamePath string

	HostName string
	HostConn Peer

	Members    []Member
	Status     RoomStatus
	MinPlayers int
	MaxPlayers int

	// Port and Process are set only while playing.
	Port    int
	Process supervisor.Handle
}

func (r *Room) hasConnUnsafe(conn Peer) bool {
	for _, m := range r.Members {
		if m.Conn == conn {
			return true
		}
	}
	return false
}

// removeConnUnsafe drops every seat held by conn and reports whether any was
// held.
func (r *Room) removeConnUnsafe(conn Peer) bool {
	kept := r.Members[:0]
	for _, m := range r.Members {
		if m.Conn != conn {
			kept = append(kept, m)
		}
	}
	removed := len(kept) != len(r.Members)
	// clear the tail so dropped peers are not retained
	for i := len(kept); i < len(r.Members); i++ {
		r.Members[i] = Member{}
	}
	r.Members = kept
	return removed
}

func (r *Room) namesUnsafe() []string {
	names := make([]string, len(r.Members))
	for i, m := range r.Members {
		names[i] = m.Name
	}
	return names
}

func (r *Room) peersUnsafe() []Peer {
	peers := make([]Peer, len(r.Members))
	for i, m := range r.Members {
		peers[i] = m.Conn
	}
	return peers
}

// shouldCloseUnsafe holds when the host has no seat or nobody is left.
func (r *Room) shouldCloseUnsafe() bool {
	return len(r.Members) == 0 || !r.hasConnUnsafe(r.HostConn)
}

func (r *Room) summaryUnsafe() protocol.RoomSummary {
	return protocol.RoomSummary{
		RoomID:   r.ID,
		GameName: r.GameName,
		Version:  r.Version,
		Host:     r.HostName,
		Players:  fmt.Sprintf("%d/%d", len(r.Members), r.MaxPlayers),
	}
}
