// internal/protocol/messages.go
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/jason-s-yu/arcade/internal/errs"
)

// Command names the request kind carried in the "cmd" field.
type Command string

const (
	CmdAuthLogin     Command = "auth_login"
	CmdAuthRegister  Command = "auth_register"
	CmdListGames     Command = "list_games"
	CmdGetGameDetail Command = "get_game_detail"
	CmdRateGame      Command = "rate_game"
	CmdDownloadGame  Command = "download_game"
	CmdCreateRoom    Command = "create_room"
	CmdListRooms     Command = "list_rooms"
	CmdJoinRoom      Command = "join_room"
	CmdStartGame     Command = "start_game"
	CmdLeaveRoom     Command = "leave_room"
)

// Push message names. Pushes are unsolicited and carry "cmd" instead of
// "status".
const (
	PushRoomUpdate  = "room_update"
	PushGameStarted = "game_started"
	PushError       = "error"
)

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Request is one decoded client request. The set of implementations is
// closed; handlers switch on the concrete type.
type Request interface {
	Command() Command
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Token    string `json:"token,omitempty"`
}

type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type ListGamesRequest struct{}

type GameDetailRequest struct {
	GameID int `json:"game_id"`
}

type RateGameRequest struct {
	GameID  int    `json:"game_id"`
	Score   int    `json:"score"`
	Comment string `json:"comment"`
}

type DownloadGameRequest struct {
	GameID int `json:"game_id"`
}

type CreateRoomRequest struct {
	GameID  int    `json:"game_id"`
	Version string `json:"version"`
}

type ListRoomsRequest struct{}

type JoinRoomRequest struct {
	RoomID  string `json:"room_id"`
	Version string `json:"version"`
}

type StartGameRequest struct {
	RoomID string `json:"room_id"`
}

type LeaveRoomRequest struct {
	RoomID string `json:"room_id"`
}

func (LoginRequest) Command() Command        { return CmdAuthLogin }
func (RegisterRequest) Command() Command     { return CmdAuthRegister }
func (ListGamesRequest) Command() Command    { return CmdListGames }
func (GameDetailRequest) Command() Command   { return CmdGetGameDetail }
func (RateGameRequest) Command() Command     { return CmdRateGame }
func (DownloadGameRequest) Command() Command { return CmdDownloadGame }
func (CreateRoomRequest) Command() Command   { return CmdCreateRoom }
func (ListRoomsRequest) Command() Command    { return CmdListRooms }
func (JoinRoomRequest) Command() Command     { return CmdJoinRoom }
func (StartGameRequest) Command() Command    { return CmdStartGame }
func (LeaveRoomRequest) Command() Command    { return CmdLeaveRoom }

var decoders = map[Command]func([]byte) (Request, error){
	CmdAuthLogin:     decodeInto[LoginRequest],
	CmdAuthRegister:  decodeInto[RegisterRequest],
	CmdListGames:     decodeInto[ListGamesRequest],
	CmdGetGameDetail: decodeInto[GameDetailRequest],
	CmdRateGame:      decodeInto[RateGameRequest],
	CmdDownloadGame:  decodeInto[DownloadGameRequest],
	CmdCreateRoom:    decodeInto[CreateRoomRequest],
	CmdListRooms:     decodeInto[ListRoomsRequest],
	CmdJoinRoom:      decodeInto[JoinRoomRequest],
	CmdStartGame:     decodeInto[StartGameRequest],
	CmdLeaveRoom:     decodeInto[LeaveRoomRequest],
}

func decodeInto[T Request](data []byte) (Request, error) {
	var req T
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, err
	}
	return req, nil
}

// DecodeRequest turns one record into its typed request. All failures are
// KindProtocol errors.
func DecodeRequest(data []byte) (Request, error) {
	var env struct {
		Cmd Command `json:"cmd"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errs.Protocol("malformed message", err)
	}
	if env.Cmd == "" {
		return nil, errs.Protocol("missing cmd", nil)
	}
	decode, ok := decoders[env.Cmd]
	if !ok {
		return nil, errs.Protocol(fmt.Sprintf("unknown command %q", env.Cmd), nil)
	}
	req, err := decode(data)
	if err != nil {
		return nil, errs.Protocol(fmt.Sprintf("invalid %s fields", env.Cmd), err)
	}
	return req, nil
}

// EncodeRequest renders req with its "cmd" field, for clients and tests.
func EncodeRequest(req Request) (map[string]any, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	out["cmd"] = string(req.Command())
	return out, nil
}

// ---- replies ----

// Reply is the common part of every response.
type Reply struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// OK is a bare success reply.
func OK() Reply { return Reply{Status: StatusOK} }

// Fail is an error reply carrying a user-visible reason.
func Fail(reason string) Reply { return Reply{Status: StatusError, Reason: reason} }

type LoginReply struct {
	Reply
	Username string `json:"username"`
	Token    string `json:"token,omitempty"`
}

type RegisterReply struct {
	Reply
	Msg string `json:"msg"`
}

// GameSummary is one row of list_games.
type GameSummary struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Version string `json:"version"`
	Info    string `json:"info"`
	Min     int    `json:"min"`
	Max     int    `json:"max"`
}

type ListGamesReply struct {
	Reply
	Games []GameSummary `json:"games"`
}

type Comment struct {
	User    string `json:"user"`
	Score   int    `json:"score"`
	Comment string `json:"comment"`
	Date    string `json:"date"`
}

type GameDetail struct {
	ID          int       `json:"id"`
	Name        string    `json:"name"`
	Version     string    `json:"version"`
	Description string    `json:"description"`
	DevID       string    `json:"dev_id"`
	Type        string    `json:"type"`
	MinPlayers  int       `json:"min_players"`
	MaxPlayers  int       `json:"max_players"`
	AvgScore    float64   `json:"avg_score"`
	ReviewCount int       `json:"review_count"`
	Comments    []Comment `json:"comments"`
}

type GameDetailReply struct {
	Reply
	Detail GameDetail `json:"detail"`
}

type DownloadReply struct {
	Reply
	GameID int `json:"game_id"`
}

type CreateRoomReply struct {
	Reply
	RoomID string `json:"room_id"`
}

// RoomSummary is one row of list_rooms.
type RoomSummary struct {
	RoomID   string `json:"room_id"`
	GameName string `json:"game_name"`
	Version  string `json:"version"`
	Host     string `json:"host"`
	Players  string `json:"players"`
}

type ListRoomsReply struct {
	Reply
	Rooms []RoomSummary `json:"rooms"`
}

type JoinRoomReply struct {
	Reply
	RoomID   string `json:"room_id"`
	GameName string `json:"game_name"`
	HostName string `json:"host_name"`
}

// ---- pushes ----

type RoomUpdate struct {
	Cmd       string   `json:"cmd"`
	Players   []string `json:"players"`
	CurrCount int      `json:"curr_count"`
	MaxCount  int      `json:"max_count"`
}

type GameStarted struct {
	Cmd            string `json:"cmd"`
	GameServerIP   string `json:"game_server_ip"`
	GameServerPort int    `json:"game_server_port"`
	GameID         int    `json:"game_id"`
	GameName       string `json:"game_name"`
}

type ErrorPush struct {
	Cmd    string `json:"cmd"`
	Reason string `json:"reason"`
}

func NewRoomUpdate(players []string, max int) RoomUpdate {
	return RoomUpdate{Cmd: PushRoomUpdate, Players: players, CurrCount: len(players), MaxCount: max}
}

func NewErrorPush(reason string) ErrorPush {
	return ErrorPush{Cmd: PushError, Reason: reason}
}
