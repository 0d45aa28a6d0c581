package protocol

import (
	"encoding/json"
	"testing"

	"github.com/jason-s-yu/arcade/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRequest(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Request
	}{
		{"login", `{"cmd":"auth_login","username":"alice","password":"pw"}`, LoginRequest{Username: "alice", Password: "pw"}},
		{"login with token", `{"cmd":"auth_login","token":"abc"}`, LoginRequest{Token: "abc"}},
		{"register", `{"cmd":"auth_register","username":"bob","password":"pw"}`, RegisterRequest{Username: "bob", Password: "pw"}},
		{"list games", `{"cmd":"list_games"}`, ListGamesRequest{}},
		{"detail", `{"cmd":"get_game_detail","game_id":7}`, GameDetailRequest{GameID: 7}},
		{"rate", `{"cmd":"rate_game","game_id":7,"score":4,"comment":"fun","player_name":"ignored"}`, RateGameRequest{GameID: 7, Score: 4, Comment: "fun"}},
		{"download", `{"cmd":"download_game","game_id":3}`, DownloadGameRequest{GameID: 3}},
		{"create", `{"cmd":"create_room","game_id":7,"version":"1.2.0"}`, CreateRoomRequest{GameID: 7, Version: "1.2.0"}},
		{"list rooms", `{"cmd":"list_rooms"}`, ListRoomsRequest{}},
		{"join", `{"cmd":"join_room","room_id":"100001","version":"1.2.0"}`, JoinRoomRequest{RoomID: "100001", Version: "1.2.0"}},
		{"start", `{"cmd":"start_game","room_id":"100001"}`, StartGameRequest{RoomID: "100001"}},
		{"leave", `{"cmd":"leave_room","room_id":"100001"}`, LeaveRoomRequest{RoomID: "100001"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeRequest([]byte(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want.Command(), got.Command())
		})
	}
}

func TestDecodeRequest_Errors(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		reason string
	}{
		{"not json", `hello`, "malformed message"},
		{"no cmd", `{"room_id":"1"}`, "missing cmd"},
		{"unknown cmd", `{"cmd":"fly"}`, `unknown command "fly"`},
		{"wrong field type", `{"cmd":"create_room","game_id":"seven"}`, "invalid create_room fields"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeRequest([]byte(tt.in))
			require.Error(t, err)
			assert.True(t, errs.Is(err, errs.KindProtocol))
			assert.Equal(t, tt.reason, errs.Reason(err))
		})
	}
}

func TestEncodeRequest_RoundTrip(t *testing.T) {
	m, err := EncodeRequest(JoinRoomRequest{RoomID: "222222", Version: "2.0"})
	require.NoError(t, err)
	assert.Equal(t, "join_room", m["cmd"])

	data, err := json.Marshal(m)
	require.NoError(t, err)
	got, err := DecodeRequest(data)
	require.NoError(t, err)
	assert.Equal(t, JoinRoomRequest{RoomID: "222222", Version: "2.0"}, got)
}

func TestPushShapes(t *testing.T) {
	data, err := json.Marshal(NewRoomUpdate([]string{"alice", "bob"}, 4))
	require.NoError(t, err)
	assert.JSONEq(t, `{"cmd":"room_update","players":["alice","bob"],"curr_count":2,"max_count":4}`, string(data))

	data, err = json.Marshal(NewErrorPush("host left, room closed"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"cmd":"error","reason":"host left, room closed"}`, string(data))

	data, err = json.Marshal(Fail("Room is full"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"error","reason":"Room is full"}`, string(data))
}
