package protocol

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"dobble/internal/app"
	"dobble/internal/domain"
)

func TestDecodeInboundChoose(t *testing.T) {
	tests := []struct {
		name     string
		frame    string
		wantID   int
		wantCard domain.Card
	}{
		{"numeric", `{"type":"choose","symbolId":3,"card":[3,1,4]}`, 3, domain.Card{3, 1, 4}},
		{"string symbol", `{"type":"choose","symbolId":"7","card":[7,0,2]}`, 7, domain.Card{7, 0, 2}},
		{"string card entries", `{"type":"choose","symbolId":1,"card":["5","0","4"]}`, 1, domain.Card{5, 0, 4}},
		{"no card", `{"type":"choose","symbolId":2}`, 2, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			in, err := DecodeInbound([]byte(tc.frame))
			if err != nil {
				t.Fatalf("DecodeInbound() error: %v", err)
			}
			if in.Type != TypeChoose || in.Choose == nil {
				t.Fatalf("decoded = %+v, want choose", in)
			}
			if in.Choose.SymbolID != tc.wantID {
				t.Fatalf("symbol = %d, want %d", in.Choose.SymbolID, tc.wantID)
			}
			if got := in.Choose.ClaimedCard(); !reflect.DeepEqual(got, tc.wantCard) {
				t.Fatalf("card = %v, want %v", got, tc.wantCard)
			}
		})
	}
}

func TestDecodeInboundStart(t *testing.T) {
	for _, frame := range []string{`{"type":"start"}`, `{"type":"trigger"}`} {
		in, err := DecodeInbound([]byte(frame))
		if err != nil {
			t.Fatalf("DecodeInbound(%s) error: %v", frame, err)
		}
		if !in.IsStart() {
			t.Fatalf("DecodeInbound(%s) not a start frame", frame)
		}
	}
}

func TestDecodeInboundErrors(t *testing.T) {
	tests := []struct {
		frame string
		want  error
	}{
		{`not json`, ErrMalformedFrame},
		{`{"type":"dance"}`, ErrUnknownType},
		{`{"symbolId":1}`, ErrUnknownType},
		{`{"type":"choose"}`, ErrMalformedFrame},
		{`{"type":"choose","symbolId":null,"card":[1,2,3]}`, ErrMalformedFrame},
		{`{"type":"choose","symbolId":"x"}`, ErrMalformedFrame},
		{`{"type":"choose","symbolId":1,"card":"nope"}`, ErrMalformedFrame},
	}
	for _, tc := range tests {
		if _, err := DecodeInbound([]byte(tc.frame)); !errors.Is(err, tc.want) {
			t.Fatalf("DecodeInbound(%s) error = %v, want %v", tc.frame, err, tc.want)
		}
	}
}

func TestEncodeFrame(t *testing.T) {
	end := time.UnixMilli(1_700_000_002_000)
	tests := []struct {
		ev   app.Event
		want string
	}{
		{
			app.Event{Kind: app.EventGameCard, Payload: app.GameCardPayload{Card: domain.Card{5, 0, 4}}},
			`{"card":[5,0,4],"type":"gameCard"}`,
		},
		{
			app.Event{Kind: app.EventPlayerCard, Payload: app.PlayerCardPayload{Card: domain.Card{6, 1, 5}}},
			`{"card":[6,1,5],"type":"playerCard"}`,
		},
		{
			app.Event{Kind: app.EventBan, Payload: app.BanPayload{BanEndDate: end, BanLevel: 2 * time.Second}},
			`{"banEndDate":1700000002000,"banLevel":2000,"type":"ban"}`,
		},
		{
			app.Event{Kind: app.EventResult, Payload: app.ResultPayload{Result: -1, WinnerID: "a"}},
			`{"result":-1,"type":"result"}`,
		},
		{
			app.Event{Kind: app.EventPlayerLeft, Payload: app.PlayerLeftPayload{PlayerID: "a", Players: 1}},
			`{"playerId":"a","players":1,"type":"playerLeft"}`,
		},
	}
	for _, tc := range tests {
		got, err := EncodeFrame(tc.ev)
		if err != nil {
			t.Fatalf("EncodeFrame(%s) error: %v", tc.ev.Kind, err)
		}
		if string(got) != tc.want {
			t.Fatalf("EncodeFrame(%s) = %s, want %s", tc.ev.Kind, got, tc.want)
		}
	}
}

func TestEncodeEventOmitsType(t *testing.T) {
	data, err := EncodeEvent(app.Event{Kind: app.EventGameCard, Payload: app.GameCardPayload{}})
	if err != nil {
		t.Fatalf("EncodeEvent() error: %v", err)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := body["type"]; ok {
		t.Fatalf("payload carries a type tag: %s", data)
	}
	if card, ok := body["card"].([]interface{}); !ok || len(card) != 0 {
		t.Fatalf("empty card = %v, want []", body["card"])
	}
}

func TestEncodeUnknownPayload(t *testing.T) {
	if _, err := EncodeFrame(app.Event{Kind: "mystery", Payload: 42}); !errors.Is(err, ErrUnknownEvent) {
		t.Fatalf("EncodeFrame() error = %v, want ErrUnknownEvent", err)
	}
}

func TestDecodeChooseJSON(t *testing.T) {
	c, err := DecodeChooseJSON([]byte(`{"symbolId":"4","card":[4,2,6]}`))
	if err != nil {
		t.Fatalf("DecodeChooseJSON() error: %v", err)
	}
	if c.SymbolID != 4 || !c.ClaimedCard().Equal(domain.Card{2, 4, 6}) {
		t.Fatalf("decoded = %+v", c)
	}
	if _, err := DecodeChooseJSON([]byte(`[]`)); !errors.Is(err, ErrMalformedFrame) {
		t.Fatalf("DecodeChooseJSON([]) error = %v, want ErrMalformedFrame", err)
	}
}

func TestEncodeErrorAndWelcome(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want map[string]string
	}{
		{"error", EncodeError("player is banned"), map[string]string{"type": "error", "message": "player is banned"}},
		{"welcome", EncodeWelcome("p-1", "Ann"), map[string]string{"type": "welcome", "playerId": "p-1", "name": "Ann"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got map[string]string
			if err := json.Unmarshal(tt.data, &got); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Fatalf("%s = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}
