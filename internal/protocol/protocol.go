// Package protocol defines the JSON frames exchanged with game clients.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"

	"github.com/mitchellh/mapstructure"

	"dobble/internal/app"
	"dobble/internal/domain"
)

// Inbound frame types.
const (
	TypeChoose  = "choose"
	TypeStart   = "start"
	TypeTrigger = "trigger"
)

// Frames the server sends to a single client outside the session events.
const (
	TypeError   = "error"
	TypeWelcome = "welcome"
)

var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrUnknownType    = errors.New("unknown frame type")
	ErrUnknownEvent   = errors.New("unknown event kind")
)

// Choose is a player's claim that SymbolID appears on the table card.
type Choose struct {
	SymbolID int   `json:"symbolId" mapstructure:"symbolId"`
	Card     []int `json:"card" mapstructure:"card"`
}

// ClaimedCard returns the card the client says it played, nil when none was sent.
func (c Choose) ClaimedCard() domain.Card {
	if len(c.Card) == 0 {
		return nil
	}
	return domain.Card(c.Card)
}

// Inbound is a decoded client frame. Choose is set only for TypeChoose.
type Inbound struct {
	Type   string
	Choose *Choose
}

// IsStart reports whether the frame asks for the session to start.
func (in Inbound) IsStart() bool {
	return in.Type == TypeStart || in.Type == TypeTrigger
}

// DecodeInbound parses a `{"type": ...}` frame.
func DecodeInbound(data []byte) (Inbound, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	kind, _ := raw["type"].(string)
	switch kind {
	case TypeStart, TypeTrigger:
		return Inbound{Type: kind}, nil
	case TypeChoose:
		choose, err := DecodeChoose(raw)
		if err != nil {
			return Inbound{}, err
		}
		return Inbound{Type: kind, Choose: &choose}, nil
	default:
		return Inbound{}, fmt.Errorf("%w: %q", ErrUnknownType, kind)
	}
}

// DecodeChoose converts a loosely typed choose payload. Numeric strings are accepted
// for the symbol id and card entries.
func DecodeChoose(raw map[string]interface{}) (Choose, error) {
	if v, ok := raw["symbolId"]; !ok || v == nil {
		return Choose{}, fmt.Errorf("%w: missing symbolId", ErrMalformedFrame)
	}
	var out Choose
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: stringToIntHookFunc(),
		Result:     &out,
	})
	if err != nil {
		return Choose{}, err
	}
	if err := decoder.Decode(raw); err != nil {
		return Choose{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return out, nil
}

// DecodeChooseJSON parses a bare choose body, as sent on transports that carry the
// frame type out of band.
func DecodeChooseJSON(data []byte) (Choose, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Choose{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return DecodeChoose(raw)
}

func stringToIntHookFunc() mapstructure.DecodeHookFunc {
	return func(from reflect.Kind, to reflect.Kind, data interface{}) (interface{}, error) {
		if from == reflect.String && to == reflect.Int {
			return strconv.Atoi(data.(string))
		}
		return data, nil
	}
}

// Payload converts an event into its wire body, without the type tag.
func Payload(ev app.Event) (map[string]interface{}, error) {
	switch p := ev.Payload.(type) {
	case app.GameCardPayload:
		return map[string]interface{}{"card": cardOrEmpty(p.Card)}, nil
	case app.PlayerCardPayload:
		return map[string]interface{}{"card": cardOrEmpty(p.Card)}, nil
	case app.BanPayload:
		return map[string]interface{}{
			"banEndDate": p.BanEndDate.UnixMilli(),
			"banLevel":   p.BanLevel.Milliseconds(),
		}, nil
	case app.ResultPayload:
		return map[string]interface{}{"result": p.Result}, nil
	case app.PlayerJoinedPayload:
		return map[string]interface{}{"playerId": p.PlayerID, "name": p.Name, "players": p.Players}, nil
	case app.PlayerLeftPayload:
		return map[string]interface{}{"playerId": p.PlayerID, "players": p.Players}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, ev.Kind)
	}
}

// EncodeEvent renders the payload only, as sent on transports that tag frames out of band.
func EncodeEvent(ev app.Event) ([]byte, error) {
	body, err := Payload(ev)
	if err != nil {
		return nil, err
	}
	return json.Marshal(body)
}

// EncodeFrame renders an event as a self-describing `{"type": kind, ...}` frame.
func EncodeFrame(ev app.Event) ([]byte, error) {
	body, err := Payload(ev)
	if err != nil {
		return nil, err
	}
	body["type"] = string(ev.Kind)
	return json.Marshal(body)
}

// EncodeError renders an error frame for a single client.
func EncodeError(msg string) []byte {
	data, _ := json.Marshal(map[string]string{"type": TypeError, "message": msg})
	return data
}

// EncodeWelcome tells a newly admitted client the id it plays under.
func EncodeWelcome(peerID, name string) []byte {
	data, _ := json.Marshal(map[string]string{"type": TypeWelcome, "playerId": peerID, "name": name})
	return data
}

func cardOrEmpty(c domain.Card) []int {
	if c == nil {
		return []int{}
	}
	return []int(c)
}
