package nakama

import (
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"dobble/internal/app"
	"dobble/internal/domain"
)

// opCodeForEvent maps session events to server op codes.
func opCodeForEvent(kind app.EventKind) (int64, bool) {
	switch kind {
	case app.EventGameCard:
		return OpGameCard, true
	case app.EventPlayerCard:
		return OpPlayerCard, true
	case app.EventBan:
		return OpBan, true
	case app.EventResult:
		return OpResult, true
	case app.EventPlayerJoined:
		return OpPlayerJoined, true
	case app.EventPlayerLeft:
		return OpPlayerLeft, true
	default:
		return 0, false
	}
}

// MatchLabel is the searchable label of a match.
type MatchLabel struct {
	Open    bool
	Status  domain.Status
	Players int
}

// Marshal renders the label as the JSON object Nakama indexes.
func (l MatchLabel) Marshal() (string, error) {
	st, err := structpb.NewStruct(map[string]interface{}{
		"open":    l.Open,
		"game":    GameLabel,
		"status":  string(l.Status),
		"players": l.Players,
	})
	if err != nil {
		return "", err
	}
	b, err := (&protojson.MarshalOptions{EmitUnpopulated: true}).Marshal(st)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
