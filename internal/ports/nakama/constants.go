package nakama

const (
	// RpcQuickMatch is the Nakama RPC id clients call to find or create a waiting match.
	RpcQuickMatch = "quick_match"

	// MatchNameDobble is the authoritative match handler name registered with Nakama.
	MatchNameDobble = "dobble_match"

	// GameLabel tags our matches in the label so quick match can filter on it.
	GameLabel = "dobble"

	// TickRate is the number of MatchLoop calls per second.
	TickRate = 5
)

// Op codes for client messages and server events.
const (
	// Client -> Server
	OpStartGame int64 = 1
	OpChoose    int64 = 2 // JSON body {"symbolId", "card"}

	// Server -> Client events, JSON bodies
	OpGameCard     int64 = 101
	OpPlayerCard   int64 = 102 // send privately
	OpBan          int64 = 103 // send privately
	OpResult       int64 = 104 // send privately
	OpPlayerJoined int64 = 105
	OpPlayerLeft   int64 = 106
	OpError        int64 = 107
)
