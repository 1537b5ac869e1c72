package mocksaby

import (
	"sync"
)

// Theme is a seeded CRM lead theme.
type Theme struct {
	ID         int64
	Name       string
	Regulation int64
}

// Lead is a deal stored by the mock.
type Lead struct {
	DocumentID int64
	UUID       string
	Regulation int64
	State      string
	Note       string
}

// FailureInjection controls simulated CRM failures.
type FailureInjection struct {
	// AuthStatus, when non-zero, makes the authorization endpoint return
	// this HTTP status instead of a token.
	AuthStatus int

	// RejectTokens makes the service endpoint answer 401 to every call,
	// simulating a server-side token revocation.
	RejectTokens bool

	// RPCErrorCode and RPCErrorMessage, when the code is non-zero, make
	// every method call return a JSON-RPC error object.
	RPCErrorCode    int
	RPCErrorMessage string
}

// state is the mutable mock state, guarded by mu.
type state struct {
	mu sync.RWMutex

	themes  map[string]Theme
	leads   map[int64]*Lead
	clients map[string]string // "inn/kpp" -> face ID

	tokens    map[string]bool
	authCalls int
	nextToken int64
	nextDocID int64

	failures FailureInjection
}

func newState() *state {
	return &state{
		themes:    make(map[string]Theme),
		leads:     make(map[int64]*Lead),
		clients:   make(map[string]string),
		tokens:    make(map[string]bool),
		nextDocID: 1000,
	}
}

func clientKey(inn, kpp string) string {
	return inn + "/" + kpp
}
