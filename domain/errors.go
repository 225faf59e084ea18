package domain

import "errors"

var (
	ErrLobbyNotFound     = errors.New("lobby-not-found")
	ErrLobbyFull         = errors.New("lobby-full")
	ErrLobbyNotAccepting = errors.New("lobby-not-accepting")
	ErrTooManyLobbies    = errors.New("too-many-lobbies")
	ErrAlreadyInLobby    = errors.New("already-in-lobby")
	ErrNotInLobby        = errors.New("not-in-lobby")
	ErrNotHost           = errors.New("not-host")
	ErrInvalidTransition = errors.New("invalid-transition")
	ErrInvalidConfig     = errors.New("invalid-config")
	ErrInternal          = errors.New("internal-error")
	ErrEngineStopped     = errors.New("engine-stopped")
	ErrBadRequest        = errors.New("bad-request")
	ErrReplayNotFound    = errors.New("replay-not-found")
)

var (
	UnexpectedDatabaseError = errors.New("unexpected-database-error")
	ErrLobbyNotPersisted    = errors.New("lobby-not-persisted")
)

var (
	ErrInvalidSigningAlg             = errors.New("invalid-signing-alg")
	ErrExpiredToken                  = errors.New("expired-token")
	ErrInvalidTokenSignature         = errors.New("invalid-token-signature")
	ErrCorruptedToken                = errors.New("corrupted-token")
	UnexpectedTokenGenerationError   = errors.New("unexpected-token-generation-error")
	UnexpectedTokenVerificationError = errors.New("unexpected-token-verification-error")
)

// Code returns the client facing error code for err. Anything that is not one of
// the sentinels above is reported as internal-error.
func Code(err error) string {
	for _, known := range []error{
		ErrLobbyNotFound, ErrLobbyFull, ErrLobbyNotAccepting, ErrTooManyLobbies,
		ErrAlreadyInLobby, ErrNotInLobby, ErrNotHost, ErrInvalidTransition,
		ErrInvalidConfig, ErrEngineStopped, ErrBadRequest, ErrReplayNotFound,
		ErrExpiredToken, ErrInvalidTokenSignature, ErrInvalidSigningAlg, ErrCorruptedToken,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return ErrInternal.Error()
}
