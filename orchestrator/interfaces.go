package orchestrator

import (
	"context"

	"github.com/firasghr/powcaptcha/challenge"
	"github.com/firasghr/powcaptcha/token"
)

//go:generate mockgen -source=interfaces.go -destination=./orchestrator_mock.go -package=orchestrator

// ChallengeClient is the remote verification service.  *challenge.Client
// implements it.
type ChallengeClient interface {
	RequestChallenge(ctx context.Context) (challenge.Challenge, error)
	VerifySolution(ctx context.Context, sol challenge.Solution) (challenge.Receipt, error)
}

// Listener receives the events of one attempt: any number of OnProgress
// calls with non-decreasing values, then exactly one of OnDone or OnFailed.
// A canceled attempt stops reporting when Cancel returns.
//
// Listener methods run on the attempt's goroutine and must not call Cancel.
type Listener interface {
	OnProgress(percent float64)
	OnDone(tok token.Token)
	OnFailed(err error)
}
