package solver

import (
	"fmt"

	"github.com/firasghr/powcaptcha/challenge"
	"github.com/firasghr/powcaptcha/hasher"
	"github.com/firasghr/powcaptcha/progress"
)

// scan hashes count candidates of the sequence start, start+stride, ... and
// returns the first solution, the next nonce of the sequence, and how many
// hashes ran.
func scan(hash hasher.Func, c challenge.Challenge, start, stride, count uint64) (sol challenge.Solution, next uint64, hashed uint64, found bool) {
	nonce := start
	for hashed < count {
		digest := hash(hasher.Input(c.Puzzle, nonce))
		hashed++
		if hasher.MeetsDifficulty(digest, c.Difficulty) {
			return challenge.Solution{Puzzle: c.Puzzle, Nonce: nonce, Digest: digest}, nonce + stride, hashed, true
		}
		nonce += stride
	}
	return challenge.Solution{}, nonce, hashed, false
}

// safeScan is scan with a panic turned into an error.
func safeScan(hash hasher.Func, c challenge.Challenge, start, stride, count uint64) (sol challenge.Solution, next, hashed uint64, found bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("search panicked at nonce %d: %v", start+hashed*stride, r)
		}
	}()
	sol, next, hashed, found = scan(hash, c, start, stride, count)
	return sol, next, hashed, found, nil
}

func progressEvent(attempts uint64, difficulty int) Event {
	return Event{Progress: Progress{
		Attempts: attempts,
		Percent:  progress.Estimate(attempts, difficulty),
	}}
}

func terminal(o Outcome) Event {
	return Event{Outcome: &o}
}
