package utils

import (
	"math/rand"
	"sync"
	"time"
)

// ContainsString returns true iff the provided string slice hay contains string
// needle.
func ContainsString(hay []string, needle string) bool {
	for _, str := range hay {
		if str == needle {
			return true
		}
	}
	return false
}

const alphabet = "abcdefghijklmnopqrstuvwxyz"

var (
	randMu  sync.Mutex
	randSrc = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// RandomAlphabetString returns a lower case string of length n.
func RandomAlphabetString(n int) string {
	randMu.Lock()
	defer randMu.Unlock()
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[randSrc.Intn(len(alphabet))]
	}
	return string(b)
}

// Clock returns the current time. Stages take it as a dependency so tests can
// pin time.
type Clock func() time.Time

// UTCNow is the production Clock.
func UTCNow() time.Time {
	return time.Now().UTC()
}
