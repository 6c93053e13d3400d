package utils

import (
	"math/rand/v2"
	"strconv"
	"strings"
)

const (
	sessionFragmentLen = 11
	// 36^11, the number of distinct 11-digit base-36 fragments.
	sessionFragmentSpace uint64 = 131621703842267136
)

// NewSessionID returns a per-page-load session token made of two independent
// base-36 fragments. It is not a secret and is never persisted.
func NewSessionID() string {
	return sessionFragment() + sessionFragment()
}

func sessionFragment() string {
	s := strconv.FormatUint(rand.Uint64N(sessionFragmentSpace), 36)
	if len(s) < sessionFragmentLen {
		s = strings.Repeat("0", sessionFragmentLen-len(s)) + s
	}
	return s
}
