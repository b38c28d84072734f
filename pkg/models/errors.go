package models

import "errors"

// ErrInvalidSession is returned for any bad, expired, or revoked session
// credential. Deliberately detail-free: nothing that aids guessing.
var ErrInvalidSession = errors.New("invalid session")

// ErrTokenUnavailable is returned when a credential identity has no
// serviceable token (refresh failures exhausted, or identity unknown).
var ErrTokenUnavailable = errors.New("no token available")

// ErrUpstreamUnavailable indicates the identity provider or the visibility
// endpoint could not be reached within its timeout.
var ErrUpstreamUnavailable = errors.New("upstream unavailable")
