package utils

import "github.com/google/uuid"

// GenMessageID returns a new message identifier.
func GenMessageID() string { return "msg_" + uuid.NewString() }

// GenOfferID returns a new offer identifier.
func GenOfferID() string { return "offer_" + uuid.NewString() }

// GenConnID returns a new live-connection identifier. Connection ids act
// as epochs: a stale disconnect cleanup carries the id it belonged to and
// is ignored if a newer connection has superseded it.
func GenConnID() string { return uuid.NewString() }
