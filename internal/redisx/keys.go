package redisx

import "time"

const (
	// Idempotency for offer creation: idem:offer:create:{external_ref} -> offer_id
	KeyIdemOfferCreate = "idem:offer:create:%s"

	// Cache offer status: offer_status:{offer_id} -> {"status": "...", "number": "..."}
	KeyOfferStatus = "offer_status:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
