package offers

const (
	TopicOfferCreated       = "offer.created"
	TopicOfferStatusChanged = "offer.status_changed"
)

// Partition key = offer_id so every event of one offer stays ordered.
func PartitionKey(offerID string) []byte { return []byte(offerID) }
