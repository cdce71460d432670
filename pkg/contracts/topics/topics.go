package topics

const (
	// Eventos do race-engine (Kafka)
	RaceEvents = "race_events"

	// DLQs
	RaceEventsDLQ = "race_events_dlq"

	// Canal Redis Pub/Sub para fan-out de baixa latência aos reconcilers
	RaceEventsBroadcast = "race_events_broadcast"
)
