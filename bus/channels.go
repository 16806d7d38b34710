package bus

// Well-known channel names. The dataset store serves the get/update tag
// channels, the updater serves the database channels; both broadcast their
// notification channels. Payload contracts are documented on the serving
// component.
const (
	// ChanGetTag: request/reply. Payload: fullKey string.
	// Reply: *dataset.TagEntry, nil when unknown.
	ChanGetTag = "get-tag"

	// ChanGetTagMap: request/reply. Payload: dataset.TagMapRequest.
	// Reply: dataset.TagMapReply; Map is nil when the caller's sha already
	// matches (long-poll-style short circuit).
	ChanGetTagMap = "get-tag-map"

	// ChanGetTagSHA: request/reply. Payload: ignored. Reply: string, the
	// current snapshot's content identity ("" before first ingest).
	ChanGetTagSHA = "get-tag-sha"

	// ChanUpdateTag: request/reply. Payload: []byte raw dataset payload.
	// Reply: string, the ingested content identity. Ingest trigger.
	ChanUpdateTag = "update-tag"

	// ChanTagUpdated: broadcast, fired after every successful ingest.
	// Payload: string, the new content identity.
	ChanTagUpdated = "tag-updated"

	// ChanCheckDatabase: request/reply. Payload: updater.CheckRequest.
	// Reply: *updater.CheckResult.
	ChanCheckDatabase = "check-database"

	// ChanUpdateDatabase: request/reply. Payload: updater.UpdateRequest.
	// Reply: *updater.CheckResult, nil when the dataset was already current.
	ChanUpdateDatabase = "update-database"

	// ChanUpdatingDatabase: broadcast, repeated while an update runs.
	// Payload: updater.Progress.
	ChanUpdatingDatabase = "updating-database"
)
