package metrics

// Pre-defined metrics for zkbatch. All metrics live in DefaultRegistry so
// they are globally accessible without passing a registry around.

var (
	// ---- Leaf proving ----

	// LeavesProved counts messages that produced a leaf proof.
	LeavesProved = DefaultRegistry.Counter("aggregator.leaves_proved")
	// LeavesDropped counts messages rejected by the validity predicate.
	LeavesDropped = DefaultRegistry.Counter("aggregator.leaves_dropped")
	// LeafProveTime records leaf proving latency in milliseconds.
	LeafProveTime = DefaultRegistry.Histogram("aggregator.leaf_prove_ms")

	// ---- Merging ----

	// Merges counts successful merge calls.
	Merges = DefaultRegistry.Counter("zkprogram.merges")
	// DuplicatesSkipped counts merges whose candidate was a duplicate or stale.
	DuplicatesSkipped = DefaultRegistry.Counter("zkprogram.duplicates_skipped")
	// MergeFailures counts merges aborted by verification or claim mismatch.
	MergeFailures = DefaultRegistry.Counter("zkprogram.merge_failures")
	// MergeTime records merge latency in milliseconds.
	MergeTime = DefaultRegistry.Histogram("zkprogram.merge_ms")

	// ---- Admission ----

	// AdmissionUpdates counts update transactions applied.
	AdmissionUpdates = DefaultRegistry.Counter("admission.updates")
	// AdmissionRejected counts update transactions that failed verification.
	AdmissionRejected = DefaultRegistry.Counter("admission.rejected")
	// HighestMessageNumber tracks the stored batch state.
	HighestMessageNumber = DefaultRegistry.Gauge("admission.highest_message_number")
)
