package store

// Stats holds the store's runtime counters.
//
// Hits and Misses are counted on Get only; Exists is a probe and stays out
// of the hit ratio. Expired counts entries dropped on observation or by the
// sweeper, Evictions counts entries pushed out by the capacity bound.
//
// The fields are updated under the store mutex; Stats() returns a snapshot.
type Stats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
	Expired   uint64 `json:"expired"`
}
