package redis

// Redis key naming conventions for aether data.
// All keys are prefixed with "aether:" to avoid collisions.

const keyPrefix = "aether:"

// jobKey returns the key for a job hash: aether:job:{id}
func jobKey(id string) string { return keyPrefix + "job:" + id }

// queueKey returns the Sorted Set key for a queue: aether:pending:{name}
func queueKey(name string) string { return keyPrefix + "pending:" + name }

// jobIDsKey is the Set tracking all job IDs for enumeration.
const jobIDsKey = keyPrefix + "job_ids"
