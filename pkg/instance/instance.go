package instance

import "os"

// GetID returns an identifier for the running process, preferring the
// platform-assigned one.
func GetID() string {
	if id := os.Getenv("DYNO"); id != "" {
		return id
	}
	if id := os.Getenv("WORKER_ID"); id != "" {
		return id
	}
	return "worker-0"
}
