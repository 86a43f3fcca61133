package lookout

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// KeySeparator joins the natural key fields of a synthetic key.
// It is not escaped, so ("a-b", "c") and ("a", "b-c") produce the same key.
const KeySeparator = "-"

func joinKey(parts ...string) string {
	return strings.Join(parts, KeySeparator)
}

// GenerateTestCaseID returns the synthetic key of a test case
func GenerateTestCaseID(appID, lookoutID string) string {
	return joinKey(appID, lookoutID)
}

// GenerateRequestID returns the synthetic key of a request
func GenerateRequestID(appID, eventID string) string {
	return joinKey(appID, eventID)
}

// GenerateRequestExecutionID returns the synthetic key of one request observed under one execution
func GenerateRequestExecutionID(executionID, requestID string) string {
	return joinKey(executionID, requestID)
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// GenerateTestExecutionID returns test case id followed by a ULID.
// ULIDs generated in the same millisecond are monotonic, but the id is still
// only meant to be unique enough for a single inventory.
func GenerateTestExecutionID(testCaseID string) string {
	entropyMu.Lock()
	id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
	entropyMu.Unlock()

	return joinKey(testCaseID, id.String())
}
