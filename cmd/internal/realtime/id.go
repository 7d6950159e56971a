package realtime

import (
	"time"

	"github.com/cracked-sourcecode/QuoteBidV1-sub008/cmd/identity/ids"
)

// newEnvelopeID falls back to an empty id; envelopes without one are still valid.
func newEnvelopeID(now time.Time) string {
	id, err := ids.NewULID(now)
	if err != nil {
		return ""
	}
	return id
}
