package replay

import (
	"fmt"
	"strconv"
	"time"

	"github.com/ndn-io/sec2/pkg/ndnsec/name"
)

// MinimumCommandInterestSize is MINIMUM_SIZE from spec.md §4.11: a
// command Interest name must carry at least a timestamp, a SignatureInfo,
// and a SignatureValue component after its (possibly empty) base name.
const MinimumCommandInterestSize = 3

// posTimestampFromEnd is POS_TIMESTAMP expressed as an offset from the
// end of the name: the timestamp is the third-from-last component,
// counting the trailing SignatureInfo and SignatureValue components
// (spec.md §4.11).
const posTimestampFromEnd = 3

// TimestampComponentIndex returns the index of the timestamp component
// within a name of size n, or false if n is too short.
func TimestampComponentIndex(n int) (int, bool) {
	if n < MinimumCommandInterestSize {
		return 0, false
	}
	return n - posTimestampFromEnd, true
}

// ParseTimestampComponent decodes a command Interest's timestamp
// component, encoded as the ASCII decimal count of milliseconds since
// the Unix epoch — the convention this module uses in place of the full
// NDN TLV number encoding, which is out of scope (spec.md §1).
func ParseTimestampComponent(c name.Component) (time.Time, error) {
	ms, err := strconv.ParseInt(string(c), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed command Interest timestamp: %w", err)
	}
	return time.UnixMilli(ms), nil
}

// FormatTimestampComponent is ParseTimestampComponent's inverse, used by
// test helpers and command-Interest signers.
func FormatTimestampComponent(t time.Time) name.Component {
	return name.Component(strconv.FormatInt(t.UnixMilli(), 10))
}
