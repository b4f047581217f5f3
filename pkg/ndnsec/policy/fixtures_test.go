package policy

import (
	"github.com/ndn-io/sec2/pkg/ndnsec/cert"
	"github.com/ndn-io/sec2/pkg/ndnsec/packet"
)

func newTestCert(d packet.Data) (*cert.V2, error) {
	return cert.Decode(d)
}
