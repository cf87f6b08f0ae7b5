package serializer

import (
	"github.com/ValentinKolb/hashserv/rpc/common"
	"github.com/fxamacker/cbor/v2"
)

// cborEncMode uses Core Deterministic Encoding, so equal messages produce
// equal bytes. Timestamps keep their nanoseconds.
var cborEncMode cbor.EncMode

var cborDecMode cbor.DecMode

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano
	cborEncMode, err = encOptions.EncMode()
	if err != nil {
		panic("serializer: CBOR encoder initialization failed: " + err.Error())
	}

	cborDecMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("serializer: CBOR decoder initialization failed: " + err.Error())
	}
}

// NewCBORSerializer creates a new serializer using CBOR (RFC 8949)
func NewCBORSerializer() IRPCSerializer {
	return &cborSerializerImpl{}
}

// cborSerializerImpl implements the IRPCSerializer interface using cbor encoding.
// Field names follow the json tags of Message.
type cborSerializerImpl struct {
}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (c cborSerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	return cborEncMode.Marshal(msg)
}

func (c cborSerializerImpl) Deserialize(b []byte, msg *common.Message) error {
	return cborDecMode.Unmarshal(b, msg)
}
