package serializer

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/ValentinKolb/hashserv/rpc/common"
)

// NewGOBSerializer creates a new serializer using Go's binary gob format
func NewGOBSerializer() IRPCSerializer {
	return &gobSerializerImpl{}
}

// gobSerializerImpl encodes every message as a self-contained gob stream,
// type information included, because frames are decoded independently
type gobSerializerImpl struct {
}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (g gobSerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(msg); err != nil {
		return nil, fmt.Errorf("gob: failed to encode %s message: %w", msg.MsgType, err)
	}
	return buf.Bytes(), nil
}

func (g gobSerializerImpl) Deserialize(b []byte, msg *common.Message) error {
	if len(b) == 0 {
		return fmt.Errorf("gob: empty frame")
	}
	r := bytes.NewReader(b)
	if err := gob.NewDecoder(r).Decode(msg); err != nil {
		return fmt.Errorf("gob: failed to decode message: %w", err)
	}
	if r.Len() > 0 {
		return fmt.Errorf("gob: %d bytes of trailing data after message", r.Len())
	}
	return nil
}
