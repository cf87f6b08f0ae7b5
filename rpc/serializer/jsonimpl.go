package serializer

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/ValentinKolb/hashserv/rpc/common"
)

// NewJSONSerializer creates a new serializer using json encoding
func NewJSONSerializer() IRPCSerializer {
	return &jsonSerializerImpl{}
}

// jsonSerializerImpl writes one json object per frame. Siginfo and other
// free text fields are written without html escaping.
type jsonSerializerImpl struct {
}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (j jsonSerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(msg); err != nil {
		return nil, err
	}
	// Encode terminates the object with a newline
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func (j jsonSerializerImpl) Deserialize(b []byte, msg *common.Message) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	if err := dec.Decode(msg); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("json: trailing data after message")
	}
	return nil
}
