package ingest

import (
	"encoding/base64"
	"fmt"

	"google.golang.org/protobuf/proto"
)

func unmarshalInto(payload []byte, msg proto.Message) error {
	if err := proto.Unmarshal(payload, msg); err != nil {
		return fmt.Errorf("ingest: unmarshal %T: %w", msg, err)
	}
	return nil
}

func b64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}
