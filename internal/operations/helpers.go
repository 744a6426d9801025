package operations

import (
	"encoding/json"

	"github.com/microocpp-go/engine/internal/interfaces"
)

func marshalCompact(v interface{}) (json.RawMessage, error) {
	return interfaces.MarshalCompact(v)
}
