package events

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"
)

// FlexString aceita string ou número no JSON (ids e placares chegam dos dois jeitos).
// null vira string vazia.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	case '{', '[':
		return fmt.Errorf("flex string: unexpected value %s", b)
	}
	// número ou booleano: mantém o literal
	*f = FlexString(b)
	return nil
}

func (f FlexString) String() string { return string(f) }
