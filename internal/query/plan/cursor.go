package plan

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/aquadoggo-go/aquadoggo/internal/types"
)

// Cursor is the opaque pagination token calls for: the last
// row's ordering-key value plus its document_view_id, so the next page's
// WHERE clause can resume with a strictly monotone row-value comparison
// "(order_key, view_id) > (cursor.order_key, cursor.view_id)".
type Cursor struct {
	OrderKey string       `json:"k"`
	ViewID   types.ViewID `json:"v"`
}

// EncodeCursor renders c as the opaque string handed back in Result.EndCursor.
func EncodeCursor(c Cursor) string {
	b, err := json.Marshal(c)
	if err != nil {
		// Cursor has no types that can fail to marshal.
		panic(fmt.Sprintf("plan: encode cursor: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// DecodeCursor parses a cursor previously produced by EncodeCursor.
func DecodeCursor(s string) (Cursor, error) {
	var c Cursor
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return c, fmt.Errorf("plan: malformed cursor: %w", err)
	}
	if err := json.Unmarshal(b, &c); err != nil {
		return c, fmt.Errorf("plan: malformed cursor: %w", err)
	}
	return c, nil
}
