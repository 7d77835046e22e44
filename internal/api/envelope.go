package api

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/vovakirdan/marketchat/internal/core"
)

// decodeList accepts the two list shapes the backend uses: a bare JSON array, or a
// paginated object with a "results" array. Anything else is core.ErrMalformedResponse.
func decodeList[T any](body []byte) ([]T, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty body", core.ErrMalformedResponse)
	}

	switch trimmed[0] {
	case '[':
		var items []T
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrMalformedResponse, err)
		}
		return items, nil
	case '{':
		var env struct {
			Results json.RawMessage `json:"results"`
		}
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrMalformedResponse, err)
		}
		results := bytes.TrimSpace(env.Results)
		if len(results) == 0 || results[0] != '[' {
			return nil, fmt.Errorf("%w: object without a results array", core.ErrMalformedResponse)
		}
		var items []T
		if err := json.Unmarshal(results, &items); err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrMalformedResponse, err)
		}
		return items, nil
	default:
		return nil, fmt.Errorf("%w: unexpected list payload", core.ErrMalformedResponse)
	}
}
