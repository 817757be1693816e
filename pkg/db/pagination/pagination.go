package pagination

import (
	"encoding/base64"
	"encoding/json"
)

type Pagination struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size,default=50" validate:"gte=1,lte=250"` // Min 1, Max 250
}

// Cursor marks the position after the last row of a page. The pair mirrors
// the stable sort key (last_seen_at DESC, job_fingerprint ASC) so a page
// traversal never skips or duplicates rows under concurrent inserts.
type Cursor struct {
	LastSeenAt  string `json:"last_seen_at,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
}

type PageInfo struct {
	NextPageToken string `json:"next_page_token"`
	HasMore       bool   `json:"has_more"`
}

func EncodeCursor(data Cursor) (string, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return "", err
	}

	return base64.StdEncoding.EncodeToString(b), nil
}

func DecodeCursor(data string) (*Cursor, error) {
	b, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, err
	}

	var cursor Cursor
	if err := json.Unmarshal(b, &cursor); err != nil {
		return nil, err
	}

	return &cursor, nil
}

func BuildCursorPageInfo[T any](data []*T, limit int, extractCursor func(*T) (string, error)) (*PageInfo, []*T, error) {
	if len(data) == 0 {
		return &PageInfo{HasMore: false}, data, nil
	}

	hasMore := false
	if len(data) > limit {
		hasMore = true
		data = data[:limit]
	}

	token, err := extractCursor(data[len(data)-1])
	if err != nil {
		return nil, nil, err
	}

	return &PageInfo{
		HasMore:       hasMore,
		NextPageToken: token,
	}, data, nil
}
