package yespay

import "encoding/json"

// ParseWebhook decodes a verified webhook body. The backend posts the
// same payload shape it pushes over the PubNub feed.
func ParseWebhook(body []byte) (*Transaction, error) {
	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, err
	}

	return p.ToDomain()
}
