package filesystem

import "encoding/json"

func mustMarshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

func unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
