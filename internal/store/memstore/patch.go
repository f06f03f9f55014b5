package memstore

import "encoding/json"

// patchDocument applies a shallow field patch to a JSON object, mirroring the
// jsonb merge the PostgreSQL store performs server-side.
func patchDocument(fields []byte, patch map[string]any) ([]byte, error) {
	obj := make(map[string]any)
	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &obj); err != nil {
			return nil, err
		}
	}
	for k, v := range patch {
		obj[k] = v
	}
	return json.Marshal(obj)
}
