package intake

// Field returns the value for key and whether it is present. It never
// mutates the payload.
func Field(payload map[string]any, key string) (any, bool) {
	v, ok := payload[key]
	return v, ok
}

// Fields projects the given keys out of the payload. Absent keys are omitted
// from the result rather than mapped to nil.
func Fields(payload map[string]any, keys ...string) map[string]any {
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		if v, ok := payload[k]; ok {
			out[k] = v
		}
	}
	return out
}
