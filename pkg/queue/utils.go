package queue

import (
	"encoding/json"
	"strconv"
	"time"
)

// GetString returns a string value from task data
func (t *Task) GetString(key string) string {
	if val, ok := t.Data[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

// GetInt64 returns an integer from task data. Values that went through JSON
// arrive as float64 or json.Number.
func (t *Task) GetInt64(key string) (int64, bool) {
	val, ok := t.Data[key]
	if !ok {
		return 0, false
	}
	switch v := val.(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	}
	return 0, false
}

// GetTime returns a time value from task data
func (t *Task) GetTime(key string) time.Time {
	if str := t.GetString(key); str != "" {
		if parsed, err := time.Parse(time.RFC3339, str); err == nil {
			return parsed
		}
	}
	return time.Time{}
}
