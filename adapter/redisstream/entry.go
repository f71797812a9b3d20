package redisstream

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/trickstertwo/xmsg"
)

// encodeEntry flattens msg into XADD field values.
func encodeEntry(msg *xmsg.Message) (map[string]any, error) {
	payload, err := json.Marshal(msg.Payload())
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	metadata, err := json.Marshal(msg.Metadata())
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return map[string]any{
		fieldKind:      string(msg.Kind()),
		fieldID:        msg.ID(),
		fieldCreatedAt: msg.CreatedAt().UnixMicro(),
		fieldVersion:   strconv.FormatUint(msg.Version(), 10),
		fieldPayload:   payload,
		fieldMetadata:  metadata,
	}, nil
}

// decodeEntry reconstitutes a message from stream entry values. A missing
// field fails with an error matching xmsg.ErrMalformedData.
func decodeEntry(vals map[string]any) (*xmsg.Message, error) {
	raw := make(map[string]any, 5)

	kind, ok := vals[fieldKind]
	if !ok {
		return nil, &xmsg.MalformedDataError{Field: fieldKind}
	}
	if v, ok := vals[fieldID]; ok {
		raw[xmsg.FieldID] = asString(v)
	}
	if v, ok := vals[fieldCreatedAt]; ok {
		us, ok := toInt64(v)
		if !ok {
			return nil, &xmsg.MalformedDataError{Field: xmsg.FieldCreatedAt, Reason: fmt.Sprintf("not an integer: %v", v)}
		}
		raw[xmsg.FieldCreatedAt] = time.UnixMicro(us).UTC()
	}
	if v, ok := vals[fieldVersion]; ok {
		raw[xmsg.FieldVersion] = asString(v)
	}
	for field, key := range map[string]string{fieldPayload: xmsg.FieldPayload, fieldMetadata: xmsg.FieldMetadata} {
		v, ok := vals[field]
		if !ok {
			continue
		}
		var values xmsg.Values
		if err := json.Unmarshal([]byte(asString(v)), &values); err != nil {
			return nil, &xmsg.MalformedDataError{Field: key, Reason: err.Error()}
		}
		if !values.IsZero() {
			raw[key] = values
		}
	}

	d, err := xmsg.DataFromMap(raw)
	if err != nil {
		return nil, err
	}
	return xmsg.Kind(asString(kind)).Recreate(d)
}

// Helper functions for type conversion

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return fmt.Sprintf("%v", s)
	}
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	case string:
		if n == "" {
			return 0, false
		}
		if i, err := strconv.ParseInt(n, 10, 64); err == nil {
			return i, true
		}
	case []byte:
		return toInt64(string(n))
	}
	return 0, false
}
