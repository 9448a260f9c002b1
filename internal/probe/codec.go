package probe

import (
	"BehaviorSpectra/internal/model"
	"fmt"
	"strconv"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Field names of the wire representation of an event.
const (
	fieldType       = "type"
	fieldTid        = "tid"
	fieldTimestamp  = "timestamp"
	fieldAttributes = "attributes"
	fieldLineage    = "lineage"
)

// EventToStruct converts evt to its wire representation.
func EventToStruct(evt *model.Event) (*structpb.Struct, error) {
	attrs := make(map[string]any, len(evt.Attributes))
	for k, v := range evt.Attributes {
		attrs[k] = v
	}
	lineage := make([]any, len(evt.Lineage))
	for i, name := range evt.Lineage {
		lineage[i] = name
	}
	fields := map[string]any{
		fieldType:       evt.Type,
		fieldTid:        evt.Tid,
		fieldAttributes: attrs,
		fieldLineage:    lineage,
	}
	if !evt.Timestamp.IsZero() {
		fields[fieldTimestamp] = evt.Timestamp.Format(time.RFC3339Nano)
	}
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to build event struct: %w", err)
	}
	return s, nil
}

// EventFromStruct converts a wire representation back to an event. Attribute values that are not
// strings are formatted as strings.
func EventFromStruct(s *structpb.Struct) (*model.Event, error) {
	f := s.GetFields()
	evt := &model.Event{Type: f[fieldType].GetStringValue()}
	if evt.Type == "" {
		return nil, fmt.Errorf("event without %q", fieldType)
	}

	if v, ok := f[fieldTid]; ok {
		tid, err := int64Value(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %q: %w", fieldTid, err)
		}
		evt.Tid = tid
	}
	if ts := f[fieldTimestamp].GetStringValue(); ts != "" {
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("invalid %q: %w", fieldTimestamp, err)
		}
		evt.Timestamp = t
	} else {
		evt.Timestamp = time.Now()
	}

	if attrs := f[fieldAttributes].GetStructValue(); attrs != nil {
		evt.Attributes = make(map[string]string, len(attrs.GetFields()))
		for k, v := range attrs.GetFields() {
			evt.Attributes[k] = stringValue(v)
		}
	}
	for _, v := range f[fieldLineage].GetListValue().GetValues() {
		evt.Lineage = append(evt.Lineage, stringValue(v))
	}
	return evt, nil
}

// EncodeEvent serializes evt to protobuf binary.
func EncodeEvent(evt *model.Event) ([]byte, error) {
	s, err := EventToStruct(evt)
	if err != nil {
		return nil, err
	}
	return proto.Marshal(s)
}

// DecodeEvent parses an event serialized by EncodeEvent.
func DecodeEvent(data []byte) (*model.Event, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	return EventFromStruct(&s)
}

// DecodeEventJSON parses the protojson form of an event, as accepted by the HTTP API.
func DecodeEventJSON(data []byte) (*model.Event, error) {
	var s structpb.Struct
	if err := protojson.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event JSON: %w", err)
	}
	return EventFromStruct(&s)
}

func int64Value(v *structpb.Value) (int64, error) {
	switch k := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		return int64(k.NumberValue), nil
	case *structpb.Value_StringValue:
		return strconv.ParseInt(k.StringValue, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected value %v", v)
	}
}

func stringValue(v *structpb.Value) string {
	switch k := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		return k.StringValue
	case *structpb.Value_NumberValue:
		return strconv.FormatFloat(k.NumberValue, 'f', -1, 64)
	case *structpb.Value_BoolValue:
		return strconv.FormatBool(k.BoolValue)
	default:
		return ""
	}
}
