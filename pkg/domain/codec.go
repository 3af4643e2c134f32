package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"
)

// ErrUnsupportedStateType is returned when a state value has no persistence tag.
// Register the type with RegisterStateType.
var ErrUnsupportedStateType = errors.New("unsupported state value type")

// typedValue is the persisted form of a state value. The tag keeps Go types
// intact across a JSON round trip (ints stay ints, messages stay messages).
type typedValue struct {
	Type  string          `json:"t"`
	Value json.RawMessage `json:"v,omitempty"`
}

const (
	tagNull     = "null"
	tagString   = "string"
	tagBool     = "bool"
	tagInt      = "int"
	tagInt64    = "int64"
	tagFloat    = "float64"
	tagTime     = "time"
	tagMessage  = "message"
	tagMessages = "messages"
	tagStrings  = "strings"
	tagList     = "list"
	tagMap      = "map"
	tagState    = "state"
)

var registry = struct {
	sync.RWMutex
	tags  map[reflect.Type]string
	types map[string]reflect.Type
}{
	tags:  make(map[reflect.Type]string),
	types: make(map[string]reflect.Type),
}

// RegisterStateType makes values of T persistable under tag. T must survive an
// encoding/json round trip. Registering a tag twice for different types panics.
func RegisterStateType[T any](tag string) {
	typ := reflect.TypeFor[T]()

	registry.Lock()
	defer registry.Unlock()
	if prev, ok := registry.types[tag]; ok && prev != typ {
		panic(fmt.Sprintf("state type tag %q already registered for %v", tag, prev))
	}
	registry.tags[typ] = tag
	registry.types[tag] = typ
}

func init() {
	RegisterStateType[int8]("int8")
	RegisterStateType[int16]("int16")
	RegisterStateType[int32]("int32")
	RegisterStateType[uint]("uint")
	RegisterStateType[uint8]("uint8")
	RegisterStateType[uint16]("uint16")
	RegisterStateType[uint32]("uint32")
	RegisterStateType[uint64]("uint64")
	RegisterStateType[float32]("float32")
	RegisterStateType[time.Duration]("duration")
	RegisterStateType[[]byte]("bytes")
	RegisterStateType[[]int]("ints")
	RegisterStateType[[]int64]("int64s")
	RegisterStateType[[]float64]("floats")
	RegisterStateType[[]bool]("bools")
	RegisterStateType[[]ToolCall]("tool_calls")
	RegisterStateType[map[string]string]("string_map")
	RegisterStateType[map[string]int]("int_map")
	RegisterStateType[map[string]float64]("float_map")
}

func registeredTag(v any) (string, bool) {
	registry.RLock()
	defer registry.RUnlock()
	tag, ok := registry.tags[reflect.TypeOf(v)]
	return tag, ok
}

func registeredType(tag string) (reflect.Type, bool) {
	registry.RLock()
	defer registry.RUnlock()
	typ, ok := registry.types[tag]
	return typ, ok
}

// EncodeState serializes a State so that DecodeState restores every field's value and type.
func EncodeState(s State) ([]byte, error) {
	fields := make(map[string]typedValue, len(s))
	for k, v := range s {
		tv, err := encodeValue(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		fields[k] = tv
	}
	return json.Marshal(fields)
}

// DecodeState is the inverse of EncodeState.
func DecodeState(data []byte) (State, error) {
	var fields map[string]typedValue
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	s := make(State, len(fields))
	for k, tv := range fields {
		v, err := decodeValue(tv)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		s[k] = v
	}
	return s, nil
}

func encodeValue(v any) (typedValue, error) {
	var tag string
	var payload any = v

	switch val := v.(type) {
	case nil:
		return typedValue{Type: tagNull}, nil
	case string:
		tag = tagString
	case bool:
		tag = tagBool
	case int:
		tag = tagInt
	case int64:
		tag = tagInt64
	case float64:
		tag = tagFloat
	case time.Time:
		tag = tagTime
	case Message:
		tag = tagMessage
	case []Message:
		tag = tagMessages
	case []string:
		tag = tagStrings
	case []any:
		items := make([]typedValue, len(val))
		for i, item := range val {
			tv, err := encodeValue(item)
			if err != nil {
				return typedValue{}, fmt.Errorf("element %d: %w", i, err)
			}
			items[i] = tv
		}
		tag, payload = tagList, items
	case map[string]any:
		entries, err := encodeEntries(val)
		if err != nil {
			return typedValue{}, err
		}
		tag, payload = tagMap, entries
	case State:
		entries, err := encodeEntries(val)
		if err != nil {
			return typedValue{}, err
		}
		tag, payload = tagState, entries
	default:
		registered, ok := registeredTag(v)
		if !ok {
			return typedValue{}, fmt.Errorf("%w: %T", ErrUnsupportedStateType, v)
		}
		tag = registered
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return typedValue{}, err
	}
	return typedValue{Type: tag, Value: raw}, nil
}

func encodeEntries(m map[string]any) (map[string]typedValue, error) {
	entries := make(map[string]typedValue, len(m))
	for k, item := range m {
		tv, err := encodeValue(item)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		entries[k] = tv
	}
	return entries, nil
}

func decodeEntries(raw json.RawMessage) (map[string]any, error) {
	entries, err := decodeAs[map[string]typedValue](raw)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(entries))
	for k, item := range entries {
		if out[k], err = decodeValue(item); err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
	}
	return out, nil
}

func decodeValue(tv typedValue) (any, error) {
	switch tv.Type {
	case tagNull:
		return nil, nil
	case tagString:
		return decodeAs[string](tv.Value)
	case tagBool:
		return decodeAs[bool](tv.Value)
	case tagInt:
		return decodeAs[int](tv.Value)
	case tagInt64:
		return decodeAs[int64](tv.Value)
	case tagFloat:
		return decodeAs[float64](tv.Value)
	case tagTime:
		return decodeAs[time.Time](tv.Value)
	case tagMessage:
		return decodeAs[Message](tv.Value)
	case tagMessages:
		return decodeAs[[]Message](tv.Value)
	case tagStrings:
		return decodeAs[[]string](tv.Value)
	case tagList:
		items, err := decodeAs[[]typedValue](tv.Value)
		if err != nil {
			return nil, err
		}
		out := make([]any, len(items))
		for i, item := range items {
			if out[i], err = decodeValue(item); err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
		}
		return out, nil
	case tagMap:
		return decodeEntries(tv.Value)
	case tagState:
		entries, err := decodeEntries(tv.Value)
		if err != nil {
			return nil, err
		}
		return State(entries), nil
	}

	typ, ok := registeredType(tv.Type)
	if !ok {
		return nil, fmt.Errorf("unknown value tag %q", tv.Type)
	}
	ptr := reflect.New(typ)
	if err := json.Unmarshal(tv.Value, ptr.Interface()); err != nil {
		return nil, err
	}
	return ptr.Elem().Interface(), nil
}

func decodeAs[T any](raw json.RawMessage) (T, error) {
	var v T
	err := json.Unmarshal(raw, &v)
	return v, err
}

// checkpointRecord is the persisted layout of a Checkpoint.
type checkpointRecord struct {
	ThreadID  string          `json:"thread_id"`
	Step      int             `json:"step"`
	State     json.RawMessage `json:"state"`
	Timestamp time.Time       `json:"timestamp"`
	Graph     string          `json:"graph,omitempty"`
	Node      string          `json:"node,omitempty"`
	Next      string          `json:"next,omitempty"`
	Source    string          `json:"source,omitempty"`
}

// EncodeCheckpoint serializes a checkpoint record for storage adapters.
func EncodeCheckpoint(cp *Checkpoint) ([]byte, error) {
	state, err := EncodeState(cp.State)
	if err != nil {
		return nil, err
	}
	return json.Marshal(checkpointRecord{
		ThreadID:  cp.ThreadID,
		Step:      cp.Step,
		State:     state,
		Timestamp: cp.Timestamp,
		Graph:     cp.Graph,
		Node:      cp.Node,
		Next:      cp.Next,
		Source:    cp.Source,
	})
}

// DecodeCheckpoint restores a checkpoint written by EncodeCheckpoint.
func DecodeCheckpoint(data []byte) (*Checkpoint, error) {
	var rec checkpointRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	state, err := DecodeState(rec.State)
	if err != nil {
		return nil, err
	}
	return &Checkpoint{
		ThreadID:  rec.ThreadID,
		Step:      rec.Step,
		State:     state,
		Timestamp: rec.Timestamp,
		Graph:     rec.Graph,
		Node:      rec.Node,
		Next:      rec.Next,
		Source:    rec.Source,
	}, nil
}
