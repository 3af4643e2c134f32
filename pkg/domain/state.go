package domain

import (
	"fmt"
	"reflect"
)

// MessagesKey is the conventional state field holding the conversation.
const MessagesKey = "messages"

// State maps field names to values. Treat it as immutable: Merge returns a new State.
type State map[string]any

// Messages returns the conversation sequence, or nil if the field is absent.
func (s State) Messages() []Message {
	switch v := s[MessagesKey].(type) {
	case []Message:
		return v
	case []any:
		out := make([]Message, 0, len(v))
		for _, item := range v {
			if m, ok := item.(Message); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}

// LastMessage returns the final element of the conversation.
func (s State) LastMessage() (Message, bool) {
	msgs := s.Messages()
	if len(msgs) == 0 {
		return Message{}, false
	}
	return msgs[len(msgs)-1], true
}

// Clone returns a copy of the field map. Sequence values are copied so callers
// may append to them freely.
func (s State) Clone() State {
	if s == nil {
		return State{}
	}
	out := make(State, len(s))
	for k, v := range s {
		rv := reflect.ValueOf(v)
		if v != nil && rv.Kind() == reflect.Slice && !rv.IsNil() {
			cp := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
			reflect.Copy(cp, rv)
			out[k] = cp.Interface()
			continue
		}
		out[k] = v
	}
	return out
}

// Reducer is the merge rule for a state field.
type Reducer string

const (
	// ReducerReplace keeps the last written value.
	ReducerReplace Reducer = "replace"
	// ReducerAppend concatenates sequences, replacing elements whose identity matches.
	ReducerAppend Reducer = "append"
)

// StateSchema declares the reducer of each field. Undeclared fields use ReducerReplace.
type StateSchema map[string]Reducer

// MessagesSchema is the schema of a conversation graph: an append-reduced message list.
func MessagesSchema() StateSchema {
	return StateSchema{MessagesKey: ReducerAppend}
}

// ReducerFor returns the reducer declared for field.
func (s StateSchema) ReducerFor(field string) Reducer {
	if r, ok := s[field]; ok {
		return r
	}
	return ReducerReplace
}

// Merge applies delta onto current and returns the result. current is not modified.
func Merge(schema StateSchema, current, delta State) (State, error) {
	next := make(State, len(current)+len(delta))
	for k, v := range current {
		next[k] = v
	}
	for field, value := range delta {
		switch schema.ReducerFor(field) {
		case ReducerAppend:
			merged, err := appendValues(next[field], value)
			if err != nil {
				return nil, &SchemaError{Field: field, Reason: err.Error()}
			}
			next[field] = merged
		case ReducerReplace:
			next[field] = value
		default:
			return nil, &SchemaError{Field: field, Reason: fmt.Sprintf("unknown reducer %q", schema[field])}
		}
	}
	return next, nil
}

func appendValues(existing, update any) (any, error) {
	if update == nil {
		return existing, nil
	}
	uv := reflect.ValueOf(update)
	if uv.Kind() != reflect.Slice && uv.Kind() != reflect.Array {
		return nil, fmt.Errorf("append field expects a sequence, got %T", update)
	}
	if existing == nil {
		existing = reflect.MakeSlice(reflect.SliceOf(uv.Type().Elem()), 0, 0).Interface()
	}
	ev := reflect.ValueOf(existing)
	if ev.Kind() != reflect.Slice {
		return nil, fmt.Errorf("append field holds non-sequence %T", existing)
	}

	elemType := ev.Type().Elem()

	out := reflect.MakeSlice(ev.Type(), ev.Len(), ev.Len()+uv.Len())
	reflect.Copy(out, ev)

	index := make(map[string]int, out.Len())
	for i := 0; i < out.Len(); i++ {
		if id := identityOf(out.Index(i)); id != "" {
			index[id] = i
		}
	}

	for i := 0; i < uv.Len(); i++ {
		item := uv.Index(i)
		if item.Kind() == reflect.Interface && !item.IsNil() {
			item = item.Elem()
		}
		if !item.IsValid() || !item.Type().AssignableTo(elemType) {
			return nil, fmt.Errorf("element %d: cannot append %s to %s", i, uv.Type(), ev.Type())
		}
		if id := identityOf(item); id != "" {
			if pos, ok := index[id]; ok {
				out.Index(pos).Set(item)
				continue
			}
			index[id] = out.Len()
		}
		out = reflect.Append(out, item)
	}
	return out.Interface(), nil
}

func identityOf(v reflect.Value) string {
	if !v.IsValid() {
		return ""
	}
	if v.Kind() == reflect.Interface {
		if v.IsNil() {
			return ""
		}
		v = v.Elem()
	}
	if id, ok := v.Interface().(Identified); ok {
		return id.Identity()
	}
	return ""
}
