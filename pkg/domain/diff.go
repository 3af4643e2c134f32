package domain

import "reflect"

// Diff returns the delta that, merged into before under schema, yields after.
// Append fields contribute the elements that are new or changed: identified elements
// are matched by identity, the rest by position. An unidentified element changed in
// place therefore shows up as a new element. Other fields contribute their value when
// it differs. Removed fields are not reported.
func Diff(schema StateSchema, before, after State) State {
	delta := make(State)
	for field, newVal := range after {
		oldVal, existed := before[field]
		if schema.ReducerFor(field) == ReducerAppend {
			if added := diffSequence(oldVal, newVal); added != nil {
				delta[field] = added
			}
			continue
		}
		if !existed || !reflect.DeepEqual(oldVal, newVal) {
			delta[field] = newVal
		}
	}
	if len(delta) == 0 {
		return nil
	}
	return delta
}

func diffSequence(oldVal, newVal any) any {
	nv := reflect.ValueOf(newVal)
	if newVal == nil || nv.Kind() != reflect.Slice {
		return nil
	}
	var ov reflect.Value
	if oldVal != nil {
		ov = reflect.ValueOf(oldVal)
		if ov.Kind() != reflect.Slice {
			ov = reflect.Value{}
		}
	}

	known := make(map[string]any)
	if ov.IsValid() {
		for i := 0; i < ov.Len(); i++ {
			if id := identityOf(ov.Index(i)); id != "" {
				known[id] = ov.Index(i).Interface()
			}
		}
	}

	out := reflect.MakeSlice(nv.Type(), 0, nv.Len())
	for i := 0; i < nv.Len(); i++ {
		item := nv.Index(i)
		if id := identityOf(item); id != "" {
			if prev, ok := known[id]; !ok || !reflect.DeepEqual(prev, item.Interface()) {
				out = reflect.Append(out, item)
			}
			continue
		}
		if ov.IsValid() && i < ov.Len() && reflect.DeepEqual(ov.Index(i).Interface(), item.Interface()) {
			continue
		}
		out = reflect.Append(out, item)
	}
	if out.Len() == 0 {
		return nil
	}
	return out.Interface()
}
