package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// AttributeInput is one marketplace attribute with its values
type AttributeInput struct {
	Name    string       `json:"name"`
	Options optionValues `json:"options"`
}

// AttributeList accepts either a list of {name, options} objects or an
// object mapping names to a value or a list of values. Key order is kept.
type AttributeList []AttributeInput

func (a *AttributeList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*a = nil
		return nil
	}

	switch data[0] {
	case '[':
		var list []AttributeInput
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*a = list
		return nil

	case '{':
		dec := json.NewDecoder(bytes.NewReader(data))
		if _, err := dec.Token(); err != nil {
			return err
		}
		list := AttributeList{}
		for dec.More() {
			tok, err := dec.Token()
			if err != nil {
				return err
			}
			name, ok := tok.(string)
			if !ok {
				return fmt.Errorf("attributes: unexpected key %v", tok)
			}
			var values optionValues
			if err := dec.Decode(&values); err != nil {
				return fmt.Errorf("attributes: %s: %w", name, err)
			}
			list = append(list, AttributeInput{Name: name, Options: values})
		}
		*a = list
		return nil
	}

	return fmt.Errorf("attributes must be a list or an object")
}

// optionValues accepts a single scalar or a list of scalars
type optionValues []string

func (o *optionValues) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch v := raw.(type) {
	case nil:
		*o = nil
	case []interface{}:
		values := make(optionValues, 0, len(v))
		for _, item := range v {
			if s := scalarString(item); s != "" {
				values = append(values, s)
			}
		}
		*o = values
	default:
		if s := scalarString(v); s != "" {
			*o = optionValues{s}
		} else {
			*o = nil
		}
	}
	return nil
}

func scalarString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strings.TrimSpace(fmt.Sprintf("%v", t))
	case bool:
		if t {
			return "1"
		}
	}
	return ""
}
