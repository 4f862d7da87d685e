package sqlcommon

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/datavirt/datavirt/pkg/value"
)

// temporalLayouts are the text forms drivers return for date and time columns.
var temporalLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	// time.Time.String, written by drivers without a configured time format
	"2006-01-02 15:04:05.999999999 -0700 MST",
	value.DateLayout,
}

// encodeValue converts v into a driver argument. Sequences are stored in their
// canonical text form.
func encodeValue(v value.Value) (any, error) {
	if v.Type() == nil || v.IsNull() {
		return nil, nil
	}
	if v.IsSequence() {
		return v.String(), nil
	}

	switch v.Type() {
	case value.Text, value.Integer, value.Decimal, value.Boolean, value.Date, value.DateTime, value.Binary:
		return v.Native()
	}
	return v.String(), nil
}

// decodeValue converts a scanned column into a value of type t.
func decodeValue(t *value.Type, repeatable bool, raw any) (value.Value, error) {
	if raw == nil {
		if repeatable {
			return t.NullSequence(), nil
		}
		return t.NullValue(), nil
	}

	if repeatable {
		s, ok := asString(raw)
		if !ok {
			return value.Value{}, fmt.Errorf("sequence of %s stored as %T", t.Name(), raw)
		}
		return t.ParseSequence(s)
	}

	switch r := raw.(type) {
	case []byte:
		if t == value.Binary {
			return t.ValueOf(r)
		}
		return parse(t, string(r))
	case string:
		return parse(t, r)
	case time.Time:
		if t.IsTemporal() {
			return t.ValueOf(r)
		}
		return parse(t, r.UTC().Format(time.RFC3339Nano))
	case int64:
		if t == value.Boolean {
			return t.ValueOf(r != 0)
		}
		if t == value.Text {
			return t.ValueOf(strconv.FormatInt(r, 10))
		}
	case float64:
		if t == value.Text {
			return t.ValueOf(strconv.FormatFloat(r, 'f', -1, 64))
		}
	case bool:
		if t == value.Text {
			return t.ValueOf(strconv.FormatBool(r))
		}
	}
	return t.ValueOf(raw)
}

func parse(t *value.Type, s string) (value.Value, error) {
	if !t.IsTemporal() {
		if t == value.Boolean {
			switch strings.TrimSpace(s) {
			case "0":
				return t.ValueOf(false)
			case "1":
				return t.ValueOf(true)
			}
		}
		return t.Parse(s)
	}

	v, err := t.Parse(s)
	if err == nil {
		return v, nil
	}
	for _, layout := range temporalLayouts {
		if ts, perr := time.Parse(layout, strings.TrimSpace(s)); perr == nil {
			return t.ValueOf(ts)
		}
	}
	return value.Value{}, err
}

func asString(raw any) (string, bool) {
	switch r := raw.(type) {
	case string:
		return r, true
	case []byte:
		return string(r), true
	}
	return "", false
}
