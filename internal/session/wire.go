package session

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// FlexInt decodes ids sent either as JSON numbers or as integer strings.
type FlexInt int64

func (f *FlexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*f = 0
			return nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer string %q: %w", s, err)
		}
		*f = FlexInt(n)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	v, err := n.Int64()
	if err != nil {
		// whole floats such as 12.0 still count
		fv, ferr := n.Float64()
		if ferr != nil || fv != float64(int64(fv)) {
			return fmt.Errorf("invalid integer %s: %w", n, err)
		}
		v = int64(fv)
	}
	*f = FlexInt(v)
	return nil
}

func (f FlexInt) Int64() int64 { return int64(f) }

// Ref is the {id, name} pair the backend uses for nested references.
type Ref struct {
	ID   FlexInt `json:"id"`
	Name string  `json:"name"`
}

var titlePattern = regexp.MustCompile(`(?is)<title>(.*?)</title>`)

// NormalizeErrorText extracts a readable message from a failed response body.
// HTML error pages collapse to their title; JSON bodies to their error message.
func NormalizeErrorText(body []byte) string {
	text := strings.TrimSpace(string(body))
	if m := titlePattern.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}

	var payload struct {
		ErrorMessage  string `json:"errorMessage"`
		ErrLogMessage string `json:"errLogMessage"`
		Error         *struct {
			ErrorMessage string `json:"errorMessage"`
			ErrorString  string `json:"errorString"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil {
		switch {
		case payload.ErrorMessage != "":
			return payload.ErrorMessage
		case payload.ErrLogMessage != "":
			return payload.ErrLogMessage
		case payload.Error != nil && payload.Error.ErrorMessage != "":
			return payload.Error.ErrorMessage
		case payload.Error != nil && payload.Error.ErrorString != "":
			return payload.Error.ErrorString
		}
	}
	return text
}
