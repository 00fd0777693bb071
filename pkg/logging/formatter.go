package logging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// NewFormatter returns the formatter registered under name: "text" or "json".
func NewFormatter(name string) (Formatter, error) {
	switch strings.ToLower(name) {
	case "", "text":
		return NewTextFormatter(), nil
	case "json":
		return NewJSONFormatter(), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", name)
	}
}

// Field keys the formatters lift out of the flat field set.
const (
	kindKey          = "kind"
	urlKey           = "url"
	fromKey          = "from"
	toKey            = "to"
	errorKey         = "error"
	errorCodeKey     = "error_code"
	errorNameKey     = "error_name"
	errorCategoryKey = "error_category"
	errorSeverityKey = "error_severity"
)

// shape is an entry split into the parts both formatters render specially:
// the connection it concerns, a health transition and a coded error.
type shape struct {
	kind       string
	url        string
	from, to   string
	hasCode    bool
	errMessage string
	errCode    int
	errName    string
	errCat     string
	errSev     string
	rest       map[string]interface{}
}

func (s *shape) coded() bool { return s.hasCode }

func shapeOf(entry *Entry) *shape {
	s := &shape{rest: make(map[string]interface{}, len(entry.Fields))}
	for k, v := range entry.Fields {
		s.rest[k] = v
	}
	delete(s.rest, requestKey)
	delete(s.rest, connectionKey)

	take := func(key string) string {
		v, ok := s.rest[key].(string)
		if ok {
			delete(s.rest, key)
		}
		return v
	}

	if entry.ConnectionID != "" {
		s.kind = take(kindKey)
		s.url = take(urlKey)
	}

	from, fromOK := s.rest[fromKey].(string)
	to, toOK := s.rest[toKey].(string)
	if fromOK && toOK {
		s.from, s.to = from, to
		delete(s.rest, fromKey)
		delete(s.rest, toKey)
	}

	if code, ok := s.rest[errorCodeKey].(int); ok {
		s.hasCode = true
		s.errCode = code
		delete(s.rest, errorCodeKey)
		s.errName = take(errorNameKey)
		if s.errName == "" {
			s.errName = "Error"
		}
		s.errCat = take(errorCategoryKey)
		s.errSev = take(errorSeverityKey)
		if err, ok := s.rest[errorKey].(error); ok {
			s.errMessage = err.Error()
			delete(s.rest, errorKey)
		}
	}
	return s
}

// TextFormatter renders one line per entry:
//
//	ts [LEVEL] [request] <connection kind> component/operation: message (from -> to) !ErrorName/code | k=v ...
type TextFormatter struct {
	TimestampFormat  string
	DisableColors    bool
	DisableTimestamp bool
	DisableSorting   bool
}

// NewTextFormatter creates a text formatter with millisecond timestamps.
func NewTextFormatter() *TextFormatter {
	return &TextFormatter{
		TimestampFormat: "2006-01-02 15:04:05.000",
	}
}

// Format formats a log entry as text
func (f *TextFormatter) Format(entry *Entry) ([]byte, error) {
	s := shapeOf(entry)
	var buf bytes.Buffer

	if !f.DisableTimestamp {
		buf.WriteString(entry.Timestamp.Format(f.TimestampFormat))
		buf.WriteByte(' ')
	}

	level := "[" + entry.Level.String() + "]"
	if !f.DisableColors {
		level = colorize(entry.Level, level)
	}
	buf.WriteString(level)
	buf.WriteByte(' ')

	if entry.RequestID != "" {
		fmt.Fprintf(&buf, "[%s] ", entry.RequestID)
	}
	if entry.ConnectionID != "" {
		buf.WriteByte('<')
		buf.WriteString(entry.ConnectionID)
		if s.kind != "" {
			buf.WriteByte(' ')
			buf.WriteString(s.kind)
		}
		buf.WriteString("> ")
	}

	if entry.Component != "" {
		delete(s.rest, "component")
		buf.WriteString(entry.Component)
		if entry.Operation != "" {
			delete(s.rest, "operation")
			buf.WriteByte('/')
			buf.WriteString(entry.Operation)
		}
		buf.WriteString(": ")
	}

	buf.WriteString(entry.Message)

	if s.from != "" {
		fmt.Fprintf(&buf, " (%s -> %s)", s.from, s.to)
	}
	if s.coded() {
		fmt.Fprintf(&buf, " !%s/%d", s.errName, s.errCode)
		s.rest[errorKey] = s.errMessage
		if s.errCat != "" {
			s.rest[errorCategoryKey] = s.errCat
		}
	}
	if s.url != "" {
		s.rest[urlKey] = s.url
	}

	if len(s.rest) > 0 {
		buf.WriteString(" | ")
		buf.WriteString(f.pairs(s.rest))
	}

	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func (f *TextFormatter) pairs(fields map[string]interface{}) string {
	out := make([]string, 0, len(fields))
	for k, v := range fields {
		var value string
		switch val := v.(type) {
		case error:
			value = quoteIfSpaced(val.Error())
		case time.Duration:
			value = val.String()
		case string:
			value = quoteIfSpaced(val)
		default:
			value = fmt.Sprintf("%v", v)
		}
		out = append(out, k+"="+value)
	}
	if !f.DisableSorting {
		sort.Strings(out)
	}
	return strings.Join(out, " ")
}

func quoteIfSpaced(s string) string {
	if strings.ContainsAny(s, " \t\n") {
		return fmt.Sprintf("%q", s)
	}
	return s
}

func colorize(level Level, text string) string {
	const reset = "\033[0m"
	var color string
	switch level {
	case DebugLevel:
		color = "\033[90m"
	case InfoLevel:
		color = "\033[34m"
	case WarnLevel:
		color = "\033[33m"
	case ErrorLevel, FatalLevel:
		color = "\033[31m"
	default:
		return text
	}
	return color + text + reset
}

// JSONFormatter writes one JSON object per entry. Connection fields are
// grouped under "connection" and coded errors under "error"; durations are
// written in milliseconds with an "_ms" suffix.
type JSONFormatter struct {
	PrettyPrint      bool
	TimestampFormat  string
	DisableTimestamp bool
}

// NewJSONFormatter creates a JSON formatter with RFC 3339 millisecond timestamps.
func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	}
}

// Format formats a log entry as JSON
func (f *JSONFormatter) Format(entry *Entry) ([]byte, error) {
	s := shapeOf(entry)
	data := make(map[string]interface{}, len(s.rest)+6)

	for k, v := range s.rest {
		switch val := v.(type) {
		case error:
			data[k] = val.Error()
		case time.Duration:
			data[k+"_ms"] = val.Milliseconds()
		default:
			data[k] = v
		}
	}

	data["level"] = entry.Level.String()
	data["message"] = entry.Message
	if !f.DisableTimestamp {
		data["timestamp"] = entry.Timestamp.Format(f.TimestampFormat)
	}
	if entry.RequestID != "" {
		data[requestKey] = entry.RequestID
	}

	if entry.ConnectionID != "" {
		conn := map[string]string{"id": entry.ConnectionID}
		if s.kind != "" {
			conn[kindKey] = s.kind
		}
		if s.url != "" {
			conn[urlKey] = s.url
		}
		data["connection"] = conn
	}
	if s.from != "" {
		data["transition"] = map[string]string{fromKey: s.from, toKey: s.to}
	}
	if s.coded() {
		data[errorKey] = map[string]interface{}{
			"message":  s.errMessage,
			"code":     s.errCode,
			"name":     s.errName,
			"category": s.errCat,
			"severity": s.errSev,
		}
	}

	var (
		out []byte
		err error
	)
	if f.PrettyPrint {
		out, err = json.MarshalIndent(data, "", "  ")
	} else {
		out, err = json.Marshal(data)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to marshal log entry: %w", err)
	}
	return append(out, '\n'), nil
}
