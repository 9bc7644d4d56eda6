package payout

import (
	"encoding/json"
	"strconv"
	"strings"
)

type ResultKind int

const (
	// ResultStructured is a decoded object returned by the tool.
	ResultStructured ResultKind = iota
	// ResultOpaque is a successful call whose output is not an object.
	ResultOpaque
	ResultFailure
)

func (k ResultKind) String() string {
	switch k {
	case ResultStructured:
		return "structured"
	case ResultOpaque:
		return "opaque"
	default:
		return "failure"
	}
}

type ToolResult struct {
	Kind   ResultKind
	Fields map[string]any
	Raw    string
	Err    error
}

// ClassifyResult turns a call's return values into a ToolResult. Strings
// that decode to a JSON object count as structured.
func ClassifyResult(v any, err error) ToolResult {
	if err != nil {
		return ToolResult{Kind: ResultFailure, Err: err}
	}
	switch val := v.(type) {
	case map[string]any:
		return ToolResult{Kind: ResultStructured, Fields: val}
	case string:
		return classifyText(val)
	case []byte:
		return classifyText(string(val))
	case json.RawMessage:
		return classifyText(string(val))
	case nil:
		return ToolResult{Kind: ResultOpaque}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return ToolResult{Kind: ResultOpaque}
	}
	return classifyText(string(raw))
}

func classifyText(s string) ToolResult {
	var fields map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &fields); err == nil && fields != nil {
		return ToolResult{Kind: ResultStructured, Fields: fields, Raw: s}
	}
	return ToolResult{Kind: ResultOpaque, Raw: s}
}

var txIDKeys = []string{"transactionId", "id", "txId", "transaction_id", "tx_id"}

// placeholders are values tools return before a real identifier exists.
var placeholders = map[string]struct{}{"pending": {}, "success": {}, "unknown": {}}

// ExtractTxID reads a transaction identifier from a structured result. It
// looks at the top level, then inside "data" and "result" objects.
func ExtractTxID(r ToolResult) (string, bool) {
	if r.Kind != ResultStructured {
		return "", false
	}
	if id, ok := txIDFrom(r.Fields); ok {
		return id, true
	}
	for _, wrapper := range []string{"data", "result"} {
		if inner, ok := r.Fields[wrapper].(map[string]any); ok {
			if id, ok := txIDFrom(inner); ok {
				return id, true
			}
		}
	}
	return "", false
}

func txIDFrom(fields map[string]any) (string, bool) {
	for _, key := range txIDKeys {
		var id string
		switch v := fields[key].(type) {
		case string:
			id = strings.TrimSpace(v)
		case float64:
			id = strconv.FormatFloat(v, 'f', -1, 64)
		case json.Number:
			id = v.String()
		}
		if id == "" {
			continue
		}
		if _, fake := placeholders[strings.ToLower(id)]; fake {
			continue
		}
		return id, true
	}
	return "", false
}
