package audit

import (
	"fmt"

	"github.com/nik-kale/Secure-MCP-Gateway/internal/model"
)

// Entry is one line in the hash-chained JSONL audit log.
// All fields are scalars (no map[string]any) to guarantee deterministic
// json.Marshal field order for reproducible hashing.
type Entry struct {
	Timestamp string `json:"ts"`
	Event     string `json:"event"`
	CallID    string `json:"call_id"`
	Tool      string `json:"tool"`
	Action    string `json:"action"`
	Severity  string `json:"severity"`
	Caller    string `json:"caller"`
	Decision  string `json:"decision,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Actor     string `json:"actor,omitempty"`
	Detail    string `json:"detail,omitempty"`
	PrevHash  string `json:"prev_hash"`
}

// newEntry flattens a call context into the common entry fields.
func newEntry(event string, call *model.ToolCallContext) Entry {
	e := Entry{
		Event: event,
	}
	if call != nil {
		e.CallID = call.CallID
		e.Tool = call.Tool
		e.Action = call.Action
		e.Severity = string(call.Severity)
		e.Caller = call.Caller.ID
	}
	return e
}

// detailString renders an opaque executor output for the audit record.
func detailString(output any) string {
	if output == nil {
		return ""
	}
	if s, ok := output.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", output)
}
