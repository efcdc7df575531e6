package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
)

// VerifyResult holds the outcome of an audit log verification.
type VerifyResult struct {
	Valid     bool   `json:"valid"`
	Lines     int    `json:"lines"`
	Error     string `json:"error,omitempty"`
	ErrorLine int    `json:"error_line,omitempty"`
}

// knownEvents is the closed set of event names the sinks emit. A line with
// any other event name did not come from this gateway.
var knownEvents = map[string]bool{
	EventToolCall:         true,
	EventApprovalGranted:  true,
	EventApprovalDenied:   true,
	EventExecutionSuccess: true,
	EventExecutionFailure: true,
}

// Verify reads a JSONL audit log and validates both the hash chain and the
// shape of every entry: each line must parse, carry a known event name, a
// timestamp, and a call id, and its prev_hash must match the SHA-256 of the
// previous line (genesis for the first). Returns Valid=true if the whole
// log holds up, or details about the first broken line.
func Verify(path string) VerifyResult {
	f, err := os.Open(path)
	if err != nil {
		return VerifyResult{Error: fmt.Sprintf("open: %v", err)}
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNum := 0
	var prevLineBytes []byte

	for scanner.Scan() {
		lineNum++
		raw := scanner.Bytes()

		// Make a copy since scanner reuses the buffer
		line := make([]byte, len(raw))
		copy(line, raw)

		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			return VerifyResult{
				Error:     fmt.Sprintf("parse error: %v", err),
				ErrorLine: lineNum,
			}
		}

		if !knownEvents[entry.Event] {
			return VerifyResult{
				Error:     fmt.Sprintf("unknown event %q", entry.Event),
				ErrorLine: lineNum,
			}
		}
		if entry.Timestamp == "" {
			return VerifyResult{
				Error:     "entry has no timestamp",
				ErrorLine: lineNum,
			}
		}
		if entry.CallID == "" {
			return VerifyResult{
				Error:     "entry has no call id",
				ErrorLine: lineNum,
			}
		}

		if lineNum == 1 {
			// First entry must reference genesis hash
			if entry.PrevHash != GenesisHash {
				return VerifyResult{
					Error:     fmt.Sprintf("first entry prev_hash is %q, expected genesis hash", entry.PrevHash),
					ErrorLine: 1,
				}
			}
		} else {
			// Subsequent entries must reference hash of previous line
			expectedHash := HashLine(prevLineBytes)
			if entry.PrevHash != expectedHash {
				return VerifyResult{
					Error:     fmt.Sprintf("hash mismatch: expected %s, got %s", expectedHash, entry.PrevHash),
					ErrorLine: lineNum,
				}
			}
		}

		prevLineBytes = line
	}

	if err := scanner.Err(); err != nil {
		return VerifyResult{Error: fmt.Sprintf("scan: %v", err)}
	}

	return VerifyResult{Valid: true, Lines: lineNum}
}
