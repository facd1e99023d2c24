package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/resumail/resumail/internal/report"
)

// Email is one message as listed by the backend.
type Email struct {
	ID      string `json:"id"`
	From    string `json:"from,omitempty"`
	Subject string `json:"subject,omitempty"`
	Body    string `json:"body,omitempty"`
	Date    string `json:"date,omitempty"`
}

// AnalyzeRequest is the body of POST /analyzev2.
type AnalyzeRequest struct {
	UserID string  `json:"userId"`
	Emails []Email `json:"emails"`
}

// ID is a backend identifier. The backend emits both numbers and strings.
type ID string

// UnmarshalJSON accepts a JSON string or number.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("backend: id %s: %w", data, err)
	}
	*id = ID(n.String())
	return nil
}

// IDList is a list of identifiers, sent either as a JSON array or as a string
// holding a JSON array.
type IDList []ID

// UnmarshalJSON accepts an array or an encoded array string. null decodes to nil.
func (l *IDList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*l = nil
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var inner string
		if err := json.Unmarshal(data, &inner); err != nil {
			return err
		}
		inner = strings.TrimSpace(inner)
		if inner == "" {
			*l = nil
			return nil
		}
		if !strings.HasPrefix(inner, "[") {
			return l.fromCSV(inner)
		}
		data = []byte(inner)
	}
	var ids []ID
	if err := json.Unmarshal(data, &ids); err != nil {
		return fmt.Errorf("backend: id list: %w", err)
	}
	out := ids[:0]
	for _, id := range ids {
		if id != "" {
			out = append(out, id)
		}
	}
	*l = out
	return nil
}

func (l *IDList) fromCSV(s string) error {
	var out IDList
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, ID(part))
		}
	}
	*l = out
	return nil
}

// Strings returns the ids as plain strings.
func (l IDList) Strings() []string {
	out := make([]string, len(l))
	for i, id := range l {
		out[i] = string(id)
	}
	return out
}

// AnalyzeResponse is the decoded result of POST /analyzev2.
type AnalyzeResponse struct {
	FinalReportID ID
	MiniReportIDs IDList
	CreditsLeft   *int
	// Report is set when the backend inlines the final report.
	Report report.Payload
}

// UnmarshalJSON resolves the camelCase and snake_case spellings.
func (r *AnalyzeResponse) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var out AnalyzeResponse
	if v, ok := pick(raw, "finalReportId", "final_report_id"); ok {
		if err := json.Unmarshal(v, &out.FinalReportID); err != nil {
			return err
		}
	}
	if v, ok := pick(raw, "miniReportIds", "mini_report_ids"); ok {
		if err := json.Unmarshal(v, &out.MiniReportIDs); err != nil {
			return err
		}
	}
	if v, ok := pick(raw, "creditsLeft", "credits_left"); ok {
		n, err := decodeCount(v)
		if err != nil {
			return fmt.Errorf("backend: creditsLeft: %w", err)
		}
		out.CreditsLeft = &n
	}
	if v, ok := pick(raw, "report", "finalReport", "final_report"); ok {
		var payload report.Payload
		if err := json.Unmarshal(v, &payload); err == nil {
			out.Report = payload
		}
	}
	*r = out
	return nil
}

func pick(raw map[string]json.RawMessage, keys ...string) (json.RawMessage, bool) {
	for _, key := range keys {
		v, ok := raw[key]
		if ok && !bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			return v, true
		}
	}
	return nil, false
}

// decodeCount reads an integer sent as a number or a numeric string.
func decodeCount(data []byte) (int, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return 0, err
		}
		data = []byte(strings.TrimSpace(s))
	}
	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return 0, err
	}
	return int(f), nil
}

type creditsBody struct {
	value int
}

func (c *creditsBody) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		v, ok := pick(raw, "credits", "creditsLeft", "credits_left")
		if !ok {
			return fmt.Errorf("backend: credits missing")
		}
		data = v
	}
	n, err := decodeCount(data)
	if err != nil {
		return err
	}
	c.value = n
	return nil
}

type reportsBody struct {
	reports []report.Payload
}

func (b *reportsBody) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var wrapped struct {
			Reports []report.Payload `json:"reports"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return err
		}
		b.reports = wrapped.Reports
		return nil
	}
	return json.Unmarshal(data, &b.reports)
}
