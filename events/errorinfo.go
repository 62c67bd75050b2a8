package events

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// ErrorInfo is the reason block attached to failure messages and to
// per-request errors.
type ErrorInfo struct {
	Source      string `json:"source,omitempty"`
	Code        int    `json:"code,omitempty"`
	Category    string `json:"category,omitempty"`
	Subcategory string `json:"subcategory,omitempty"`
	Message     string `json:"message,omitempty"`
	Description string `json:"description,omitempty"`
}

// ErrorInfoFrom reads an ErrorInfo from a reason-shaped element.
func ErrorInfoFrom(r gjson.Result) ErrorInfo {
	if !r.Exists() {
		return ErrorInfo{}
	}
	return ErrorInfo{
		Source:      r.Get("source").String(),
		Code:        int(r.Get("errorCode").Int()),
		Category:    r.Get("category").String(),
		Subcategory: r.Get("subcategory").String(),
		Message:     r.Get("message").String(),
		Description: r.Get("description").String(),
	}
}

func (e ErrorInfo) IsZero() bool {
	return e == ErrorInfo{}
}

func (e ErrorInfo) Error() string {
	text := e.Message
	if text == "" {
		text = e.Description
	}
	switch {
	case e.Category != "" && text != "":
		return fmt.Sprintf("%s: %s", e.Category, text)
	case e.Category != "":
		return e.Category
	case text != "":
		return text
	default:
		return "unspecified error"
	}
}

// Reason is the ErrorInfo carried in the message's reason element.
func (m Message) Reason() ErrorInfo {
	return ErrorInfoFrom(m.Get(ElementReason))
}

// ResponseError returns the request-level error of a response message.
func ResponseError(m Message) (ErrorInfo, bool) {
	r := m.Get(ElementResponseError)
	if !r.Exists() {
		return ErrorInfo{}, false
	}
	return ErrorInfoFrom(r), true
}

// FieldException is a per-field error reported for one security.
type FieldException struct {
	FieldID string
	Info    ErrorInfo
}

// SecurityResult is one entry of a reference-data style securityData array.
type SecurityResult struct {
	Security        string
	Error           *ErrorInfo
	FieldExceptions []FieldException
	FieldData       gjson.Result
}

// SecurityResults decodes the securityData array of a response message.
func SecurityResults(m Message) []SecurityResult {
	data := m.Get(ElementSecurityData)
	if !data.Exists() {
		return nil
	}
	var items []gjson.Result
	if data.IsArray() {
		items = data.Array()
	} else {
		items = []gjson.Result{data}
	}

	out := make([]SecurityResult, 0, len(items))
	for _, item := range items {
		res := SecurityResult{
			Security:  item.Get(ElementSecurity).String(),
			FieldData: item.Get(ElementFieldData),
		}
		if se := item.Get(ElementSecurityError); se.Exists() {
			info := ErrorInfoFrom(se)
			res.Error = &info
		}
		for _, fe := range item.Get(ElementFieldExceptions).Array() {
			res.FieldExceptions = append(res.FieldExceptions, FieldException{
				FieldID: fe.Get(ElementFieldID).String(),
				Info:    ErrorInfoFrom(fe.Get(ElementErrorInfo)),
			})
		}
		out = append(out, res)
	}
	return out
}
