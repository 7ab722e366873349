package payment

import (
	"bytes"
	"errors"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

var ErrInvalidCallback = errors.New("callback body is not a JSON object")

var (
	checkoutIDKeys = []string{"checkoutRequestId", "CheckoutRequestID", "checkoutRequestID", "CheckoutRequestId", "checkout_request_id"}
	resultCodeKeys = []string{"resultCode", "ResultCode", "result_code"}
	statusKeys     = []string{"status", "Status", "state"}
	receiptKeys    = []string{"mpesaReceipt", "MpesaReceiptNumber", "mpesaReceiptNumber", "mpesa_receipt", "MpesaReceipt", "receipt"}
	descKeys       = []string{"resultDesc", "ResultDesc", "result_desc", "message"}
)

// resultCodes maps gateway result codes to terminal states. Codes not
// listed here fail the payment with the raw code kept for audit.
var resultCodes = map[string]Status{
	"0":    StatusSuccess,
	"1":    StatusFailed,    // insufficient balance
	"1001": StatusFailed,    // subscriber busy with another transaction
	"1019": StatusFailed,    // transaction expired
	"1025": StatusFailed,    // push could not be delivered
	"1032": StatusCancelled, // cancelled by the subscriber
	"1037": StatusFailed,    // subscriber unreachable
	"2001": StatusFailed,    // wrong PIN
}

var statusWords = map[string]Status{
	"success":    StatusSuccess,
	"successful": StatusSuccess,
	"completed":  StatusSuccess,
	"paid":       StatusSuccess,
	"failed":     StatusFailed,
	"failure":    StatusFailed,
	"error":      StatusFailed,
	"cancelled":  StatusCancelled,
	"canceled":   StatusCancelled,
}

var nonTerminalWords = map[string]struct{}{
	"pending":    {},
	"queued":     {},
	"processing": {},
}

// Callback is a gateway notification reduced to the fields reconciliation
// needs, whatever shape it arrived in.
type Callback struct {
	CheckoutRequestID string
	ResultCode        string
	StatusText        string
	MpesaReceipt      string
	ResultDesc        string
}

// ParseCallback accepts the flat integration payloads
// ({"checkoutRequestId": ..., "resultCode": 0, ...}) as well as the nested
// Daraja envelope ({"Body": {"stkCallback": {...}}}).
func ParseCallback(body []byte) (Callback, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '{' {
		return Callback{}, ErrInvalidCallback
	}

	var root map[string]any
	if err := json.Unmarshal(body, &root); err != nil {
		return Callback{}, ErrInvalidCallback
	}

	fields := flattenCallback(root)
	return Callback{
		CheckoutRequestID: firstString(fields, checkoutIDKeys),
		ResultCode:        firstString(fields, resultCodeKeys),
		StatusText:        firstString(fields, statusKeys),
		MpesaReceipt:      firstString(fields, receiptKeys),
		ResultDesc:        firstString(fields, descKeys),
	}, nil
}

// TerminalStatus maps the callback to a terminal state. ok is false when
// the payload carries neither a result code nor a final status word.
func (c Callback) TerminalStatus() (status Status, rawCode string, ok bool) {
	if c.ResultCode != "" {
		if status, known := resultCodes[c.ResultCode]; known {
			return status, c.ResultCode, true
		}
		return StatusFailed, c.ResultCode, true
	}

	word := strings.ToLower(strings.TrimSpace(c.StatusText))
	if word == "" {
		return "", "", false
	}
	if _, pending := nonTerminalWords[word]; pending {
		return "", "", false
	}
	if status, known := statusWords[word]; known {
		return status, c.StatusText, true
	}
	return StatusFailed, c.StatusText, true
}

func flattenCallback(root map[string]any) map[string]any {
	fields := make(map[string]any, len(root))
	for k, v := range root {
		fields[k] = v
	}

	for _, envelope := range []string{"Body", "body"} {
		inner, ok := root[envelope].(map[string]any)
		if !ok {
			continue
		}
		if stk, ok := inner["stkCallback"].(map[string]any); ok {
			inner = stk
		}
		for k, v := range inner {
			fields[k] = v
		}
	}

	if meta, ok := fields["CallbackMetadata"].(map[string]any); ok {
		items, _ := meta["Item"].([]any)
		for _, item := range items {
			entry, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if name, ok := entry["Name"].(string); ok && name != "" {
				fields[name] = entry["Value"]
			}
		}
	}

	return fields
}

func firstString(fields map[string]any, keys []string) string {
	for _, key := range keys {
		if s := stringValue(fields[key]); s != "" {
			return s
		}
	}
	return ""
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	case int64:
		return strconv.FormatInt(val, 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	default:
		return ""
	}
}
