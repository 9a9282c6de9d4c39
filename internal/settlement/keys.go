package settlement

import "fmt"

// Ledger idempotency keys for call billing. Deterministic per call, so retries,
// webhook redeliveries, and concurrent end requests all converge on the same
// rows.

func DebitKey(callID, callerID string) string {
	return fmt.Sprintf("call:%s:debit:%s", callID, callerID)
}

func CreditKey(callID, receiverID string) string {
	return fmt.Sprintf("call:%s:credit:%s", callID, receiverID)
}

func RefundKey(callID, callerID string) string {
	return fmt.Sprintf("call:%s:refund:%s", callID, callerID)
}

func ReversalDebitKey(callID, receiverID string) string {
	return fmt.Sprintf("call:%s:reversal:debit:%s", callID, receiverID)
}

func ReversalCreditKey(callID, callerID string) string {
	return fmt.Sprintf("call:%s:reversal:credit:%s", callID, callerID)
}
