package types

// Closed taxonomy of failure reasons surfaced to callers. Backends never let
// a raw fault cross the verify/settle boundary; everything maps to one of
// these tags.
const (
	// ReasonInvalidPayload covers malformed payloads and, for the
	// account-authorization scheme, an already-consumed nonce.
	ReasonInvalidPayload = "invalid_payload"

	// ReasonInvalidSignature means the authorization signature does not
	// recover to the claimed payer.
	ReasonInvalidSignature = "invalid_signature"

	// ReasonInsufficientFunds means the payer's token balance cannot cover
	// the authorized amount, or the payer's token account does not exist.
	ReasonInsufficientFunds = "insufficient_funds"

	// ReasonAmountMismatch means the authorized value does not equal the
	// required amount exactly.
	ReasonAmountMismatch = "amount_mismatch"

	// ReasonRecipientMismatch means the authorization pays the wrong address.
	ReasonRecipientMismatch = "recipient_mismatch"

	// ReasonPaymentExpired means the current time lies outside the
	// authorization's [validAfter, validBefore] window.
	ReasonPaymentExpired = "payment_expired"

	// ReasonUnsupportedNetwork means the network identifier matches neither
	// ledger family's vocabulary.
	ReasonUnsupportedNetwork = "unsupported_network"

	// ReasonSettlementFailed covers settlement preconditions (no funding
	// key), broadcast failures, and on-chain reverts. A transaction id may
	// still be attached so the caller can inspect it.
	ReasonSettlementFailed = "settlement_failed"

	// ReasonUnexpectedError is the normalization of any unanticipated fault
	// during verification, including RPC unavailability.
	ReasonUnexpectedError = "unexpected_error"
)
