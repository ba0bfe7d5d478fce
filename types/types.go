package types

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// X402Version is the protocol version implemented by this facilitator.
const X402Version = 1

// SchemeExact is the only payment scheme the facilitator accepts.
const SchemeExact = "exact"

var validate = validator.New()

// PaymentRequirements defines the requirements a resource server accepts for payment.
// It is supplied by the resource server, not the payer, and is never mutated.
type PaymentRequirements struct {
	// Scheme of the payment protocol to use (always "exact").
	Scheme string `json:"scheme" validate:"required"`

	// Network identifier the payment must be made on. Both the legacy short
	// form ("base") and the CAIP-2 form ("eip155:8453") are accepted.
	Network string `json:"network" validate:"required"`

	// Maximum amount required to pay for the resource in atomic units of the
	// asset. Represented as a string because Go does not support uint256.
	MaxAmountRequired string `json:"maxAmountRequired" validate:"required"`

	// URL of the resource to pay for.
	Resource string `json:"resource"`

	// Description of the resource being purchased.
	Description string `json:"description,omitempty"`

	// MIME type of the resource response.
	MimeType string `json:"mimeType,omitempty"`

	// Output schema of the resource response, if applicable.
	OutputSchema map[string]interface{} `json:"outputSchema,omitempty"`

	// Address to which the payment must be sent.
	PayTo string `json:"payTo" validate:"required"`

	// Maximum time in seconds for the resource server to respond. Advisory
	// data for the client; the engine does not enforce it.
	MaxTimeoutSeconds int `json:"maxTimeoutSeconds,omitempty"`

	// Address of the token contract (EVM) or mint (SVM) to pay with.
	Asset string `json:"asset" validate:"required"`

	// Extra carries scheme- and extension-specific data. For the `exact`
	// scheme on EVM this may include the EIP-712 domain `name` and `version`;
	// the discovery extension also lives here.
	Extra map[string]interface{} `json:"extra,omitempty"`
}

// Validate checks that the PaymentRequirements contain all required fields.
func (pr *PaymentRequirements) Validate() error {
	if err := validate.Struct(pr); err != nil {
		return err
	}
	if pr.Scheme != SchemeExact {
		return fmt.Errorf("unsupported scheme %q", pr.Scheme)
	}
	return nil
}

// PaymentPayload is the signed payment attached by the client. Payload is a
// tagged union over the two ledger families: the account-authorization form
// (ExactEvmPayload) and the signed-transaction form (ExactSvmPayload). The
// backend selected for Network decides which decoding applies.
type PaymentPayload struct {
	X402Version int             `json:"x402Version"`
	Scheme      string          `json:"scheme"`
	Network     string          `json:"network"`
	Payload     json.RawMessage `json:"payload"`
}

// ExactEvmPayload carries an EIP-3009 authorization and its signature.
type ExactEvmPayload struct {
	// Signature is the 65-byte ECDSA signature over the typed authorization.
	Signature     string                `json:"signature"`
	Authorization ExactEvmAuthorization `json:"authorization"`
}

// ExactEvmAuthorization is the TransferWithAuthorization tuple signed by the
// payer. Value, ValidAfter and ValidBefore are decimal strings; Nonce is a
// 32-byte hex string scoped to From.
type ExactEvmAuthorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  string `json:"validAfter"`
	ValidBefore string `json:"validBefore"`
	Nonce       string `json:"nonce"`
}

// ExactSvmPayload carries an already-signed, base64-encoded transaction that
// the facilitator relays without mutation.
type ExactSvmPayload struct {
	Transaction string `json:"transaction"`
}

// ExactEvm decodes the payload as the account-authorization variant.
func (p *PaymentPayload) ExactEvm() (*ExactEvmPayload, error) {
	if len(p.Payload) == 0 {
		return nil, fmt.Errorf("empty payment payload")
	}
	var out ExactEvmPayload
	if err := json.Unmarshal(p.Payload, &out); err != nil {
		return nil, fmt.Errorf("decode evm payload: %w", err)
	}
	if out.Signature == "" || out.Authorization.From == "" {
		return nil, fmt.Errorf("evm payload missing signature or authorization")
	}
	return &out, nil
}

// ExactSvm decodes the payload as the signed-transaction variant.
func (p *PaymentPayload) ExactSvm() (*ExactSvmPayload, error) {
	if len(p.Payload) == 0 {
		return nil, fmt.Errorf("empty payment payload")
	}
	var out ExactSvmPayload
	if err := json.Unmarshal(p.Payload, &out); err != nil {
		return nil, fmt.Errorf("decode svm payload: %w", err)
	}
	if out.Transaction == "" {
		return nil, fmt.Errorf("svm payload missing transaction")
	}
	return &out, nil
}

// VerifyRequest is the body of POST /verify and POST /settle.
type VerifyRequest struct {
	X402Version         int                 `json:"x402Version" validate:"required,gt=0"`
	PaymentPayload      PaymentPayload      `json:"paymentPayload"`
	PaymentRequirements PaymentRequirements `json:"paymentRequirements"`
}

// Validate checks that the VerifyRequest contains all required fields.
func (v *VerifyRequest) Validate() error {
	if v.X402Version <= 0 {
		return fmt.Errorf("x402Version must be greater than 0")
	}
	if v.PaymentPayload.Scheme != SchemeExact {
		return fmt.Errorf("unsupported scheme %q", v.PaymentPayload.Scheme)
	}
	if len(v.PaymentPayload.Payload) == 0 {
		return fmt.Errorf("paymentPayload.payload is required")
	}
	return v.PaymentRequirements.Validate()
}

// VerifyResponse is the facilitator's verification result. Payer is populated
// whenever it can be determined, even when the payment is invalid.
type VerifyResponse struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
	Payer         string `json:"payer,omitempty"`
}

// SettleResponse is the facilitator's settlement result. Transaction is set
// whenever the transaction reached the chain, including reverted settlements.
type SettleResponse struct {
	Success     bool   `json:"success"`
	Transaction string `json:"transaction,omitempty"`
	Network     string `json:"network,omitempty"`
	ErrorReason string `json:"errorReason,omitempty"`
	Payer       string `json:"payer,omitempty"`
}

// SupportedKind is one protocol version × scheme × network combination.
type SupportedKind struct {
	X402Version int    `json:"x402Version"`
	Scheme      string `json:"scheme"`
	Network     string `json:"network"`
}

// SupportedResponse lists everything this facilitator can verify, plus the
// funding addresses per chain family. A family with no funding key configured
// reports an empty signer list: verification stays available, settlement does
// not.
type SupportedResponse struct {
	Kinds   []SupportedKind     `json:"kinds"`
	Signers map[string][]string `json:"signers"`
}
