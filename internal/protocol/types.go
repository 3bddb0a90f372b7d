package protocol

import "fmt"

// MessageNumber is the one-byte message type tag.
type MessageNumber uint8

// Message numbers, section 7.1 of draft-miller-ssh-agent.
const (
	AgentFailure                     MessageNumber = 5
	AgentSuccess                     MessageNumber = 6
	AgentcRequestIdentities          MessageNumber = 11
	AgentIdentitiesAnswer            MessageNumber = 12
	AgentcSignRequest                MessageNumber = 13
	AgentSignResponse                MessageNumber = 14
	AgentcAddIdentity                MessageNumber = 17
	AgentcRemoveIdentity             MessageNumber = 18
	AgentcRemoveAllIdentities        MessageNumber = 19
	AgentcAddSmartcardKey            MessageNumber = 20
	AgentcRemoveSmartcardKey         MessageNumber = 21
	AgentcLock                       MessageNumber = 22
	AgentcUnlock                     MessageNumber = 23
	AgentcAddIDConstrained           MessageNumber = 25
	AgentcAddSmartcardKeyConstrained MessageNumber = 26
	AgentcExtension                  MessageNumber = 27
	AgentExtensionFailure            MessageNumber = 28
)

var messageNames = map[MessageNumber]string{
	AgentFailure:                     "SSH_AGENT_FAILURE",
	AgentSuccess:                     "SSH_AGENT_SUCCESS",
	AgentcRequestIdentities:          "SSH_AGENTC_REQUEST_IDENTITIES",
	AgentIdentitiesAnswer:            "SSH_AGENT_IDENTITIES_ANSWER",
	AgentcSignRequest:                "SSH_AGENTC_SIGN_REQUEST",
	AgentSignResponse:                "SSH_AGENT_SIGN_RESPONSE",
	AgentcAddIdentity:                "SSH_AGENTC_ADD_IDENTITY",
	AgentcRemoveIdentity:             "SSH_AGENTC_REMOVE_IDENTITY",
	AgentcRemoveAllIdentities:        "SSH_AGENTC_REMOVE_ALL_IDENTITIES",
	AgentcAddSmartcardKey:            "SSH_AGENTC_ADD_SMARTCARD_KEY",
	AgentcRemoveSmartcardKey:         "SSH_AGENTC_REMOVE_SMARTCARD_KEY",
	AgentcLock:                       "SSH_AGENTC_LOCK",
	AgentcUnlock:                     "SSH_AGENTC_UNLOCK",
	AgentcAddIDConstrained:           "SSH_AGENTC_ADD_ID_CONSTRAINED",
	AgentcAddSmartcardKeyConstrained: "SSH_AGENTC_ADD_SMARTCARD_KEY_CONSTRAINED",
	AgentcExtension:                  "SSH_AGENTC_EXTENSION",
	AgentExtensionFailure:            "SSH_AGENT_EXTENSION_FAILURE",
}

func (n MessageNumber) String() string {
	if name, ok := messageNames[n]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint8(n))
}

// Known reports whether n is a defined message number.
func (n MessageNumber) Known() bool {
	_, ok := messageNames[n]
	return ok
}

// SignatureFlags carries the flags word of a sign request.
type SignatureFlags uint32

const (
	SignatureFlagRSASHA256 SignatureFlags = 2
	SignatureFlagRSASHA512 SignatureFlags = 4
)

// Has reports whether every bit of flag is set.
func (f SignatureFlags) Has(flag SignatureFlags) bool {
	return f&flag == flag
}
