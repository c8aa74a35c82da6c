package auth

// challengeKind distinguishes steps the flow can clear on its own from
// those needing operator input.
type challengeKind int

const (
	kindAcknowledge challengeKind = iota
	kindInput
	kindUnsupported
)

// Challenge is one verification step the platform can raise during
// login, detected by a marker phrase on the page.
type Challenge struct {
	Name   string
	Marker string
	Prompt string
	kind   challengeKind

	// clickTarget is the text of the element to click for acknowledge
	// challenges.
	clickTarget string
}

// challengeInputSelector is where input-style challenges expect the
// operator's answer. The platform reuses one text field across them.
const challengeInputSelector = `input[data-testid="ocfEnterTextTextInput"]`

// challenges lists every verification step the flow recognizes, in
// detection order. Specific markers go before generic ones so
// "Verify your phone" wins over "Phone number".
var challenges = []Challenge{
	{
		Name:        "suspicious_login",
		Marker:      "Suspicious login prevented",
		kind:        kindAcknowledge,
		clickTarget: "Got it",
	},
	{
		Name:   "authentication_code",
		Marker: "Enter code",
		Prompt: "Enter 2FA code:",
		kind:   kindInput,
	},
	{
		Name:   "email_verification",
		Marker: "Confirmation code",
		Prompt: "Enter email verification code:",
		kind:   kindInput,
	},
	{
		Name:   "phone_or_email",
		Marker: "Phone or email",
		Prompt: "Enter email or phone number:",
		kind:   kindInput,
	},
	{
		Name:   "phone_verification",
		Marker: "Verify your phone",
		Prompt: "Enter phone verification code:",
		kind:   kindInput,
	},
	{
		Name:   "phone_identity",
		Marker: "Phone number",
		Prompt: "Enter the phone number:",
		kind:   kindInput,
	},
	{
		Name:   "captcha",
		Marker: "Confirm you're not a robot",
		kind:   kindUnsupported,
	},
	{
		Name:   "captcha_arkose",
		Marker: "Verify you are human",
		kind:   kindUnsupported,
	},
}
