package domain

// Capability names advertised by participants.
const (
	CapabilityInstantPayment = "instant_payment"
	CapabilityStatusQuery    = "status_query"
)

// Participant is a bank or fintech reachable for instant payment routing.
type Participant struct {
	ID             string   `json:"participant_id" yaml:"id"`
	Name           string   `json:"name" yaml:"name"`
	Endpoint       string   `json:"endpoint" yaml:"endpoint"`
	Capabilities   []string `json:"capabilities" yaml:"capabilities"`
	CallbackSecret string   `json:"-" yaml:"callback_secret"`
}

// Supports reports whether the participant advertises a capability.
func (p *Participant) Supports(capability string) bool {
	for _, c := range p.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}
