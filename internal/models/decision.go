package models

// ActionKind is the concrete action the executor dispatches for an approved item
type ActionKind string

const (
	ActionReplyEmail      ActionKind = "reply_email"
	ActionSendEmail       ActionKind = "send_email"
	ActionSendWhatsApp    ActionKind = "send_whatsapp"
	ActionCreateInvoice   ActionKind = "create_invoice"
	ActionCreateCRMLead   ActionKind = "create_crm_lead"
	ActionCreateSaleOrder ActionKind = "create_sale_order"
	ActionUpdateCRMStage  ActionKind = "update_crm_stage"
	ActionNone            ActionKind = "no_action"
)

// ActionKinds lists every kind the Reasoner may return
var ActionKinds = []ActionKind{
	ActionReplyEmail,
	ActionSendEmail,
	ActionSendWhatsApp,
	ActionCreateInvoice,
	ActionCreateCRMLead,
	ActionCreateSaleOrder,
	ActionUpdateCRMStage,
	ActionNone,
}

// IsValid reports whether k is a known action kind
func (k ActionKind) IsValid() bool {
	for _, known := range ActionKinds {
		if k == known {
			return true
		}
	}
	return false
}

// LineItem is an invoice or sale order line
type LineItem struct {
	Description string  `json:"description,omitempty"`
	ProductName string  `json:"product_name,omitempty"`
	Quantity    float64 `json:"quantity"`
	PriceUnit   float64 `json:"price_unit"`
}

// Decision is the Reasoner's tagged action for an approved item
type Decision struct {
	Action          ActionKind `json:"action" validate:"required,action_kind"`
	To              string     `json:"to,omitempty"`
	Subject         string     `json:"subject,omitempty"`
	Body            string     `json:"body,omitempty"`
	MessageID       string     `json:"message_id,omitempty"`
	PartnerName     string     `json:"partner_name,omitempty"`
	Lines           []LineItem `json:"lines,omitempty"`
	LeadName        string     `json:"lead_name,omitempty"`
	StageName       string     `json:"stage_name,omitempty"`
	ExpectedRevenue float64    `json:"expected_revenue,omitempty"`
	LeadType        string     `json:"lead_type,omitempty"`
	Reason          string     `json:"reason,omitempty"`
}

// Target returns the most specific recipient or record the decision addresses
func (d Decision) Target() string {
	for _, v := range []string{d.MessageID, d.To, d.LeadName, d.PartnerName} {
		if v != "" {
			return v
		}
	}
	return ""
}

// Outcome is what an action provider reports back
type Outcome struct {
	Summary    string
	Target     string
	Parameters map[string]any
}
