package models

const (
	SourceLead     = "lead"
	SourceCustomer = "customer"
)

// LeadOrCustomerSummary is one row of GET /leads/search.
type LeadOrCustomerSummary struct {
	ID           ID     `json:"id"`
	SourceType   string `json:"source_type"`
	LeadID       ID     `json:"lead_id,omitempty"`
	CustomerID   ID     `json:"customer_id,omitempty"`
	FullName     string `json:"full_name"`
	EmailAddress string `json:"email_address"`
	PhoneNumber  string `json:"phone_number"`
	CompanyName  string `json:"company_name,omitempty"`
	JobTitle     string `json:"job_title,omitempty"`
	Status       string `json:"status"`
	Source       string `json:"source,omitempty"`
}

// RefID is the identifier a payment should reference: lead_id for leads,
// customer_id for customers, falling back to id.
func (l LeadOrCustomerSummary) RefID() ID {
	switch l.SourceType {
	case SourceLead:
		if l.LeadID != "" {
			return l.LeadID
		}
	case SourceCustomer:
		if l.CustomerID != "" {
			return l.CustomerID
		}
	}
	return l.ID
}
