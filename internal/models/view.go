package models

// ViewID names one top-level console view. The set is closed.
type ViewID string

const (
	ViewPaymentCreate  ViewID = "payment-create"
	ViewPaymentRecords ViewID = "payment-records"
	ViewUserAdmin      ViewID = "user-admin"
)

// KnownViews lists every view in navigation order.
var KnownViews = []ViewID{ViewPaymentCreate, ViewPaymentRecords, ViewUserAdmin}

func (v ViewID) Valid() bool {
	for _, known := range KnownViews {
		if v == known {
			return true
		}
	}
	return false
}

// ViewDescriptor is one navigation entry.
type ViewDescriptor struct {
	ID          ViewID `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

// ActionEditReceipt gates the only client-side mutation of a payment.
const ActionEditReceipt = "edit-receipt"
