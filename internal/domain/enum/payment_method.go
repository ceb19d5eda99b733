package enum

// PaymentMethod is the tender used for a settlement entry
type PaymentMethod string

const (
	PaymentMethodCash        PaymentMethod = "cash"
	PaymentMethodPOS         PaymentMethod = "pos"
	PaymentMethodTransfer    PaymentMethod = "transfer"
	PaymentMethodCard        PaymentMethod = "card"
	PaymentMethodMobileMoney PaymentMethod = "mobile_money"
	PaymentMethodBankDeposit PaymentMethod = "bank_deposit"
	PaymentMethodCheque      PaymentMethod = "cheque"
	PaymentMethodStoreCredit PaymentMethod = "store_credit"
)

// IsValid reports whether m is one of the accepted tenders.
func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodPOS, PaymentMethodTransfer, PaymentMethodCard,
		PaymentMethodMobileMoney, PaymentMethodBankDeposit, PaymentMethodCheque,
		PaymentMethodStoreCredit:
		return true
	}
	return false
}

func (m PaymentMethod) String() string {
	return string(m)
}
