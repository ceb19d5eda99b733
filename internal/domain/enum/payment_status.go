package enum

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// PaymentStatus represents how much of a receipt has been settled
type PaymentStatus int

const (
	PaymentStatusPending PaymentStatus = 0
	PaymentStatusPartial PaymentStatus = 1
	PaymentStatusPaid    PaymentStatus = 2
)

var paymentStatusNames = [...]string{"pending", "partial", "paid"}

// PaymentStatusFor derives the status from the settled and outstanding
// amounts. A zero-total receipt has nothing outstanding and counts as paid.
func PaymentStatusFor(amountPaid, balanceRemaining int64) PaymentStatus {
	switch {
	case balanceRemaining <= 0:
		return PaymentStatusPaid
	case amountPaid == 0:
		return PaymentStatusPending
	default:
		return PaymentStatusPartial
	}
}

func (s PaymentStatus) String() string {
	if s < 0 || int(s) >= len(paymentStatusNames) {
		return fmt.Sprintf("PaymentStatus(%d)", int(s))
	}
	return paymentStatusNames[s]
}

// ParsePaymentStatus parses the lower-case wire name of a status.
func ParsePaymentStatus(str string) (PaymentStatus, error) {
	for i, name := range paymentStatusNames {
		if name == str {
			return PaymentStatus(i), nil
		}
	}
	return PaymentStatusPending, fmt.Errorf("unknown payment status %q", str)
}

func (s PaymentStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *PaymentStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		var i int
		if err := json.Unmarshal(data, &i); err != nil {
			return err
		}
		*s = PaymentStatus(i)
		return nil
	}
	parsed, err := ParsePaymentStatus(str)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func (s PaymentStatus) Value() (driver.Value, error) {
	return int64(s), nil
}

func (s *PaymentStatus) Scan(value interface{}) error {
	if value == nil {
		*s = PaymentStatusPending
		return nil
	}
	switch v := value.(type) {
	case int64:
		*s = PaymentStatus(v)
	case int:
		*s = PaymentStatus(v)
	default:
		return fmt.Errorf("cannot scan %T into PaymentStatus", value)
	}
	return nil
}
