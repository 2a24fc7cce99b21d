package chain

import (
	"github.com/acem702/Ekehi-Network/internal/address"
	"github.com/acem702/Ekehi-Network/internal/errors"
)

// ValidateTransactionShape applies the structural admission rules shared by
// mempool admission and full chain replay validation, so a transaction is
// never accepted by one path and rejected by the other. It does not check
// balance; callers that have chain state available should additionally
// check that.
func ValidateTransactionShape(t Transaction, minFee float64, reservedSenders []string) error {
	if t.TransactionID == "" {
		return errors.New(errors.KindInvalidTransaction, "missing transactionId")
	}

	if !address.Validate(t.Sender, reservedSenders...) {
		return errors.New(errors.KindInvalidAddress, "invalid sender address %q", t.Sender)
	}

	if !address.Validate(t.Recipient, reservedSenders...) {
		return errors.New(errors.KindInvalidAddress, "invalid recipient address %q", t.Recipient)
	}

	if t.Sender == t.Recipient {
		return errors.New(errors.KindInvalidTransaction, "sender and recipient must differ")
	}

	if t.Amount <= 0 {
		return errors.New(errors.KindInvalidTransaction, "amount must be positive")
	}

	if t.Fee < 0 {
		return errors.New(errors.KindInvalidTransaction, "fee must be non-negative")
	}

	if !isReserved(t.Sender, reservedSenders) && t.Fee < minFee {
		return errors.New(errors.KindInvalidTransaction, "fee %.8f below minimum %.8f", t.Fee, minFee)
	}

	return nil
}

func isReserved(sender string, reservedSenders []string) bool {
	if sender == CoinbaseSender {
		return true
	}
	for _, r := range reservedSenders {
		if sender == r {
			return true
		}
	}
	return false
}

// IsReserved reports whether sender is the coinbase token or one of the
// node's reserved system senders.
func IsReserved(sender string, reservedSenders []string) bool {
	return isReserved(sender, reservedSenders)
}
