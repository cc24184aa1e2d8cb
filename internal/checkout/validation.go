package checkout

import (
	"regexp"
	"strings"

	apperrors "github.com/safar/electrostore/internal/errors"
	"github.com/safar/electrostore/internal/inventory"
)

const (
	ReasonInvalidPayment = "invalid_payment_details"
	ReasonInvalidCart    = "invalid_cart"
	ReasonInvalidAddress = "invalid_delivery_address"
	ReasonNotPurchasable = "product_not_purchasable"
)

var (
	cardNumberPattern = regexp.MustCompile(`^[0-9]{16}$`)
	cvvPattern        = regexp.MustCompile(`^[0-9]{3}$`)
	expiryPattern     = regexp.MustCompile(`^(0[1-9]|1[0-2])/([0-9]{2}|[0-9]{4})$`)
	separators        = strings.NewReplacer(" ", "", "-", "")
)

// NormalizeCardNumber strips the spaces and dashes customers type between
// digit groups.
func NormalizeCardNumber(number string) string {
	return separators.Replace(strings.TrimSpace(number))
}

// ValidateRequest checks the request shape before anything touches the
// database.
func ValidateRequest(req CreateOrderRequest) error {
	if req.UserID <= 0 {
		return invalid(ReasonInvalidCart, "user_id", "user is required")
	}
	if len(req.Lines) == 0 {
		return invalid(ReasonInvalidCart, "lines", "cart is empty")
	}
	for _, line := range req.Lines {
		if line.ProductID <= 0 || line.Quantity <= 0 {
			return invalid(ReasonInvalidCart, "lines", "every line needs a product and a positive quantity")
		}
		if line.Quantity > inventory.MaxQuantity {
			return invalid(ReasonInvalidCart, "lines", "quantity too large")
		}
	}
	if strings.TrimSpace(req.DeliveryAddress) == "" {
		return invalid(ReasonInvalidAddress, "delivery_address", "delivery address is required")
	}

	return ValidatePayment(req.Payment)
}

func ValidatePayment(p PaymentDetails) error {
	if !cardNumberPattern.MatchString(NormalizeCardNumber(p.CardNumber)) {
		return invalid(ReasonInvalidPayment, "card_number", "card number must have 16 digits")
	}
	if !cvvPattern.MatchString(strings.TrimSpace(p.CVV)) {
		return invalid(ReasonInvalidPayment, "cvv", "cvv must have 3 digits")
	}
	// Holder and expiry are stored for the record only; a given expiry must still parse.
	if expiry := strings.TrimSpace(p.Expiry); expiry != "" && !expiryPattern.MatchString(expiry) {
		return invalid(ReasonInvalidPayment, "expiry", "expiry must look like MM/YY or MM/YYYY")
	}
	return nil
}

func invalid(reason, field, message string) error {
	return apperrors.Validation(message, map[string]any{
		"reason": reason,
		"field":  field,
	})
}
