package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
)

// HMACGateway verifies gateway capture callbacks by recomputing the
// provider signature over orderID and amount with the merchant secret.
type HMACGateway struct {
	serverKey string
}

// NewHMACGateway constructs the verifier.
func NewHMACGateway(serverKey string) *HMACGateway {
	return &HMACGateway{serverKey: serverKey}
}

// VerifyCapture implements PaymentGateway.
func (g *HMACGateway) VerifyCapture(ctx context.Context, orderID, signature string, amountCents int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if orderID == "" || signature == "" {
		return fmt.Errorf("orderID and signature are required")
	}
	mac := hmac.New(sha512.New, []byte(g.serverKey))
	fmt.Fprintf(mac, "%s%d", orderID, amountCents)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return fmt.Errorf("signature mismatch for order %s", orderID)
	}
	return nil
}
