package adapter

import (
	"net/url"
	"strings"

	qr "github.com/skip2/go-qrcode"
)

// ReceiptQRGenerator renders QR codes pointing at the public receipt
// verification page.
type ReceiptQRGenerator struct {
	baseURL string
	size    int
}

// NewReceiptQRGenerator creates a generator producing size x size PNGs.
func NewReceiptQRGenerator(baseURL string, size int) *ReceiptQRGenerator {
	if size <= 0 {
		size = 256
	}
	return &ReceiptQRGenerator{baseURL: strings.TrimRight(baseURL, "/"), size: size}
}

// VerificationURL returns the URL encoded in the receipt's QR code.
func (g *ReceiptQRGenerator) VerificationURL(receiptNumber string) string {
	return g.baseURL + "/receipts/" + url.PathEscape(receiptNumber)
}

// Generate returns a PNG QR code for the receipt.
func (g *ReceiptQRGenerator) Generate(receiptNumber string) ([]byte, error) {
	return qr.Encode(g.VerificationURL(receiptNumber), qr.Medium, g.size)
}
