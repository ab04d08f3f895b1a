package pdf

import (
	"context"
	"io"

	settlementdomain "github.com/dinehall/dinehall/internal/settlement/domain"
)

// Provider renders printable documents for the cashier flow.
type Provider interface {
	GenerateBill(ctx context.Context, data BillData) (io.Reader, error)
	GenerateReceipt(ctx context.Context, receipt settlementdomain.Receipt, data BillData) (io.Reader, error)
}

type PDFProvider struct{}

func NewProvider() Provider {
	return &PDFProvider{}
}
