package pdf

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderReceiptProducesPDF(t *testing.T) {
	r := NewMarotoRenderer("")
	doc, err := r.RenderReceipt(context.Background(), ReceiptData{
		ReceiptNumber: "1799",
		TransactionID: "01J0000000000000000000000",
		GatewayTrxID:  "TRX123",
		Channel:       "bkash",
		PaidAt:        "2026-06-01 10:00 UTC",
		Status:        "successful",
		PayerName:     "Asha",
		CourseTitle:   "Go for Backend Engineers",
		Amount:        "50.00",
		Currency:      "BDT",
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(doc, []byte("%PDF")))
	assert.Equal(t, "shikkha", r.issuer)
}
