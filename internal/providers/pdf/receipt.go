package pdf

import (
	"context"
	"strings"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
	appconfig "github.com/smallbiznis/shikkha/internal/config"
)

type ReceiptData struct {
	ReceiptNumber string
	TransactionID string
	GatewayTrxID  string
	Channel       string
	PaidAt        string
	Status        string

	PayerName  string
	PayerEmail string

	CourseTitle string
	Amount      string
	Currency    string
}

// Renderer turns payment data into a printable document.
type Renderer interface {
	RenderReceipt(ctx context.Context, data ReceiptData) ([]byte, error)
}

type MarotoRenderer struct {
	issuer string
}

func New(cfg appconfig.Config) Renderer {
	return NewMarotoRenderer(cfg.AppName)
}

func NewMarotoRenderer(issuer string) *MarotoRenderer {
	issuer = strings.TrimSpace(issuer)
	if issuer == "" {
		issuer = "shikkha"
	}
	return &MarotoRenderer{issuer: issuer}
}

func (r *MarotoRenderer) RenderReceipt(ctx context.Context, receipt ReceiptData) ([]byte, error) {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(20,
		text.NewCol(8, "Payment receipt", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(4, r.issuer, props.Text{
			Size:  12,
			Style: fontstyle.Bold,
			Align: align.Right,
		}),
	)

	m.AddRow(24,
		col.New(6).Add(
			text.New("Receipt number: "+receipt.ReceiptNumber, props.Text{Top: 0}),
			text.New("Transaction: "+receipt.TransactionID, props.Text{Top: 5}),
			text.New("Gateway reference: "+dash(receipt.GatewayTrxID), props.Text{Top: 10}),
			text.New("Date paid: "+dash(receipt.PaidAt), props.Text{Top: 15}),
		),
		col.New(6).Add(
			text.New("Billed to", props.Text{Style: fontstyle.Bold, Align: align.Right}),
			text.New(dash(receipt.PayerName), props.Text{Top: 5, Align: align.Right}),
			text.New(dash(receipt.PayerEmail), props.Text{Top: 10, Align: align.Right}),
		),
	)

	m.AddRow(15,
		text.NewCol(12, receipt.Currency+" "+receipt.Amount+" paid via "+receipt.Channel, props.Text{
			Size:  14,
			Style: fontstyle.Bold,
			Top:   5,
		}),
	)

	m.AddRow(10,
		text.NewCol(8, "Description", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(4, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	m.AddRow(12,
		text.NewCol(8, "Course enrollment: "+receipt.CourseTitle, props.Text{Size: 9}),
		text.NewCol(4, receipt.Amount, props.Text{Size: 9, Align: align.Right}),
	)
	m.AddRow(10,
		col.New(8),
		text.NewCol(2, "Total", props.Text{Size: 9, Style: fontstyle.Bold}),
		text.NewCol(2, receipt.Currency+" "+receipt.Amount, props.Text{Size: 9, Align: align.Right}),
	)
	m.AddRow(10,
		text.NewCol(12, "Status: "+receipt.Status, props.Text{Size: 8, Top: 4}),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return doc.GetBytes(), nil
}

func dash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
