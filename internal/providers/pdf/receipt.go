package pdf

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

type ReceiptData struct {
	ReceiptNumber string
	DatePaid      string
	ServicePeriod string
	BillToEmail   string
	PlanName      string
	Amount        string
}

func (p *PDFProvider) GenerateReceipt(ctx context.Context, data ReceiptData) (io.Reader, error) {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(20,
		text.NewCol(12, "Receipt", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	)

	m.AddRow(20,
		col.New(6).Add(
			text.New("Receipt number: "+data.ReceiptNumber, props.Text{Top: 0}),
			text.New("Date paid: "+data.DatePaid, props.Text{Top: 4}),
			text.New("Service period: "+data.ServicePeriod, props.Text{Top: 8}),
		),
		col.New(6).Add(
			text.New("ListingCraft", props.Text{Style: fontstyle.Bold}),
			text.New("billing@listingcraft.io", props.Text{Top: 5}),
		),
	)

	m.AddRow(15,
		col.New(12).Add(
			text.New("Bill to", props.Text{Style: fontstyle.Bold}),
			text.New(data.BillToEmail, props.Text{Top: 5}),
		),
	)

	m.AddRow(15,
		text.NewCol(12, data.Amount+" paid on "+data.DatePaid, props.Text{
			Size:  14,
			Style: fontstyle.Bold,
			Top:   5,
		}),
	)

	m.AddRow(10,
		text.NewCol(8, "Description", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(4, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	m.AddRow(15,
		text.NewCol(8, data.PlanName+" subscription", props.Text{Size: 9}),
		text.NewCol(4, data.Amount, props.Text{Size: 9, Align: align.Right}),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate receipt pdf: %w", err)
	}
	return bytes.NewReader(doc.GetBytes()), nil
}
