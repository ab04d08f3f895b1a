package pdf

import (
	"bytes"
	"context"
	"io"
	"strconv"

	settlementdomain "github.com/dinehall/dinehall/internal/settlement/domain"
	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

// BillLine is one printed order line.
type BillLine struct {
	Name     string
	Quantity int
	LineSum  string
}

// BillData carries everything the printed bill needs.
type BillData struct {
	RestaurantName string
	TableLabel     string
	SessionID      string
	OpenedAt       string
	Lines          []BillLine
	Total          string
}

// GenerateBill renders the pre-settlement bill handed to the guest.
func (p *PDFProvider) GenerateBill(ctx context.Context, data BillData) (io.Reader, error) {
	_ = ctx
	m := newDocument()

	m.AddRow(16,
		text.NewCol(12, data.RestaurantName, props.Text{
			Size:  16,
			Style: fontstyle.Bold,
			Align: align.Center,
		}),
	)
	m.AddRow(10,
		text.NewCol(12, "Bill", props.Text{Size: 12, Align: align.Center}),
	)
	m.AddRow(14,
		col.New(12).Add(
			text.New("Session: "+data.SessionID, props.Text{Top: 0}),
			text.New("Table: "+data.TableLabel, props.Text{Top: 4}),
			text.New("Opened: "+data.OpenedAt, props.Text{Top: 8}),
		),
	)

	addLines(m, data.Lines)

	m.AddRow(12,
		text.NewCol(8, "Total", props.Text{Style: fontstyle.Bold}),
		text.NewCol(4, data.Total, props.Text{Style: fontstyle.Bold, Align: align.Right}),
	)

	return render(m)
}

// GenerateReceipt renders the post-settlement receipt.
func (p *PDFProvider) GenerateReceipt(ctx context.Context, receipt settlementdomain.Receipt, data BillData) (io.Reader, error) {
	_ = ctx
	m := newDocument()

	m.AddRow(16,
		text.NewCol(12, data.RestaurantName, props.Text{
			Size:  16,
			Style: fontstyle.Bold,
			Align: align.Center,
		}),
	)
	m.AddRow(10,
		text.NewCol(12, "Receipt", props.Text{Size: 12, Align: align.Center}),
	)
	m.AddRow(14,
		col.New(12).Add(
			text.New("Session: "+data.SessionID, props.Text{Top: 0}),
			text.New("Paid: "+receipt.SettledAt.Format("2006-01-02 15:04:05"), props.Text{Top: 4}),
			text.New("Method: "+string(receipt.Method), props.Text{Top: 8}),
		),
	)

	addLines(m, data.Lines)

	m.AddRow(10,
		text.NewCol(8, "Total", props.Text{Style: fontstyle.Bold}),
		text.NewCol(4, receipt.Total.StringFixed(2), props.Text{Style: fontstyle.Bold, Align: align.Right}),
	)
	if receipt.Tendered != nil {
		m.AddRow(8,
			text.NewCol(8, "Tendered"),
			text.NewCol(4, receipt.Tendered.StringFixed(2), props.Text{Align: align.Right}),
		)
	}
	if receipt.Change != nil {
		m.AddRow(8,
			text.NewCol(8, "Change"),
			text.NewCol(4, receipt.Change.StringFixed(2), props.Text{Align: align.Right}),
		)
	}

	return render(m)
}

func newDocument() core.Maroto {
	cfg := config.NewBuilder().Build()
	return maroto.New(cfg)
}

func addLines(m core.Maroto, lines []BillLine) {
	for _, line := range lines {
		m.AddRow(8,
			text.NewCol(7, line.Name),
			text.NewCol(1, strconv.Itoa(line.Quantity), props.Text{Align: align.Right}),
			text.NewCol(4, line.LineSum, props.Text{Align: align.Right}),
		)
	}
}

func render(m core.Maroto) (io.Reader, error) {
	document, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(document.GetBytes()), nil
}
