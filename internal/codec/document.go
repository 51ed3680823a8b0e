package codec

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/goodsign/monday"

	"njoy-gate/internal/status"
	"njoy-gate/models"
)

const (
	eventNameBudget = 35
	venueBudget     = 30
	filenameBudget  = 30
)

type labels struct {
	locale       monday.Locale
	dateLayout   string
	dayLayout    string
	dateUnknown  string
	venueUnknown string
	holder       string
	free         string
	defaultGenre string
	valid        string
	used         string
	dateHeading  string
	venueHeading string
	guestHeading string
	ownerHeading string
	priceHeading string
	footerNotes  []string
}

var labelSets = map[string]labels{
	"es": {
		locale:       monday.LocaleEsES,
		dateLayout:   "Monday, 2 de January de 2006, 15:04",
		dayLayout:    "2/1/2006",
		dateUnknown:  "Fecha por confirmar",
		venueUnknown: "Por confirmar",
		holder:       "Portador de la entrada",
		free:         "Gratis",
		defaultGenre: "EVENTO",
		valid:        "ENTRADA VÁLIDA",
		used:         "ENTRADA USADA",
		dateHeading:  "FECHA Y HORA",
		venueHeading: "RECINTO",
		guestHeading: "ASISTENTE",
		ownerHeading: "COMPRADOR",
		priceHeading: "PRECIO",
		footerNotes: []string{
			"Presenta este código QR en la entrada del evento para acceder.",
			"Esta entrada es personal e intransferible.",
		},
	},
	"en": {
		locale:       monday.LocaleEnUS,
		dateLayout:   "Monday, January 2, 2006, 15:04",
		dayLayout:    "1/2/2006",
		dateUnknown:  "Date to be confirmed",
		venueUnknown: "To be confirmed",
		holder:       "Ticket holder",
		free:         "Free",
		defaultGenre: "EVENT",
		valid:        "VALID TICKET",
		used:         "USED TICKET",
		dateHeading:  "DATE AND TIME",
		venueHeading: "VENUE",
		guestHeading: "ATTENDEE",
		ownerHeading: "PURCHASER",
		priceHeading: "PRICE",
		footerNotes: []string{
			"Show this QR code at the event entrance.",
			"This ticket is personal and non-transferable.",
		},
	},
}

func labelsFor(locale string) labels {
	if l, ok := labelSets[strings.ToLower(locale)]; ok {
		return l
	}
	return labelSets["es"]
}

// Layout is the text content of a ticket document, resolved with all
// fallbacks applied.
type Layout struct {
	Genre      string
	EventName  string
	DateText   string
	Venue      string
	Attendee   string
	Owner      string
	PriceText  string
	Free       bool
	Code       string
	Valid      bool
	StatusText string
	Footer     []string
}

// BuildLayout resolves what a ticket document shows. now stamps the footer.
func BuildLayout(t models.Ticket, now time.Time, locale string) Layout {
	l := labelsFor(locale)
	ev := t.Event

	lay := Layout{
		Genre:     strings.ToUpper(strings.TrimSpace(ev.Genre)),
		EventName: clip(strings.TrimSpace(ev.Name), eventNameBudget),
		DateText:  l.dateUnknown,
		Venue:     clip(strings.TrimSpace(ev.Venue), venueBudget),
		Attendee:  strings.TrimSpace(t.AttendeeName),
		Owner:     strings.TrimSpace(t.OwnerName),
		Free:      ev.IsFree(),
		Code:      DeriveCode(t),
		Valid:     t.Activated,
	}
	if lay.Genre == "" {
		lay.Genre = l.defaultGenre
	}
	if !ev.StartsAt.IsZero() {
		lay.DateText = monday.Format(ev.StartsAt.Time, l.dateLayout, l.locale)
	}
	if lay.Venue == "" {
		lay.Venue = l.venueUnknown
	}
	if lay.Attendee == "" {
		lay.Attendee = l.holder
	}
	if lay.Free {
		lay.PriceText = l.free
	} else {
		lay.PriceText = ev.Price.Decimal.StringFixed(2) + " €"
	}
	if lay.Valid {
		lay.StatusText = l.valid
	} else {
		lay.StatusText = l.used
	}
	lay.Footer = append([]string{
		fmt.Sprintf("Generado por nJoy • %s", monday.Format(now, l.dayLayout, l.locale)),
	}, l.footerNotes...)
	return lay
}

// clip keeps the first n runes of s and appends an ellipsis when it cut.
func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

var nonAlnum = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// DocumentFilename builds Entrada-<code>-<event>.pdf with the event name
// reduced to ASCII letters, digits and single dashes.
func DocumentFilename(t models.Ticket) string {
	name := nonAlnum.ReplaceAllString(t.Event.Name, "-")
	if len(name) > filenameBudget {
		name = name[:filenameBudget]
	}
	code := nonAlnum.ReplaceAllString(DeriveCode(t), "-")
	return fmt.Sprintf("Entrada-%s-%s.pdf", code, name)
}

// QRFilename is the default file name for a ticket's QR image.
func QRFilename(t models.Ticket) string {
	return "qr-" + nonAlnum.ReplaceAllString(DeriveCode(t), "-") + ".png"
}

type Document struct {
	Filename string
	Data     []byte
}

// Save writes the document into dir. The file appears complete or not at all.
func (d *Document) Save(dir string) (string, error) {
	tmp, err := os.CreateTemp(dir, ".entrada-*.pdf")
	if err != nil {
		return "", fmt.Errorf("save document: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(d.Data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("save document: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("save document: close: %w", err)
	}
	path := filepath.Join(dir, d.Filename)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("save document: rename: %w", err)
	}
	return path, nil
}

var (
	colorPrimary = [3]int{102, 126, 234}
	colorAccent  = [3]int{236, 72, 153}
	colorDark    = [3]int{30, 30, 50}
	colorGray    = [3]int{100, 100, 100}
	colorLight   = [3]int{240, 240, 240}
	colorValid   = [3]int{16, 185, 129}
	colorUsed    = [3]int{239, 68, 68}
)

const (
	pageMargin   = 15.0
	headerHeight = 60.0
	qrSizeMM     = 70.0
)

// RenderDocument lays out a single A4 page for the ticket around the given
// PNG barcode. Nothing is returned unless the whole page rendered.
func RenderDocument(t models.Ticket, qrPNG []byte, now time.Time, locale string) (*Document, error) {
	if len(qrPNG) == 0 {
		return nil, fmt.Errorf("render document: missing barcode image: %w", status.ErrCodec)
	}
	lay := BuildLayout(t, now, locale)
	l := labelsFor(locale)

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCreationDate(now)
	pdf.SetTitle("Entrada "+lay.Code, true)
	pdf.SetCreator("nJoy", true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pageW, _ := pdf.GetPageSize()
	contentW := pageW - 2*pageMargin

	// header gradient
	for i := 0; i < int(headerHeight); i++ {
		ratio := float64(i) / headerHeight
		pdf.SetFillColor(
			mix(colorPrimary[0], colorAccent[0], ratio),
			mix(colorPrimary[1], colorAccent[1], ratio),
			mix(colorPrimary[2], colorAccent[2], ratio),
		)
		pdf.Rect(0, float64(i), pageW, 1.5, "F")
	}

	pdf.SetFillColor(255, 255, 255)
	pdf.Rect(pageMargin, 15, 50, 10, "F")
	setText(pdf, colorPrimary)
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetXY(pageMargin, 15)
	pdf.CellFormat(50, 10, tr(models.Truncate(lay.Genre, 20)), "", 0, "C", false, 0, "")

	pdf.SetTextColor(255, 255, 255)
	pdf.SetFont("Helvetica", "B", 24)
	pdf.Text(pageMargin, 48, tr(lay.EventName))

	// info box
	y := headerHeight + 20
	setFill(pdf, colorLight)
	pdf.Rect(pageMargin, y-5, contentW, 70, "F")

	half := pageMargin + contentW/2
	field(pdf, tr, pageMargin+5, y, l.dateHeading, lay.DateText, 11, colorDark)
	field(pdf, tr, half, y, l.venueHeading, lay.Venue, 11, colorDark)
	field(pdf, tr, pageMargin+5, y+23, l.guestHeading, lay.Attendee, 11, colorDark)
	field(pdf, tr, half, y+23, l.priceHeading, lay.PriceText, 14, colorPrimary)
	if lay.Owner != "" {
		field(pdf, tr, pageMargin+5, y+46, l.ownerHeading, lay.Owner, 11, colorDark)
	}

	// barcode
	y += 85
	pdf.SetDrawColor(200, 200, 200)
	pdf.SetDashPattern([]float64{3, 3}, 0)
	pdf.Rect(pageMargin, y, contentW, 120, "D")
	pdf.SetDashPattern([]float64{}, 0)

	opts := fpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("qr", opts, bytes.NewReader(qrPNG))
	pdf.ImageOptions("qr", (pageW-qrSizeMM)/2, y+10, qrSizeMM, qrSizeMM, false, opts, 0, "")

	setText(pdf, colorDark)
	pdf.SetFont("Courier", "B", 16)
	pdf.SetXY(pageMargin, y+84)
	pdf.CellFormat(contentW, 8, tr(lay.Code), "", 0, "C", false, 0, "")

	badge := colorUsed
	if lay.Valid {
		badge = colorValid
	}
	setFill(pdf, badge)
	pdf.Rect((pageW-60)/2, y+97, 60, 12, "F")
	pdf.SetTextColor(255, 255, 255)
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetXY((pageW-60)/2, y+97)
	pdf.CellFormat(60, 12, tr(lay.StatusText), "", 0, "C", false, 0, "")

	// footer
	y += 135
	pdf.SetDrawColor(200, 200, 200)
	pdf.SetDashPattern([]float64{2, 2}, 0)
	pdf.Line(pageMargin, y, pageW-pageMargin, y)
	pdf.SetDashPattern([]float64{}, 0)

	setText(pdf, colorGray)
	for i, line := range lay.Footer {
		size := 8.0
		if i == 0 {
			size = 9
		}
		pdf.SetFont("Helvetica", "", size)
		pdf.SetXY(pageMargin, y+4+float64(i)*6)
		pdf.CellFormat(contentW, 6, tr(line), "", 0, "C", false, 0, "")
	}

	if pdf.Err() {
		return nil, fmt.Errorf("render document: %v: %w", pdf.Error(), status.ErrCodec)
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render document: output: %v: %w", err, status.ErrCodec)
	}
	return &Document{Filename: DocumentFilename(t), Data: buf.Bytes()}, nil
}

func field(pdf *fpdf.Fpdf, tr func(string) string, x, y float64, heading, value string, size float64, color [3]int) {
	setText(pdf, colorGray)
	pdf.SetFont("Helvetica", "B", 9)
	pdf.Text(x, y+5, tr(heading))
	setText(pdf, color)
	style := ""
	if size > 11 {
		style = "B"
	}
	pdf.SetFont("Helvetica", style, size)
	pdf.Text(x, y+13, tr(value))
}

func setText(pdf *fpdf.Fpdf, c [3]int) { pdf.SetTextColor(c[0], c[1], c[2]) }
func setFill(pdf *fpdf.Fpdf, c [3]int) { pdf.SetFillColor(c[0], c[1], c[2]) }

func mix(a, b int, ratio float64) int {
	return a + int(float64(b-a)*ratio+0.5)
}
