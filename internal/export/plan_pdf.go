// Package export renders a PrecisionPlan to PDF (spec.md §6's
// export_plan_pdf(plan_id) → binary). Structure follows CarbonScribe's
// reports/export.PDFGenerator (title/subtitle/date header, a summary
// section, table sections with alternating row shading), narrowed from
// its generic tabular-report shape to the plan's own sections.
package export

import (
	"bytes"
	"fmt"

	"github.com/demeterfield/pipeline/internal/models"
	"github.com/jung-kurt/gofpdf"
)

const (
	headerR, headerG, headerB       = 46, 111, 64
	altRowR, altRowG, altRowB       = 240, 245, 240
	fontFamily                      = "Arial"
	bodyFontSize                    = 10
)

// PlanToPDF renders a PrecisionPlan as a binary PDF document.
func PlanToPDF(plan models.PrecisionPlan) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 18, 15)
	pdf.SetAutoPageBreak(true, 18)
	pdf.AddPage()

	addTitle(pdf, plan)
	addSummary(pdf, plan)
	addRecommendations(pdf, plan)
	addSchedule(pdf, plan)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func addTitle(pdf *gofpdf.Fpdf, plan models.PrecisionPlan) {
	pdf.SetFont(fontFamily, "B", 16)
	pdf.CellFormat(0, 10, "Precision Application Plan", "", 1, "C", false, 0, "")

	pdf.SetFont(fontFamily, "", bodyFontSize+1)
	pdf.SetTextColor(90, 90, 90)
	subtitle := fmt.Sprintf("Field %s · %s %s season · %.1f ha", plan.FieldID, plan.CropType, plan.Season, plan.TotalAreaHa)
	pdf.CellFormat(0, 7, subtitle, "", 1, "C", false, 0, "")

	pdf.SetFont(fontFamily, "", bodyFontSize-1)
	pdf.SetTextColor(128, 128, 128)
	pdf.CellFormat(0, 6, "Generated: "+plan.CreatedAt.Format("2006-01-02 15:04 MST"), "", 1, "R", false, 0, "")
	pdf.SetTextColor(0, 0, 0)
	pdf.Ln(6)
}

func addSummary(pdf *gofpdf.Fpdf, plan models.PrecisionPlan) {
	pdf.SetFont(fontFamily, "B", bodyFontSize+2)
	pdf.CellFormat(0, 8, "Plan Summary", "", 1, "L", false, 0, "")
	pdf.Ln(1)

	rows := [][2]string{
		{"Total Cost", fmt.Sprintf("$%.2f", plan.Summary.TotalCostUSD)},
		{"Expected Revenue", fmt.Sprintf("$%.2f", plan.Summary.ExpectedRevenueUSD)},
		{"Net Benefit", fmt.Sprintf("$%.2f", plan.Summary.NetBenefitUSD)},
		{"Payback Period", paybackLabel(plan.Summary.PaybackMonths)},
		{"Sustainability Score", fmt.Sprintf("%.1f / 100", plan.Summary.SustainabilityScore)},
	}
	pdf.SetFont(fontFamily, "", bodyFontSize)
	for _, row := range rows {
		pdf.SetFont(fontFamily, "B", bodyFontSize)
		pdf.CellFormat(55, 6, row[0]+":", "", 0, "L", false, 0, "")
		pdf.SetFont(fontFamily, "", bodyFontSize)
		pdf.CellFormat(0, 6, row[1], "", 1, "L", false, 0, "")
	}
	pdf.Ln(6)
}

func paybackLabel(months float64) string {
	if months > 1e6 {
		return "not recoverable this season"
	}
	return fmt.Sprintf("%.1f months", months)
}

func addRecommendations(pdf *gofpdf.Fpdf, plan models.PrecisionPlan) {
	if len(plan.Recommendations) == 0 {
		pdf.SetFont(fontFamily, "I", bodyFontSize)
		pdf.CellFormat(0, 8, "No variable-rate applications triggered for this field.", "", 1, "L", false, 0, "")
		return
	}

	pdf.SetFont(fontFamily, "B", bodyFontSize+2)
	pdf.CellFormat(0, 8, "Recommended Applications", "", 1, "L", false, 0, "")
	pdf.Ln(1)

	widths := []float64{42, 40, 28, 28, 28, 14}
	labels := []string{"Application", "Product", "Rate", "Quantity", "Cost (USD)", "ROI %"}

	pdf.SetFont(fontFamily, "B", bodyFontSize)
	pdf.SetFillColor(headerR, headerG, headerB)
	pdf.SetTextColor(255, 255, 255)
	for i, label := range labels {
		pdf.CellFormat(widths[i], 8, label, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetTextColor(0, 0, 0)
	pdf.SetFont(fontFamily, "", bodyFontSize-1)
	for i, rec := range plan.Recommendations {
		if i%2 == 1 {
			pdf.SetFillColor(altRowR, altRowG, altRowB)
		} else {
			pdf.SetFillColor(255, 255, 255)
		}
		rate := fmt.Sprintf("%.1f %s", rec.BaseRate, rec.RateUnit)
		quantity := fmt.Sprintf("%.1f %s", rec.TotalQuantity, rec.RateUnit)
		cost := fmt.Sprintf("%.2f", rec.EstimatedCostUSD)
		roi := fmt.Sprintf("%.0f%%", rec.ExpectedOutcome.ROIPct)

		pdf.CellFormat(widths[0], 7, string(rec.ApplicationKind), "1", 0, "L", true, 0, "")
		pdf.CellFormat(widths[1], 7, rec.Product, "1", 0, "L", true, 0, "")
		pdf.CellFormat(widths[2], 7, rate, "1", 0, "R", true, 0, "")
		pdf.CellFormat(widths[3], 7, quantity, "1", 0, "R", true, 0, "")
		pdf.CellFormat(widths[4], 7, cost, "1", 0, "R", true, 0, "")
		pdf.CellFormat(widths[5], 7, roi, "1", 0, "R", true, 0, "")
		pdf.Ln(-1)

		for _, zone := range rec.Zones {
			pdf.SetFont(fontFamily, "I", bodyFontSize-2)
			pdf.SetTextColor(110, 110, 110)
			zoneLine := fmt.Sprintf("  %s zone: %.1f ha at %.1f %s — %s", zone.ZoneID, zone.AreaHa, zone.Rate, rec.RateUnit, zone.Rationale)
			pdf.CellFormat(0, 5, zoneLine, "", 1, "L", false, 0, "")
			pdf.SetTextColor(0, 0, 0)
			pdf.SetFont(fontFamily, "", bodyFontSize-1)
		}
	}
	pdf.Ln(6)
}

func addSchedule(pdf *gofpdf.Fpdf, plan models.PrecisionPlan) {
	if len(plan.Schedule) == 0 {
		return
	}
	pdf.SetFont(fontFamily, "B", bodyFontSize+2)
	pdf.CellFormat(0, 8, "Implementation Schedule", "", 1, "L", false, 0, "")
	pdf.Ln(1)

	for _, bucket := range plan.Schedule {
		pdf.SetFont(fontFamily, "B", bodyFontSize)
		pdf.CellFormat(0, 6, "Week of "+bucket.WeekStart.Format("2006-01-02"), "", 1, "L", false, 0, "")
		pdf.SetFont(fontFamily, "", bodyFontSize-1)
		for _, task := range bucket.Tasks {
			pdf.CellFormat(0, 5, "  • "+task, "", 1, "L", false, 0, "")
		}
	}
}
