package webapp

import (
	"context"
	"net/http"
	"strings"

	"github.com/ts4z/trz/analysis"
	"github.com/ts4z/trz/extract"
	"github.com/ts4z/trz/model"
	"github.com/ts4z/trz/textutil"
)

const (
	usageAnalyze   = "Corpo inválido. Envie { image: { data, mimeType } }"
	usageOCR       = "Corpo inválido. Envie { images: [{ data, mimeType }, ...] }"
	usageCalculate = `Corpo inválido. Envie { text: "..." }`
	usageAnalysis  = "Corpo inválido. Envie { images: [{ data, mimeType }, ...], slotsSold, tournament }"
	usagePreview   = "Corpo inválido. Envie { slotsSold, entryFee, adjustmentMode, fixedProfit }"
)

func (app *App) handleAnalyze(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	var req struct {
		Image *extract.Image `json:"image"`
	}
	if !decodeBody(w, r, &req, usageAnalyze) {
		return
	}
	if req.Image == nil || !req.Image.Valid() {
		sendError(ctx, w, "analyze image", badRequest(usageAnalyze))
		return
	}
	results, err := app.extractor.ExtractMatches(ctx, *req.Image)
	if err != nil {
		sendError(ctx, w, "analyze image", err)
		return
	}
	if results == nil {
		results = []model.MatchResult{}
	}
	writeJSON(ctx, w, http.StatusOK, results)
}

type ocrResponse struct {
	Texts     []string `json:"texts"`
	Formatted string   `json:"formatted"`
}

func (app *App) handleOCR(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	var req struct {
		Images []extract.Image `json:"images"`
	}
	if !decodeBody(w, r, &req, usageOCR) {
		return
	}
	if len(req.Images) == 0 {
		sendError(ctx, w, "read text", badRequest(usageOCR))
		return
	}
	texts, err := app.extractor.ExtractText(ctx, req.Images)
	if err != nil {
		sendError(ctx, w, "read text", err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, &ocrResponse{Texts: texts, Formatted: extract.FormatTexts(texts)})
}

func decodeText(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req struct {
		Text *string `json:"text"`
	}
	if !decodeBody(w, r, &req, usageCalculate) {
		return "", false
	}
	if req.Text == nil || strings.TrimSpace(*req.Text) == "" {
		sendError(r.Context(), w, "read body", badRequest(usageCalculate))
		return "", false
	}
	return *req.Text, true
}

func (app *App) handleCalculate(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	text, ok := decodeText(w, r)
	if !ok {
		return
	}
	result, err := app.extractor.SumValues(ctx, text)
	if err != nil {
		sendError(ctx, w, "sum values", err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, result)
}

// handleCalculateLocal does what handleCalculate does without the model.
func (app *App) handleCalculateLocal(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	text, ok := decodeText(w, r)
	if !ok {
		return
	}
	values := app.money.Extract(text)
	writeJSON(ctx, w, http.StatusOK, &model.MoneyResult{Values: values, Total: textutil.SumMoney(values)})
}

func (app *App) handleAnalysis(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	var req analysis.Request
	if !decodeBody(w, r, &req, usageAnalysis) {
		return
	}
	record, err := app.analyzer.Analyze(ctx, &req)
	if err != nil {
		sendError(ctx, w, "analyze tournament", err)
		return
	}
	writeJSON(ctx, w, http.StatusCreated, record)
}

func (app *App) handlePrizePreview(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	var req analysis.PreviewRequest
	if !decodeBody(w, r, &req, usagePreview) {
		return
	}
	preview, err := app.analyzer.Preview(ctx, &req)
	if err != nil {
		sendError(ctx, w, "preview prizes", err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, preview)
}
