// Package analysis runs a whole tournament analysis: read every
// screenshot, price the teams under the current settings, and save the
// report.
package analysis

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/ts4z/trz/dep"
	"github.com/ts4z/trz/extract"
	"github.com/ts4z/trz/he"
	"github.com/ts4z/trz/model"
	"github.com/ts4z/trz/paytable"
	"github.com/ts4z/trz/ranking"
	"github.com/ts4z/trz/state"
	"github.com/ts4z/trz/textutil"
	"github.com/ts4z/trz/varz"
)

var (
	analysesPersisted = varz.NewInt("analysesPersisted")
	analysesFailed    = varz.NewInt("analysesFailed")
)

// MatchExtractor reads the teams off one screenshot.
type MatchExtractor interface {
	ExtractMatches(ctx context.Context, img extract.Image) ([]model.MatchResult, error)
}

// SettingsSource provides the settings in force.
type SettingsSource interface {
	Resolved(ctx context.Context) (*model.ResolvedSettings, error)
}

type Config struct {
	Settings  SettingsSource
	Extractor MatchExtractor
	Store     *state.ReportStore
	Policy    paytable.Policy
	Clock     clockwork.Clock
	Location  *time.Location
	// Delay is the minimum gap between screenshots sent upstream.
	Delay time.Duration
}

type Analyzer struct {
	settings  SettingsSource
	extractor MatchExtractor
	store     *state.ReportStore
	policy    paytable.Policy
	clock     clockwork.Clock
	loc       *time.Location
	queue     *extract.Queue
}

func New(cfg *Config) *Analyzer {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Analyzer{
		settings:  dep.Required(cfg.Settings),
		extractor: dep.Required(cfg.Extractor),
		store:     dep.Required(cfg.Store),
		policy:    cfg.Policy,
		clock:     clock,
		loc:       loc,
		queue:     extract.NewQueue(clock, cfg.Delay),
	}
}

type Request struct {
	Images     []extract.Image `json:"images"`
	SlotsSold  *int            `json:"slotsSold"`
	Tournament string          `json:"tournament"`
}

func (a *Analyzer) slots(n *int) (int, error) {
	if n == nil {
		return a.policy.ReferenceSlots, nil
	}
	if *n < 0 {
		return 0, he.HTTPCodedErrorf(http.StatusBadRequest, "Vagas vendidas não pode ser negativo.")
	}
	return *n, nil
}

// Analyze extracts every image in order, stopping at the first failure,
// and saves the ranked result.  Nothing is saved if any image fails.
func (a *Analyzer) Analyze(ctx context.Context, req *Request) (*model.AnalysisRecord, error) {
	log := zerolog.Ctx(ctx)

	if len(req.Images) == 0 {
		return nil, he.HTTPCodedErrorf(http.StatusBadRequest, "Envie ao menos uma imagem.")
	}
	for _, img := range req.Images {
		if !img.Valid() {
			return nil, he.New(http.StatusBadRequest, extract.ErrInvalidImage)
		}
	}
	slots, err := a.slots(req.SlotsSold)
	if err != nil {
		return nil, err
	}

	settings, err := a.settings.Resolved(ctx)
	if err != nil {
		return nil, fmt.Errorf("can't load settings: %w", err)
	}
	t := tournament(settings, slots)
	adjusted := a.policy.Adjust(settings.PrizeRules, t)

	batches := make([][]model.MatchResult, len(req.Images))
	err = a.queue.Run(ctx, len(req.Images), func(ctx context.Context, i int) error {
		results, err := a.extractor.ExtractMatches(ctx, req.Images[i])
		if err != nil {
			return fmt.Errorf("imagem %d: %w", i+1, err)
		}
		log.Debug().Int("image", i+1).Int("teams", len(results)).Msg("image read")
		batches[i] = results
		return nil
	})
	if err != nil {
		analysesFailed.Add(1)
		return nil, err
	}

	now := a.clock.Now()
	label := strings.TrimSpace(req.Tournament)
	if label == "" {
		label = textutil.FormatDateTimeBR(now, a.loc)
	}
	id, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("can't make report id: %w", err)
	}

	record := &model.AnalysisRecord{
		ID:         id,
		CreatedAt:  now.UTC(),
		Tournament: &label,
		Entries:    ranking.Assemble(batches, paytable.EffectiveTable(adjusted, settings.PrizeRules)),
		Config: model.AnalysisConfigSnapshot{
			EntryFee:       settings.EntryFee,
			SlotsSold:      slots,
			PrizeRules:     *settings.PrizeRules.Clone(),
			AdjustedPrizes: adjusted,
			AdjustmentMode: settings.AdjustmentMode,
			FixedProfit:    settings.FixedProfit,
		},
	}
	if err := a.store.Add(ctx, record); err != nil {
		analysesFailed.Add(1)
		return nil, fmt.Errorf("can't save report: %w", err)
	}
	analysesPersisted.Add(1)
	log.Info().Str("report", id).Int("images", len(req.Images)).Int("teams", len(record.Entries)).Msg("analysis saved")
	return record, nil
}

func tournament(s *model.ResolvedSettings, slots int) paytable.Tournament {
	return paytable.Tournament{
		SlotsSold:   slots,
		EntryFee:    s.EntryFee,
		Mode:        s.AdjustmentMode,
		FixedProfit: s.FixedProfit,
	}
}

// PreviewRequest asks what the prizes would be for a lobby.  Nil fields
// take the current settings.
type PreviewRequest struct {
	SlotsSold      *int                  `json:"slotsSold"`
	EntryFee       *decimal.Decimal      `json:"entryFee"`
	AdjustmentMode *model.AdjustmentMode `json:"adjustmentMode"`
	FixedProfit    *decimal.Decimal      `json:"fixedProfit"`
}

type Preview struct {
	SlotsSold       int               `json:"slotsSold"`
	Collected       decimal.Decimal   `json:"collected"`
	OrganizerProfit decimal.Decimal   `json:"organizerProfit"`
	PrizePool       decimal.Decimal   `json:"prizePool"`
	AdjustedPrizes  *model.PrizeRules `json:"adjustedPrizes"`
	Effective       *model.PrizeRules `json:"effective"`
}

// Preview prices a hypothetical lobby without extracting or saving
// anything.
func (a *Analyzer) Preview(ctx context.Context, req *PreviewRequest) (*Preview, error) {
	slots, err := a.slots(req.SlotsSold)
	if err != nil {
		return nil, err
	}
	settings, err := a.settings.Resolved(ctx)
	if err != nil {
		return nil, fmt.Errorf("can't load settings: %w", err)
	}
	if req.EntryFee != nil {
		settings.EntryFee = *req.EntryFee
	}
	if req.AdjustmentMode != nil {
		if !req.AdjustmentMode.Valid() {
			return nil, he.HTTPCodedErrorf(http.StatusBadRequest, "Modo de ajuste inválido: %q.", *req.AdjustmentMode)
		}
		settings.AdjustmentMode = *req.AdjustmentMode
	}
	if req.FixedProfit != nil {
		settings.FixedProfit = *req.FixedProfit
	}

	t := tournament(settings, slots)
	adjusted := a.policy.Adjust(settings.PrizeRules, t)
	return &Preview{
		SlotsSold:       slots,
		Collected:       t.Collected(),
		OrganizerProfit: a.policy.OrganizerProfit(t),
		PrizePool:       a.policy.PrizePool(t),
		AdjustedPrizes:  adjusted,
		Effective:       paytable.EffectiveTable(adjusted, settings.PrizeRules),
	}, nil
}
