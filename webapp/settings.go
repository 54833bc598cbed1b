package webapp

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/ts4z/trz/he"
	"github.com/ts4z/trz/model"
	"github.com/ts4z/trz/protocol"
	"github.com/ts4z/trz/varz"
)

var (
	clientClosedWhileListening = varz.NewInt("clientClosedWhileListening")
	timedOutWhileListening     = varz.NewInt("timedOutWhileListening")
	errorListening             = varz.NewInt("errorListening")
	listenNotifiedClient       = varz.NewInt("listenNotifiedClient")
)

// settingsResponse carries the settings as stored, with nulls, and as
// they apply.
type settingsResponse struct {
	Settings        *model.AppSettings      `json:"settings"`
	Resolved        *model.ResolvedSettings `json:"resolved"`
	ProtocolVersion int                     `json:"protocolVersion"`
}

func (app *App) respondSettings(ctx context.Context, w http.ResponseWriter, a *model.AppSettings) {
	writeJSON(ctx, w, http.StatusOK, &settingsResponse{
		Settings:        a,
		Resolved:        a.Resolve(app.settings.Defaults()),
		ProtocolVersion: protocol.Version,
	})
}

// handleGetSettings returns the current settings.  ?refresh=1 skips every
// cache, which clients do when they regain focus.
func (app *App) handleGetSettings(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	var a *model.AppSettings
	var err error
	if r.URL.Query().Get("refresh") != "" {
		a, err = app.settings.Refresh(ctx)
	} else {
		a, err = app.settings.Current(ctx)
	}
	if err != nil {
		sendError(ctx, w, "fetch settings", err)
		return
	}
	app.respondSettings(ctx, w, a)
}

func validatePatch(p *model.SettingsPatch) error {
	if p.Empty() {
		return he.HTTPCodedErrorf(http.StatusBadRequest, "Nenhuma configuração enviada.")
	}
	if p.EntryFee.Value != nil && p.EntryFee.Value.IsNegative() {
		return he.HTTPCodedErrorf(http.StatusBadRequest, "Valor da inscrição não pode ser negativo.")
	}
	if p.FixedProfit.Value != nil && p.FixedProfit.Value.IsNegative() {
		return he.HTTPCodedErrorf(http.StatusBadRequest, "Lucro fixo não pode ser negativo.")
	}
	if p.AdjustmentMode.Value != nil && !p.AdjustmentMode.Value.Valid() {
		return he.HTTPCodedErrorf(http.StatusBadRequest, "Modo de ajuste inválido: %q.", *p.AdjustmentMode.Value)
	}
	if rules := p.PrizeRules.Value; rules != nil {
		if rules.KillPrize.IsNegative() {
			return he.HTTPCodedErrorf(http.StatusBadRequest, "Prêmio por abate não pode ser negativo.")
		}
		for rank, prize := range rules.PlacementPrizes {
			if rank < 1 {
				return he.HTTPCodedErrorf(http.StatusBadRequest, "Posição inválida: %d.", rank)
			}
			if prize.IsNegative() {
				return he.HTTPCodedErrorf(http.StatusBadRequest, "Prêmio da posição %d não pode ser negativo.", rank)
			}
		}
	}
	return nil
}

func (app *App) handleSaveSettings(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	var patch model.SettingsPatch
	if !decodeBody(w, r, &patch, "Corpo inválido. Envie as configurações a alterar.") {
		return
	}
	if err := validatePatch(&patch); err != nil {
		sendError(ctx, w, "validate settings", err)
		return
	}
	saved, err := app.settings.Save(ctx, &patch)
	if err != nil {
		sendError(ctx, w, "save settings", err)
		return
	}
	app.respondSettings(ctx, w, saved)
}

// handleSettingsListen blocks until the settings move past the client's
// version, the client goes away, or the listen timeout passes.
func (app *App) handleSettingsListen(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	var req struct {
		Version         int64 `json:"version"`
		ProtocolVersion int   `json:"protocolVersion"`
	}
	if !decodeBody(w, r, &req, "Corpo inválido. Envie { version, protocolVersion }") {
		return
	}
	version := req.Version
	if req.ProtocolVersion != protocol.Version {
		// trash the version number, we will need an update immediately and
		// the client will have to reload
		version = -1
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	errCh := make(chan error, 1)
	ch := make(chan *model.AppSettings, 1)
	app.settings.Listen(ctx, version, errCh, ch)

	select {
	case err := <-errCh:
		errorListening.Add(1)
		sendError(ctx, w, "listen for settings change", err)
	case a := <-ch:
		listenNotifiedClient.Add(1)
		app.respondSettings(ctx, w, a)
	case <-app.clock.After(app.listenTimeout):
		timedOutWhileListening.Add(1)
		sendError(ctx, w, "wait for settings update",
			he.HTTPCodedErrorf(http.StatusGatewayTimeout, "timeout"))
	case <-r.Context().Done():
		clientClosedWhileListening.Add(1)
		zerolog.Ctx(ctx).Debug().Msg("client closed connection while listening for settings")
	}
}
