package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/radieske/live-odds-client/internal/live-odds/market"
	"github.com/radieske/live-odds-client/internal/live-odds/marketnames"
	"github.com/radieske/live-odds-client/internal/live-odds/model"
	"github.com/radieske/live-odds-client/internal/live-odds/presence"
	"github.com/radieske/live-odds-client/internal/live-odds/projection"
	"github.com/radieske/live-odds-client/internal/live-odds/session"
	"github.com/radieske/live-odds-client/internal/live-odds/store"
)

// Subscriptions é o que a API usa da sessão
type Subscriptions interface {
	Subscribe(ctx context.Context, sport string, page int) error
	RefreshCount(ctx context.Context) (model.PaginationState, error)
	Status() session.Status
	Pagination() model.PaginationState
}

// MarketCache guarda mercados classificados por (evento, versão); opcional
type MarketCache interface {
	GetMarkets(ctx context.Context, eventID string, version uint64, dst any) (bool, error)
	SetMarkets(ctx context.Context, eventID string, version uint64, v any) error
}

// API expõe a visão reconciliada dos eventos ao vivo.
// Toda leitura parte de um único snapshot da store, então uma resposta nunca mistura versões.
type API struct {
	Log      *zap.Logger
	Store    *store.Store
	Engine   *projection.Engine
	Presence *presence.Tracker
	Names    *marketnames.Catalog
	Session  Subscriptions
	Cache    MarketCache  // nil desliga o cache
	WS       http.Handler // nil não expõe /ws
}

// Router retorna o roteador HTTP com os endpoints REST
func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/v1/events", a.listEvents)               // visão filtrada e agrupada
	r.Get("/v1/leagues", a.listLeagues)             // grupos de competição
	r.Get("/v1/events/{id}", a.getEvent)            // um evento
	r.Get("/v1/events/{id}/markets", a.listMarkets) // mercados classificados
	r.Get("/v1/viewers", a.getViewers)
	r.Get("/v1/pagination", a.getPagination)
	r.Get("/v1/subscription", a.getSubscription)
	r.Post("/v1/subscription", a.subscribe)
	if a.WS != nil {
		r.Get("/ws", a.WS.ServeHTTP)
	}
	return r
}

// writeJSON serializa a resposta em JSON e define o status HTTP
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// sport vem da query; sem ela vale o esporte da inscrição atual
func (a *API) sport(r *http.Request) string {
	if v, ok := r.URL.Query()["sport"]; ok {
		return strings.TrimSpace(v[0])
	}
	return a.Session.Status().Sport
}

func (a *API) view(r *http.Request) *projection.View {
	return a.Engine.View(a.Store.Snapshot(), a.sport(r))
}

type eventsResponse struct {
	*projection.View
	Viewers    int                   `json:"viewers"`
	Pagination model.PaginationState `json:"pagination"`
}

func (a *API) listEvents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, eventsResponse{
		View:       a.view(r),
		Viewers:    a.Presence.Count(),
		Pagination: a.Session.Pagination(),
	})
}

type league struct {
	Competition string `json:"competition"`
	Events      int    `json:"events"`
}

func (a *API) listLeagues(w http.ResponseWriter, r *http.Request) {
	v := a.view(r)
	out := make([]league, 0, len(v.Groups))
	for _, g := range v.Groups {
		out = append(out, league{Competition: g.Competition, Events: len(g.Events)})
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) getEvent(w http.ResponseWriter, r *http.Request) {
	ev, ok := a.Store.Snapshot().Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

type marketsResponse struct {
	EventID string          `json:"eventId"`
	Version uint64          `json:"version"`
	Markets []market.Market `json:"markets"`
}

// listMarkets agrupa as odds por mercado e classifica cada grupo, preferencialmente do cache
func (a *API) listMarkets(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snap := a.Store.Snapshot()
	ev, ok := snap.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	if a.Cache != nil {
		var cached marketsResponse
		if hit, err := a.Cache.GetMarkets(r.Context(), id, snap.Version(), &cached); err != nil {
			a.log().Warn("market cache read failed", zap.String("event_id", id), zap.Error(err))
		} else if hit {
			writeJSON(w, http.StatusOK, cached)
			return
		}
	}

	home, away := ev.HomeLabel(), ev.AwayLabel()
	groups := projection.GroupMarkets(ev)
	resp := marketsResponse{EventID: id, Version: snap.Version(), Markets: make([]market.Market, 0, len(groups))}
	for _, g := range groups {
		m := market.Classify(g.MarketID, g.Entries, home, away)
		if a.Names != nil {
			m.Name = a.Names.Name(g.MarketID, ev.Sport)
		}
		resp.Markets = append(resp.Markets, m)
	}

	if a.Cache != nil {
		if err := a.Cache.SetMarkets(r.Context(), id, snap.Version(), resp); err != nil {
			a.log().Warn("market cache write failed", zap.String("event_id", id), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) getViewers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"count": a.Presence.Count(),
		"state": a.Presence.State().String(),
	})
}

// getPagination devolve a paginação conhecida; refresh=true consulta o servidor antes
func (a *API) getPagination(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("refresh") != "true" {
		writeJSON(w, http.StatusOK, a.Session.Pagination())
		return
	}
	p, err := a.Session.RefreshCount(r.Context())
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, session.ErrNotSubscribed) {
			status = http.StatusConflict
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) getSubscription(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.Session.Status())
}

type subscribeRequest struct {
	Sport string `json:"sport"`
	Page  *int   `json:"page,omitempty"`
}

// subscribe troca o esporte/página. Falha de join mantém o último estado conhecido (502).
func (a *API) subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	req.Sport = strings.TrimSpace(req.Sport)
	if req.Sport == "" {
		writeError(w, http.StatusBadRequest, "sport is required")
		return
	}
	page := 1
	if req.Page != nil {
		page = *req.Page
	}
	if page < 1 {
		writeError(w, http.StatusBadRequest, "page must be >= 1, got "+strconv.Itoa(page))
		return
	}

	err := a.Session.Subscribe(r.Context(), req.Sport, page)
	var jerr *session.ChannelJoinError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, a.Session.Status())
	case errors.As(err, &jerr):
		writeJSON(w, http.StatusBadGateway, a.Session.Status())
	case errors.Is(err, context.Canceled):
		writeError(w, http.StatusConflict, "subscription superseded")
	default:
		writeError(w, http.StatusServiceUnavailable, err.Error())
	}
}

func (a *API) log() *zap.Logger {
	if a.Log == nil {
		return zap.NewNop()
	}
	return a.Log
}
