package indexer

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apperrors "github.com/chainsafe/crowdfund-indexer/pkg/app/errors"
	apphttp "github.com/chainsafe/crowdfund-indexer/pkg/app/http"
	"github.com/chainsafe/crowdfund-indexer/pkg/bitcoin"
	"github.com/chainsafe/crowdfund-indexer/pkg/indexer"
	"github.com/chainsafe/crowdfund-indexer/pkg/ledger"
	"github.com/chainsafe/crowdfund-indexer/pkg/stats"
	"github.com/chainsafe/crowdfund-indexer/pkg/syncstate"
)

const (
	defaultHTTPMiddlewareTimeout = 60 * time.Second

	maxListLimit  = 500
	maxBatchIDs   = 100
	queryLimit    = "limit"
	queryNetwork  = "network"
	queryCurrency = "currency"
	queryInternal = "internal_id"
	queryIDs      = "ids"
)

// SyncStatus is the read side of the indexer scheduler.
type SyncStatus interface {
	Status() []indexer.PassResult
	Ready() bool
	Networks() []string
}

// Handler serves the read API.
type Handler struct {
	status    SyncStatus
	cursors   syncstate.Store
	ledger    ledger.Reader
	projector *stats.Projector
	monitor   *bitcoin.Monitor
	logger    *zap.Logger
}

// NewHandler creates a Handler. monitor may be nil when Bitcoin is disabled.
func NewHandler(status SyncStatus, cursors syncstate.Store, reader ledger.Reader, projector *stats.Projector, monitor *bitcoin.Monitor, logger *zap.Logger) *Handler {
	return &Handler{
		status:    status,
		cursors:   cursors,
		ledger:    reader,
		projector: projector,
		monitor:   monitor,
		logger:    logger.Named("api"),
	}
}

// NewRouter mounts the ops endpoints and the /api/v1 routes.
func NewRouter(h *Handler, metricsEnabled bool) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(defaultHTTPMiddlewareTimeout))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Get("/ready", func(w http.ResponseWriter, _ *http.Request) {
		if !h.status.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("NOT_READY"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("READY"))
	})

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	handle := func(fn apphttp.HandlerFunc) http.HandlerFunc {
		return apphttp.HandleError(h.logger, fn)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/sync/status", handle(h.syncStatus))

		r.Get("/campaigns/{id}/events", handle(h.campaignEvents))
		r.Get("/campaigns/{id}/totals", handle(h.campaignTotals))

		r.Get("/creators/{address}/events", handle(h.creatorEvents))
		r.Get("/creators/{address}/totals", handle(h.creatorTotals))

		r.Get("/bitcoin/campaigns/{internalID}/address", handle(h.bitcoinAddress))
		r.Get("/bitcoin/campaigns/{internalID}/stats", handle(h.bitcoinStats))
		r.Get("/bitcoin/stats", handle(h.bitcoinBatchStats))
	})

	return r
}

type networkStatus struct {
	Network  string              `json:"network"`
	Cursor   *uint64             `json:"cursor"`
	LastPass *indexer.PassResult `json:"last_pass,omitempty"`
}

func (h *Handler) syncStatus(w http.ResponseWriter, r *http.Request) error {
	cursors, err := h.cursors.List(r.Context())
	if err != nil {
		return apperrors.DependencyError(err, "failed to read sync cursors")
	}
	byNetwork := make(map[string]uint64, len(cursors))
	for _, c := range cursors {
		byNetwork[c.Network] = c.LastBlock
	}
	passes := make(map[string]indexer.PassResult)
	for _, p := range h.status.Status() {
		passes[p.Network] = p
	}

	out := make([]networkStatus, 0, len(h.status.Networks()))
	for _, name := range h.status.Networks() {
		ns := networkStatus{Network: name}
		if c, ok := byNetwork[name]; ok {
			ns.Cursor = &c
		}
		if p, ok := passes[name]; ok {
			ns.LastPass = &p
		}
		out = append(out, ns)
	}
	return apphttp.WriteJSON(w, map[string]any{
		"ready":    h.status.Ready(),
		"networks": out,
	})
}

func (h *Handler) campaignEvents(w http.ResponseWriter, r *http.Request) error {
	id := chi.URLParam(r, "id")
	limit, err := parseLimit(r, ledger.DefaultListLimit)
	if err != nil {
		return err
	}
	opts := []ledger.QueryOption{ledger.WithLimit(limit)}
	if n := r.URL.Query().Get(queryNetwork); n != "" {
		opts = append(opts, ledger.WithNetwork(n))
	}

	events, err := h.ledger.EventsForCampaign(r.Context(), id, opts...)
	if err != nil {
		return apperrors.DependencyError(err, "failed to read campaign events")
	}
	return apphttp.WriteJSON(w, map[string]any{"events": events})
}

func (h *Handler) campaignTotals(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()
	totals := h.projector.CampaignTotals(r.Context(), stats.Campaign{
		ID:         chi.URLParam(r, "id"),
		InternalID: q.Get(queryInternal),
		Currency:   q.Get(queryCurrency),
	})
	return apphttp.WriteJSON(w, totals)
}

func (h *Handler) creatorEvents(w http.ResponseWriter, r *http.Request) error {
	limit, err := parseLimit(r, ledger.DefaultListLimit)
	if err != nil {
		return err
	}
	creator := strings.ToLower(chi.URLParam(r, "address"))

	ids, err := h.ledger.CampaignsByCreator(r.Context(), creator)
	if err != nil {
		return apperrors.DependencyError(err, "failed to read creator campaigns")
	}
	if len(ids) == 0 {
		if ids, err = h.ledger.CampaignsByCreatorFromEvents(r.Context(), creator); err != nil {
			return apperrors.DependencyError(err, "failed to read creator campaigns")
		}
	}

	events := []*ledger.Event{}
	if len(ids) > 0 {
		if events, err = h.ledger.EventsForCampaigns(r.Context(), ids, limit); err != nil {
			return apperrors.DependencyError(err, "failed to read creator events")
		}
	}
	return apphttp.WriteJSON(w, map[string]any{"campaigns": ids, "events": events})
}

func (h *Handler) creatorTotals(w http.ResponseWriter, r *http.Request) error {
	return apphttp.WriteJSON(w, h.projector.CreatorTotals(r.Context(), chi.URLParam(r, "address")))
}

func (h *Handler) bitcoinAddress(w http.ResponseWriter, r *http.Request) error {
	if h.monitor == nil {
		return apperrors.NotConfiguredError(nil, "bitcoin is not configured")
	}
	id := chi.URLParam(r, "internalID")
	address, err := h.monitor.Deriver().DeriveAddress(id)
	if err != nil {
		return bitcoinError(err)
	}
	return apphttp.WriteJSON(w, map[string]any{
		"internal_id": id,
		"address":     address,
		"index":       bitcoin.IndexFor(id),
		"network":     h.monitor.Deriver().Network(),
	})
}

func (h *Handler) bitcoinStats(w http.ResponseWriter, r *http.Request) error {
	if h.monitor == nil {
		return apperrors.NotConfiguredError(nil, "bitcoin is not configured")
	}
	st, err := h.monitor.CampaignStats(r.Context(), chi.URLParam(r, "internalID"))
	if err != nil {
		return bitcoinError(err)
	}
	return apphttp.WriteJSON(w, st)
}

func (h *Handler) bitcoinBatchStats(w http.ResponseWriter, r *http.Request) error {
	if h.monitor == nil {
		return apperrors.NotConfiguredError(nil, "bitcoin is not configured")
	}
	var ids []string
	for _, id := range strings.Split(r.URL.Query().Get(queryIDs), ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return apperrors.BadRequestError(nil, "ids query parameter is required")
	}
	if len(ids) > maxBatchIDs {
		return apperrors.BadRequestError(nil, "too many ids, maximum is "+strconv.Itoa(maxBatchIDs))
	}
	return apphttp.WriteJSON(w, map[string]any{"results": h.monitor.BatchStats(r.Context(), ids)})
}

func bitcoinError(err error) error {
	if errors.Is(err, bitcoin.ErrEmptyInternalID) {
		return apperrors.BadRequestError(err, err.Error())
	}
	return apperrors.DependencyError(err, "bitcoin explorer request failed")
}

func parseLimit(r *http.Request, def int) (int, error) {
	raw := r.URL.Query().Get(queryLimit)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, apperrors.BadRequestError(err, "limit must be a positive integer")
	}
	if n > maxListLimit {
		n = maxListLimit
	}
	return n, nil
}
