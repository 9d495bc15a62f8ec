package indexer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chainsafe/crowdfund-indexer/pkg/bitcoin"
	"github.com/chainsafe/crowdfund-indexer/pkg/indexer"
	"github.com/chainsafe/crowdfund-indexer/pkg/ledger"
	"github.com/chainsafe/crowdfund-indexer/pkg/stats"
	"github.com/chainsafe/crowdfund-indexer/pkg/syncstate"
)

const (
	campaignA = "0x00000000000000000000000000000000000000000000000000000000000000aa"
	creator   = "0x1111111111111111111111111111111111111111"
)

type mockStatus struct {
	ready  bool
	passes []indexer.PassResult
}

func (m *mockStatus) Status() []indexer.PassResult { return m.passes }
func (m *mockStatus) Ready() bool                  { return m.ready }
func (m *mockStatus) Networks() []string           { return []string{"sepolia", "base-sepolia"} }

type mockExplorer struct {
	fail bool
}

func (m *mockExplorer) Address(_ context.Context, address string) (*bitcoin.AddressInfo, error) {
	if m.fail {
		return nil, errors.New("explorer returned status 503")
	}
	return &bitcoin.AddressInfo{
		Address:      address,
		ChainStats:   bitcoin.TxoStats{FundedTxoSum: 500000000, TxCount: 1},
		MempoolStats: bitcoin.TxoStats{FundedTxoSum: 25000000, TxCount: 1},
	}, nil
}

func (m *mockExplorer) AddressTxs(context.Context, string) ([]bitcoin.Tx, error) {
	return nil, nil
}

func testXPub(t *testing.T) string {
	t.Helper()
	master, err := hdkeychain.NewMaster(bytes.Repeat([]byte{0x42}, 32), &chaincfg.TestNet3Params)
	require.NoError(t, err)
	pub, err := master.Neuter()
	require.NoError(t, err)
	return pub.String()
}

func testMonitor(t *testing.T, explorer bitcoin.Explorer) *bitcoin.Monitor {
	t.Helper()
	d, err := bitcoin.NewDeriver(testXPub(t), "testnet")
	require.NoError(t, err)
	return bitcoin.NewMonitor(d, explorer, 2, zap.NewNop())
}

type apiFixture struct {
	status  *mockStatus
	cursors *syncstate.MemoryStore
	router  http.Handler
}

func newAPIFixture(t *testing.T, monitor *bitcoin.Monitor) *apiFixture {
	t.Helper()
	store := ledger.NewMemoryStore()
	_, err := store.SaveEvents(context.Background(), []*ledger.Event{
		{
			ID: "sepolia-0x01-0", Network: "sepolia", BlockNumber: 1, EventName: ledger.EventCampaignCreated,
			CampaignID: campaignA, Args: map[string]any{"id": campaignA, "creator": creator},
			BlockTimestamp: time.Unix(1, 0).UTC(),
		},
		{
			ID: "sepolia-0x02-0", Network: "sepolia", BlockNumber: 2, EventName: ledger.EventFundsLocked,
			CampaignID: campaignA, Args: map[string]any{"id": campaignA, "donor": "0xd1", "amount": "100"},
			BlockTimestamp: time.Unix(2, 0).UTC(),
		},
		{
			ID: "base-sepolia-0x03-0", Network: "base-sepolia", BlockNumber: 3, EventName: ledger.EventFundsLocked,
			CampaignID: campaignA, Args: map[string]any{"id": campaignA, "donor": "0xd2", "amount": "7"},
			BlockTimestamp: time.Unix(3, 0).UTC(),
		},
	})
	require.NoError(t, err)

	f := &apiFixture{status: &mockStatus{}, cursors: syncstate.NewMemoryStore()}
	var btc stats.BitcoinStats
	if monitor != nil {
		btc = monitor
	}
	projector := stats.New(store, btc, nil, zap.NewNop())
	h := NewHandler(f.status, f.cursors, store, projector, monitor, zap.NewNop())
	f.router = NewRouter(h, true)
	return f
}

func (f *apiFixture) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), "body: %s", rec.Body.String())
}

func TestAPI_HealthAndReady(t *testing.T) {
	f := newAPIFixture(t, nil)

	assert.Equal(t, http.StatusOK, f.get(t, "/health").Code)

	rec := f.get(t, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "NOT_READY", rec.Body.String())

	f.status.ready = true
	rec = f.get(t, "/ready")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "READY", rec.Body.String())

	assert.Equal(t, http.StatusOK, f.get(t, "/metrics").Code)
}

func TestAPI_SyncStatus(t *testing.T) {
	f := newAPIFixture(t, nil)
	require.NoError(t, f.cursors.Reset(context.Background(), "sepolia", 151))
	f.status.passes = []indexer.PassResult{{Network: "sepolia", Head: 150, Advanced: true}}

	rec := f.get(t, "/api/v1/sync/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Ready    bool `json:"ready"`
		Networks []struct {
			Network  string              `json:"network"`
			Cursor   *uint64             `json:"cursor"`
			LastPass *indexer.PassResult `json:"last_pass"`
		} `json:"networks"`
	}
	decode(t, rec, &body)
	require.Len(t, body.Networks, 2)
	assert.Equal(t, "sepolia", body.Networks[0].Network)
	require.NotNil(t, body.Networks[0].Cursor)
	assert.Equal(t, uint64(151), *body.Networks[0].Cursor)
	require.NotNil(t, body.Networks[0].LastPass)
	assert.True(t, body.Networks[0].LastPass.Advanced)
	assert.Nil(t, body.Networks[1].Cursor)
}

func TestAPI_CampaignEvents(t *testing.T) {
	f := newAPIFixture(t, nil)

	var body struct {
		Events []ledger.Event `json:"events"`
	}
	rec := f.get(t, "/api/v1/campaigns/"+strings.ToUpper(campaignA)+"/events")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &body)
	require.Len(t, body.Events, 3)
	assert.Equal(t, "base-sepolia", body.Events[0].Network, "newest first")

	rec = f.get(t, "/api/v1/campaigns/"+campaignA+"/events?network=sepolia&limit=1")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &body)
	require.Len(t, body.Events, 1)
	assert.Equal(t, ledger.EventFundsLocked, body.Events[0].EventName)
	assert.Equal(t, "100", body.Events[0].Args["amount"])
}

func TestAPI_BadLimit(t *testing.T) {
	f := newAPIFixture(t, nil)

	for _, q := range []string{"limit=abc", "limit=0", "limit=-3"} {
		rec := f.get(t, "/api/v1/campaigns/"+campaignA+"/events?"+q)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)

		var body struct {
			Error string `json:"error"`
			Code  int    `json:"code"`
		}
		decode(t, rec, &body)
		assert.Equal(t, http.StatusBadRequest, body.Code)
		assert.Contains(t, body.Error, "limit")
	}
}

func TestAPI_CampaignTotals(t *testing.T) {
	f := newAPIFixture(t, nil)

	rec := f.get(t, "/api/v1/campaigns/"+campaignA+"/totals")
	require.Equal(t, http.StatusOK, rec.Code)

	var totals stats.CampaignTotals
	decode(t, rec, &totals)
	assert.Equal(t, stats.SourceLedger, totals.Source)
	require.Len(t, totals.Buckets, 2)
	assert.Equal(t, "base-sepolia", totals.Buckets[0].Network)
	assert.Equal(t, "7", totals.Buckets[0].Amount.String())
	assert.Equal(t, 2, totals.Backers)
}

func TestAPI_CreatorRoutes(t *testing.T) {
	f := newAPIFixture(t, nil)

	var events struct {
		Campaigns []string       `json:"campaigns"`
		Events    []ledger.Event `json:"events"`
	}
	rec := f.get(t, "/api/v1/creators/"+strings.ToUpper(creator)+"/events?limit=2")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &events)
	assert.Equal(t, []string{campaignA}, events.Campaigns)
	assert.Len(t, events.Events, 2)

	var totals stats.CreatorTotals
	rec = f.get(t, "/api/v1/creators/"+creator+"/totals")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &totals)
	assert.Equal(t, []string{campaignA}, totals.Campaigns)
	assert.Equal(t, 2, totals.Backers)

	rec = f.get(t, "/api/v1/creators/0x9999999999999999999999999999999999999999/events")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"campaigns":[],"events":[]}`, rec.Body.String())
}

func TestAPI_BitcoinNotConfigured(t *testing.T) {
	f := newAPIFixture(t, nil)

	for _, path := range []string{
		"/api/v1/bitcoin/campaigns/campaign-1/address",
		"/api/v1/bitcoin/campaigns/campaign-1/stats",
		"/api/v1/bitcoin/stats?ids=campaign-1",
	} {
		assert.Equal(t, http.StatusNotImplemented, f.get(t, path).Code, path)
	}

	rec := f.get(t, "/api/v1/campaigns/campaign-1/totals?currency=BTC")
	require.Equal(t, http.StatusOK, rec.Code)
	var totals stats.CampaignTotals
	decode(t, rec, &totals)
	assert.NotEmpty(t, totals.Error)
}

func TestAPI_BitcoinRoutes(t *testing.T) {
	monitor := testMonitor(t, &mockExplorer{})
	f := newAPIFixture(t, monitor)

	want, err := monitor.Deriver().DeriveAddress("campaign-1")
	require.NoError(t, err)

	var addr struct {
		InternalID string `json:"internal_id"`
		Address    string `json:"address"`
		Index      uint32 `json:"index"`
		Network    string `json:"network"`
	}
	rec := f.get(t, "/api/v1/bitcoin/campaigns/campaign-1/address")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &addr)
	assert.Equal(t, want, addr.Address)
	assert.Equal(t, bitcoin.IndexFor("campaign-1"), addr.Index)
	assert.Equal(t, "testnet3", addr.Network)

	var st bitcoin.AddressStats
	rec = f.get(t, "/api/v1/bitcoin/campaigns/campaign-1/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &st)
	assert.Equal(t, "5.25", st.TotalReceived.String())
	assert.True(t, st.HasPending)

	var batch struct {
		Results []bitcoin.BatchEntry `json:"results"`
	}
	rec = f.get(t, "/api/v1/bitcoin/stats?ids=campaign-1,%20campaign-2,,")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &batch)
	require.Len(t, batch.Results, 2)
	assert.Equal(t, "campaign-2", batch.Results[1].InternalID)

	var totals stats.CampaignTotals
	rec = f.get(t, "/api/v1/campaigns/x/totals?currency=btc&internal_id=campaign-1")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &totals)
	assert.Equal(t, stats.SourceBitcoin, totals.Source)
	assert.Equal(t, "5.25", totals.Buckets[0].Amount.String())
}

func TestAPI_BitcoinBatchValidation(t *testing.T) {
	f := newAPIFixture(t, testMonitor(t, &mockExplorer{}))

	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/v1/bitcoin/stats").Code)

	ids := make([]string, 101)
	for i := range ids {
		ids[i] = "c"
	}
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/v1/bitcoin/stats?ids="+strings.Join(ids, ",")).Code)
}

func TestAPI_BitcoinExplorerFailure(t *testing.T) {
	f := newAPIFixture(t, testMonitor(t, &mockExplorer{fail: true}))

	rec := f.get(t, "/api/v1/bitcoin/campaigns/campaign-1/stats")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.NotContains(t, rec.Body.String(), "503", "upstream details stay in the logs")
}
