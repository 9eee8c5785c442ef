package ingest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dstmrk/octotracker/internal/model"
	"github.com/dstmrk/octotracker/internal/store"
)

const testVAT = "01771990445"

const electricityXML = `<?xml version="1.0"?>
<PO_Offerte xmlns="http://www.example.org/offerte">
  <offerta>
    <IdentificativiOfferta>
      <PIVA_UTENTE>01771990445</PIVA_UTENTE>
      <COD_OFFERTA>OCTO-FIX-12</COD_OFFERTA>
    </IdentificativiOfferta>
    <DettaglioOfferta>
      <TIPO_MERCATO>01</TIPO_MERCATO>
      <TIPO_OFFERTA>01</TIPO_OFFERTA>
      <NOME_OFFERTA>Octopus Fissa 12M</NOME_OFFERTA>
    </DettaglioOfferta>
    <TipoPrezzo>
      <TIPOLOGIA_FASCE>01</TIPOLOGIA_FASCE>
    </TipoPrezzo>
    <ComponenteImpresa>
      <MACROAREA>01</MACROAREA>
      <IntervalloPrezzi>
        <PREZZO>72.0</PREZZO>
      </IntervalloPrezzi>
    </ComponenteImpresa>
    <ComponenteImpresa>
      <MACROAREA>04</MACROAREA>
      <IntervalloPrezzi>
        <PREZZO>0.1078</PREZZO>
      </IntervalloPrezzi>
    </ComponenteImpresa>
  </offerta>
  <offerta>
    <IdentificativiOfferta>
      <PIVA_UTENTE>01771990445</PIVA_UTENTE>
    </IdentificativiOfferta>
    <DettaglioOfferta>
      <TIPO_MERCATO>01</TIPO_MERCATO>
      <TIPO_OFFERTA>02</TIPO_OFFERTA>
      <NOME_OFFERTA>Octopus Flex Trioraria</NOME_OFFERTA>
    </DettaglioOfferta>
    <TipoPrezzo>
      <TIPOLOGIA_FASCE>03</TIPOLOGIA_FASCE>
    </TipoPrezzo>
    <ComponenteImpresa>
      <MACROAREA>01</MACROAREA>
      <IntervalloPrezzi>
        <PREZZO>72.0</PREZZO>
      </IntervalloPrezzi>
    </ComponenteImpresa>
    <ComponenteImpresa>
      <MACROAREA>04</MACROAREA>
      <IntervalloPrezzi>
        <FASCIA_COMPONENTE>01</FASCIA_COMPONENTE>
        <PREZZO>0.0088</PREZZO>
      </IntervalloPrezzi>
      <IntervalloPrezzi>
        <FASCIA_COMPONENTE>02</FASCIA_COMPONENTE>
        <PREZZO>0.0088</PREZZO>
      </IntervalloPrezzi>
    </ComponenteImpresa>
  </offerta>
  <offerta>
    <IdentificativiOfferta>
      <PIVA_UTENTE>12345678901</PIVA_UTENTE>
    </IdentificativiOfferta>
    <DettaglioOfferta>
      <TIPO_MERCATO>01</TIPO_MERCATO>
      <TIPO_OFFERTA>01</TIPO_OFFERTA>
      <NOME_OFFERTA>Altro Fornitore</NOME_OFFERTA>
    </DettaglioOfferta>
    <TipoPrezzo>
      <TIPOLOGIA_FASCE>01</TIPOLOGIA_FASCE>
    </TipoPrezzo>
    <ComponenteImpresa>
      <MACROAREA>04</MACROAREA>
      <IntervalloPrezzi>
        <PREZZO>0.0001</PREZZO>
      </IntervalloPrezzi>
    </ComponenteImpresa>
  </offerta>
</PO_Offerte>`

const gasXML = `<?xml version="1.0"?>
<PO_Offerte xmlns="http://www.example.org/offerte">
  <offerta>
    <IdentificativiOfferta>
      <PIVA_UTENTE>01771990445</PIVA_UTENTE>
    </IdentificativiOfferta>
    <DettaglioOfferta>
      <TIPO_MERCATO>02</TIPO_MERCATO>
      <TIPO_OFFERTA>02</TIPO_OFFERTA>
      <NOME_OFFERTA>Octopus Gas Flex</NOME_OFFERTA>
    </DettaglioOfferta>
    <TipoPrezzo>
      <TIPOLOGIA_FASCE>01</TIPOLOGIA_FASCE>
    </TipoPrezzo>
    <ComponenteImpresa>
      <MACROAREA>01</MACROAREA>
      <IntervalloPrezzi>
        <PREZZO>84.0</PREZZO>
      </IntervalloPrezzi>
    </ComponenteImpresa>
    <ComponenteImpresa>
      <MACROAREA>04</MACROAREA>
      <IntervalloPrezzi>
        <PREZZO>0.095</PREZZO>
      </IntervalloPrezzi>
    </ComponenteImpresa>
  </offerta>
</PO_Offerte>`

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func TestParseOffers_Electricity(t *testing.T) {
	snapshot := model.NewOfferSnapshot("2026-08-29")
	require.NoError(t, parseOffers([]byte(electricityXML), model.ServiceElectricity, testVAT, snapshot))

	fixed, ok := snapshot.Lookup(model.ServiceElectricity, model.KindFixed, model.BandSingle)
	require.True(t, ok)
	assert.True(t, fixed.EnergyRate.Equal(dec(t, "0.1078")))
	assert.True(t, fixed.CommercializationFee.Equal(dec(t, "72.0")))
	assert.Equal(t, "OCTO-FIX-12", fixed.OfferCode)

	variable, ok := snapshot.Lookup(model.ServiceElectricity, model.KindVariable, model.BandThreeTier)
	require.True(t, ok)
	assert.True(t, variable.EnergyRate.Equal(dec(t, "0.0088")))

	// The cheap offer from a different supplier must be ignored.
	rows := snapshot.Rows()
	assert.Len(t, rows, 2)
}

func TestParseOffers_Gas(t *testing.T) {
	snapshot := model.NewOfferSnapshot("2026-08-29")
	require.NoError(t, parseOffers([]byte(gasXML), model.ServiceGas, testVAT, snapshot))

	entry, ok := snapshot.Lookup(model.ServiceGas, model.KindVariable, model.BandSingle)
	require.True(t, ok)
	assert.True(t, entry.EnergyRate.Equal(dec(t, "0.095")))
	assert.True(t, entry.CommercializationFee.Equal(dec(t, "84.0")))
}

func TestClient_BuildURL(t *testing.T) {
	c := NewClient("https://example.org/offerteML", testVAT, 7, "")
	date := time.Date(2025, 11, 13, 10, 0, 0, 0, time.UTC)

	assert.Equal(t,
		"https://example.org/offerteML/2025_11/PO_Offerte_E_MLIBERO_20251113.xml",
		c.buildURL(date, model.ServiceElectricity))
	assert.Equal(t,
		"https://example.org/offerteML/2025_11/PO_Offerte_G_MLIBERO_20251113.xml",
		c.buildURL(date, model.ServiceGas))
}

func TestClient_FetchSnapshot(t *testing.T) {
	now := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/2026_08/PO_Offerte_E_MLIBERO_20260829.xml":
			fmt.Fprint(w, electricityXML)
		case "/2026_08/PO_Offerte_G_MLIBERO_20260829.xml":
			fmt.Fprint(w, gasXML)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testVAT, 7, "")
	snapshot, err := c.FetchSnapshot(now)
	require.NoError(t, err)

	assert.Equal(t, "2026-08-29", snapshot.SourceDate)
	assert.Len(t, snapshot.Rows(), 3)
}

func TestClient_FetchSnapshot_FallsBackDays(t *testing.T) {
	now := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Only the file from two days ago exists, and only for electricity.
		if r.URL.Path == "/2026_08/PO_Offerte_E_MLIBERO_20260827.xml" {
			fmt.Fprint(w, electricityXML)
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testVAT, 7, "")
	snapshot, err := c.FetchSnapshot(now)
	require.NoError(t, err)

	assert.Equal(t, "2026-08-27", snapshot.SourceDate)
	_, ok := snapshot.Lookup(model.ServiceElectricity, model.KindFixed, model.BandSingle)
	assert.True(t, ok)
}

func TestClient_FetchSnapshot_AllMissing(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	c := NewClient(srv.URL, testVAT, 2, "")
	_, err := c.FetchSnapshot(time.Now())
	assert.Error(t, err)
}

type staticFetcher struct {
	snapshot *model.OfferSnapshot
	err      error
}

func (f *staticFetcher) FetchSnapshot(time.Time) (*model.OfferSnapshot, error) {
	return f.snapshot, f.err
}

func TestProvider_RefreshAndCurrent(t *testing.T) {
	snapshot := model.NewOfferSnapshot("2026-08-29")
	snapshot.Put(model.ServiceElectricity, model.KindFixed, model.BandSingle, model.OfferEntry{
		EnergyRate:           dec(t, "0.130"),
		CommercializationFee: dec(t, "64.0"),
	})
	history := store.NewMemoryStore()
	p := NewProvider(&staticFetcher{snapshot: snapshot}, history)

	require.NoError(t, p.Refresh(time.Now()))
	assert.Equal(t, "2026-08-29", p.Current().SourceDate)

	// The refresh must have been recorded in the rate history.
	latest, err := history.LatestDate()
	require.NoError(t, err)
	assert.Equal(t, "2026-08-29", latest)
}

func TestProvider_RefreshFailureKeepsPrevious(t *testing.T) {
	snapshot := model.NewOfferSnapshot("2026-08-28")
	snapshot.Put(model.ServiceElectricity, model.KindFixed, model.BandSingle, model.OfferEntry{
		EnergyRate:           dec(t, "0.132"),
		CommercializationFee: dec(t, "64.0"),
	})
	fetcher := &staticFetcher{snapshot: snapshot}
	p := NewProvider(fetcher, store.NewMemoryStore())
	require.NoError(t, p.Refresh(time.Now()))

	fetcher.snapshot = nil
	fetcher.err = fmt.Errorf("portal unreachable")
	assert.Error(t, p.Refresh(time.Now()))
	assert.Equal(t, "2026-08-28", p.Current().SourceDate)
}

func TestProvider_Prime(t *testing.T) {
	history := store.NewMemoryStore()
	stored := model.NewOfferSnapshot("2026-08-28")
	stored.Put(model.ServiceGas, model.KindVariable, model.BandSingle, model.OfferEntry{
		EnergyRate:           dec(t, "0.48"),
		CommercializationFee: dec(t, "84.0"),
	})
	require.NoError(t, history.SaveOffers(stored))

	p := NewProvider(&staticFetcher{}, history)
	require.NoError(t, p.Prime())
	assert.Equal(t, "2026-08-28", p.Current().SourceDate)
}
