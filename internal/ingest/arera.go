// Package ingest reads the published best offers from the ARERA open data
// portal and keeps an in-memory snapshot of them.
package ingest

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dstmrk/octotracker/internal/model"
)

// ARERA wire codes.
const (
	marketElectricity = "01"
	marketGas         = "02"

	offerKindFixed = "01"

	bandCodeSingle = "01"

	macroareaFee    = "01"
	macroareaEnergy = "04"
)

// Client downloads and parses the daily ARERA offer files, keeping only the
// offers published by the configured supplier.
type Client struct {
	BaseURL     string
	SupplierVAT string
	MaxDaysBack int
	HTTPClient  *http.Client
}

// NewClient creates a client with optional proxy support.
func NewClient(baseURL, supplierVAT string, maxDaysBack int, proxyURL string) *Client {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &Client{
		BaseURL:     baseURL,
		SupplierVAT: supplierVAT,
		MaxDaysBack: maxDaysBack,
		HTTPClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
	}
}

// FetchSnapshot downloads the electricity and gas offer files and merges
// them into one snapshot. Each service independently falls back day by day
// when the file for a date has not been published yet. An error is returned
// only when neither service yields data.
func (c *Client) FetchSnapshot(now time.Time) (*model.OfferSnapshot, error) {
	snapshot := model.NewOfferSnapshot("")

	var fetched int
	for _, svc := range []model.Service{model.ServiceElectricity, model.ServiceGas} {
		date, err := c.fetchService(snapshot, svc, now)
		if err != nil {
			log.Printf("[WARN] arera: no %s data available: %v", svc, err)
			continue
		}
		fetched++
		// The snapshot carries the most recent source date of the two files.
		if date > snapshot.SourceDate {
			snapshot.SourceDate = date
		}
	}
	if fetched == 0 {
		return nil, fmt.Errorf("no offer file available for any service")
	}
	return snapshot, nil
}

// fetchService tries today's file first, then walks back up to MaxDaysBack
// days. Returns the date of the file actually used.
func (c *Client) fetchService(snapshot *model.OfferSnapshot, svc model.Service, now time.Time) (string, error) {
	var lastErr error
	for daysBack := 0; daysBack <= c.MaxDaysBack; daysBack++ {
		target := now.AddDate(0, 0, -daysBack)
		fileURL := c.buildURL(target, svc)

		body, err := c.download(fileURL)
		if err != nil {
			lastErr = err
			continue
		}

		date := target.Format("2006-01-02")
		if daysBack > 0 {
			log.Printf("[INFO] arera: %s file for today missing, using %s", svc, date)
		}
		if err := parseOffers(body, svc, c.SupplierVAT, snapshot); err != nil {
			return "", fmt.Errorf("parse %s file for %s: %w", svc, date, err)
		}
		return date, nil
	}
	return "", fmt.Errorf("tried %d days back: %w", c.MaxDaysBack, lastErr)
}

// buildURL composes the daily file URL, e.g.
// <base>/2025_11/PO_Offerte_E_MLIBERO_20251113.xml
func (c *Client) buildURL(date time.Time, svc model.Service) string {
	code := "E"
	if svc == model.ServiceGas {
		code = "G"
	}
	return fmt.Sprintf("%s/%s/PO_Offerte_%s_MLIBERO_%s.xml",
		c.BaseURL, date.Format("2006_01"), code, date.Format("20060102"))
}

func (c *Client) download(fileURL string) ([]byte, error) {
	resp, err := c.HTTPClient.Get(fileURL)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", fileURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get %s: status %d", fileURL, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", fileURL, err)
	}
	return body, nil
}

// offerElem mirrors one <offerta> element of the ARERA file. Only the fields
// the comparison needs are mapped.
type offerElem struct {
	Identifiers struct {
		VAT       string `xml:"PIVA_UTENTE"`
		OfferCode string `xml:"COD_OFFERTA"`
	} `xml:"IdentificativiOfferta"`
	Detail struct {
		Market string `xml:"TIPO_MERCATO"`
		Kind   string `xml:"TIPO_OFFERTA"`
		Name   string `xml:"NOME_OFFERTA"`
	} `xml:"DettaglioOfferta"`
	PriceType struct {
		BandCode string `xml:"TIPOLOGIA_FASCE"`
	} `xml:"TipoPrezzo"`
	Components []struct {
		Macroarea string `xml:"MACROAREA"`
		Intervals []struct {
			Price string `xml:"PREZZO"`
		} `xml:"IntervalloPrezzi"`
	} `xml:"ComponenteImpresa"`
}

// parseOffers scans the XML document for <offerta> elements, filters them
// down to the supplier's offers for the wanted service and stores each one in
// the snapshot. Later offers for the same cell replace earlier ones.
func parseOffers(data []byte, svc model.Service, supplierVAT string, snapshot *model.OfferSnapshot) error {
	wantMarket := marketElectricity
	if svc == model.ServiceGas {
		wantMarket = marketGas
	}

	// The files carry a namespace and a varying wrapper structure, so the
	// <offerta> elements are located by streaming rather than by a fixed
	// document layout.
	decoder := xml.NewDecoder(bytes.NewReader(data))
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read xml: %w", err)
		}
		start, ok := token.(xml.StartElement)
		if !ok || start.Name.Local != "offerta" {
			continue
		}

		var elem offerElem
		if err := decoder.DecodeElement(&elem, &start); err != nil {
			return fmt.Errorf("decode offerta: %w", err)
		}
		if elem.Identifiers.VAT != supplierVAT || elem.Detail.Market != wantMarket {
			continue
		}
		kind, band, entry, err := convertOffer(&elem, svc)
		if err != nil {
			log.Printf("[WARN] arera: skipping offer %q: %v", elem.Detail.Name, err)
			continue
		}
		snapshot.Put(svc, kind, band, entry)
	}
}

func convertOffer(elem *offerElem, svc model.Service) (model.Kind, model.Band, model.OfferEntry, error) {
	kind := model.KindVariable
	if elem.Detail.Kind == offerKindFixed {
		kind = model.KindFixed
	}

	// Gas offers are always single-band; electricity follows the band code.
	band := model.BandSingle
	if svc == model.ServiceElectricity && elem.PriceType.BandCode != bandCodeSingle {
		band = model.BandThreeTier
	}

	energy, ok := firstPrice(elem, macroareaEnergy)
	if !ok {
		return "", "", model.OfferEntry{}, fmt.Errorf("no energy price component")
	}
	energyRate, err := decimal.NewFromString(energy)
	if err != nil {
		return "", "", model.OfferEntry{}, fmt.Errorf("parse energy price %q: %w", energy, err)
	}

	// A missing fee component is published as zero.
	fee := decimal.Zero
	if raw, ok := firstPrice(elem, macroareaFee); ok {
		fee, err = decimal.NewFromString(raw)
		if err != nil {
			return "", "", model.OfferEntry{}, fmt.Errorf("parse fee %q: %w", raw, err)
		}
	}

	return kind, band, model.OfferEntry{
		EnergyRate:           energyRate,
		CommercializationFee: fee,
		OfferCode:            elem.Identifiers.OfferCode,
	}, nil
}

// firstPrice returns the first interval price of the component with the
// given macroarea. Multi-band components publish the same spread for every
// band, so the first interval is enough.
func firstPrice(elem *offerElem, macroarea string) (string, bool) {
	for _, comp := range elem.Components {
		if comp.Macroarea != macroarea {
			continue
		}
		if len(comp.Intervals) == 0 {
			return "", false
		}
		return comp.Intervals[0].Price, true
	}
	return "", false
}
