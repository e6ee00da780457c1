package gsa

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// flexString tolerates fields the API serves as either JSON strings or bare
// numbers.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*f = ""
		return nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(trimmed)
	return nil
}

type flexInt int64

func (f *flexInt) UnmarshalJSON(data []byte) error {
	trimmed := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if trimmed == "" || trimmed == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		*f = 0
		return nil
	}
	*f = flexInt(n)
	return nil
}

type auctionRow struct {
	SaleNo          string     `json:"saleNo"`
	LotNo           string     `json:"lotNo"`
	ItemName        string     `json:"itemName"`
	LotInfo         string     `json:"lotInfo"`
	HighBidAmount   flexString `json:"highBidAmount"`
	Reserve         flexString `json:"reserve"`
	AucIncrement    flexString `json:"aucIncrement"`
	AuctionStatus   string     `json:"auctionStatus"`
	AucStartDt      string     `json:"aucStartDt"`
	AucEndDt        string     `json:"aucEndDt"`
	PropertyCity    string     `json:"propertyCity"`
	PropertyState   string     `json:"propertyState"`
	PropertyZip     string     `json:"propertyZip"`
	PropertyAddr1   string     `json:"propertyAddr1"`
	PropertyAddr2   string     `json:"propertyAddr2"`
	PropertyAddr3   string     `json:"propertyAddr3"`
	LocationCity    string     `json:"locationCity"`
	LocationST      string     `json:"locationST"`
	ImageURL        string     `json:"imageURL"`
	ItemDescURL     string     `json:"itemDescURL"`
	ContractOfficer string     `json:"contractOfficer"`
	CoPhone         string     `json:"coPhone"`
	CoEmail         string     `json:"coEmail"`
	AgencyName      string     `json:"agencyName"`
	BureauName      string     `json:"bureauName"`
	AgencyCode      string     `json:"agencyCode"`
	BureauCode      string     `json:"bureauCode"`
	InactivityTime  string     `json:"inactivityTime"`
	Instruction     string     `json:"instruction"`
	BiddersCount    flexInt    `json:"biddersCount"`
}

// decodeEnvelope accepts the envelope shapes the API has shipped over time:
// {"Results": [...]}, a bare array, {"auctions": [...]} and {"results": [...]}.
func decodeEnvelope(raw []byte) ([]auctionRow, error) {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		var rows []auctionRow
		if err := json.Unmarshal(raw, &rows); err != nil {
			return nil, fmt.Errorf("failed to decode gsa response: %w", err)
		}
		return rows, nil
	}

	var envelope struct {
		Results      []auctionRow `json:"Results"`
		Auctions     []auctionRow `json:"auctions"`
		ResultsLower []auctionRow `json:"results"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode gsa response: %w", err)
	}
	switch {
	case len(envelope.Results) > 0:
		return envelope.Results, nil
	case len(envelope.Auctions) > 0:
		return envelope.Auctions, nil
	case len(envelope.ResultsLower) > 0:
		return envelope.ResultsLower, nil
	}
	return nil, nil
}
