package model

// GeoInfo is the detail shown when a peer is inspected.
type GeoInfo struct {
	CountryName string `json:"country_name"`
	City        string `json:"city"`
	Org         string `json:"org"`
	ASN         string `json:"asn"`
}
