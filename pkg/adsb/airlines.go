package adsb

import "strings"

// airlinesByPrefix maps ICAO airline designators (the first three letters of
// an airline callsign) to display names.
var airlinesByPrefix = map[string]string{
	"AAL": "American Airlines",
	"AAY": "Allegiant Air",
	"ACA": "Air Canada",
	"AFR": "Air France",
	"AIC": "Air India",
	"ANA": "All Nippon Airways",
	"ASA": "Alaska Airlines",
	"AUA": "Austrian Airlines",
	"BAW": "British Airways",
	"CPA": "Cathay Pacific",
	"DAL": "Delta Air Lines",
	"DLH": "Lufthansa",
	"EDV": "Endeavor Air",
	"EIN": "Aer Lingus",
	"EJA": "NetJets",
	"ENY": "Envoy Air",
	"ETD": "Etihad Airways",
	"EZY": "easyJet",
	"FDX": "FedEx",
	"FFT": "Frontier Airlines",
	"FIN": "Finnair",
	"GTI": "Atlas Air",
	"HAL": "Hawaiian Airlines",
	"IBE": "Iberia",
	"JAL": "Japan Airlines",
	"JBU": "JetBlue",
	"JIA": "PSA Airlines",
	"KAL": "Korean Air",
	"KLM": "KLM",
	"NKS": "Spirit Airlines",
	"QFA": "Qantas",
	"QTR": "Qatar Airways",
	"QXE": "Horizon Air",
	"RPA": "Republic Airways",
	"RYR": "Ryanair",
	"SAS": "Scandinavian Airlines",
	"SIA": "Singapore Airlines",
	"SKW": "SkyWest Airlines",
	"SWA": "Southwest Airlines",
	"SWR": "Swiss",
	"THY": "Turkish Airlines",
	"UAE": "Emirates",
	"UAL": "United Airlines",
	"UPS": "UPS Airlines",
	"VIR": "Virgin Atlantic",
	"VOI": "Volaris",
	"WJA": "WestJet",
	"WZZ": "Wizz Air",
}

// AirlineForCallsign returns the carrier name for an airline-style callsign
// such as "BAW283", or "" when the prefix is unknown.
func AirlineForCallsign(callsign string) string {
	cs := strings.ToUpper(strings.TrimSpace(callsign))
	if len(cs) < 3 {
		return ""
	}
	prefix := cs[:3]
	for i := 0; i < len(prefix); i++ {
		if prefix[i] < 'A' || prefix[i] > 'Z' {
			return ""
		}
	}
	return airlinesByPrefix[prefix]
}
