// Package parse extracts structured crypto-call fields from raw message
// text, trying a fixed sequence of format families until one matches.
package parse

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/pfultibot/callpipe/internal/model"
)

var (
	vipPattern = regexp.MustCompile(
		`(?is)[🎉🔥🌕⚡️🚀🌙]\s*\*?\*?([0-9]+(?:\.[0-9]+)?)x\s*\(([0-9]+(?:\.[0-9]+)?)x\s*from\s*VIP\)\*?\*?\s*[` + "`" + `|]*\s*💹[` + "`" + `]*From[` + "`" + `]*\s*\*?\*?([0-9]+(?:\.[0-9]+)?)\s*([KMBkmb]?)\*?\*?\s*↗️\s*\*?\*?([0-9]+(?:\.[0-9]+)?)\s*([KMBkmb]?)\*?\*?\s*[` + "`" + `]*within[` + "`" + `]*\s*(.+?)(?:\s|$)`,
	)

	regularPattern = regexp.MustCompile(
		`(?is)[🎉🔥🌕⚡️🚀🌙]\s*\*?\*?([0-9]+(?:\.[0-9]+)?)x\*?\*?\s*[` + "`" + `|]*\s*💹[` + "`" + `]*From[` + "`" + `]*\s*\*?\*?([0-9]+(?:\.[0-9]+)?)\s*([KMBkmb]?)\*?\*?\s*↗️\s*\*?\*?([0-9]+(?:\.[0-9]+)?)\s*([KMBkmb]?)\*?\*?\s*[` + "`" + `]*within[` + "`" + `]*\s*(.+?)(?:\s|$)`,
	)

	discoveryPattern = regexp.MustCompile(
		`(?is)(?:\[(.+?)\s*\(([^)]+)\)\]|^(.+?)\s*\(([^)]+)\))\s*(?:https?://[^\s]*/)?\s*([A-Za-z0-9]{20,})\s*.*?[` + "`" + `]*Cap:?[` + "`" + `]*\s*\*?\*?([0-9]+(?:\.[0-9]+)?)\s*([KMBkmb]?)\*?\*?`,
	)

	tokenTagPattern  = regexp.MustCompile(`(?i)\$([A-Z][A-Z0-9]*)`)
	entryPattern     = regexp.MustCompile(`(?i)Entry:?\s*([0-9]+(?:\.[0-9]+)?)\s*([KMB])?`)
	peakPattern      = regexp.MustCompile(`(?i)Peak:?\s*([0-9]+(?:\.[0-9]+)?)\s*([KMB])?`)
	gainPattern      = regexp.MustCompile(`(?i)\(([0-9]+(?:\.[0-9]+)?)x`)
	vipWordPattern   = regexp.MustCompile(`(?i)vip`)
)

// Parse extracts a ParsedMessage from raw text, trying update, discovery,
// bonding, then legacy fallback formats in that order. It returns
// (nil, false) when no family matches.
func Parse(text string) (*model.ParsedMessage, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, false
	}

	if pm, ok := parseUpdate(text); ok {
		return pm, true
	}

	if pm, ok := parseDiscovery(text); ok {
		return pm, true
	}

	if strings.Contains(strings.ToLower(text), "bonded") {
		return &model.ParsedMessage{MessageType: model.MessageTypeBonding}, true
	}

	if pm, ok := parseFallback(text); ok {
		return pm, true
	}

	return nil, false
}

func parseUpdate(text string) (*model.ParsedMessage, bool) {
	if m := vipPattern.FindStringSubmatch(text); m != nil {
		xGain, err1 := strconv.ParseFloat(m[1], 64)
		vipX, err2 := strconv.ParseFloat(m[2], 64)
		entryVal, err3 := strconv.ParseFloat(m[3], 64)
		peakVal, err4 := strconv.ParseFloat(m[5], 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			return nil, false
		}
		entryCap := convertMagnitude(entryVal, m[4])
		peakCap := convertMagnitude(peakVal, m[6])
		timeToPeak := strings.TrimSpace(m[7])
		return &model.ParsedMessage{
			MessageType: model.MessageTypeUpdate,
			EntryCap:    &entryCap,
			PeakCap:     &peakCap,
			XGain:       &xGain,
			VIPX:        &vipX,
			TimeToPeak:  &timeToPeak,
		}, true
	}

	if m := regularPattern.FindStringSubmatch(text); m != nil {
		xGain, err1 := strconv.ParseFloat(m[1], 64)
		entryVal, err2 := strconv.ParseFloat(m[2], 64)
		peakVal, err3 := strconv.ParseFloat(m[4], 64)
		if err1 != nil || err2 != nil || err3 != nil {
			return nil, false
		}
		entryCap := convertMagnitude(entryVal, m[3])
		peakCap := convertMagnitude(peakVal, m[5])
		timeToPeak := strings.TrimSpace(m[6])
		return &model.ParsedMessage{
			MessageType: model.MessageTypeUpdate,
			EntryCap:    &entryCap,
			PeakCap:     &peakCap,
			XGain:       &xGain,
			TimeToPeak:  &timeToPeak,
		}, true
	}

	return nil, false
}

func parseDiscovery(text string) (*model.ParsedMessage, bool) {
	m := discoveryPattern.FindStringSubmatch(text)
	if m == nil {
		return nil, false
	}

	var displayName, symbol string
	if m[1] != "" {
		displayName = strings.TrimSpace(m[1])
		symbol = strings.ToUpper(strings.TrimSpace(m[2]))
	} else {
		displayName = strings.TrimSpace(m[3])
		symbol = strings.ToUpper(strings.TrimSpace(m[4]))
	}
	// token_name carries the full bracketed display ("Bean Cabal
	// (CABAL)"), not the bare symbol: linked updates inherit this
	// whole string, matching the discovery's own display text.
	tokenName := displayName + " (" + symbol + ")"

	contractAddress := m[5]
	capValue, err := strconv.ParseFloat(m[6], 64)
	if err != nil {
		return nil, false
	}
	currentCap := convertMagnitude(capValue, m[7])
	xGain := 1.0

	return &model.ParsedMessage{
		MessageType:     model.MessageTypeDiscovery,
		TokenName:       &tokenName,
		ContractAddress: &contractAddress,
		EntryCap:        &currentCap,
		PeakCap:         &currentCap,
		XGain:           &xGain,
	}, true
}

func parseFallback(text string) (*model.ParsedMessage, bool) {
	entryMatch := entryPattern.FindStringSubmatch(text)
	if entryMatch == nil {
		return nil, false
	}
	peakMatch := peakPattern.FindStringSubmatch(text)
	if peakMatch == nil {
		return nil, false
	}
	gainMatch := gainPattern.FindStringSubmatch(text)
	if gainMatch == nil {
		return nil, false
	}

	entryVal, err1 := strconv.ParseFloat(entryMatch[1], 64)
	peakVal, err2 := strconv.ParseFloat(peakMatch[1], 64)
	xGain, err3 := strconv.ParseFloat(gainMatch[1], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return nil, false
	}

	entryCap := convertMagnitude(entryVal, entryMatch[2])
	peakCap := convertMagnitude(peakVal, peakMatch[2])

	pm := &model.ParsedMessage{
		MessageType: model.MessageTypeUpdate,
		EntryCap:    &entryCap,
		PeakCap:     &peakCap,
		XGain:       &xGain,
	}

	if tm := tokenTagPattern.FindStringSubmatch(text); tm != nil {
		name := strings.ToUpper(tm[1])
		pm.TokenName = &name
	}

	if vipWordPattern.MatchString(text) {
		vipX := xGain
		pm.VIPX = &vipX
	}

	return pm, true
}

// convertMagnitude applies the K/M/B suffix multiplier to a bare value,
// matching the locale-independent '.' decimal convention used throughout
// the source messages.
func convertMagnitude(value float64, unit string) float64 {
	switch strings.ToUpper(unit) {
	case "K":
		return value * 1_000
	case "M":
		return value * 1_000_000
	case "B":
		return value * 1_000_000_000
	default:
		return value
	}
}
