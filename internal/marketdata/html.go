package marketdata

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/wonny/bastion/backend/internal/contracts"
)

// parseQuoteHTML extracts a snapshot from the legacy quote page.
// 마크업 예시:
//
//	<div class="quote" data-symbol="SPY">
//	  <span class="price">512.34</span>
//	  <span class="volatility">18.2%</span>
//	  <span class="trend">0.35</span>
//	</div>
//
// 없는 필드는 결측으로 둠 (스코어러가 보수적 처리)
func parseQuoteHTML(html, symbol string) (*contracts.MarketSnapshot, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse quote page failed: %w", err)
	}

	quote := doc.Find(fmt.Sprintf(`div.quote[data-symbol=%q]`, symbol))
	if quote.Length() == 0 {
		quote = doc.Find("div.quote").First()
	}
	if quote.Length() == 0 {
		return nil, fmt.Errorf("no quote block found for %s", symbol)
	}

	snap := &contracts.MarketSnapshot{Symbol: symbol}

	if v, ok := parseNumber(quote.Find("span.price").Text()); ok {
		snap.Price, snap.HasPrice = v, true
	}
	if v, ok := parseNumber(quote.Find("span.volatility").Text()); ok {
		// 페이지는 백분율로 표기
		snap.Volatility, snap.HasVolatility = v/100, true
	}
	if v, ok := parseNumber(quote.Find("span.trend").Text()); ok {
		snap.MarketTrend, snap.HasTrend = v, true
	}

	if !snap.HasPrice && !snap.HasVolatility && !snap.HasTrend {
		return nil, fmt.Errorf("quote block for %s has no parseable fields", symbol)
	}

	return snap, nil
}

// parseNumber strips formatting ("1,234.56", "18.2%") and parses the value
func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSuffix(s, "%")
	if s == "" {
		return 0, false
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
