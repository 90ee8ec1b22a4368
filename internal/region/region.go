// Package region maps free-text Korean addresses to the ten coarse forecast
// regions used to key weather lookups.
package region

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Region is a forecast region tag.
type Region string

const (
	Capital       Region = "수도권"
	GangwonWest   Region = "강원영서"
	GangwonEast   Region = "강원영동"
	Chungbuk      Region = "충청북도"
	ChungnamArea  Region = "충남권"
	Jeonbuk       Region = "전라북도"
	JeonnamArea   Region = "전남권"
	GyeongbukArea Region = "경북권"
	GyeongnamArea Region = "경남권"
	Jeju          Region = "제주도"
)

var all = []Region{
	Capital, GangwonWest, GangwonEast, Chungbuk, ChungnamArea,
	Jeonbuk, JeonnamArea, GyeongbukArea, GyeongnamArea, Jeju,
}

// All returns every region in display order.
func All() []Region {
	out := make([]Region, len(all))
	copy(out, all)
	return out
}

// Parse validates s as a region tag.
func Parse(s string) (Region, error) {
	s = norm.NFC.String(strings.TrimSpace(s))
	for _, r := range all {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown region %q", s)
}

type rule struct {
	markers []string
	resolve func(address string) Region
}

func fixed(r Region) func(string) Region {
	return func(string) Region { return r }
}

// rules are evaluated in order; the first rule with a matching marker wins.
// The order is observable: "경기도 광주시" resolves to 전남권 because the
// 광주 rule precedes the 경기 rule.
var rules = []rule{
	{markers: []string{"제주"}, resolve: fixed(Jeju)},
	{markers: []string{"부산", "울산", "경남", "창원"}, resolve: fixed(GyeongnamArea)},
	{markers: []string{"대구", "경북"}, resolve: fixed(GyeongbukArea)},
	{markers: []string{"강원"}, resolve: gangwon},
	{markers: []string{"광주", "전남"}, resolve: fixed(JeonnamArea)},
	{markers: []string{"전북"}, resolve: fixed(Jeonbuk)},
	{markers: []string{"대전", "충남", "세종"}, resolve: fixed(ChungnamArea)},
	{markers: []string{"충북"}, resolve: fixed(Chungbuk)},
	{markers: []string{"서울", "경기", "인천"}, resolve: fixed(Capital)},
}

var eastCoast = []string{"강릉", "속초", "동해", "삼척"}

func gangwon(address string) Region {
	if containsAny(address, eastCoast) {
		return GangwonEast
	}
	return GangwonWest
}

// Infer returns the region for address, or false when no rule matches.
func Infer(address string) (Region, bool) {
	if address == "" {
		return "", false
	}
	address = norm.NFC.String(address)
	for _, r := range rules {
		if containsAny(address, r.markers) {
			return r.resolve(address), true
		}
	}
	return "", false
}

// InferOr returns the inferred region or fallback.
func InferOr(address string, fallback Region) Region {
	if r, ok := Infer(address); ok {
		return r
	}
	return fallback
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
