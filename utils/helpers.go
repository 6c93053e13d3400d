package utils

import (
	"strings"
	"unicode/utf8"
)

func IsValidInterval(interval string) bool {
	switch interval {
	case "Minute", "Hour", "Day", "Week", "Month", "Quarter", "Year":
		return true
	default:
		return false
	}
}

// Truncate trims s and cuts it to at most n runes.
func Truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

// StoreIDOrDefault maps an absent or placeholder store id onto def.
func StoreIDOrDefault(storeID, def string) string {
	storeID = strings.TrimSpace(storeID)
	switch storeID {
	case "", "undefined", "null", "YOUR_STORE_ID":
		return def
	}
	return storeID
}
