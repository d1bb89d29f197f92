package utils

import (
	"time"
)

// IndiaLocation is the timezone for Indian markets.
var IndiaLocation *time.Location

func init() {
	var err error
	IndiaLocation, err = time.LoadLocation("Asia/Kolkata")
	if err != nil {
		// Fallback to UTC+5:30
		IndiaLocation = time.FixedZone("IST", 5*60*60+30*60)
	}
}

// TradingDay returns the IST calendar date of t as YYYY-MM-DD. Day P&L
// buckets roll over on this value.
func TradingDay(t time.Time) string {
	return t.In(IndiaLocation).Format("2006-01-02")
}

// IsMarketHours reports whether t falls inside the NSE cash session
// (09:15-15:30 IST, Monday to Friday).
func IsMarketHours(t time.Time) bool {
	now := t.In(IndiaLocation)
	if now.Weekday() == time.Saturday || now.Weekday() == time.Sunday {
		return false
	}
	minutes := now.Hour()*60 + now.Minute()
	return minutes >= 555 && minutes < 930
}
