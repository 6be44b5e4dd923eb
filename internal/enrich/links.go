package enrich

import (
	"fmt"
	"net/url"
	"strconv"
	"time"
)

const (
	staticMapWidth  = 300
	staticMapHeight = 180
	staticMapZoom   = 14
	iconBaseURL     = "https://raw.githubusercontent.com/kvangent/PokeAlarm/master/icons/"
)

// GoogleMapsURL links to the coordinate on Google Maps.
func GoogleMapsURL(lat, lon float64) string {
	return fmt.Sprintf("https://www.google.com/maps/place/%s,%s", formatCoord(lat), formatCoord(lon))
}

// StaticMapURL returns a static map image with one marker; key is optional.
func StaticMapURL(lat, lon float64, key string) string {
	link := fmt.Sprintf("https://maps.googleapis.com/maps/api/staticmap?markers=%s,%s&zoom=%d&size=%dx%d",
		formatCoord(lat), formatCoord(lon), staticMapZoom, staticMapWidth, staticMapHeight)
	if key != "" {
		link += "&key=" + url.QueryEscape(key)
	}
	return link
}

// GamepressURL links to the species page.
func GamepressURL(pokemonID int) string {
	return "https://pokemongo.gamepress.gg/pokemon/" + strconv.Itoa(pokemonID)
}

// IconURL returns the species thumbnail.
func IconURL(pokemonID int) string {
	return iconBaseURL + strconv.Itoa(pokemonID) + ".png"
}

// EggIconURL returns the egg thumbnail for a raid level.
func EggIconURL(level int) string {
	return iconBaseURL + "egg_" + strconv.Itoa(level) + ".png"
}

// GymIconURL returns the team badge used for gym alerts.
func GymIconURL(teamName string) string {
	return iconBaseURL + "gym_" + teamName + ".png"
}

// ReadableTime formats wall clock time as HH:MM in loc.
func ReadableTime(at time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return at.In(loc).Format("15:04")
}

// TimeLeft formats remaining time as MM:SS, clamped at 00:00.
func TimeLeft(until, now time.Time) string {
	left := until.Sub(now)
	if left < 0 {
		left = 0
	}
	seconds := int(left / time.Second)
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

func formatCoord(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
